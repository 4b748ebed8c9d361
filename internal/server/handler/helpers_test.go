package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openharvest/harvestd/internal/domain"
)

func TestWriteOperationErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("svc: %w", domain.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("svc: %w", domain.ErrUnknownTarget), http.StatusBadRequest},
		{fmt.Errorf("svc: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("svc: %w", domain.ErrSignatureCancelled), http.StatusConflict},
		{fmt.Errorf("svc: %w", domain.ErrRelayRateLimited), http.StatusTooManyRequests},
		{&domain.RevertError{Reason: "Order: already accepted"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("svc: %w", domain.ErrConfirmationTimeout), http.StatusGatewayTimeout},
		{fmt.Errorf("svc: %w", domain.ErrNotConnected), http.StatusServiceUnavailable},
		{fmt.Errorf("svc: %w", domain.ErrChainMismatch), http.StatusServiceUnavailable},
		{fmt.Errorf("something unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeOperationError(rec, tc.err)

			require.Equal(t, tc.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.err.Error(), body["error"], "message must pass through verbatim")
		})
	}
}

// Relay rejections carry the relay's own message through to the client.
func TestWriteOperationErrorRelayMessageVerbatim(t *testing.T) {
	rec := httptest.NewRecorder()
	writeOperationError(rec, domain.NewRelayError(400, "target contract not whitelisted", domain.ErrRelayRejected))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body["error"], "target contract not whitelisted")
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/orders?limit=20&offset=40&since=2026-08-01T00:00:00Z", nil)
	opts := parseListOpts(req)

	require.Equal(t, 20, opts.Limit)
	require.Equal(t, 40, opts.Offset)
	require.NotNil(t, opts.Since)
	require.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), opts.Since.UTC())
	require.Nil(t, opts.Until)
}

func TestParseListOptsDefaultsAndClamps(t *testing.T) {
	opts := parseListOpts(httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	require.Equal(t, 50, opts.Limit)
	require.Zero(t, opts.Offset)

	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/orders?limit=9999", nil))
	require.Equal(t, 500, opts.Limit)

	// Garbage falls back to defaults instead of erroring.
	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/orders?limit=x&offset=-3&since=yesterday", nil))
	require.Equal(t, 50, opts.Limit)
	require.Zero(t, opts.Offset)
	require.Nil(t, opts.Since)
}

func TestDecodeBodyRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Quantity uint64 `json:"quantity"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":5}`))
	require.NoError(t, decodeBody(req, &dst))
	require.Equal(t, uint64(5), dst.Quantity)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":5,"bogus":true}`))
	require.Error(t, decodeBody(req, &dst))
}

func TestPathID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/orders/17", nil)
	req.SetPathValue("id", "17")

	id, err := pathID(req, "id")
	require.NoError(t, err)
	require.Equal(t, uint64(17), id)

	req.SetPathValue("id", "-1")
	_, err = pathID(req, "id")
	require.Error(t, err)
}
