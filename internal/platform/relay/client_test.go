package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/openharvest/harvestd/internal/domain"
)

const testTxHash = "0x1111111111111111111111111111111111111111111111111111111111111111"

func testRequest() domain.ForwardRequest {
	return domain.ForwardRequest{
		From:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
		To:       common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Value:    big.NewInt(0),
		Gas:      150_000,
		Nonce:    big.NewInt(7),
		Deadline: uint64(time.Now().Add(10 * time.Minute).Unix()),
		Data:     common.FromHex("0xdeadbeef"),
	}
}

func testSig() []byte {
	sig := make([]byte, 65)
	sig[64] = 27
	return sig
}

func TestSubmitSuccess(t *testing.T) {
	var captured submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/relay", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(submitResponse{TransactionHash: testTxHash})
	}))
	defer srv.Close()

	req := testRequest()
	hash, err := NewClient(srv.URL, slog.Default()).Submit(context.Background(), req, testSig())
	require.NoError(t, err)
	require.Equal(t, common.HexToHash(testTxHash), hash)

	// Numeric fields travel as decimal strings, bytes as 0x hex.
	require.Equal(t, req.From.Hex(), captured.ForwardRequest.From)
	require.Equal(t, req.To.Hex(), captured.ForwardRequest.To)
	require.Equal(t, "0", captured.ForwardRequest.Value)
	require.Equal(t, "150000", captured.ForwardRequest.Gas)
	require.Equal(t, "7", captured.ForwardRequest.Nonce)
	require.Equal(t, "0xdeadbeef", captured.ForwardRequest.Data)
	require.Equal(t, "0x"+common.Bytes2Hex(testSig()), captured.Signature)
}

func TestSubmitRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(errorResponse{Error: "rate limit exceeded"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, slog.Default()).Submit(context.Background(), testRequest(), testSig())
	require.ErrorIs(t, err, domain.ErrRelayRateLimited)
}

// The relay exposes no structured code for nonce conflicts; a 5xx whose
// message names the nonce is the only signal.
func TestSubmitNonceConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errorResponse{Message: "execution failed: Nonce already used"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, slog.Default()).Submit(context.Background(), testRequest(), testSig())
	require.ErrorIs(t, err, domain.ErrRelayNonceConflict)
}

// A 5xx without nonce wording is a plain rejection, not a retryable conflict.
func TestSubmitServerErrorWithoutNonce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errorResponse{Error: "internal error"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, slog.Default()).Submit(context.Background(), testRequest(), testSig())
	require.ErrorIs(t, err, domain.ErrRelayRejected)
	require.NotErrorIs(t, err, domain.ErrRelayNonceConflict)
}

func TestSubmitRejectionKeepsMessageVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorResponse{Error: "target contract not whitelisted"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, slog.Default()).Submit(context.Background(), testRequest(), testSig())
	require.ErrorIs(t, err, domain.ErrRelayRejected)

	var relayErr *domain.RelayError
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, http.StatusBadRequest, relayErr.StatusCode)
	require.Equal(t, "target contract not whitelisted", relayErr.Message)
}

func TestSubmitNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, slog.Default()).Submit(context.Background(), testRequest(), testSig())

	var relayErr *domain.RelayError
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, "upstream exploded", relayErr.Message)
}

// An expired request is refused locally: the relay would reject it anyway and
// the attempt would burn a rate-limit slot.
func TestSubmitExpiredDeadlineRefusedLocally(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	req := testRequest()
	req.Deadline = uint64(time.Now().Add(-time.Minute).Unix())

	_, err := NewClient(srv.URL, slog.Default()).Submit(context.Background(), req, testSig())
	require.ErrorIs(t, err, domain.ErrRelayRejected)
	require.Zero(t, hits, "expired request must never reach the wire")
}

func TestSubmitMalformedHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(submitResponse{TransactionHash: "0x1234"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, slog.Default()).Submit(context.Background(), testRequest(), testSig())
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed transaction hash")
}
