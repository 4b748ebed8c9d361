// Package relay is the REST client for the marketplace relay service, the
// hosted executor that wraps signed forward requests in on-chain
// transactions and pays their gas.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/openharvest/harvestd/internal/domain"
)

const (
	relayPath = "/api/relay"

	// maxErrorBody bounds how much of an error response we read when the
	// relay misbehaves.
	maxErrorBody = 4 << 10
)

// forwardRequestEnvelope is the wire form of a forward request. Numeric
// fields travel as decimal strings so arbitrary-precision values survive
// JSON round-trips through weakly typed consumers.
type forwardRequestEnvelope struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Gas      string `json:"gas"`
	Nonce    string `json:"nonce"`
	Deadline string `json:"deadline"`
	Data     string `json:"data"`
}

type submitRequest struct {
	ForwardRequest forwardRequestEnvelope `json:"forwardRequest"`
	Signature      string                 `json:"signature"`
}

type submitResponse struct {
	TransactionHash string `json:"transactionHash"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client submits signed forward requests to the relay over HTTPS. It is
// transport only: retry policy lives in the gasless facade, which keys off
// the sentinel errors this client classifies responses into.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a relay client for the given service root, e.g.
// "https://relay.openharvest.example".
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(slog.String("component", "relay_client")),
	}
}

// Submit posts a signed request and returns the relay's transaction hash.
// Responses classify into the domain taxonomy:
//
//   - 429 → domain.ErrRelayRateLimited
//   - 5xx whose message names a nonce problem → domain.ErrRelayNonceConflict
//   - any other non-200 → domain.ErrRelayRejected, message kept verbatim
//
// Requests past their deadline are refused locally; the relay would reject
// them anyway and the attempt would burn a rate-limit slot for nothing.
func (c *Client) Submit(ctx context.Context, req domain.ForwardRequest, sig []byte) (common.Hash, error) {
	if req.Expired(time.Now()) {
		return common.Hash{}, fmt.Errorf("relay: request deadline %d already passed: %w",
			req.Deadline, domain.NewRelayError(0, "deadline expired before submission", domain.ErrRelayRejected))
	}

	body := submitRequest{
		ForwardRequest: forwardRequestEnvelope{
			From:     req.From.Hex(),
			To:       req.To.Hex(),
			Value:    req.Value.String(),
			Gas:      fmt.Sprintf("%d", req.Gas),
			Nonce:    req.Nonce.String(),
			Deadline: fmt.Sprintf("%d", req.Deadline),
			Data:     hexutil.Encode(req.Data),
		},
		Signature: hexutil.Encode(sig),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return common.Hash{}, fmt.Errorf("relay: marshal submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+relayPath, bytes.NewReader(payload))
	if err != nil {
		return common.Hash{}, fmt.Errorf("relay: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return common.Hash{}, fmt.Errorf("relay: submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return common.Hash{}, c.classifyError(resp)
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return common.Hash{}, fmt.Errorf("relay: decode response: %w", err)
	}
	hashBytes, err := hexutil.Decode(result.TransactionHash)
	if err != nil || len(hashBytes) != common.HashLength {
		return common.Hash{}, fmt.Errorf("relay: malformed transaction hash %q", result.TransactionHash)
	}

	hash := common.BytesToHash(hashBytes)
	c.logger.Debug("relay accepted submission",
		slog.String("tx", hash.Hex()),
		slog.String("from", req.From.Hex()),
	)
	return hash, nil
}

// classifyError maps a non-200 relay response to a sentinel the facade's
// retry policy understands. The relay's message is preserved verbatim for
// terminal rejections so operators see exactly what the service said.
func (c *Client) classifyError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := string(bytes.TrimSpace(raw))
	var apiErr errorResponse
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		if apiErr.Error != "" {
			msg = apiErr.Error
		} else if apiErr.Message != "" {
			msg = apiErr.Message
		}
	}

	c.logger.Warn("relay refused submission",
		slog.Int("status", resp.StatusCode),
		slog.String("message", msg),
	)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("relay: %w", domain.NewRelayError(resp.StatusCode, msg, domain.ErrRelayRateLimited))
	case resp.StatusCode >= 500 && mentionsNonce(msg):
		return fmt.Errorf("relay: %w", domain.NewRelayError(resp.StatusCode, msg, domain.ErrRelayNonceConflict))
	default:
		return fmt.Errorf("relay: %w", domain.NewRelayError(resp.StatusCode, msg, domain.ErrRelayRejected))
	}
}

// mentionsNonce detects the relay's nonce-conflict wording. The relay does
// not expose a structured code for this case, so the message text is the
// only signal available.
func mentionsNonce(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "nonce")
}
