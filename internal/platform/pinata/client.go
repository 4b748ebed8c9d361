// Package pinata is the REST client for the Pinata IPFS pinning service.
// Listing metadata documents are pinned here and referenced on chain by CID
// only, keeping contract storage to a single string per listing.
package pinata

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

	"github.com/openharvest/harvestd/internal/domain"
)

const (
	defaultAPIBase = "https://api.pinata.cloud"
	defaultGateway = "https://gateway.pinata.cloud/ipfs"

	// maxMetadataSize bounds fetched metadata documents. Listing metadata is
	// a small JSON object; anything bigger is not ours.
	maxMetadataSize = 256 << 10
)

// Client pins and retrieves listing metadata documents on IPFS via Pinata.
type Client struct {
	apiBase    string
	gateway    string
	jwt        string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIBase overrides the Pinata API root (tests point this at a local
// server).
func WithAPIBase(u string) Option {
	return func(c *Client) { c.apiBase = strings.TrimRight(u, "/") }
}

// WithGateway overrides the IPFS gateway root used for retrieval.
func WithGateway(u string) Option {
	return func(c *Client) { c.gateway = strings.TrimRight(u, "/") }
}

// NewClient creates a Pinata client authenticated with the given JWT.
func NewClient(jwt string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		apiBase: defaultAPIBase,
		gateway: defaultGateway,
		jwt:     jwt,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(slog.String("component", "pinata_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pinRequest struct {
	PinataContent  any            `json:"pinataContent"`
	PinataMetadata map[string]any `json:"pinataMetadata,omitempty"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// PinJSON pins a JSON document and returns its CID. The CID is what goes on
// chain; the document itself never touches the contract.
func (c *Client) PinJSON(ctx context.Context, name string, doc any) (string, error) {
	payload, err := json.Marshal(pinRequest{
		PinataContent:  doc,
		PinataMetadata: map[string]any{"name": name},
	})
	if err != nil {
		return "", fmt.Errorf("pinata: marshal metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/pinning/pinJSONToIPFS", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("pinata: build pin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.jwt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinata: pin metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("pinata: pin metadata: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("pinata: decode pin response: %w", err)
	}
	if result.IpfsHash == "" {
		return "", fmt.Errorf("pinata: pin response missing hash")
	}

	c.logger.Debug("metadata pinned", slog.String("cid", result.IpfsHash), slog.String("name", name))
	return result.IpfsHash, nil
}

// FetchMetadata retrieves a pinned metadata document by CID through the
// gateway.
func (c *Client) FetchMetadata(ctx context.Context, cid string) (domain.ListingMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gateway+"/"+cid, nil)
	if err != nil {
		return domain.ListingMetadata{}, fmt.Errorf("pinata: build fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ListingMetadata{}, fmt.Errorf("pinata: fetch %s: %w", cid, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ListingMetadata{}, fmt.Errorf("pinata: cid %s: %w", cid, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.ListingMetadata{}, fmt.Errorf("pinata: fetch %s: HTTP %d", cid, resp.StatusCode)
	}

	var meta domain.ListingMetadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataSize)).Decode(&meta); err != nil {
		return domain.ListingMetadata{}, fmt.Errorf("pinata: decode metadata %s: %w", cid, err)
	}
	return meta, nil
}
