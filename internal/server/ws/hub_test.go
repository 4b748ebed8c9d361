package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openharvest/harvestd/internal/domain"
)

// channelSource feeds the hub from a plain channel in place of the Redis bus.
type channelSource struct {
	ch chan domain.OperationEvent
}

func (s *channelSource) Subscribe(context.Context) (<-chan domain.OperationEvent, error) {
	return s.ch, nil
}

func newTestHub() (*Hub, *channelSource) {
	src := &channelSource{ch: make(chan domain.OperationEvent, 16)}
	return NewHub(src, slog.Default(), Config{Mode: "serve", StartedAt: time.Now().UTC()}), src
}

func registerClient(t *testing.T, hub *Hub, signers ...string) *client {
	t.Helper()
	c := &client{
		hub:     hub,
		send:    make(chan []byte, sendBufferSize),
		signers: make(map[string]bool),
	}
	for _, s := range signers {
		c.signers[s] = true
	}
	select {
	case hub.register <- c:
	case <-time.After(time.Second):
		t.Fatal("register timed out")
	}
	return c
}

func recvEnvelope(t *testing.T, c *client) (string, json.RawMessage) {
	t.Helper()
	select {
	case data := <-c.send:
		var envelope struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &envelope))
		return envelope.Type, envelope.Payload
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return "", nil
	}
}

func TestHubBroadcastsBusEvents(t *testing.T) {
	hub, src := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := registerClient(t, hub)

	src.ch <- domain.OperationEvent{
		OperationID: "op-1",
		Signer:      "0x2222222222222222222222222222222222222222",
		Target:      domain.TargetMarketplace,
		Function:    "acceptOrder",
		State:       domain.OpSucceeded,
	}

	typ, payload := recvEnvelope(t, c)
	require.Equal(t, "operation_event", typ)

	var ev domain.OperationEvent
	require.NoError(t, json.Unmarshal(payload, &ev))
	require.Equal(t, "op-1", ev.OperationID)
	require.Equal(t, domain.OpSucceeded, ev.State)
}

// A client filtered to one signer only receives that signer's operations;
// signer matching is case-insensitive because addresses arrive in mixed case.
func TestHubSignerFilter(t *testing.T) {
	hub, src := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	all := registerClient(t, hub)
	filtered := registerClient(t, hub, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	src.ch <- domain.OperationEvent{OperationID: "op-other", Signer: "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"}
	src.ch <- domain.OperationEvent{OperationID: "op-mine", Signer: "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}

	// The unfiltered client sees both, in order.
	_, first := recvEnvelope(t, all)
	require.Contains(t, string(first), "op-other")
	_, second := recvEnvelope(t, all)
	require.Contains(t, string(second), "op-mine")

	// The filtered client sees only its own.
	_, only := recvEnvelope(t, filtered)
	require.Contains(t, string(only), "op-mine")
	require.Empty(t, filtered.send)
}

func TestClientFilterMessages(t *testing.T) {
	c := &client{signers: make(map[string]bool)}

	require.True(t, c.wants("0xabc"), "empty filter admits everything")

	c.handleFilter(filterMsg{Action: "filter", Signers: []string{" 0xABC ", ""}})
	require.True(t, c.wants("0xabc"))
	require.True(t, c.wants("0xABC"))
	require.False(t, c.wants("0xdef"))

	c.handleFilter(filterMsg{Action: "clear"})
	require.True(t, c.wants("0xdef"))
}

func TestSendInitialStatus(t *testing.T) {
	hub, _ := newTestHub()
	c := &client{
		hub:     hub,
		send:    make(chan []byte, 1),
		signers: make(map[string]bool),
	}

	c.sendInitialStatus()

	typ, payload := recvEnvelope(t, c)
	require.Equal(t, "relay_status", typ)

	var status struct {
		Mode          string `json:"mode"`
		WSConnected   bool   `json:"ws_connected"`
		UptimeSeconds int64  `json:"uptime_seconds"`
	}
	require.NoError(t, json.Unmarshal(payload, &status))
	require.Equal(t, "serve", status.Mode)
	require.True(t, status.WSConnected)
	require.GreaterOrEqual(t, status.UptimeSeconds, int64(0))
}

func TestRunClosesClientsOnCancel(t *testing.T) {
	hub, _ := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	c := registerClient(t, hub)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)

	_, open := <-c.send
	require.False(t, open, "send channel must be closed on shutdown")
}
