package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openharvest/harvestd/internal/domain"
)

type recordingSender struct {
	name   string
	alerts []Alert
	err    error
}

func (s *recordingSender) Send(_ context.Context, alert Alert) error {
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func (s *recordingSender) titles() []string {
	out := make([]string, len(s.alerts))
	for i, a := range s.alerts {
		out[i] = a.Title
	}
	return out
}

func TestPublishFiltersByEvent(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{EventOperationFailed}, slog.Default())

	require.NoError(t, n.Publish(context.Background(), Alert{Event: EventOperationFailed, Title: "failed"}))
	require.NoError(t, n.Publish(context.Background(), Alert{Event: EventOrderDisputed, Title: "disputed"}))

	require.Equal(t, []string{"failed"}, sender.titles())
}

func TestPublishEmptySubscriptionAllowsAll(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, slog.Default())

	require.NoError(t, n.Publish(context.Background(), Alert{Event: "anything", Title: "t1"}))
	require.NoError(t, n.Publish(context.Background(), Alert{Event: EventError, Title: "t2"}))
	require.Equal(t, []string{"t1", "t2"}, sender.titles())
}

// One failing channel must not block delivery to the others.
func TestPublishContinuesPastFailedSender(t *testing.T) {
	broken := &recordingSender{name: "telegram", err: errors.New("api down")}
	working := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{broken, working}, nil, slog.Default())

	err := n.Publish(context.Background(), Alert{Event: EventError, Title: "title"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "telegram")
	require.Equal(t, []string{"title"}, working.titles())
}

func TestPublishNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, slog.Default())
	require.NoError(t, n.Publish(context.Background(), Alert{Event: EventError, Title: "t"}))
}

func TestOperationFailedSkipsCancelledSignatures(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{EventOperationFailed}, slog.Default())

	cancelled := domain.Operation{
		ID:        "op-1",
		Target:    domain.TargetMarketplace,
		Function:  "acceptOrder",
		ErrorKind: domain.ErrKindSignatureCancelled,
	}
	require.NoError(t, n.OperationFailed(context.Background(), cancelled))
	require.Empty(t, sender.alerts, "a dismissed prompt is routine, not an incident")

	failed := cancelled
	failed.ErrorKind = domain.ErrKindOnChainReverted
	failed.ErrorDetail = "Order: already accepted"
	require.NoError(t, n.OperationFailed(context.Background(), failed))
	require.Len(t, sender.alerts, 1)
	require.Equal(t, EventOperationFailed, sender.alerts[0].Event)
	require.Contains(t, sender.alerts[0].Title, "marketplace.acceptOrder")
}

func TestOrderDisputed(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{EventOrderDisputed}, slog.Default())

	err := n.OrderDisputed(context.Background(), domain.Order{ID: 4, ListingID: 7}, "0xabc")
	require.NoError(t, err)
	require.Len(t, sender.alerts, 1)
	require.Equal(t, "Order 4 disputed", sender.alerts[0].Title)
	require.Contains(t, sender.alerts[0].Body, "0xabc")
}
