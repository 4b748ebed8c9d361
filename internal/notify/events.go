package notify

import (
	"context"
	"fmt"

	"github.com/openharvest/harvestd/internal/domain"
)

// Event type names used to filter operator notifications.
const (
	EventOperationFailed = "operation_failed"
	EventOrderDisputed   = "order_disputed"
	EventError           = "error"
)

// OperationFailed alerts operators about a terminally failed gasless
// operation. Cancelled signatures are skipped: a user dismissing a prompt is
// routine, not an incident.
func (n *Notifier) OperationFailed(ctx context.Context, op domain.Operation) error {
	if op.ErrorKind == domain.ErrKindSignatureCancelled {
		return nil
	}

	return n.Publish(ctx, Alert{
		Event: EventOperationFailed,
		Title: fmt.Sprintf("Gasless operation failed: %s.%s", op.Target, op.Function),
		Body: fmt.Sprintf(
			"operation %s\nsigner %s\nerror %s: %s\nattempts %d",
			op.ID, op.Signer, op.ErrorKind, op.ErrorDetail, op.Attempts,
		),
	})
}

// OrderDisputed alerts operators that a buyer or seller raised a dispute.
func (n *Notifier) OrderDisputed(ctx context.Context, order domain.Order, txHash string) error {
	return n.Publish(ctx, Alert{
		Event: EventOrderDisputed,
		Title: fmt.Sprintf("Order %d disputed", order.ID),
		Body: fmt.Sprintf(
			"listing %d\nbuyer %s\nseller %s\ntx %s",
			order.ListingID, order.Buyer, order.Seller, txHash,
		),
	})
}
