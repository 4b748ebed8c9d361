package domain

import "time"

// OrderStatus mirrors the marketplace contract's order state machine. The
// contract is authoritative; these values exist for dashboards and audit.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusDisputed  OrderStatus = "disputed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a buyer's purchase of some quantity of a listing.
type Order struct {
	ID        uint64 // on-chain order id
	ListingID uint64
	Buyer     string // 0x address
	Seller    string // 0x address
	Quantity  uint64
	Total     string // smallest-unit decimal string
	Status    OrderStatus
	TxHash    string // transaction that last moved the order
	CreatedAt time.Time
	UpdatedAt time.Time
}
