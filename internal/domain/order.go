package domain

import (
	"context"
	"time"
)

type OrderFilter struct {
	Page          int
	Limit         int
	Status        string
	PaymentStatus string
	Search        string
}

// --- Order Entities ---

type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"orderNumber"` // human-readable, unique
	UserID          string          `json:"userId"`
	User            User            `json:"user"`
	Status          string          `json:"status"`
	TotalAmount     float64         `json:"totalAmount"`
	ShippingFee     float64         `json:"shippingFee"`
	ShippingAddress JSONB           `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"` // cod, online
	PaymentStatus   string          `json:"paymentStatus"`
	PaymentID       *string         `json:"paymentId"` // gateway payment id, online only
	Shipping        ShippingInfo    `json:"shipping"`
	TrackingHistory []TrackingEvent `json:"trackingHistory"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ShippingInfo carries the carrier-side identifiers and state for an order.
// Any subset of the identifiers may be unset: the carrier assigns them at
// different points of the shipment lifecycle.
type ShippingInfo struct {
	Status         string     `json:"status"` // processing, shipped, delivered, cancelled, pending
	ShipmentID     *string    `json:"shipmentId"`
	CarrierOrderID *string    `json:"carrierOrderId"`
	AWBCode        *string    `json:"awbCode"`
	CourierName    *string    `json:"courierName"`
	EstimatedDate  *time.Time `json:"estimatedDate"`
}

// TrackingEvent is one carrier scan in the order's append-only history.
// Uniqueness invariant: no two entries share (Timestamp, StatusCode).
type TrackingEvent struct {
	Activity    string    `json:"activity"`
	Location    string    `json:"location"`
	Timestamp   time.Time `json:"timestamp"`
	StatusCode  int       `json:"statusCode"`
	StatusLabel string    `json:"statusLabel"`
}

type OrderItem struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"orderId"`
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"` // Price at time of purchase
}

type OrderHistory struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"orderId"`
	PreviousStatus *string   `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	Reason         *string   `json:"reason"`
	CreatedBy      *string   `json:"createdBy"` // UserID or system actor
	CreatedAt      time.Time `json:"createdAt"`
}

// ShipmentPatch is the conditional write applied by the transition engine.
// The repository commits it atomically and only while the order's status
// weight has not moved past ExpectedMaxWeight (concurrent webhook safety).
type ShipmentPatch struct {
	OrderID           string
	NewStatus         *string // nil: history/secondary-only update
	NewShippingStatus *string
	CourierName       *string
	EstimatedDate     *time.Time
	MarkPaid          bool // COD collected on delivery
	TrackingEvents    []TrackingEvent
}

// StuckOrderRow is the raw divergence row surfaced by the detector queries.
type StuckOrderRow struct {
	Order       Order
	HasShipment bool
	AgeHours    float64
	MatchedNote string
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*Order, error)
	GetByShipmentID(ctx context.Context, shipmentID string) (*Order, error)
	GetByCarrierOrderID(ctx context.Context, carrierOrderID string) (*Order, error)
	GetByAWB(ctx context.Context, awb string) (*Order, error)
	GetByUserID(ctx context.Context, userID string) ([]Order, error)
	GetAll(ctx context.Context, filter OrderFilter) ([]Order, int64, error)

	// ApplyShipmentPatch performs the conditional, atomic transition write:
	// status advances only if still behind the patch, tracking events are
	// appended with (timestamp, statusCode) dedup in the same statement set.
	// Returns whether the status row changed.
	ApplyShipmentPatch(ctx context.Context, patch ShipmentPatch) (bool, error)

	UpdateStatus(ctx context.Context, id, status string) error
	UpdatePaymentStatus(ctx context.Context, id, status string) error
	SetPaymentCaptured(ctx context.Context, id, paymentID string) error
	SetShippingIdentifiers(ctx context.Context, id string, info ShippingInfo) error

	CreateOrderHistory(ctx context.Context, history *OrderHistory) error
	GetOrderHistory(ctx context.Context, orderID string) ([]OrderHistory, error)

	// Stuck-entity detector queries (read-only)
	FindPaidUnshipped(ctx context.Context, olderThan time.Duration) ([]StuckOrderRow, error)
	FindPendingPaid(ctx context.Context, olderThan time.Duration) ([]StuckOrderRow, error)
	FindCancelledPaid(ctx context.Context, within time.Duration) ([]StuckOrderRow, error)
	FindUrgentFlagged(ctx context.Context, marker string) ([]StuckOrderRow, error)
}

type TransactionManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
