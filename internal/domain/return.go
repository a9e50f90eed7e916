package domain

import (
	"context"
	"time"
)

type ReturnFilter struct {
	Page   int
	Limit  int
	Status string
}

// --- Return Entities ---

// Return is a post-delivery return/refund request tied 1:1 to an Order.
type Return struct {
	ID            string         `json:"id"`
	ReturnNumber  string         `json:"returnNumber"`
	OrderID       string         `json:"orderId"`
	OrderNumber   string         `json:"orderNumber"`
	UserID        string         `json:"userId"`
	Status        string         `json:"status"`
	Shipping      ReturnShipping `json:"shipping"`
	Items         []ReturnItem   `json:"items"`
	RefundDetails RefundDetails  `json:"refundDetails"`
	RefundStatus  string         `json:"refundStatus"`
	// RefundTransactionID is the gateway's refund id. Invariant: set iff
	// RefundStatus != not_started.
	RefundTransactionID *string     `json:"refundTransactionId"`
	RefundAmount        float64     `json:"refundAmount"`
	AdminNotes          []AdminNote `json:"adminNotes"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

type ReturnShipping struct {
	ShipmentID *string `json:"shipmentId"` // return shipment id at the carrier
	AWBCode    *string `json:"awbCode"`
}

type ReturnItem struct {
	ID            string `json:"id"`
	ReturnID      string `json:"returnId"`
	ProductID     string `json:"productId"`
	Quantity      int    `json:"quantity"`
	Reason        string `json:"reason"`
	ItemCondition string `json:"itemCondition"` // drives auto-inspection
}

// RefundDetails holds the customer's payout particulars for COD orders
// refunded by bank transfer; online orders refund to the source payment.
type RefundDetails struct {
	AccountHolder string `json:"accountHolder,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	BankName      string `json:"bankName,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
}

// AdminNote is one entry of the append-only human/system annotation trail.
type AdminNote struct {
	Note      string    `json:"note"`
	Author    string    `json:"author"` // user id or system_automation
	CreatedAt time.Time `json:"createdAt"`
}

// ReturnTransition records one status move with the actor that drove it.
type ReturnTransition struct {
	ID             string    `json:"id"`
	ReturnID       string    `json:"returnId"`
	PreviousStatus *string   `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	Actor          string    `json:"actor"`
	Reason         *string   `json:"reason"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RefundResult is the conditional refund-state write. The repository applies
// it only while the row still matches ExpectedStatus, so a concurrent
// webhook or a retried saga step cannot double-commit.
type RefundResult struct {
	ReturnID            string
	ExpectedStatus      string
	NewStatus           string
	RefundStatus        string
	RefundTransactionID *string
}

type ReturnRepository interface {
	CreateReturn(ctx context.Context, ret *Return) error
	GetByID(ctx context.Context, id string) (*Return, error)
	GetByReturnNumber(ctx context.Context, returnNumber string) (*Return, error)
	GetByOrderID(ctx context.Context, orderID string) (*Return, error)
	GetByShipmentID(ctx context.Context, shipmentID string) (*Return, error)
	GetByAWB(ctx context.Context, awb string) (*Return, error)
	GetByRefundTransactionID(ctx context.Context, refundID string) (*Return, error)
	GetAll(ctx context.Context, filter ReturnFilter) ([]Return, int64, error)

	// UpdateStatusIf advances the return only if the row still holds
	// expectedStatus. Returns false when the guard failed.
	UpdateStatusIf(ctx context.Context, id, expectedStatus, newStatus string) (bool, error)
	ApplyRefundResult(ctx context.Context, res RefundResult) (bool, error)
	SetShippingIdentifiers(ctx context.Context, id string, shipping ReturnShipping) error

	AppendAdminNote(ctx context.Context, id string, note AdminNote) error
	CreateTransition(ctx context.Context, tr *ReturnTransition) error
	GetTransitions(ctx context.Context, returnID string) ([]ReturnTransition, error)

	// Stuck-entity detector queries (read-only)
	FindStuckRefunds(ctx context.Context, olderThan time.Duration) ([]Return, error)
	FindPickupFailed(ctx context.Context) ([]Return, error)
}
