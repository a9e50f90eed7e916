package domain

import (
	"context"
	"time"
)

// Transaction log levels
const (
	TxLogLevelInfo    = "info"
	TxLogLevelWarning = "warning"
	TxLogLevelError   = "error"
)

// Transaction types covered by the audit log
const (
	TxTypeOrderCreated       = "order_created"
	TxTypePaymentCaptured    = "payment_captured"
	TxTypeShipmentCreated    = "shipment_created"
	TxTypeShipmentFailed     = "shipment_failed"
	TxTypeStatusTransition   = "status_transition"
	TxTypeRefundInitiated    = "refund_initiated"
	TxTypeRefundSucceeded    = "refund_succeeded"
	TxTypeRefundFailed       = "refund_failed"
	TxTypeOrderCancelled     = "order_cancelled"
	TxTypeManualIntervention = "manual_intervention"
)

// TransactionLog is one append-only structured audit entry. Writing it is
// best-effort relative to the primary state mutation.
type TransactionLog struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	TxType    string    `json:"txType"`
	Message   string    `json:"message"`
	Payload   JSONB     `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

type TransactionLogFilter struct {
	Page   int
	Limit  int
	Level  string
	TxType string
}

type TransactionLogRepository interface {
	Append(ctx context.Context, entry *TransactionLog) error
	GetAll(ctx context.Context, filter TransactionLogFilter) ([]TransactionLog, int64, error)
}
