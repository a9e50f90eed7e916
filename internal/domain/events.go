package domain

import "time"

// EventSource declares which external system a webhook body came from.
type EventSource string

const (
	SourceCarrierShipment EventSource = "carrier_shipment"
	SourceCarrierReturn   EventSource = "carrier_return"
	SourceGatewayRefund   EventSource = "gateway_refund"
)

// ShipmentEvent is the normalized carrier webhook payload. Fields absent in
// the source payload stay unset - never defaulted to a valid-looking value.
type ShipmentEvent struct {
	Source          EventSource
	ShipmentID      string
	CarrierOrderID  string
	AWB             string
	OrderNumberHint string // split off a composite channel order id
	StatusCode      int
	HasStatusCode   bool
	StatusLabel     string
	Timestamp       time.Time
	Location        string
	CourierName     string
	EstimatedDate   *time.Time
	Scans           []Scan
}

// Scan is one raw carrier scan row inside a webhook or tracking pull.
type Scan struct {
	Activity string
	Location string
	Date     time.Time
}

// RefundEvent is the normalized payment-gateway refund webhook payload.
type RefundEvent struct {
	Event         string // e.g. refund.processed, refund.failed
	RefundID      string
	PaymentID     string
	GatewayStatus string
	Speed         string
	AmountPaise   int64
	Notes         map[string]string
}
