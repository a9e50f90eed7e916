package carrier

import (
	"strings"

	"aurika-backend/internal/domain"
)

// StatusMapping is the canonical translation of one carrier numeric code.
type StatusMapping struct {
	Label          string
	ShippingStatus string
	OrderStatus    string
}

// shipmentStatusTable is the single source of truth for carrier numeric
// status codes. Both the webhook path and the manual resync path translate
// through this table; divergence between the two is a bug class.
var shipmentStatusTable = map[int]StatusMapping{
	1:  {"AWB Assigned", domain.ShippingStatusProcessing, domain.OrderStatusProcessing},
	2:  {"Label Generated", domain.ShippingStatusProcessing, domain.OrderStatusProcessing},
	3:  {"Pickup Scheduled", domain.ShippingStatusProcessing, domain.OrderStatusProcessing},
	4:  {"Pickup Queued", domain.ShippingStatusProcessing, domain.OrderStatusProcessing},
	5:  {"Manifest Generated", domain.ShippingStatusProcessing, domain.OrderStatusProcessing},
	6:  {"Shipped", domain.ShippingStatusShipped, domain.OrderStatusShipped},
	7:  {"Delivered", domain.ShippingStatusDelivered, domain.OrderStatusDelivered},
	8:  {"Cancelled", domain.ShippingStatusCancelled, domain.OrderStatusCancelled},
	9:  {"RTO Initiated", domain.ShippingStatusCancelled, domain.OrderStatusCancelled},
	10: {"RTO Delivered", domain.ShippingStatusCancelled, domain.OrderStatusCancelled},
	12: {"Lost", domain.ShippingStatusCancelled, domain.OrderStatusCancelled},
	13: {"Pickup Error", domain.ShippingStatusProcessing, domain.OrderStatusProcessing},
	15: {"Pickup Rescheduled", domain.ShippingStatusProcessing, domain.OrderStatusProcessing},
	17: {"Out For Delivery", domain.ShippingStatusShipped, domain.OrderStatusShipped},
	18: {"In Transit", domain.ShippingStatusShipped, domain.OrderStatusShipped},
	19: {"Out For Pickup", domain.ShippingStatusProcessing, domain.OrderStatusProcessing},
	20: {"Pickup Exception", domain.ShippingStatusProcessing, domain.OrderStatusProcessing},
	21: {"Undelivered", domain.ShippingStatusShipped, domain.OrderStatusShipped},
	22: {"Delayed", domain.ShippingStatusShipped, domain.OrderStatusShipped},
	25: {"Partial Delivered", domain.ShippingStatusDelivered, domain.OrderStatusDelivered},
	26: {"Destroyed", domain.ShippingStatusCancelled, domain.OrderStatusCancelled},
	27: {"Damaged", domain.ShippingStatusCancelled, domain.OrderStatusCancelled},
	38: {"Reached Destination Hub", domain.ShippingStatusShipped, domain.OrderStatusShipped},
	42: {"Picked Up", domain.ShippingStatusShipped, domain.OrderStatusShipped},
}

// TranslateShipmentCode maps a carrier numeric status code to the canonical
// {ShippingStatus, OrderStatus} pair. ok is false for unmapped codes; the
// caller must record the scan in history without touching the status.
func TranslateShipmentCode(code int) (StatusMapping, bool) {
	m, ok := shipmentStatusTable[code]
	return m, ok
}

// returnStatusTable maps carrier return-flow status strings (uppercased,
// whitespace collapsed) to the canonical ReturnStatus.
var returnStatusTable = map[string]string{
	"RETURN INITIATED":        domain.ReturnStatusRequested,
	"RETURN PICKUP SCHEDULED": domain.ReturnStatusPickupScheduled,
	"PICKUP SCHEDULED":        domain.ReturnStatusPickupScheduled,
	"RETURN PICKUP QUEUED":    domain.ReturnStatusPickupScheduled,
	"OUT FOR PICKUP":          domain.ReturnStatusPickupScheduled,
	"RETURN PICKED UP":        domain.ReturnStatusPickedUp,
	"PICKED UP":               domain.ReturnStatusPickedUp,
	"RETURN IN TRANSIT":       domain.ReturnStatusInTransit,
	"IN TRANSIT":              domain.ReturnStatusInTransit,
	"RETURN OUT FOR DELIVERY": domain.ReturnStatusInTransit,
	"RETURN DELIVERED":        domain.ReturnStatusReceived,
	"DELIVERED TO ORIGIN":     domain.ReturnStatusReceived,
	"DELIVERED":               domain.ReturnStatusReceived,
	"RETURN PICKUP ERROR":     domain.ReturnStatusPickupFailed,
	"PICKUP EXCEPTION":        domain.ReturnStatusPickupFailed,
	"PICKUP FAILED":           domain.ReturnStatusPickupFailed,
	"RETURN CANCELLED":        domain.ReturnStatusCancelled,
	"CANCELLED":               domain.ReturnStatusCancelled,
}

// TranslateReturnStatus maps a carrier return status string to the canonical
// ReturnStatus. Matching is case- and whitespace-insensitive.
func TranslateReturnStatus(raw string) (string, bool) {
	key := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	st, ok := returnStatusTable[key]
	return st, ok
}
