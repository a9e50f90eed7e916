package domain

// Order Statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusReturned   = "returned"
)

// Shipping Statuses (nested shipping state; may lag or lead the order status)
const (
	ShippingStatusPending    = "pending"
	ShippingStatusProcessing = "processing"
	ShippingStatusShipped    = "shipped"
	ShippingStatusDelivered  = "delivered"
	ShippingStatusCancelled  = "cancelled"
)

// Payment Statuses
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
	PaymentStatusFailed   = "failed"
)

// Payment Methods
const (
	PaymentMethodCOD    = "cod"
	PaymentMethodOnline = "online"
)

// Return Statuses - strictly ordered pipeline, see ReturnStatusWeights
const (
	ReturnStatusRequested       = "requested"
	ReturnStatusPickupScheduled = "pickup_scheduled"
	ReturnStatusPickedUp        = "picked_up"
	ReturnStatusInTransit       = "in_transit"
	ReturnStatusReceived        = "received"
	ReturnStatusInspected       = "inspected"
	ReturnStatusApprovedRefund  = "approved_refund"
	ReturnStatusRefundProcessed = "refund_processed"
	ReturnStatusCompleted       = "completed"
	ReturnStatusCancelled       = "cancelled"
	ReturnStatusPickupFailed    = "pickup_failed"
)

// Refund Statuses
const (
	RefundStatusNotStarted = "not_started"
	RefundStatusProcessing = "processing"
	RefundStatusProcessed  = "processed"
	RefundStatusFailed     = "failed"
)

// Item conditions reported on return intake. Conditions outside the
// auto-approvable set force a manual inspection stop.
const (
	ItemConditionUnused      = "unused"
	ItemConditionLightlyUsed = "lightly_used"
	ItemConditionDamaged     = "damaged"
	ItemConditionDefective   = "defective"
)

// Actor recorded against automated return transitions
const ActorSystemAutomation = "system_automation"

// OrderStatusWeights defines forward-only progress for order states.
// Carriers retry and deliver out of order; a lower-weight status never
// overwrites a higher-weight one.
var OrderStatusWeights = map[string]int{
	OrderStatusPending:    10,
	OrderStatusProcessing: 20,
	OrderStatusShipped:    30,
	OrderStatusDelivered:  40,
	OrderStatusReturned:   50,
	OrderStatusCancelled:  80, // Terminal
}

// ReturnStatusWeights defines the strictly ordered return pipeline.
// The only sanctioned regression is refund_processed -> approved_refund
// on a gateway refund-failure callback.
var ReturnStatusWeights = map[string]int{
	ReturnStatusRequested:       10,
	ReturnStatusPickupScheduled: 20,
	ReturnStatusPickedUp:        30,
	ReturnStatusInTransit:       40,
	ReturnStatusReceived:        50,
	ReturnStatusInspected:       60,
	ReturnStatusApprovedRefund:  70,
	ReturnStatusRefundProcessed: 80,
	ReturnStatusCompleted:       90,
	ReturnStatusCancelled:       100, // Terminal side-exit
	ReturnStatusPickupFailed:    110, // Terminal side-exit, needs manual action
}

// List Exports for API
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturned,
}

var ReturnStatuses = []string{
	ReturnStatusRequested,
	ReturnStatusPickupScheduled,
	ReturnStatusPickedUp,
	ReturnStatusInTransit,
	ReturnStatusReceived,
	ReturnStatusInspected,
	ReturnStatusApprovedRefund,
	ReturnStatusRefundProcessed,
	ReturnStatusCompleted,
	ReturnStatusCancelled,
	ReturnStatusPickupFailed,
}

var PaymentMethods = []string{
	PaymentMethodCOD,
	PaymentMethodOnline,
}

// IsTerminalOrderStatus reports whether no further webhook may move the order.
func IsTerminalOrderStatus(status string) bool {
	return status == OrderStatusDelivered || status == OrderStatusCancelled || status == OrderStatusReturned
}

// IsTerminalReturnStatus reports whether the return pipeline has ended.
func IsTerminalReturnStatus(status string) bool {
	return status == ReturnStatusCompleted || status == ReturnStatusCancelled || status == ReturnStatusPickupFailed
}

// IsAutoApprovableCondition reports whether an item condition allows the
// refund automation to approve without a human look.
func IsAutoApprovableCondition(condition string) bool {
	return condition == ItemConditionUnused || condition == ItemConditionLightlyUsed
}
