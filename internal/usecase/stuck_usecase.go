package usecase

import (
	"context"
	"fmt"
	"time"

	"aurika-backend/internal/domain"
)

// Stuck-entity priority buckets
const (
	StuckPriorityCritical = "critical"
	StuckPriorityHigh     = "high"
	StuckPriorityMedium   = "medium"
)

// UrgentNoteMarker flags a record for the detector via its admin notes.
const UrgentNoteMarker = "URGENT"

// StuckThresholds configures the divergence windows.
type StuckThresholds struct {
	UnshippedAfter      time.Duration // paid online, no shipment identifier
	PendingPaidAfter    time.Duration // still pending with payment captured
	CancelledPaidWindow time.Duration // cancelled recently with payment captured
}

// StuckEntity is one record whose automation has silently stalled.
type StuckEntity struct {
	EntityType    string  `json:"entityType"` // order or return
	ID            string  `json:"id"`
	Number        string  `json:"number"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"paymentStatus,omitempty"`
	RefundStatus  string  `json:"refundStatus,omitempty"`
	AgeHours      float64 `json:"ageHours"`
	Reason        string  `json:"reason"`
	Hint          string  `json:"hint"`
}

// StuckReport groups detected records by remediation priority.
type StuckReport struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	Critical    []StuckEntity `json:"critical"`
	High        []StuckEntity `json:"high"`
	Medium      []StuckEntity `json:"medium"`
	Total       int           `json:"total"`
}

// StuckUsecase is a read-only diagnostic surface over persisted state. It
// never mutates anything.
type StuckUsecase struct {
	orderRepo  domain.OrderRepository
	returnRepo domain.ReturnRepository
	thresholds StuckThresholds
}

func NewStuckUsecase(orderRepo domain.OrderRepository, returnRepo domain.ReturnRepository, thresholds StuckThresholds) *StuckUsecase {
	return &StuckUsecase{
		orderRepo:  orderRepo,
		returnRepo: returnRepo,
		thresholds: thresholds,
	}
}

// Report scans orders and returns for the known divergence patterns.
func (u *StuckUsecase) Report(ctx context.Context) (*StuckReport, error) {
	report := &StuckReport{GeneratedAt: time.Now().UTC()}

	unshipped, err := u.orderRepo.FindPaidUnshipped(ctx, u.thresholds.UnshippedAfter)
	if err != nil {
		return nil, err
	}
	for _, row := range unshipped {
		report.add(StuckPriorityCritical, orderEntity(row,
			"Online payment captured but no shipment was ever created",
			"Create the shipment at the carrier or refund the customer"))
	}

	cancelledPaid, err := u.orderRepo.FindCancelledPaid(ctx, u.thresholds.CancelledPaidWindow)
	if err != nil {
		return nil, err
	}
	for _, row := range cancelledPaid {
		report.add(StuckPriorityCritical, orderEntity(row,
			"Order cancelled while the payment is still captured",
			"Issue a refund for the captured amount"))
	}

	stuckRefunds, err := u.returnRepo.FindStuckRefunds(ctx, u.thresholds.PendingPaidAfter)
	if err != nil {
		return nil, err
	}
	for _, ret := range stuckRefunds {
		report.add(StuckPriorityCritical, returnEntity(ret,
			"Refund approved but the gateway call failed or was never confirmed",
			"Review the admin notes and retry the refund"))
	}

	pendingPaid, err := u.orderRepo.FindPendingPaid(ctx, u.thresholds.PendingPaidAfter)
	if err != nil {
		return nil, err
	}
	for _, row := range pendingPaid {
		report.add(StuckPriorityHigh, orderEntity(row,
			"Order paid but still pending past the processing window",
			"Confirm stock and move the order to processing"))
	}

	pickupFailed, err := u.returnRepo.FindPickupFailed(ctx)
	if err != nil {
		return nil, err
	}
	for _, ret := range pickupFailed {
		report.add(StuckPriorityMedium, returnEntity(ret,
			"Carrier could not pick the return up",
			"Reschedule the pickup with the carrier or cancel the return"))
	}

	flagged, err := u.orderRepo.FindUrgentFlagged(ctx, UrgentNoteMarker)
	if err != nil {
		return nil, err
	}
	for _, row := range flagged {
		report.add(StuckPriorityMedium, orderEntity(row,
			fmt.Sprintf("Flagged for attention: %s", row.MatchedNote),
			"Review the note and clear the flag once handled"))
	}

	return report, nil
}

func (r *StuckReport) add(priority string, e StuckEntity) {
	switch priority {
	case StuckPriorityCritical:
		r.Critical = append(r.Critical, e)
	case StuckPriorityHigh:
		r.High = append(r.High, e)
	default:
		r.Medium = append(r.Medium, e)
	}
	r.Total++
}

func orderEntity(row domain.StuckOrderRow, reason, hint string) StuckEntity {
	return StuckEntity{
		EntityType:    "order",
		ID:            row.Order.ID,
		Number:        row.Order.OrderNumber,
		Status:        row.Order.Status,
		PaymentStatus: row.Order.PaymentStatus,
		AgeHours:      row.AgeHours,
		Reason:        reason,
		Hint:          hint,
	}
}

func returnEntity(ret domain.Return, reason, hint string) StuckEntity {
	return StuckEntity{
		EntityType:   "return",
		ID:           ret.ID,
		Number:       ret.ReturnNumber,
		Status:       ret.Status,
		RefundStatus: ret.RefundStatus,
		AgeHours:     time.Since(ret.UpdatedAt).Hours(),
		Reason:       reason,
		Hint:         hint,
	}
}
