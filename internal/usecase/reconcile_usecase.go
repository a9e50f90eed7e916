package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aurika-backend/internal/domain"
	"aurika-backend/internal/infrastructure/carrier"
	"aurika-backend/pkg/logger"
)

// CarrierTracker is the slice of the carrier query API used by manual resync.
type CarrierTracker interface {
	TrackByShipmentID(ctx context.Context, shipmentID string) (*domain.ShipmentEvent, error)
	TrackByCarrierOrderID(ctx context.Context, carrierOrderID string) (*domain.ShipmentEvent, error)
	TrackByAWB(ctx context.Context, awb string) (*domain.ShipmentEvent, error)
}

// ReconcileUsecase keeps Order and Return records consistent with the
// carrier's pushed and pulled state. Every mutation goes through conditional
// repository writes, so concurrent webhook deliveries for the same record
// are safe without application-level locks.
type ReconcileUsecase struct {
	orderRepo  domain.OrderRepository
	returnRepo domain.ReturnRepository
	refundUC   *RefundUsecase
	tracker    CarrierTracker
	txManager  domain.TransactionManager
	txLog      *TxLogger
}

func NewReconcileUsecase(
	orderRepo domain.OrderRepository,
	returnRepo domain.ReturnRepository,
	refundUC *RefundUsecase,
	tracker CarrierTracker,
	txManager domain.TransactionManager,
	txLog *TxLogger,
) *ReconcileUsecase {
	return &ReconcileUsecase{
		orderRepo:  orderRepo,
		returnRepo: returnRepo,
		refundUC:   refundUC,
		tracker:    tracker,
		txManager:  txManager,
		txLog:      txLog,
	}
}

// --- Identifier Resolution ---

// ResolveOrder locates the order a shipment event belongs to, trying
// identifiers from most to least specific: shipment ID, AWB, carrier order
// ID, then the order-number prefix split off a composite channel id.
// ErrNotFound is a benign outcome, not a failure.
func (u *ReconcileUsecase) ResolveOrder(ctx context.Context, ev *domain.ShipmentEvent) (*domain.Order, error) {
	if ev.ShipmentID != "" {
		order, err := u.orderRepo.GetByShipmentID(ctx, ev.ShipmentID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if ev.AWB != "" {
		order, err := u.orderRepo.GetByAWB(ctx, ev.AWB)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if ev.CarrierOrderID != "" {
		order, err := u.orderRepo.GetByCarrierOrderID(ctx, ev.CarrierOrderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if ev.OrderNumberHint != "" {
		// Channel order ids arrive as "<orderNumber>_<suffix>".
		orderNumber := strings.SplitN(ev.OrderNumberHint, "_", 2)[0]
		order, err := u.orderRepo.GetByOrderNumber(ctx, orderNumber)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrNotFound
}

// ResolveReturn locates the return a carrier return event belongs to.
func (u *ReconcileUsecase) ResolveReturn(ctx context.Context, ev *domain.ShipmentEvent) (*domain.Return, error) {
	if ev.ShipmentID != "" {
		ret, err := u.returnRepo.GetByShipmentID(ctx, ev.ShipmentID)
		if err == nil {
			return ret, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if ev.AWB != "" {
		ret, err := u.returnRepo.GetByAWB(ctx, ev.AWB)
		if err == nil {
			return ret, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrNotFound
}

// --- Shipment Transitions ---

// ProcessShipmentEvent resolves and applies one normalized carrier shipment
// event. A no-match resolution returns ErrNotFound; all other errors are
// real failures.
func (u *ReconcileUsecase) ProcessShipmentEvent(ctx context.Context, ev *domain.ShipmentEvent) error {
	order, err := u.ResolveOrder(ctx, ev)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Info().
				Str("shipment_id", ev.ShipmentID).
				Str("awb", ev.AWB).
				Msg("Shipment event matches no order, ignoring")
			return domain.ErrNotFound
		}
		return err
	}

	updated, newStatus, err := u.ApplyShipmentEvent(ctx, order, ev)
	if err != nil {
		return err
	}

	if updated {
		u.txLog.Info(ctx, domain.TxTypeStatusTransition,
			fmt.Sprintf("Order %s moved to %s by carrier event", order.OrderNumber, newStatus),
			domain.JSONB{
				"orderId":    order.ID,
				"newStatus":  newStatus,
				"statusCode": ev.StatusCode,
			})
	}
	return nil
}

// ApplyShipmentEvent validates and applies a carrier status transition to an
// order. It is idempotent: replaying an already-seen (timestamp, statusCode)
// tracking entry is a no-op, and re-applying the current status only
// refreshes secondary fields. Status never regresses under carrier
// authority; out-of-order events land in tracking history only.
func (u *ReconcileUsecase) ApplyShipmentEvent(ctx context.Context, order *domain.Order, ev *domain.ShipmentEvent) (bool, string, error) {
	patch := domain.ShipmentPatch{
		OrderID:        order.ID,
		TrackingEvents: buildTrackingEvents(ev),
	}
	if ev.CourierName != "" {
		courier := ev.CourierName
		patch.CourierName = &courier
	}
	if ev.EstimatedDate != nil {
		patch.EstimatedDate = ev.EstimatedDate
	}

	mapping, mapped := carrier.StatusMapping{}, false
	if ev.HasStatusCode {
		mapping, mapped = carrier.TranslateShipmentCode(ev.StatusCode)
	}

	if !mapped {
		// Unmapped code: record the scans, never guess a status.
		gap := &domain.TranslationGap{StatusCode: ev.StatusCode, StatusLabel: ev.StatusLabel}
		logger.Info().
			Str("order_number", order.OrderNumber).
			Int("status_code", ev.StatusCode).
			Msg(gap.Error())
		updated, err := u.persistPatch(ctx, order, patch, "")
		return updated, order.Status, err
	}

	if domain.IsTerminalOrderStatus(order.Status) && mapping.OrderStatus != order.Status {
		// Delivered, cancelled and returned orders are settled; late carrier
		// chatter only lands in tracking history.
		_, err := u.persistPatch(ctx, order, patch, "")
		return false, order.Status, err
	}

	currentWeight := domain.OrderStatusWeights[order.Status]
	newWeight := domain.OrderStatusWeights[mapping.OrderStatus]

	switch {
	case newWeight > currentWeight:
		newStatus := mapping.OrderStatus
		newShipping := mapping.ShippingStatus
		patch.NewStatus = &newStatus
		patch.NewShippingStatus = &newShipping
		// Payment is collected at the door for COD, so delivery confirmation
		// is payment confirmation.
		if mapping.OrderStatus == domain.OrderStatusDelivered &&
			order.PaymentMethod == domain.PaymentMethodCOD &&
			order.PaymentStatus != domain.PaymentStatusPaid {
			patch.MarkPaid = true
		}
		updated, err := u.persistPatch(ctx, order, patch, mapping.Label)
		if err != nil {
			return false, order.Status, err
		}
		if updated && patch.MarkPaid {
			u.txLog.Info(ctx, domain.TxTypePaymentCaptured,
				fmt.Sprintf("COD payment collected on delivery for order %s", order.OrderNumber),
				domain.JSONB{"orderId": order.ID})
		}
		return updated, mapping.OrderStatus, nil

	case newWeight == currentWeight:
		// Replay of the current status: history dedup plus secondary fields.
		updated, err := u.persistPatch(ctx, order, patch, "")
		return updated, order.Status, err

	default:
		// Out-of-order delivery. History keeps the scan, status stands.
		logger.Info().
			Str("order_number", order.OrderNumber).
			Str("current_status", order.Status).
			Str("event_status", mapping.OrderStatus).
			Msg("Ignoring carrier event behind current pipeline stage")
		_, err := u.persistPatch(ctx, order, patch, "")
		return false, order.Status, err
	}
}

// persistPatch commits the patch and, when the status moved, the matching
// history entry in one transaction. Either everything lands or nothing does.
func (u *ReconcileUsecase) persistPatch(ctx context.Context, order *domain.Order, patch domain.ShipmentPatch, label string) (bool, error) {
	var statusChanged bool
	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		changed, err := u.orderRepo.ApplyShipmentPatch(txCtx, patch)
		if err != nil {
			return err
		}
		statusChanged = changed

		if changed && patch.NewStatus != nil {
			prev := order.Status
			reason := fmt.Sprintf("Carrier: %s", label)
			actor := domain.ActorSystemAutomation
			return u.orderRepo.CreateOrderHistory(txCtx, &domain.OrderHistory{
				OrderID:        order.ID,
				PreviousStatus: &prev,
				NewStatus:      *patch.NewStatus,
				Reason:         &reason,
				CreatedBy:      &actor,
			})
		}
		return nil
	})
	if err != nil {
		return false, &domain.PersistenceFailure{Op: "apply shipment patch", Err: err}
	}
	return statusChanged, nil
}

func buildTrackingEvents(ev *domain.ShipmentEvent) []domain.TrackingEvent {
	events := make([]domain.TrackingEvent, 0, len(ev.Scans)+1)
	for _, scan := range ev.Scans {
		events = append(events, domain.TrackingEvent{
			Activity:    scan.Activity,
			Location:    scan.Location,
			Timestamp:   scan.Date,
			StatusCode:  ev.StatusCode,
			StatusLabel: ev.StatusLabel,
		})
	}
	if len(events) == 0 && !ev.Timestamp.IsZero() {
		events = append(events, domain.TrackingEvent{
			Activity:    ev.StatusLabel,
			Location:    ev.Location,
			Timestamp:   ev.Timestamp,
			StatusCode:  ev.StatusCode,
			StatusLabel: ev.StatusLabel,
		})
	}
	return events
}

// --- Return Transitions ---

// ProcessReturnEvent resolves and applies one carrier return-flow event,
// and fires the refund orchestrator when the return reaches received.
func (u *ReconcileUsecase) ProcessReturnEvent(ctx context.Context, ev *domain.ShipmentEvent) error {
	ret, err := u.ResolveReturn(ctx, ev)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Info().
				Str("shipment_id", ev.ShipmentID).
				Str("awb", ev.AWB).
				Msg("Return event matches no return, ignoring")
			return domain.ErrNotFound
		}
		return err
	}

	newStatus, ok := carrier.TranslateReturnStatus(ev.StatusLabel)
	if !ok {
		// Unrecognized carrier vocabulary: annotate, do not guess.
		logger.Info().
			Str("return_number", ret.ReturnNumber).
			Str("carrier_status", ev.StatusLabel).
			Msg("Unmapped carrier return status")
		return u.returnRepo.AppendAdminNote(ctx, ret.ID, domain.AdminNote{
			Note:   fmt.Sprintf("Carrier sent unrecognized return status %q; status left at %s", ev.StatusLabel, ret.Status),
			Author: domain.ActorSystemAutomation,
		})
	}

	if domain.IsTerminalReturnStatus(ret.Status) {
		logger.Info().
			Str("return_number", ret.ReturnNumber).
			Str("status", ret.Status).
			Msg("Return already terminal, carrier event ignored")
		return nil
	}

	currentWeight := domain.ReturnStatusWeights[ret.Status]
	newWeight := domain.ReturnStatusWeights[newStatus]
	if newWeight <= currentWeight {
		return nil
	}

	moved, err := u.advanceReturn(ctx, ret, ret.Status, newStatus, fmt.Sprintf("Carrier: %s", ev.StatusLabel))
	if err != nil {
		return err
	}
	if !moved {
		// A concurrent delivery won the guard; nothing left to do here.
		return nil
	}

	u.txLog.Info(ctx, domain.TxTypeStatusTransition,
		fmt.Sprintf("Return %s moved to %s by carrier event", ret.ReturnNumber, newStatus),
		domain.JSONB{"returnId": ret.ID, "newStatus": newStatus})

	if newStatus == domain.ReturnStatusReceived {
		ret.Status = domain.ReturnStatusReceived
		return u.refundUC.OnReturnReceived(ctx, ret)
	}
	if newStatus == domain.ReturnStatusPickupFailed {
		u.txLog.Warn(ctx, domain.TxTypeManualIntervention,
			fmt.Sprintf("Return %s pickup failed, manual action required", ret.ReturnNumber),
			domain.JSONB{"returnId": ret.ID})
	}
	return nil
}

func (u *ReconcileUsecase) advanceReturn(ctx context.Context, ret *domain.Return, from, to, reason string) (bool, error) {
	var moved bool
	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		ok, err := u.returnRepo.UpdateStatusIf(txCtx, ret.ID, from, to)
		if err != nil {
			return err
		}
		moved = ok
		if !ok {
			return nil
		}
		prev := from
		return u.returnRepo.CreateTransition(txCtx, &domain.ReturnTransition{
			ReturnID:       ret.ID,
			PreviousStatus: &prev,
			NewStatus:      to,
			Actor:          domain.ActorSystemAutomation,
			Reason:         &reason,
		})
	})
	if err != nil {
		return false, &domain.PersistenceFailure{Op: "advance return", Err: err}
	}
	return moved, nil
}

// --- Manual Resync ---

// ResyncOrderTracking forces a fresh pull from the carrier's query API using
// the order's identifiers in resolver priority order, then applies the
// result through the same transition path the webhook uses.
func (u *ReconcileUsecase) ResyncOrderTracking(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := u.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var ev *domain.ShipmentEvent
	switch {
	case order.Shipping.ShipmentID != nil && *order.Shipping.ShipmentID != "":
		ev, err = u.tracker.TrackByShipmentID(ctx, *order.Shipping.ShipmentID)
	case order.Shipping.CarrierOrderID != nil && *order.Shipping.CarrierOrderID != "":
		ev, err = u.tracker.TrackByCarrierOrderID(ctx, *order.Shipping.CarrierOrderID)
	case order.Shipping.AWBCode != nil && *order.Shipping.AWBCode != "":
		ev, err = u.tracker.TrackByAWB(ctx, *order.Shipping.AWBCode)
	default:
		return nil, fmt.Errorf("order %s has no carrier identifiers to sync with", order.OrderNumber)
	}
	if err != nil {
		return nil, err
	}

	if _, _, err := u.ApplyShipmentEvent(ctx, order, ev); err != nil {
		return nil, err
	}
	return u.orderRepo.GetByID(ctx, orderID)
}
