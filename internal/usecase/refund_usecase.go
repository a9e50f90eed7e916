package usecase

import (
	"context"
	"errors"
	"fmt"

	"aurika-backend/internal/domain"
	"aurika-backend/pkg/logger"
)

// RefundGateway is the slice of the payment gateway used by the orchestrator.
type RefundGateway interface {
	Refund(ctx context.Context, paymentID string, amountPaise int64, speed string) (refundID string, err error)
}

// RefundUsecase runs the return -> refund saga: inspection check, gateway
// call, state advancement, failure containment. A refund failure must never
// be silently swallowed as done; the failed return stays at approved_refund
// where the stuck-entity detector will surface it.
type RefundUsecase struct {
	returnRepo  domain.ReturnRepository
	orderRepo   domain.OrderRepository
	gateway     RefundGateway
	txManager   domain.TransactionManager
	txLog       *TxLogger
	refundSpeed string
}

func NewRefundUsecase(
	returnRepo domain.ReturnRepository,
	orderRepo domain.OrderRepository,
	gateway RefundGateway,
	txManager domain.TransactionManager,
	txLog *TxLogger,
	refundSpeed string,
) *RefundUsecase {
	return &RefundUsecase{
		returnRepo:  returnRepo,
		orderRepo:   orderRepo,
		gateway:     gateway,
		txManager:   txManager,
		txLog:       txLog,
		refundSpeed: refundSpeed,
	}
}

// OnReturnReceived is triggered when a return reaches received. Clean item
// conditions auto-advance through inspection and approval into the gateway
// call; a damaged or defective item stops the automation at inspected for a
// human decision.
func (u *RefundUsecase) OnReturnReceived(ctx context.Context, ret *domain.Return) error {
	moved, err := u.advance(ctx, ret.ID, domain.ReturnStatusReceived, domain.ReturnStatusInspected, "Automated inspection", domain.ActorSystemAutomation)
	if err != nil {
		return err
	}
	if !moved {
		// Another worker already picked this return up.
		return nil
	}

	for _, item := range ret.Items {
		if !domain.IsAutoApprovableCondition(item.ItemCondition) {
			note := fmt.Sprintf("Item %s reported as %s; refund requires manual approval", item.ProductID, item.ItemCondition)
			if err := u.returnRepo.AppendAdminNote(ctx, ret.ID, domain.AdminNote{Note: note, Author: domain.ActorSystemAutomation}); err != nil {
				return err
			}
			u.txLog.Warn(ctx, domain.TxTypeManualIntervention,
				fmt.Sprintf("Return %s held at inspected: flagged item condition", ret.ReturnNumber),
				domain.JSONB{"returnId": ret.ID, "condition": item.ItemCondition})
			return nil
		}
	}

	moved, err = u.advance(ctx, ret.ID, domain.ReturnStatusInspected, domain.ReturnStatusApprovedRefund, "Auto-approved: all items in acceptable condition", domain.ActorSystemAutomation)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	return u.initiateRefund(ctx, ret.ID, domain.ActorSystemAutomation)
}

// ApproveInspection is the manual path for returns the automation held at
// inspected. It approves the refund and runs the same gateway flow.
func (u *RefundUsecase) ApproveInspection(ctx context.Context, returnID, adminID string) error {
	ret, err := u.returnRepo.GetByID(ctx, returnID)
	if err != nil {
		return err
	}
	if ret.Status != domain.ReturnStatusInspected {
		return fmt.Errorf("return %s is %s, expected %s", ret.ReturnNumber, ret.Status, domain.ReturnStatusInspected)
	}
	moved, err := u.advance(ctx, ret.ID, domain.ReturnStatusInspected, domain.ReturnStatusApprovedRefund, "Manually approved after inspection", adminID)
	if err != nil {
		return err
	}
	if !moved {
		return fmt.Errorf("return %s changed state concurrently, retry", ret.ReturnNumber)
	}
	return u.initiateRefund(ctx, ret.ID, adminID)
}

// RetryRefund re-runs the gateway call for a return sitting at
// approved_refund, typically after a contained failure.
func (u *RefundUsecase) RetryRefund(ctx context.Context, returnID, adminID string) error {
	ret, err := u.returnRepo.GetByID(ctx, returnID)
	if err != nil {
		return err
	}
	if ret.Status != domain.ReturnStatusApprovedRefund {
		return fmt.Errorf("return %s is %s, expected %s", ret.ReturnNumber, ret.Status, domain.ReturnStatusApprovedRefund)
	}
	return u.initiateRefund(ctx, returnID, adminID)
}

// Eligibility reports whether a return can be refunded right now and why not
// otherwise.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

func (u *RefundUsecase) CheckEligibility(ctx context.Context, returnID string) (*Eligibility, error) {
	ret, err := u.returnRepo.GetByID(ctx, returnID)
	if err != nil {
		return nil, err
	}
	switch ret.Status {
	case domain.ReturnStatusInspected, domain.ReturnStatusApprovedRefund:
		if ret.RefundStatus == domain.RefundStatusProcessed {
			return &Eligibility{Eligible: false, Reason: "refund already processed"}, nil
		}
		return &Eligibility{Eligible: true}, nil
	case domain.ReturnStatusRefundProcessed, domain.ReturnStatusCompleted:
		return &Eligibility{Eligible: false, Reason: "refund already issued"}, nil
	default:
		return &Eligibility{Eligible: false, Reason: fmt.Sprintf("return is %s, must reach inspection first", ret.Status)}, nil
	}
}

// initiateRefund performs the gateway call and commits the outcome. The
// record is re-read before and re-guarded after the blocking external call;
// no lock is held while it is in flight.
func (u *RefundUsecase) initiateRefund(ctx context.Context, returnID, actor string) error {
	ret, err := u.returnRepo.GetByID(ctx, returnID)
	if err != nil {
		return err
	}
	if ret.Status != domain.ReturnStatusApprovedRefund {
		return nil
	}
	// Idempotency: a refund that already reached the gateway is never re-sent.
	if ret.RefundTransactionID != nil && ret.RefundStatus == domain.RefundStatusProcessed {
		return nil
	}

	order, err := u.orderRepo.GetByID(ctx, ret.OrderID)
	if err != nil {
		return err
	}

	if order.PaymentMethod == domain.PaymentMethodCOD || order.PaymentID == nil {
		// COD money never touched the gateway; payout is a manual bank
		// transfer against the stored refund details.
		note := "No gateway payment to refund against; issue a manual bank transfer using the customer's refund details"
		if err := u.returnRepo.AppendAdminNote(ctx, ret.ID, domain.AdminNote{Note: note, Author: actor}); err != nil {
			return err
		}
		u.txLog.Warn(ctx, domain.TxTypeManualIntervention,
			fmt.Sprintf("Return %s needs a manual payout", ret.ReturnNumber),
			domain.JSONB{"returnId": ret.ID, "paymentMethod": order.PaymentMethod})
		return nil
	}

	amountPaise := int64(ret.RefundAmount * 100)
	u.txLog.Info(ctx, domain.TxTypeRefundInitiated,
		fmt.Sprintf("Initiating refund of %.2f for return %s", ret.RefundAmount, ret.ReturnNumber),
		domain.JSONB{"returnId": ret.ID, "paymentId": *order.PaymentID, "amountPaise": amountPaise})

	refundID, gwErr := u.gateway.Refund(ctx, *order.PaymentID, amountPaise, u.refundSpeed)
	if gwErr != nil {
		return u.containRefundFailure(ctx, ret, gwErr)
	}

	return u.commitRefundSuccess(ctx, ret, order, refundID)
}

// containRefundFailure is the single most important failure rule in the
// system: the return stays at approved_refund, the failure is written where
// a human will see it, and nothing pretends the refund happened.
func (u *RefundUsecase) containRefundFailure(ctx context.Context, ret *domain.Return, gwErr error) error {
	logger.Error().
		Err(gwErr).
		Str("return_number", ret.ReturnNumber).
		Msg("Refund gateway call failed")

	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		if _, err := u.returnRepo.ApplyRefundResult(txCtx, domain.RefundResult{
			ReturnID:            ret.ID,
			ExpectedStatus:      domain.ReturnStatusApprovedRefund,
			NewStatus:           domain.ReturnStatusApprovedRefund,
			RefundStatus:        domain.RefundStatusFailed,
			RefundTransactionID: ret.RefundTransactionID,
		}); err != nil {
			return err
		}
		return u.returnRepo.AppendAdminNote(txCtx, ret.ID, domain.AdminNote{
			Note:   fmt.Sprintf("Refund gateway call failed: %v", gwErr),
			Author: domain.ActorSystemAutomation,
		})
	})
	if err != nil {
		return &domain.PersistenceFailure{Op: "record refund failure", Err: err}
	}

	u.txLog.Error(ctx, domain.TxTypeRefundFailed,
		fmt.Sprintf("Refund failed for return %s: %v", ret.ReturnNumber, gwErr),
		domain.JSONB{"returnId": ret.ID, "error": gwErr.Error()})

	var callErr *domain.ExternalCallFailure
	if errors.As(gwErr, &callErr) {
		return gwErr
	}
	return &domain.ExternalCallFailure{System: "gateway", Op: "refund", Err: gwErr}
}

func (u *RefundUsecase) commitRefundSuccess(ctx context.Context, ret *domain.Return, order *domain.Order, refundID string) error {
	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		// The guard re-checks status at write time: if a concurrent worker
		// already moved this return the outcome is recorded exactly once.
		applied, err := u.returnRepo.ApplyRefundResult(txCtx, domain.RefundResult{
			ReturnID:            ret.ID,
			ExpectedStatus:      domain.ReturnStatusApprovedRefund,
			NewStatus:           domain.ReturnStatusRefundProcessed,
			RefundStatus:        domain.RefundStatusProcessed,
			RefundTransactionID: &refundID,
		})
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		prev := domain.ReturnStatusApprovedRefund
		reason := fmt.Sprintf("Refund %s issued by gateway", refundID)
		if err := u.returnRepo.CreateTransition(txCtx, &domain.ReturnTransition{
			ReturnID:       ret.ID,
			PreviousStatus: &prev,
			NewStatus:      domain.ReturnStatusRefundProcessed,
			Actor:          domain.ActorSystemAutomation,
			Reason:         &reason,
		}); err != nil {
			return err
		}

		if _, err := u.returnRepo.UpdateStatusIf(txCtx, ret.ID, domain.ReturnStatusRefundProcessed, domain.ReturnStatusCompleted); err != nil {
			return err
		}
		prevProcessed := domain.ReturnStatusRefundProcessed
		completedReason := "Refund confirmed, return completed"
		if err := u.returnRepo.CreateTransition(txCtx, &domain.ReturnTransition{
			ReturnID:       ret.ID,
			PreviousStatus: &prevProcessed,
			NewStatus:      domain.ReturnStatusCompleted,
			Actor:          domain.ActorSystemAutomation,
			Reason:         &completedReason,
		}); err != nil {
			return err
		}

		// Close out the order side of the 1:1.
		if err := u.orderRepo.UpdateStatus(txCtx, order.ID, domain.OrderStatusReturned); err != nil {
			return err
		}
		return u.orderRepo.UpdatePaymentStatus(txCtx, order.ID, domain.PaymentStatusRefunded)
	})
	if err != nil {
		return &domain.PersistenceFailure{Op: "commit refund success", Err: err}
	}

	u.txLog.Info(ctx, domain.TxTypeRefundSucceeded,
		fmt.Sprintf("Refund %s processed for return %s", refundID, ret.ReturnNumber),
		domain.JSONB{"returnId": ret.ID, "refundId": refundID})
	return nil
}

// ProcessRefundWebhook applies a gateway refund callback. Refund initiation
// and confirmation are decoupled events: a refund.failed callback pushes an
// already refund_processed (or completed) return back to approved_refund for
// reprocessing, and a refund.processed callback confirms completion.
func (u *RefundUsecase) ProcessRefundWebhook(ctx context.Context, ev *domain.RefundEvent) error {
	ret, err := u.returnRepo.GetByRefundTransactionID(ctx, ev.RefundID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		logger.Info().
			Str("refund_id", ev.RefundID).
			Str("event", ev.Event).
			Msg("Refund event matches no return, ignoring")
		return domain.ErrNotFound
	}

	switch ev.Event {
	case "refund.failed":
		return u.regressForRetry(ctx, ret, ev)
	case "refund.processed", "refund.speed_changed":
		if ret.Status == domain.ReturnStatusRefundProcessed {
			if _, err := u.advance(ctx, ret.ID, domain.ReturnStatusRefundProcessed, domain.ReturnStatusCompleted, "Gateway confirmed refund", domain.ActorSystemAutomation); err != nil {
				return err
			}
		}
		return nil
	default:
		logger.Info().Str("event", ev.Event).Msg("Ignoring unhandled gateway event")
		return nil
	}
}

func (u *RefundUsecase) regressForRetry(ctx context.Context, ret *domain.Return, ev *domain.RefundEvent) error {
	if ret.Status != domain.ReturnStatusRefundProcessed && ret.Status != domain.ReturnStatusCompleted {
		// Nothing to roll back; the initiation-path containment already
		// parked this return at approved_refund.
		return nil
	}

	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		applied, err := u.returnRepo.ApplyRefundResult(txCtx, domain.RefundResult{
			ReturnID:            ret.ID,
			ExpectedStatus:      ret.Status,
			NewStatus:           domain.ReturnStatusApprovedRefund,
			RefundStatus:        domain.RefundStatusFailed,
			RefundTransactionID: ret.RefundTransactionID,
		})
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		prev := ret.Status
		reason := fmt.Sprintf("Gateway reported refund %s failed; queued for reprocessing", ev.RefundID)
		if err := u.returnRepo.CreateTransition(txCtx, &domain.ReturnTransition{
			ReturnID:       ret.ID,
			PreviousStatus: &prev,
			NewStatus:      domain.ReturnStatusApprovedRefund,
			Actor:          domain.ActorSystemAutomation,
			Reason:         &reason,
		}); err != nil {
			return err
		}
		return u.returnRepo.AppendAdminNote(txCtx, ret.ID, domain.AdminNote{
			Note:   reason,
			Author: domain.ActorSystemAutomation,
		})
	})
	if err != nil {
		return &domain.PersistenceFailure{Op: "regress refund for retry", Err: err}
	}

	u.txLog.Error(ctx, domain.TxTypeRefundFailed,
		fmt.Sprintf("Gateway refund %s failed for return %s, moved back to %s", ev.RefundID, ret.ReturnNumber, domain.ReturnStatusApprovedRefund),
		domain.JSONB{"returnId": ret.ID, "refundId": ev.RefundID})
	return nil
}

func (u *RefundUsecase) advance(ctx context.Context, returnID, from, to, reason, actor string) (bool, error) {
	var moved bool
	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		ok, err := u.returnRepo.UpdateStatusIf(txCtx, returnID, from, to)
		if err != nil {
			return err
		}
		moved = ok
		if !ok {
			return nil
		}
		prev := from
		return u.returnRepo.CreateTransition(txCtx, &domain.ReturnTransition{
			ReturnID:       returnID,
			PreviousStatus: &prev,
			NewStatus:      to,
			Actor:          actor,
			Reason:         &reason,
		})
	})
	if err != nil {
		return false, &domain.PersistenceFailure{Op: "advance return", Err: err}
	}
	return moved, nil
}
