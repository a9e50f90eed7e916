package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aurika-backend/internal/domain"
	"aurika-backend/pkg/utils"
)

type ReturnUsecase struct {
	returnRepo domain.ReturnRepository
	orderRepo  domain.OrderRepository
	txManager  domain.TransactionManager
	txLog      *TxLogger
}

func NewReturnUsecase(returnRepo domain.ReturnRepository, orderRepo domain.OrderRepository, txManager domain.TransactionManager, txLog *TxLogger) *ReturnUsecase {
	return &ReturnUsecase{
		returnRepo: returnRepo,
		orderRepo:  orderRepo,
		txManager:  txManager,
		txLog:      txLog,
	}
}

type RequestReturnReq struct {
	OrderID       string               `json:"orderId"`
	Items         []domain.ReturnItem  `json:"items"`
	RefundDetails domain.RefundDetails `json:"refundDetails"`
}

// RequestReturn opens a return against a delivered order. An order carries
// at most one return.
func (u *ReturnUsecase) RequestReturn(ctx context.Context, userID string, req RequestReturnReq) (*domain.Return, error) {
	order, err := u.orderRepo.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order does not belong to this user")
	}
	if order.Status != domain.OrderStatusDelivered {
		return nil, fmt.Errorf("only delivered orders can be returned, order is %s", order.Status)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("return has no items")
	}

	if existing, err := u.returnRepo.GetByOrderID(ctx, req.OrderID); err == nil {
		return nil, fmt.Errorf("order already has return %s", existing.ReturnNumber)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	amount, err := refundableAmount(order, req.Items)
	if err != nil {
		return nil, err
	}

	ret := &domain.Return{
		ID:            utils.GenerateUUID(),
		ReturnNumber:  generateReturnNumber(),
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        userID,
		Status:        domain.ReturnStatusRequested,
		Items:         req.Items,
		RefundDetails: req.RefundDetails,
		RefundStatus:  domain.RefundStatusNotStarted,
		RefundAmount:  amount,
	}
	for i := range ret.Items {
		ret.Items[i].ID = utils.GenerateUUID()
		ret.Items[i].ReturnID = ret.ID
	}

	err = u.txManager.Do(ctx, func(txCtx context.Context) error {
		if err := u.returnRepo.CreateReturn(txCtx, ret); err != nil {
			return err
		}
		return u.returnRepo.CreateTransition(txCtx, &domain.ReturnTransition{
			ReturnID:  ret.ID,
			NewStatus: domain.ReturnStatusRequested,
			Actor:     userID,
		})
	})
	if err != nil {
		return nil, err
	}

	u.txLog.Info(ctx, domain.TxTypeStatusTransition,
		fmt.Sprintf("Return %s requested against order %s", ret.ReturnNumber, order.OrderNumber),
		domain.JSONB{"returnId": ret.ID, "orderId": order.ID, "amount": amount})
	return ret, nil
}

// AttachReturnShipment records the carrier's return shipment identifiers so
// that return-flow webhooks can resolve the record.
func (u *ReturnUsecase) AttachReturnShipment(ctx context.Context, returnID string, shipping domain.ReturnShipping) error {
	ret, err := u.returnRepo.GetByID(ctx, returnID)
	if err != nil {
		return err
	}
	if shipping.ShipmentID == nil && shipping.AWBCode == nil {
		return fmt.Errorf("at least one carrier identifier is required")
	}
	if err := u.returnRepo.SetShippingIdentifiers(ctx, returnID, shipping); err != nil {
		return err
	}
	u.txLog.Info(ctx, domain.TxTypeShipmentCreated,
		fmt.Sprintf("Return shipment attached to %s", ret.ReturnNumber),
		domain.JSONB{"returnId": returnID})
	return nil
}

func (u *ReturnUsecase) GetReturn(ctx context.Context, id string) (*domain.Return, error) {
	return u.returnRepo.GetByID(ctx, id)
}

func (u *ReturnUsecase) GetAllReturns(ctx context.Context, filter domain.ReturnFilter) ([]domain.Return, int64, error) {
	return u.returnRepo.GetAll(ctx, filter)
}

func (u *ReturnUsecase) GetTransitions(ctx context.Context, returnID string) ([]domain.ReturnTransition, error) {
	return u.returnRepo.GetTransitions(ctx, returnID)
}

// AddAdminNote appends to a return's annotation trail. A note containing the
// urgent marker surfaces the return in the stuck report.
func (u *ReturnUsecase) AddAdminNote(ctx context.Context, returnID, note, adminID string) error {
	if strings.TrimSpace(note) == "" {
		return fmt.Errorf("note is empty")
	}
	return u.returnRepo.AppendAdminNote(ctx, returnID, domain.AdminNote{Note: note, Author: adminID})
}

// refundableAmount prices the returned items at their purchase price.
func refundableAmount(order *domain.Order, items []domain.ReturnItem) (float64, error) {
	byProduct := make(map[string]domain.OrderItem, len(order.Items))
	for _, it := range order.Items {
		byProduct[it.ProductID] = it
	}

	var amount float64
	for _, ri := range items {
		ordered, ok := byProduct[ri.ProductID]
		if !ok {
			return 0, fmt.Errorf("product %s is not part of the order", ri.ProductID)
		}
		if ri.Quantity <= 0 || ri.Quantity > ordered.Quantity {
			return 0, fmt.Errorf("invalid return quantity %d for product %s", ri.Quantity, ri.ProductID)
		}
		amount += ordered.Price * float64(ri.Quantity)
	}
	return amount, nil
}

func generateReturnNumber() string {
	id := utils.GenerateUUID()
	return "RET-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:10])
}
