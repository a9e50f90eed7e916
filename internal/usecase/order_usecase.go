package usecase

import (
	"context"
	"fmt"
	"strings"

	"aurika-backend/internal/domain"
	"aurika-backend/pkg/utils"
)

type OrderUsecase struct {
	orderRepo domain.OrderRepository
	txManager domain.TransactionManager
	txLog     *TxLogger
}

func NewOrderUsecase(repo domain.OrderRepository, txManager domain.TransactionManager, txLog *TxLogger) *OrderUsecase {
	return &OrderUsecase{
		orderRepo: repo,
		txManager: txManager,
		txLog:     txLog,
	}
}

// CreateOrderReq is the checkout handoff payload. Checkout itself lives
// outside this core; we only record the resulting order.
type CreateOrderReq struct {
	UserID          string             `json:"userId"`
	TotalAmount     float64            `json:"totalAmount"`
	ShippingFee     float64            `json:"shippingFee"`
	ShippingAddress domain.JSONB       `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	Items           []domain.OrderItem `json:"items"`
}

func (u *OrderUsecase) CreateOrder(ctx context.Context, req CreateOrderReq) (*domain.Order, error) {
	if req.PaymentMethod != domain.PaymentMethodCOD && req.PaymentMethod != domain.PaymentMethodOnline {
		return nil, fmt.Errorf("unsupported payment method %q", req.PaymentMethod)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("order has no items")
	}

	order := &domain.Order{
		ID:              utils.GenerateUUID(),
		OrderNumber:     generateOrderNumber(),
		UserID:          req.UserID,
		Status:          domain.OrderStatusPending,
		TotalAmount:     req.TotalAmount,
		ShippingFee:     req.ShippingFee,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		Shipping:        domain.ShippingInfo{Status: domain.ShippingStatusPending},
		Items:           req.Items,
	}
	for i := range order.Items {
		order.Items[i].ID = utils.GenerateUUID()
		order.Items[i].OrderID = order.ID
	}

	if err := u.orderRepo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	u.txLog.Info(ctx, domain.TxTypeOrderCreated,
		fmt.Sprintf("Order %s created (%s)", order.OrderNumber, order.PaymentMethod),
		domain.JSONB{"orderId": order.ID, "total": order.TotalAmount})
	return order, nil
}

// CapturePayment records the gateway's capture confirmation for an online order.
func (u *OrderUsecase) CapturePayment(ctx context.Context, orderID, paymentID string) error {
	order, err := u.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.PaymentMethod != domain.PaymentMethodOnline {
		return fmt.Errorf("order %s is not an online payment order", order.OrderNumber)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return nil
	}

	if err := u.orderRepo.SetPaymentCaptured(ctx, orderID, paymentID); err != nil {
		return err
	}
	u.txLog.Info(ctx, domain.TxTypePaymentCaptured,
		fmt.Sprintf("Payment %s captured for order %s", paymentID, order.OrderNumber),
		domain.JSONB{"orderId": orderID, "paymentId": paymentID})
	return nil
}

// AttachShipment records the carrier identifiers created for an order so
// that later webhooks can resolve it.
func (u *OrderUsecase) AttachShipment(ctx context.Context, orderID string, info domain.ShippingInfo) error {
	order, err := u.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if info.ShipmentID == nil && info.AWBCode == nil && info.CarrierOrderID == nil {
		return fmt.Errorf("at least one carrier identifier is required")
	}
	if info.Status == "" {
		info.Status = domain.ShippingStatusProcessing
	}

	if err := u.orderRepo.SetShippingIdentifiers(ctx, orderID, info); err != nil {
		u.txLog.Error(ctx, domain.TxTypeShipmentFailed,
			fmt.Sprintf("Failed to attach shipment to order %s", order.OrderNumber),
			domain.JSONB{"orderId": orderID, "error": err.Error()})
		return err
	}
	u.txLog.Info(ctx, domain.TxTypeShipmentCreated,
		fmt.Sprintf("Shipment attached to order %s", order.OrderNumber),
		domain.JSONB{"orderId": orderID})
	return nil
}

func (u *OrderUsecase) GetMyOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return u.orderRepo.GetByUserID(ctx, userID)
}

// --- Admin Usecase ---

func (u *OrderUsecase) GetAllOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int64, error) {
	return u.orderRepo.GetAll(ctx, filter)
}

func (u *OrderUsecase) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return u.orderRepo.GetByID(ctx, id)
}

// UpdateOrderStatus is the admin override path. It obeys the same
// forward-only weights the carrier path does.
func (u *OrderUsecase) UpdateOrderStatus(ctx context.Context, orderID, newStatus, note, actorID string) error {
	order, err := u.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	oldStatus := order.Status
	if oldStatus == newStatus {
		return nil
	}
	if err := validateOrderTransition(order, newStatus); err != nil {
		return err
	}

	return u.txManager.Do(ctx, func(txCtx context.Context) error {
		if err := u.orderRepo.UpdateStatus(txCtx, orderID, newStatus); err != nil {
			return err
		}

		finalReason := note
		if finalReason == "" {
			finalReason = fmt.Sprintf("Admin: status changed from %s to %s", oldStatus, newStatus)
		}
		history := domain.OrderHistory{
			OrderID:        orderID,
			PreviousStatus: &oldStatus,
			NewStatus:      newStatus,
			Reason:         &finalReason,
			CreatedBy:      &actorID,
		}
		if err := u.orderRepo.CreateOrderHistory(txCtx, &history); err != nil {
			return fmt.Errorf("failed to record history: %w", err)
		}

		if newStatus == domain.OrderStatusCancelled {
			u.txLog.Warn(txCtx, domain.TxTypeOrderCancelled,
				fmt.Sprintf("Order %s cancelled", order.OrderNumber),
				domain.JSONB{"orderId": orderID, "by": actorID})
		}
		return nil
	})
}

func validateOrderTransition(order *domain.Order, newStatus string) error {
	currentWeight, okCurrent := domain.OrderStatusWeights[order.Status]
	newWeight, okNew := domain.OrderStatusWeights[newStatus]
	if !okNew {
		return fmt.Errorf("unknown status %q", newStatus)
	}
	// Unknown current status: allow the update to fix bad data.
	if !okCurrent {
		return nil
	}
	if newStatus == domain.OrderStatusReturned && order.Status != domain.OrderStatusDelivered {
		return fmt.Errorf("%w: returned is only reachable from delivered", domain.ErrTransitionConflict)
	}
	if newWeight < currentWeight {
		return fmt.Errorf("%w: cannot go backward from %q to %q", domain.ErrTransitionConflict, order.Status, newStatus)
	}
	return nil
}

func (u *OrderUsecase) GetOrderHistory(ctx context.Context, orderID string) ([]domain.OrderHistory, error) {
	return u.orderRepo.GetOrderHistory(ctx, orderID)
}

func generateOrderNumber() string {
	id := utils.GenerateUUID()
	return "AUR-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:10])
}
