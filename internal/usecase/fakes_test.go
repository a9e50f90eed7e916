package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"aurika-backend/internal/domain"
)

// The fakes below mirror the conditional-write semantics of the postgres
// repositories: status guards are evaluated against stored state at write
// time, and reads hand out copies the way a row scan would.

type fakeOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	history map[string][]domain.OrderHistory
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:  make(map[string]*domain.Order),
		history: make(map[string][]domain.OrderHistory),
	}
}

func (r *fakeOrderRepo) put(o *domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	cp.TrackingHistory = append([]domain.TrackingEvent(nil), o.TrackingHistory...)
	return &cp
}

func (r *fakeOrderRepo) findOrder(match func(*domain.Order) bool) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if match(o) {
			return copyOrder(o), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeOrderRepo) CreateOrder(_ context.Context, order *domain.Order) error {
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	r.put(copyOrder(order))
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	return r.findOrder(func(o *domain.Order) bool { return o.ID == id })
}

func (r *fakeOrderRepo) GetByOrderNumber(_ context.Context, n string) (*domain.Order, error) {
	return r.findOrder(func(o *domain.Order) bool { return o.OrderNumber == n })
}

func (r *fakeOrderRepo) GetByShipmentID(_ context.Context, id string) (*domain.Order, error) {
	return r.findOrder(func(o *domain.Order) bool {
		return o.Shipping.ShipmentID != nil && *o.Shipping.ShipmentID == id
	})
}

func (r *fakeOrderRepo) GetByCarrierOrderID(_ context.Context, id string) (*domain.Order, error) {
	return r.findOrder(func(o *domain.Order) bool {
		return o.Shipping.CarrierOrderID != nil && *o.Shipping.CarrierOrderID == id
	})
}

func (r *fakeOrderRepo) GetByAWB(_ context.Context, awb string) (*domain.Order, error) {
	return r.findOrder(func(o *domain.Order) bool {
		return o.Shipping.AWBCode != nil && *o.Shipping.AWBCode == awb
	})
}

func (r *fakeOrderRepo) GetByUserID(_ context.Context, userID string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) GetAll(_ context.Context, _ domain.OrderFilter) ([]domain.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		out = append(out, *copyOrder(o))
	}
	return out, int64(len(out)), nil
}

func (r *fakeOrderRepo) ApplyShipmentPatch(_ context.Context, patch domain.ShipmentPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[patch.OrderID]
	if !ok {
		return false, domain.ErrNotFound
	}

	for _, ev := range patch.TrackingEvents {
		dup := false
		for _, seen := range o.TrackingHistory {
			if seen.Timestamp.Equal(ev.Timestamp) && seen.StatusCode == ev.StatusCode {
				dup = true
				break
			}
		}
		if !dup {
			o.TrackingHistory = append(o.TrackingHistory, ev)
		}
	}

	if patch.CourierName != nil {
		o.Shipping.CourierName = patch.CourierName
	}
	if patch.EstimatedDate != nil {
		o.Shipping.EstimatedDate = patch.EstimatedDate
	}
	o.UpdatedAt = time.Now()

	if patch.NewStatus == nil {
		return false, nil
	}
	if domain.OrderStatusWeights[o.Status] >= domain.OrderStatusWeights[*patch.NewStatus] {
		return false, nil
	}
	o.Status = *patch.NewStatus
	if patch.NewShippingStatus != nil {
		o.Shipping.Status = *patch.NewShippingStatus
	}
	if patch.MarkPaid {
		o.PaymentStatus = domain.PaymentStatusPaid
	}
	return true, nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	return nil
}

func (r *fakeOrderRepo) UpdatePaymentStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.PaymentStatus = status
	o.UpdatedAt = time.Now()
	return nil
}

func (r *fakeOrderRepo) SetPaymentCaptured(_ context.Context, id, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.PaymentID == nil {
		o.PaymentStatus = domain.PaymentStatusPaid
		o.PaymentID = &paymentID
	}
	return nil
}

func (r *fakeOrderRepo) SetShippingIdentifiers(_ context.Context, id string, info domain.ShippingInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Shipping.Status = info.Status
	if info.ShipmentID != nil {
		o.Shipping.ShipmentID = info.ShipmentID
	}
	if info.CarrierOrderID != nil {
		o.Shipping.CarrierOrderID = info.CarrierOrderID
	}
	if info.AWBCode != nil {
		o.Shipping.AWBCode = info.AWBCode
	}
	if info.CourierName != nil {
		o.Shipping.CourierName = info.CourierName
	}
	return nil
}

func (r *fakeOrderRepo) CreateOrderHistory(_ context.Context, h *domain.OrderHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.CreatedAt = time.Now()
	r.history[h.OrderID] = append(r.history[h.OrderID], *h)
	return nil
}

func (r *fakeOrderRepo) GetOrderHistory(_ context.Context, orderID string) ([]domain.OrderHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.OrderHistory(nil), r.history[orderID]...), nil
}

func (r *fakeOrderRepo) FindPaidUnshipped(_ context.Context, olderThan time.Duration) ([]domain.StuckOrderRow, error) {
	cutoff := time.Now().Add(-olderThan)
	return r.stuckRows(func(o *domain.Order) bool {
		return o.PaymentMethod == domain.PaymentMethodOnline &&
			o.PaymentStatus == domain.PaymentStatusPaid &&
			o.Shipping.ShipmentID == nil && o.Shipping.AWBCode == nil &&
			o.Status != domain.OrderStatusCancelled &&
			o.Status != domain.OrderStatusReturned &&
			o.Status != domain.OrderStatusDelivered &&
			o.CreatedAt.Before(cutoff)
	}), nil
}

func (r *fakeOrderRepo) FindPendingPaid(_ context.Context, olderThan time.Duration) ([]domain.StuckOrderRow, error) {
	cutoff := time.Now().Add(-olderThan)
	return r.stuckRows(func(o *domain.Order) bool {
		return o.Status == domain.OrderStatusPending &&
			o.PaymentStatus == domain.PaymentStatusPaid &&
			o.UpdatedAt.Before(cutoff)
	}), nil
}

func (r *fakeOrderRepo) FindCancelledPaid(_ context.Context, within time.Duration) ([]domain.StuckOrderRow, error) {
	since := time.Now().Add(-within)
	return r.stuckRows(func(o *domain.Order) bool {
		return o.Status == domain.OrderStatusCancelled &&
			o.PaymentStatus == domain.PaymentStatusPaid &&
			o.UpdatedAt.After(since)
	}), nil
}

func (r *fakeOrderRepo) FindUrgentFlagged(_ context.Context, marker string) ([]domain.StuckOrderRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []domain.StuckOrderRow
	for _, o := range r.orders {
		if o.Status == domain.OrderStatusDelivered || o.Status == domain.OrderStatusReturned {
			continue
		}
		for _, h := range r.history[o.ID] {
			if h.Reason != nil && strings.Contains(strings.ToUpper(*h.Reason), strings.ToUpper(marker)) {
				rows = append(rows, domain.StuckOrderRow{Order: *copyOrder(o), MatchedNote: *h.Reason})
				break
			}
		}
	}
	return rows, nil
}

func (r *fakeOrderRepo) stuckRows(match func(*domain.Order) bool) []domain.StuckOrderRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []domain.StuckOrderRow
	for _, o := range r.orders {
		if match(o) {
			rows = append(rows, domain.StuckOrderRow{
				Order:       *copyOrder(o),
				HasShipment: o.Shipping.ShipmentID != nil || o.Shipping.AWBCode != nil,
				AgeHours:    time.Since(o.CreatedAt).Hours(),
			})
		}
	}
	return rows
}

type fakeReturnRepo struct {
	mu          sync.Mutex
	returns     map[string]*domain.Return
	transitions map[string][]domain.ReturnTransition
}

func newFakeReturnRepo() *fakeReturnRepo {
	return &fakeReturnRepo{
		returns:     make(map[string]*domain.Return),
		transitions: make(map[string][]domain.ReturnTransition),
	}
}

func (r *fakeReturnRepo) put(ret *domain.Return) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.returns[ret.ID] = ret
}

func copyReturn(ret *domain.Return) *domain.Return {
	cp := *ret
	cp.Items = append([]domain.ReturnItem(nil), ret.Items...)
	cp.AdminNotes = append([]domain.AdminNote(nil), ret.AdminNotes...)
	return &cp
}

func (r *fakeReturnRepo) findReturn(match func(*domain.Return) bool) (*domain.Return, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ret := range r.returns {
		if match(ret) {
			return copyReturn(ret), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeReturnRepo) CreateReturn(_ context.Context, ret *domain.Return) error {
	ret.CreatedAt = time.Now()
	ret.UpdatedAt = ret.CreatedAt
	r.put(copyReturn(ret))
	return nil
}

func (r *fakeReturnRepo) GetByID(_ context.Context, id string) (*domain.Return, error) {
	return r.findReturn(func(ret *domain.Return) bool { return ret.ID == id })
}

func (r *fakeReturnRepo) GetByReturnNumber(_ context.Context, n string) (*domain.Return, error) {
	return r.findReturn(func(ret *domain.Return) bool { return ret.ReturnNumber == n })
}

func (r *fakeReturnRepo) GetByOrderID(_ context.Context, orderID string) (*domain.Return, error) {
	return r.findReturn(func(ret *domain.Return) bool { return ret.OrderID == orderID })
}

func (r *fakeReturnRepo) GetByShipmentID(_ context.Context, id string) (*domain.Return, error) {
	return r.findReturn(func(ret *domain.Return) bool {
		return ret.Shipping.ShipmentID != nil && *ret.Shipping.ShipmentID == id
	})
}

func (r *fakeReturnRepo) GetByAWB(_ context.Context, awb string) (*domain.Return, error) {
	return r.findReturn(func(ret *domain.Return) bool {
		return ret.Shipping.AWBCode != nil && *ret.Shipping.AWBCode == awb
	})
}

func (r *fakeReturnRepo) GetByRefundTransactionID(_ context.Context, refundID string) (*domain.Return, error) {
	return r.findReturn(func(ret *domain.Return) bool {
		return ret.RefundTransactionID != nil && *ret.RefundTransactionID == refundID
	})
}

func (r *fakeReturnRepo) GetAll(_ context.Context, _ domain.ReturnFilter) ([]domain.Return, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Return
	for _, ret := range r.returns {
		out = append(out, *copyReturn(ret))
	}
	return out, int64(len(out)), nil
}

func (r *fakeReturnRepo) UpdateStatusIf(_ context.Context, id, expected, newStatus string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret, ok := r.returns[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if ret.Status != expected {
		return false, nil
	}
	ret.Status = newStatus
	ret.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeReturnRepo) ApplyRefundResult(_ context.Context, res domain.RefundResult) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret, ok := r.returns[res.ReturnID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if ret.Status != res.ExpectedStatus {
		return false, nil
	}
	ret.Status = res.NewStatus
	ret.RefundStatus = res.RefundStatus
	if res.RefundTransactionID != nil {
		ret.RefundTransactionID = res.RefundTransactionID
	}
	ret.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeReturnRepo) SetShippingIdentifiers(_ context.Context, id string, shipping domain.ReturnShipping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret, ok := r.returns[id]
	if !ok {
		return domain.ErrNotFound
	}
	if shipping.ShipmentID != nil {
		ret.Shipping.ShipmentID = shipping.ShipmentID
	}
	if shipping.AWBCode != nil {
		ret.Shipping.AWBCode = shipping.AWBCode
	}
	return nil
}

func (r *fakeReturnRepo) AppendAdminNote(_ context.Context, id string, note domain.AdminNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret, ok := r.returns[id]
	if !ok {
		return domain.ErrNotFound
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	ret.AdminNotes = append(ret.AdminNotes, note)
	return nil
}

func (r *fakeReturnRepo) CreateTransition(_ context.Context, tr *domain.ReturnTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr.CreatedAt = time.Now()
	r.transitions[tr.ReturnID] = append(r.transitions[tr.ReturnID], *tr)
	return nil
}

func (r *fakeReturnRepo) GetTransitions(_ context.Context, returnID string) ([]domain.ReturnTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ReturnTransition(nil), r.transitions[returnID]...), nil
}

func (r *fakeReturnRepo) FindStuckRefunds(_ context.Context, olderThan time.Duration) ([]domain.Return, error) {
	cutoff := time.Now().Add(-olderThan)
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Return
	for _, ret := range r.returns {
		if ret.Status == domain.ReturnStatusApprovedRefund &&
			(ret.RefundStatus == domain.RefundStatusNotStarted || ret.RefundStatus == domain.RefundStatusFailed) &&
			ret.UpdatedAt.Before(cutoff) {
			out = append(out, *copyReturn(ret))
		}
	}
	return out, nil
}

func (r *fakeReturnRepo) FindPickupFailed(_ context.Context) ([]domain.Return, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Return
	for _, ret := range r.returns {
		if ret.Status == domain.ReturnStatusPickupFailed {
			out = append(out, *copyReturn(ret))
		}
	}
	return out, nil
}

type fakeTxLogRepo struct {
	mu      sync.Mutex
	entries []domain.TransactionLog
}

func (r *fakeTxLogRepo) Append(_ context.Context, entry *domain.TransactionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeTxLogRepo) GetAll(_ context.Context, _ domain.TransactionLogFilter) ([]domain.TransactionLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TransactionLog(nil), r.entries...), int64(len(r.entries)), nil
}

func (r *fakeTxLogRepo) hasType(txType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.TxType == txType {
			return true
		}
	}
	return false
}

type fakeTxManager struct{}

func (fakeTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// failingTxManager models a transaction that rolls back: the callback's
// writes never land and the caller sees only the error.
type failingTxManager struct{ err error }

func (m failingTxManager) Do(_ context.Context, _ func(ctx context.Context) error) error {
	return m.err
}

type fakeTracker struct {
	ev      *domain.ShipmentEvent
	err     error
	queried []string
}

func (t *fakeTracker) TrackByShipmentID(_ context.Context, id string) (*domain.ShipmentEvent, error) {
	t.queried = append(t.queried, "shipment:"+id)
	return t.ev, t.err
}

func (t *fakeTracker) TrackByCarrierOrderID(_ context.Context, id string) (*domain.ShipmentEvent, error) {
	t.queried = append(t.queried, "carrier_order:"+id)
	return t.ev, t.err
}

func (t *fakeTracker) TrackByAWB(_ context.Context, awb string) (*domain.ShipmentEvent, error) {
	t.queried = append(t.queried, "awb:"+awb)
	return t.ev, t.err
}

type fakeGateway struct {
	refundID      string
	err           error
	calls         int
	lastPaymentID string
	lastAmount    int64
	lastSpeed     string
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string, amountPaise int64, speed string) (string, error) {
	g.calls++
	g.lastPaymentID = paymentID
	g.lastAmount = amountPaise
	g.lastSpeed = speed
	if g.err != nil {
		return "", g.err
	}
	return g.refundID, nil
}

func strPtr(s string) *string { return &s }
