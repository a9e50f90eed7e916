package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurika-backend/internal/domain"
)

type reconFixture struct {
	orderRepo  *fakeOrderRepo
	returnRepo *fakeReturnRepo
	txLogRepo  *fakeTxLogRepo
	tracker    *fakeTracker
	gateway    *fakeGateway
	refundUC   *RefundUsecase
	recon      *ReconcileUsecase
}

func newReconFixture() *reconFixture {
	f := &reconFixture{
		orderRepo:  newFakeOrderRepo(),
		returnRepo: newFakeReturnRepo(),
		txLogRepo:  &fakeTxLogRepo{},
		tracker:    &fakeTracker{},
		gateway:    &fakeGateway{refundID: "rfnd_AAA111"},
	}
	txLog := NewTxLogger(f.txLogRepo)
	f.refundUC = NewRefundUsecase(f.returnRepo, f.orderRepo, f.gateway, fakeTxManager{}, txLog, "normal")
	f.recon = NewReconcileUsecase(f.orderRepo, f.returnRepo, f.refundUC, f.tracker, fakeTxManager{}, txLog)
	return f
}

func seedOrder(repo *fakeOrderRepo, mutate func(*domain.Order)) *domain.Order {
	o := &domain.Order{
		ID:            "ord-" + time.Now().Format("150405.000000000"),
		OrderNumber:   "AUR-TEST0001",
		UserID:        "user-1",
		Status:        domain.OrderStatusShipped,
		PaymentMethod: domain.PaymentMethodOnline,
		PaymentStatus: domain.PaymentStatusPaid,
		Shipping:      domain.ShippingInfo{Status: domain.ShippingStatusShipped},
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "prod-1", Name: "Gold Hoop Earrings", Quantity: 2, Price: 1499},
		},
		CreatedAt: time.Now().Add(-24 * time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	if mutate != nil {
		mutate(o)
	}
	repo.put(o)
	return o
}

var eventTime = time.Date(2025, 10, 14, 10, 0, 0, 0, time.UTC)

func shipmentEvent(code int, mutate func(*domain.ShipmentEvent)) *domain.ShipmentEvent {
	ev := &domain.ShipmentEvent{
		Source:        domain.SourceCarrierShipment,
		ShipmentID:    "ship-1",
		StatusCode:    code,
		HasStatusCode: true,
		StatusLabel:   "carrier label",
		Timestamp:     eventTime,
		Location:      "Mumbai Hub",
	}
	if mutate != nil {
		mutate(ev)
	}
	return ev
}

func TestResolveOrder_PrefersShipmentIDOverAWB(t *testing.T) {
	f := newReconFixture()
	byShipment := seedOrder(f.orderRepo, func(o *domain.Order) {
		o.ID = "ord-ship"
		o.Shipping.ShipmentID = strPtr("ship-1")
	})
	seedOrder(f.orderRepo, func(o *domain.Order) {
		o.ID = "ord-awb"
		o.Shipping.AWBCode = strPtr("AWB123")
	})

	ev := shipmentEvent(6, func(ev *domain.ShipmentEvent) {
		ev.AWB = "AWB123"
	})
	got, err := f.recon.ResolveOrder(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, byShipment.ID, got.ID)
}

func TestResolveOrder_FallsBackThroughIdentifiers(t *testing.T) {
	f := newReconFixture()
	byAWB := seedOrder(f.orderRepo, func(o *domain.Order) {
		o.ID = "ord-awb"
		o.Shipping.AWBCode = strPtr("AWB123")
	})

	// Shipment id matches nothing, AWB does.
	ev := shipmentEvent(6, func(ev *domain.ShipmentEvent) {
		ev.ShipmentID = "ship-unknown"
		ev.AWB = "AWB123"
	})
	got, err := f.recon.ResolveOrder(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, byAWB.ID, got.ID)
}

func TestResolveOrder_OrderNumberHintSplitsCompositeID(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, func(o *domain.Order) {
		o.OrderNumber = "AUR-ABCD123456"
	})

	ev := shipmentEvent(6, func(ev *domain.ShipmentEvent) {
		ev.ShipmentID = ""
		ev.OrderNumberHint = "AUR-ABCD123456_1"
	})
	got, err := f.recon.ResolveOrder(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestResolveOrder_NoMatch(t *testing.T) {
	f := newReconFixture()
	_, err := f.recon.ResolveOrder(context.Background(), shipmentEvent(6, nil))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyShipmentEvent_AdvancesShippedToDelivered(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, func(o *domain.Order) {
		o.Shipping.ShipmentID = strPtr("ship-1")
	})

	updated, newStatus, err := f.recon.ApplyShipmentEvent(context.Background(), order, shipmentEvent(7, nil))
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, domain.OrderStatusDelivered, newStatus)

	stored, err := f.orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, stored.Status)
	assert.Equal(t, domain.ShippingStatusDelivered, stored.Shipping.Status)
	require.Len(t, stored.TrackingHistory, 1)
	assert.Equal(t, 7, stored.TrackingHistory[0].StatusCode)

	history, err := f.orderRepo.GetOrderHistory(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].PreviousStatus)
	assert.Equal(t, domain.OrderStatusShipped, *history[0].PreviousStatus)
	assert.Equal(t, domain.OrderStatusDelivered, history[0].NewStatus)
}

func TestApplyShipmentEvent_CODDeliveryMarksPaid(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, func(o *domain.Order) {
		o.PaymentMethod = domain.PaymentMethodCOD
		o.PaymentStatus = domain.PaymentStatusPending
	})

	updated, _, err := f.recon.ApplyShipmentEvent(context.Background(), order, shipmentEvent(7, nil))
	require.NoError(t, err)
	assert.True(t, updated)

	stored, _ := f.orderRepo.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
	assert.True(t, f.txLogRepo.hasType(domain.TxTypePaymentCaptured))
}

func TestApplyShipmentEvent_ReplayIsIdempotent(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, nil)

	ev := shipmentEvent(7, nil)
	updated, _, err := f.recon.ApplyShipmentEvent(context.Background(), order, ev)
	require.NoError(t, err)
	require.True(t, updated)

	order, _ = f.orderRepo.GetByID(context.Background(), order.ID)
	updated, newStatus, err := f.recon.ApplyShipmentEvent(context.Background(), order, ev)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, domain.OrderStatusDelivered, newStatus)

	stored, _ := f.orderRepo.GetByID(context.Background(), order.ID)
	assert.Len(t, stored.TrackingHistory, 1, "replayed scan must dedup on (timestamp, statusCode)")

	history, _ := f.orderRepo.GetOrderHistory(context.Background(), order.ID)
	assert.Len(t, history, 1)
}

func TestApplyShipmentEvent_OutOfOrderLandsInHistoryOnly(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, func(o *domain.Order) {
		o.Status = domain.OrderStatusDelivered
		o.Shipping.Status = domain.ShippingStatusDelivered
	})

	// A late "shipped" scan after delivery.
	updated, newStatus, err := f.recon.ApplyShipmentEvent(context.Background(), order, shipmentEvent(6, nil))
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, domain.OrderStatusDelivered, newStatus)

	stored, _ := f.orderRepo.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.OrderStatusDelivered, stored.Status)
	assert.Len(t, stored.TrackingHistory, 1)
}

func TestApplyShipmentEvent_TerminalOrderIgnoresCancellation(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, func(o *domain.Order) {
		o.Status = domain.OrderStatusDelivered
	})

	// Cancelled outranks delivered by weight, but a settled order never moves.
	updated, newStatus, err := f.recon.ApplyShipmentEvent(context.Background(), order, shipmentEvent(8, nil))
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, domain.OrderStatusDelivered, newStatus)

	stored, _ := f.orderRepo.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.OrderStatusDelivered, stored.Status)
	assert.Len(t, stored.TrackingHistory, 1)
}

func TestApplyShipmentEvent_UnmappedCodeRecordsScanOnly(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, nil)

	updated, newStatus, err := f.recon.ApplyShipmentEvent(context.Background(), order, shipmentEvent(99, nil))
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, domain.OrderStatusShipped, newStatus)

	stored, _ := f.orderRepo.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.OrderStatusShipped, stored.Status)
	require.Len(t, stored.TrackingHistory, 1)
	assert.Equal(t, 99, stored.TrackingHistory[0].StatusCode)

	history, _ := f.orderRepo.GetOrderHistory(context.Background(), order.ID)
	assert.Empty(t, history)
}

func TestProcessShipmentEvent_NoMatchReturnsNotFound(t *testing.T) {
	f := newReconFixture()
	err := f.recon.ProcessShipmentEvent(context.Background(), shipmentEvent(6, nil))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcessShipmentEvent_LogsTransition(t *testing.T) {
	f := newReconFixture()
	seedOrder(f.orderRepo, func(o *domain.Order) {
		o.Shipping.ShipmentID = strPtr("ship-1")
	})

	err := f.recon.ProcessShipmentEvent(context.Background(), shipmentEvent(7, nil))
	require.NoError(t, err)
	assert.True(t, f.txLogRepo.hasType(domain.TxTypeStatusTransition))
}

func seedReturn(f *reconFixture, order *domain.Order, mutate func(*domain.Return)) *domain.Return {
	ret := &domain.Return{
		ID:           "ret-1",
		ReturnNumber: "RET-TEST0001",
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		UserID:       order.UserID,
		Status:       domain.ReturnStatusInTransit,
		Shipping:     domain.ReturnShipping{AWBCode: strPtr("RAWB77")},
		Items: []domain.ReturnItem{
			{ID: "ritem-1", ProductID: "prod-1", Quantity: 1, Reason: "wrong size", ItemCondition: domain.ItemConditionUnused},
		},
		RefundStatus: domain.RefundStatusNotStarted,
		RefundAmount: 1499,
		CreatedAt:    time.Now().Add(-48 * time.Hour),
		UpdatedAt:    time.Now().Add(-time.Hour),
	}
	if mutate != nil {
		mutate(ret)
	}
	f.returnRepo.put(ret)
	return ret
}

func TestProcessReturnEvent_ReceivedTriggersRefundSaga(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, func(o *domain.Order) {
		o.Status = domain.OrderStatusDelivered
		o.PaymentID = strPtr("pay_XYZ789")
	})
	ret := seedReturn(f, order, nil)

	ev := &domain.ShipmentEvent{
		Source:      domain.SourceCarrierReturn,
		AWB:         "RAWB77",
		StatusLabel: "Return Delivered",
		Timestamp:   eventTime,
	}
	require.NoError(t, f.recon.ProcessReturnEvent(context.Background(), ev))

	stored, err := f.returnRepo.GetByID(context.Background(), ret.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusCompleted, stored.Status)
	assert.Equal(t, domain.RefundStatusProcessed, stored.RefundStatus)
	require.NotNil(t, stored.RefundTransactionID)
	assert.Equal(t, "rfnd_AAA111", *stored.RefundTransactionID)

	assert.Equal(t, 1, f.gateway.calls)
	assert.Equal(t, "pay_XYZ789", f.gateway.lastPaymentID)
	assert.Equal(t, int64(149900), f.gateway.lastAmount)

	storedOrder, _ := f.orderRepo.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.OrderStatusReturned, storedOrder.Status)
	assert.Equal(t, domain.PaymentStatusRefunded, storedOrder.PaymentStatus)

	transitions, _ := f.returnRepo.GetTransitions(context.Background(), ret.ID)
	assert.NotEmpty(t, transitions)
}

func TestProcessReturnEvent_UnmappedLabelAppendsNote(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, nil)
	ret := seedReturn(f, order, nil)

	ev := &domain.ShipmentEvent{
		Source:      domain.SourceCarrierReturn,
		AWB:         "RAWB77",
		StatusLabel: "Held At Facility",
	}
	require.NoError(t, f.recon.ProcessReturnEvent(context.Background(), ev))

	stored, _ := f.returnRepo.GetByID(context.Background(), ret.ID)
	assert.Equal(t, domain.ReturnStatusInTransit, stored.Status, "status must not be guessed")
	require.Len(t, stored.AdminNotes, 1)
	assert.Contains(t, stored.AdminNotes[0].Note, "Held At Facility")
	assert.Equal(t, domain.ActorSystemAutomation, stored.AdminNotes[0].Author)
}

func TestProcessReturnEvent_TerminalReturnIgnored(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, nil)
	ret := seedReturn(f, order, func(r *domain.Return) {
		r.Status = domain.ReturnStatusCompleted
	})

	ev := &domain.ShipmentEvent{
		Source:      domain.SourceCarrierReturn,
		AWB:         "RAWB77",
		StatusLabel: "In Transit",
	}
	require.NoError(t, f.recon.ProcessReturnEvent(context.Background(), ev))

	stored, _ := f.returnRepo.GetByID(context.Background(), ret.ID)
	assert.Equal(t, domain.ReturnStatusCompleted, stored.Status)
}

func TestProcessReturnEvent_RegressionIgnored(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, nil)
	ret := seedReturn(f, order, func(r *domain.Return) {
		r.Status = domain.ReturnStatusReceived
	})

	ev := &domain.ShipmentEvent{
		Source:      domain.SourceCarrierReturn,
		AWB:         "RAWB77",
		StatusLabel: "Picked Up",
	}
	require.NoError(t, f.recon.ProcessReturnEvent(context.Background(), ev))

	stored, _ := f.returnRepo.GetByID(context.Background(), ret.ID)
	assert.Equal(t, domain.ReturnStatusReceived, stored.Status)
	assert.Equal(t, 0, f.gateway.calls)
}

func TestProcessReturnEvent_PickupFailedFlagsManualIntervention(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, nil)
	ret := seedReturn(f, order, nil)

	ev := &domain.ShipmentEvent{
		Source:      domain.SourceCarrierReturn,
		AWB:         "RAWB77",
		StatusLabel: "Pickup Failed",
	}
	require.NoError(t, f.recon.ProcessReturnEvent(context.Background(), ev))

	stored, _ := f.returnRepo.GetByID(context.Background(), ret.ID)
	assert.Equal(t, domain.ReturnStatusPickupFailed, stored.Status)
	assert.True(t, f.txLogRepo.hasType(domain.TxTypeManualIntervention))
}

func TestResyncOrderTracking_PullsAndApplies(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, func(o *domain.Order) {
		o.Shipping.ShipmentID = strPtr("ship-1")
	})
	f.tracker.ev = shipmentEvent(7, nil)

	fresh, err := f.recon.ResyncOrderTracking(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, fresh.Status)
	assert.Equal(t, []string{"shipment:ship-1"}, f.tracker.queried)
}

func TestResyncOrderTracking_NoIdentifiers(t *testing.T) {
	f := newReconFixture()
	order := seedOrder(f.orderRepo, nil)

	_, err := f.recon.ResyncOrderTracking(context.Background(), order.ID)
	require.Error(t, err)
	assert.Empty(t, f.tracker.queried)
}

func TestApplyShipmentEvent_TxFailureLeavesNoPartialState(t *testing.T) {
	f := newReconFixture()
	boom := errors.New("connection reset by peer")
	txLog := NewTxLogger(f.txLogRepo)
	recon := NewReconcileUsecase(f.orderRepo, f.returnRepo, f.refundUC, f.tracker, failingTxManager{err: boom}, txLog)

	order := seedOrder(f.orderRepo, nil)

	_, _, err := recon.ApplyShipmentEvent(context.Background(), order, shipmentEvent(7, nil))
	var pf *domain.PersistenceFailure
	require.ErrorAs(t, err, &pf)
	require.ErrorIs(t, err, boom)

	// The rolled-back transaction must not leak: status, history and
	// tracking all look exactly as before the event.
	stored, getErr := f.orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.OrderStatusShipped, stored.Status)

	history, histErr := f.orderRepo.GetOrderHistory(context.Background(), order.ID)
	require.NoError(t, histErr)
	assert.Empty(t, history)
	assert.Empty(t, f.txLogRepo.entries)
}
