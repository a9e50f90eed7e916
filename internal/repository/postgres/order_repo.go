package postgres

import (
	"context"
	"errors"
	"time"

	"aurika-backend/internal/domain"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type orderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) domain.OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, order_number, user_id, status, total_amount, shipping_fee,
	shipping_address, payment_method, payment_status, payment_id,
	shipping_status, shipment_id, carrier_order_id, awb_code, courier_name,
	estimated_date, created_at, updated_at`

func (r *orderRepository) scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var shippingAddr []byte
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.TotalAmount, &o.ShippingFee,
		&shippingAddr, &o.PaymentMethod, &o.PaymentStatus, &o.PaymentID,
		&o.Shipping.Status, &o.Shipping.ShipmentID, &o.Shipping.CarrierOrderID,
		&o.Shipping.AWBCode, &o.Shipping.CourierName, &o.Shipping.EstimatedDate,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(shippingAddr) > 0 {
		var addr domain.JSONB
		if err := json.Unmarshal(shippingAddr, &addr); err == nil {
			o.ShippingAddress = addr
		}
	}
	return &o, nil
}

func (r *orderRepository) getBy(ctx context.Context, where string, arg interface{}) (*domain.Order, error) {
	q := querierFromContext(ctx, r.db)
	order, err := r.scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	if err := r.loadTrackingHistory(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, order *domain.Order) error {
	q := querierFromContext(ctx, r.db)
	rows, err := q.Query(ctx,
		`SELECT id, order_id, product_id, name, quantity, price FROM order_items WHERE order_id = $1`,
		order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Quantity, &it.Price); err != nil {
			return err
		}
		order.Items = append(order.Items, it)
	}
	return rows.Err()
}

func (r *orderRepository) loadTrackingHistory(ctx context.Context, order *domain.Order) error {
	q := querierFromContext(ctx, r.db)
	rows, err := q.Query(ctx,
		`SELECT activity, location, event_time, status_code, status_label
		 FROM order_tracking_events WHERE order_id = $1 ORDER BY event_time`,
		order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ev domain.TrackingEvent
		if err := rows.Scan(&ev.Activity, &ev.Location, &ev.Timestamp, &ev.StatusCode, &ev.StatusLabel); err != nil {
			return err
		}
		order.TrackingHistory = append(order.TrackingHistory, ev)
	}
	return rows.Err()
}

// --- Lookups ---

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getBy(ctx, "id = $1", id)
}

func (r *orderRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.getBy(ctx, "order_number = $1", orderNumber)
}

func (r *orderRepository) GetByShipmentID(ctx context.Context, shipmentID string) (*domain.Order, error) {
	return r.getBy(ctx, "shipment_id = $1", shipmentID)
}

func (r *orderRepository) GetByCarrierOrderID(ctx context.Context, carrierOrderID string) (*domain.Order, error) {
	return r.getBy(ctx, "carrier_order_id = $1", carrierOrderID)
}

func (r *orderRepository) GetByAWB(ctx context.Context, awb string) (*domain.Order, error) {
	return r.getBy(ctx, "awb_code = $1", awb)
}

func (r *orderRepository) GetByUserID(ctx context.Context, userID string) ([]domain.Order, error) {
	q := querierFromContext(ctx, r.db)
	rows, err := q.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (r *orderRepository) GetAll(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int64, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	var status, paymentStatus, search *string
	if filter.Status != "" {
		status = &filter.Status
	}
	if filter.PaymentStatus != "" {
		paymentStatus = &filter.PaymentStatus
	}
	if filter.Search != "" {
		search = &filter.Search
	}

	q := querierFromContext(ctx, r.db)
	const filterClause = `
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR payment_status = $2)
		  AND ($3::text IS NULL OR order_number ILIKE '%' || $3 || '%'
		       OR COALESCE(awb_code, '') ILIKE '%' || $3 || '%'
		       OR COALESCE(shipment_id, '') ILIKE '%' || $3 || '%')`

	rows, err := q.Query(ctx,
		`SELECT `+orderColumns+` FROM orders`+filterClause+
			` ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		status, paymentStatus, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+filterClause,
		status, paymentStatus, search).Scan(&count); err != nil {
		return nil, 0, err
	}
	return orders, count, nil
}

// --- Writes ---

func (r *orderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	q := querierFromContext(ctx, r.db)
	shippingAddr, _ := json.Marshal(order.ShippingAddress)

	err := q.QueryRow(ctx,
		`INSERT INTO orders (id, order_number, user_id, status, total_amount, shipping_fee,
			shipping_address, payment_method, payment_status, shipping_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		order.ID, order.OrderNumber, order.UserID, order.Status, order.TotalAmount,
		order.ShippingFee, shippingAddr, order.PaymentMethod, order.PaymentStatus,
		order.Shipping.Status,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range order.Items {
		item := &order.Items[i]
		if _, err := q.Exec(ctx,
			`INSERT INTO order_items (id, order_id, product_id, name, quantity, price)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, order.ID, item.ProductID, item.Name, item.Quantity, item.Price); err != nil {
			return err
		}
	}
	return nil
}

// ApplyShipmentPatch is the engine's single conditional write. The status
// row moves only while it is still behind the patch (guarded by the allowed
// predecessor set), tracking events dedupe on (order_id, event_time,
// status_code), and secondary fields refresh either way.
func (r *orderRepository) ApplyShipmentPatch(ctx context.Context, patch domain.ShipmentPatch) (bool, error) {
	q := querierFromContext(ctx, r.db)

	for _, ev := range patch.TrackingEvents {
		if _, err := q.Exec(ctx,
			`INSERT INTO order_tracking_events (order_id, activity, location, event_time, status_code, status_label)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (order_id, event_time, status_code) DO NOTHING`,
			patch.OrderID, ev.Activity, ev.Location, ev.Timestamp, ev.StatusCode, ev.StatusLabel); err != nil {
			return false, err
		}
	}

	if patch.NewStatus == nil {
		_, err := q.Exec(ctx,
			`UPDATE orders SET
				courier_name = COALESCE($2, courier_name),
				estimated_date = COALESCE($3, estimated_date),
				updated_at = now()
			 WHERE id = $1`,
			patch.OrderID, patch.CourierName, patch.EstimatedDate)
		return false, err
	}

	// Statuses the row may currently hold for this advance to be valid.
	newWeight := domain.OrderStatusWeights[*patch.NewStatus]
	allowed := make([]string, 0, len(domain.OrderStatusWeights))
	for status, weight := range domain.OrderStatusWeights {
		if weight < newWeight {
			allowed = append(allowed, status)
		}
	}

	tag, err := q.Exec(ctx,
		`UPDATE orders SET
			status = $2,
			shipping_status = COALESCE($3, shipping_status),
			payment_status = CASE WHEN $4 THEN 'paid' ELSE payment_status END,
			courier_name = COALESCE($5, courier_name),
			estimated_date = COALESCE($6, estimated_date),
			updated_at = now()
		 WHERE id = $1 AND status = ANY($7)`,
		patch.OrderID, *patch.NewStatus, patch.NewShippingStatus, patch.MarkPaid,
		patch.CourierName, patch.EstimatedDate, allowed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id, status string) error {
	q := querierFromContext(ctx, r.db)
	_, err := q.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *orderRepository) UpdatePaymentStatus(ctx context.Context, id, status string) error {
	q := querierFromContext(ctx, r.db)
	_, err := q.Exec(ctx,
		`UPDATE orders SET payment_status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *orderRepository) SetPaymentCaptured(ctx context.Context, id, paymentID string) error {
	q := querierFromContext(ctx, r.db)
	tag, err := q.Exec(ctx,
		`UPDATE orders SET payment_status = 'paid', payment_id = $2, updated_at = now()
		 WHERE id = $1 AND payment_id IS NULL`, id, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the order does not exist or a capture already landed.
		var existing *string
		err := q.QueryRow(ctx, `SELECT payment_id FROM orders WHERE id = $1`, id).Scan(&existing)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (r *orderRepository) SetShippingIdentifiers(ctx context.Context, id string, info domain.ShippingInfo) error {
	q := querierFromContext(ctx, r.db)
	tag, err := q.Exec(ctx,
		`UPDATE orders SET
			shipping_status = $2,
			shipment_id = COALESCE($3, shipment_id),
			carrier_order_id = COALESCE($4, carrier_order_id),
			awb_code = COALESCE($5, awb_code),
			courier_name = COALESCE($6, courier_name),
			estimated_date = COALESCE($7, estimated_date),
			updated_at = now()
		 WHERE id = $1`,
		id, info.Status, info.ShipmentID, info.CarrierOrderID, info.AWBCode,
		info.CourierName, info.EstimatedDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- History ---

func (r *orderRepository) CreateOrderHistory(ctx context.Context, history *domain.OrderHistory) error {
	q := querierFromContext(ctx, r.db)
	return q.QueryRow(ctx,
		`INSERT INTO order_history (order_id, previous_status, new_status, reason, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		history.OrderID, history.PreviousStatus, history.NewStatus, history.Reason, history.CreatedBy,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *orderRepository) GetOrderHistory(ctx context.Context, orderID string) ([]domain.OrderHistory, error) {
	q := querierFromContext(ctx, r.db)
	rows, err := q.Query(ctx,
		`SELECT id, order_id, previous_status, new_status, reason, created_by, created_at
		 FROM order_history WHERE order_id = $1 ORDER BY created_at DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.OrderHistory
	for rows.Next() {
		var h domain.OrderHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.PreviousStatus, &h.NewStatus, &h.Reason, &h.CreatedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// --- Stuck-entity detector queries ---

func (r *orderRepository) stuckRows(ctx context.Context, query string, args ...interface{}) ([]domain.StuckOrderRow, error) {
	q := querierFromContext(ctx, r.db)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StuckOrderRow
	for rows.Next() {
		var row domain.StuckOrderRow
		var note *string
		err := rows.Scan(
			&row.Order.ID, &row.Order.OrderNumber, &row.Order.Status,
			&row.Order.PaymentMethod, &row.Order.PaymentStatus,
			&row.HasShipment, &row.AgeHours, &note,
		)
		if err != nil {
			return nil, err
		}
		if note != nil {
			row.MatchedNote = *note
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

const stuckSelect = `SELECT id, order_number, status, payment_method, payment_status,
	(shipment_id IS NOT NULL OR awb_code IS NOT NULL) AS has_shipment,
	EXTRACT(EPOCH FROM (now() - created_at)) / 3600 AS age_hours,
	NULL::text AS matched_note
	FROM orders `

func (r *orderRepository) FindPaidUnshipped(ctx context.Context, olderThan time.Duration) ([]domain.StuckOrderRow, error) {
	cutoff := time.Now().Add(-olderThan)
	return r.stuckRows(ctx, stuckSelect+
		`WHERE payment_method = 'online' AND payment_status = 'paid'
		   AND shipment_id IS NULL AND awb_code IS NULL
		   AND status NOT IN ('cancelled', 'returned', 'delivered')
		   AND created_at < $1
		 ORDER BY created_at`, cutoff)
}

func (r *orderRepository) FindPendingPaid(ctx context.Context, olderThan time.Duration) ([]domain.StuckOrderRow, error) {
	cutoff := time.Now().Add(-olderThan)
	return r.stuckRows(ctx, stuckSelect+
		`WHERE status = 'pending' AND payment_status = 'paid' AND updated_at < $1
		 ORDER BY updated_at`, cutoff)
}

func (r *orderRepository) FindCancelledPaid(ctx context.Context, within time.Duration) ([]domain.StuckOrderRow, error) {
	since := time.Now().Add(-within)
	return r.stuckRows(ctx, stuckSelect+
		`WHERE status = 'cancelled' AND payment_status = 'paid' AND updated_at > $1
		 ORDER BY updated_at DESC`, since)
}

func (r *orderRepository) FindUrgentFlagged(ctx context.Context, marker string) ([]domain.StuckOrderRow, error) {
	return r.stuckRows(ctx,
		`SELECT o.id, o.order_number, o.status, o.payment_method, o.payment_status,
			(o.shipment_id IS NOT NULL OR o.awb_code IS NOT NULL) AS has_shipment,
			EXTRACT(EPOCH FROM (now() - o.created_at)) / 3600 AS age_hours,
			h.reason AS matched_note
		 FROM orders o
		 JOIN LATERAL (
			SELECT reason FROM order_history
			WHERE order_id = o.id AND reason ILIKE '%' || $1 || '%'
			ORDER BY created_at DESC LIMIT 1
		 ) h ON true
		 WHERE o.status NOT IN ('delivered', 'returned')
		 ORDER BY o.updated_at DESC`, marker)
}
