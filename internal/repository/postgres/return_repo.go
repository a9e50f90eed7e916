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

type returnRepository struct {
	db *pgxpool.Pool
}

func NewReturnRepository(db *pgxpool.Pool) domain.ReturnRepository {
	return &returnRepository{db: db}
}

const returnColumns = `r.id, r.return_number, r.order_id, o.order_number, r.user_id, r.status,
	r.shipment_id, r.awb_code, r.refund_details, r.refund_status,
	r.refund_transaction_id, r.refund_amount, r.admin_notes, r.created_at, r.updated_at`

const returnFrom = ` FROM returns r JOIN orders o ON o.id = r.order_id `

func (r *returnRepository) scanReturn(row pgx.Row) (*domain.Return, error) {
	var ret domain.Return
	var refundDetails, adminNotes []byte
	err := row.Scan(
		&ret.ID, &ret.ReturnNumber, &ret.OrderID, &ret.OrderNumber, &ret.UserID, &ret.Status,
		&ret.Shipping.ShipmentID, &ret.Shipping.AWBCode, &refundDetails, &ret.RefundStatus,
		&ret.RefundTransactionID, &ret.RefundAmount, &adminNotes, &ret.CreatedAt, &ret.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(refundDetails) > 0 {
		_ = json.Unmarshal(refundDetails, &ret.RefundDetails)
	}
	if len(adminNotes) > 0 {
		_ = json.Unmarshal(adminNotes, &ret.AdminNotes)
	}
	return &ret, nil
}

func (r *returnRepository) getBy(ctx context.Context, where string, arg interface{}) (*domain.Return, error) {
	q := querierFromContext(ctx, r.db)
	ret, err := r.scanReturn(q.QueryRow(ctx, `SELECT `+returnColumns+returnFrom+`WHERE `+where, arg))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (r *returnRepository) loadItems(ctx context.Context, ret *domain.Return) error {
	q := querierFromContext(ctx, r.db)
	rows, err := q.Query(ctx,
		`SELECT id, return_id, product_id, quantity, reason, item_condition
		 FROM return_items WHERE return_id = $1`, ret.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.ReturnItem
		if err := rows.Scan(&it.ID, &it.ReturnID, &it.ProductID, &it.Quantity, &it.Reason, &it.ItemCondition); err != nil {
			return err
		}
		ret.Items = append(ret.Items, it)
	}
	return rows.Err()
}

// --- Lookups ---

func (r *returnRepository) GetByID(ctx context.Context, id string) (*domain.Return, error) {
	return r.getBy(ctx, "r.id = $1", id)
}

func (r *returnRepository) GetByReturnNumber(ctx context.Context, returnNumber string) (*domain.Return, error) {
	return r.getBy(ctx, "r.return_number = $1", returnNumber)
}

func (r *returnRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Return, error) {
	return r.getBy(ctx, "r.order_id = $1", orderID)
}

func (r *returnRepository) GetByShipmentID(ctx context.Context, shipmentID string) (*domain.Return, error) {
	return r.getBy(ctx, "r.shipment_id = $1", shipmentID)
}

func (r *returnRepository) GetByAWB(ctx context.Context, awb string) (*domain.Return, error) {
	return r.getBy(ctx, "r.awb_code = $1", awb)
}

func (r *returnRepository) GetByRefundTransactionID(ctx context.Context, refundID string) (*domain.Return, error) {
	return r.getBy(ctx, "r.refund_transaction_id = $1", refundID)
}

func (r *returnRepository) GetAll(ctx context.Context, filter domain.ReturnFilter) ([]domain.Return, int64, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	var status *string
	if filter.Status != "" {
		status = &filter.Status
	}

	q := querierFromContext(ctx, r.db)
	rows, err := q.Query(ctx,
		`SELECT `+returnColumns+returnFrom+
			`WHERE ($1::text IS NULL OR r.status = $1)
			 ORDER BY r.created_at DESC LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var returns []domain.Return
	for rows.Next() {
		ret, err := r.scanReturn(rows)
		if err != nil {
			return nil, 0, err
		}
		returns = append(returns, *ret)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int64
	if err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM returns r WHERE ($1::text IS NULL OR r.status = $1)`,
		status).Scan(&count); err != nil {
		return nil, 0, err
	}
	return returns, count, nil
}

// --- Writes ---

func (r *returnRepository) CreateReturn(ctx context.Context, ret *domain.Return) error {
	q := querierFromContext(ctx, r.db)
	refundDetails, _ := json.Marshal(ret.RefundDetails)

	err := q.QueryRow(ctx,
		`INSERT INTO returns (id, return_number, order_id, user_id, status,
			refund_details, refund_status, refund_amount, admin_notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '[]'::jsonb)
		 RETURNING created_at, updated_at`,
		ret.ID, ret.ReturnNumber, ret.OrderID, ret.UserID, ret.Status,
		refundDetails, ret.RefundStatus, ret.RefundAmount,
	).Scan(&ret.CreatedAt, &ret.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range ret.Items {
		item := &ret.Items[i]
		if _, err := q.Exec(ctx,
			`INSERT INTO return_items (id, return_id, product_id, quantity, reason, item_condition)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, ret.ID, item.ProductID, item.Quantity, item.Reason, item.ItemCondition); err != nil {
			return err
		}
	}
	return nil
}

func (r *returnRepository) UpdateStatusIf(ctx context.Context, id, expectedStatus, newStatus string) (bool, error) {
	q := querierFromContext(ctx, r.db)
	tag, err := q.Exec(ctx,
		`UPDATE returns SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2`,
		id, expectedStatus, newStatus)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *returnRepository) ApplyRefundResult(ctx context.Context, res domain.RefundResult) (bool, error) {
	q := querierFromContext(ctx, r.db)
	tag, err := q.Exec(ctx,
		`UPDATE returns SET
			status = $3,
			refund_status = $4,
			refund_transaction_id = COALESCE($5, refund_transaction_id),
			updated_at = now()
		 WHERE id = $1 AND status = $2`,
		res.ReturnID, res.ExpectedStatus, res.NewStatus, res.RefundStatus, res.RefundTransactionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *returnRepository) SetShippingIdentifiers(ctx context.Context, id string, shipping domain.ReturnShipping) error {
	q := querierFromContext(ctx, r.db)
	tag, err := q.Exec(ctx,
		`UPDATE returns SET
			shipment_id = COALESCE($2, shipment_id),
			awb_code = COALESCE($3, awb_code),
			updated_at = now()
		 WHERE id = $1`,
		id, shipping.ShipmentID, shipping.AWBCode)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *returnRepository) AppendAdminNote(ctx context.Context, id string, note domain.AdminNote) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	encoded, err := json.Marshal(note)
	if err != nil {
		return err
	}

	q := querierFromContext(ctx, r.db)
	tag, err := q.Exec(ctx,
		`UPDATE returns SET
			admin_notes = COALESCE(admin_notes, '[]'::jsonb) || $2::jsonb,
			updated_at = now()
		 WHERE id = $1`,
		id, encoded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- Transitions ---

func (r *returnRepository) CreateTransition(ctx context.Context, tr *domain.ReturnTransition) error {
	q := querierFromContext(ctx, r.db)
	return q.QueryRow(ctx,
		`INSERT INTO return_transitions (return_id, previous_status, new_status, actor, reason)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		tr.ReturnID, tr.PreviousStatus, tr.NewStatus, tr.Actor, tr.Reason,
	).Scan(&tr.ID, &tr.CreatedAt)
}

func (r *returnRepository) GetTransitions(ctx context.Context, returnID string) ([]domain.ReturnTransition, error) {
	q := querierFromContext(ctx, r.db)
	rows, err := q.Query(ctx,
		`SELECT id, return_id, previous_status, new_status, actor, reason, created_at
		 FROM return_transitions WHERE return_id = $1 ORDER BY created_at`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []domain.ReturnTransition
	for rows.Next() {
		var tr domain.ReturnTransition
		if err := rows.Scan(&tr.ID, &tr.ReturnID, &tr.PreviousStatus, &tr.NewStatus, &tr.Actor, &tr.Reason, &tr.CreatedAt); err != nil {
			return nil, err
		}
		transitions = append(transitions, tr)
	}
	return transitions, rows.Err()
}

// --- Stuck-entity detector queries ---

func (r *returnRepository) findReturns(ctx context.Context, where string, args ...interface{}) ([]domain.Return, error) {
	q := querierFromContext(ctx, r.db)
	rows, err := q.Query(ctx,
		`SELECT `+returnColumns+returnFrom+`WHERE `+where+` ORDER BY r.updated_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var returns []domain.Return
	for rows.Next() {
		ret, err := r.scanReturn(rows)
		if err != nil {
			return nil, err
		}
		returns = append(returns, *ret)
	}
	return returns, rows.Err()
}

func (r *returnRepository) FindStuckRefunds(ctx context.Context, olderThan time.Duration) ([]domain.Return, error) {
	cutoff := time.Now().Add(-olderThan)
	return r.findReturns(ctx,
		`r.status = 'approved_refund' AND r.refund_status IN ('not_started', 'failed')
		 AND r.updated_at < $1`, cutoff)
}

func (r *returnRepository) FindPickupFailed(ctx context.Context) ([]domain.Return, error) {
	return r.findReturns(ctx, `r.status = 'pickup_failed'`)
}
