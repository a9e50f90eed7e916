package postgres

import (
	"context"

	"aurika-backend/internal/domain"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txLogRepository struct {
	db *pgxpool.Pool
}

func NewTransactionLogRepository(db *pgxpool.Pool) domain.TransactionLogRepository {
	return &txLogRepository{db: db}
}

func (r *txLogRepository) Append(ctx context.Context, entry *domain.TransactionLog) error {
	payload, _ := json.Marshal(entry.Payload)

	q := querierFromContext(ctx, r.db)
	return q.QueryRow(ctx,
		`INSERT INTO transaction_logs (level, tx_type, message, payload)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		entry.Level, entry.TxType, entry.Message, payload,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *txLogRepository) GetAll(ctx context.Context, filter domain.TransactionLogFilter) ([]domain.TransactionLog, int64, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	offset := (page - 1) * limit

	var level, txType *string
	if filter.Level != "" {
		level = &filter.Level
	}
	if filter.TxType != "" {
		txType = &filter.TxType
	}

	q := querierFromContext(ctx, r.db)
	const filterClause = `
		WHERE ($1::text IS NULL OR level = $1)
		  AND ($2::text IS NULL OR tx_type = $2)`

	rows, err := q.Query(ctx,
		`SELECT id, level, tx_type, message, payload, created_at FROM transaction_logs`+
			filterClause+` ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		level, txType, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.TransactionLog
	for rows.Next() {
		var entry domain.TransactionLog
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Level, &entry.TxType, &entry.Message, &payload, &entry.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &entry.Payload)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM transaction_logs`+filterClause,
		level, txType).Scan(&count); err != nil {
		return nil, 0, err
	}
	return entries, count, nil
}
