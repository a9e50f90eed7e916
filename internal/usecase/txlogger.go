package usecase

import (
	"context"

	"aurika-backend/internal/domain"
	"aurika-backend/pkg/logger"
)

// TxLogger writes the append-only transaction audit log. Writes are
// best-effort relative to the primary state mutation: a failed insert is
// reported through the structured logger and swallowed.
type TxLogger struct {
	repo domain.TransactionLogRepository
}

func NewTxLogger(repo domain.TransactionLogRepository) *TxLogger {
	return &TxLogger{repo: repo}
}

func (l *TxLogger) Log(ctx context.Context, level, txType, message string, payload domain.JSONB) {
	entry := &domain.TransactionLog{
		Level:   level,
		TxType:  txType,
		Message: message,
		Payload: payload,
	}
	if err := l.repo.Append(ctx, entry); err != nil {
		logger.Error().
			Err(err).
			Str("tx_type", txType).
			Str("tx_message", message).
			Msg("Transaction log write failed")
	}
}

func (l *TxLogger) Info(ctx context.Context, txType, message string, payload domain.JSONB) {
	l.Log(ctx, domain.TxLogLevelInfo, txType, message, payload)
}

func (l *TxLogger) Warn(ctx context.Context, txType, message string, payload domain.JSONB) {
	l.Log(ctx, domain.TxLogLevelWarning, txType, message, payload)
}

func (l *TxLogger) Error(ctx context.Context, txType, message string, payload domain.JSONB) {
	l.Log(ctx, domain.TxLogLevelError, txType, message, payload)
}
