package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/inkflow/inkflow/internal/signing/storage"
)

// PutDispatch stores one outbound notification intent. A duplicate
// idempotency key returns ErrConflict so replayed operations cannot
// enqueue twice.
func (s *Store) PutDispatch(ctx context.Context, record storage.DispatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.IdempotencyKey = strings.TrimSpace(record.IdempotencyKey)
	record.RequestID = strings.TrimSpace(record.RequestID)
	record.Kind = strings.TrimSpace(record.Kind)
	if record.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if record.RequestID == "" {
		return fmt.Errorf("request id is required")
	}
	if record.Kind == "" {
		return fmt.Errorf("dispatch kind is required")
	}
	if record.Status == "" {
		return fmt.Errorf("dispatch status is required")
	}
	if record.NextAttemptAt.IsZero() {
		return fmt.Errorf("next attempt at is required")
	}
	if record.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}

	var deliveredAt sql.NullInt64
	if record.DeliveredAt != nil {
		deliveredAt = sql.NullInt64{Int64: toMillis(*record.DeliveredAt), Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notification_dispatches (
	idempotency_key, request_id, signer_id, kind, payload_json,
	status, attempt_count, next_attempt_at, last_error,
	created_at, updated_at, delivered_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.IdempotencyKey,
		record.RequestID,
		record.SignerID,
		record.Kind,
		record.PayloadJSON,
		record.Status,
		record.AttemptCount,
		toMillis(record.NextAttemptAt),
		record.LastError,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
		deliveredAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put dispatch: %w", err)
	}
	return nil
}

// ListDueDispatches lists pending or failed dispatches whose next attempt
// time has passed, in creation order so per-signer delivery stays FIFO.
func (s *Store) ListDueDispatches(ctx context.Context, now time.Time, limit int) ([]storage.DispatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if now.IsZero() {
		return nil, fmt.Errorf("now is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT idempotency_key, request_id, signer_id, kind, payload_json,
	status, attempt_count, next_attempt_at, last_error,
	created_at, updated_at, delivered_at
FROM notification_dispatches
WHERE status IN (?, ?)
  AND next_attempt_at <= ?
ORDER BY created_at ASC, idempotency_key ASC
LIMIT ?
`, storage.DispatchStatusPending, storage.DispatchStatusFailed, toMillis(now.UTC()), limit)
	if err != nil {
		return nil, fmt.Errorf("list due dispatches: %w", err)
	}
	defer rows.Close()

	results := make([]storage.DispatchRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanDispatch(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan dispatch row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch rows: %w", err)
	}
	return results, nil
}

// MarkDispatchRetry records one failed attempt and schedules the next retry.
func (s *Store) MarkDispatchRetry(ctx context.Context, idempotencyKey string, attemptCount int, nextAttemptAt time.Time, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	lastError = strings.TrimSpace(lastError)
	if idempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if attemptCount < 0 {
		return fmt.Errorf("attempt count must be non-negative")
	}
	if nextAttemptAt.IsZero() {
		return fmt.Errorf("next attempt at is required")
	}

	now := time.Now().UTC()
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notification_dispatches
SET status = ?, attempt_count = ?, next_attempt_at = ?, last_error = ?, updated_at = ?, delivered_at = NULL
WHERE idempotency_key = ?
`, storage.DispatchStatusFailed, attemptCount, toMillis(nextAttemptAt.UTC()), lastError, toMillis(now), idempotencyKey)
	if err != nil {
		return fmt.Errorf("mark dispatch retry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark dispatch retry rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkDispatchDelivered finalizes one dispatch record.
func (s *Store) MarkDispatchDelivered(ctx context.Context, idempotencyKey string, deliveredAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if deliveredAt.IsZero() {
		return fmt.Errorf("delivered at is required")
	}

	now := deliveredAt.UTC()
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notification_dispatches
SET status = ?, updated_at = ?, delivered_at = ?, last_error = ''
WHERE idempotency_key = ?
`, storage.DispatchStatusDelivered, toMillis(now), toMillis(now), idempotencyKey)
	if err != nil {
		return fmt.Errorf("mark dispatch delivered: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark dispatch delivered rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountSignerDispatches counts dispatches for one (request, signer, kind)
// triple, including delivered ones.
func (s *Store) CountSignerDispatches(ctx context.Context, requestID, signerID, kind string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	requestID = strings.TrimSpace(requestID)
	kind = strings.TrimSpace(kind)
	if requestID == "" {
		return 0, fmt.Errorf("request id is required")
	}
	if kind == "" {
		return 0, fmt.Errorf("dispatch kind is required")
	}

	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(1)
FROM notification_dispatches
WHERE request_id = ? AND signer_id = ? AND kind = ?
`, requestID, strings.TrimSpace(signerID), kind).Scan(&count); err != nil {
		return 0, fmt.Errorf("count signer dispatches: %w", err)
	}
	return count, nil
}

func scanDispatch(scan scanner) (storage.DispatchRecord, error) {
	var record storage.DispatchRecord
	var nextAttemptAt int64
	var createdAt int64
	var updatedAt int64
	var deliveredAt sql.NullInt64
	if err := scan(
		&record.IdempotencyKey,
		&record.RequestID,
		&record.SignerID,
		&record.Kind,
		&record.PayloadJSON,
		&record.Status,
		&record.AttemptCount,
		&nextAttemptAt,
		&record.LastError,
		&createdAt,
		&updatedAt,
		&deliveredAt,
	); err != nil {
		return storage.DispatchRecord{}, err
	}
	record.NextAttemptAt = fromMillis(nextAttemptAt)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	if deliveredAt.Valid {
		value := fromMillis(deliveredAt.Int64)
		record.DeliveredAt = &value
	}
	return record, nil
}
