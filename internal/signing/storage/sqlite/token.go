package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkflow/inkflow/internal/signing/storage"
)

// PutToken stores one signer access token record.
func (s *Store) PutToken(ctx context.Context, record storage.TokenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.Token = strings.TrimSpace(record.Token)
	record.RequestID = strings.TrimSpace(record.RequestID)
	record.SignerID = strings.TrimSpace(record.SignerID)
	if record.Token == "" {
		return fmt.Errorf("token is required")
	}
	if record.RequestID == "" {
		return fmt.Errorf("request id is required")
	}
	if record.SignerID == "" {
		return fmt.Errorf("signer id is required")
	}
	if record.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}

	var invalidatedAt sql.NullInt64
	if record.InvalidatedAt != nil {
		invalidatedAt = sql.NullInt64{Int64: toMillis(*record.InvalidatedAt), Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO signer_tokens (token, request_id, signer_id, created_at, invalidated_at)
VALUES (?, ?, ?, ?, ?)
`, record.Token, record.RequestID, record.SignerID, toMillis(record.CreatedAt), invalidatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put token: %w", err)
	}
	return nil
}

// GetToken loads one token record, invalidated or not.
func (s *Store) GetToken(ctx context.Context, token string) (storage.TokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TokenRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TokenRecord{}, fmt.Errorf("storage is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return storage.TokenRecord{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT token, request_id, signer_id, created_at, invalidated_at
FROM signer_tokens
WHERE token = ?
`, token)
	var record storage.TokenRecord
	var createdAt int64
	var invalidatedAt sql.NullInt64
	if err := row.Scan(&record.Token, &record.RequestID, &record.SignerID, &createdAt, &invalidatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TokenRecord{}, storage.ErrNotFound
		}
		return storage.TokenRecord{}, fmt.Errorf("get token: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	if invalidatedAt.Valid {
		value := fromMillis(invalidatedAt.Int64)
		record.InvalidatedAt = &value
	}
	return record, nil
}

// InvalidateRequestTokens flags every live token of a request.
func (s *Store) InvalidateRequestTokens(ctx context.Context, requestID string, invalidatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return fmt.Errorf("request id is required")
	}
	if invalidatedAt.IsZero() {
		return fmt.Errorf("invalidated at is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
UPDATE signer_tokens
SET invalidated_at = ?
WHERE request_id = ? AND invalidated_at IS NULL
`, toMillis(invalidatedAt.UTC()), requestID)
	if err != nil {
		return fmt.Errorf("invalidate request tokens: %w", err)
	}
	return nil
}
