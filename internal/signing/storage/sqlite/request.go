package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkflow/inkflow/internal/signing/domain"
	"github.com/inkflow/inkflow/internal/signing/storage"
)

// PutRequest stores a new signing request aggregate with its signers and
// fields in one transaction.
func (s *Store) PutRequest(ctx context.Context, request domain.SigningRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(request.ID) == "" {
		return fmt.Errorf("request id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin request write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback request write: %v", cause, rollbackErr)
		}
		return cause
	}

	ccJSON, err := encodeCcEmails(request.CcEmails)
	if err != nil {
		return rollbackWith(err)
	}
	var dueDate sql.NullInt64
	if request.DueDate != nil {
		dueDate = sql.NullInt64{Int64: toMillis(*request.DueDate), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO signing_requests (
	id, document_id, document_name, sender_name, sender_email,
	status, ordering_mode, message, subject, cc_emails, due_date,
	void_reason, decline_reason, created_at, updated_at, version
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		request.ID,
		request.DocumentID,
		request.DocumentName,
		request.SenderName,
		request.SenderEmail,
		domain.RequestStatusLabel(request.Status),
		domain.OrderingModeLabel(request.OrderingMode),
		request.Message,
		request.Subject,
		ccJSON,
		dueDate,
		request.VoidReason,
		request.DeclineReason,
		toMillis(request.CreatedAt),
		toMillis(request.UpdatedAt),
		request.Version,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return rollbackWith(storage.ErrConflict)
		}
		return rollbackWith(fmt.Errorf("insert request: %w", err))
	}

	if err := insertRequestChildren(ctx, tx, request); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit request write: %w", err)
	}
	return nil
}

// GetRequest loads one aggregate with its signers and fields.
func (s *Store) GetRequest(ctx context.Context, requestID string) (domain.SigningRequest, error) {
	if err := ctx.Err(); err != nil {
		return domain.SigningRequest{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.SigningRequest{}, fmt.Errorf("storage is not configured")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return domain.SigningRequest{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, document_id, document_name, sender_name, sender_email,
	status, ordering_mode, message, subject, cc_emails, due_date,
	void_reason, decline_reason, created_at, updated_at, version
FROM signing_requests
WHERE id = ?
`, requestID)
	request, err := scanRequest(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SigningRequest{}, storage.ErrNotFound
		}
		return domain.SigningRequest{}, fmt.Errorf("get request: %w", err)
	}
	if err := s.loadRequestChildren(ctx, &request); err != nil {
		return domain.SigningRequest{}, err
	}
	return request, nil
}

// UpdateRequest replaces the aggregate if the stored version matches
// expectedVersion. The write bumps the version by one; a mismatch returns
// ErrVersionConflict so the caller can re-read and retry.
func (s *Store) UpdateRequest(ctx context.Context, request domain.SigningRequest, expectedVersion int64) (domain.SigningRequest, error) {
	if err := ctx.Err(); err != nil {
		return domain.SigningRequest{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.SigningRequest{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(request.ID) == "" {
		return domain.SigningRequest{}, fmt.Errorf("request id is required")
	}
	if expectedVersion < 1 {
		return domain.SigningRequest{}, fmt.Errorf("expected version must be positive")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SigningRequest{}, fmt.Errorf("begin request update: %w", err)
	}
	rollbackWith := func(cause error) (domain.SigningRequest, error) {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return domain.SigningRequest{}, fmt.Errorf("%w: rollback request update: %v", cause, rollbackErr)
		}
		return domain.SigningRequest{}, cause
	}

	ccJSON, err := encodeCcEmails(request.CcEmails)
	if err != nil {
		return rollbackWith(err)
	}
	var dueDate sql.NullInt64
	if request.DueDate != nil {
		dueDate = sql.NullInt64{Int64: toMillis(*request.DueDate), Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
UPDATE signing_requests
SET document_id = ?, document_name = ?, sender_name = ?, sender_email = ?,
	status = ?, ordering_mode = ?, message = ?, subject = ?, cc_emails = ?,
	due_date = ?, void_reason = ?, decline_reason = ?, updated_at = ?,
	version = version + 1
WHERE id = ? AND version = ?
`,
		request.DocumentID,
		request.DocumentName,
		request.SenderName,
		request.SenderEmail,
		domain.RequestStatusLabel(request.Status),
		domain.OrderingModeLabel(request.OrderingMode),
		request.Message,
		request.Subject,
		ccJSON,
		dueDate,
		request.VoidReason,
		request.DeclineReason,
		toMillis(request.UpdatedAt),
		request.ID,
		expectedVersion,
	)
	if err != nil {
		return rollbackWith(fmt.Errorf("update request: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return rollbackWith(fmt.Errorf("update request rows affected: %w", err))
	}
	if affected == 0 {
		var exists int
		scanErr := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM signing_requests WHERE id = ?`, request.ID).Scan(&exists)
		if scanErr != nil {
			return rollbackWith(fmt.Errorf("check request existence: %w", scanErr))
		}
		if exists == 0 {
			return rollbackWith(storage.ErrNotFound)
		}
		return rollbackWith(storage.ErrVersionConflict)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM request_signers WHERE request_id = ?`, request.ID); err != nil {
		return rollbackWith(fmt.Errorf("clear request signers: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM signature_fields WHERE request_id = ?`, request.ID); err != nil {
		return rollbackWith(fmt.Errorf("clear signature fields: %w", err))
	}
	if err := insertRequestChildren(ctx, tx, request); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return domain.SigningRequest{}, fmt.Errorf("commit request update: %w", err)
	}

	request.Version = expectedVersion + 1
	return request, nil
}

// ListRequestsBySender lists a sender's requests newest-first with cursor
// pagination.
func (s *Store) ListRequestsBySender(ctx context.Context, senderEmail string, pageSize int, pageToken string) (storage.RequestPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.RequestPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.RequestPage{}, fmt.Errorf("storage is not configured")
	}
	senderEmail = strings.TrimSpace(senderEmail)
	pageToken = strings.TrimSpace(pageToken)
	if senderEmail == "" {
		return storage.RequestPage{}, fmt.Errorf("sender email is required")
	}
	if pageSize <= 0 {
		return storage.RequestPage{}, fmt.Errorf("page size must be greater than zero")
	}

	limit := pageSize + 1
	var rows *sql.Rows
	var err error
	if pageToken == "" {
		rows, err = s.sqlDB.QueryContext(ctx, `
SELECT id, document_id, document_name, sender_name, sender_email,
	status, ordering_mode, message, subject, cc_emails, due_date,
	void_reason, decline_reason, created_at, updated_at, version
FROM signing_requests
WHERE sender_email = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, senderEmail, limit)
	} else {
		tokenCreatedAt, cursorErr := s.requestCreatedAtByID(ctx, senderEmail, pageToken)
		if cursorErr != nil {
			if errors.Is(cursorErr, storage.ErrNotFound) {
				return storage.RequestPage{}, nil
			}
			return storage.RequestPage{}, cursorErr
		}
		rows, err = s.sqlDB.QueryContext(ctx, `
SELECT id, document_id, document_name, sender_name, sender_email,
	status, ordering_mode, message, subject, cc_emails, due_date,
	void_reason, decline_reason, created_at, updated_at, version
FROM signing_requests
WHERE sender_email = ?
  AND (created_at < ? OR (created_at = ? AND id < ?))
ORDER BY created_at DESC, id DESC
LIMIT ?
`, senderEmail, toMillis(tokenCreatedAt), toMillis(tokenCreatedAt), pageToken, limit)
	}
	if err != nil {
		return storage.RequestPage{}, fmt.Errorf("list requests by sender: %w", err)
	}
	defer rows.Close()

	page := storage.RequestPage{Requests: make([]domain.SigningRequest, 0, pageSize)}
	for rows.Next() {
		request, scanErr := scanRequest(rows.Scan)
		if scanErr != nil {
			return storage.RequestPage{}, fmt.Errorf("scan request row: %w", scanErr)
		}
		page.Requests = append(page.Requests, request)
	}
	if err := rows.Err(); err != nil {
		return storage.RequestPage{}, fmt.Errorf("iterate request rows: %w", err)
	}
	if len(page.Requests) > pageSize {
		page.NextPageToken = page.Requests[pageSize-1].ID
		page.Requests = page.Requests[:pageSize]
	}
	for i := range page.Requests {
		if err := s.loadRequestChildren(ctx, &page.Requests[i]); err != nil {
			return storage.RequestPage{}, err
		}
	}
	return page, nil
}

// ListDueRequests returns live requests whose due date passed, oldest first.
func (s *Store) ListDueRequests(ctx context.Context, now time.Time, limit int) ([]domain.SigningRequest, error) {
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
SELECT id, document_id, document_name, sender_name, sender_email,
	status, ordering_mode, message, subject, cc_emails, due_date,
	void_reason, decline_reason, created_at, updated_at, version
FROM signing_requests
WHERE due_date IS NOT NULL
  AND due_date <= ?
  AND status IN (?, ?)
ORDER BY due_date ASC, id ASC
LIMIT ?
`, toMillis(now.UTC()),
		domain.RequestStatusLabel(domain.RequestStatusPending),
		domain.RequestStatusLabel(domain.RequestStatusInProgress),
		limit)
	if err != nil {
		return nil, fmt.Errorf("list due requests: %w", err)
	}
	defer rows.Close()

	results := make([]domain.SigningRequest, 0, limit)
	for rows.Next() {
		request, scanErr := scanRequest(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan due request row: %w", scanErr)
		}
		results = append(results, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due request rows: %w", err)
	}
	for i := range results {
		if err := s.loadRequestChildren(ctx, &results[i]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// ListStaleRequests returns live requests not touched since updatedBefore,
// oldest first.
func (s *Store) ListStaleRequests(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.SigningRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if updatedBefore.IsZero() {
		return nil, fmt.Errorf("updated before is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, document_id, document_name, sender_name, sender_email,
	status, ordering_mode, message, subject, cc_emails, due_date,
	void_reason, decline_reason, created_at, updated_at, version
FROM signing_requests
WHERE updated_at <= ?
  AND status IN (?, ?)
ORDER BY updated_at ASC, id ASC
LIMIT ?
`, toMillis(updatedBefore.UTC()),
		domain.RequestStatusLabel(domain.RequestStatusPending),
		domain.RequestStatusLabel(domain.RequestStatusInProgress),
		limit)
	if err != nil {
		return nil, fmt.Errorf("list stale requests: %w", err)
	}
	defer rows.Close()

	results := make([]domain.SigningRequest, 0, limit)
	for rows.Next() {
		request, scanErr := scanRequest(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan stale request row: %w", scanErr)
		}
		results = append(results, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale request rows: %w", err)
	}
	for i := range results {
		if err := s.loadRequestChildren(ctx, &results[i]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// DeleteRequest removes a terminal aggregate. Live requests cannot be
// deleted; the sender voids them first.
func (s *Store) DeleteRequest(ctx context.Context, requestID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return storage.ErrNotFound
	}

	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM signing_requests
WHERE id = ?
  AND status IN (?, ?, ?, ?)
`, requestID,
		domain.RequestStatusLabel(domain.RequestStatusCompleted),
		domain.RequestStatusLabel(domain.RequestStatusDeclined),
		domain.RequestStatusLabel(domain.RequestStatusVoided),
		domain.RequestStatusLabel(domain.RequestStatusExpired))
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete request rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		if scanErr := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM signing_requests WHERE id = ?`, requestID).Scan(&exists); scanErr != nil {
			return fmt.Errorf("check request existence: %w", scanErr)
		}
		if exists == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

func (s *Store) requestCreatedAtByID(ctx context.Context, senderEmail string, requestID string) (time.Time, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT created_at
FROM signing_requests
WHERE sender_email = ? AND id = ?
`, senderEmail, requestID)
	var createdAtMillis int64
	if err := row.Scan(&createdAtMillis); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("lookup request cursor: %w", err)
	}
	return fromMillis(createdAtMillis), nil
}

func (s *Store) loadRequestChildren(ctx context.Context, request *domain.SigningRequest) error {
	signers, err := s.loadSigners(ctx, request.ID)
	if err != nil {
		return err
	}
	fields, err := s.loadFields(ctx, request.ID)
	if err != nil {
		return err
	}
	request.Signers = signers
	request.Fields = fields
	return nil
}

func (s *Store) loadSigners(ctx context.Context, requestID string) ([]domain.Signer, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, email, sign_order, status, token, signed_at, is_self
FROM request_signers
WHERE request_id = ?
ORDER BY sign_order ASC
`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list request signers: %w", err)
	}
	defer rows.Close()

	var signers []domain.Signer
	for rows.Next() {
		var signer domain.Signer
		var statusLabel string
		var signedAt sql.NullInt64
		var isSelf int
		if err := rows.Scan(&signer.ID, &signer.Name, &signer.Email, &signer.Order, &statusLabel, &signer.Token, &signedAt, &isSelf); err != nil {
			return nil, fmt.Errorf("scan signer row: %w", err)
		}
		signer.Status = domain.SignerStatusFromLabel(statusLabel)
		if signedAt.Valid {
			value := fromMillis(signedAt.Int64)
			signer.SignedAt = &value
		}
		signer.IsSelf = isSelf != 0
		signers = append(signers, signer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signer rows: %w", err)
	}
	return signers, nil
}

func (s *Store) loadFields(ctx context.Context, requestID string) ([]domain.SignatureField, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, signer_order, x, y, w, h, field_type, label, value
FROM signature_fields
WHERE request_id = ?
ORDER BY id ASC
`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list signature fields: %w", err)
	}
	defer rows.Close()

	var fields []domain.SignatureField
	for rows.Next() {
		var field domain.SignatureField
		var typeLabel string
		if err := rows.Scan(&field.ID, &field.SignerOrder, &field.X, &field.Y, &field.W, &field.H, &typeLabel, &field.Label, &field.Value); err != nil {
			return nil, fmt.Errorf("scan field row: %w", err)
		}
		field.Type = domain.FieldTypeFromLabel(typeLabel)
		fields = append(fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field rows: %w", err)
	}
	return fields, nil
}

func insertRequestChildren(ctx context.Context, execer sqlExecer, request domain.SigningRequest) error {
	for _, signer := range request.Signers {
		var signedAt sql.NullInt64
		if signer.SignedAt != nil {
			signedAt = sql.NullInt64{Int64: toMillis(*signer.SignedAt), Valid: true}
		}
		isSelf := 0
		if signer.IsSelf {
			isSelf = 1
		}
		_, err := execer.ExecContext(ctx, `
INSERT INTO request_signers (id, request_id, name, email, sign_order, status, token, signed_at, is_self)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, signer.ID, request.ID, signer.Name, signer.Email, signer.Order, domain.SignerStatusLabel(signer.Status), signer.Token, signedAt, isSelf)
		if err != nil {
			if isUniqueConstraintError(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("insert request signer: %w", err)
		}
	}
	for _, field := range request.Fields {
		_, err := execer.ExecContext(ctx, `
INSERT INTO signature_fields (id, request_id, signer_order, x, y, w, h, field_type, label, value)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, field.ID, request.ID, field.SignerOrder, field.X, field.Y, field.W, field.H, domain.FieldTypeLabel(field.Type), field.Label, field.Value)
		if err != nil {
			if isUniqueConstraintError(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("insert signature field: %w", err)
		}
	}
	return nil
}

func scanRequest(scan scanner) (domain.SigningRequest, error) {
	var request domain.SigningRequest
	var statusLabel string
	var orderingLabel string
	var ccJSON string
	var dueDate sql.NullInt64
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&request.ID,
		&request.DocumentID,
		&request.DocumentName,
		&request.SenderName,
		&request.SenderEmail,
		&statusLabel,
		&orderingLabel,
		&request.Message,
		&request.Subject,
		&ccJSON,
		&dueDate,
		&request.VoidReason,
		&request.DeclineReason,
		&createdAt,
		&updatedAt,
		&request.Version,
	); err != nil {
		return domain.SigningRequest{}, err
	}
	request.Status = domain.RequestStatusFromLabel(statusLabel)
	request.OrderingMode = domain.OrderingModeFromLabel(orderingLabel)
	ccEmails, err := decodeCcEmails(ccJSON)
	if err != nil {
		return domain.SigningRequest{}, err
	}
	request.CcEmails = ccEmails
	if dueDate.Valid {
		value := fromMillis(dueDate.Int64)
		request.DueDate = &value
	}
	request.CreatedAt = fromMillis(createdAt)
	request.UpdatedAt = fromMillis(updatedAt)
	return request, nil
}

func encodeCcEmails(ccEmails []string) (string, error) {
	if len(ccEmails) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(ccEmails)
	if err != nil {
		return "", fmt.Errorf("encode cc emails: %w", err)
	}
	return string(encoded), nil
}

func decodeCcEmails(value string) ([]string, error) {
	if strings.TrimSpace(value) == "" || value == "[]" {
		return nil, nil
	}
	var ccEmails []string
	if err := json.Unmarshal([]byte(value), &ccEmails); err != nil {
		return nil, fmt.Errorf("decode cc emails: %w", err)
	}
	return ccEmails, nil
}
