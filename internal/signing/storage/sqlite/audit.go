package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/inkflow/inkflow/internal/signing/storage"
)

// AppendAuditEvent stores one audit ledger entry. There is no update or
// delete path for audit rows.
func (s *Store) AppendAuditEvent(ctx context.Context, event storage.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	event.ID = strings.TrimSpace(event.ID)
	event.RequestID = strings.TrimSpace(event.RequestID)
	event.EventName = strings.TrimSpace(event.EventName)
	if event.ID == "" {
		return fmt.Errorf("audit event id is required")
	}
	if event.RequestID == "" {
		return fmt.Errorf("request id is required")
	}
	if event.EventName == "" {
		return fmt.Errorf("event name is required")
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO audit_events (id, request_id, signer_id, event_name, actor_type, actor_id, metadata_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, event.ID, event.RequestID, event.SignerID, event.EventName, event.ActorType, event.ActorID, event.MetadataJSON, toMillis(event.Timestamp))
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns all events for a request ordered by timestamp
// ascending, with insertion order breaking ties.
func (s *Store) ListAuditEvents(ctx context.Context, requestID string) ([]storage.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, fmt.Errorf("request id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, request_id, signer_id, event_name, actor_type, actor_id, metadata_json, created_at
FROM audit_events
WHERE request_id = ?
ORDER BY created_at ASC, rowid ASC
`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []storage.AuditEvent
	for rows.Next() {
		var event storage.AuditEvent
		var createdAt int64
		if err := rows.Scan(&event.ID, &event.RequestID, &event.SignerID, &event.EventName, &event.ActorType, &event.ActorID, &event.MetadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit event row: %w", err)
		}
		event.Timestamp = fromMillis(createdAt)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit event rows: %w", err)
	}
	return events, nil
}
