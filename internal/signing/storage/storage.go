// Package storage defines the persistence boundary for signing state.
package storage

import (
	"context"
	"time"

	apperrors "github.com/inkflow/inkflow/internal/errors"
	"github.com/inkflow/inkflow/internal/signing/domain"
)

// ErrNotFound indicates a requested persistence record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrVersionConflict indicates an update lost an optimistic concurrency
// race; the caller re-reads and retries.
var ErrVersionConflict = apperrors.New(apperrors.CodeVersionConflict, "request version conflict")

// ErrConflict indicates a write violated a uniqueness constraint.
var ErrConflict = apperrors.New(apperrors.CodeConflict, "record conflict")

// RequestStore persists signing request aggregates. Writes are guarded by
// the aggregate version: UpdateRequest succeeds only when the stored version
// equals expectedVersion, which serializes engine operations per request.
type RequestStore interface {
	// PutRequest stores a new aggregate. Returns ErrConflict when the id exists.
	PutRequest(ctx context.Context, request domain.SigningRequest) error
	// GetRequest loads one aggregate with its signers and fields.
	GetRequest(ctx context.Context, requestID string) (domain.SigningRequest, error)
	// UpdateRequest replaces the aggregate if the stored version matches
	// expectedVersion, bumping Version by one. Returns ErrVersionConflict
	// otherwise.
	UpdateRequest(ctx context.Context, request domain.SigningRequest, expectedVersion int64) (domain.SigningRequest, error)
	// ListRequestsBySender returns a page of aggregates for a sender,
	// newest first.
	ListRequestsBySender(ctx context.Context, senderEmail string, pageSize int, pageToken string) (RequestPage, error)
	// ListDueRequests returns non-absorbed requests whose due date passed.
	ListDueRequests(ctx context.Context, now time.Time, limit int) ([]domain.SigningRequest, error)
	// ListStaleRequests returns non-absorbed requests untouched since
	// updatedBefore, oldest first; the reminder sweep feeds on it.
	ListStaleRequests(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.SigningRequest, error)
	// DeleteRequest removes a terminal aggregate. Returns ErrConflict for
	// requests that are still live (dashboard cleanup policy).
	DeleteRequest(ctx context.Context, requestID string) error
}

// RequestPage describes a page of signing requests.
type RequestPage struct {
	Requests      []domain.SigningRequest
	NextPageToken string
}

// TokenRecord maps one signer access token to its request and signer.
// Invalidation flags the record; it is never deleted, for audit.
type TokenRecord struct {
	Token         string
	RequestID     string
	SignerID      string
	CreatedAt     time.Time
	InvalidatedAt *time.Time
}

// TokenStore persists the signer access token index.
type TokenStore interface {
	PutToken(ctx context.Context, record TokenRecord) error
	// GetToken returns the record for a token whether or not it has been
	// invalidated; callers decide how invalidation surfaces.
	GetToken(ctx context.Context, token string) (TokenRecord, error)
	// InvalidateRequestTokens flags every live token of a request.
	InvalidateRequestTokens(ctx context.Context, requestID string, invalidatedAt time.Time) error
}

// AuditEvent is one append-only ledger entry for a request.
type AuditEvent struct {
	ID        string
	RequestID string
	SignerID  string
	EventName string
	ActorType string
	ActorID   string
	// MetadataJSON carries free-form operation context (device, IP, reason).
	MetadataJSON []byte
	Timestamp    time.Time
}

// AuditEventStore persists the append-only audit ledger. The interface
// exposes no update or delete path.
type AuditEventStore interface {
	AppendAuditEvent(ctx context.Context, event AuditEvent) error
	// ListAuditEvents returns all events for a request ordered by timestamp
	// ascending.
	ListAuditEvents(ctx context.Context, requestID string) ([]AuditEvent, error)
}

// DispatchStatus identifies one notification dispatch lifecycle state.
type DispatchStatus string

const (
	// DispatchStatusPending means the dispatch is queued for delivery.
	DispatchStatusPending DispatchStatus = "pending"
	// DispatchStatusFailed means the last attempt failed and will be retried.
	DispatchStatusFailed DispatchStatus = "failed"
	// DispatchStatusDelivered means the underlying transport accepted it.
	DispatchStatusDelivered DispatchStatus = "delivered"
)

// DispatchRecord stores one outbound notification intent. The idempotency
// key is unique, so a replayed engine operation cannot enqueue a duplicate.
type DispatchRecord struct {
	IdempotencyKey string
	RequestID      string
	SignerID       string
	Kind           string
	PayloadJSON    []byte
	Status         DispatchStatus
	AttemptCount   int
	NextAttemptAt  time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeliveredAt    *time.Time
}

// DispatchStore persists the outbound notification queue.
type DispatchStore interface {
	// PutDispatch stores a new intent. Returns ErrConflict when the
	// idempotency key already exists.
	PutDispatch(ctx context.Context, record DispatchRecord) error
	// ListDueDispatches returns pending or failed records whose next
	// attempt time has passed, ordered by creation so per-signer FIFO
	// ordering is preserved.
	ListDueDispatches(ctx context.Context, now time.Time, limit int) ([]DispatchRecord, error)
	// MarkDispatchRetry records a failed attempt and its backoff deadline.
	MarkDispatchRetry(ctx context.Context, idempotencyKey string, attemptCount int, nextAttemptAt time.Time, lastError string) error
	// MarkDispatchDelivered finalizes a record.
	MarkDispatchDelivered(ctx context.Context, idempotencyKey string, deliveredAt time.Time) error
	// CountSignerDispatches returns how many dispatches exist for a
	// (request, signer, kind) triple; used to derive idempotency sequence
	// numbers for deliberate re-sends.
	CountSignerDispatches(ctx context.Context, requestID, signerID, kind string) (int, error)
}

// Store is the composite persistence interface the engine runs against.
type Store interface {
	RequestStore
	TokenStore
	AuditEventStore
	DispatchStore
	Close() error
}
