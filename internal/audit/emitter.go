// Package audit records the append-only business ledger of signing
// request activity.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inkflow/inkflow/internal/id"
	"github.com/inkflow/inkflow/internal/signing/storage"
)

// ActorType describes who triggered an audited transition.
type ActorType string

const (
	ActorSender ActorType = "sender"
	ActorSigner ActorType = "signer"
	ActorSystem ActorType = "system"
)

// Event names recorded by engine operations.
const (
	EventRequestCreated   = "request.created"
	EventRequestDelivered = "request.delivered"
	EventRequestResent    = "request.resent"
	EventRequestReminded  = "request.reminded"
	EventRequestVoided    = "request.voided"
	EventRequestCompleted = "request.completed"
	EventRequestExpired   = "request.expired"
	EventSignerOpened     = "signer.opened"
	EventSignerSigned     = "signer.signed"
	EventSignerDeclined   = "signer.declined"
)

// Entry describes one ledger append before identifiers are assigned.
type Entry struct {
	RequestID string
	SignerID  string
	EventName string
	ActorType ActorType
	ActorID   string
	// Metadata carries free-form context such as reason, device, or
	// client address; it is stored as JSON.
	Metadata map[string]string
}

// Emitter appends audit events. It is safe to use with a nil store, in
// which case emits are dropped.
type Emitter struct {
	store       storage.AuditEventStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewEmitter creates a new audit emitter.
func NewEmitter(store storage.AuditEventStore) *Emitter {
	return &Emitter{store: store, clock: time.Now, idGenerator: id.NewID}
}

// WithClock overrides the emitter clock.
func (e *Emitter) WithClock(clock func() time.Time) *Emitter {
	if e != nil && clock != nil {
		e.clock = clock
	}
	return e
}

// Emit appends one ledger entry.
func (e *Emitter) Emit(ctx context.Context, entry Entry) error {
	if e == nil || e.store == nil {
		return nil
	}
	if entry.RequestID == "" {
		return fmt.Errorf("audit entry request id is required")
	}
	if entry.EventName == "" {
		return fmt.Errorf("audit entry event name is required")
	}

	eventID, err := e.idGenerator()
	if err != nil {
		return fmt.Errorf("generate audit event id: %w", err)
	}
	var metadataJSON []byte
	if len(entry.Metadata) > 0 {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
	}

	clock := e.clock
	if clock == nil {
		clock = time.Now
	}
	return e.store.AppendAuditEvent(ctx, storage.AuditEvent{
		ID:           eventID,
		RequestID:    entry.RequestID,
		SignerID:     entry.SignerID,
		EventName:    entry.EventName,
		ActorType:    string(entry.ActorType),
		ActorID:      entry.ActorID,
		MetadataJSON: metadataJSON,
		Timestamp:    clock().UTC(),
	})
}

// Trail returns the full ledger of one request in emission order.
func (e *Emitter) Trail(ctx context.Context, requestID string) ([]storage.AuditEvent, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("audit store is not configured")
	}
	return e.store.ListAuditEvents(ctx, requestID)
}
