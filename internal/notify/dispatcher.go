package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/inkflow/inkflow/internal/signing/storage"
)

const (
	retryInitialInterval = 30 * time.Second
	retryMaxInterval     = 30 * time.Minute
)

// Dispatcher persists outbound notifications and drains the due queue.
// Every enqueue carries an idempotency key of the form
// requestID:signerID:kind:seq, so a replayed engine operation collides with
// its first enqueue instead of sending twice.
type Dispatcher struct {
	store  storage.DispatchStore
	sender Sender
	now    func() time.Time
}

// NewDispatcher creates a dispatcher over the given queue store and sender.
func NewDispatcher(store storage.DispatchStore, sender Sender, now func() time.Time) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("dispatch store is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{store: store, sender: sender, now: now}, nil
}

// IdempotencyKey builds the dedupe key for one send intent.
func IdempotencyKey(requestID, signerID string, kind EventKind, seq int) string {
	return fmt.Sprintf("%s:%s:%s:%d", requestID, signerID, kind, seq)
}

// Enqueue records one send intent with an explicit sequence number.
// Operations with exactly-once semantics (the first invite of a delivery)
// pass seq 0; a replay of the same operation is absorbed silently.
func (d *Dispatcher) Enqueue(ctx context.Context, message Message, seq int) (string, error) {
	if d == nil {
		return "", fmt.Errorf("dispatcher is not configured")
	}
	if strings.TrimSpace(message.RequestID) == "" {
		return "", fmt.Errorf("message request id is required")
	}
	if message.Kind == "" {
		return "", fmt.Errorf("message kind is required")
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("encode dispatch payload: %w", err)
	}
	key := IdempotencyKey(message.RequestID, message.SignerID, message.Kind, seq)
	now := d.now().UTC()
	err = d.store.PutDispatch(ctx, storage.DispatchRecord{
		IdempotencyKey: key,
		RequestID:      message.RequestID,
		SignerID:       message.SignerID,
		Kind:           string(message.Kind),
		PayloadJSON:    payload,
		Status:         storage.DispatchStatusPending,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return key, nil
		}
		return "", fmt.Errorf("enqueue dispatch: %w", err)
	}
	return key, nil
}

// EnqueueNext records a deliberate re-send: the sequence number is the count
// of prior dispatches for the (request, signer, kind) triple, so each resend
// gets a fresh key while accidental double calls within one operation still
// collide.
func (d *Dispatcher) EnqueueNext(ctx context.Context, message Message) (string, error) {
	if d == nil {
		return "", fmt.Errorf("dispatcher is not configured")
	}
	seq, err := d.store.CountSignerDispatches(ctx, message.RequestID, message.SignerID, string(message.Kind))
	if err != nil {
		return "", fmt.Errorf("count prior dispatches: %w", err)
	}
	return d.Enqueue(ctx, message, seq)
}

// ProcessDue drains up to limit due dispatches, sending each and recording
// the outcome. Failed sends are rescheduled with exponential backoff. The
// due list is ordered by creation, which keeps per-signer delivery FIFO.
func (d *Dispatcher) ProcessDue(ctx context.Context, limit int) (int, error) {
	if d == nil {
		return 0, fmt.Errorf("dispatcher is not configured")
	}
	if limit <= 0 {
		return 0, fmt.Errorf("limit must be greater than zero")
	}

	now := d.now().UTC()
	due, err := d.store.ListDueDispatches(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list due dispatches: %w", err)
	}

	delivered := 0
	for _, record := range due {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		var message Message
		if err := json.Unmarshal(record.PayloadJSON, &message); err != nil {
			// Undecodable payloads never succeed; park them far in the future.
			log.Printf("notify: drop dispatch %s: decode payload: %v", record.IdempotencyKey, err)
			if markErr := d.store.MarkDispatchRetry(ctx, record.IdempotencyKey, record.AttemptCount+1, now.Add(retryMaxInterval), fmt.Sprintf("decode payload: %v", err)); markErr != nil {
				return delivered, fmt.Errorf("mark dispatch %s undecodable: %w", record.IdempotencyKey, markErr)
			}
			continue
		}

		if sendErr := d.sender.Send(ctx, message); sendErr != nil {
			attempt := record.AttemptCount + 1
			nextAttempt := now.Add(retryDelay(attempt))
			log.Printf("notify: dispatch %s attempt %d failed: %v", record.IdempotencyKey, attempt, sendErr)
			if markErr := d.store.MarkDispatchRetry(ctx, record.IdempotencyKey, attempt, nextAttempt, sendErr.Error()); markErr != nil {
				return delivered, fmt.Errorf("mark dispatch %s retry: %w", record.IdempotencyKey, markErr)
			}
			continue
		}
		if markErr := d.store.MarkDispatchDelivered(ctx, record.IdempotencyKey, d.now().UTC()); markErr != nil {
			return delivered, fmt.Errorf("mark dispatch %s delivered: %w", record.IdempotencyKey, markErr)
		}
		delivered++
	}
	return delivered, nil
}

// retryDelay returns the wait before the given attempt number retries.
func retryDelay(attempt int) time.Duration {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval
	policy.RandomizationFactor = 0
	delay := policy.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = policy.NextBackOff()
	}
	return delay
}
