package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/inkflow/inkflow/internal/signing/storage"
)

type fakeDispatchStore struct {
	records map[string]storage.DispatchRecord
	order   []string
}

func newFakeDispatchStore() *fakeDispatchStore {
	return &fakeDispatchStore{records: make(map[string]storage.DispatchRecord)}
}

func (f *fakeDispatchStore) PutDispatch(_ context.Context, record storage.DispatchRecord) error {
	if _, exists := f.records[record.IdempotencyKey]; exists {
		return storage.ErrConflict
	}
	f.records[record.IdempotencyKey] = record
	f.order = append(f.order, record.IdempotencyKey)
	return nil
}

func (f *fakeDispatchStore) ListDueDispatches(_ context.Context, now time.Time, limit int) ([]storage.DispatchRecord, error) {
	var due []storage.DispatchRecord
	for _, key := range f.order {
		record := f.records[key]
		if record.Status == storage.DispatchStatusDelivered {
			continue
		}
		if record.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, record)
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (f *fakeDispatchStore) MarkDispatchRetry(_ context.Context, key string, attemptCount int, nextAttemptAt time.Time, lastError string) error {
	record, ok := f.records[key]
	if !ok {
		return storage.ErrNotFound
	}
	record.Status = storage.DispatchStatusFailed
	record.AttemptCount = attemptCount
	record.NextAttemptAt = nextAttemptAt
	record.LastError = lastError
	f.records[key] = record
	return nil
}

func (f *fakeDispatchStore) MarkDispatchDelivered(_ context.Context, key string, deliveredAt time.Time) error {
	record, ok := f.records[key]
	if !ok {
		return storage.ErrNotFound
	}
	record.Status = storage.DispatchStatusDelivered
	record.DeliveredAt = &deliveredAt
	f.records[key] = record
	return nil
}

func (f *fakeDispatchStore) CountSignerDispatches(_ context.Context, requestID, signerID, kind string) (int, error) {
	count := 0
	for _, record := range f.records {
		if record.RequestID == requestID && record.SignerID == signerID && record.Kind == kind {
			count++
		}
	}
	return count, nil
}

func testDispatcher(t *testing.T, sender Sender) (*Dispatcher, *fakeDispatchStore) {
	t.Helper()
	store := newFakeDispatchStore()
	now := func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	dispatcher, err := NewDispatcher(store, sender, now)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher, store
}

func TestEnqueueReplayIsAbsorbed(t *testing.T) {
	t.Parallel()

	dispatcher, store := testDispatcher(t, LogSender{})
	message := Message{Kind: KindInvite, RequestID: "req-1", SignerID: "sgn-1", RecipientEmail: "blair@example.com", Subject: "Please sign"}

	key1, err := dispatcher.Enqueue(context.Background(), message, 0)
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	key2, err := dispatcher.Enqueue(context.Background(), message, 0)
	if err != nil {
		t.Fatalf("replay enqueue: %v", err)
	}
	if key1 != key2 {
		t.Fatalf("keys differ: %q vs %q", key1, key2)
	}
	if key1 != "req-1:sgn-1:invite:0" {
		t.Fatalf("key = %q", key1)
	}
	if len(store.records) != 1 {
		t.Fatalf("records = %d, want 1", len(store.records))
	}
}

func TestEnqueueNextSequencesResends(t *testing.T) {
	t.Parallel()

	dispatcher, store := testDispatcher(t, LogSender{})
	message := Message{Kind: KindReminder, RequestID: "req-1", SignerID: "sgn-1", RecipientEmail: "blair@example.com", Subject: "Reminder"}

	for want := 0; want < 3; want++ {
		key, err := dispatcher.EnqueueNext(context.Background(), message)
		if err != nil {
			t.Fatalf("enqueue %d: %v", want, err)
		}
		expected := fmt.Sprintf("req-1:sgn-1:reminder:%d", want)
		if key != expected {
			t.Fatalf("key = %q, want %q", key, expected)
		}
	}
	if len(store.records) != 3 {
		t.Fatalf("records = %d, want 3", len(store.records))
	}
}

func TestProcessDueDeliversInCreationOrder(t *testing.T) {
	t.Parallel()

	var sent []string
	sender := SenderFunc(func(_ context.Context, message Message) error {
		sent = append(sent, string(message.Kind))
		return nil
	})
	dispatcher, store := testDispatcher(t, sender)

	for _, kind := range []EventKind{KindInvite, KindReminder, KindSigned} {
		if _, err := dispatcher.Enqueue(context.Background(), Message{Kind: kind, RequestID: "req-1", SignerID: "sgn-1", RecipientEmail: "blair@example.com"}, 0); err != nil {
			t.Fatalf("enqueue %s: %v", kind, err)
		}
	}

	delivered, err := dispatcher.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("process due: %v", err)
	}
	if delivered != 3 {
		t.Fatalf("delivered = %d, want 3", delivered)
	}
	want := []string{"invite", "reminder", "signed"}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("send order = %v, want %v", sent, want)
		}
	}
	for _, record := range store.records {
		if record.Status != storage.DispatchStatusDelivered {
			t.Fatalf("record %s status = %s", record.IdempotencyKey, record.Status)
		}
	}
}

func TestProcessDueSchedulesRetryOnFailure(t *testing.T) {
	t.Parallel()

	attempts := 0
	sender := SenderFunc(func(_ context.Context, _ Message) error {
		attempts++
		if attempts == 1 {
			return fmt.Errorf("smtp timeout")
		}
		return nil
	})
	dispatcher, store := testDispatcher(t, sender)

	if _, err := dispatcher.Enqueue(context.Background(), Message{Kind: KindInvite, RequestID: "req-1", SignerID: "sgn-1", RecipientEmail: "blair@example.com"}, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	delivered, err := dispatcher.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("first process: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("delivered = %d, want 0", delivered)
	}
	record := store.records["req-1:sgn-1:invite:0"]
	if record.Status != storage.DispatchStatusFailed {
		t.Fatalf("status = %s, want failed", record.Status)
	}
	if record.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1", record.AttemptCount)
	}
	if record.LastError != "smtp timeout" {
		t.Fatalf("last error = %q", record.LastError)
	}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if !record.NextAttemptAt.After(now) {
		t.Fatalf("next attempt %v not after %v", record.NextAttemptAt, now)
	}

	// Not due yet, nothing processed.
	delivered, err = dispatcher.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("delivered before due = %d, want 0", delivered)
	}

	// Force the record due and retry.
	record.NextAttemptAt = now
	store.records[record.IdempotencyKey] = record
	delivered, err = dispatcher.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("third process: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered after due = %d, want 1", delivered)
	}
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	t.Parallel()

	delays := make([]time.Duration, 0, 12)
	for attempt := 1; attempt <= 12; attempt++ {
		delays = append(delays, retryDelay(attempt))
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] < delays[i-1] {
			t.Fatalf("delays decreased: %v", delays)
		}
	}
	if delays[0] != retryInitialInterval {
		t.Fatalf("first delay = %v, want %v", delays[0], retryInitialInterval)
	}
	if delays[len(delays)-1] > retryMaxInterval {
		t.Fatalf("final delay %v exceeds cap %v", delays[len(delays)-1], retryMaxInterval)
	}
}
