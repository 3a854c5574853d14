package sync

import (
	"testing"
	"time"
)

func TestApplyKeepsLastWriterByUpdatedAt(t *testing.T) {
	t.Parallel()

	view := NewView(nil)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	newer := Update{RequestID: "req-1", Status: "in_progress", SignedCount: 1, TotalSigners: 2, UpdatedAt: base.Add(time.Minute), Version: 3}
	older := Update{RequestID: "req-1", Status: "pending", SignedCount: 0, TotalSigners: 2, UpdatedAt: base, Version: 2}

	if !view.Apply(newer) {
		t.Fatal("expected newer update applied")
	}
	if view.Apply(older) {
		t.Fatal("expected stale update rejected")
	}

	got, ok := view.Get("req-1")
	if !ok {
		t.Fatal("expected request tracked")
	}
	if got.Status != "in_progress" || got.Version != 3 {
		t.Fatalf("view = %+v, want newer update", got)
	}
}

func TestApplyBreaksTimestampTiesByVersion(t *testing.T) {
	t.Parallel()

	view := NewView(nil)
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if !view.Apply(Update{RequestID: "req-1", Status: "pending", UpdatedAt: at, Version: 1}) {
		t.Fatal("expected first update applied")
	}
	if !view.Apply(Update{RequestID: "req-1", Status: "in_progress", UpdatedAt: at, Version: 2}) {
		t.Fatal("expected higher version applied on equal timestamp")
	}
	if view.Apply(Update{RequestID: "req-1", Status: "pending", UpdatedAt: at, Version: 1}) {
		t.Fatal("expected lower version rejected on equal timestamp")
	}

	got, _ := view.Get("req-1")
	if got.Status != "in_progress" {
		t.Fatalf("status = %q, want in_progress", got.Status)
	}
}

func TestOutOfOrderArrivalConverges(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	updates := []Update{
		{RequestID: "req-1", Status: "completed", SignedCount: 2, TotalSigners: 2, UpdatedAt: base.Add(3 * time.Minute), Version: 5},
		{RequestID: "req-1", Status: "pending", SignedCount: 0, TotalSigners: 2, UpdatedAt: base, Version: 1},
		{RequestID: "req-1", Status: "in_progress", SignedCount: 1, TotalSigners: 2, UpdatedAt: base.Add(time.Minute), Version: 3},
	}

	// Socket and poller deliver interleaved; any arrival order must land on
	// the same final state.
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}, {2, 0, 1}}
	for _, order := range orders {
		view := NewView(nil)
		for _, i := range order {
			view.Apply(updates[i])
		}
		got, _ := view.Get("req-1")
		if got.Status != "completed" || got.SignedCount != 2 {
			t.Fatalf("order %v converged to %+v", order, got)
		}
	}
}

func TestAlertsFireOncePerHighWaterMark(t *testing.T) {
	t.Parallel()

	type alert struct {
		requestID   string
		signedCount int
	}
	var alerts []alert
	view := NewView(func(requestID string, signedCount int) {
		alerts = append(alerts, alert{requestID: requestID, signedCount: signedCount})
	})
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	view.Apply(Update{RequestID: "req-1", Status: "in_progress", SignedCount: 1, TotalSigners: 2, UpdatedAt: base.Add(time.Minute), Version: 2})
	// Poller re-delivers the same snapshot with a fresher stamp; the count
	// did not rise, so no second alert.
	view.Apply(Update{RequestID: "req-1", Status: "in_progress", SignedCount: 1, TotalSigners: 2, UpdatedAt: base.Add(2 * time.Minute), Version: 3})
	view.Apply(Update{RequestID: "req-1", Status: "completed", SignedCount: 2, TotalSigners: 2, UpdatedAt: base.Add(3 * time.Minute), Version: 4})

	if len(alerts) != 2 {
		t.Fatalf("alerts = %+v, want 2", alerts)
	}
	if alerts[0].signedCount != 1 || alerts[1].signedCount != 2 {
		t.Fatalf("alert counts = %+v", alerts)
	}
}

func TestSnapshotListsTrackedRequests(t *testing.T) {
	t.Parallel()

	view := NewView(nil)
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	view.Apply(Update{RequestID: "req-1", Status: "pending", UpdatedAt: at, Version: 1})
	view.Apply(Update{RequestID: "req-2", Status: "completed", UpdatedAt: at, Version: 4})

	if got := len(view.Snapshot()); got != 2 {
		t.Fatalf("snapshot size = %d, want 2", got)
	}
}
