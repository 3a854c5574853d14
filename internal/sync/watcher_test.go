package sync

import (
	"context"
	"fmt"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

type scriptedSource struct {
	updates []Update
	err     error
}

func (s *scriptedSource) Stream(ctx context.Context, apply func(Update)) error {
	for _, update := range s.updates {
		apply(update)
	}
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return nil
}

func TestPollMergesSnapshot(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	view := NewView(nil)
	snapshots := SnapshotterFunc(func(context.Context) ([]Update, error) {
		return []Update{
			{RequestID: "req-1", Status: "in_progress", SignedCount: 1, TotalSigners: 2, UpdatedAt: base.Add(time.Minute), Version: 2},
			{RequestID: "req-2", Status: "pending", TotalSigners: 1, UpdatedAt: base, Version: 1},
		}, nil
	})
	watcher, err := NewWatcher(view, nil, snapshots, DefaultPollInterval)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	if err := watcher.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got, _ := view.Get("req-1"); got.Status != "in_progress" {
		t.Fatalf("req-1 = %+v", got)
	}
	if got, _ := view.Get("req-2"); got.Status != "pending" {
		t.Fatalf("req-2 = %+v", got)
	}
}

func TestPollPropagatesSnapshotError(t *testing.T) {
	t.Parallel()

	view := NewView(nil)
	snapshots := SnapshotterFunc(func(context.Context) ([]Update, error) {
		return nil, fmt.Errorf("dashboard api unavailable")
	})
	watcher, err := NewWatcher(view, nil, snapshots, DefaultPollInterval)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := watcher.Poll(context.Background()); err == nil {
		t.Fatal("expected poll error")
	}
}

func TestWebsocketSourceStreamReleasesCloser(t *testing.T) {
	srv := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		_ = conn.Close()
	}))
	defer srv.Close()

	source := &WebsocketSource{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Origin: srv.URL,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	before := runtime.NumGoroutine()
	// Each reconnect cycle must release its connection closer once the
	// stream returns on its own, or the goroutine count grows per cycle.
	for i := 0; i < 5; i++ {
		if err := source.Stream(ctx, func(Update) {}); err != nil {
			t.Fatalf("stream %d: %v", i, err)
		}
	}

	deadline := time.After(2 * time.Second)
	for runtime.NumGoroutine() > before {
		select {
		case <-deadline:
			t.Fatalf("goroutines = %d after streams, started with %d", runtime.NumGoroutine(), before)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStreamAndPollConvergeOnNewestState(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	view := NewView(nil)
	// The socket delivers the fresh transition; the poller races with an
	// older snapshot.
	source := &scriptedSource{updates: []Update{
		{RequestID: "req-1", Status: "completed", SignedCount: 2, TotalSigners: 2, UpdatedAt: base.Add(2 * time.Minute), Version: 4},
	}}
	snapshots := SnapshotterFunc(func(context.Context) ([]Update, error) {
		return []Update{
			{RequestID: "req-1", Status: "in_progress", SignedCount: 1, TotalSigners: 2, UpdatedAt: base.Add(time.Minute), Version: 3},
		}, nil
	})
	watcher, err := NewWatcher(view, source, snapshots, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if got, ok := view.Get("req-1"); ok && got.Status == "completed" {
			break
		}
		select {
		case <-deadline:
			got, _ := view.Get("req-1")
			t.Fatalf("view did not converge, got %+v", got)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}

	if got, _ := view.Get("req-1"); got.Status != "completed" || got.SignedCount != 2 {
		t.Fatalf("final view = %+v", got)
	}
}
