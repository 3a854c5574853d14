package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/net/websocket"
)

// DefaultPollInterval is the dashboard polling cadence used when the
// websocket is down, and as a low-frequency reconciliation sweep while it
// is up.
const DefaultPollInterval = 15 * time.Second

const (
	reconnectInitialInterval = time.Second
	reconnectMaxInterval     = time.Minute
)

// Source streams updates until the connection drops or ctx is cancelled.
type Source interface {
	Stream(ctx context.Context, apply func(Update)) error
}

// Snapshotter fetches the authoritative request snapshots for polling.
type Snapshotter interface {
	ListUpdates(ctx context.Context) ([]Update, error)
}

// SnapshotterFunc adapts a function to the Snapshotter interface.
type SnapshotterFunc func(ctx context.Context) ([]Update, error)

// ListUpdates calls the wrapped function.
func (f SnapshotterFunc) ListUpdates(ctx context.Context) ([]Update, error) {
	return f(ctx)
}

// Watcher keeps a dashboard view current. It merges the websocket stream
// and periodic poll snapshots into one View; either side alone is enough
// to converge, so a dead socket degrades to polling instead of failing.
type Watcher struct {
	view         *View
	source       Source
	snapshots    Snapshotter
	pollInterval time.Duration
}

// NewWatcher creates a watcher feeding the given view. source may be nil
// for a poll-only watcher.
func NewWatcher(view *View, source Source, snapshots Snapshotter, pollInterval time.Duration) (*Watcher, error) {
	if view == nil {
		return nil, fmt.Errorf("view is required")
	}
	if snapshots == nil {
		return nil, fmt.Errorf("snapshotter is required")
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Watcher{view: view, source: source, snapshots: snapshots, pollInterval: pollInterval}, nil
}

// Run blocks until ctx is cancelled, streaming and polling concurrently.
func (w *Watcher) Run(ctx context.Context) error {
	if w == nil {
		return fmt.Errorf("watcher is not configured")
	}

	done := make(chan struct{})
	if w.source != nil {
		go func() {
			defer close(done)
			w.runStream(ctx)
		}()
	} else {
		close(done)
	}

	w.runPoll(ctx)
	<-done
	return nil
}

// Poll fetches one snapshot and merges it immediately.
func (w *Watcher) Poll(ctx context.Context) error {
	updates, err := w.snapshots.ListUpdates(ctx)
	if err != nil {
		return fmt.Errorf("poll snapshots: %w", err)
	}
	for _, update := range updates {
		w.view.Apply(update)
	}
	return nil
}

func (w *Watcher) runPoll(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
		log.Printf("sync: initial poll failed: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
				log.Printf("sync: poll failed: %v", err)
			}
		}
	}
}

func (w *Watcher) runStream(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = reconnectInitialInterval
	policy.MaxInterval = reconnectMaxInterval

	for {
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		err := w.source.Stream(ctx, func(update Update) { w.view.Apply(update) })
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("sync: stream dropped: %v", err)
		}
		// A connection that held for a while earns a fresh backoff window.
		if time.Since(started) >= reconnectMaxInterval {
			policy.Reset()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(policy.NextBackOff()):
		}
	}
}

// WebsocketSource streams frames from a dashboard websocket endpoint.
type WebsocketSource struct {
	// URL is the ws:// endpoint including the grant query parameter.
	URL string
	// Origin is sent as the websocket handshake origin.
	Origin string
}

// Stream dials the endpoint and applies update frames until the socket
// closes or ctx is cancelled.
func (s *WebsocketSource) Stream(ctx context.Context, apply func(Update)) error {
	conn, err := websocket.Dial(s.URL, "", s.Origin)
	if err != nil {
		return fmt.Errorf("dial dashboard socket: %w", err)
	}
	done := make(chan struct{})
	defer func() {
		close(done)
		_ = conn.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	decoder := json.NewDecoder(conn)
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("decode dashboard frame: %w", err)
		}
		if frame.Type == FrameTypeUpdate {
			apply(frame.Update)
		}
	}
}
