// Package server wires the signing service runtime: storage, the transition
// engine, the notification dispatcher, background sweeps, and the HTTP and
// websocket surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/inkflow/inkflow/internal/audit"
	"github.com/inkflow/inkflow/internal/notify"
	"github.com/inkflow/inkflow/internal/signing/engine"
	"github.com/inkflow/inkflow/internal/signing/storage/sqlite"
	"github.com/inkflow/inkflow/internal/signing/token"
	streamsync "github.com/inkflow/inkflow/internal/sync"
)

const dispatchBatchSize = 50

// Server hosts the signing service process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           *sqlite.Store
	engine          *engine.Engine
	dispatcher      *notify.Dispatcher
	config          RuntimeConfig

	loopsDone chan struct{}
	loopsStop context.CancelFunc
	loopsOnce sync.Once
}

// NewServer builds a configured signing server.
func NewServer(config RuntimeConfig) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if strings.TrimSpace(config.GrantSecret) == "" {
		return nil, errors.New("grant secret is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = 5 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}

	store, err := sqlite.Open(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tokens, err := token.NewService(store, store, time.Now)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init token service: %w", err)
	}
	dispatcher, err := notify.NewDispatcher(store, notify.LogSender{}, time.Now)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}
	hub := streamsync.NewHub()

	eng, err := engine.New(engine.Config{
		Requests:   store,
		Tokens:     tokens,
		Audit:      audit.NewEmitter(store),
		Dispatcher: dispatcher,
		Publisher:  hub,
		Now:        time.Now,
		BaseURL:    strings.TrimRight(config.BaseURL, "/"),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	grants := GrantConfig{
		Secret:   []byte(config.GrantSecret),
		Issuer:   config.GrantIssuer,
		Audience: config.GrantAudience,
	}
	handler := newHandler(handlerDeps{
		engine: eng,
		tokens: tokens,
		hub:    hub,
		grants: grants,
	})

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
		store:      store,
		engine:     eng,
		dispatcher: dispatcher,
		config:     config,
	}, nil
}

// Run creates and serves a signing server until the context ends.
func Run(ctx context.Context, config RuntimeConfig) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init signing server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve signing: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server and background loops until the
// context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("signing server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	s.startLoops(ctx)

	serveErr := make(chan error, 1)
	log.Printf("signing server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// startLoops runs the dispatch drain and the expiry and reminder sweeps.
func (s *Server) startLoops(ctx context.Context) {
	loopCtx, stop := context.WithCancel(ctx)
	s.loopsStop = stop
	s.loopsDone = make(chan struct{})

	var wg sync.WaitGroup
	runLoop := func(name string, interval time.Duration, step func(context.Context) error) {
		if interval <= 0 {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-loopCtx.Done():
					return
				case <-ticker.C:
					if err := step(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
						log.Printf("signing %s loop: %v", name, err)
					}
				}
			}
		}()
	}

	runLoop("dispatch", s.config.DispatchInterval, func(ctx context.Context) error {
		_, err := s.dispatcher.ProcessDue(ctx, dispatchBatchSize)
		return err
	})
	runLoop("expiry", s.config.ExpirySweepInterval, func(ctx context.Context) error {
		_, err := s.engine.ExpireDue(ctx, dispatchBatchSize)
		return err
	})
	runLoop("reminder", s.config.ReminderSweepInterval, func(ctx context.Context) error {
		_, err := s.engine.RemindStale(ctx, s.config.ReminderAfter, dispatchBatchSize)
		return err
	})

	go func() {
		wg.Wait()
		close(s.loopsDone)
	}()
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.loopsOnce.Do(func() {
		if s.loopsStop != nil {
			s.loopsStop()
		}
		if s.loopsDone != nil {
			<-s.loopsDone
		}
	})
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}
}
