package app

import (
	"context"
	"errors"
	"time"

	"github.com/raysh454/replaydesk/internal/logging"
)

// PurgeInterval is how often closed sessions past retention are removed.
const PurgeInterval = 10 * time.Minute

// reapInterval is how often live sessions are checked against the attach
// timeout.
func reapInterval(timeout time.Duration) time.Duration {
	return max(timeout/2, 10*time.Millisecond)
}

// Application is the global runtime state container.
// It holds config and the services shared across modules. Pass Application
// into modules that need access to the global state rather than using
// package-level variables.
type Application struct {
	Config     *Config
	Logger     logging.Logger
	Components *Components
	Orch       *Orchestrator

	// internal context for cancellation / lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewApplication builds the components for cfg and an orchestrator on top.
func NewApplication(cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	comps, err := NewComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		Config:     cfg,
		Logger:     logger,
		Components: comps,
		Orch:       NewOrchestrator(cfg, comps.Backend, comps.Store, logger),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches the background loop that closes unattached sessions and
// purges closed ones past retention.
func (a *Application) Start() error {
	if a == nil {
		return errors.New("application is nil")
	}
	if a.done != nil {
		return errors.New("application already started")
	}
	a.Logger.Info("application starting",
		logging.Field{Key: "listen_addr", Value: a.Config.ListenAddr},
		logging.Field{Key: "backend", Value: a.Config.BackendBaseURL})

	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		ticker := time.NewTicker(PurgeInterval)
		defer ticker.Stop()
		var reap <-chan time.Time
		if t := a.Config.SessionAttachTimeout; t > 0 {
			rt := time.NewTicker(reapInterval(t))
			defer rt.Stop()
			reap = rt.C
		}
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-reap:
				a.Orch.ReapUnattached(a.ctx)
			case <-ticker.C:
				if _, err := a.Orch.PurgeClosed(a.ctx); err != nil {
					a.Logger.Warn("session purge failed", logging.Field{Key: "error", Value: err.Error()})
				}
			}
		}
	}()
	return nil
}

// Shutdown closes live sessions, stops background work and releases the
// components.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	a.Orch.Close()
	a.cancel()
	if a.done != nil {
		select {
		case <-a.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return a.Components.Close()
}
