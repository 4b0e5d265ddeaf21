// Package health watches the model endpoint so /health can report
// whether chat requests have a chance of succeeding.
//
// A Watcher probes in two phases. At startup it retries with
// exponential backoff until the first success or until the attempts run
// out. After that it polls on a fixed interval and logs transitions.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProbeFunc reports whether the service is reachable. Return nil if
// healthy.
type ProbeFunc func(ctx context.Context) error

// Config controls probe timing. Zero fields take the defaults from
// DefaultConfig.
type Config struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// StartupAttempts bounds the backoff phase.
	StartupAttempts int
	PollInterval    time.Duration
	ProbeTimeout    time.Duration
}

// DefaultConfig backs off 2s, 4s, 8s ... up to 60s for at most ten
// attempts, then polls every minute.
func DefaultConfig() Config {
	return Config{
		InitialDelay:    2 * time.Second,
		MaxDelay:        60 * time.Second,
		StartupAttempts: 10,
		PollInterval:    60 * time.Second,
		ProbeTimeout:    10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.StartupAttempts <= 0 {
		c.StartupAttempts = d.StartupAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	return c
}

// Status is the JSON form of a watcher's state.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher tracks the health of one service.
type Watcher struct {
	name     string
	probe    ProbeFunc
	cfg      Config
	logger   *slog.Logger
	onChange func(ready bool)

	mu        sync.Mutex
	ready     bool
	lastCheck time.Time
	lastErr   error

	done chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithConfig overrides the probe timing.
func WithConfig(cfg Config) Option {
	return func(w *Watcher) { w.cfg = cfg.withDefaults() }
}

// WithLogger sets the logger for transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// OnChange registers a callback run synchronously after every probe
// with the current readiness.
func OnChange(fn func(ready bool)) Option {
	return func(w *Watcher) { w.onChange = fn }
}

// Watch starts probing in the background until ctx is cancelled.
func Watch(ctx context.Context, name string, probe ProbeFunc, opts ...Option) *Watcher {
	w := &Watcher{
		name:   name,
		probe:  probe,
		cfg:    DefaultConfig(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run(ctx)
	return w
}

// Ready reports whether the last probe succeeded.
func (w *Watcher) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// Status returns a snapshot of the watcher's state.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{Name: w.name, Ready: w.ready, LastCheck: w.lastCheck}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Done is closed once the watcher goroutine exits.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.cfg.InitialDelay
	for attempt := 1; attempt <= w.cfg.StartupAttempts; attempt++ {
		if w.check(ctx) {
			w.logger.Info("service connected", "service", w.name, "attempts", attempt)
			break
		}
		if attempt == w.cfg.StartupAttempts {
			w.logger.Warn("service unreachable at startup, polling", "service", w.name, "attempts", attempt, "error", w.Status().LastError)
			break
		}
		if !sleep(ctx, delay) {
			return
		}
		delay = min(delay*2, w.cfg.MaxDelay)
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wasReady := w.Ready()
			ready := w.check(ctx)
			switch {
			case wasReady && !ready:
				w.logger.Warn("service became unreachable", "service", w.name, "error", w.Status().LastError)
			case !wasReady && ready:
				w.logger.Info("service recovered", "service", w.name)
			}
		}
	}
}

// check runs one probe and records the result.
func (w *Watcher) check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	err := w.probe(probeCtx)
	cancel()

	w.mu.Lock()
	w.ready = err == nil
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()

	if err != nil {
		w.logger.Debug("probe failed", "service", w.name, "error", err)
	}
	if w.onChange != nil {
		w.onChange(err == nil)
	}
	return err == nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
