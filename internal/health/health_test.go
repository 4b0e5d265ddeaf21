package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		InitialDelay:    time.Millisecond,
		MaxDelay:        4 * time.Millisecond,
		StartupAttempts: 5,
		PollInterval:    5 * time.Millisecond,
		ProbeTimeout:    100 * time.Millisecond,
	}
}

// waitFor blocks until a probe reports the wanted readiness.
func waitFor(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for ready=%v", want)
		}
	}
}

func changes() (chan bool, Option) {
	ch := make(chan bool, 64)
	return ch, OnChange(func(ready bool) {
		select {
		case ch <- ready:
		default:
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg != DefaultConfig() {
		t.Errorf("zero config with defaults = %+v, want %+v", cfg, DefaultConfig())
	}
	if cfg.InitialDelay != 2*time.Second || cfg.MaxDelay != time.Minute || cfg.StartupAttempts != 10 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestWatch_ImmediateSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	ch, onChange := changes()
	w := Watch(ctx, "model", func(context.Context) error { return nil }, WithConfig(fastConfig()), onChange)
	waitFor(t, ch, true)

	s := w.Status()
	if !s.Ready || s.Name != "model" || s.LastError != "" || s.LastCheck.IsZero() {
		t.Errorf("status = %+v", s)
	}
}

func TestWatch_BackoffThenSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var attempts atomic.Int32
	probe := func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	ch, onChange := changes()
	w := Watch(ctx, "model", probe, WithConfig(fastConfig()), onChange)
	waitFor(t, ch, true)

	if !w.Ready() {
		t.Error("watcher not ready after a successful probe")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestWatch_DownAndRecover(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var failing atomic.Bool
	probe := func(context.Context) error {
		if failing.Load() {
			return errors.New("model not loaded")
		}
		return nil
	}

	ch, onChange := changes()
	w := Watch(ctx, "model", probe, WithConfig(fastConfig()), onChange)
	waitFor(t, ch, true)

	failing.Store(true)
	waitFor(t, ch, false)
	if s := w.Status(); s.Ready || s.LastError != "model not loaded" {
		t.Errorf("status while down = %+v", s)
	}

	failing.Store(false)
	waitFor(t, ch, true)
}

func TestWatch_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	w := Watch(ctx, "model", func(context.Context) error { return errors.New("down") }, WithConfig(Config{
		InitialDelay:    time.Hour,
		StartupAttempts: 3,
	}))
	cancel()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not exit after cancel")
	}
	if w.Ready() {
		t.Error("failing probe reported ready")
	}
}

func TestWatch_ProbeTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	cfg := fastConfig()
	cfg.ProbeTimeout = 5 * time.Millisecond
	probe := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ch, onChange := changes()
	w := Watch(ctx, "model", probe, WithConfig(cfg), onChange)
	waitFor(t, ch, false)

	if got := w.Status().LastError; got != context.DeadlineExceeded.Error() {
		t.Errorf("last error = %q, want deadline exceeded", got)
	}
}
