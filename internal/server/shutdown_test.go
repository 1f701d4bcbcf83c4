package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"syscall"
	"testing"
	"time"
)

func quietShutdown() *ShutdownHandler {
	return NewShutdownHandler(&ShutdownConfig{
		Timeout: 5 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestNewShutdownHandler_Defaults(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{})
	if h.timeout != 30*time.Second {
		t.Errorf("timeout = %v", h.timeout)
	}
	if len(h.signals) != 2 || h.signals[0] != syscall.SIGTERM {
		t.Errorf("signals = %v", h.signals)
	}
	if NewShutdownHandler(nil).logger == nil {
		t.Error("logger not defaulted")
	}
}

func TestShutdownHandler_HookOrder(t *testing.T) {
	h := quietShutdown()

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	h.RegisterHook("audit", PriorityAuditLog, record("audit"))
	h.Register(HTTPServerShutdownHook("http", record("http")))
	h.Register(CloserShutdownHook("index", PriorityIndex, func() error { return record("index")(context.Background()) }))
	h.Register(TemporalWorkerShutdownHook(func() { _ = record("worker")(context.Background()) }))
	h.Register(TracingShutdownHook(record("tracing")))
	h.RegisterHook("http-2", PriorityHTTP, record("http-2"))

	h.Start()
	h.Shutdown()
	if !h.WaitWithTimeout(2 * time.Second) {
		t.Fatal("shutdown timed out")
	}

	want := []string{"http", "http-2", "worker", "tracing", "index", "audit"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdownHandler_HookErrorDoesNotStopOthers(t *testing.T) {
	h := quietShutdown()
	called := false
	h.RegisterHook("failing", 1, func(context.Context) error { return errors.New("boom") })
	h.RegisterHook("after", 2, func(context.Context) error {
		called = true
		return nil
	})

	h.Start()
	h.Shutdown()
	h.Wait()

	if !called {
		t.Error("hook after a failing hook was not called")
	}
}

func TestShutdownHandler_ShutdownBeforeStart(t *testing.T) {
	h := quietShutdown()
	h.Shutdown()
	if h.WaitWithTimeout(50 * time.Millisecond) {
		t.Error("shutdown before Start should be a no-op")
	}
	select {
	case <-h.ShutdownCh():
		t.Error("shutdown channel closed before Start")
	default:
	}
}

func TestShutdownHandler_RepeatedCalls(t *testing.T) {
	h := quietShutdown()
	count := 0
	h.RegisterHook("once", 1, func(context.Context) error {
		count++
		return nil
	})

	h.Start()
	h.Start()
	h.Shutdown()
	h.Shutdown()
	h.Wait()

	if count != 1 {
		t.Errorf("hook ran %d times, want 1", count)
	}
}

func TestShutdownHandler_HookContextHasDeadline(t *testing.T) {
	h := quietShutdown()
	var hasDeadline bool
	h.RegisterHook("check", 1, func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})
	h.Start()
	h.Shutdown()
	h.Wait()
	if !hasDeadline {
		t.Error("hook context has no deadline")
	}
}
