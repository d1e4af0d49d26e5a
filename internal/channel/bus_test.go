package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startTestBus(t *testing.T) (*Bus, context.Context) {
	t.Helper()
	bus := NewInProcess("steward-test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { _ = bus.Close() })
	return bus, ctx
}

func TestWaitForReplyReceivesInjectedReply(t *testing.T) {
	bus, ctx := startTestBus(t)
	if err := bus.Start(ctx); err != nil {
		t.Fatalf("start bus: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = bus.InjectReply(ctx, "yes, go ahead")
	}()

	text, err := bus.WaitForReply(ctx, 5*time.Second)
	if err != nil {
		t.Fatalf("wait for reply: %v", err)
	}
	if text != "yes, go ahead" {
		t.Fatalf("expected injected reply, got %q", text)
	}
}

func TestWaitForReplyTimesOut(t *testing.T) {
	bus, ctx := startTestBus(t)
	if err := bus.Start(ctx); err != nil {
		t.Fatalf("start bus: %v", err)
	}

	_, err := bus.WaitForReply(ctx, 50*time.Millisecond)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
}

func TestSecondPendingWaitIsRejected(t *testing.T) {
	bus, ctx := startTestBus(t)
	if err := bus.Start(ctx); err != nil {
		t.Fatalf("start bus: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = bus.WaitForReply(ctx, 500*time.Millisecond)
	}()
	time.Sleep(50 * time.Millisecond)

	_, err := bus.WaitForReply(ctx, 100*time.Millisecond)
	if err == nil {
		t.Fatalf("expected second pending wait to be rejected")
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		t.Fatalf("second wait should fail fast, not time out")
	}
	wg.Wait()
}

func TestUnsolicitedReplyGoesToHandler(t *testing.T) {
	bus, ctx := startTestBus(t)

	received := make(chan string, 1)
	bus.SetReplyHandler(func(_ context.Context, text string) {
		received <- text
	})
	if err := bus.Start(ctx); err != nil {
		t.Fatalf("start bus: %v", err)
	}

	if err := bus.InjectReply(ctx, "start a new project"); err != nil {
		t.Fatalf("inject reply: %v", err)
	}

	select {
	case text := <-received:
		if text != "start a new project" {
			t.Fatalf("expected routed reply, got %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("reply handler was not invoked")
	}
}

func TestNotifyAndAskPublish(t *testing.T) {
	bus, ctx := startTestBus(t)
	if err := bus.Start(ctx); err != nil {
		t.Fatalf("start bus: %v", err)
	}

	if err := bus.Notify(ctx, "progress update"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := bus.Ask(ctx, "which approach?", "two candidates"); err != nil {
		t.Fatalf("ask: %v", err)
	}
}
