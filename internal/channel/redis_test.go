package channel

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisBusReplyRoundTrip(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus, err := NewRedis(client, "steward-redis-test", nil)
	if err != nil {
		t.Fatalf("new redis bus: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := bus.Start(ctx); err != nil {
		t.Fatalf("start bus: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = bus.InjectReply(ctx, "approved")
	}()

	text, err := bus.WaitForReply(ctx, 10*time.Second)
	if err != nil {
		t.Fatalf("wait for reply over redis: %v", err)
	}
	if text != "approved" {
		t.Fatalf("expected reply over redis, got %q", text)
	}
}

func TestNewFromRedisURLFallsBackInProcess(t *testing.T) {
	bus, err := NewFromRedisURL("", "steward-test", nil)
	if err != nil {
		t.Fatalf("new from empty redis url: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })
	if bus.ReplyTopic() != "steward-test.reply" {
		t.Fatalf("unexpected reply topic %s", bus.ReplyTopic())
	}
}
