package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid"
	"github.com/redis/go-redis/v9"
)

// Bus is a watermill-backed Channel. Topics are <prefix>.notify,
// <prefix>.ask and <prefix>.reply.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	prefix     string
	logger     *log.Logger

	mu        sync.Mutex
	pendingID string
	pendingCh chan string
	handler   ReplyHandler
	started   bool
}

func NewInProcess(prefix string, logger *log.Logger) *Bus {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewStdLogger(false, false),
	)
	return newBus(pubSub, pubSub, prefix, logger)
}

func NewRedis(client redis.UniversalClient, prefix string, logger *log.Logger) (*Bus, error) {
	wmLogger := watermill.NewStdLogger(false, false)
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:     client,
		Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create redis publisher: %w", err)
	}
	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: prefix + "-core",
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create redis subscriber: %w", err)
	}
	return newBus(publisher, subscriber, prefix, logger), nil
}

// NewFromRedisURL connects against Redis when the url is set and falls back
// to the in-process bus otherwise.
func NewFromRedisURL(redisURL string, prefix string, logger *log.Logger) (*Bus, error) {
	if strings.TrimSpace(redisURL) == "" {
		return NewInProcess(prefix, logger), nil
	}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(options), prefix, logger)
}

func newBus(publisher message.Publisher, subscriber message.Subscriber, prefix string, logger *log.Logger) *Bus {
	if strings.TrimSpace(prefix) == "" {
		prefix = "steward"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{
		publisher:  publisher,
		subscriber: subscriber,
		prefix:     prefix,
		logger:     logger,
	}
}

func (b *Bus) NotifyTopic() string { return b.prefix + ".notify" }
func (b *Bus) AskTopic() string    { return b.prefix + ".ask" }
func (b *Bus) ReplyTopic() string  { return b.prefix + ".reply" }

// SetReplyHandler installs the unsolicited-reply handler. Must be called
// before Start.
func (b *Bus) SetReplyHandler(handler ReplyHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// Start subscribes to the reply topic and begins dispatching inbound replies
// until ctx is cancelled.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.mu.Unlock()

	messages, err := b.subscriber.Subscribe(ctx, b.ReplyTopic())
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.ReplyTopic(), err)
	}
	go b.dispatch(ctx, messages)
	return nil
}

func (b *Bus) dispatch(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		var reply Reply
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			b.logger.Printf("channel: drop malformed reply: %v", err)
			msg.Ack()
			continue
		}
		msg.Ack()

		b.mu.Lock()
		pendingCh := b.pendingCh
		b.pendingID = ""
		b.pendingCh = nil
		handler := b.handler
		b.mu.Unlock()

		if pendingCh != nil {
			pendingCh <- reply.Text
			continue
		}
		if handler != nil {
			handler(ctx, reply.Text)
			continue
		}
		b.logger.Printf("channel: unsolicited reply with no handler: %q", reply.Text)
	}
}

func (b *Bus) Notify(ctx context.Context, text string) error {
	_ = ctx
	return b.publish(b.NotifyTopic(), Notice{Text: text, At: time.Now()})
}

func (b *Bus) Ask(ctx context.Context, question string, contextText string) error {
	_ = ctx
	return b.publish(b.AskTopic(), Question{Question: question, Context: contextText, At: time.Now()})
}

// WaitForReply blocks until a reply arrives or the timeout elapses. Only one
// wait may be outstanding; a second caller gets an error instead of silently
// displacing the first.
func (b *Bus) WaitForReply(ctx context.Context, timeout time.Duration) (string, error) {
	waitID := newWaitID()
	ch := make(chan string, 1)

	b.mu.Lock()
	if b.pendingID != "" {
		pending := b.pendingID
		b.mu.Unlock()
		return "", fmt.Errorf("reply wait %s is already pending", pending)
	}
	b.pendingID = waitID
	b.pendingCh = ch
	b.mu.Unlock()

	release := func() {
		b.mu.Lock()
		if b.pendingID == waitID {
			b.pendingID = ""
			b.pendingCh = nil
		}
		b.mu.Unlock()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case text := <-ch:
		return text, nil
	case <-timer.C:
		release()
		return "", &TimeoutError{Wait: timeout}
	case <-ctx.Done():
		release()
		return "", ctx.Err()
	}
}

// InjectReply publishes a human reply onto the reply topic. Used by the CLI
// and the admin API.
func (b *Bus) InjectReply(ctx context.Context, text string) error {
	_ = ctx
	return b.publish(b.ReplyTopic(), Reply{Text: text, At: time.Now()})
}

func (b *Bus) publish(topic string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal channel payload: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), encoded)
	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *Bus) Close() error {
	if err := b.publisher.Close(); err != nil {
		return err
	}
	if closer, ok := b.subscriber.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func newWaitID() string {
	now := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}
