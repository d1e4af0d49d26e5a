// Package channel carries human-facing traffic: outbound notices and
// questions, and inbound replies. At most one blocking reply wait may be
// outstanding at a time.
package channel

import (
	"context"
	"fmt"
	"time"
)

type Channel interface {
	Notify(ctx context.Context, text string) error
	Ask(ctx context.Context, question string, contextText string) error
	WaitForReply(ctx context.Context, timeout time.Duration) (string, error)
}

// ReplyHandler receives replies that do not answer an in-flight wait.
type ReplyHandler func(ctx context.Context, text string)

type TimeoutError struct {
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no human reply within %s", e.Wait)
}

type Notice struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type Question struct {
	Question string    `json:"question"`
	Context  string    `json:"context,omitempty"`
	At       time.Time `json:"at"`
}

type Reply struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}
