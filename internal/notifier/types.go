package notifier

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
)

type Config struct {
	Enabled     bool
	Token       string
	ChatID      int64
	ThreadID    int
	Outcomes    []string
	DedupWindow time.Duration
	RatePerSec  float64
	QueueSize   int
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, chatID int64, threadID int, text string) error
}

// SenderFactory builds a Sender for a bot token.
type SenderFactory func(token string) (Sender, error)

// Alert is one queued message.
type Alert struct {
	Account int
	Outcome string
	Text    string
}

func (a Alert) key() string { return dedupKey(a.Account, a.Outcome) }
