// Package mail defines the outbound message contract shared by the campaign
// orchestrator, the follow-up dispatcher and the Gmail sender.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrDailyLimit is returned when the per-day send cap is reached.
var ErrDailyLimit = errors.New("daily send limit reached")

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	Body     string
	FromName string
}

// Receipt identifies a sent message.
type Receipt struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// DailyCounter caps sends per calendar day (UTC). The count resets the first
// time it is consulted on a new date.
type DailyCounter struct {
	mu    sync.Mutex
	limit int
	day   string
	count int
	now   func() time.Time
}

// NewDailyCounter returns a counter allowing limit sends per day. A limit
// of zero or less disables the cap. A nil now uses time.Now.
func NewDailyCounter(limit int, now func() time.Time) *DailyCounter {
	if now == nil {
		now = time.Now
	}
	return &DailyCounter{limit: limit, now: now}
}

// Reserve takes one send from today's allowance.
func (c *DailyCounter) Reserve() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	if c.limit > 0 && c.count >= c.limit {
		return fmt.Errorf("%w (%d)", ErrDailyLimit, c.limit)
	}
	c.count++
	return nil
}

// Release returns a reserved send that did not go out.
func (c *DailyCounter) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count > 0 {
		c.count--
	}
}

// Sent returns today's send count.
func (c *DailyCounter) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	return c.count
}

func (c *DailyCounter) rollover() {
	day := c.now().UTC().Format(time.DateOnly)
	if day != c.day {
		c.day = day
		c.count = 0
	}
}

// DryRunSender logs messages instead of delivering them. It is used when no
// mailbox is connected.
type DryRunSender struct {
	Logger *slog.Logger
	Now    func() time.Time
}

func (d DryRunSender) Send(_ context.Context, msg Message) (Receipt, error) {
	if msg.To == "" {
		return Receipt{}, errors.New("message has no recipient")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	id := "dry-run-" + uuid.New().String()
	logger.Info("dry run: email not sent", "to", msg.To, "subject", msg.Subject, "message_id", id)
	return Receipt{MessageID: id, SentAt: now().UTC()}, nil
}
