package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kalambet/outreach/internal/mail"
)

// SendError is a Gmail API failure with its HTTP status.
type SendError struct {
	Status int
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("gmail send failed (HTTP %d): %v", e.Status, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Refresher forces a credential refresh.
type Refresher interface {
	ForceRefresh()
}

// NewGmailService creates a Gmail client using httpClient. A non-empty
// endpoint overrides the API base URL.
func NewGmailService(ctx context.Context, httpClient *http.Client, endpoint string) (*gmail.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return svc, nil
}

// GmailSender sends mail as the authenticated user.
type GmailSender struct {
	svc       *gmail.Service
	refresher Refresher
	counter   *mail.DailyCounter
	limiter   *rate.Limiter
	from      string
	logger    *slog.Logger
	now       func() time.Time
}

// GmailOptions tunes a GmailSender.
type GmailOptions struct {
	// FromAddress is used in the From header together with the message's
	// FromName. Without it Gmail fills in the account address.
	FromAddress string
	MaxPerDay   int
	PerMinute   int
	Refresher   Refresher
	Now         func() time.Time
}

// NewGmailSender wraps svc. MaxPerDay of zero disables the daily cap and
// PerMinute defaults to 60.
func NewGmailSender(svc *gmail.Service, opts GmailOptions) *GmailSender {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	perMinute := opts.PerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	return &GmailSender{
		svc:       svc,
		refresher: opts.Refresher,
		counter:   mail.NewDailyCounter(opts.MaxPerDay, now),
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 5),
		from:      opts.FromAddress,
		logger:    slog.Default(),
		now:       now,
	}
}

// Send delivers msg. A 401 triggers one credential refresh and retry.
func (s *GmailSender) Send(ctx context.Context, msg mail.Message) (mail.Receipt, error) {
	if msg.To == "" {
		return mail.Receipt{}, errors.New("message has no recipient")
	}
	if err := s.counter.Reserve(); err != nil {
		return mail.Receipt{}, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		s.counter.Release()
		return mail.Receipt{}, err
	}

	raw := base64.URLEncoding.EncodeToString(buildMessage(msg, s.from))
	sent, err := s.send(ctx, raw)
	if status(err) == http.StatusUnauthorized && s.refresher != nil {
		s.logger.Info("gmail rejected token, refreshing")
		s.refresher.ForceRefresh()
		sent, err = s.send(ctx, raw)
	}
	if err != nil {
		s.counter.Release()
		if code := status(err); code != 0 {
			return mail.Receipt{}, &SendError{Status: code, Err: err}
		}
		return mail.Receipt{}, fmt.Errorf("sending to %s: %w", msg.To, err)
	}
	return mail.Receipt{MessageID: sent.Id, SentAt: s.now().UTC()}, nil
}

func (s *GmailSender) send(ctx context.Context, raw string) (*gmail.Message, error) {
	return s.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
}

// SentToday returns the number of messages sent since midnight UTC.
func (s *GmailSender) SentToday() int {
	return s.counter.Sent()
}

// Ping checks that the mailbox is reachable and returns its address.
func (s *GmailSender) Ping(ctx context.Context) (string, error) {
	p, err := s.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("reading gmail profile: %w", err)
	}
	return p.EmailAddress, nil
}

func status(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// buildMessage renders an RFC 2822 plain-text message.
func buildMessage(msg mail.Message, fromAddr string) []byte {
	var b bytes.Buffer
	if fromAddr != "" {
		if msg.FromName != "" {
			fmt.Fprintf(&b, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", msg.FromName), fromAddr)
		} else {
			fmt.Fprintf(&b, "From: %s\r\n", fromAddr)
		}
	}
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}
