// Package notifications publishes outgoing mail to a Redis outbox channel and consumes it.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"lastday/internal/middleware"
	"lastday/internal/observability"

	"github.com/redis/go-redis/v9"
)

// MailMessage is the outbox payload.
type MailMessage struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	HTML      string    `json:"html"`
	Template  string    `json:"template"`
	CreatedAt time.Time `json:"created_at"`
}

// Sender delivers a message taken from the outbox.
type Sender interface {
	Deliver(ctx context.Context, msg MailMessage) error
}

// Mailer renders mail templates and publishes them to the outbox channel.
type Mailer struct {
	rdb     *redis.Client
	channel string
	from    string
}

// NewMailer creates a Mailer. With a nil client messages are logged and dropped.
func NewMailer(rdb *redis.Client, channel, from string) *Mailer {
	return &Mailer{rdb: rdb, channel: channel, from: from}
}

// Send renders tmpl with data and publishes the message for to.
func (m *Mailer) Send(ctx context.Context, to, tmpl string, data any) error {
	subject, body, err := render(tmpl, data)
	if err != nil {
		observability.MailMessages.WithLabelValues(tmpl, "failed").Inc()
		return err
	}

	msg := MailMessage{
		From:      m.from,
		To:        to,
		Subject:   subject,
		HTML:      body,
		Template:  tmpl,
		CreatedAt: time.Now().UTC(),
	}
	if m.rdb == nil {
		middleware.Logger.WarnContext(ctx, "mail outbox disabled, dropping message",
			slog.String("template", tmpl), slog.String("to", to))
		observability.MailMessages.WithLabelValues(tmpl, "dropped").Inc()
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail: %w", err)
	}
	if err := m.rdb.Publish(ctx, m.channel, payload).Err(); err != nil {
		observability.MailMessages.WithLabelValues(tmpl, "failed").Inc()
		return fmt.Errorf("publish mail: %w", err)
	}
	observability.MailMessages.WithLabelValues(tmpl, "published").Inc()
	return nil
}

// StartSubscriber consumes the outbox channel until ctx is done, handing each message to
// sender. It returns once the subscription is confirmed.
func (m *Mailer) StartSubscriber(ctx context.Context, sender Sender) error {
	if m.rdb == nil {
		return nil
	}
	sub := m.rdb.Subscribe(ctx, m.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", m.channel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				m.deliver(ctx, sender, raw.Payload)
			}
		}
	}()
	return nil
}

func (m *Mailer) deliver(ctx context.Context, sender Sender, payload string) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.ErrorContext(ctx, "panic in mail subscriber",
				slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()

	var msg MailMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		middleware.Logger.WarnContext(ctx, "malformed mail payload", slog.String("error", err.Error()))
		return
	}
	if err := sender.Deliver(ctx, msg); err != nil {
		observability.MailMessages.WithLabelValues(msg.Template, "undelivered").Inc()
		middleware.Logger.ErrorContext(ctx, "mail delivery failed",
			slog.String("template", msg.Template), slog.String("error", err.Error()))
		return
	}
	observability.MailMessages.WithLabelValues(msg.Template, "delivered").Inc()
}

// LogSender writes messages to the log instead of an SMTP relay.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Deliver(ctx context.Context, msg MailMessage) error {
	logger := s.Logger
	if logger == nil {
		logger = middleware.Logger
	}
	logger.InfoContext(ctx, "mail delivered",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("template", msg.Template),
	)
	return nil
}
