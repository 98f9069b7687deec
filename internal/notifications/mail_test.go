package notifications

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	got chan MailMessage
	err error
}

func (s *captureSender) Deliver(_ context.Context, msg MailMessage) error {
	s.got <- msg
	return s.err
}

func TestMailer_NilClientDrops(t *testing.T) {
	m := NewMailer(nil, "mail:outbox", "no-reply@lastday.app")
	assert.NoError(t, m.Send(context.Background(), "a@example.com", TemplateVerification, VerificationData{Code: "123456"}))
	assert.NoError(t, m.StartSubscriber(context.Background(), LogSender{}))
}

func TestMailer_UnknownTemplate(t *testing.T) {
	m := NewMailer(nil, "mail:outbox", "no-reply@lastday.app")
	assert.Error(t, m.Send(context.Background(), "a@example.com", "newsletter", nil))
}

func TestMailer_PublishAndConsume(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	m := NewMailer(rdb, "mail:outbox", "no-reply@lastday.app")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := &captureSender{got: make(chan MailMessage, 1)}
	require.NoError(t, m.StartSubscriber(ctx, sender))

	require.NoError(t, m.Send(context.Background(), "a@example.com", TemplatePasswordReset,
		PasswordResetData{Name: "<b>kim</b>", Password: "abcd1234"}))

	select {
	case msg := <-sender.got:
		assert.Equal(t, "a@example.com", msg.To)
		assert.Equal(t, "no-reply@lastday.app", msg.From)
		assert.Equal(t, TemplatePasswordReset, msg.Template)
		assert.Contains(t, msg.HTML, "abcd1234")
		assert.Contains(t, msg.HTML, "&lt;b&gt;kim&lt;/b&gt;")
		assert.True(t, strings.HasPrefix(msg.Subject, "[LastDay]"))
	case <-time.After(2 * time.Second):
		t.Fatal("mail was not consumed")
	}
}

func TestMailer_DeliveryFailureKeepsSubscriberAlive(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	m := NewMailer(rdb, "mail:outbox", "no-reply@lastday.app")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := &captureSender{got: make(chan MailMessage, 2), err: errors.New("smtp down")}
	require.NoError(t, m.StartSubscriber(ctx, sender))

	require.NoError(t, rdb.Publish(context.Background(), "mail:outbox", "not json").Err())
	for i := 0; i < 2; i++ {
		require.NoError(t, m.Send(context.Background(), "a@example.com", TemplateVerification, VerificationData{Code: "000111"}))
	}

	for i := 0; i < 2; i++ {
		select {
		case msg := <-sender.got:
			assert.Contains(t, msg.HTML, "000111")
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber stopped after a failure")
		}
	}
}
