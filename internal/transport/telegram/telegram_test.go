package telegram

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"contextbot/internal/backoff"
	"contextbot/internal/chat"
	"contextbot/internal/clock"
	logx "contextbot/pkg/logx"
)

type fakeSender struct {
	err  error
	sent []string
	to   []tele.Recipient
}

func (f *fakeSender) Send(to tele.Recipient, what any, _ ...any) (*tele.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, what.(string))
	return &tele.Message{ID: len(f.sent)}, nil
}

func newTestAdapter(t *testing.T, clk clock.Clock) *Adapter {
	t.Helper()
	a, err := New(Config{Token: "1:test", Offline: true, Clock: clk, SendRatePerSec: 1000, InboxSize: 3}, logx.Logger{})
	require.NoError(t, err)
	return a
}

func tgMessage(id int, chatID int64, at time.Time, text string) *tele.Message {
	return &tele.Message{
		ID:       id,
		Chat:     &tele.Chat{ID: chatID},
		Sender:   &tele.User{Username: "ann"},
		Text:     text,
		Unixtime: at.Unix(),
	}
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{Offline: true}, logx.Logger{})
	require.Error(t, err)
}

func TestMessagesAfter(t *testing.T) {
	now := time.Unix(10_000, 0)
	clk := clock.NewManual(now)
	a := newTestAdapter(t, clk)
	ctx := context.Background()

	a.receive(tgMessage(1, -100, now.Add(-time.Minute), "old"))
	a.receive(tgMessage(2, -100, now.Add(-time.Second), "fresh"))
	a.receive(tgMessage(3, -100, now, "  "))
	a.receive(tgMessage(4, -200, now, "other chat"))

	got, err := a.Messages(ctx, "-100", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, chat.Message{ID: 2, Author: "ann", Text: "fresh", Time: now.Add(-time.Second)}, got[1])

	got, err = a.Messages(ctx, "-100", &got[1])
	require.NoError(t, err)
	require.Empty(t, got)

	a.receive(tgMessage(5, -100, now, "next"))
	after := chat.Message{ID: 2}
	got, err = a.Messages(ctx, "-100", &after)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(5), got[0].ID)
}

func TestMessagesColdChannelKeepsBacklog(t *testing.T) {
	start := time.Unix(20_000, 0)
	clk := clock.NewManual(start)
	a := newTestAdapter(t, clk)
	ctx := context.Background()

	a.receive(tgMessage(1, -5, start.Add(time.Second), "one"))
	a.receive(tgMessage(2, -5, start.Add(2*time.Second), "two"))
	a.receive(tgMessage(3, -5, start.Add(2*time.Second), "three"))

	for _, wait := range []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second} {
		clk.Advance(wait)
		got, err := a.Messages(ctx, "-5", nil)
		require.NoError(t, err)
		require.Len(t, got, 3)
	}

	got, err := a.Messages(ctx, "-5", &chat.Message{ID: 3})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReceiveStampsUndatedUpdates(t *testing.T) {
	now := time.Unix(30_000, 0)
	a := newTestAdapter(t, clock.NewManual(now))
	m := tgMessage(1, -9, now, "hi")
	m.Unixtime = 0
	a.receive(m)

	got, err := a.Messages(context.Background(), "-9", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Time.Equal(now))
}

func TestInboxBounded(t *testing.T) {
	b := newInbox(3)
	at := time.Unix(100, 0)
	for i := int64(1); i <= 5; i++ {
		b.push(7, chat.Message{ID: i, Time: at})
	}
	got := b.since(7, &chat.Message{ID: 0})
	require.Len(t, got, 3)
	require.Equal(t, int64(3), got[0].ID)
	require.Equal(t, uint64(2), b.takeDropped())
	require.Zero(t, b.takeDropped())
}

func TestSendUsesChatIDAndClassifies(t *testing.T) {
	a := newTestAdapter(t, clock.NewManual(time.Unix(0, 0)))
	fs := &fakeSender{}
	a.send = fs

	require.NoError(t, a.Send(context.Background(), "-100", "hello"))
	require.Equal(t, []string{"hello"}, fs.sent)
	require.Equal(t, tele.ChatID(-100), fs.to[0])

	fs.err = tele.ErrBlockedByUser
	err := a.Send(context.Background(), "-100", "hello")
	require.True(t, backoff.IsNoRetry(err))
	require.ErrorIs(t, err, tele.ErrBlockedByUser)
}

func TestClassify(t *testing.T) {
	err := classify(tele.FloodError{RetryAfter: 3})
	hint, ok := backoff.RetryAfterHint(err)
	require.True(t, ok)
	require.Equal(t, 3*time.Second, hint)

	for _, e := range []error{tele.ErrChatNotFound, tele.ErrKickedFromGroup, tele.ErrKickedFromSuperGroup} {
		require.True(t, backoff.IsNoRetry(classify(fmt.Errorf("send: %w", e))))
	}

	plain := fmt.Errorf("network down")
	require.Equal(t, plain, classify(plain))
}

func TestMessagesHonorsContext(t *testing.T) {
	a := newTestAdapter(t, clock.NewManual(time.Unix(0, 0)))
	a.send = &fakeSender{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Messages(ctx, "-100", nil)
	require.ErrorIs(t, err, context.Canceled)
}
