// Package telegram is the Telegram transport built on telebot.
//
// Incoming messages are buffered per chat by a long poller and handed to the bot
// loop through Messages. Channels are chat IDs ("-100123") or public usernames
// ("@team").
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"contextbot/internal/backoff"
	"contextbot/internal/chat"
	"contextbot/internal/clock"
	rtsup "contextbot/internal/runtime/supervisor"
	"contextbot/internal/transport"
	logx "contextbot/pkg/logx"
)

type Config struct {
	Token          string
	PollTimeout    time.Duration // default 10s
	SendRatePerSec float64       // default 1
	InboxSize      int           // default 1000
	// Offline skips the getMe call; tests use it.
	Offline bool
	// Clock stamps updates that arrive without a date.
	Clock clock.Clock
}

// sender is the part of *tele.Bot used to post.
type sender interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

type Adapter struct {
	cfg Config
	log logx.Logger
	clk clock.Clock

	bot     *tele.Bot
	send    sender
	limiter *rate.Limiter
	inbox   *inbox

	chatsMu sync.Mutex
	chats   map[string]int64

	runMu sync.Mutex
	sup   *rtsup.Supervisor
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.SendRatePerSec <= 0 {
		cfg.SendRatePerSec = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline: cfg.Offline,
		OnError: func(err error, _ tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		cfg:     cfg,
		log:     log,
		clk:     cfg.Clock,
		bot:     b,
		send:    b,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRatePerSec), 1),
		inbox:   newInbox(cfg.InboxSize),
		chats:   map[string]int64{},
	}
	b.Handle(tele.OnText, a.handle)
	b.Handle(tele.OnChannelPost, a.handle)
	return a, nil
}

func (a *Adapter) handle(c tele.Context) error {
	a.receive(c.Message())
	return nil
}

// receive buffers a message. Messages without text are skipped.
func (a *Adapter) receive(m *tele.Message) {
	if m == nil || m.Chat == nil || strings.TrimSpace(m.Text) == "" {
		return
	}
	author := ""
	if m.Sender != nil {
		author = m.Sender.Username
		if author == "" {
			author = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
		}
	}
	at := m.Time()
	if m.Unixtime == 0 {
		at = a.clk.Now()
	}
	a.inbox.push(m.Chat.ID, chat.Message{
		ID:     int64(m.ID),
		Author: author,
		Text:   m.Text,
		Time:   at,
	})
}

// Start runs the long poller until ctx is cancelled or Stop is called.
func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.sup != nil {
		return nil
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(a.log))
	a.sup = sup

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() == nil {
			return errors.New("poller exited")
		}
		return nil
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	sup.Go0("inbox.drop_report", func(c context.Context) {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				if n := a.inbox.takeDropped(); n > 0 {
					a.log.Warn("incoming messages dropped (inbox full)", logx.Int64("count", int64(n)))
				}
			}
		}
	})
	return nil
}

// Stop cancels the poller and waits up to two seconds (or ctx) for it.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Stop(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) Messages(ctx context.Context, channel string, after *chat.Message) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := a.resolve(channel)
	if err != nil {
		return nil, err
	}
	return a.inbox.since(id, after), nil
}

func (a *Adapter) Send(ctx context.Context, channel, text string) error {
	id, err := a.resolve(channel)
	if err != nil {
		return err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = a.send.Send(tele.ChatID(id), text, tele.ModeMarkdown)
	if err != nil {
		return classify(fmt.Errorf("telegram send to %s: %w", channel, err))
	}
	return nil
}

// resolve maps a channel name to a chat ID, looking up usernames once.
func (a *Adapter) resolve(channel string) (int64, error) {
	channel = strings.TrimSpace(channel)
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return id, nil
	}

	a.chatsMu.Lock()
	defer a.chatsMu.Unlock()
	if id, ok := a.chats[channel]; ok {
		return id, nil
	}
	name := channel
	if !strings.HasPrefix(name, "@") {
		name = "@" + name
	}
	c, err := a.bot.ChatByUsername(name)
	if err != nil {
		return 0, classify(fmt.Errorf("telegram resolve %s: %w", channel, err))
	}
	a.chats[channel] = c.ID
	return c.ID, nil
}

// classify marks flood control as retry-after and permanent chat errors as
// no-retry.
func classify(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return backoff.RetryAfter(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	switch {
	case errors.Is(err, tele.ErrChatNotFound),
		errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrKickedFromGroup),
		errors.Is(err, tele.ErrKickedFromSuperGroup):
		return backoff.NoRetry(err)
	}
	return err
}
