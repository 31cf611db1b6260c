package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"contextbot/internal/backoff"
	"contextbot/internal/chat"
	"contextbot/internal/clock"
	"contextbot/internal/metrics"
	"contextbot/internal/oracle"
	"contextbot/internal/rules"
	"contextbot/internal/transport"
	logx "contextbot/pkg/logx"
)

// DefaultPollInterval is the idle sleep between iterations.
const DefaultPollInterval = 5 * time.Second

type RunnerConfig struct {
	// Oracles are visited in order, one per channel.
	Oracles []*oracle.Oracle
	// Rule is evaluated against every channel. Its gates are shared, so a
	// Delay limits replies across all channels together.
	Rule   rules.Rule
	Policy backoff.Policy
	Source transport.Source
	Sink   transport.Sink
	Rand   clock.Rand

	Replies      []string
	PollInterval time.Duration

	// Heartbeat, when set, is called after every iteration and every
	// HeartbeatEvery while the loop sleeps. An iteration that hangs stops it.
	Heartbeat      func()
	HeartbeatEvery time.Duration

	Log     logx.Logger
	Metrics *metrics.Metrics
}

// Runner is the bot's sequential fetch, feed, decide, send loop.
type Runner struct {
	oracles []*oracle.Oracle
	rule    rules.Rule
	policy  backoff.Policy
	source  transport.Source
	sink    transport.Sink
	rng     clock.Rand
	log     logx.Logger
	metrics *metrics.Metrics

	heartbeat func()
	beatEvery time.Duration

	mu       sync.RWMutex
	replies  []string
	interval time.Duration
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	switch {
	case len(cfg.Oracles) == 0:
		return nil, errors.New("runner: no channels")
	case cfg.Rule == nil:
		return nil, errors.New("runner: rule is nil")
	case cfg.Source == nil || cfg.Sink == nil:
		return nil, errors.New("runner: source and sink are required")
	case len(cfg.Replies) == 0:
		return nil, errors.New("runner: no reply messages")
	}
	if cfg.Policy == nil {
		cfg.Policy = backoff.NewExponential()
	}
	if cfg.Rand == nil {
		cfg.Rand = clock.NewRand(uint64(time.Now().UnixNano()))
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Log.IsZero() {
		cfg.Log = logx.Nop()
	}
	return &Runner{
		oracles:   cfg.Oracles,
		rule:      cfg.Rule,
		policy:    cfg.Policy,
		source:    cfg.Source,
		sink:      cfg.Sink,
		rng:       cfg.Rand,
		log:       cfg.Log,
		metrics:   cfg.Metrics,
		heartbeat: cfg.Heartbeat,
		beatEvery: cfg.HeartbeatEvery,
		replies:   append([]string(nil), cfg.Replies...),
		interval:  cfg.PollInterval,
	}, nil
}

// SetReplies swaps the reply texts. Empty input is ignored.
func (r *Runner) SetReplies(replies []string) {
	if len(replies) == 0 {
		return
	}
	r.mu.Lock()
	r.replies = append([]string(nil), replies...)
	r.mu.Unlock()
}

func (r *Runner) SetPollInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultPollInterval
	}
	r.mu.Lock()
	r.interval = d
	r.mu.Unlock()
}

func (r *Runner) pollInterval() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.interval
}

func (r *Runner) pickReply() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.replies[r.rng.IntN(len(r.replies))]
}

// Run loops until ctx is done (nil) or an iteration fails with a no-retry
// error (that error). Other failures are logged and retried after the
// policy's wait, or the server's retry-after hint when longer.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("loop started", logx.Int("channels", len(r.oracles)), logx.String("rule", r.rule.String()))
	for {
		err := r.Iterate(ctx)
		if ctx.Err() != nil {
			r.log.Info("loop stopped")
			return nil
		}

		wait := r.pollInterval()
		if err != nil {
			if backoff.IsNoRetry(err) {
				r.log.Error("loop stopped on permanent error", logx.Err(err))
				return err
			}
			wait = r.policy.AcceptError(err)
			if hint, ok := backoff.RetryAfterHint(err); ok && hint > wait {
				wait = hint
			}
			r.metrics.Failed(wait)
			r.log.Warn("iteration failed", logx.Err(err), logx.Duration("backoff", wait))
		} else {
			r.policy.Succeeded()
			r.metrics.Iteration()
		}

		r.beat()
		if !r.sleep(ctx, wait) {
			r.log.Info("loop stopped")
			return nil
		}
	}
}

// Iterate visits every channel once. The first failing channel aborts the pass.
func (r *Runner) Iterate(ctx context.Context) error {
	for _, o := range r.oracles {
		if err := r.visit(ctx, o); err != nil {
			return fmt.Errorf("channel %s: %w", o.Channel(), err)
		}
	}
	return nil
}

func (r *Runner) visit(ctx context.Context, o *oracle.Oracle) error {
	ch := o.Channel()

	var after *chat.Message
	latest, ok, err := o.Latest(ctx)
	if err != nil {
		return err
	}
	if ok {
		after = &latest
	}

	msgs, err := r.source.Messages(ctx, ch, after)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if err := o.Feed(ctx, msgs); err != nil {
		return err
	}
	if len(msgs) > 0 {
		n, err := o.MessageCount(ctx)
		if err != nil {
			return err
		}
		r.metrics.Fed(ch, len(msgs), n)
		r.log.Debug("fed messages", logx.String("channel", ch), logx.Int("batch", len(msgs)), logx.Int("recent", n))
	}

	fire, err := r.rule.Evaluate(ctx, o)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if !fire {
		return nil
	}

	text := r.pickReply()
	if err := r.sink.Send(ctx, ch, text); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	r.metrics.Triggered(ch)
	r.log.Info("context requested", logx.String("channel", ch))
	return nil
}

func (r *Runner) beat() {
	if r.heartbeat != nil {
		r.heartbeat()
	}
}

// sleep waits d, beating every beatEvery. It reports false when ctx ends first.
func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	if r.heartbeat == nil || r.beatEvery <= 0 {
		return sleep(ctx, d)
	}
	for d > 0 {
		step := min(d, r.beatEvery)
		if !sleep(ctx, step) {
			return false
		}
		d -= step
		r.beat()
	}
	return ctx.Err() == nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
