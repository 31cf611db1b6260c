// Package app wires configuration, storage, transport and the rule engine into
// the running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"

	"contextbot/internal/clock"
	"contextbot/internal/config"
	"contextbot/internal/metrics"
	"contextbot/internal/oracle"
	"contextbot/internal/rules"
	rtsup "contextbot/internal/runtime/supervisor"
	"contextbot/internal/storage"
	"contextbot/internal/transport"
	"contextbot/internal/transport/telegram"
	logx "contextbot/pkg/logx"
)

type App struct {
	cfgm  *config.Manager
	runID string

	logs *logx.Service
	log  logx.Logger

	store   storage.Store
	adapter transport.Adapter
	metrics *metrics.Metrics
	runner  *Runner
	rule    rules.Rule
}

type options struct {
	adapter transport.Adapter
	clock   clock.Clock
	rand    clock.Rand
}

type Option func(*options)

// WithAdapter replaces the configured transport.
func WithAdapter(a transport.Adapter) Option { return func(o *options) { o.adapter = a } }

// WithClock and WithRand replace the time and randomness sources of the rule tree.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }
func WithRand(r clock.Rand) Option   { return func(o *options) { o.rand = r } }

// New loads and validates the config at cfgPath and builds every component.
// Nothing runs until Run.
func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		if o.adapter == nil || !onlyTokenMissing(err) {
			return nil, err
		}
	}

	runID := uuid.NewString()
	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("run_id", runID))

	a := &App{cfgm: cfgm, runID: runID, logs: logSvc, log: log.With(logx.String("comp", "app"))}
	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if a.store, err = storage.Open(sc, log.With(logx.String("comp", "storage"))); err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	if o.clock == nil {
		o.clock = clock.System()
	}
	if o.rand == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		o.rand = clock.NewRand(seed)
	}

	if o.adapter == nil {
		tc, err := mapTelegramConfig(cfg)
		if err != nil {
			return nil, err
		}
		tc.Clock = o.clock
		if o.adapter, err = telegram.New(tc, log.With(logx.String("comp", "telegram"))); err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
	}
	a.adapter = o.adapter

	spec, err := cfg.Rules.Spec()
	if err != nil {
		return nil, err
	}
	if a.rule, err = rules.Build(spec, o.clock, o.rand); err != nil {
		return nil, err
	}
	policy, err := mapBackoffPolicy(cfg)
	if err != nil {
		return nil, err
	}
	interval, err := mapPollInterval(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}

	oracles := make([]*oracle.Oracle, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		oracles = append(oracles, oracle.New(a.store, strings.TrimSpace(ch)))
	}

	beat, beatEvery := watchdogHeartbeat(log)
	a.runner, err = NewRunner(RunnerConfig{
		Oracles:        oracles,
		Rule:           a.rule,
		Policy:         policy,
		Source:         a.adapter,
		Sink:           a.adapter,
		Rand:           o.rand,
		Replies:        cfg.Replies(),
		PollInterval:   interval,
		Heartbeat:      beat,
		HeartbeatEvery: beatEvery,
		Log:            log.With(logx.String("comp", "loop")),
		Metrics:        a.metrics,
	})
	if err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

// onlyTokenMissing reports whether the token is the sole validation failure.
// An injected adapter does not need one.
func onlyTokenMissing(err error) bool {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			if !errors.Is(e, config.ErrNoToken) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, config.ErrNoToken)
}

func (a *App) RunID() string { return a.runID }

// Rule returns the rule tree the loop evaluates.
func (a *App) Rule() rules.Rule { return a.rule }

// Run starts the transport and background services and blocks in the bot loop
// until ctx is cancelled or the loop stops on a permanent error.
func (a *App) Run(ctx context.Context) error {
	defer a.closeResources()

	sup := rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))))
	if err := a.adapter.Start(sup.Context()); err != nil {
		sup.Cancel()
		return fmt.Errorf("start transport: %w", err)
	}

	if a.metrics != nil {
		cfg := a.cfgm.Get()
		metrics.NewServer(a.metrics, cfg.Metrics.Addr, a.log.With(logx.String("comp", "metrics"))).Start(sup)
	}

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil && !onlyTokenMissing(err) {
			return err
		}
		return nil
	})
	updates := a.cfgm.Subscribe(4)
	sup.Go("config.watch", a.cfgm.Watch)
	sup.Go0("config.apply", func(c context.Context) {
		defer a.cfgm.Unsubscribe(updates)
		a.applyLoop(c, updates)
	})

	a.log.Info("bot started", logx.String("rule", a.rule.String()))
	sdNotify(a.log, daemon.SdNotifyReady)

	err := a.runner.Run(sup.Context())

	sdNotify(a.log, daemon.SdNotifyStopping)
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := a.adapter.Stop(stopCtx); serr != nil {
		a.log.Warn("transport stop failed", logx.Err(serr))
	}
	if serr := sup.Stop(stopCtx); serr != nil {
		a.log.Warn("background services stopped with error", logx.Err(serr))
	}
	a.log.Info("bot stopped")
	return err
}

// applyLoop applies live config sections and reports the rest.
func (a *App) applyLoop(ctx context.Context, updates <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			a.apply(last, cfg)
			last = cfg
		}
	}
}

func (a *App) apply(prev, cfg *config.Config) {
	changed, attrs, restart := config.SummarizeChange(prev, cfg)
	if len(changed) == 0 {
		return
	}
	a.log.Info("config change", append([]logx.Field{logx.Strings("changed", changed)}, attrs...)...)

	for _, section := range changed {
		switch section {
		case "logging":
			a.logs.Apply(mapLoggingConfig(cfg))
		case "reply_messages":
			a.runner.SetReplies(cfg.Replies())
		case "poll_interval":
			if d, err := mapPollInterval(cfg); err == nil {
				a.runner.SetPollInterval(d)
			}
		}
	}
	if len(restart) > 0 {
		a.log.Warn("config sections need a restart to apply", logx.Strings("sections", restart))
	}
}

func (a *App) closeResources() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
		a.store = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
		a.logs = nil
	}
}
