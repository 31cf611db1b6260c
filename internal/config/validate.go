package config

import (
	"errors"
	"fmt"
	"strings"

	"contextbot/internal/clock"
	"contextbot/internal/rules"
)

// Spec converts the node into a rules.Spec. A nil node is the default preset.
func (r *RuleConfig) Spec() (rules.Spec, error) {
	return r.spec("rules")
}

func (r *RuleConfig) spec(path string) (rules.Spec, error) {
	if r == nil {
		return rules.Spec{Kind: rules.KindDefault}, nil
	}
	out := rules.Spec{Kind: r.Kind, Factor: r.Factor}

	d, err := ParseDurationField(path+".interval", r.Interval)
	if err != nil {
		return rules.Spec{}, err
	}
	out.Interval = d

	if strings.EqualFold(strings.TrimSpace(r.Kind), rules.KindRandom) {
		if r.Chance == nil {
			return rules.Spec{}, fmt.Errorf("%s: random needs chance", path)
		}
		out.Chance = *r.Chance
	}

	for i := range r.Rules {
		child, err := r.Rules[i].spec(fmt.Sprintf("%s.rules[%d]", path, i))
		if err != nil {
			return rules.Spec{}, err
		}
		out.Rules = append(out.Rules, child)
	}
	return out, nil
}

// Validate reports every startup-fatal problem in cfg, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if len(cfg.Channels) == 0 {
		errs = append(errs, ErrNoChannels)
	}
	seen := make(map[string]bool, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		ch = strings.TrimSpace(ch)
		switch {
		case ch == "":
			errs = append(errs, fmt.Errorf("channels[%d]: empty channel name", i))
		case seen[ch]:
			errs = append(errs, fmt.Errorf("channels[%d]: duplicate channel %q", i, ch))
		}
		seen[ch] = true
	}

	if len(cfg.Replies()) == 0 {
		errs = append(errs, ErrNoReplies)
	}
	if _, err := ParseDurationField("poll_interval", cfg.PollInterval); err != nil {
		errs = append(errs, err)
	}

	if spec, err := cfg.Rules.Spec(); err != nil {
		errs = append(errs, err)
	} else if _, err := rules.Build(spec, clock.System(), clock.NewRand(1)); err != nil {
		errs = append(errs, err)
	}

	if b := cfg.Backoff.Base; b != nil && *b <= 0 {
		errs = append(errs, errors.New("backoff.base must be > 0"))
	}
	if f := cfg.Backoff.Factor; f != nil && *f < 0 {
		errs = append(errs, errors.New("backoff.factor must be >= 0"))
	}
	if _, err := ParseDurationField("backoff.max_delay", cfg.Backoff.MaxDelay); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Transport.Driver)) {
	case "", "telegram":
		tg := cfg.Transport.Telegram
		if strings.TrimSpace(tg.Token) == "" {
			errs = append(errs, ErrNoToken)
		}
		if _, err := ParseDurationField("transport.telegram.poll_timeout", tg.PollTimeout); err != nil {
			errs = append(errs, err)
		}
		if tg.SendRatePerSec < 0 {
			errs = append(errs, errors.New("transport.telegram.send_rate_per_sec must be >= 0"))
		}
		if tg.InboxSize < 0 {
			errs = append(errs, errors.New("transport.telegram.inbox_size must be >= 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.driver: unknown driver %q", cfg.Transport.Driver))
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "memory":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path is required for driver %q", st.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
