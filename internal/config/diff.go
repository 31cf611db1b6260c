package config

import (
	"reflect"
	"strings"

	logx "contextbot/pkg/logx"
)

// LiveSections can be applied to a running bot without a restart.
var LiveSections = map[string]bool{
	"logging":        true,
	"reply_messages": true,
	"poll_interval":  true,
}

// SummarizeChange returns the changed top-level sections, safe log attrs (never
// the token), and the subset of changed sections that need a restart.
func SummarizeChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	mark := func(name string, fields ...logx.Field) {
		changed = append(changed, name)
		attrs = append(attrs, fields...)
		if !LiveSections[name] {
			restart = append(restart, name)
		}
	}

	if !reflect.DeepEqual(oldCfg.Channels, newCfg.Channels) {
		mark("channels", logx.Strings("channels", newCfg.Channels))
	}
	if !reflect.DeepEqual(oldCfg.ReplyMessages, newCfg.ReplyMessages) {
		mark("reply_messages", logx.Int("reply_messages.count", len(newCfg.Replies())))
	}
	if strings.TrimSpace(oldCfg.PollInterval) != strings.TrimSpace(newCfg.PollInterval) {
		mark("poll_interval", logx.String("poll_interval", newCfg.PollInterval))
	}
	if oldCfg.Seed != newCfg.Seed {
		mark("seed")
	}
	if !reflect.DeepEqual(oldCfg.Rules, newCfg.Rules) {
		kind := "default"
		if newCfg.Rules != nil && newCfg.Rules.Kind != "" {
			kind = newCfg.Rules.Kind
		}
		mark("rules", logx.String("rules.kind", kind))
	}
	if !reflect.DeepEqual(oldCfg.Backoff, newCfg.Backoff) {
		mark("backoff",
			logx.Any("backoff.base", newCfg.Backoff.Base),
			logx.Any("backoff.factor", newCfg.Backoff.Factor),
			logx.String("backoff.max_delay", newCfg.Backoff.MaxDelay),
		)
	}
	if oldCfg.Transport != newCfg.Transport {
		mark("transport",
			logx.String("transport.driver", newCfg.Transport.Driver),
			logx.Bool("transport.token_set", strings.TrimSpace(newCfg.Transport.Telegram.Token) != ""),
			logx.String("transport.poll_timeout", newCfg.Transport.Telegram.PollTimeout),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		driver := ""
		if newCfg.Storage != nil {
			driver = newCfg.Storage.Driver
		}
		mark("storage", logx.String("storage.driver", driver))
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Metrics != newCfg.Metrics {
		mark("metrics", logx.Bool("metrics.enabled", newCfg.Metrics.Enabled), logx.String("metrics.addr", newCfg.Metrics.Addr))
	}
	return changed, attrs, restart
}
