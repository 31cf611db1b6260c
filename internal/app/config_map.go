package app

import (
	"strings"
	"time"

	"contextbot/internal/backoff"
	"contextbot/internal/config"
	"contextbot/internal/storage"
	"contextbot/internal/transport/telegram"
	logx "contextbot/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	tg := cfg.Transport.Telegram
	poll, err := config.ParseDurationOrDefault("transport.telegram.poll_timeout", tg.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:          strings.TrimSpace(tg.Token),
		PollTimeout:    poll,
		SendRatePerSec: tg.SendRatePerSec,
		InboxSize:      tg.InboxSize,
	}, nil
}

func mapBackoffPolicy(cfg *config.Config) (*backoff.Exponential, error) {
	p := backoff.NewExponential()
	if cfg.Backoff.Base != nil {
		p.Base = *cfg.Backoff.Base
	}
	if cfg.Backoff.Factor != nil {
		p.Factor = *cfg.Backoff.Factor
	}
	maxDelay, err := config.ParseDurationField("backoff.max_delay", cfg.Backoff.MaxDelay)
	if err != nil {
		return nil, err
	}
	p.MaxDelay = maxDelay
	p.ResetOnSuccess = cfg.Backoff.ResetOnSuccess
	return p, nil
}

func mapPollInterval(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("poll_interval", cfg.PollInterval, DefaultPollInterval)
}
