package config

import "errors"

var (
	ErrNoChannels = errors.New("config: channels must not be empty")
	ErrNoToken    = errors.New("config: transport.telegram.token is required")
	ErrNoReplies  = errors.New("config: reply_messages must contain at least one non-empty text")
)

// DefaultReplyMessages are sent when reply_messages is omitted.
var DefaultReplyMessages = []string{
	"Can you _contextualize that_?",
	"Sorry to interrupt, but can you _contextualize that_?",
	"Hold on a minute. Please _contextualize that_!",
}

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	// Channels are visited in this order on every loop iteration.
	Channels []string `json:"channels"`
	// ReplyMessages are the canned prompts; one is picked at random per trigger.
	ReplyMessages []string `json:"reply_messages,omitempty"`
	// PollInterval is the idle sleep between iterations. Default "5s".
	PollInterval string `json:"poll_interval,omitempty"`
	// Seed fixes the RNG for reproducible runs. 0 seeds from the clock.
	Seed uint64 `json:"seed,omitempty"`

	// Rules is the decision tree. Omitted means the default preset.
	Rules   *RuleConfig   `json:"rules,omitempty"`
	Backoff BackoffConfig `json:"backoff,omitempty"`

	Transport TransportConfig `json:"transport"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
}

// RuleConfig is one node of the rule tree.
//
// Example:
//
//	rules:
//	  kind: all
//	  rules:
//	    - kind: long_thread
//	    - kind: delay
//	      interval: 30m
//	    - kind: random
//	      chance: 0.25
type RuleConfig struct {
	Kind     string       `json:"kind"`
	Rules    []RuleConfig `json:"rules,omitempty"`
	Interval string       `json:"interval,omitempty"` // delay
	Chance   *float64     `json:"chance,omitempty"`   // random; required
	Factor   float64      `json:"factor,omitempty"`   // long_thread
}

// BackoffConfig tunes the error backoff. Omitted fields mean base=2,
// factor=0.25, no cap, and no reset on success. An explicit factor of 0 waits a
// constant 1s.
type BackoffConfig struct {
	Base           *float64 `json:"base,omitempty"`
	Factor         *float64 `json:"factor,omitempty"`
	MaxDelay       string  `json:"max_delay,omitempty"`
	ResetOnSuccess bool    `json:"reset_on_success,omitempty"`
}

type TransportConfig struct {
	// Driver selects the chat backend. Only "telegram" is supported.
	Driver   string         `json:"driver"`
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout. Default "10s".
	PollTimeout string `json:"poll_timeout,omitempty"`
	// SendRatePerSec limits outgoing messages. Default 1.
	SendRatePerSec float64 `json:"send_rate_per_sec,omitempty"`
	// InboxSize bounds buffered incoming messages per channel. Default 1000.
	InboxSize int `json:"inbox_size,omitempty"`
}

// StorageConfig controls the history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/history.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9464"
}

// Replies returns the effective reply texts.
func (c *Config) Replies() []string {
	out := make([]string, 0, len(c.ReplyMessages))
	for _, r := range c.ReplyMessages {
		if r != "" {
			out = append(out, r)
		}
	}
	if len(c.ReplyMessages) == 0 {
		return append([]string(nil), DefaultReplyMessages...)
	}
	return out
}
