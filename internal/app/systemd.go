package app

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "contextbot/pkg/logx"
)

// sdNotify reports state to systemd when running under a Type=notify unit. It
// is a no-op elsewhere.
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("systemd notified", logx.String("state", state))
	}
}

// watchdogHeartbeat returns the loop heartbeat that pings the systemd
// watchdog and how often the loop must call it while idle. It returns nil
// when WatchdogSec is not configured.
func watchdogHeartbeat(log logx.Logger) (func(), time.Duration) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog check failed", logx.Err(err))
		return nil, 0
	}
	if interval <= 0 {
		return nil, 0
	}
	log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	return func() { sdNotify(log, daemon.SdNotifyWatchdog) }, max(interval/2, time.Second)
}
