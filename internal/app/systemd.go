package app

import (
	sysd "github.com/coreos/go-systemd/v22/daemon"

	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

// Readiness and stop notifications are no-ops outside a systemd unit
// (SdNotify reports sent=false when NOTIFY_SOCKET is unset).

func notifyReady(log logx.Logger) {
	sent, err := sysd.SdNotify(false, sysd.SdNotifyReady)
	if err != nil {
		log.Warn("sd_notify ready", logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify ready sent")
	}
}

func notifyStopping(log logx.Logger) {
	sent, err := sysd.SdNotify(false, sysd.SdNotifyStopping)
	if err != nil {
		log.Warn("sd_notify stopping", logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify stopping sent")
	}
}
