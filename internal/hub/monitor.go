package hub

import (
	"context"
	"time"
)

// monitorInterval is the liveness tick. Timeouts themselves come from config.
const monitorInterval = time.Second

// RunMonitor enforces the heartbeat contract: participants past the soft
// timeout are logged, participants past the hard timeout are evicted. Only
// explicit heartbeat records refresh liveness; media traffic does not count.
func (h *Hub) RunMonitor(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	soft := h.cfg.HeartbeatSoft()
	hard := h.cfg.HeartbeatHard()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, e := range h.reg.Stale(soft, hard) {
				if e.Hard {
					h.logger.Warn("heartbeat hard timeout, evicting",
						"id", e.ID, "name", e.Name, "silent", e.Since.Round(time.Second))
					h.removeParticipant(e.ID, "timeout")
					continue
				}
				h.logger.Warn("heartbeat overdue",
					"id", e.ID, "name", e.Name, "silent", e.Since.Round(time.Second))
			}
		}
	}
}
