package main

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/hub"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/media"
)

// metricsInterval is how often the activity summary is logged.
const metricsInterval = 30 * time.Second

// RunMetrics periodically logs a one-line activity summary. Quiet intervals
// with no traffic and no participants are skipped.
func RunMetrics(ctx context.Context, h *hub.Hub, relay *media.Relay, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chats, screens, evicted := h.Stats()
			videoIn, audioIn, fanOut, dropped, sendErrs := relay.Stats()
			clients := h.ClientCount()
			if clients == 0 && chats == 0 && videoIn == 0 && audioIn == 0 {
				continue
			}
			logger.Info("activity",
				"participants", clients,
				"chats", chats,
				"screen_frames", screens,
				"evicted", evicted,
				"video_in", videoIn,
				"audio_in", audioIn,
				"fan_out", fanOut,
				"dropped", dropped,
				"send_errs", sendErrs)
		}
	}
}
