package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/hub"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was
// handled. apiAddr is the HTTP API address of the running server.
func RunCLI(args []string, apiAddr string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("meethub %s\n", Version)
		return true
	case "status":
		if len(args) > 1 {
			apiAddr = args[1]
		}
		if err := runStatus(os.Stdout, apiAddr); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return true
	default:
		return false
	}
}

// runStatus queries a running server's HTTP API and prints a human summary.
// addr is host:port of the API listener.
func runStatus(w io.Writer, addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	base := "http://" + addr

	resp, err := client.Get(base + "/health")
	if err != nil {
		return fmt.Errorf("reach %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %s", resp.Status)
	}
	var health struct {
		Status       string `json:"status"`
		Participants int    `json:"participants"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}

	stateResp, err := client.Get(base + "/api/state")
	if err != nil {
		return fmt.Errorf("fetch state: %w", err)
	}
	defer stateResp.Body.Close()
	var state struct {
		Participants []protocol.ParticipantInfo `json:"participants"`
		HostID       *int                       `json:"host_id"`
		PresenterID  *int                       `json:"presenter_id"`
	}
	if err := json.NewDecoder(stateResp.Body).Decode(&state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	fmt.Fprintf(w, "server: %s (%d participants)\n", health.Status, health.Participants)
	for _, p := range state.Participants {
		var tags []string
		if p.IsHost {
			tags = append(tags, "host")
		}
		if p.IsPresenter {
			tags = append(tags, "presenter")
		}
		if p.VideoOn {
			tags = append(tags, "video")
		}
		if p.AudioOn {
			tags = append(tags, "audio")
		}
		suffix := ""
		if len(tags) > 0 {
			suffix = " [" + strings.Join(tags, ",") + "]"
		}
		fmt.Fprintf(w, "  %3d  %s%s\n", p.ID, p.Name, suffix)
	}
	return nil
}

// runHostConsole drains the local host participant's feed and renders it as
// log lines. The feed is drop-oldest, so a slow terminal never stalls fan-out.
func runHostConsole(ctx context.Context, h *hub.Hub, logger *log.Logger) {
	feed := h.HostFeed()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-feed:
			renderHostEvent(msg, logger)
		}
	}
}

func renderHostEvent(msg protocol.Message, logger *log.Logger) {
	switch msg.Type {
	case protocol.TypeChat:
		logger.Info("chat", "from", msg.SenderName, "text", msg.Text)
	case protocol.TypeUserJoined:
		logger.Info("joined", "name", msg.Name, "id", derefInt(msg.ID))
	case protocol.TypeUserLeft:
		if msg.Reason != "" {
			logger.Info("left", "name", msg.Name, "id", derefInt(msg.ID), "reason", msg.Reason)
		} else {
			logger.Info("left", "name", msg.Name, "id", derefInt(msg.ID))
		}
	case protocol.TypeFileAvailable:
		logger.Info("file shared",
			"file", msg.Filename, "size", humanize.Bytes(uint64(msg.Size)), "from", msg.Uploader)
	case protocol.TypePresenterChanged:
		if msg.PresenterID != nil {
			logger.Info("presenter", "id", *msg.PresenterID)
		} else {
			logger.Info("presenter cleared")
		}
	case protocol.TypeHostChanged:
		logger.Info("host changed", "id", derefInt(msg.HostID))
	case protocol.TypeServerShutdown:
		logger.Info("session ended")
	default:
		logger.Debug("event", "type", msg.Type)
	}
}

func derefInt(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}
