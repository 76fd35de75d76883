package hub

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/registry"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/session"
)

// dispatch routes one decoded control record from a logged-in participant.
// Unknown types are tolerated: one warning per type, connection stays up.
func (h *Hub) dispatch(c *client, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeHeartbeat:
		h.reg.Heartbeat(c.id)

	case protocol.TypeLogout:
		h.removeParticipant(c.id, "logout")

	case protocol.TypeChat:
		h.handleChat(c, msg)

	case protocol.TypeMediaState:
		h.handleMediaState(c, msg)

	case protocol.TypeRequestPresenter:
		h.handleRequestPresenter(c)

	case protocol.TypeStopPresenting:
		if h.reg.ReleasePresenter(c.id) {
			h.broadcastEvent(protocol.Message{
				Type:      protocol.TypePresenterChanged,
				Timestamp: protocol.Now(),
			}, -1)
		}

	case protocol.TypeScreenFrame:
		h.handleScreenFrame(c, msg)

	case protocol.TypeForceMute, protocol.TypeForceMuteAll,
		protocol.TypeForceVideoOff, protocol.TypeForceVideoOffAll,
		protocol.TypeForceStopPresenting, protocol.TypeForceStopScreenSharing,
		protocol.TypeHostRequest, protocol.TypeSetPermission, protocol.TypeKick:
		h.handleModeration(c, msg)

	case protocol.TypeFileOffer:
		h.handleFileOffer(c, msg)

	case protocol.TypeFileRequest:
		h.handleFileRequest(c, msg)

	case protocol.TypeGetFilesList:
		h.sendControl(c.id, protocol.Message{
			Type:        protocol.TypeFilesListUpdate,
			Timestamp:   protocol.Now(),
			SharedFiles: h.files.Snapshot(),
		})

	case protocol.TypeLogin:
		// Repeated login on an authenticated connection is a no-op.

	default:
		h.warnUnknownType(msg.Type)
	}
}

func (h *Hub) handleChat(c *client, msg protocol.Message) {
	p, ok := h.reg.Lookup(c.id)
	if !ok {
		return
	}
	if !p.Perms.MayChat {
		h.permissionError(c.id, "chat is not allowed")
		return
	}
	if msg.Text == "" {
		h.permissionError(c.id, "chat text is required")
		return
	}
	if len(msg.Text) > protocol.MaxChatLength {
		h.permissionError(c.id, fmt.Sprintf("chat text exceeds %d bytes", protocol.MaxChatLength))
		return
	}
	h.fanOutChat(p.ID, p.Name, msg.Text)
}

// fanOutChat logs the message with the authoritative server timestamp and
// fans it out to everyone except the sender. A chat is never silently
// discarded: it either reaches the fan-out or the sender got a typed error.
func (h *Hub) fanOutChat(senderID int, senderName, text string) {
	entry := protocol.ChatMessage{
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		Timestamp:  protocol.Now(),
	}
	h.chat.Append(entry)
	h.statChat.Add(1)

	h.broadcastEvent(protocol.Message{
		Type:       protocol.TypeChat,
		Timestamp:  entry.Timestamp,
		SenderID:   protocol.IntPtr(senderID),
		SenderName: senderName,
		Text:       text,
	}, senderID)
}

func (h *Hub) handleMediaState(c *client, msg protocol.Message) {
	p, err := h.reg.SetMediaState(c.id, msg.VideoOn, msg.AudioOn, nil)
	if err != nil {
		return
	}
	h.broadcastEvent(protocol.Message{
		Type:      protocol.TypeMediaState,
		Timestamp: protocol.Now(),
		ID:        protocol.IntPtr(c.id),
		VideoOn:   protocol.BoolPtr(p.Media.VideoOn),
		AudioOn:   protocol.BoolPtr(p.Media.AudioOn),
	}, c.id)
}

func (h *Hub) handleRequestPresenter(c *client) {
	switch h.reg.RequestPresenter(c.id) {
	case registry.PresenterGranted:
		h.sendControl(c.id, protocol.Message{
			Type:      protocol.TypePresenterGranted,
			Timestamp: protocol.Now(),
		})
		h.broadcastEvent(protocol.Message{
			Type:        protocol.TypePresenterChanged,
			Timestamp:   protocol.Now(),
			PresenterID: protocol.IntPtr(c.id),
		}, -1)
	case registry.PresenterBusy:
		h.sendControl(c.id, protocol.Message{
			Type:      protocol.TypePresenterDenied,
			Timestamp: protocol.Now(),
			Reason:    "busy",
		})
	case registry.PresenterNoPermission:
		h.sendControl(c.id, protocol.Message{
			Type:      protocol.TypePresenterDenied,
			Timestamp: protocol.Now(),
			Reason:    "screen sharing is not allowed",
		})
	}
}

func (h *Hub) handleScreenFrame(c *client, msg protocol.Message) {
	pid, _, held := h.reg.Presenter()
	if !held || pid != c.id {
		h.permissionError(c.id, "not the presenter")
		return
	}
	p, ok := h.reg.Lookup(c.id)
	if !ok || !p.Perms.MayScreenShare {
		h.permissionError(c.id, "screen sharing is not allowed")
		return
	}
	if len(msg.FrameData) == 0 {
		return
	}

	h.broadcastScreen(protocol.Message{
		Type:      protocol.TypeScreenFrame,
		Timestamp: protocol.Now(),
		SenderID:  protocol.IntPtr(c.id),
		FrameData: msg.FrameData,
	}, c.id)
}

func (h *Hub) handleFileOffer(c *client, msg protocol.Message) {
	p, ok := h.reg.Lookup(c.id)
	if !ok {
		return
	}
	if !p.Perms.MayUpload {
		h.permissionError(c.id, "file upload is not allowed")
		return
	}

	fid := msg.FID
	if fid == "" {
		fid = uuid.NewString()
	}
	if msg.Size < 0 {
		h.fileError(c.id, fid, "negative size")
		return
	}
	if msg.Size > h.cfg.MaxFileSize {
		h.fileError(c.id, fid, fmt.Sprintf("file exceeds %d bytes", h.cfg.MaxFileSize))
		return
	}
	filename, err := session.SanitizeFilename(msg.Filename)
	if err != nil {
		h.fileError(c.id, fid, "invalid filename")
		return
	}

	port, err := h.transfers.StartUpload(fid, filename, msg.Size, c.id, p.Name)
	if err != nil {
		reason := "upload setup failed"
		if errors.Is(err, session.ErrFIDTaken) {
			reason = "fid already in use"
		}
		h.fileError(c.id, fid, reason)
		return
	}

	h.sendControl(c.id, protocol.Message{
		Type:      protocol.TypeFileUploadPort,
		Timestamp: protocol.Now(),
		FID:       fid,
		Port:      port,
	})
}

func (h *Hub) handleFileRequest(c *client, msg protocol.Message) {
	p, ok := h.reg.Lookup(c.id)
	if !ok {
		return
	}
	if !p.Perms.MayDownload {
		h.permissionError(c.id, "file download is not allowed")
		return
	}

	port, size, err := h.transfers.StartDownload(msg.FID)
	if err != nil {
		reason := "download setup failed"
		if errors.Is(err, session.ErrFileNotFound) {
			reason = "file not found"
		}
		h.fileError(c.id, msg.FID, reason)
		return
	}

	h.sendControl(c.id, protocol.Message{
		Type:      protocol.TypeFileDownloadPort,
		Timestamp: protocol.Now(),
		FID:       msg.FID,
		Port:      port,
		Size:      size,
	})
}

func (h *Hub) permissionError(id int, text string) {
	h.sendControl(id, protocol.Message{
		Type:      protocol.TypePermissionError,
		Timestamp: protocol.Now(),
		Message:   text,
	})
}

func (h *Hub) fileError(id int, fid, reason string) {
	h.sendControl(id, protocol.Message{
		Type:      protocol.TypeFileError,
		Timestamp: protocol.Now(),
		FID:       fid,
		Reason:    reason,
	})
}

func (h *Hub) warnUnknownType(t string) {
	h.warnMu.Lock()
	_, seen := h.warnedTypes[t]
	if !seen {
		h.warnedTypes[t] = struct{}{}
	}
	h.warnMu.Unlock()

	if !seen {
		h.logger.Warn("ignoring unknown message type", "type", t)
	}
}
