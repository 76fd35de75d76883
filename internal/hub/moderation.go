package hub

import (
	"errors"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/registry"
)

// handleModeration validates that the sender holds the host role and applies
// the command. Every forced state change produces two effects: a direct
// typed notification to the target, and a broadcast state delta so all
// rosters stay consistent.
func (h *Hub) handleModeration(c *client, msg protocol.Message) {
	sender, ok := h.reg.Lookup(c.id)
	if !ok || !sender.IsHost() {
		h.permissionError(c.id, "host privileges required")
		return
	}

	switch msg.Type {
	case protocol.TypeForceMute:
		if id, ok := targetOf(msg); ok {
			h.forceMute(id)
		}
	case protocol.TypeForceMuteAll:
		for _, p := range h.reg.Snapshot() {
			if !p.IsHost() {
				h.forceMute(p.ID)
			}
		}
	case protocol.TypeForceVideoOff:
		if id, ok := targetOf(msg); ok {
			h.forceVideoOff(id)
		}
	case protocol.TypeForceVideoOffAll:
		for _, p := range h.reg.Snapshot() {
			if !p.IsHost() {
				h.forceVideoOff(p.ID)
			}
		}
	case protocol.TypeForceStopPresenting, protocol.TypeForceStopScreenSharing:
		h.forceStopPresenting(msg)
	case protocol.TypeHostRequest:
		h.forwardHostRequest(msg)
	case protocol.TypeSetPermission:
		h.applySetPermission(c, msg)
	case protocol.TypeKick:
		if id, ok := targetOf(msg); ok {
			h.kick(id)
		}
	}
}

// targetOf accepts either addressing field; force_* uses target_client and
// set_permission/kick use target.
func targetOf(msg protocol.Message) (int, bool) {
	if msg.TargetClient != nil {
		return *msg.TargetClient, true
	}
	if msg.Target != nil {
		return *msg.Target, true
	}
	return 0, false
}

func (h *Hub) forceMute(id int) {
	p, err := h.reg.SetMediaState(id, nil, protocol.BoolPtr(false), nil)
	if err != nil {
		return
	}
	h.sendControl(id, protocol.Message{
		Type:      protocol.TypeForceMute,
		Timestamp: protocol.Now(),
	})
	h.broadcastEvent(protocol.Message{
		Type:      protocol.TypeMediaState,
		Timestamp: protocol.Now(),
		ID:        protocol.IntPtr(id),
		VideoOn:   protocol.BoolPtr(p.Media.VideoOn),
		AudioOn:   protocol.BoolPtr(false),
	}, -1)
}

func (h *Hub) forceVideoOff(id int) {
	p, err := h.reg.SetMediaState(id, protocol.BoolPtr(false), nil, nil)
	if err != nil {
		return
	}
	h.sendControl(id, protocol.Message{
		Type:      protocol.TypeForceVideoOff,
		Timestamp: protocol.Now(),
	})
	h.broadcastEvent(protocol.Message{
		Type:      protocol.TypeMediaState,
		Timestamp: protocol.Now(),
		ID:        protocol.IntPtr(id),
		VideoOn:   protocol.BoolPtr(false),
		AudioOn:   protocol.BoolPtr(p.Media.AudioOn),
	}, -1)
}

// forceStopPresenting clears the presenter slot. Without an explicit target
// the current holder is stopped.
func (h *Hub) forceStopPresenting(msg protocol.Message) {
	id, ok := targetOf(msg)
	if !ok {
		pid, _, held := h.reg.Presenter()
		if !held {
			return
		}
		id = pid
	}
	if !h.reg.ReleasePresenter(id) {
		return
	}
	h.sendControl(id, protocol.Message{
		Type:      protocol.TypeForceStopPresenting,
		Timestamp: protocol.Now(),
	})
	h.broadcastEvent(protocol.Message{
		Type:      protocol.TypePresenterChanged,
		Timestamp: protocol.Now(),
	}, -1)
}

// forwardHostRequest relays a non-forcing prompt to the target; the client
// shows it and decides locally.
func (h *Hub) forwardHostRequest(msg protocol.Message) {
	id, ok := targetOf(msg)
	if !ok {
		return
	}
	h.sendControl(id, protocol.Message{
		Type:        protocol.TypeHostRequest,
		Timestamp:   protocol.Now(),
		RequestType: msg.RequestType,
		Message:     msg.Message,
	})
}

func (h *Hub) applySetPermission(c *client, msg protocol.Message) {
	id, ok := targetOf(msg)
	if !ok || msg.Field == "" || msg.Value == nil {
		h.permissionError(c.id, "set_permission requires target, field, and value")
		return
	}

	// Revoking screen share while the target presents force-stops it in the
	// same registry step.
	if msg.Field == protocol.PermScreenShare && !*msg.Value {
		_, cleared, err := h.reg.RevokeScreenShare(id)
		if err != nil {
			h.permissionError(c.id, "unknown participant")
			return
		}
		h.notifyPermission(id, msg.Field, false)
		if cleared {
			h.sendControl(id, protocol.Message{
				Type:      protocol.TypeForceStopPresenting,
				Timestamp: protocol.Now(),
			})
			h.broadcastEvent(protocol.Message{
				Type:      protocol.TypePresenterChanged,
				Timestamp: protocol.Now(),
			}, -1)
		}
		return
	}

	_, changed, err := h.reg.SetPermission(id, msg.Field, *msg.Value)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrUnknownField):
			h.permissionError(c.id, "unknown permission field")
		default:
			h.permissionError(c.id, "unknown participant")
		}
		return
	}
	if !changed {
		return // idempotent: no additional broadcast
	}
	h.notifyPermission(id, msg.Field, *msg.Value)
}

// notifyPermission delivers the permission change to the target and
// broadcasts it so every roster reflects the new capability set.
func (h *Hub) notifyPermission(id int, field string, value bool) {
	update := protocol.Message{
		Type:      protocol.TypeSetPermission,
		Timestamp: protocol.Now(),
		Target:    protocol.IntPtr(id),
		Field:     field,
		Value:     protocol.BoolPtr(value),
	}
	h.sendControl(id, update)
	h.broadcastEvent(update, id)
}

// kick notifies the target and waits for the writer to put the notice on the
// wire before the teardown closes the socket.
func (h *Hub) kick(id int) {
	h.sendControl(id, protocol.Message{
		Type:      protocol.TypeKick,
		Timestamp: protocol.Now(),
	})

	h.mu.RLock()
	c := h.clients[id]
	h.mu.RUnlock()
	if c != nil {
		c.flushClose()
	}
	h.removeParticipant(id, "kicked")
}
