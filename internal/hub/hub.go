package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/config"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/registry"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/session"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/transfer"
)

// shutdownFlushBudget bounds the best-effort server_shutdown notice on exit.
const shutdownFlushBudget = 2 * time.Second

// hostFeedDepth bounds the local host console feed; overflow drops oldest.
const hostFeedDepth = 256

// Hub is the central fan-out engine: it owns the reliable listener, the
// per-participant queues, and the dispatch of every inbound control record.
type Hub struct {
	cfg    config.Config
	logger *log.Logger

	reg       *registry.Registry
	chat      *session.ChatLog
	files     *session.Index
	scanner   *session.Scanner
	transfers *transfer.Mediator

	mu      sync.RWMutex
	clients map[int]*client

	hostFeed   chan protocol.Message
	hasLocal   bool
	listener   net.Listener
	shuttingDown atomic.Bool

	warnMu      sync.Mutex
	warnedTypes map[string]struct{}

	statChat    atomic.Uint64
	statScreens atomic.Uint64
	statEvicted atomic.Uint64
}

// New wires a hub from its collaborators. The scanner and mediator callbacks
// are bound here so file availability reaches every participant.
func New(cfg config.Config, reg *registry.Registry, chat *session.ChatLog, files *session.Index, scanner *session.Scanner, transfers *transfer.Mediator, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	h := &Hub{
		cfg:         cfg,
		logger:      logger,
		reg:         reg,
		chat:        chat,
		files:       files,
		scanner:     scanner,
		transfers:   transfers,
		clients:     make(map[int]*client),
		hostFeed:    make(chan protocol.Message, hostFeedDepth),
		warnedTypes: make(map[string]struct{}),
	}

	scanner.OnAvailable = func(e session.Entry) {
		h.broadcastEvent(h.fileAvailableMsg(e.FileEntry), -1)
	}
	transfers.OnAvailable = func(e session.Entry) {
		h.broadcastEvent(h.fileAvailableMsg(e.FileEntry), -1)
	}
	transfers.OnFailure = func(uploaderID int, fid, reason string) {
		h.sendControl(uploaderID, protocol.Message{
			Type:      protocol.TypeFileError,
			Timestamp: protocol.Now(),
			FID:       fid,
			Reason:    reason,
		})
	}
	return h
}

// SeedLocalHost installs the id-0 host participant whose fan-out goes to the
// in-process console feed instead of a socket.
func (h *Hub) SeedLocalHost(name string) {
	h.reg.SeedHost(name)
	h.hasLocal = true
}

// HostFeed exposes the local host participant's inbound stream for the
// console and HTTP API.
func (h *Hub) HostFeed() <-chan protocol.Message { return h.hostFeed }

// Run binds the control listener and serves until ctx is canceled. Startup
// failures (cannot bind) are returned; everything later is per-participant.
func (h *Hub) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.cfg.ControlAddr())
	if err != nil {
		return fmt.Errorf("bind control port: %w", err)
	}
	h.listener = ln
	h.logger.Info("control listener up", "addr", ln.Addr().String())

	go h.RunMonitor(ctx)

	go func() {
		<-ctx.Done()
		h.shutdown()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if h.shuttingDown.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			h.logger.Warn("accept failed", "err", err)
			continue
		}
		go h.handleConn(conn)
	}
}

// Addr returns the control listener address once Run has bound it.
func (h *Hub) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// handleConn performs the login handshake and, on success, starts the
// reader/writer pair for the new participant.
func (h *Hub) handleConn(conn net.Conn) {
	msg, err := protocol.ReadFrameDeadline(conn, handshakeTimeout)
	if err != nil {
		h.logger.Debug("handshake read failed", "addr", conn.RemoteAddr(), "err", err)
		_ = conn.Close()
		return
	}
	if msg.Type != protocol.TypeLogin {
		h.rejectConn(conn, "first message must be login")
		return
	}

	p, err := h.reg.Admit(msg.Name, conn.RemoteAddr().String())
	if err != nil {
		reason := err.Error()
		if errors.Is(err, registry.ErrSessionFull) {
			reason = "session full"
		}
		h.rejectConn(conn, reason)
		return
	}

	c := newClient(p.ID, p.Name, conn)

	// The map insert and the state snapshot share one critical section so no
	// broadcast can fall between them: a concurrent record is either already
	// reflected in the snapshot or queued behind it.
	h.mu.Lock()
	h.clients[p.ID] = c
	success := protocol.Message{
		Type:         protocol.TypeLoginSuccess,
		Timestamp:    protocol.Now(),
		ClientID:     p.ID,
		Participants: h.rosterInfos(),
		ChatHistory:  h.chat.History(),
		SharedFiles:  h.files.Snapshot(),
	}
	if hostID, hasHost := h.reg.HostID(); hasHost {
		success.HostID = protocol.IntPtr(hostID)
	}
	h.mu.Unlock()

	if err := c.writeDirect(success, protocol.WriteTimeout); err != nil {
		h.logger.Warn("login reply failed", "id", p.ID, "err", err)
		h.mu.Lock()
		delete(h.clients, p.ID)
		h.mu.Unlock()
		h.reg.Remove(p.ID, "login reply failed")
		c.close()
		return
	}

	h.broadcastEvent(protocol.Message{
		Type:      protocol.TypeUserJoined,
		Timestamp: protocol.Now(),
		ID:        protocol.IntPtr(p.ID),
		Name:      p.Name,
	}, p.ID)

	go c.writeLoop(h)
	c.readLoop(h)
}

// rejectConn answers a failed handshake with login_error and closes.
func (h *Hub) rejectConn(conn net.Conn, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(protocol.WriteTimeout))
	_ = protocol.WriteFrame(conn, protocol.Message{
		Type:      protocol.TypeLoginError,
		Timestamp: protocol.Now(),
		Reason:    reason,
	})
	_ = conn.Close()
}

// removeParticipant is the single teardown path for logout, kick, liveness
// timeout, and transport failure. Registry removal, host promotion, and
// presenter clearing happen in one registry step; the dependent broadcasts
// are emitted afterward in causal order.
func (h *Hub) removeParticipant(id int, reason string) {
	removed, promoted, presenterCleared, ok := h.reg.Remove(id, reason)
	if !ok {
		return
	}
	h.statEvicted.Add(1)

	h.mu.Lock()
	c := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if c != nil {
		c.close()
	}

	left := protocol.Message{
		Type:      protocol.TypeUserLeft,
		Timestamp: protocol.Now(),
		ID:        protocol.IntPtr(id),
		Name:      removed.Name,
	}
	if reason != "logout" {
		left.Reason = reason
	}
	h.broadcastEvent(left, -1)

	if presenterCleared {
		h.broadcastEvent(protocol.Message{
			Type:      protocol.TypePresenterChanged,
			Timestamp: protocol.Now(),
		}, -1)
	}
	if promoted != nil {
		h.broadcastEvent(protocol.Message{
			Type:      protocol.TypeHostChanged,
			Timestamp: protocol.Now(),
			HostID:    protocol.IntPtr(promoted.ID),
		}, -1)
	}
}

// broadcastEvent fans a droppable notification out to every participant
// except excludeID (pass a negative id to reach everyone).
func (h *Hub) broadcastEvent(msg protocol.Message, excludeID int) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for id, c := range h.clients {
		if id == excludeID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.q.pushEvent(msg)
	}
	if h.hasLocal && excludeID != 0 {
		h.pushHostFeed(msg)
	}
}

// broadcastScreen fans a screen frame out with latest-wins coalescing. The
// presenter itself and the host console are excluded.
func (h *Hub) broadcastScreen(msg protocol.Message, presenterID int) {
	h.statScreens.Add(1)

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for id, c := range h.clients {
		if id == presenterID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.q.pushScreen(msg)
	}
}

// sendControl delivers a must-arrive record to one participant. A full
// control queue means the recipient stopped draining long ago; it is
// declared unhealthy and evicted.
func (h *Hub) sendControl(id int, msg protocol.Message) {
	if h.hasLocal && id == 0 {
		h.pushHostFeed(msg)
		return
	}

	h.mu.RLock()
	c := h.clients[id]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	if !c.q.pushControl(msg) {
		h.logger.Warn("control queue overflow", "id", id, "type", msg.Type)
		go h.removeParticipant(id, "control queue overflow")
	}
}

// sendEvent delivers a droppable record to one participant.
func (h *Hub) sendEvent(id int, msg protocol.Message) {
	if h.hasLocal && id == 0 {
		h.pushHostFeed(msg)
		return
	}

	h.mu.RLock()
	c := h.clients[id]
	h.mu.RUnlock()
	if c != nil {
		c.q.pushEvent(msg)
	}
}

func (h *Hub) pushHostFeed(msg protocol.Message) {
	if msg.Type == protocol.TypeScreenFrame {
		return // the console cannot render frames
	}
	for {
		select {
		case h.hostFeed <- msg:
			return
		default:
		}
		select {
		case <-h.hostFeed:
		default:
		}
	}
}

func (h *Hub) rosterInfos() []protocol.ParticipantInfo {
	parts := h.reg.Snapshot()
	out := make([]protocol.ParticipantInfo, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.Info())
	}
	return out
}

func (h *Hub) fileAvailableMsg(e protocol.FileEntry) protocol.Message {
	return protocol.Message{
		Type:      protocol.TypeFileAvailable,
		Timestamp: protocol.Now(),
		FID:       e.FID,
		Filename:  e.Filename,
		Size:      e.SizeBytes,
		Uploader:  e.Uploader,
	}
}

// HostChat injects a chat message from the local host console (id 0).
func (h *Hub) HostChat(text string) error {
	p, ok := h.reg.Lookup(0)
	if !ok {
		return fmt.Errorf("no local host participant")
	}
	if len(text) == 0 || len(text) > protocol.MaxChatLength {
		return fmt.Errorf("chat text must be 1..%d bytes", protocol.MaxChatLength)
	}
	h.fanOutChat(p.ID, p.Name, text)
	return nil
}

// ScanSpool runs the manual-file scanner on host command.
func (h *Hub) ScanSpool() (int, error) {
	return h.scanner.Scan()
}

// Roster returns the current participant snapshots for the HTTP API.
func (h *Hub) Roster() []registry.Participant { return h.reg.Snapshot() }

// Files returns the shared-file index snapshot for the HTTP API.
func (h *Hub) Files() map[string]protocol.FileEntry { return h.files.Snapshot() }

// ClientCount returns the number of live participants.
func (h *Hub) ClientCount() int { return h.reg.Count() }

// Stats returns accumulated counters since the last call and resets them.
func (h *Hub) Stats() (chats, screens, evicted uint64) {
	return h.statChat.Swap(0), h.statScreens.Swap(0), h.statEvicted.Swap(0)
}

// shutdown flushes a best-effort server_shutdown notice, then hard-closes
// every connection and the listener.
func (h *Hub) shutdown() {
	if !h.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	h.logger.Info("shutting down", "clients", h.ClientCount())

	if h.listener != nil {
		_ = h.listener.Close()
	}
	h.transfers.Close()

	notice := protocol.Message{
		Type:      protocol.TypeServerShutdown,
		Timestamp: protocol.Now(),
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[int]*client)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			_ = c.writeDirect(notice, shutdownFlushBudget)
			c.close()
		}(c)
	}
	wg.Wait()
	if h.hasLocal {
		h.pushHostFeed(notice)
	}
}
