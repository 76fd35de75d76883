package hub

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
)

// handshakeTimeout bounds how long a fresh connection may take to present a
// valid login frame.
const handshakeTimeout = 30 * time.Second

// client is the per-connection wiring for one remote participant: the socket
// plus its outbound queues. Reader and writer run as independent goroutines;
// a blocked writer never blocks the reader.
type client struct {
	id   int
	name string
	conn net.Conn
	q    *sendQueue

	done      chan struct{}
	flush     chan struct{}
	flushed   chan struct{}
	closeOnce sync.Once
}

func newClient(id int, name string, conn net.Conn) *client {
	return &client{
		id:      id,
		name:    name,
		conn:    conn,
		q:       newSendQueue(),
		done:    make(chan struct{}),
		flush:   make(chan struct{}, 1),
		flushed: make(chan struct{}),
	}
}

// close tears the connection down and releases the writer. Idempotent.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readLoop decodes frames and hands them to the hub dispatcher until the
// connection dies. It owns participant removal on read failure.
func (c *client) readLoop(h *Hub) {
	for {
		msg, err := protocol.ReadFrameDeadline(c.conn, 0)
		if err != nil {
			select {
			case <-c.done:
				// Evicted or shutting down; removal already handled.
			default:
				reason := "connection closed"
				if errors.Is(err, protocol.ErrFrameTooLarge) {
					reason = "oversize frame"
				} else if errors.Is(err, os.ErrDeadlineExceeded) {
					reason = "read timeout"
				}
				if err != io.EOF {
					h.logger.Warn("control read failed", "id", c.id, "err", err)
				}
				h.removeParticipant(c.id, reason)
			}
			return
		}
		h.dispatch(c, msg)
	}
}

// writeLoop drains the outbound queues. select gives no strict priority
// between classes, but FIFO holds within each class, which is the only
// ordering the protocol guarantees.
func (c *client) writeLoop(h *Hub) {
	for {
		select {
		case <-c.done:
			return
		case <-c.flush:
			c.drainControl(h)
			c.close()
			close(c.flushed)
			return
		case msg := <-c.q.control:
			if !c.write(h, msg) {
				return
			}
		case <-c.q.screenReady:
			if msg, ok := c.q.takeScreen(); ok {
				if !c.write(h, msg) {
					return
				}
			}
		case msg := <-c.q.events:
			c.q.noteEventDrained(msg)
			if !c.write(h, msg) {
				return
			}
		}
	}
}

// drainControl writes out every control record already queued. Each write
// still carries the normal deadline; a failed write abandons the rest.
func (c *client) drainControl(h *Hub) {
	for {
		select {
		case msg := <-c.q.control:
			if !c.write(h, msg) {
				return
			}
		default:
			return
		}
	}
}

// flushClose asks the writer to deliver queued control records, then tears
// the connection down. It blocks until the writer confirms, the connection
// is already closing, or the write deadline passes, so a forced removal
// cannot overtake its own notice.
func (c *client) flushClose() {
	select {
	case c.flush <- struct{}{}:
	default:
	}
	select {
	case <-c.flushed:
	case <-c.done:
	case <-time.After(protocol.WriteTimeout + time.Second):
	}
	c.close()
}

func (c *client) write(h *Hub, msg protocol.Message) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(protocol.WriteTimeout))
	if err := protocol.WriteFrame(c.conn, msg); err != nil {
		select {
		case <-c.done:
		default:
			h.logger.Warn("control write failed", "id", c.id, "type", msg.Type, "err", err)
			go h.removeParticipant(c.id, "write timeout")
		}
		return false
	}
	return true
}

// writeDirect sends one frame synchronously, bypassing the queues. Used for
// the login reply before the writer exists and for best-effort shutdown.
func (c *client) writeDirect(msg protocol.Message, timeout time.Duration) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return protocol.WriteFrame(c.conn, msg)
}
