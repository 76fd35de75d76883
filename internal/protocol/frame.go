package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"
)

// ErrFrameTooLarge is returned when a frame declares a payload above
// MaxFrameSize. The connection must be closed on this error.
var ErrFrameTooLarge = fmt.Errorf("frame exceeds %d bytes", MaxFrameSize)

// WriteFrame encodes msg as JSON and writes it as one length-prefixed frame:
// uint32 big-endian payload length followed by the payload bytes.
func WriteFrame(w io.Writer, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", msg.Type, err)
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)

	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame and decodes its JSON payload.
// The length prefix is the only synchronization point: any framing or decode
// error is fatal for the connection and is returned to the caller.
func ReadFrame(r io.Reader) (Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, err
	}

	length := binary.BigEndian.Uint32(hdr[:])
	if length > MaxFrameSize {
		return Message{}, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, err
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("frame missing type field")
	}
	return msg, nil
}

// ReadFrameDeadline is ReadFrame with a completion deadline on conn: once the
// length prefix arrives, the full payload must follow within ReadTimeout.
// idle bounds how long to wait for the next frame to begin; zero means wait
// forever.
func ReadFrameDeadline(conn net.Conn, idle time.Duration) (Message, error) {
	if idle > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(idle))
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}

	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return Message{}, err
	}

	length := binary.BigEndian.Uint32(hdr[:])
	if length > MaxFrameSize {
		return Message{}, ErrFrameTooLarge
	}

	// A declared length that does not complete in time is a dead connection.
	_ = conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return Message{}, err
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("frame missing type field")
	}
	return msg, nil
}
