package session

import (
	"sync"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
)

// ChatLog is a bounded ring of the most recent chat messages. Entries are
// immutable once appended; when the ring is full the oldest entry is dropped.
type ChatLog struct {
	mu      sync.Mutex
	entries []protocol.ChatMessage
	start   int
	count   int
}

// NewChatLog creates a ring retaining the last size messages.
func NewChatLog(size int) *ChatLog {
	if size < 1 {
		size = 1
	}
	return &ChatLog{entries: make([]protocol.ChatMessage, size)}
}

// Append logs one message, evicting the oldest if the ring is full.
func (l *ChatLog) Append(msg protocol.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count < len(l.entries) {
		l.entries[(l.start+l.count)%len(l.entries)] = msg
		l.count++
		return
	}
	l.entries[l.start] = msg
	l.start = (l.start + 1) % len(l.entries)
}

// History returns the retained messages oldest-first.
func (l *ChatLog) History() []protocol.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]protocol.ChatMessage, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.entries[(l.start+i)%len(l.entries)]
	}
	return out
}

// Len returns the number of retained messages.
func (l *ChatLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
