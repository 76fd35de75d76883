package protocol

import "time"

// Wire-protocol limits. Named constants for values that would otherwise be
// scattered across the transport and dispatch code.
const (
	// MaxNameLength is the max UTF-8 bytes for a display name.
	MaxNameLength = 50

	// MaxChatLength is the max bytes for a single chat message body.
	MaxChatLength = 4 * 1024

	// MaxFrameSize is the defensive bound on one control-channel payload.
	// A declared length above this closes the connection.
	MaxFrameSize = 1 << 20

	// MaxDatagramSize bounds one A/V datagram including its header.
	MaxDatagramSize = 9000

	// ReadTimeout is how long a declared frame length may take to complete
	// before the connection is treated as dead.
	ReadTimeout = 10 * time.Second

	// WriteTimeout is the hard bound on one control-channel write; breaching
	// it evicts the recipient.
	WriteTimeout = 15 * time.Second
)
