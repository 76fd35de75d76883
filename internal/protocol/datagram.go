package protocol

import "encoding/binary"

// Datagram header sizes.
const (
	VideoHeaderSize = 12 // client_id(4) + sequence(4) + frame_size(4)
	AudioHeaderSize = 8  // client_id(4) + timestamp(4)
)

// VideoHeader is the fixed prefix of one video datagram. The payload that
// follows is an opaque codec-compressed frame of FrameSize bytes.
type VideoHeader struct {
	ClientID  uint32
	Sequence  uint32
	FrameSize uint32
}

// AudioHeader is the fixed prefix of one audio datagram. The payload is an
// opaque PCM-or-compressed chunk.
type AudioHeader struct {
	ClientID  uint32
	Timestamp uint32
}

// ParseVideoHeader decodes the video header from b. ok is false when b is too
// short or the declared frame size disagrees with the datagram length.
func ParseVideoHeader(b []byte) (hdr VideoHeader, ok bool) {
	if len(b) < VideoHeaderSize {
		return hdr, false
	}
	hdr.ClientID = binary.BigEndian.Uint32(b[0:4])
	hdr.Sequence = binary.BigEndian.Uint32(b[4:8])
	hdr.FrameSize = binary.BigEndian.Uint32(b[8:12])
	if int(hdr.FrameSize) != len(b)-VideoHeaderSize {
		return hdr, false
	}
	return hdr, true
}

// ParseAudioHeader decodes the audio header from b.
func ParseAudioHeader(b []byte) (hdr AudioHeader, ok bool) {
	if len(b) < AudioHeaderSize {
		return hdr, false
	}
	hdr.ClientID = binary.BigEndian.Uint32(b[0:4])
	hdr.Timestamp = binary.BigEndian.Uint32(b[4:8])
	return hdr, true
}

// PutVideoHeader writes hdr into b, which must be at least VideoHeaderSize.
func PutVideoHeader(b []byte, hdr VideoHeader) {
	binary.BigEndian.PutUint32(b[0:4], hdr.ClientID)
	binary.BigEndian.PutUint32(b[4:8], hdr.Sequence)
	binary.BigEndian.PutUint32(b[8:12], hdr.FrameSize)
}

// PutAudioHeader writes hdr into b, which must be at least AudioHeaderSize.
func PutAudioHeader(b []byte, hdr AudioHeader) {
	binary.BigEndian.PutUint32(b[0:4], hdr.ClientID)
	binary.BigEndian.PutUint32(b[4:8], hdr.Timestamp)
}

// StampSender overwrites the client_id field of a datagram with the
// authenticated sender id so a client cannot spoof another participant.
// The header layout places client_id first for both video and audio.
func StampSender(b []byte, id uint32) {
	if len(b) >= 4 {
		binary.BigEndian.PutUint32(b[0:4], id)
	}
}
