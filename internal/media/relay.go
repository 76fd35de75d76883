package media

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/registry"
)

// Relay fans UDP audio and video datagrams out to every other participant.
// It is stateless beyond counters: endpoint learning, permissions, and media
// toggles all live in the registry, so a force-mute on the control channel
// takes effect on the very next datagram.
type Relay struct {
	reg    *registry.Registry
	logger *log.Logger

	videoConn *net.UDPConn
	audioConn *net.UDPConn

	statVideoIn  atomic.Uint64
	statAudioIn  atomic.Uint64
	statFanOut   atomic.Uint64
	statDropped  atomic.Uint64
	statSendErrs atomic.Uint64
}

// New creates a relay over the given registry.
func New(reg *registry.Registry, logger *log.Logger) *Relay {
	if logger == nil {
		logger = log.Default()
	}
	return &Relay{reg: reg, logger: logger}
}

// Run binds both datagram sockets and serves until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, videoAddr, audioAddr string) error {
	var err error
	if r.videoConn, err = bindUDP(videoAddr); err != nil {
		return fmt.Errorf("bind video socket: %w", err)
	}
	if r.audioConn, err = bindUDP(audioAddr); err != nil {
		_ = r.videoConn.Close()
		return fmt.Errorf("bind audio socket: %w", err)
	}
	r.logger.Info("media relay up", "video", videoAddr, "audio", audioAddr)

	go func() {
		<-ctx.Done()
		_ = r.videoConn.Close()
		_ = r.audioConn.Close()
	}()

	errc := make(chan error, 2)
	go func() { errc <- r.serveVideo() }()
	go func() { errc <- r.serveAudio() }()

	err = <-errc
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// VideoLocalAddr returns the bound video socket address once Run is up.
func (r *Relay) VideoLocalAddr() net.Addr {
	if r.videoConn == nil {
		return nil
	}
	return r.videoConn.LocalAddr()
}

// AudioLocalAddr returns the bound audio socket address once Run is up.
func (r *Relay) AudioLocalAddr() net.Addr {
	if r.audioConn == nil {
		return nil
	}
	return r.audioConn.LocalAddr()
}

// Stats returns and resets the interval counters.
func (r *Relay) Stats() (videoIn, audioIn, fanOut, dropped, sendErrs uint64) {
	return r.statVideoIn.Swap(0), r.statAudioIn.Swap(0),
		r.statFanOut.Swap(0), r.statDropped.Swap(0), r.statSendErrs.Swap(0)
}

func (r *Relay) serveVideo() error {
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, src, err := r.videoConn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		r.statVideoIn.Add(1)

		hdr, ok := protocol.ParseVideoHeader(buf[:n])
		if !ok {
			r.statDropped.Add(1)
			continue
		}
		r.forward(registry.KindVideo, int(hdr.ClientID), src, buf[:n])
	}
}

func (r *Relay) serveAudio() error {
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, src, err := r.audioConn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		r.statAudioIn.Add(1)

		hdr, ok := protocol.ParseAudioHeader(buf[:n])
		if !ok {
			r.statDropped.Add(1)
			continue
		}
		r.forward(registry.KindAudio, int(hdr.ClientID), src, buf[:n])
	}
}

// forward validates the sender, learns its datagram endpoint, rewrites the
// sender id from the server's view of the source (the header claim is not
// trusted), and fans out to every other participant with a known endpoint.
func (r *Relay) forward(kind registry.MediaKind, claimedID int, src *net.UDPAddr, pkt []byte) {
	sender, ok := r.reg.Lookup(claimedID)
	if !ok {
		r.statDropped.Add(1)
		return
	}
	if !r.admit(kind, sender) {
		r.statDropped.Add(1)
		return
	}
	r.reg.LearnMediaAddr(sender.ID, kind, src)

	protocol.StampSender(pkt, uint32(sender.ID))

	conn := r.videoConn
	if kind == registry.KindAudio {
		conn = r.audioConn
	}
	for _, p := range r.reg.Snapshot() {
		if p.ID == sender.ID {
			continue
		}
		dst := p.VideoAddr
		if kind == registry.KindAudio {
			dst = p.AudioAddr
		}
		if dst == nil {
			continue
		}
		if _, err := conn.WriteToUDP(pkt, dst); err != nil {
			r.statSendErrs.Add(1)
			continue
		}
		r.statFanOut.Add(1)
	}
}

// admit applies both gates: the host-granted capability and the
// participant's own reported toggle. A muted or forbidden stream is dropped
// at the relay, not merely hidden by clients.
func (r *Relay) admit(kind registry.MediaKind, p registry.Participant) bool {
	switch kind {
	case registry.KindVideo:
		return p.Perms.MayVideo && p.Media.VideoOn
	case registry.KindAudio:
		return p.Perms.MayAudio && p.Media.AudioOn
	}
	return false
}

func bindUDP(addr string) (*net.UDPConn, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", ua)
}
