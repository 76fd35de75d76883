package media

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/registry"
)

func startTestRelay(t *testing.T, reg *registry.Registry) *Relay {
	t.Helper()
	r := New(reg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := r.Run(ctx, "127.0.0.1:0", "127.0.0.1:0"); err != nil && ctx.Err() == nil {
			t.Errorf("relay run: %v", err)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for r.VideoLocalAddr() == nil || r.AudioLocalAddr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("relay did not bind in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return r
}

// udpPeer is one participant's datagram socket.
type udpPeer struct {
	t    *testing.T
	conn *net.UDPConn
}

func newUDPPeer(t *testing.T) *udpPeer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("bind peer socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &udpPeer{t: t, conn: conn}
}

func (p *udpPeer) sendAudio(to net.Addr, clientID uint32, payload []byte) {
	p.t.Helper()
	pkt := make([]byte, protocol.AudioHeaderSize+len(payload))
	protocol.PutAudioHeader(pkt, protocol.AudioHeader{ClientID: clientID, Timestamp: 1})
	copy(pkt[protocol.AudioHeaderSize:], payload)
	if _, err := p.conn.WriteTo(pkt, to); err != nil {
		p.t.Fatalf("send datagram: %v", err)
	}
}

func (p *udpPeer) recv(timeout time.Duration) ([]byte, bool) {
	p.t.Helper()
	_ = p.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, protocol.MaxDatagramSize)
	n, _, err := p.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

func admitSpeaker(t *testing.T, reg *registry.Registry, name string) registry.Participant {
	t.Helper()
	p, err := reg.Admit(name, "addr")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	on := true
	if _, err := reg.SetMediaState(p.ID, nil, &on, nil); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	return p
}

func TestAudioFanOutExcludesSender(t *testing.T) {
	reg := registry.New(10, registry.DefaultPermissions(), nil)
	relay := startTestRelay(t, reg)
	addr := relay.AudioLocalAddr()

	alice := admitSpeaker(t, reg, "alice")
	bob := admitSpeaker(t, reg, "bob")

	alicePeer := newUDPPeer(t)
	bobPeer := newUDPPeer(t)

	// Both endpoints become known through their first datagram.
	bobPeer.sendAudio(addr, uint32(bob.ID), []byte("warmup"))
	alicePeer.sendAudio(addr, uint32(alice.ID), []byte("warmup"))
	time.Sleep(50 * time.Millisecond)

	alicePeer.sendAudio(addr, uint32(alice.ID), []byte("voice"))

	// Alice's warmup datagram may also have reached bob; skip to "voice".
	var pkt []byte
	for {
		got, ok := bobPeer.recv(2 * time.Second)
		if !ok {
			t.Fatal("bob never received the relayed datagram")
		}
		if string(got[protocol.AudioHeaderSize:]) == "voice" {
			pkt = got
			break
		}
	}
	hdr, headerOK := protocol.ParseAudioHeader(pkt)
	if !headerOK {
		t.Fatal("relayed datagram has no valid header")
	}
	if int(hdr.ClientID) != alice.ID {
		t.Errorf("sender id: got %d, want %d", hdr.ClientID, alice.ID)
	}
	if string(pkt[protocol.AudioHeaderSize:]) != "voice" {
		t.Errorf("payload: got %q", pkt[protocol.AudioHeaderSize:])
	}

	// Drain anything pending at alice, then confirm no echo of her own voice.
	for {
		echoed, got := alicePeer.recv(200 * time.Millisecond)
		if !got {
			break
		}
		if string(echoed[protocol.AudioHeaderSize:]) == "voice" {
			t.Fatal("sender received its own datagram")
		}
	}
}

func TestMutedSenderDropped(t *testing.T) {
	reg := registry.New(10, registry.DefaultPermissions(), nil)
	relay := startTestRelay(t, reg)
	addr := relay.AudioLocalAddr()

	muted, err := reg.Admit("muted", "addr")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	listener := admitSpeaker(t, reg, "listener")

	mutedPeer := newUDPPeer(t)
	listenerPeer := newUDPPeer(t)
	listenerPeer.sendAudio(addr, uint32(listener.ID), []byte("warmup"))
	time.Sleep(50 * time.Millisecond)

	// muted never reported audio on, so the gate drops the datagram
	mutedPeer.sendAudio(addr, uint32(muted.ID), []byte("should not pass"))

	if pkt, got := listenerPeer.recv(300 * time.Millisecond); got {
		t.Fatalf("datagram from muted sender relayed: %q", pkt)
	}
}

func TestForceMuteTakesEffectOnRelay(t *testing.T) {
	reg := registry.New(10, registry.DefaultPermissions(), nil)
	relay := startTestRelay(t, reg)
	addr := relay.AudioLocalAddr()

	speaker := admitSpeaker(t, reg, "speaker")
	listener := admitSpeaker(t, reg, "listener")

	speakerPeer := newUDPPeer(t)
	listenerPeer := newUDPPeer(t)
	listenerPeer.sendAudio(addr, uint32(listener.ID), []byte("warmup"))
	speakerPeer.sendAudio(addr, uint32(speaker.ID), []byte("before"))

	if _, ok := listenerPeer.recv(2 * time.Second); !ok {
		t.Fatal("baseline relay failed")
	}

	off := false
	if _, err := reg.SetMediaState(speaker.ID, nil, &off, nil); err != nil {
		t.Fatalf("force mute: %v", err)
	}

	speakerPeer.sendAudio(addr, uint32(speaker.ID), []byte("after"))
	if pkt, got := listenerPeer.recv(300 * time.Millisecond); got {
		t.Fatalf("datagram relayed after mute: %q", pkt[protocol.AudioHeaderSize:])
	}
}

func TestUnknownSenderDropped(t *testing.T) {
	reg := registry.New(10, registry.DefaultPermissions(), nil)
	relay := startTestRelay(t, reg)
	addr := relay.AudioLocalAddr()

	listener := admitSpeaker(t, reg, "listener")
	listenerPeer := newUDPPeer(t)
	listenerPeer.sendAudio(addr, uint32(listener.ID), []byte("warmup"))
	time.Sleep(50 * time.Millisecond)

	stranger := newUDPPeer(t)
	stranger.sendAudio(addr, 999, []byte("spoof"))

	if pkt, got := listenerPeer.recv(300 * time.Millisecond); got {
		t.Fatalf("datagram from unknown id relayed: %q", pkt)
	}
}

func TestMalformedVideoDatagramDropped(t *testing.T) {
	reg := registry.New(10, registry.DefaultPermissions(), nil)
	relay := startTestRelay(t, reg)

	sender := newUDPPeer(t)
	// size field disagrees with the datagram length
	pkt := make([]byte, protocol.VideoHeaderSize+5)
	protocol.PutVideoHeader(pkt, protocol.VideoHeader{ClientID: 1, Sequence: 1, FrameSize: 100})
	if _, err := sender.conn.WriteTo(pkt, relay.VideoLocalAddr()); err != nil {
		t.Fatalf("send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, _, _, dropped, _ := relay.Stats()
		if dropped > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("malformed datagram not counted as dropped")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
