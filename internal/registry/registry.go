package registry

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
)

// Role of a participant. At most one participant is the host at any time.
type Role int

const (
	RoleGuest Role = iota
	RoleHost
)

// MediaKind selects the video or audio datagram endpoint.
type MediaKind int

const (
	KindVideo MediaKind = iota
	KindAudio
)

// Errors surfaced to dispatch and turned into typed wire records there.
var (
	ErrSessionFull  = errors.New("session full")
	ErrNotFound     = errors.New("participant not found")
	ErrUnknownField = errors.New("unknown permission field")
)

// MediaState mirrors the client's capture state as last reported or forced.
type MediaState struct {
	VideoOn       bool
	AudioOn       bool
	ScreenSharing bool
	IsPresenter   bool
}

// Participant is a value snapshot of one admitted participant. Mutation goes
// through Registry methods only.
type Participant struct {
	ID          int
	Name        string
	Role        Role
	Local       bool // seeded host console participant, no socket
	ControlAddr string
	VideoAddr   *net.UDPAddr
	AudioAddr   *net.UDPAddr
	Media       MediaState
	Perms       protocol.Permissions
	JoinedAt    time.Time
}

// IsHost reports whether the participant holds the host role.
func (p Participant) IsHost() bool { return p.Role == RoleHost }

// Info converts the snapshot into its roster wire form.
func (p Participant) Info() protocol.ParticipantInfo {
	return protocol.ParticipantInfo{
		ID:            p.ID,
		Name:          p.Name,
		IsHost:        p.Role == RoleHost,
		VideoOn:       p.Media.VideoOn,
		AudioOn:       p.Media.AudioOn,
		ScreenSharing: p.Media.ScreenSharing,
		IsPresenter:   p.Media.IsPresenter,
		Permissions:   p.Perms,
	}
}

type participantState struct {
	id          int
	name        string
	role        Role
	local       bool
	controlAddr string
	videoAddr   *net.UDPAddr
	audioAddr   *net.UDPAddr
	media       MediaState
	perms       protocol.Permissions
	joinedAt    time.Time

	lastHeartbeat time.Time
	softWarned    bool
}

// Registry is the authoritative participant table. All mutations are
// serialized on its mutex; readers get value snapshots, so a consistent view
// never outlives the lock.
type Registry struct {
	mu           sync.RWMutex
	participants map[int]*participantState
	nextID       int
	maxSize      int
	defaultPerms protocol.Permissions

	presenter      *int
	presenterSince time.Time

	logger *log.Logger
}

// New creates an empty registry. maxSize bounds Admit; defaultPerms is the
// permission template applied at admit time.
func New(maxSize int, defaultPerms protocol.Permissions, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		participants: make(map[int]*participantState),
		nextID:       1,
		maxSize:      maxSize,
		defaultPerms: defaultPerms,
		logger:       logger,
	}
}

// DefaultPermissions is the permissive template applied unless the host
// configures otherwise.
func DefaultPermissions() protocol.Permissions {
	return protocol.Permissions{
		MayVideo:       true,
		MayAudio:       true,
		MayScreenShare: true,
		MayChat:        true,
		MayUpload:      true,
		MayDownload:    true,
	}
}

// SeedHost installs the local host participant with the reserved id 0. It is
// called once at startup, before any Admit.
func (r *Registry) SeedHost(name string) Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &participantState{
		id:            0,
		name:          name,
		role:          RoleHost,
		local:         true,
		perms:         DefaultPermissions(),
		joinedAt:      time.Now(),
		lastHeartbeat: time.Now(),
	}
	r.participants[0] = p
	r.logger.Info("host seeded", "id", 0, "name", name)
	return snapshot(p)
}

// Admit validates the display name, assigns a monotonic id, and installs the
// participant. Duplicate names are allowed; ids disambiguate. If no host
// exists the new participant is promoted immediately.
func (r *Registry) Admit(name, controlAddr string) (Participant, error) {
	name, err := protocol.ValidateName(name)
	if err != nil {
		return Participant{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.participants) >= r.maxSize {
		return Participant{}, ErrSessionFull
	}

	id := r.nextID
	r.nextID++

	role := RoleGuest
	if !r.hasHostLocked() {
		role = RoleHost
	}

	p := &participantState{
		id:            id,
		name:          name,
		role:          role,
		controlAddr:   controlAddr,
		perms:         r.defaultPerms,
		joinedAt:      time.Now(),
		lastHeartbeat: time.Now(),
	}
	r.participants[id] = p

	r.logger.Info("participant admitted",
		"id", id, "name", name, "addr", controlAddr,
		"host", role == RoleHost, "total", len(r.participants))
	return snapshot(p), nil
}

// Remove deletes the participant and, when it held the host role, promotes
// the oldest remaining participant in the same critical section so no window
// exists without an advertised host. It also clears the presenter slot if the
// removed participant held it.
//
// Returns the removed snapshot, the promoted host (nil when the host did not
// change), and whether the presenter slot was cleared.
func (r *Registry) Remove(id int, reason string) (removed Participant, promoted *Participant, presenterCleared bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.participants[id]
	if !exists {
		return Participant{}, nil, false, false
	}
	delete(r.participants, id)

	if r.presenter != nil && *r.presenter == id {
		r.presenter = nil
		presenterCleared = true
	}

	if p.role == RoleHost {
		if next := r.oldestLocked(); next != nil {
			next.role = RoleHost
			s := snapshot(next)
			promoted = &s
		}
	}

	r.logger.Info("participant removed",
		"id", id, "name", p.name, "reason", reason,
		"promoted", promoted != nil, "remaining", len(r.participants))
	return snapshot(p), promoted, presenterCleared, true
}

// Lookup returns a snapshot of one participant.
func (r *Registry) Lookup(id int) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[id]
	if !ok {
		return Participant{}, false
	}
	return snapshot(p), true
}

// Snapshot returns a stable id-ordered snapshot of all participants.
func (r *Registry) Snapshot() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, snapshot(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of live participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// HostID returns the current host id, or false if the session has no host.
func (r *Registry) HostID() (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, p := range r.participants {
		if p.role == RoleHost {
			return id, true
		}
	}
	return 0, false
}

// SetMediaState applies a client-reported or host-forced media state delta.
// Nil fields are left unchanged. Returns the updated snapshot.
func (r *Registry) SetMediaState(id int, videoOn, audioOn, screenSharing *bool) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return Participant{}, ErrNotFound
	}
	if videoOn != nil {
		p.media.VideoOn = *videoOn
	}
	if audioOn != nil {
		p.media.AudioOn = *audioOn
	}
	if screenSharing != nil {
		p.media.ScreenSharing = *screenSharing
	}
	return snapshot(p), nil
}

// SetPermission updates one permission field. changed is false when the value
// was already set, so idempotent updates produce no broadcast.
func (r *Registry) SetPermission(id int, field string, value bool) (p Participant, changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.participants[id]
	if !ok {
		return Participant{}, false, ErrNotFound
	}

	var slot *bool
	switch field {
	case protocol.PermVideo:
		slot = &st.perms.MayVideo
	case protocol.PermAudio:
		slot = &st.perms.MayAudio
	case protocol.PermScreenShare:
		slot = &st.perms.MayScreenShare
	case protocol.PermChat:
		slot = &st.perms.MayChat
	case protocol.PermUpload:
		slot = &st.perms.MayUpload
	case protocol.PermDownload:
		slot = &st.perms.MayDownload
	default:
		return Participant{}, false, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	if *slot == value {
		return snapshot(st), false, nil
	}
	*slot = value
	r.logger.Info("permission updated", "id", id, "field", field, "value", value)
	return snapshot(st), true, nil
}

// LearnMediaAddr records the datagram source endpoint for a participant. The
// first valid datagram sets it; a later datagram from a new endpoint rebinds
// it. Returns true when the stored endpoint changed.
func (r *Registry) LearnMediaAddr(id int, kind MediaKind, addr *net.UDPAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return false
	}

	var slot **net.UDPAddr
	switch kind {
	case KindVideo:
		slot = &p.videoAddr
	default:
		slot = &p.audioAddr
	}

	if *slot != nil && udpAddrEqual(*slot, addr) {
		return false
	}
	*slot = addr
	r.logger.Debug("media endpoint learned", "id", id, "kind", int(kind), "addr", addr.String())
	return true
}

// Heartbeat refreshes the liveness timestamp. Only explicit heartbeat
// messages call this; other traffic does not count as liveness.
func (r *Registry) Heartbeat(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return false
	}
	p.lastHeartbeat = time.Now()
	p.softWarned = false
	return true
}

// StaleEntry describes one participant past a liveness threshold.
type StaleEntry struct {
	ID    int
	Name  string
	Since time.Duration
	Hard  bool
}

// Stale returns participants past the soft threshold, marking those past the
// hard threshold for eviction. Soft offenders are reported only once per
// silence period. Local participants are never stale.
func (r *Registry) Stale(soft, hard time.Duration) []StaleEntry {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []StaleEntry
	for _, p := range r.participants {
		if p.local {
			continue
		}
		silent := now.Sub(p.lastHeartbeat)
		switch {
		case silent >= hard:
			out = append(out, StaleEntry{ID: p.id, Name: p.name, Since: silent, Hard: true})
		case silent >= soft && !p.softWarned:
			p.softWarned = true
			out = append(out, StaleEntry{ID: p.id, Name: p.name, Since: silent})
		}
	}
	return out
}

func (r *Registry) hasHostLocked() bool {
	for _, p := range r.participants {
		if p.role == RoleHost {
			return true
		}
	}
	return false
}

// oldestLocked picks the promotion candidate: earliest join, ties broken by
// lowest id.
func (r *Registry) oldestLocked() *participantState {
	var best *participantState
	for _, p := range r.participants {
		if best == nil ||
			p.joinedAt.Before(best.joinedAt) ||
			(p.joinedAt.Equal(best.joinedAt) && p.id < best.id) {
			best = p
		}
	}
	return best
}

func snapshot(p *participantState) Participant {
	return Participant{
		ID:          p.id,
		Name:        p.name,
		Role:        p.role,
		Local:       p.local,
		ControlAddr: p.controlAddr,
		VideoAddr:   p.videoAddr,
		AudioAddr:   p.audioAddr,
		Media:       p.media,
		Perms:       p.perms,
		JoinedAt:    p.joinedAt,
	}
}

func udpAddrEqual(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}
