package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
)

// UploaderManual marks index entries created by the spool scanner rather
// than an upload.
const UploaderManual = "manual"

var (
	// ErrFIDTaken rejects offers reusing a known or in-flight fid.
	ErrFIDTaken = errors.New("fid already in use")
	// ErrFileNotFound rejects downloads of unknown fids.
	ErrFileNotFound = errors.New("file not found")
	// ErrBadFilename rejects names that would escape the spool.
	ErrBadFilename = errors.New("invalid filename")
)

// Entry is one shared file: wire metadata plus its spool location.
type Entry struct {
	protocol.FileEntry
	PathInSpool string
}

// Index is the shared-file registry keyed by fid. Uploads reserve a fid
// before bytes move so concurrent offers cannot collide, and register the
// entry only on completion.
type Index struct {
	mu       sync.Mutex
	entries  map[string]Entry
	pending  map[string]struct{}
	byPath   map[string]string // spool path → fid
}

// NewIndex creates an empty shared-file index.
func NewIndex() *Index {
	return &Index{
		entries: make(map[string]Entry),
		pending: make(map[string]struct{}),
		byPath:  make(map[string]string),
	}
}

// Reserve claims a fid for an in-flight upload.
func (x *Index) Reserve(fid string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.entries[fid]; ok {
		return ErrFIDTaken
	}
	if _, ok := x.pending[fid]; ok {
		return ErrFIDTaken
	}
	x.pending[fid] = struct{}{}
	return nil
}

// Release abandons a reservation after a failed upload.
func (x *Index) Release(fid string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.pending, fid)
}

// Register installs a completed entry, consuming any reservation.
func (x *Index) Register(e Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.entries[e.FID]; ok {
		return ErrFIDTaken
	}
	delete(x.pending, e.FID)
	x.entries[e.FID] = e
	x.byPath[e.PathInSpool] = e.FID
	return nil
}

// Get looks up one entry by fid.
func (x *Index) Get(fid string) (Entry, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.entries[fid]
	return e, ok
}

// HasPath reports whether a spool path is already indexed.
func (x *Index) HasPath(path string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.byPath[path]
	return ok
}

// Remove drops one entry, typically during an administrative refresh of
// manual entries whose backing file disappeared.
func (x *Index) Remove(fid string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	e, ok := x.entries[fid]
	if !ok {
		return false
	}
	delete(x.entries, fid)
	delete(x.byPath, e.PathInSpool)
	return true
}

// Snapshot returns the wire form of the index, keyed by fid.
func (x *Index) Snapshot() map[string]protocol.FileEntry {
	x.mu.Lock()
	defer x.mu.Unlock()

	out := make(map[string]protocol.FileEntry, len(x.entries))
	for fid, e := range x.entries {
		out[fid] = e.FileEntry
	}
	return out
}

// Entries returns all entries for iteration (scanner refresh).
func (x *Index) Entries() []Entry {
	x.mu.Lock()
	defer x.mu.Unlock()

	out := make([]Entry, 0, len(x.entries))
	for _, e := range x.entries {
		out = append(out, e)
	}
	return out
}

// SanitizeFilename reduces name to a safe basename inside the spool: no path
// separators, no parent references, no hidden files, nothing empty.
func SanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrBadFilename)
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q contains path elements", ErrBadFilename, name)
	}
	base := filepath.Base(name)
	if base != name || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: %q", ErrBadFilename, name)
	}
	return base, nil
}
