package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
)

// Scanner enumerates the spool directory and indexes regular files that were
// placed there outside the upload path. Entries it creates carry
// manual_<n>_<basename> fids and stay until a rescan finds their backing
// file gone.
type Scanner struct {
	spoolDir string
	index    *Index
	counter  atomic.Int64
	logger   *log.Logger

	// OnAvailable is invoked for each newly indexed file so the hub can
	// broadcast file_available.
	OnAvailable func(Entry)
	// OnRemoved is invoked when a rescan drops a stale manual entry.
	OnRemoved func(Entry)
}

// NewScanner creates a scanner over spoolDir feeding index.
func NewScanner(spoolDir string, index *Index, logger *log.Logger) *Scanner {
	if logger == nil {
		logger = log.Default()
	}
	return &Scanner{spoolDir: spoolDir, index: index, logger: logger}
}

// Scan walks the spool once: new regular files are indexed, manual entries
// whose file vanished are dropped. Symlinks, directories, and hidden files
// are skipped. Returns the number of entries added.
func (s *Scanner) Scan() (int, error) {
	if err := os.MkdirAll(s.spoolDir, 0o755); err != nil {
		return 0, fmt.Errorf("create spool: %w", err)
	}

	// Drop manual entries whose backing file disappeared.
	for _, e := range s.index.Entries() {
		if e.UploaderID != UploaderManual {
			continue
		}
		if _, err := os.Lstat(e.PathInSpool); err != nil {
			if s.index.Remove(e.FID) {
				s.logger.Info("manual entry dropped", "fid", e.FID, "file", e.Filename)
				if s.OnRemoved != nil {
					s.OnRemoved(e)
				}
			}
		}
	}

	dirents, err := os.ReadDir(s.spoolDir)
	if err != nil {
		return 0, fmt.Errorf("scan spool: %w", err)
	}

	added := 0
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if d.Type()&os.ModeSymlink != 0 || !d.Type().IsRegular() {
			continue
		}

		path := filepath.Join(s.spoolDir, name)
		if s.index.HasPath(path) {
			continue
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn("stat spool file", "file", name, "err", err)
			continue
		}

		fid := fmt.Sprintf("manual_%d_%s", s.counter.Add(1), name)
		entry := Entry{
			FileEntry: protocol.FileEntry{
				FID:        fid,
				Filename:   name,
				SizeBytes:  info.Size(),
				Uploader:   UploaderManual,
				UploaderID: UploaderManual,
				UploadedAt: time.Now().Format(time.RFC3339),
			},
			PathInSpool: path,
		}
		if err := s.index.Register(entry); err != nil {
			continue
		}
		added++
		s.logger.Info("spool file indexed", "fid", fid, "size", info.Size())
		if s.OnAvailable != nil {
			s.OnAvailable(entry)
		}
	}
	return added, nil
}

// Watch runs an fsnotify watcher on the spool and triggers a debounced Scan
// on create/rename events, so operator-dropped files appear without waiting
// for an explicit rescan. Blocks until ctx is done.
func (s *Scanner) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("spool watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.spoolDir); err != nil {
		return fmt.Errorf("watch spool: %w", err)
	}

	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("spool watcher error", "err", err)
		case <-fire:
			if _, err := s.Scan(); err != nil {
				s.logger.Warn("spool rescan failed", "err", err)
			}
		}
	}
}
