package transfer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/session"
)

const (
	// acceptTimeout bounds how long an ephemeral listener waits for the
	// peer's first connect.
	acceptTimeout = 30 * time.Second

	// idleTimeout bounds inactivity during a running transfer.
	idleTimeout = 30 * time.Second

	// chunkSize is the streaming granularity to and from the spool.
	chunkSize = 32 * 1024
)

// Mediator runs file transfers over ephemeral per-transfer listeners so file
// bytes never share a connection with the control channel. Uploads stream to
// a temp file and are registered atomically on completion; downloads open
// the file per transfer, so concurrent downloads of one fid are independent.
type Mediator struct {
	bindIP      string
	spoolDir    string
	maxFileSize int64
	index       *session.Index
	logger      *log.Logger

	// OnAvailable fires after a completed upload is registered.
	OnAvailable func(session.Entry)
	// OnFailure fires when an accepted upload dies; the partial file is
	// already deleted.
	OnFailure func(uploaderID int, fid, reason string)

	mu        sync.Mutex
	listeners map[string]net.Listener // transfer id → open ephemeral listener
	closed    bool
	wg        sync.WaitGroup
}

// New creates a mediator streaming into spoolDir, binding ephemeral
// listeners on bindIP.
func New(bindIP, spoolDir string, maxFileSize int64, index *session.Index, logger *log.Logger) *Mediator {
	if logger == nil {
		logger = log.Default()
	}
	return &Mediator{
		bindIP:      bindIP,
		spoolDir:    spoolDir,
		maxFileSize: maxFileSize,
		index:       index,
		listeners:   make(map[string]net.Listener),
		logger:      logger,
	}
}

// StartUpload reserves fid, binds an ephemeral listener, and returns its
// port. The transfer itself runs in the background; completion registers the
// entry and fires OnAvailable, failure deletes the partial file and fires
// OnFailure. filename must already be sanitized.
func (m *Mediator) StartUpload(fid, filename string, size int64, uploaderID int, uploaderName string) (int, error) {
	if size > m.maxFileSize {
		return 0, fmt.Errorf("file exceeds %d bytes", m.maxFileSize)
	}
	if err := m.index.Reserve(fid); err != nil {
		return 0, err
	}

	ln, tid, err := m.listen()
	if err != nil {
		m.index.Release(fid)
		return 0, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.dropListener(tid)
		m.serveUpload(ln, fid, filename, size, uploaderID, uploaderName)
	}()

	return ln.Addr().(*net.TCPAddr).Port, nil
}

// StartDownload binds an ephemeral listener streaming the file for fid and
// returns the port and size.
func (m *Mediator) StartDownload(fid string) (int, int64, error) {
	entry, ok := m.index.Get(fid)
	if !ok {
		return 0, 0, session.ErrFileNotFound
	}

	ln, tid, err := m.listen()
	if err != nil {
		return 0, 0, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.dropListener(tid)
		m.serveDownload(ln, entry)
	}()

	return ln.Addr().(*net.TCPAddr).Port, entry.SizeBytes, nil
}

// Close shuts every open ephemeral listener and waits for active transfers
// to finish their teardown.
func (m *Mediator) Close() {
	m.mu.Lock()
	m.closed = true
	for _, ln := range m.listeners {
		_ = ln.Close()
	}
	m.listeners = make(map[string]net.Listener)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Mediator) listen() (net.Listener, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, "", fmt.Errorf("mediator is closed")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(m.bindIP, "0"))
	if err != nil {
		return nil, "", fmt.Errorf("bind ephemeral port: %w", err)
	}
	tid := uuid.NewString()
	m.listeners[tid] = ln
	return ln, tid, nil
}

func (m *Mediator) dropListener(tid string) {
	m.mu.Lock()
	if ln, ok := m.listeners[tid]; ok {
		_ = ln.Close()
		delete(m.listeners, tid)
	}
	m.mu.Unlock()
}

func (m *Mediator) serveUpload(ln net.Listener, fid, filename string, size int64, uploaderID int, uploaderName string) {
	fail := func(reason string, err error) {
		m.index.Release(fid)
		if err != nil {
			m.logger.Warn("upload failed", "fid", fid, "reason", reason, "err", err)
		} else {
			m.logger.Warn("upload failed", "fid", fid, "reason", reason)
		}
		if m.OnFailure != nil {
			m.OnFailure(uploaderID, fid, reason)
		}
	}

	conn, err := acceptOne(ln)
	if err != nil {
		fail("uploader never connected", err)
		return
	}
	defer conn.Close()

	if err := os.MkdirAll(m.spoolDir, 0o755); err != nil {
		fail("spool unavailable", err)
		return
	}
	tmp, err := os.CreateTemp(m.spoolDir, ".upload-*")
	if err != nil {
		fail("spool unavailable", err)
		return
	}
	tmpPath := tmp.Name()

	received, copyErr := copyWithIdleDeadline(tmp, conn, size)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil || received != size {
		_ = os.Remove(tmpPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		fail(fmt.Sprintf("short upload: %d of %d bytes", received, size), copyErr)
		return
	}

	finalPath := filepath.Join(m.spoolDir, diskName(fid, filename))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		fail("spool write failed", err)
		return
	}

	entry := session.Entry{
		FileEntry: protocol.FileEntry{
			FID:        fid,
			Filename:   filename,
			SizeBytes:  size,
			Uploader:   uploaderName,
			UploaderID: strconv.Itoa(uploaderID),
			UploadedAt: protocol.Now(),
		},
		PathInSpool: finalPath,
	}
	if err := m.index.Register(entry); err != nil {
		_ = os.Remove(finalPath)
		fail("fid already in use", err)
		return
	}

	m.logger.Info("upload complete",
		"fid", fid, "file", filename, "size", humanize.Bytes(uint64(size)), "from", uploaderName)
	if m.OnAvailable != nil {
		m.OnAvailable(entry)
	}
}

func (m *Mediator) serveDownload(ln net.Listener, entry session.Entry) {
	conn, err := acceptOne(ln)
	if err != nil {
		m.logger.Warn("download never connected", "fid", entry.FID, "err", err)
		return
	}
	defer conn.Close()

	f, err := os.Open(entry.PathInSpool)
	if err != nil {
		m.logger.Warn("download open failed", "fid", entry.FID, "err", err)
		return
	}
	defer f.Close()

	sent, err := sendWithIdleDeadline(conn, f, entry.SizeBytes)
	if err != nil || sent != entry.SizeBytes {
		m.logger.Warn("download aborted",
			"fid", entry.FID, "sent", sent, "size", entry.SizeBytes, "err", err)
		return
	}
	m.logger.Info("download complete",
		"fid", entry.FID, "file", entry.Filename, "size", humanize.Bytes(uint64(entry.SizeBytes)))
}

// acceptOne waits for exactly one connection within the accept timeout, then
// closes the listener so the port is released immediately.
func acceptOne(ln net.Listener) (net.Conn, error) {
	if tl, ok := ln.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(acceptTimeout))
	}
	conn, err := ln.Accept()
	_ = ln.Close()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// copyWithIdleDeadline reads exactly size bytes from conn into w in
// chunkSize pieces, refreshing the read deadline before each chunk so a
// stalled peer trips the inactivity timeout rather than hanging forever.
func copyWithIdleDeadline(w io.Writer, conn net.Conn, size int64) (int64, error) {
	var total int64
	for total < size {
		n := size - total
		if n > chunkSize {
			n = chunkSize
		}
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		copied, err := io.CopyN(w, conn, n)
		total += copied
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// sendWithIdleDeadline streams exactly size bytes from f to conn. io.CopyN
// from an *os.File to a TCP connection uses the kernel's zero-copy path per
// chunk; the per-chunk write deadline keeps the inactivity bound.
func sendWithIdleDeadline(conn net.Conn, f *os.File, size int64) (int64, error) {
	var total int64
	for total < size {
		n := size - total
		if n > chunkSize {
			n = chunkSize
		}
		_ = conn.SetWriteDeadline(time.Now().Add(idleTimeout))
		copied, err := io.CopyN(conn, f, n)
		total += copied
		if err != nil {
			if errors.Is(err, io.EOF) && total == size {
				break
			}
			return total, err
		}
	}
	return total, nil
}

// diskName namespaces the spool file by fid so two uploads of the same
// filename never collide. The fid is reduced to filesystem-safe runes.
func diskName(fid, filename string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, fid)
	return safe + "_" + filename
}
