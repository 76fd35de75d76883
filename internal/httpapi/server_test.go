package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/config"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/hub"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/registry"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/session"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/transfer"
)

// newTestServer wires a hub (never started; handlers only touch state) and
// the API server over it.
func newTestServer(t *testing.T, seedHost bool) (*Server, *hub.Hub, *registry.Registry, string) {
	t.Helper()

	cfg := config.Default()
	cfg.BindAddress = "127.0.0.1"
	cfg.SpoolDir = t.TempDir()

	reg := registry.New(cfg.MaxParticipants, registry.DefaultPermissions(), nil)
	files := session.NewIndex()
	scanner := session.NewScanner(cfg.SpoolDir, files, nil)
	transfers := transfer.New(cfg.BindAddress, cfg.SpoolDir, cfg.MaxFileSize, files, nil)
	h := hub.New(cfg, reg, session.NewChatLog(cfg.ChatHistorySize), files, scanner, transfers, nil)
	if seedHost {
		h.SeedLocalHost("console")
	}
	return New(h, nil), h, reg, cfg.SpoolDir
}

func TestHealthEndpoint(t *testing.T) {
	s, _, reg, _ := newTestServer(t, false)
	if _, err := reg.Admit("alice", "addr"); err != nil {
		t.Fatalf("admit: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleHealth(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status field: got %q, want %q", resp.Status, "ok")
	}
	if resp.Participants != 1 {
		t.Errorf("participants: got %d, want 1", resp.Participants)
	}
}

func TestStateEndpoint(t *testing.T) {
	s, _, reg, _ := newTestServer(t, false)
	host, _ := reg.Admit("alice", "addr")
	guest, _ := reg.Admit("bob", "addr")
	reg.RequestPresenter(guest.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleState(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp StateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Participants) != 2 {
		t.Fatalf("participants: got %d, want 2", len(resp.Participants))
	}
	if resp.HostID == nil || *resp.HostID != host.ID {
		t.Errorf("host_id: got %v, want %d", resp.HostID, host.ID)
	}
	if resp.PresenterID == nil || *resp.PresenterID != guest.ID {
		t.Errorf("presenter_id: got %v, want %d", resp.PresenterID, guest.ID)
	}
}

func TestStateEndpointEmptySession(t *testing.T) {
	s, _, _, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleState(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"participants":[]`) {
		t.Errorf("empty roster must serialize as [], got %s", body)
	}
}

func TestScanEndpoint(t *testing.T) {
	s, _, _, spool := newTestServer(t, false)
	if err := os.WriteFile(filepath.Join(spool, "drop.bin"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/scan", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleScan(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var resp ScanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Added != 1 {
		t.Errorf("added: got %d, want 1", resp.Added)
	}

	// the indexed file shows up on /api/files
	freq := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	frec := httptest.NewRecorder()
	if err := s.handleFiles(s.echo.NewContext(freq, frec)); err != nil {
		t.Fatalf("files handler: %v", err)
	}
	var files FilesResponse
	if err := json.Unmarshal(frec.Body.Bytes(), &files); err != nil {
		t.Fatalf("unmarshal files: %v", err)
	}
	if len(files.Files) != 1 {
		t.Errorf("files: got %d, want 1", len(files.Files))
	}
}

func TestBroadcastEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/broadcast",
		strings.NewReader(`{"text":"welcome"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleBroadcast(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestBroadcastRejectsEmptyText(t *testing.T) {
	s, _, _, _ := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/broadcast", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	err := s.handleBroadcast(c)
	if err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestBroadcastWithoutLocalHost(t *testing.T) {
	s, _, _, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/broadcast",
		strings.NewReader(`{"text":"hello"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleBroadcast(c); err == nil {
		t.Fatal("headless server must reject console broadcast")
	}
}
