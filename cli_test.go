package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
)

func TestRunCLIDispatch(t *testing.T) {
	if RunCLI(nil, "") {
		t.Error("no args must not be handled")
	}
	if RunCLI([]string{"unknown"}, "") {
		t.Error("unknown subcommand must not be handled")
	}
	if !RunCLI([]string{"version"}, "") {
		t.Error("version must be handled")
	}
}

func TestRunStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","participants":2}`))
	})
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"participants":[
			{"id":1,"name":"alice","is_host":true,"audio_on":true},
			{"id":2,"name":"bob","is_presenter":true}
		],"host_id":1,"presenter_id":2}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var out bytes.Buffer
	addr := strings.TrimPrefix(srv.URL, "http://")
	if err := runStatus(&out, addr); err != nil {
		t.Fatalf("runStatus: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "2 participants") {
		t.Errorf("missing participant count: %s", text)
	}
	if !strings.Contains(text, "alice") || !strings.Contains(text, "[host,audio]") {
		t.Errorf("missing host line: %s", text)
	}
	if !strings.Contains(text, "bob") || !strings.Contains(text, "[presenter]") {
		t.Errorf("missing presenter line: %s", text)
	}
}

func TestRunStatusUnreachable(t *testing.T) {
	var out bytes.Buffer
	if err := runStatus(&out, "127.0.0.1:1"); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

func TestRenderHostEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)

	renderHostEvent(protocol.Message{
		Type:       protocol.TypeChat,
		SenderName: "alice",
		Text:       "hi there",
	}, logger)
	if !strings.Contains(buf.String(), "hi there") {
		t.Errorf("chat text not rendered: %s", buf.String())
	}

	buf.Reset()
	renderHostEvent(protocol.Message{
		Type: protocol.TypeUserLeft,
		ID:   protocol.IntPtr(4),
		Name: "bob",
	}, logger)
	if !strings.Contains(buf.String(), "bob") {
		t.Errorf("departure not rendered: %s", buf.String())
	}

	// unknown event types must not panic
	renderHostEvent(protocol.Message{Type: "mystery"}, logger)
}
