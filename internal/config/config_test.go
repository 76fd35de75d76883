package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8888", cfg.ControlAddr())
	assert.Equal(t, "0.0.0.0:8889", cfg.VideoAddr())
	assert.Equal(t, "0.0.0.0:8890", cfg.AudioAddr())
	assert.Equal(t, "0.0.0.0:8891", cfg.APIAddr())
	assert.Equal(t, 20*time.Second, cfg.HeartbeatSoft())
	assert.Equal(t, 30*time.Second, cfg.HeartbeatHard())
	assert.Equal(t, "host", cfg.HostName)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.yaml")
	body := "control_port: 9000\nhost_name: \"\"\nmax_participants: 8\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.ControlPort)
	assert.Equal(t, "", cfg.HostName)
	assert.Equal(t, 8, cfg.MaxParticipants)
	// untouched keys keep their defaults
	assert.Equal(t, 8889, cfg.VideoPort)
	assert.Equal(t, "uploads", cfg.SpoolDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("control_port: 70000\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.AudioPort = 0 }},
		{"port too high", func(c *Config) { c.APIPort = 70000 }},
		{"negative file size", func(c *Config) { c.MaxFileSize = -1 }},
		{"zero chat history", func(c *Config) { c.ChatHistorySize = 0 }},
		{"zero participants", func(c *Config) { c.MaxParticipants = 0 }},
		{"soft >= hard heartbeat", func(c *Config) { c.HeartbeatSoftS = 30; c.HeartbeatHardS = 30 }},
		{"empty spool dir", func(c *Config) { c.SpoolDir = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
