package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface of the hub. Zero values are
// replaced by defaults in Load; an absent config file yields pure defaults.
type Config struct {
	BindAddress string `yaml:"bind_address"`
	ControlPort int    `yaml:"control_port"`
	VideoPort   int    `yaml:"video_port"`
	AudioPort   int    `yaml:"audio_port"`
	APIPort     int    `yaml:"api_port"`

	SpoolDir        string `yaml:"spool_dir"`
	MaxFileSize     int64  `yaml:"max_file_size"`
	ChatHistorySize int    `yaml:"chat_history_size"`
	MaxParticipants int    `yaml:"max_participants"`

	HeartbeatSoftS int `yaml:"heartbeat_soft_s"`
	HeartbeatHardS int `yaml:"heartbeat_hard_s"`

	// HostName is the display name of the seeded local host participant
	// (id 0). Empty runs headless: the first admitted client becomes host.
	HostName string `yaml:"host_name"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		BindAddress:     "0.0.0.0",
		ControlPort:     8888,
		VideoPort:       8889,
		AudioPort:       8890,
		APIPort:         8891,
		SpoolDir:        "uploads",
		MaxFileSize:     100 << 20,
		ChatHistorySize: 500,
		MaxParticipants: 100,
		HeartbeatSoftS:  20,
		HeartbeatHardS:  30,
		HostName:        "host",
	}
}

// Load reads a YAML config file and overlays it on the defaults. An empty
// path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the hub cannot run with.
func (c Config) Validate() error {
	ports := map[string]int{
		"control_port": c.ControlPort,
		"video_port":   c.VideoPort,
		"audio_port":   c.AudioPort,
		"api_port":     c.APIPort,
	}
	for name, p := range ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%s out of range: %d", name, p)
		}
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must not be negative")
	}
	if c.ChatHistorySize < 1 {
		return fmt.Errorf("chat_history_size must be at least 1")
	}
	if c.MaxParticipants < 1 {
		return fmt.Errorf("max_participants must be at least 1")
	}
	if c.HeartbeatSoftS < 1 || c.HeartbeatHardS <= c.HeartbeatSoftS {
		return fmt.Errorf("heartbeat timeouts must satisfy 0 < soft < hard")
	}
	if c.SpoolDir == "" {
		return fmt.Errorf("spool_dir is required")
	}
	return nil
}

// HeartbeatSoft returns the soft liveness timeout as a duration.
func (c Config) HeartbeatSoft() time.Duration {
	return time.Duration(c.HeartbeatSoftS) * time.Second
}

// HeartbeatHard returns the hard liveness timeout as a duration.
func (c Config) HeartbeatHard() time.Duration {
	return time.Duration(c.HeartbeatHardS) * time.Second
}

// ControlAddr returns the bind address for the reliable listener.
func (c Config) ControlAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.ControlPort)
}

// VideoAddr returns the bind address for the video datagram socket.
func (c Config) VideoAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.VideoPort)
}

// AudioAddr returns the bind address for the audio datagram socket.
func (c Config) AudioAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.AudioPort)
}

// APIAddr returns the bind address for the HTTP API.
func (c Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.APIPort)
}
