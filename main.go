package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/config"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/httpapi"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/hub"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/media"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/registry"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/session"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/transfer"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	configPath := pflag.String("config", "", "YAML config file path")
	bind := pflag.String("bind", "", "override bind address")
	hostName := pflag.String("host-name", "", "override local host display name")
	spoolDir := pflag.String("spool", "", "override shared-file spool directory")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if *debug {
		logger.SetLevel(log.DebugLevel)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("load config", "path", *configPath, "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *bind != "" {
		cfg.BindAddress = *bind
	}
	if *hostName != "" {
		cfg.HostName = *hostName
	}
	if *spoolDir != "" {
		cfg.SpoolDir = *spoolDir
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	if RunCLI(pflag.Args(), fmt.Sprintf("127.0.0.1:%d", cfg.APIPort)) {
		return
	}

	logger.Info("starting server",
		"version", Version,
		"control", cfg.ControlAddr(),
		"video", cfg.VideoAddr(),
		"audio", cfg.AudioAddr(),
		"api", cfg.APIAddr(),
		"spool", cfg.SpoolDir)

	if err := os.MkdirAll(cfg.SpoolDir, 0o755); err != nil {
		logger.Error("create spool directory", "dir", cfg.SpoolDir, "err", err)
		os.Exit(1)
	}

	reg := registry.New(cfg.MaxParticipants, registry.DefaultPermissions(), logger.WithPrefix("registry"))
	chat := session.NewChatLog(cfg.ChatHistorySize)
	files := session.NewIndex()
	scanner := session.NewScanner(cfg.SpoolDir, files, logger.WithPrefix("spool"))
	transfers := transfer.New(cfg.BindAddress, cfg.SpoolDir, cfg.MaxFileSize, files, logger.WithPrefix("transfer"))
	h := hub.New(cfg, reg, chat, files, scanner, transfers, logger.WithPrefix("hub"))
	relay := media.New(reg, logger.WithPrefix("media"))
	api := httpapi.New(h, logger.WithPrefix("api"))

	if cfg.HostName != "" {
		h.SeedLocalHost(cfg.HostName)
		logger.Info("local host seeded", "name", cfg.HostName)
	} else {
		logger.Info("running headless, host role goes to the first join")
	}

	if added, err := scanner.Scan(); err != nil {
		logger.Warn("initial spool scan", "err", err)
	} else if added > 0 {
		logger.Info("spool scan", "files", added)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received signal, shutting down")
		cancel()
	}()

	go func() {
		if err := scanner.Watch(ctx); err != nil {
			logger.Warn("spool watcher stopped", "err", err)
		}
	}()
	go api.Run(ctx, cfg.APIAddr())
	go RunMetrics(ctx, h, relay, logger)
	go func() {
		if err := relay.Run(ctx, cfg.VideoAddr(), cfg.AudioAddr()); err != nil && ctx.Err() == nil {
			logger.Error("media relay error", "err", err)
			cancel()
		}
	}()
	if cfg.HostName != "" {
		go runHostConsole(ctx, h, logger)
	}

	if err := h.Run(ctx); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}
