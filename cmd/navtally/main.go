package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/navtally/internal/api"
	"github.com/dgnsrekt/navtally/internal/cdp"
	"github.com/dgnsrekt/navtally/internal/config"
	"github.com/dgnsrekt/navtally/internal/engine"
	"github.com/dgnsrekt/navtally/internal/netutil"
	"github.com/dgnsrekt/navtally/internal/permission"
	"github.com/dgnsrekt/navtally/internal/probe"
	"github.com/dgnsrekt/navtally/internal/push"
	"github.com/dgnsrekt/navtally/internal/tabstate"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("config loaded",
		"cdp_address", cfg.CDPAddress,
		"cdp_port", cfg.CDPPort,
		"bind_addr", cfg.BindAddr,
		"tab_url_filter", cfg.TabURLFilter,
		"probe_debounce_ms", cfg.ProbeDebounceMS,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"allowlist_path", cfg.AllowlistPath,
		"auth_enabled", cfg.APIToken != "",
		"log_level", cfg.LogLevel,
	)

	perms, err := permission.Load(cfg.AllowlistPath)
	if err != nil {
		slog.Error("failed to load allowlist", "path", cfg.AllowlistPath, "error", err)
		os.Exit(1)
	}
	slog.Info("allowlist loaded", "origins", len(perms.Origins()))

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	broker := push.NewBroker()
	store := tabstate.NewStore()

	cdpClient := cdp.NewClient(cfg, nil)
	eng := engine.New(store, perms, cdpClient, broker, cfg.ProbeDebounce(), cfg.EvalTimeout())
	coordinator := probe.NewCoordinator(cdpClient, cdpClient, perms, eng, cfg.EvalTimeout())
	eng.SetProber(coordinator)
	cdpClient.SetEvents(eng)

	if err := cdpClient.Connect(context.Background()); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.CDPURL(), "error", err)
		slog.Info("make sure the browser is running with remote debugging enabled")
		os.Exit(1)
	}
	defer func() {
		coordinator.Close()
		if err := cdpClient.Close(); err != nil {
			slog.Warn("cdp close failed", "error", err)
		}
	}()

	h := api.NewServer(eng, broker, cfg.APIToken)
	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("navtally listening", "addr", bindAddr, "tabs", cdpClient.TabCount())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
