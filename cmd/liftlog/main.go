package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/liftlog/internal/config"
	"github.com/claude/liftlog/internal/engine"
	liftlogmcp "github.com/claude/liftlog/internal/mcp"
	"github.com/claude/liftlog/internal/server"
	"github.com/claude/liftlog/internal/storage"
	"github.com/claude/liftlog/internal/timer"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("LiftLog starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Run migrations
	if err := storage.RunMigrations(cfg.Database.Path, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Open database
	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.Database.Path)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database open", "path", cfg.Database.Path)

	// Wire the session engine
	clock := engine.RealClock()
	background := engine.RetryPolicy{
		MaxAttempts: cfg.Persistence.BackgroundAttempts,
		BaseDelay:   time.Duration(cfg.Persistence.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Persistence.MaxDelayMS) * time.Millisecond,
		Jitter:      0.2,
	}
	urgent := background
	urgent.MaxAttempts = cfg.Persistence.UrgentAttempts

	gateway := engine.NewGateway(db, clock, log, background, urgent)
	defer gateway.Close()
	reconciler := engine.NewReconciler(db, log, cfg.Session.DefaultRestSeconds)
	previous := engine.NewPreviousPerformance(db)
	session := engine.NewSession(db, gateway, reconciler, previous, clock, log, cfg.Session.DefaultRestSeconds)

	var notifier timer.Notifier = timer.NopNotifier{}
	if cfg.Session.RestNotifications {
		notifier = timer.LogNotifier{Log: log}
	}

	// Create server
	srv := server.New(db, session, previous, notifier, cfg.Session.DefaultRestSeconds, cfg.Auth.APIKey, log)

	// Mount the MCP transport
	mcpSrv := liftlogmcp.New(db, Version, log)
	srv.Mount("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv, mcpserver.WithEndpointPath("/mcp")))

	// Start server — tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr)
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: flush the active session with an urgent save so an
	// in-progress workout survives the restart.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if snap := session.Snapshot(); snap != nil {
		if err := gateway.SaveAndWait(shutdownCtx, snap); err != nil {
			log.Error("final session save failed", "error", err)
		}
	}

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}
