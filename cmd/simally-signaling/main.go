package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/RAMYA-PARSANIA/simally-signaling/internal/config"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/httpserver"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/metrics"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/origin"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/signaling"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/statuslog"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(2)
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, logCloser, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("exiting", "err", err)
		_ = logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	logger.Info("starting simally-signaling",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"allowed_origins", cfg.AllowedOrigins,
		"ice_servers", len(cfg.ICEServers),
		"turn_rest", cfg.TURNREST.Enabled(),
		"max_connections", cfg.MaxConnections,
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
		"strict_payloads", cfg.StrictPayloads,
	)
	logStartupWarnings(logger, cfg)

	m := metrics.New()
	hub := signaling.NewHub(signaling.HubConfig{
		Logger:         logger,
		Metrics:        m,
		StrictPayloads: cfg.StrictPayloads,
	})
	if err := hub.RegisterMetrics(m); err != nil {
		return err
	}

	var turnGen *turnrest.Generator
	if cfg.TURNREST.Enabled() {
		gen, err := turnrest.NewGenerator(turnrest.Config{
			SharedSecret:   cfg.TURNREST.SharedSecret,
			TTLSeconds:     cfg.TURNREST.TTLSeconds,
			UsernamePrefix: cfg.TURNREST.UsernamePrefix,
		})
		if err != nil {
			return fmt.Errorf("configure TURN REST: %w", err)
		}
		turnGen = gen
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	commit, buildTime := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: buildTime}, httpserver.Deps{
		Presence: hub,
		Metrics:  m,
		TURNREST: turnGen,
	})

	sig := signaling.NewServer(signaling.Config{
		Hub:                  hub,
		Logger:               logger,
		Metrics:              m,
		Origins:              origin.NewPolicy(cfg.AllowedOrigins),
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		PingInterval:         cfg.SignalingWSPingInterval,
		SendQueueFrames:      cfg.SendQueueFrames,
		SendQueueBytes:       cfg.SendQueueBytes,
		MaxConnections:       cfg.MaxConnections,
	})
	sig.RegisterRoutes(srv.Mux())

	if cfg.StatusLogInterval > 0 {
		reporter, err := statuslog.New(hub, logger, cfg.StatusLogInterval)
		if err != nil {
			return err
		}
		reporter.Start()
		defer reporter.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sig.Close()
		if err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
			return fmt.Errorf("http server exited: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed, forcing close", "err", err)
		_ = srv.Close()
	}
	// Every open signaling connection runs its normal leave cleanup here.
	sig.Close()
	logger.Info("signaling connections closed", "status", hub.Status())

	if err := <-errCh; err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
		return fmt.Errorf("http server exited after shutdown: %w", err)
	}
	return nil
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
