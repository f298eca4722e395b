package main

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/RAMYA-PARSANIA/simally-signaling/internal/config"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/origin"
	"github.com/RAMYA-PARSANIA/simally-signaling/internal/turnrest"
)

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if slices.Contains(cfg.AllowedOrigins, origin.Wildcard) {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxConnections <= 0 {
		logger.Warn("startup security warning: MAX_CONNECTIONS is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_connections_unlimited_in_prod",
			"max_connections", cfg.MaxConnections,
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxSignalingMessagesPerSecond == 0 {
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGES_PER_SECOND=0 disables per-connection rate limiting",
			"warning_code", "signaling_rate_limit_disabled",
			"mode", cfg.Mode,
		)
	}

	// Every frame may be fanned out to a whole room, so large frames multiply.
	if cfg.MaxSignalingMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGE_BYTES is very large (increases per-connection memory and broadcast amplification)",
			"warning_code", "signaling_message_bytes_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}

	if !cfg.TURNREST.Enabled() && hasStaticTURNCredentials(cfg) {
		logger.Warn("startup security warning: static TURN credentials are handed to every client of /webrtc/ice (prefer TURN_REST_SHARED_SECRET)",
			"warning_code", "static_turn_credentials",
			"mode", cfg.Mode,
		)
	}

	if len(cfg.ICEServers) == 0 {
		logger.Warn("no ICE servers configured; peers behind NAT may fail to connect",
			"warning_code", "no_ice_servers",
			"mode", cfg.Mode,
		)
	}
}

func hasStaticTURNCredentials(cfg config.Config) bool {
	for _, server := range cfg.ICEServers {
		if turnrest.HasTURNURL(server) && strings.TrimSpace(server.Username) != "" {
			return true
		}
	}
	return false
}
