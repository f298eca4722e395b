package config

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/pion/webrtc/v4"

	"github.com/RAMYA-PARSANIA/simally-signaling/internal/origin"
)

const (
	EnvPort            = "PORT"
	EnvListenAddr      = "SIMALLY_SIGNALING_LISTEN_ADDR"
	EnvMode            = "SIMALLY_SIGNALING_MODE"
	EnvLogFormat       = "SIMALLY_SIGNALING_LOG_FORMAT"
	EnvLogLevel        = "SIMALLY_SIGNALING_LOG_LEVEL"
	EnvLogFile         = "SIMALLY_SIGNALING_LOG_FILE"
	EnvShutdownTimeout = "SIMALLY_SIGNALING_SHUTDOWN_TIMEOUT"
	EnvAllowedOrigins  = "ALLOWED_ORIGINS"

	EnvICEServersJSON = "SIMALLY_ICE_SERVERS_JSON"
	EnvSTUNURLs       = "SIMALLY_STUN_URLS"
	EnvTURNURLs       = "SIMALLY_TURN_URLS"
	EnvTURNUsername   = "SIMALLY_TURN_USERNAME"
	EnvTURNCredential = "SIMALLY_TURN_CREDENTIAL"

	// coturn TURN REST (ephemeral) credentials.
	EnvTURNRESTSharedSecret   = "TURN_REST_SHARED_SECRET"
	EnvTURNRESTTTLSeconds     = "TURN_REST_TTL_SECONDS"
	EnvTURNRESTUsernamePrefix = "TURN_REST_USERNAME_PREFIX"

	// WebSocket hardening.
	EnvSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	EnvSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	EnvMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	EnvMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	EnvSendQueueFrames               = "SIGNALING_SEND_QUEUE_FRAMES"
	EnvSendQueueBytes                = "SIGNALING_SEND_QUEUE_BYTES"
	EnvMaxConnections                = "MAX_CONNECTIONS"
	EnvStrictPayloads                = "SIGNALING_STRICT_PAYLOADS"

	EnvStatusLogInterval = "STATUS_LOG_INTERVAL"
)

const (
	DefaultPort                          = 8080
	DefaultShutdown                      = 15 * time.Second
	DefaultMode                     Mode = ModeDev
	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 100
	DefaultSendQueueFrames               = 256
	DefaultSendQueueBytes                = 1 << 20 // 1MiB

	DefaultTURNRESTTTLSeconds     int64 = 3600
	DefaultTURNRESTUsernamePrefix       = "simally"

	// Rotation settings for --log-file.
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 5
	logFileMaxAgeDays = 14
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type TurnRESTConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string
}

func (c TurnRESTConfig) Enabled() bool {
	return strings.TrimSpace(c.SharedSecret) != ""
}

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	LogFile         string
	ShutdownTimeout time.Duration

	// AllowedOrigins is empty for the same-host default; "*" allows any origin.
	AllowedOrigins []string

	ICEServers []webrtc.ICEServer
	TURNREST   TurnRESTConfig

	SignalingWSIdleTimeout        time.Duration
	SignalingWSPingInterval       time.Duration
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	// Per-connection outbound queue bounds. A connection whose queue is full
	// is closed.
	SendQueueFrames int
	SendQueueBytes  int

	// MaxConnections caps concurrent WebSocket connections; 0 means unlimited.
	MaxConnections int

	// StrictPayloads makes the relay parse forwarded SDP and ICE candidates and
	// drop the ones that do not parse.
	StrictPayloads bool

	// StatusLogInterval enables a periodic presence snapshot log; 0 disables it.
	StatusLogInterval time.Duration
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	port, err := envIntOrDefault(lookup, EnvPort, DefaultPort)
	if err != nil {
		return Config{}, err
	}
	listenAddr := envOrDefault(lookup, EnvListenAddr, "")

	modeStr := envOrDefault(lookup, EnvMode, string(DefaultMode))
	_, envLogFormatSet := lookup(EnvLogFormat)
	_, envLogLevelSet := lookup(EnvLogLevel)
	logFormatStr := envOrDefault(lookup, EnvLogFormat, defaultLogFormatForMode(modeStr))
	logLevelStr := envOrDefault(lookup, EnvLogLevel, defaultLogLevelForMode(modeStr))
	logFile := envOrDefault(lookup, EnvLogFile, "")
	allowedOriginsStr := envOrDefault(lookup, EnvAllowedOrigins, "")

	shutdownTimeout, err := envDurationOrDefault(lookup, EnvShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}

	ice := iceSource{
		JSON:           envOrDefault(lookup, EnvICEServersJSON, ""),
		STUNURLs:       envOrDefault(lookup, EnvSTUNURLs, ""),
		TURNURLs:       envOrDefault(lookup, EnvTURNURLs, ""),
		TURNUsername:   envOrDefault(lookup, EnvTURNUsername, ""),
		TURNCredential: envOrDefault(lookup, EnvTURNCredential, ""),
	}

	turnREST := TurnRESTConfig{
		SharedSecret:   envOrDefault(lookup, EnvTURNRESTSharedSecret, ""),
		UsernamePrefix: envOrDefault(lookup, EnvTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix),
	}
	turnTTL, err := envIntOrDefault(lookup, EnvTURNRESTTTLSeconds, int(DefaultTURNRESTTTLSeconds))
	if err != nil {
		return Config{}, err
	}

	idleTimeout, err := envDurationOrDefault(lookup, EnvSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := envDurationOrDefault(lookup, EnvSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	maxMessageBytes, err := envIntOrDefault(lookup, EnvMaxSignalingMessageBytes, int(DefaultMaxSignalingMessageBytes))
	if err != nil {
		return Config{}, err
	}
	maxMessagesPerSecond, err := envIntOrDefault(lookup, EnvMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	sendQueueFrames, err := envIntOrDefault(lookup, EnvSendQueueFrames, DefaultSendQueueFrames)
	if err != nil {
		return Config{}, err
	}
	sendQueueBytes, err := envIntOrDefault(lookup, EnvSendQueueBytes, DefaultSendQueueBytes)
	if err != nil {
		return Config{}, err
	}
	maxConnections, err := envIntOrDefault(lookup, EnvMaxConnections, 0)
	if err != nil {
		return Config{}, err
	}
	strictPayloads, err := envBoolOrDefault(lookup, EnvStrictPayloads, false)
	if err != nil {
		return Config{}, err
	}
	statusLogInterval, err := envDurationOrDefault(lookup, EnvStatusLogInterval, 0)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("simally-signaling", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	turnTTL64 := int64(turnTTL)
	maxMessageBytes64 := int64(maxMessageBytes)

	fs.IntVar(&port, "port", port, "Port to listen on (env "+EnvPort+")")
	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "Full listen address, overrides --port (env "+EnvListenAddr+")")
	fs.StringVar(&modeStr, "mode", modeStr, "Runtime mode: dev or prod (env "+EnvMode+")")
	fs.StringVar(&logFormatStr, "log-format", logFormatStr, "Log format: text or json (env "+EnvLogFormat+")")
	fs.StringVar(&logLevelStr, "log-level", logLevelStr, "Log level: debug, info, warn, error (env "+EnvLogLevel+")")
	fs.StringVar(&logFile, "log-file", logFile, "Also write logs to this rotated file (env "+EnvLogFile+")")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (env "+EnvShutdownTimeout+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated allowed browser origins, or * (env "+EnvAllowedOrigins+")")

	fs.StringVar(&ice.JSON, "ice-servers-json", ice.JSON, "ICE servers as a JSON RTCIceServer array (env "+EnvICEServersJSON+")")
	fs.StringVar(&ice.STUNURLs, "stun-urls", ice.STUNURLs, "Comma-separated STUN URLs (env "+EnvSTUNURLs+")")
	fs.StringVar(&ice.TURNURLs, "turn-urls", ice.TURNURLs, "Comma-separated TURN URLs (env "+EnvTURNURLs+")")
	fs.StringVar(&ice.TURNUsername, "turn-username", ice.TURNUsername, "Static TURN username (env "+EnvTURNUsername+")")
	fs.StringVar(&ice.TURNCredential, "turn-credential", ice.TURNCredential, "Static TURN credential (env "+EnvTURNCredential+")")

	fs.StringVar(&turnREST.SharedSecret, "turn-rest-shared-secret", turnREST.SharedSecret, "coturn static-auth-secret for ephemeral TURN credentials (env "+EnvTURNRESTSharedSecret+")")
	fs.Int64Var(&turnTTL64, "turn-rest-ttl-seconds", turnTTL64, "Lifetime of ephemeral TURN credentials (env "+EnvTURNRESTTTLSeconds+")")
	fs.StringVar(&turnREST.UsernamePrefix, "turn-rest-username-prefix", turnREST.UsernamePrefix, "Prefix embedded in ephemeral TURN usernames (env "+EnvTURNRESTUsernamePrefix+")")

	fs.DurationVar(&idleTimeout, "signaling-ws-idle-timeout", idleTimeout, "Close signaling WebSocket connections silent for this long (env "+EnvSignalingWSIdleTimeout+")")
	fs.DurationVar(&pingInterval, "signaling-ws-ping-interval", pingInterval, "Ping interval, must be < idle timeout (env "+EnvSignalingWSPingInterval+")")
	fs.Int64Var(&maxMessageBytes64, "max-signaling-message-bytes", maxMessageBytes64, "Max inbound message size in bytes (env "+EnvMaxSignalingMessageBytes+")")
	fs.IntVar(&maxMessagesPerSecond, "max-signaling-messages-per-second", maxMessagesPerSecond, "Max inbound messages per second per connection, 0 = unlimited (env "+EnvMaxSignalingMessagesPerSecond+")")
	fs.IntVar(&sendQueueFrames, "send-queue-frames", sendQueueFrames, "Max queued outbound frames per connection (env "+EnvSendQueueFrames+")")
	fs.IntVar(&sendQueueBytes, "send-queue-bytes", sendQueueBytes, "Max queued outbound bytes per connection (env "+EnvSendQueueBytes+")")
	fs.IntVar(&maxConnections, "max-connections", maxConnections, "Max concurrent WebSocket connections, 0 = unlimited (env "+EnvMaxConnections+")")
	fs.BoolVar(&strictPayloads, "strict-payloads", strictPayloads, "Drop offers/answers/candidates whose payload does not parse (env "+EnvStrictPayloads+")")
	fs.DurationVar(&statusLogInterval, "status-log-interval", statusLogInterval, "Log a presence snapshot at this interval, 0 = off (env "+EnvStatusLogInterval+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}
	// --mode changes the logging defaults unless they were set explicitly.
	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}
	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if listenAddr == "" {
		if port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("%s/--port must be in 1..65535; got %d", EnvPort, port)
		}
		listenAddr = net.JoinHostPort("", strconv.Itoa(port))
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--shutdown-timeout must be > 0", EnvShutdownTimeout)
	}
	if idleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--signaling-ws-idle-timeout must be > 0", EnvSignalingWSIdleTimeout)
	}
	if pingInterval <= 0 || pingInterval >= idleTimeout {
		return Config{}, fmt.Errorf("%s/--signaling-ws-ping-interval must be > 0 and < %s (%s); got %s",
			EnvSignalingWSPingInterval, EnvSignalingWSIdleTimeout, idleTimeout, pingInterval)
	}
	if maxMessageBytes64 <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-message-bytes must be > 0", EnvMaxSignalingMessageBytes)
	}
	if maxMessagesPerSecond < 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-messages-per-second must be >= 0", EnvMaxSignalingMessagesPerSecond)
	}
	if sendQueueFrames <= 0 {
		return Config{}, fmt.Errorf("%s/--send-queue-frames must be > 0", EnvSendQueueFrames)
	}
	if int64(sendQueueBytes) < maxMessageBytes64 {
		return Config{}, fmt.Errorf("%s/--send-queue-bytes must be >= %s (%d); got %d",
			EnvSendQueueBytes, EnvMaxSignalingMessageBytes, maxMessageBytes64, sendQueueBytes)
	}
	if maxConnections < 0 {
		return Config{}, fmt.Errorf("%s/--max-connections must be >= 0", EnvMaxConnections)
	}
	if statusLogInterval < 0 || (statusLogInterval > 0 && statusLogInterval < time.Second) {
		return Config{}, fmt.Errorf("%s/--status-log-interval must be 0 (off) or >= 1s", EnvStatusLogInterval)
	}

	allowedOrigins, err := origin.ParseAllowList(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", EnvAllowedOrigins, err)
	}

	turnREST.SharedSecret = strings.TrimSpace(turnREST.SharedSecret)
	turnREST.TTLSeconds = turnTTL64
	if turnREST.Enabled() {
		if turnREST.TTLSeconds <= 0 {
			return Config{}, fmt.Errorf("%s/--turn-rest-ttl-seconds must be > 0", EnvTURNRESTTTLSeconds)
		}
		if turnREST.UsernamePrefix == "" || strings.Contains(turnREST.UsernamePrefix, ":") {
			return Config{}, fmt.Errorf("%s/--turn-rest-username-prefix must be non-empty and must not contain ':'", EnvTURNRESTUsernamePrefix)
		}
	}

	iceServers, err := parseICEServers(ice, turnREST.Enabled())
	if err != nil {
		return Config{}, err
	}

	return Config{
		ListenAddr:      listenAddr,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        level,
		LogFile:         strings.TrimSpace(logFile),
		ShutdownTimeout: shutdownTimeout,
		AllowedOrigins:  allowedOrigins,
		ICEServers:      iceServers,
		TURNREST:        turnREST,

		SignalingWSIdleTimeout:        idleTimeout,
		SignalingWSPingInterval:       pingInterval,
		MaxSignalingMessageBytes:      maxMessageBytes64,
		MaxSignalingMessagesPerSecond: maxMessagesPerSecond,
		SendQueueFrames:               sendQueueFrames,
		SendQueueBytes:                sendQueueBytes,
		MaxConnections:                maxConnections,
		StrictPayloads:                strictPayloads,
		StatusLogInterval:             statusLogInterval,
	}, nil
}

// NewLogger builds the process logger. When cfg.LogFile is set, records are
// written to stdout and to a size-rotated file; the returned closer releases
// the file.
func NewLogger(cfg Config) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    logFileMaxSizeMB,
			MaxBackups: logFileMaxBackups,
			MaxAge:     logFileMaxAgeDays,
			LocalTime:  true,
		}
		out = io.MultiWriter(os.Stdout, rotated)
		closer = rotated
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(out, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(out, opts)
	default:
		return nil, nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return b, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}
