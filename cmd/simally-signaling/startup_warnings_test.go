package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/RAMYA-PARSANIA/simally-signaling/internal/config"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
	attrs   []slog.Attr
	groups  []string
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	mu := &sync.Mutex{}
	records := &[]recordedLog{}
	h := &recordingHandler{mu: mu, records: records}
	logger := slog.New(h)
	return logger, func() []recordedLog {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedLog, len(*records))
		copy(out, *records)
		return out
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{
		level: r.Level,
		msg:   r.Message,
		attrs: map[string]any{},
	}
	for _, a := range h.attrs {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *recordingHandler) clone() *recordingHandler {
	cp := &recordingHandler{
		mu:      h.mu,
		records: h.records,
	}
	if len(h.attrs) > 0 {
		cp.attrs = append([]slog.Attr(nil), h.attrs...)
	}
	if len(h.groups) > 0 {
		cp.groups = append([]string(nil), h.groups...)
	}
	return cp
}

func (h *recordingHandler) key(k string) string {
	if len(h.groups) == 0 {
		return k
	}
	return strings.Join(h.groups, ".") + "." + k
}

func warningCodes(records []recordedLog) map[string]bool {
	out := map[string]bool{}
	for _, r := range records {
		if r.level != slog.LevelWarn {
			continue
		}
		if code, ok := r.attrs["warning_code"].(string); ok {
			out[code] = true
		}
	}
	return out
}

func quietConfig() config.Config {
	return config.Config{
		Mode:                          config.ModeProd,
		MaxConnections:                1000,
		MaxSignalingMessageBytes:      64 << 10,
		MaxSignalingMessagesPerSecond: 50,
		ICEServers:                    []webrtc.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}},
	}
}

func TestStartupWarnings_QuietConfig(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupWarnings(logger, quietConfig())

	if codes := warningCodes(records()); len(codes) != 0 {
		t.Fatalf("expected no warnings, got %v", codes)
	}
}

func TestStartupWarnings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		code   string
	}{
		{"wildcard origins", func(c *config.Config) { c.AllowedOrigins = []string{"*"} }, "allowed_origins_wildcard"},
		{"unlimited connections in prod", func(c *config.Config) { c.MaxConnections = 0 }, "max_connections_unlimited_in_prod"},
		{"rate limit disabled", func(c *config.Config) { c.MaxSignalingMessagesPerSecond = 0 }, "signaling_rate_limit_disabled"},
		{"large messages", func(c *config.Config) { c.MaxSignalingMessageBytes = 4 << 20 }, "signaling_message_bytes_large"},
		{"no ice servers", func(c *config.Config) { c.ICEServers = nil }, "no_ice_servers"},
		{"static turn credentials", func(c *config.Config) {
			c.ICEServers = append(c.ICEServers, webrtc.ICEServer{
				URLs:       []string{"turn:turn.example.com:3478"},
				Username:   "user",
				Credential: "pass",
			})
		}, "static_turn_credentials"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logger, records := newRecordingLogger()
			cfg := quietConfig()
			tc.mutate(&cfg)

			logStartupWarnings(logger, cfg)

			if codes := warningCodes(records()); !codes[tc.code] {
				t.Fatalf("expected warning_code=%s, got %v", tc.code, codes)
			}
		})
	}
}

func TestStartupWarnings_UnlimitedConnectionsAllowedInDev(t *testing.T) {
	logger, records := newRecordingLogger()
	cfg := quietConfig()
	cfg.Mode = config.ModeDev
	cfg.MaxConnections = 0

	logStartupWarnings(logger, cfg)

	if codes := warningCodes(records()); codes["max_connections_unlimited_in_prod"] {
		t.Fatalf("unexpected prod-only warning in dev: %v", codes)
	}
}

func TestStartupWarnings_TURNRESTSuppressesStaticCredentialWarning(t *testing.T) {
	logger, records := newRecordingLogger()
	cfg := quietConfig()
	cfg.TURNREST = config.TurnRESTConfig{SharedSecret: "s", TTLSeconds: 60, UsernamePrefix: "p"}
	cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{
		URLs:     []string{"turn:turn.example.com:3478"},
		Username: "placeholder",
	})

	logStartupWarnings(logger, cfg)

	if codes := warningCodes(records()); codes["static_turn_credentials"] {
		t.Fatalf("unexpected static_turn_credentials warning: %v", codes)
	}
}

func TestResolveBuildInfoPrefersInjectedValues(t *testing.T) {
	commit, buildTime := resolveBuildInfo("abc123", "2024-01-01T00:00:00Z")
	if commit != "abc123" || buildTime != "2024-01-01T00:00:00Z" {
		t.Fatalf("got (%q, %q)", commit, buildTime)
	}
}
