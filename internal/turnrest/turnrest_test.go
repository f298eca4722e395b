package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func fixedGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(Config{
		SharedSecret:    "shared-secret",
		TTLSeconds:      3600,
		UsernamePrefix:  "simally",
		Now:             func() time.Time { return time.Unix(1_700_000_000, 0) },
		SessionIDSource: func() string { return "random01" },
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func TestGenerate_DeterministicWithFixedTime(t *testing.T) {
	g := fixedGenerator(t)

	creds, err := g.Generate("room42")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	wantUsername := "1700003600:simally:room42"
	if creds.Username != wantUsername {
		t.Fatalf("Username=%q, want %q", creds.Username, wantUsername)
	}
	if !creds.ExpiresAt.Equal(time.Unix(1_700_003_600, 0)) {
		t.Fatalf("ExpiresAt=%v", creds.ExpiresAt)
	}

	mac := hmac.New(sha1.New, []byte("shared-secret"))
	mac.Write([]byte(wantUsername))
	if want := base64.StdEncoding.EncodeToString(mac.Sum(nil)); creds.Credential != want {
		t.Fatalf("Credential=%q, want %q", creds.Credential, want)
	}
}

func TestGenerateRandom_UsesSessionIDSource(t *testing.T) {
	creds, err := fixedGenerator(t).GenerateRandom()
	if err != nil {
		t.Fatalf("GenerateRandom: %v", err)
	}
	if !strings.HasSuffix(creds.Username, ":simally:random01") {
		t.Fatalf("Username=%q", creds.Username)
	}
}

func TestGenerateRandom_DefaultSourceHasNoColons(t *testing.T) {
	g, err := NewGenerator(Config{SharedSecret: "s", TTLSeconds: 60, UsernamePrefix: "p"})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	creds, err := g.GenerateRandom()
	if err != nil {
		t.Fatalf("GenerateRandom: %v", err)
	}
	if parts := strings.Split(creds.Username, ":"); len(parts) != 3 || len(parts[2]) != 32 {
		t.Fatalf("Username=%q, want expiry:prefix:<32 hex>", creds.Username)
	}
}

func TestNewGenerator_Validation(t *testing.T) {
	cases := []struct {
		cfg  Config
		want error
	}{
		{Config{TTLSeconds: 1, UsernamePrefix: "p"}, ErrMissingSecret},
		{Config{SharedSecret: "s", UsernamePrefix: "p"}, ErrInvalidTTL},
		{Config{SharedSecret: "s", TTLSeconds: 1}, ErrInvalidPrefix},
		{Config{SharedSecret: "s", TTLSeconds: 1, UsernamePrefix: "a:b"}, ErrInvalidPrefix},
	}
	for _, tc := range cases {
		if _, err := NewGenerator(tc.cfg); !errors.Is(err, tc.want) {
			t.Fatalf("NewGenerator(%+v) err=%v, want %v", tc.cfg, err, tc.want)
		}
	}
}

func TestGenerate_RejectsBadSessionID(t *testing.T) {
	g := fixedGenerator(t)
	for _, id := range []string{"", "a:b"} {
		if _, err := g.Generate(id); !errors.Is(err, ErrInvalidSessionID) {
			t.Fatalf("Generate(%q) err=%v, want %v", id, err, ErrInvalidSessionID)
		}
	}
}

func TestApply_OnlyTouchesTURNServers(t *testing.T) {
	servers := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"TURNS:turn.example.com:5349"}},
	}
	out := Apply(servers, Credentials{Username: "u", Credential: "c"})

	if out[0].Username != "" || out[0].Credential != nil {
		t.Fatalf("stun server modified: %+v", out[0])
	}
	if out[1].Username != "u" || out[1].Credential != "c" {
		t.Fatalf("turn server not updated: %+v", out[1])
	}
	if servers[1].Username != "" {
		t.Fatalf("input slice was mutated")
	}
	if got := Apply([]webrtc.ICEServer{}, Credentials{}); got == nil {
		t.Fatalf("Apply on empty input must stay non-nil")
	}
}
