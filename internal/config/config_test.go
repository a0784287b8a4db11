package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Televisit/internal/app/session"
	"github.com/dkeye/Televisit/internal/domain"
	"github.com/spf13/pflag"
)

func TestParseICEServersJSON(t *testing.T) {
	servers, err := ParseICEServersJSON(`[
		{"urls": "stun:stun.l.google.com:19302"},
		{"urls": [" turn:turn.example.com:3478 ", ""], "username": "u", "credential": "p"}
	]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("stun = %v", servers[0].URLs)
	}
	if len(servers[1].URLs) != 1 || servers[1].URLs[0] != "turn:turn.example.com:3478" || servers[1].Credential != "p" {
		t.Fatalf("turn = %+v", servers[1])
	}
}

func TestICEServerValidation(t *testing.T) {
	cases := map[string]string{
		"turn without creds": `[{"urls":"turn:t.example.com"}]`,
		"bad scheme":         `[{"urls":"http://t.example.com"}]`,
		"no urls":            `[{"urls":[]}]`,
		"not json":           `{`,
	}
	for name, raw := range cases {
		if _, err := ParseICEServersJSON(raw); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestLoadSessionFromFlags(t *testing.T) {
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	ClientFlags(fs)
	err := fs.Parse([]string{
		"--server", "https://clinic.example.com/",
		"--appointment", "appt-9",
		"--role", "Patient",
		"--chat", "poll",
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadSession(fs)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "https://clinic.example.com" {
		t.Fatalf("server = %q", cfg.ServerURL)
	}
	want := domain.SessionKey{AppointmentID: "appt-9", Participant: domain.Patient, Role: domain.RoleResponder}
	if cfg.Key != want {
		t.Fatalf("key = %+v", cfg.Key)
	}
	if cfg.Chat.Transport != session.ChatPoll || cfg.Chat.PollInterval != 3*time.Second {
		t.Fatalf("chat = %+v", cfg.Chat)
	}
	if cfg.HandshakeTimeout != 0 || cfg.Media.AllowReceiveOnly {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadSessionFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	yaml := strings.Join([]string{
		"server_url: http://localhost:9000",
		"appointment_id: appt-1",
		"role: doctor",
		"handshake_timeout: 15s",
		"ice_servers:",
		"  - urls: [\"stun:stun.example.com:3478\"]",
		"media:",
		"  allow_receive_only: true",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	ClientFlags(fs)
	if err := fs.Parse([]string{"--config", path}); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadSession(fs)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Key.Role != domain.RoleInitiator {
		t.Fatalf("doctor should initiate, got %q", cfg.Key.Role)
	}
	if cfg.HandshakeTimeout != 15*time.Second || !cfg.Media.AllowReceiveOnly {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("ice = %+v", cfg.ICEServers)
	}
	if cfg.Chat.Transport != session.ChatDataChannel {
		t.Fatalf("transport = %q", cfg.Chat.Transport)
	}
}

func TestLoadSessionRejects(t *testing.T) {
	cases := map[string][]string{
		"no role":        {"--appointment", "a"},
		"bot role":       {"--appointment", "a", "--role", "bot"},
		"no appointment": {"--role", "doctor"},
		"bad transport":  {"--appointment", "a", "--role", "doctor", "--chat", "carrier-pigeon"},
	}
	for name, args := range cases {
		fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
		ClientFlags(fs)
		if err := fs.Parse(args); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadSession(fs); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}
