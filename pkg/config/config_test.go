package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: secret\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("server.address = %q, want :8080", cfg.Server.Address)
	}
	if cfg.Invitations.DefaultTTL != 72*time.Hour {
		t.Fatalf("invitations.default_ttl = %v", cfg.Invitations.DefaultTTL)
	}
	if cfg.Sessions.DisconnectGrace != 2*time.Minute {
		t.Fatalf("sessions.disconnect_grace = %v", cfg.Sessions.DisconnectGrace)
	}
	if !cfg.Rooms.Defaults.WaitingRoomEnabled || cfg.Rooms.Defaults.GuestApprovalRequired {
		t.Fatalf("unexpected room defaults: %+v", cfg.Rooms.Defaults)
	}
	if cfg.Store != "postgres" {
		t.Fatalf("store = %q", cfg.Store)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: secret\nsessions:\n  disconnect_grace: 1m\n")
	t.Setenv("INTERVIEW_SESSIONS_DISCONNECT_GRACE", "45s")
	t.Setenv("INTERVIEW_STORE", "memory")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sessions.DisconnectGrace != 45*time.Second {
		t.Fatalf("disconnect_grace = %v, want 45s", cfg.Sessions.DisconnectGrace)
	}
	if cfg.Store != "memory" {
		t.Fatalf("store = %q, want memory", cfg.Store)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing secret",
			body:    "store: memory\n",
			wantErr: "jwt_secret",
		},
		{
			name:    "unknown store",
			body:    "store: redis\nauth:\n  jwt_secret: s\n",
			wantErr: "store must be",
		},
		{
			name:    "max ttl shorter than default",
			body:    "auth:\n  jwt_secret: s\ninvitations:\n  default_ttl: 48h\n  max_ttl: 24h\n",
			wantErr: "max_ttl",
		},
		{
			name:    "zero guests",
			body:    "auth:\n  jwt_secret: s\nrooms:\n  defaults:\n    max_guests: 0\n",
			wantErr: "max_guests",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	db := DBConfig{Host: "db", User: "u", Password: "p", Name: "n", Port: 5433, SSLMode: "disable", TimeZone: "UTC"}
	want := "host=db user=u password=p dbname=n port=5433 sslmode=disable TimeZone=UTC"
	if got := db.DSN(); got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
}
