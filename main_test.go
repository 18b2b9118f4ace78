package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"interview_room/internal/utils"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "store: memory\nauth:\n  jwt_secret: cli-secret\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "migrate", "sweep", "token"} {
		if _, _, err := root.Find([]string{name}); err != nil {
			t.Fatalf("subcommand %q missing: %v", name, err)
		}
	}
}

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "--config", path, "token", "--user", "host-7")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := utils.NewTokenIssuer("cli-secret", 0).ParseToken(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != "host-7" || claims.Role != "host" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := execute(t, "--config", path, "token"); err == nil {
		t.Fatal("expected error without --user")
	}
}

func TestSweepCommandWithMemoryStore(t *testing.T) {
	out, err := execute(t, "--config", writeTestConfig(t), "sweep")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "expired invitations: 0") || !strings.Contains(out, "timed out participants: 0") {
		t.Fatalf("unexpected output %q", out)
	}
}
