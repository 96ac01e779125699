package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	body = strings.ReplaceAll(body, "$DIR", dir)
	path := filepath.Join(dir, "streakforge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRecomputeValidatesConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: $DIR/streakforge.db
auth:
  jwt_secret: short
`)
	cmd := &RecomputeCmd{Email: "alice@example.com"}
	err := cmd.Run(&Globals{ConfigPath: path})
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("err = %v, want invalid config", err)
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(path), "streakforge.db")); !os.IsNotExist(statErr) {
		t.Error("database should not be opened with an invalid config")
	}
}

func TestRecomputeUnknownEmail(t *testing.T) {
	path := writeConfig(t, `
database:
  path: $DIR/streakforge.db
auth:
  jwt_secret: a-secret-that-is-long-enough
`)
	cmd := &RecomputeCmd{Email: "nobody@example.com"}
	err := cmd.Run(&Globals{ConfigPath: path})
	if err == nil || !strings.Contains(err.Error(), "no user with email") {
		t.Fatalf("err = %v, want unknown user", err)
	}
}
