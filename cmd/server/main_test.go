package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ZayedOfficial/truthshield/internal/clinical"
	"github.com/ZayedOfficial/truthshield/internal/config"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyzeCommandSimulation(t *testing.T) {
	dir := t.TempDir()
	survey := writeFile(t, dir, "survey.txt", "He pushed me and I am scared to go home.")
	notes := writeFile(t, dir, "notes.txt", "Patient states they tripped over the dog.")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"analyze", "--survey", survey, "--notes", notes, "--plain"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	got := out.String()
	if !strings.HasPrefix(got, "## 🚨 TruthShield Clinical Alert — CRITICAL") {
		t.Fatalf("unexpected report: %s", got)
	}
	if !strings.Contains(got, "SCENARIO: domestic_violence") || !strings.Contains(got, "CRITICAL: true") {
		t.Fatalf("missing summary line: %s", got)
	}
}

func TestAnalyzeCommandRejectsEmptySurvey(t *testing.T) {
	dir := t.TempDir()
	survey := writeFile(t, dir, "survey.txt", "   ")
	notes := writeFile(t, dir, "notes.txt", "Routine visit.")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"analyze", "--survey", survey, "--notes", notes})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected validation error for empty survey")
	}
}

func TestAnalyzeCommandMissingFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"analyze", "--survey", "/does/not/exist", "--notes", "/does/not/exist"})

	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "read survey") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestListScenarios(t *testing.T) {
	var out bytes.Buffer
	if err := listScenarios(&out, clinical.MustLoad()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected header plus 7 scenarios, got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[1], "cyberbullying") {
		t.Fatalf("expected table order, got %q", lines[1])
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.Config{Env: "production", LogLevel: "warn"}, &buf)
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", logger.GetLevel())
	}
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"message":"shown"`) {
		t.Fatalf("unexpected log output: %s", buf.String())
	}

	logger = newLogger(&config.Config{Env: "production", LogLevel: "nonsense"}, &buf)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}
}

func TestNewSessionStoreMemory(t *testing.T) {
	store, closeFn, err := newSessionStore(context.Background(), &config.Config{SessionStore: config.StoreMemory})
	if err != nil || store == nil {
		t.Fatalf("expected memory store, got %v", err)
	}
	closeFn()
}
