package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aeroport/internal/config"
	"aeroport/internal/model"
)

const testSettings = `
file_url_cache:
  options:
    root: %ROOT%/cache
airlines:
  like:
    enabled: true
    origins:
      ebags:
        enabled: false
    schedule:
      zappos:
        - crontab: "0 */6 * * *"
`

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "aeroport.yml")
	data := strings.ReplaceAll(testSettings, "%ROOT%", dir)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return &config.Config{
		DatabasePath: filepath.Join(dir, "data", "aeroport.db"),
		SettingsPath: path,
		Listen:       "127.0.0.1:0",
	}
}

func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAirlinesCommand(t *testing.T) {
	out, err := execute(t, newTestConfig(t), "airlines")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "like") || !strings.Contains(out, "Like That Bag") {
		t.Errorf("airline missing from output:\n%s", out)
	}
	if !strings.Contains(out, "6pm,arrivals,ebags,feeds,zappos") {
		t.Errorf("origins missing from output:\n%s", out)
	}
}

func TestOriginsCommand(t *testing.T) {
	cfg := newTestConfig(t)

	out, err := execute(t, cfg, "origins", "like")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"ebags", "false", "console", "0 */6 * * *"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, cfg, "origins", "amazon"); err == nil {
		t.Error("expected error for unknown airline")
	}
}

func TestSettingsErrorSurfaces(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.SettingsPath = filepath.Join(t.TempDir(), "missing.yml")
	if _, err := execute(t, cfg, "airlines"); err == nil {
		t.Error("expected error for missing settings file")
	}
}

func TestProcessAndFlightsCommands(t *testing.T) {
	cfg := newTestConfig(t)

	out, err := execute(t, cfg, "process", "like", "feeds")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(out, "landed: 0 items") {
		t.Errorf("unexpected process output: %q", out)
	}

	if _, err := execute(t, cfg, "process", "like", "ebags"); err == nil {
		t.Error("expected error for disabled origin")
	}

	out, err = execute(t, cfg, "flights")
	if err != nil {
		t.Fatalf("flights: %v", err)
	}
	if !strings.Contains(out, "feeds") || !strings.Contains(out, "landed") {
		t.Errorf("flight missing from listing:\n%s", out)
	}

	out, err = execute(t, cfg, "flights", "--stuck", "1h")
	if err != nil {
		t.Fatalf("flights --stuck: %v", err)
	}
	if strings.Contains(out, "feeds") {
		t.Errorf("landed flight listed as stuck:\n%s", out)
	}
}

func TestPrintFlights(t *testing.T) {
	started := time.Now().Add(-3 * time.Hour)
	finished := started.Add(90 * time.Second)
	var out bytes.Buffer
	err := printFlights(&out, []model.Flight{
		{UUID: "a", Airline: "like", Origin: "zappos", Status: model.FlightLanded, StartedAt: &started, FinishedAt: &finished, NumProcessed: 4200},
		{UUID: "b", Airline: "like", Origin: "ebags", Status: model.FlightNew},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out.String())
	}
	for _, want := range []string{"3 hours ago", "1m30s", "4,200"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row missing %q: %s", want, lines[1])
		}
	}
	if !strings.Contains(lines[2], "-") {
		t.Errorf("unstarted flight row: %s", lines[2])
	}
}
