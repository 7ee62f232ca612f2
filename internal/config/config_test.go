package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"aeroport/internal/model"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want *Config
	}{
		{
			name: "defaults applied",
			env:  map[string]string{},
			want: &Config{
				DatabasePath: "./data/aeroport.db",
				LogLevel:     "info",
				SettingsPath: "./aeroport.yml",
				Listen:       ":31130",
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"AEROPORT_DATABASE_PATH":          "/tmp/aeroport.db",
				"AEROPORT_LOG_LEVEL":              "debug",
				"AEROPORT_SETTINGS":               "/etc/aeroport.yml",
				"AEROPORT_LISTEN":                 "127.0.0.1:9000",
				"AEROPORT_TELEGRAM_TOKEN":         "123:abc",
				"AEROPORT_TELEGRAM_ALLOWED_USERS": "42, 7,",
			},
			want: &Config{
				DatabasePath:     "/tmp/aeroport.db",
				LogLevel:         "debug",
				SettingsPath:     "/etc/aeroport.yml",
				Listen:           "127.0.0.1:9000",
				TelegramBotToken: "123:abc",
				AllowedUsers:     []int64{42, 7},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

var envKeys = []string{
	"AEROPORT_DATABASE_PATH", "AEROPORT_LOG_LEVEL", "AEROPORT_SETTINGS", "AEROPORT_LISTEN",
	"AEROPORT_TELEGRAM_TOKEN", "AEROPORT_TELEGRAM_ALLOWED_USERS",
}

func TestLoadBadAllowedUsers(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AEROPORT_TELEGRAM_ALLOWED_USERS", "42,bob")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "bob") {
		t.Errorf("expected error naming the bad id, got %v", err)
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []int64
		user    int64
		want    bool
	}{
		{"empty list allows all", nil, 1, true},
		{"listed", []int64{1, 2}, 2, true},
		{"not listed", []int64{1, 2}, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{AllowedUsers: tt.allowed}
			if got := c.IsUserAllowed(tt.user); got != tt.want {
				t.Errorf("IsUserAllowed(%d) = %v, want %v", tt.user, got, tt.want)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("AEROPORT_LOG_LEVEL", "warn")
	t.Setenv("AEROPORT_LISTEN", "")
	os.Unsetenv("AEROPORT_LISTEN")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("AEROPORT_LISTEN=:8080\nAEROPORT_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(":8080", got.Listen); diff != "" {
		t.Errorf("listen mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("warn", got.LogLevel); diff != "" {
		t.Errorf("environment must win over .env (-want +got):\n%s", diff)
	}
}

const sampleSettings = `
file_url_cache:
  bucket: feeds
  options:
    root: /var/cache/aeroport
    nesting_depth: "3"
  expires: 6h
http:
  rate: 2
browser:
  proxies:
    - address: 10.0.0.1:3128
      type: http
destinations:
  bus:
    backend: nats
    settings:
      url: nats://localhost:4222
  stream:
    backend: redis
    enabled: false
airlines:
  like:
    enabled: true
    destinations: [bus]
    origins:
      zappos:
        settings:
          max_pages: "2"
        filters:
          - kind: exclude
            value: kids
      feeds:
        feeds:
          - url: http://bagstore.test/yml
            shop_name: bagstore
    schedule:
      zappos:
        - crontab: "0 */6 * * *"
`

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings([]byte(sampleSettings))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if diff := cmp.Diff(6*time.Hour, s.FileURLCache.Expires.Duration); diff != "" {
		t.Errorf("expires mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(30*time.Minute, s.FileURLCache.DownloadTimeout.Duration); diff != "" {
		t.Errorf("download timeout mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("fs", s.FileURLCache.Backend); diff != "" {
		t.Errorf("backend mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(15*time.Second, s.HTTP.Timeout.Duration); diff != "" {
		t.Errorf("http timeout mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(5), s.Browser.MaxBrowsers); diff != "" {
		t.Errorf("max browsers mismatch (-want +got):\n%s", diff)
	}
	if s.Destinations["stream"].IsEnabled() {
		t.Error("stream destination should be disabled")
	}
	if !s.Destinations["bus"].IsEnabled() {
		t.Error("bus destination should be enabled by default")
	}
	if _, ok := s.Destinations["console"]; !ok {
		t.Error("console destination should always be defined")
	}

	zappos := s.Airlines["like"].Origins["zappos"]
	if diff := cmp.Diff([]model.Filter{{Kind: model.FilterExclude, Value: "kids"}}, zappos.Filters); diff != "" {
		t.Errorf("filters mismatch (-want +got):\n%s", diff)
	}
	pages, err := zappos.Int("max_pages", 0)
	if err != nil || pages != 2 {
		t.Errorf("max_pages = %d, %v", pages, err)
	}

	tests := []struct {
		airline, explicit, fallback, want string
	}{
		{"like", "", "", "bus"},
		{"like", "stream", "", "stream"},
		{"like", "", "stream", "bus"},
		{"other", "", "stream", "stream"},
		{"other", "", "", "console"},
		{"other", "", "kafka", "console"},
	}
	for _, tt := range tests {
		if got := s.DestinationFor(tt.airline, tt.explicit, tt.fallback); got != tt.want {
			t.Errorf("DestinationFor(%q, %q, %q) = %q, want %q", tt.airline, tt.explicit, tt.fallback, got, tt.want)
		}
	}
}

func TestParseSettingsEmpty(t *testing.T) {
	s, err := ParseSettings(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff("console", s.DefaultDestination); diff != "" {
		t.Errorf("default destination mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSettingsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown key",
			yaml:    "destinatons: {}",
			wantErr: "field destinatons not found",
		},
		{
			name:    "bad duration",
			yaml:    "file_url_cache:\n  expires: soon",
			wantErr: "invalid duration",
		},
		{
			name:    "undefined destination",
			yaml:    "airlines:\n  like:\n    destinations: [bus]",
			wantErr: `destination "bus" is not defined`,
		},
		{
			name:    "bad crontab",
			yaml:    "airlines:\n  like:\n    schedule:\n      zappos:\n        - crontab: every hour",
			wantErr: "crontab",
		},
		{
			name:    "bad filter",
			yaml:    "airlines:\n  like:\n    origins:\n      zappos:\n        filters:\n          - kind: include_re\n            value: '[x'",
			wantErr: "zappos",
		},
		{
			name:    "feed without shop",
			yaml:    "airlines:\n  like:\n    origins:\n      feeds:\n        feeds:\n          - url: http://x.test",
			wantErr: "shop_name are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aeroport.yml")
	if err := os.WriteFile(path, []byte(sampleSettings), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff("/var/cache/aeroport", s.FileURLCache.Options["root"]); diff != "" {
		t.Errorf("root mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExampleSettings(t *testing.T) {
	s, err := LoadSettings("../../aeroport.yml")
	if err != nil {
		t.Fatalf("example settings do not load: %v", err)
	}
	if diff := cmp.Diff([]string{"alerts", "bus", "console", "stream", "warehouse"}, s.DestinationNames()); diff != "" {
		t.Errorf("destinations mismatch (-want +got):\n%s", diff)
	}
	if got := s.DestinationFor("like", "", "stream"); got != "stream" {
		t.Errorf("DestinationFor() = %q, want stream", got)
	}
}
