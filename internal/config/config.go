// Package config handles application configuration from environment variables
// and the YAML settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the process configuration.
type Config struct {
	DatabasePath string
	LogLevel     string
	SettingsPath string
	Listen       string

	// TelegramBotToken enables the admin bot when set.
	TelegramBotToken string
	AllowedUsers     []int64
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment variables
// take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var allowedUsers []int64
	if raw := os.Getenv("AEROPORT_TELEGRAM_ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in AEROPORT_TELEGRAM_ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	return &Config{
		DatabasePath:     getenv("AEROPORT_DATABASE_PATH", "./data/aeroport.db"),
		LogLevel:         getenv("AEROPORT_LOG_LEVEL", "info"),
		SettingsPath:     getenv("AEROPORT_SETTINGS", "./aeroport.yml"),
		Listen:           getenv("AEROPORT_LISTEN", ":31130"),
		TelegramBotToken: os.Getenv("AEROPORT_TELEGRAM_TOKEN"),
		AllowedUsers:     allowedUsers,
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	return len(c.AllowedUsers) == 0 || slices.Contains(c.AllowedUsers, userID)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
