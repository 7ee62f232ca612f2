package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"aeroport/internal/config"
	"aeroport/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	if err := newRootCommand(cfg.DatabasePath).Execute(); err != nil {
		slog.Error("migrate", "error", err)
		os.Exit(1)
	}
}

type migrateFunc func(db *sql.DB, args []string) error

func newRootCommand(dbPath string) *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the flight database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", dbPath, "path to sqlite database")

	sub := func(use, short string, args cobra.PositionalArgs, fn migrateFunc) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(_ *cobra.Command, args []string) error {
				return withDB(dbPath, func(db *sql.DB) error { return fn(db, args) })
			},
		}
	}

	root.AddCommand(
		sub("up", "Migrate to the latest version", cobra.NoArgs, func(db *sql.DB, _ []string) error {
			return goose.Up(db, ".")
		}),
		sub("up-one", "Migrate one version up", cobra.NoArgs, func(db *sql.DB, _ []string) error {
			return goose.UpByOne(db, ".")
		}),
		sub("up-to <version>", "Migrate up to a version", cobra.ExactArgs(1), func(db *sql.DB, args []string) error {
			v, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			return goose.UpTo(db, ".", v)
		}),
		sub("down", "Roll back one version", cobra.NoArgs, func(db *sql.DB, _ []string) error {
			return goose.Down(db, ".")
		}),
		sub("down-to <version>", "Roll back to a version", cobra.ExactArgs(1), func(db *sql.DB, args []string) error {
			v, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			return goose.DownTo(db, ".", v)
		}),
		sub("status", "Show migration status", cobra.NoArgs, func(db *sql.DB, _ []string) error {
			return goose.Status(db, ".")
		}),
		sub("version", "Show current version", cobra.NoArgs, func(db *sql.DB, _ []string) error {
			return goose.Version(db, ".")
		}),
		sub("reset", "Roll back all migrations", cobra.NoArgs, func(db *sql.DB, _ []string) error {
			return goose.Reset(db, ".")
		}),
	)
	return root
}

func withDB(path string, fn func(db *sql.DB) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return fn(db)
}

func parseVersion(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("bad version %q", s)
	}
	return v, nil
}
