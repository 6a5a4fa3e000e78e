package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/vkbot/core/logger"
)

const defaultMigrationsDir = "migrations"

// RunMigrations applies every pending up migration from cfg.MigrationsDir.
func RunMigrations(ctx context.Context, cfg Config) error {
	if err := WaitReady(ctx, cfg, 30*time.Second); err != nil {
		logger.Error(ctx, "db.migrate", "db.not_ready", logger.Err(err))
		return err
	}

	dir, err := migrationsPath(cfg.MigrationsDir)
	if err != nil {
		return err
	}
	files := upFiles(dir)
	logger.Debug(ctx, "db.migrate", "migrate.resolve",
		slog.String("path", dir),
		slog.Int("count", len(files)))

	m, err := migrate.New("file://"+dir, cfg.URL())
	if err != nil {
		logger.Error(ctx, "db.migrate", "migrate.init", logger.Err(err))
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	from, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	switch {
	case upErr == nil:
	case errors.Is(upErr, migrate.ErrNoChange):
		logger.Info(ctx, "db.migrate", "migrate.summary",
			slog.String("status", "skip"),
			slog.Uint64("from_ver", uint64(from)),
			slog.Duration("duration", logger.Took(start)))
		return nil
	default:
		logger.Error(ctx, "db.migrate", "migrate.apply",
			slog.String("status", "fail"),
			slog.Duration("duration", logger.Took(start)),
			logger.Err(upErr))
		return fmt.Errorf("apply migrations: %w", upErr)
	}

	to, _, _ := m.Version()
	logger.Info(ctx, "db.migrate", "migrate.summary",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("count", countBetween(files, uint64(from), uint64(to))),
		slog.Duration("duration", logger.Took(start)))
	return nil
}

func migrationsPath(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = defaultMigrationsDir
	}
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return filepath.Join(cwd, dir), nil
}

func upFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func fileVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// countBetween counts files with from < version <= to.
func countBetween(files []string, from, to uint64) int {
	n := 0
	for _, f := range files {
		if v := fileVersion(f); v > from && v <= to {
			n++
		}
	}
	return n
}
