package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/database"
)

const usage = "up, down, version, force"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	action := flag.String("action", "up", "Migration action: "+usage)
	target := flag.Int("version", -1, "Version to record without running migrations (force only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment).With("component", "migrate")

	// The migrator owns the database/sql handle from here on
	db, err := database.OpenSQL(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	migrator, err := database.NewMigrator(db, cfg.DatabaseName)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("failed to close migrator", slog.Any("error", err))
		}
	}()

	return execute(migrator, logger, *action, *target, cfg.IsProduction())
}

func execute(m *database.Migrator, logger *slog.Logger, action string, target int, production bool) error {
	switch action {
	case "up":
		if err := m.Up(); err != nil {
			return err
		}

	case "down":
		if production {
			return errors.New("refusing to roll back in production")
		}
		if err := m.Down(); err != nil {
			return err
		}

	case "force":
		if target < 0 {
			return errors.New("-version is required for force")
		}
		if err := m.Force(target); err != nil {
			return err
		}

	case "version":
		// reported below

	default:
		return fmt.Errorf("invalid action %q (use: %s)", action, usage)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}

	logger.Info("schema version",
		slog.String("action", action),
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	if dirty {
		logger.Warn("last migration did not complete; fix the schema and run -action force")
	}

	return nil
}
