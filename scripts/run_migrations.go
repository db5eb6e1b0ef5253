package main

import (
	"context"
	"os"

	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/logging"
)

func main() {
	logger := logging.New(config.LogConfig{Level: "info", Format: "text"}, os.Stderr)

	if len(os.Args) < 2 {
		logger.Error("Usage: go run scripts/run_migrations.go [up|down]")
		os.Exit(2)
	}

	direction := database.Direction(os.Args[1])
	if direction != database.Up && direction != database.Down {
		logger.Error("Direction must be 'up' or 'down'", "direction", direction)
		os.Exit(2)
	}

	ctx := context.Background()
	cfg := config.LoadDatabase()

	db, err := database.NewConnection(ctx, &cfg)
	if err != nil {
		logger.Error("Connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	applied, err := database.Migrate(ctx, db, "migrations", direction)
	if err != nil {
		logger.Error("Run migrations", "err", err)
		db.Close()
		os.Exit(1)
	}

	for _, name := range applied {
		logger.Debug("Applied migration", "file", name)
	}
	logger.Info("Migrations complete", "count", len(applied), "direction", direction)
}
