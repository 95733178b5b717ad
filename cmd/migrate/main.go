package main

import (
	"fmt"
	"os"

	"github.com/prakashgbid/confledger/internal/config"
	"github.com/prakashgbid/confledger/internal/pkg/logger"
	"github.com/prakashgbid/confledger/internal/repository/sqlite"
	"github.com/prakashgbid/confledger/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	db, err := sqlite.New(cfg.Database)
	if err != nil {
		log.ErrorWithErr(err, "Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := sqlite.RunMigrations(db, migrations.GetFS()); err != nil {
		log.ErrorWithErr(err, "Migration failed")
		os.Exit(1)
	}

	log.Info("Migrations applied")
}
