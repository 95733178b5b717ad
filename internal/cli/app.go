package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prakashgbid/confledger/internal/config"
	"github.com/prakashgbid/confledger/internal/domain/candidate"
	"github.com/prakashgbid/confledger/internal/domain/rollback"
	"github.com/prakashgbid/confledger/internal/domain/version"
	"github.com/prakashgbid/confledger/internal/pkg/logger"
	"github.com/prakashgbid/confledger/internal/probes"
	"github.com/prakashgbid/confledger/internal/repository/sqlite"
	"github.com/prakashgbid/confledger/internal/services"
	"github.com/prakashgbid/confledger/migrations"
	"gopkg.in/yaml.v3"
)

// appContext wires the full service stack for one CLI invocation
type appContext struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *sql.DB
	ledger   version.Service
	analyzer candidate.Analyzer
	impact   candidate.ImpactTester
	manager  candidate.Manager
	rollback rollback.Service
}

func newAppContext() (*appContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	db, err := sqlite.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlite.RunMigrations(db, migrations.GetFS()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	versionRepo := sqlite.NewVersionRepository(db)
	rollbackRepo := sqlite.NewRollbackRepository(db)

	ledger := services.NewLedgerService(versionRepo, cfg.Ledger.DocumentPath, cfg.Ledger.Author, log)
	analyzer := services.NewAnalyzerService(ledger, log)

	runner := probes.NewRunner(cfg.Probes.DefaultTimeout, log)
	battery, err := loadBattery(cfg.Probes.BatteryPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	impact := services.NewImpactService(ledger, runner, battery, cfg.Probes.WorkDirRoot, log)

	manager := services.NewManagerService(ledger, analyzer, impact, log)

	baseline := []rollback.Precondition{
		services.NewConsumerPrecondition(envConsumerRegistry{}),
		services.NewDiskSpacePrecondition(filepath.Dir(cfg.Ledger.DocumentPath), cfg.Rollback.MinFreeDiskBytes),
		services.NewBackupPrecondition(ledger),
	}
	highRisk := []rollback.Precondition{
		services.NewOraclePrecondition("maintenance mode enabled", envFlagCheck("CONFLEDGER_MAINTENANCE")),
		services.NewOraclePrecondition("dependent services stopped", envFlagCheck("CONFLEDGER_DEPENDENTS_STOPPED")),
		services.NewOraclePrecondition("manual approval granted", approvalFileCheck),
	}
	rollbackSvc := services.NewRollbackService(
		rollbackRepo, ledger, runner, cfg.Probes.WorkDirRoot, cfg.Rollback.TestCommand,
		baseline, highRisk, cfg.Rollback.StepTimeout, log)

	return &appContext{
		cfg:      cfg,
		log:      log,
		db:       db,
		ledger:   ledger,
		analyzer: analyzer,
		impact:   impact,
		manager:  manager,
		rollback: rollbackSvc,
	}, nil
}

func (a *appContext) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// loadBattery reads the scenario probe list, returning an empty battery when
// the file does not exist
func loadBattery(path string) ([]probes.Scenario, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read probe battery %s: %w", path, err)
	}

	var battery struct {
		Probes []probes.Scenario `yaml:"probes"`
	}
	if err := yaml.Unmarshal(data, &battery); err != nil {
		return nil, fmt.Errorf("failed to parse probe battery %s: %w", path, err)
	}
	return battery.Probes, nil
}

// envConsumerRegistry reports consumer liveness from the environment. The
// supervising process manager exports the count before invoking rollbacks.
type envConsumerRegistry struct{}

func (envConsumerRegistry) ActiveConsumers(ctx context.Context) (int, error) {
	raw := os.Getenv("CONFLEDGER_ACTIVE_CONSUMERS")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid CONFLEDGER_ACTIVE_CONSUMERS value %q", raw)
	}
	return n, nil
}

func envFlagCheck(name string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if v, _ := strconv.ParseBool(os.Getenv(name)); !v {
			return fmt.Errorf("%s is not set", name)
		}
		return nil
	}
}

// approvalFileCheck attests manual approval through a marker file
func approvalFileCheck(ctx context.Context) error {
	path := os.Getenv("CONFLEDGER_APPROVAL_FILE")
	if path == "" {
		path = ".confledger-approved"
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("approval marker %s not present", path)
	}
	return nil
}
