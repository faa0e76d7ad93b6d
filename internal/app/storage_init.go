package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/oda/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/oda/internal/health"
	"github.com/vladislavdragonenkov/oda/internal/storage/memory"
	mysqlstore "github.com/vladislavdragonenkov/oda/internal/storage/mysql"
	"github.com/vladislavdragonenkov/oda/internal/storage/postgres"
)

// runtimeDependencies: хранилище датасета выбранного драйвера.
type runtimeDependencies struct {
	repo           domain.DatasetRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch normalizeStorageDriver(cfg.StorageDriver) {
	case StorageDriverMemory:
		logger.Info("storage driver: memory")
		return &runtimeDependencies{repo: memory.NewDatasetRepository()}, nil
	case StorageDriverPostgres:
		return initPostgres(ctx, cfg, logger)
	case StorageDriverMySQL:
		return initMySQL(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initPostgres(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxOpenConns(cfg.PostgresMaxOpenConns))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	logger.Info("storage driver: postgres")
	return &runtimeDependencies{
		repo:           postgres.NewDatasetRepository(store),
		storageChecker: healthcheck.CheckerFunc(store.Ping),
		closeFn:        store.Close,
	}, nil
}

func initMySQL(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if strings.TrimSpace(cfg.MySQLDSN) == "" {
		return nil, errors.New("mysql dsn is required")
	}

	db, err := mysqlstore.Open(ctx, cfg.MySQLDSN, logger.WithField("layer", "gorm"))
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if cfg.MySQLAutoMigrate {
		if err := mysqlstore.AutoMigrate(ctx, db); err != nil {
			_ = mysqlstore.Close(db)
			return nil, fmt.Errorf("migrate mysql: %w", err)
		}
		logger.Info("mysql schema migrated")
	}

	logger.Info("storage driver: mysql")
	return &runtimeDependencies{
		repo: mysqlstore.NewDatasetRepository(db),
		storageChecker: healthcheck.CheckerFunc(func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
		closeFn: func() error { return mysqlstore.Close(db) },
	}, nil
}
