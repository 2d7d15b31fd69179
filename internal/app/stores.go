// Package app assembles the engine and its collaborators from configuration.
// Both the server and safetyctl build through it.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tourist-safety-engine/internal/config"
	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
	chstore "tourist-safety-engine/internal/storage/clickhouse"
	"tourist-safety-engine/internal/storage/memory"
	"tourist-safety-engine/internal/storage/migrations"
	pgstore "tourist-safety-engine/internal/storage/postgres"
	"tourist-safety-engine/internal/storage/sqlite"
)

// Stores holds all storage implementations.
type Stores struct {
	Zones       storage.ZoneStore
	Assessments storage.AssessmentStore
	Alerts      storage.AlertStore
	Features    storage.FeatureStore
	Checkpoints storage.CheckpointStore

	// MemFeatures is set when feature history lives in process memory and
	// needs pruning.
	MemFeatures *memory.FeatureStore
}

// OpenStores creates the stores for the configured backend and applies
// migrations. The returned cleanup closes every connection.
func OpenStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Stores, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		stores  *Stores
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Backend {
	case config.BackendMemory, "":
		stores = &Stores{
			Zones:       memory.NewZoneStore(),
			Assessments: memory.NewAssessmentStore(),
			Alerts:      memory.NewAlertStore(),
			Checkpoints: memory.NewCheckpointStore(),
		}

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("postgres migrations applied", zap.Strings("versions", applied))
		}
		stores = &Stores{
			Zones:       pgstore.NewZoneStore(pool),
			Assessments: pgstore.NewAssessmentStore(pool),
			Alerts:      pgstore.NewAlertStore(pool),
			Checkpoints: pgstore.NewCheckpointStore(pool),
		}

	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		closers = append(closers, func() { db.Close() })
		stores = &Stores{
			Zones:       sqlite.NewZoneStore(db),
			Assessments: sqlite.NewAssessmentStore(db),
			Alerts:      sqlite.NewAlertStore(db),
			Checkpoints: sqlite.NewCheckpointStore(db),
		}

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		stores.Features = chstore.NewFeatureStore(conn)
		stores.Assessments = &teeAssessments{
			AssessmentStore: stores.Assessments,
			analytics:       chstore.NewAssessmentStore(conn),
			logger:          logger,
		}
		logger.Info("clickhouse analytics enabled")
	} else {
		mem := memory.NewFeatureStore()
		stores.Features = mem
		stores.MemFeatures = mem
	}

	logger.Info("stores ready", zap.String("backend", backendName(cfg.Backend)))
	return stores, cleanup, nil
}

func backendName(b string) string {
	if b == "" {
		return config.BackendMemory
	}
	return b
}

// teeAssessments writes every assessment to the primary store and copies it
// to the analytics store. Reads come from the primary store only.
type teeAssessments struct {
	storage.AssessmentStore
	analytics storage.AssessmentStore
	logger    *zap.Logger
}

func (t *teeAssessments) Insert(ctx context.Context, a *domain.SafetyAssessment) error {
	if err := t.AssessmentStore.Insert(ctx, a); err != nil {
		return err
	}
	if err := t.analytics.Insert(ctx, a); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		t.logger.Warn("analytics copy failed",
			zap.String("assessment_id", a.AssessmentID),
			zap.Error(err),
		)
	}
	return nil
}
