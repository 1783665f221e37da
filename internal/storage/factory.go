package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fidde/agripredict/internal/storage/clickhouse"
	"github.com/fidde/agripredict/internal/storage/csvlog"
	"github.com/fidde/agripredict/internal/storage/dual"
	"github.com/fidde/agripredict/internal/storage/memory"
	"github.com/fidde/agripredict/internal/storage/sqlstore"
)

// Mirror backends.
const (
	MirrorNone       = "none"
	MirrorMemory     = "memory"
	MirrorSQLite     = "sqlite"
	MirrorPostgres   = "postgres"
	MirrorClickHouse = "clickhouse"
)

// Config holds storage configuration.
type Config struct {
	// CSV files are always the primary sink.
	CSV csvlog.Config

	// Mirror selects an optional secondary backend: none, memory, sqlite,
	// postgres or clickhouse.
	Mirror string

	// MirrorDSN is the SQL data source (sqlite path or postgres URL).
	MirrorDSN string

	// MemoryCapacity bounds the in-memory mirror.
	MemoryCapacity int

	// ClickHouse-specific config
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// OnMirrorError is called after a failed secondary write.
	OnMirrorError func(error)
}

// DefaultConfig returns default storage configuration.
func DefaultConfig() Config {
	return Config{
		CSV:                csvlog.DefaultConfig(),
		Mirror:             MirrorNone,
		MirrorDSN:          "./data/observations.db",
		MemoryCapacity:     memory.DefaultCapacity,
		ClickHouseAddr:     "localhost:9000",
		ClickHouseDatabase: "default",
		ClickHouseUsername: "default",
	}
}

// NewSink builds the CSV sink and wraps it with the configured mirror.
func NewSink(ctx context.Context, cfg Config, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	primary, err := csvlog.New(cfg.CSV)
	if err != nil {
		return nil, fmt.Errorf("creating csv sink: %w", err)
	}

	var secondary dual.Sink
	switch cfg.Mirror {
	case "", MirrorNone:
		logger.Info("Using csv storage",
			"training", cfg.CSV.TrainingPath,
			"audit", cfg.CSV.AuditPath,
		)
		return primary, nil

	case MirrorMemory:
		secondary = memory.New(cfg.MemoryCapacity)

	case MirrorSQLite, MirrorPostgres:
		store, err := sqlstore.New(ctx, sqlstore.Config{Driver: cfg.Mirror, DSN: cfg.MirrorDSN})
		if err != nil {
			return nil, fmt.Errorf("creating %s mirror: %w", cfg.Mirror, err)
		}
		secondary = store

	case MirrorClickHouse:
		chCfg := clickhouse.DefaultConfig()
		chCfg.Addr = cfg.ClickHouseAddr
		if cfg.ClickHouseDatabase != "" {
			chCfg.Database = cfg.ClickHouseDatabase
		}
		if cfg.ClickHouseUsername != "" {
			chCfg.Username = cfg.ClickHouseUsername
		}
		chCfg.Password = cfg.ClickHousePassword

		store, err := clickhouse.NewStore(ctx, chCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("creating clickhouse mirror: %w", err)
		}
		secondary = store

	default:
		return nil, fmt.Errorf("unknown mirror backend: %s", cfg.Mirror)
	}

	logger.Info("Using csv storage with mirror",
		"training", cfg.CSV.TrainingPath,
		"audit", cfg.CSV.AuditPath,
		"mirror", secondary.Name(),
	)

	return dual.New(dual.Config{
		Primary:          primary,
		Secondary:        secondary,
		Logger:           logger,
		OnSecondaryError: cfg.OnMirrorError,
	}), nil
}
