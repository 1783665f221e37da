// Package sqlstore mirrors observations into a SQL table, either SQLite
// (modernc.org/sqlite) or PostgreSQL (lib/pq), through sqlx.
package sqlstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fidde/agripredict/pkg/models"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_observations.up.sql
var migrationSQL string

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// timeLayout is fixed-width so received_at sorts lexically in both engines.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config selects the driver and data source.
type Config struct {
	Driver string
	DSN    string
}

// Store writes observations to the observations table.
type Store struct {
	db     *sqlx.DB
	driver string
}

// row is the table layout. received_at is stored as UTC text.
type row struct {
	ID         string `db:"id"`
	ReceivedAt string `db:"received_at"`

	models.PredictionRequest
	models.PriceQuote
}

// New opens the database and runs migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, errors.New("sql dsn is required")
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// A single connection keeps writes serialized and pragmas in effect.
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA busy_timeout=5000",
		}
		for _, pragma := range pragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("setting pragma: %w", err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Driver, err)
	}

	for _, stmt := range statements(migrationSQL) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return &Store{db: db, driver: cfg.Driver}, nil
}

func statements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Append inserts one observation.
func (s *Store) Append(ctx context.Context, obs *models.Observation) error {
	r := row{
		ID:                obs.ID,
		ReceivedAt:        obs.ReceivedAt.UTC().Format(timeLayout),
		PredictionRequest: obs.PredictionRequest,
		PriceQuote:        obs.PriceQuote,
	}

	const query = `
		INSERT INTO observations (
			id, received_at, region, crop, variety,
			rainfall, temperature, arrival, humidity, pesticide,
			min_price, max_price, modal_price
		) VALUES (
			:id, :received_at, :region, :crop, :variety,
			:rainfall, :temperature, :arrival, :humidity, :pesticide,
			:min_price, :max_price, :modal_price
		)`

	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return &models.PersistenceError{Store: s.Name(), Err: err}
	}
	return nil
}

// ListObservations returns up to limit observations, newest first.
func (s *Store) ListObservations(ctx context.Context, limit int) ([]*models.Observation, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.db.Rebind(`
		SELECT id, received_at, region, crop, variety,
		       rainfall, temperature, arrival, humidity, pesticide,
		       min_price, max_price, modal_price
		FROM observations
		ORDER BY received_at DESC
		LIMIT ?`)

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}

	out := make([]*models.Observation, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(timeLayout, r.ReceivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing received_at for %s: %w", r.ID, err)
		}
		out = append(out, &models.Observation{
			ID:                r.ID,
			ReceivedAt:        ts,
			PredictionRequest: r.PredictionRequest,
			PriceQuote:        r.PriceQuote,
		})
	}
	return out, nil
}

// Name implements storage.Sink.
func (s *Store) Name() string {
	return s.driver
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
