package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const schemaVersion = "1.0.0"

// InitializeSchema creates the observations table if it doesn't exist
func InitializeSchema(ctx context.Context, conn driver.Conn) error {
	if err := conn.Exec(ctx, schemaVersionTableDDL); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	currentVersion, err := getCurrentSchemaVersion(ctx, conn)
	if err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	if currentVersion != "" && currentVersion != schemaVersion {
		return fmt.Errorf("schema version mismatch: database has %s, code expects %s", currentVersion, schemaVersion)
	}

	if err := conn.Exec(ctx, observationsTableDDL); err != nil {
		return fmt.Errorf("creating table observations: %w", err)
	}

	if currentVersion == "" {
		if err := conn.Exec(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("setting schema version: %w", err)
		}
	}

	return nil
}

func getCurrentSchemaVersion(ctx context.Context, conn driver.Conn) (string, error) {
	var version string
	row := conn.QueryRow(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1")
	if err := row.Scan(&version); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	return version, nil
}

const schemaVersionTableDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version String,
    applied_at DateTime64(3) DEFAULT now64(3)
) ENGINE = MergeTree()
ORDER BY applied_at
`

const observationsTableDDL = `
CREATE TABLE IF NOT EXISTS observations (
    id UUID,
    received_at DateTime64(3, 'UTC'),

    -- Categorical inputs
    region LowCardinality(String),
    crop LowCardinality(String),
    variety LowCardinality(String),

    -- Numeric inputs
    rainfall Float64,
    temperature Float64,
    arrival Float64,
    humidity Float64,
    pesticide Float64,

    -- Observed prices
    min_price Float64,
    max_price Float64,
    modal_price Float64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(received_at)
ORDER BY (region, crop, variety, received_at)
SETTINGS index_granularity = 8192
`
