package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/fidde/agripredict/pkg/models"
	"github.com/google/uuid"
)

const (
	maxInsertRetries = 3
	insertTimeout    = 10 * time.Second
)

// StoreName identifies the ClickHouse mirror in logs and errors.
const StoreName = "clickhouse"

// Store writes observations to ClickHouse. Each Append is sent as its own
// batch so the caller learns the outcome synchronously.
type Store struct {
	conn   driver.Conn
	logger *slog.Logger
}

// NewStore connects and creates the observations table.
func NewStore(ctx context.Context, config *ConnectionConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := Connect(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to ClickHouse: %w", err)
	}

	if err := InitializeSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Store{conn: conn, logger: logger}, nil
}

// Append inserts one observation, retrying transient failures.
func (s *Store) Append(ctx context.Context, obs *models.Observation) error {
	id, err := uuid.Parse(obs.ID)
	if err != nil {
		return &models.PersistenceError{Store: StoreName, Err: fmt.Errorf("observation id: %w", err)}
	}

	err = s.retryInsert(ctx, func(ctx context.Context) error {
		batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO observations")
		if err != nil {
			return err
		}
		err = batch.Append(
			id,
			obs.ReceivedAt.UTC(),
			obs.Region,
			obs.Crop,
			obs.Variety,
			obs.Rainfall,
			obs.Temperature,
			obs.Arrival,
			obs.Humidity,
			obs.Pesticide,
			obs.MinPrice,
			obs.MaxPrice,
			obs.ModalPrice,
		)
		if err != nil {
			batch.Abort()
			return err
		}
		return batch.Send()
	})
	if err != nil {
		return &models.PersistenceError{Store: StoreName, Err: err}
	}
	return nil
}

func (s *Store) retryInsert(ctx context.Context, fn func(context.Context) error) error {
	var err error
	retryDelay := 100 * time.Millisecond

	for attempt := 1; attempt <= maxInsertRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, insertTimeout)
		err = fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}

		if attempt < maxInsertRetries {
			s.logger.Debug("retrying clickhouse insert", "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
				retryDelay *= 2
			}
		}
	}

	return fmt.Errorf("insert failed after %d attempts: %w", maxInsertRetries, err)
}

// ListObservations returns up to limit observations, newest first.
func (s *Store) ListObservations(ctx context.Context, limit int) ([]*models.Observation, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			id, received_at, region, crop, variety,
			rainfall, temperature, arrival, humidity, pesticide,
			min_price, max_price, modal_price
		FROM observations
		ORDER BY received_at DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}
	defer rows.Close()

	var out []*models.Observation
	for rows.Next() {
		var (
			id  uuid.UUID
			obs models.Observation
		)
		err := rows.Scan(
			&id,
			&obs.ReceivedAt,
			&obs.Region,
			&obs.Crop,
			&obs.Variety,
			&obs.Rainfall,
			&obs.Temperature,
			&obs.Arrival,
			&obs.Humidity,
			&obs.Pesticide,
			&obs.MinPrice,
			&obs.MaxPrice,
			&obs.ModalPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning observation: %w", err)
		}
		obs.ID = id.String()
		out = append(out, &obs)
	}

	return out, rows.Err()
}

// Name implements storage.Sink.
func (s *Store) Name() string {
	return StoreName
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
