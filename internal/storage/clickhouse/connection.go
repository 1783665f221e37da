// Package clickhouse mirrors observations into a ClickHouse MergeTree table.
package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Submissions arrive one at a time, so a small pool is enough.
const (
	defaultMaxOpenConns = 5
	defaultMaxIdleConns = 2
	defaultDialTimeout  = 10 * time.Second
	defaultMaxRetries   = 3
	defaultRetryDelay   = time.Second
	queryTimeoutSeconds = 30
)

// ConnectionConfig holds ClickHouse connection parameters.
type ConnectionConfig struct {
	Addr         string
	Database     string
	Username     string
	Password     string
	MaxOpenConns int
	MaxIdleConns int
	DialTimeout  time.Duration
	TLS          *tls.Config

	// MaxRetries bounds connection attempts; the delay doubles after each.
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns a connection config for a local server.
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Addr:         "localhost:9000",
		Database:     "default",
		Username:     "default",
		MaxOpenConns: defaultMaxOpenConns,
		MaxIdleConns: defaultMaxIdleConns,
		DialTimeout:  defaultDialTimeout,
		MaxRetries:   defaultMaxRetries,
		RetryDelay:   defaultRetryDelay,
	}
}

func (c *ConnectionConfig) options() *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{c.Addr},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": queryTimeoutSeconds,
		},
		DialTimeout:      c.DialTimeout,
		MaxOpenConns:     c.MaxOpenConns,
		MaxIdleConns:     c.MaxIdleConns,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		TLS:              c.TLS,
	}
}

// Connect opens a pool and pings it, retrying with backoff until the server
// answers or the attempts run out.
func Connect(ctx context.Context, config *ConnectionConfig) (driver.Conn, error) {
	if config == nil {
		config = DefaultConfig()
	}
	opts := config.options()

	return dialWithBackoff(ctx, config.MaxRetries, config.RetryDelay, func() (driver.Conn, error) {
		conn, err := clickhouse.Open(opts)
		if err != nil {
			return nil, err
		}
		if err := conn.Ping(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	})
}

func dialWithBackoff(ctx context.Context, attempts int, delay time.Duration, dial func() (driver.Conn, error)) (driver.Conn, error) {
	attempts = max(attempts, 1)
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := dial()
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return nil, fmt.Errorf("ClickHouse unreachable at %d attempts: %w", attempts, lastErr)
}
