// Package storage defines the sinks that persist actual-price observations.
package storage

import (
	"context"

	"github.com/fidde/agripredict/pkg/models"
)

// Sink appends observations. Implementations must be safe for concurrent use
// and must serialize appends to any shared file or table themselves.
type Sink interface {
	// Append persists one observation. Failures are reported as
	// *models.PersistenceError naming the store that failed.
	Append(ctx context.Context, obs *models.Observation) error

	// Name identifies the sink in logs.
	Name() string

	// Close releases files or connections.
	Close() error
}

// Reader is implemented by sinks that can list stored observations.
type Reader interface {
	// ListObservations returns up to limit observations, newest first.
	ListObservations(ctx context.Context, limit int) ([]*models.Observation, error)
}
