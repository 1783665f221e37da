// Package dual writes observations to a primary sink and mirrors them to a
// secondary one.
package dual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fidde/agripredict/pkg/models"
)

const secondaryTimeout = 15 * time.Second

// Sink is the subset of storage.Sink the dual store needs.
type Sink interface {
	Append(ctx context.Context, obs *models.Observation) error
	Name() string
	Close() error
}

type reader interface {
	ListObservations(ctx context.Context, limit int) ([]*models.Observation, error)
}

// ErrNoReader is returned by ListObservations when neither backend can list.
var ErrNoReader = errors.New("no queryable observation store configured")

// Store wraps two sinks.
// Writes go to both primary and secondary; the primary decides success.
// Reads come from whichever backend can list, primary first.
type Store struct {
	primary   Sink
	secondary Sink
	logger    *slog.Logger

	// OnSecondaryError is called after a failed mirror write.
	onSecondaryError func(error)

	wg sync.WaitGroup
}

// Config holds dual store configuration.
type Config struct {
	Primary          Sink
	Secondary        Sink
	Logger           *slog.Logger
	OnSecondaryError func(error)
}

// New creates a new dual-write store.
func New(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Store{
		primary:          cfg.Primary,
		secondary:        cfg.Secondary,
		logger:           cfg.Logger,
		onSecondaryError: cfg.OnSecondaryError,
	}
}

// Append writes to the primary, then mirrors to the secondary in the
// background. Errors from the secondary are logged but don't fail the call.
func (s *Store) Append(ctx context.Context, obs *models.Observation) error {
	if err := s.primary.Append(ctx, obs); err != nil {
		return err
	}

	// The request context ends with the response; the mirror write must not.
	mirrorCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(mirrorCtx, secondaryTimeout)
		defer cancel()

		if err := s.secondary.Append(ctx, obs); err != nil {
			s.logger.Error("dual-write to secondary failed",
				"secondary", s.secondary.Name(),
				"observation_id", obs.ID,
				"error", err,
			)
			if s.onSecondaryError != nil {
				s.onSecondaryError(err)
			}
		}
	}()

	return nil
}

// ListObservations reads from the primary if it can list, else the secondary.
func (s *Store) ListObservations(ctx context.Context, limit int) ([]*models.Observation, error) {
	if r, ok := s.primary.(reader); ok {
		return r.ListObservations(ctx, limit)
	}
	if r, ok := s.secondary.(reader); ok {
		return r.ListObservations(ctx, limit)
	}
	return nil, ErrNoReader
}

// Name implements storage.Sink.
func (s *Store) Name() string {
	return s.primary.Name() + "+" + s.secondary.Name()
}

// Flush waits for in-flight mirror writes.
func (s *Store) Flush() {
	s.wg.Wait()
}

// Close waits for in-flight mirror writes and closes both backends.
func (s *Store) Close() error {
	s.wg.Wait()

	var primaryErr, secondaryErr error

	primaryErr = s.primary.Close()
	secondaryErr = s.secondary.Close()

	if primaryErr != nil {
		return fmt.Errorf("close primary: %w", primaryErr)
	}
	if secondaryErr != nil {
		return fmt.Errorf("close secondary: %w", secondaryErr)
	}

	return nil
}
