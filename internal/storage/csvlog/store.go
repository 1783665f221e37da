package csvlog

import (
	"context"
	"errors"

	"github.com/fidde/agripredict/pkg/models"
)

// Store names used in persistence errors.
const (
	StoreTraining = "training corpus"
	StoreAudit    = "audit log"
)

// Default file locations.
const (
	DefaultTrainingPath = "./data/agri_crop_price_augmented_improved.csv"
	DefaultAuditPath    = "./data/actual_market_data_log.csv"
)

// Config locates the two CSV files.
type Config struct {
	TrainingPath string
	AuditPath    string
}

// DefaultConfig returns the default file locations.
func DefaultConfig() Config {
	return Config{
		TrainingPath: DefaultTrainingPath,
		AuditPath:    DefaultAuditPath,
	}
}

// Store writes each observation to the training corpus (no timestamp) and
// then to the audit log (timestamp first). The pair is not atomic: if the
// audit append fails the training row stays.
type Store struct {
	training *File
	audit    *File
}

// New creates a CSV store.
func New(cfg Config) (*Store, error) {
	if cfg.TrainingPath == "" || cfg.AuditPath == "" {
		return nil, errors.New("both training and audit paths are required")
	}
	if cfg.TrainingPath == cfg.AuditPath {
		return nil, errors.New("training and audit paths must differ")
	}
	return &Store{
		training: NewFile(cfg.TrainingPath, models.TrainingHeader),
		audit:    NewFile(cfg.AuditPath, models.AuditHeader),
	}, nil
}

// Append writes obs to both files.
func (s *Store) Append(ctx context.Context, obs *models.Observation) error {
	if err := ctx.Err(); err != nil {
		return &models.PersistenceError{Store: StoreTraining, Err: err}
	}
	if err := s.training.Append(obs.TrainingRecord()); err != nil {
		return &models.PersistenceError{Store: StoreTraining, Err: err}
	}
	if err := s.audit.Append(obs.AuditRecord()); err != nil {
		return &models.PersistenceError{Store: StoreAudit, Err: err}
	}
	return nil
}

// Name implements storage.Sink.
func (s *Store) Name() string {
	return "csv"
}

// Close implements storage.Sink. Files are opened per append, so there is
// nothing to release.
func (s *Store) Close() error {
	return nil
}
