// Package artifacts loads the fitted scaler, polynomial expander and the
// three price regressors, and gates prediction on all five being present.
package artifacts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fidde/agripredict/internal/predict"
	"github.com/fidde/agripredict/internal/schema"
	"github.com/fidde/agripredict/internal/transform"
	"github.com/fidde/agripredict/pkg/models"
)

// Artifact names, also used as status keys and metric labels.
const (
	NameScaler     = "scaler"
	NamePoly       = "poly_features"
	NameMinPrice   = "min_price"
	NameMaxPrice   = "max_price"
	NameModalPrice = "modal_price"
)

// Names lists the artifacts in load order.
var Names = []string{NameScaler, NamePoly, NameMinPrice, NameMaxPrice, NameModalPrice}

// Paths locates the five artifact files.
type Paths struct {
	Scaler     string `yaml:"scaler"`
	Poly       string `yaml:"poly_features"`
	MinPrice   string `yaml:"min_price"`
	MaxPrice   string `yaml:"max_price"`
	ModalPrice string `yaml:"modal_price"`
}

// DefaultPaths returns the conventional file names under dir.
func DefaultPaths(dir string) Paths {
	return Paths{
		Scaler:     filepath.Join(dir, "scaler.json"),
		Poly:       filepath.Join(dir, "poly_features.json"),
		MinPrice:   filepath.Join(dir, "min_price.json"),
		MaxPrice:   filepath.Join(dir, "max_price.json"),
		ModalPrice: filepath.Join(dir, "modal_price.json"),
	}
}

func (p Paths) byName() map[string]string {
	return map[string]string{
		NameScaler:     p.Scaler,
		NamePoly:       p.Poly,
		NameMinPrice:   p.MinPrice,
		NameMaxPrice:   p.MaxPrice,
		NameModalPrice: p.ModalPrice,
	}
}

// Status is the load outcome of one artifact.
type Status struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Loaded  bool   `json:"loaded"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// Bundle is an immutable set of loaded artifacts. Slots whose artifact
// failed to load stay nil and the bundle reports not ready.
type Bundle struct {
	scaler *transform.Scaler
	poly   *transform.PolynomialExpander
	min    *predict.LinearRegressor
	max    *predict.LinearRegressor
	modal  *predict.LinearRegressor

	pipeline   *transform.Pipeline
	aggregator *predict.Aggregator

	statuses []Status
	loadedAt time.Time
}

// Ready reports whether all five artifacts loaded.
func (b *Bundle) Ready() bool {
	return b.pipeline != nil && b.aggregator != nil
}

// Statuses returns per-artifact load outcomes in load order.
func (b *Bundle) Statuses() []Status {
	return slices.Clone(b.statuses)
}

// LoadedAt is when the bundle was loaded.
func (b *Bundle) LoadedAt() time.Time {
	return b.loadedAt
}

// Predictor returns the transform pipeline and aggregator, or
// models.ErrPipelineNotReady if any artifact is missing.
func (b *Bundle) Predictor() (*transform.Pipeline, *predict.Aggregator, error) {
	if !b.Ready() {
		return nil, nil, models.ErrPipelineNotReady
	}
	return b.pipeline, b.aggregator, nil
}

// Load attempts every artifact independently. It never fails; failures are
// logged and recorded in the bundle statuses. When s is non-nil the scaler's
// feature names are compared against the schema columns and any drift is
// reported as a warning.
func Load(paths Paths, s *schema.Schema, logger *slog.Logger) *Bundle {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bundle{loadedAt: time.Now()}
	files := paths.byName()

	load := func(name string, dst interface{ Validate() error }) bool {
		status := Status{Name: name, Path: files[name]}
		err := readJSON(files[name], dst)
		if err == nil {
			err = dst.Validate()
		}
		if err != nil {
			status.Error = err.Error()
			logger.Error("failed to load artifact",
				"artifact", name,
				"path", files[name],
				"error", err,
			)
		} else {
			status.Loaded = true
		}
		b.statuses = append(b.statuses, status)
		return err == nil
	}

	scaler := &transform.Scaler{}
	if load(NameScaler, scaler) {
		b.scaler = scaler
		if warning := schemaDrift(scaler, s); warning != "" {
			b.statuses[len(b.statuses)-1].Warning = warning
			logger.Warn("scaler features differ from schema", "detail", warning)
		}
	}
	poly := &transform.PolynomialExpander{}
	if load(NamePoly, poly) {
		b.poly = poly
	}
	minR := &predict.LinearRegressor{}
	if load(NameMinPrice, minR) {
		b.min = minR
	}
	maxR := &predict.LinearRegressor{}
	if load(NameMaxPrice, maxR) {
		b.max = maxR
	}
	modalR := &predict.LinearRegressor{}
	if load(NameModalPrice, modalR) {
		b.modal = modalR
	}

	if b.scaler != nil && b.poly != nil && b.min != nil && b.max != nil && b.modal != nil {
		b.pipeline = transform.NewPipeline(b.scaler, b.poly)
		b.aggregator = predict.NewAggregator(b.min, b.max, b.modal)
		logger.Info("prediction artifacts loaded",
			"input_width", b.pipeline.InputWidth(),
			"expanded_width", b.pipeline.OutputWidth(),
		)
	} else {
		logger.Warn("prediction pipeline not ready; predictions will be refused")
	}

	return b
}

func schemaDrift(scaler *transform.Scaler, s *schema.Schema) string {
	if s == nil || len(scaler.FeatureNames) == 0 {
		return ""
	}
	cols := s.Columns()
	if len(cols) != len(scaler.FeatureNames) {
		return fmt.Sprintf("scaler fitted on %d features, schema has %d columns", len(scaler.FeatureNames), len(cols))
	}
	for i := range cols {
		if cols[i] != scaler.FeatureNames[i] {
			return fmt.Sprintf("column %d is %q in schema but %q in scaler", i, cols[i], scaler.FeatureNames[i])
		}
	}
	return ""
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding artifact: %w", err)
	}
	return nil
}

// Set groups the five artifacts for Save.
type Set struct {
	Scaler     *transform.Scaler
	Poly       *transform.PolynomialExpander
	MinPrice   *predict.LinearRegressor
	MaxPrice   *predict.LinearRegressor
	ModalPrice *predict.LinearRegressor
}

// Save writes a set of artifacts as JSON. Nil members are skipped.
func Save(paths Paths, set Set) error {
	items := []struct {
		path string
		v    any
		skip bool
	}{
		{paths.Scaler, set.Scaler, set.Scaler == nil},
		{paths.Poly, set.Poly, set.Poly == nil},
		{paths.MinPrice, set.MinPrice, set.MinPrice == nil},
		{paths.MaxPrice, set.MaxPrice, set.MaxPrice == nil},
		{paths.ModalPrice, set.ModalPrice, set.ModalPrice == nil},
	}
	for _, it := range items {
		if it.skip {
			continue
		}
		data, err := json.MarshalIndent(it.v, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding %s: %w", it.path, err)
		}
		if err := os.MkdirAll(filepath.Dir(it.path), 0755); err != nil {
			return fmt.Errorf("creating artifact directory: %w", err)
		}
		if err := os.WriteFile(it.path, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", it.path, err)
		}
	}
	return nil
}
