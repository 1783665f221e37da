// Package features turns validated requests into the fixed-order numeric
// vectors the fitted artifacts expect.
package features

import (
	"fmt"
	"log/slog"

	"github.com/fidde/agripredict/internal/schema"
	"github.com/fidde/agripredict/pkg/models"
)

// Policy decides what happens to a validated categorical value that has no
// indicator column.
type Policy string

const (
	// PolicyDegrade leaves the field's indicators at zero and logs a warning.
	PolicyDegrade Policy = "degrade"
	// PolicyReject fails the request with models.ErrUnmappedCategory.
	PolicyReject Policy = "reject"
)

// ParsePolicy parses a policy name. Empty means degrade.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyDegrade:
		return PolicyDegrade, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown unmapped category policy %q (supported: degrade, reject)", s)
	}
}

// Vector is one dense row in schema column order.
type Vector []float64

// Unmapped records a categorical value encoded as all zeros because the
// schema has no column for it.
type Unmapped struct {
	Field string
	Value string
}

// Builder builds vectors against a schema. It holds no per-request state.
type Builder struct {
	schema     *schema.Schema
	policy     Policy
	logger     *slog.Logger
	onUnmapped func(Unmapped)
}

// Option configures a Builder.
type Option func(*Builder)

// WithPolicy sets the unmapped category policy.
func WithPolicy(p Policy) Option {
	return func(b *Builder) { b.policy = p }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithUnmappedHook registers a callback invoked for every unmapped value.
func WithUnmappedHook(fn func(Unmapped)) Option {
	return func(b *Builder) { b.onUnmapped = fn }
}

// NewBuilder creates a builder.
func NewBuilder(s *schema.Schema, opts ...Option) *Builder {
	b := &Builder{
		schema: s,
		policy: PolicyDegrade,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Schema returns the schema the builder writes against.
func (b *Builder) Schema() *schema.Schema {
	return b.schema
}

// Policy returns the active unmapped category policy.
func (b *Builder) Policy() Policy {
	return b.policy
}

// Build writes req into a fresh zero vector. Positions are looked up by
// column name, so the result follows schema order regardless of the order
// fields are visited in.
func (b *Builder) Build(req models.PredictionRequest) (Vector, []Unmapped, error) {
	vec := make(Vector, b.schema.Width())

	for _, n := range b.schema.Numeric() {
		val, ok := numericValue(req, n.Field)
		if !ok {
			return nil, nil, fmt.Errorf("no request value for numeric column %s (field %s)", n.Name, n.Field)
		}
		idx, _ := b.schema.Index(n.Name)
		vec[idx] = val
	}

	values := req.Categorical()
	var unmapped []Unmapped
	for _, c := range b.schema.Categorical() {
		value, ok := values[c.Field]
		if !ok {
			return nil, nil, fmt.Errorf("no request value for categorical field %s", c.Field)
		}

		if col, ok := b.schema.ColumnName(c.Field, value); ok {
			idx, _ := b.schema.Index(col)
			vec[idx] = 1
			continue
		}
		if b.schema.IsReference(c.Field, value) {
			continue
		}

		u := Unmapped{Field: c.Field, Value: value}
		if b.onUnmapped != nil {
			b.onUnmapped(u)
		}
		if b.policy == PolicyReject {
			return nil, nil, &models.UnmappedCategoryError{Field: c.Field, Value: value}
		}
		b.logger.Warn("categorical value not found in model features",
			"field", c.Field,
			"value", value,
			"column", c.ColumnFor(value),
		)
		unmapped = append(unmapped, u)
	}

	return vec, unmapped, nil
}

func numericValue(req models.PredictionRequest, field string) (float64, bool) {
	switch field {
	case models.FieldRainfall:
		return req.Rainfall, true
	case models.FieldTemperature:
		return req.Temperature, true
	case models.FieldArrival:
		return req.Arrival, true
	case models.FieldHumidity:
		return req.Humidity, true
	case models.FieldPesticide:
		return req.Pesticide, true
	default:
		return 0, false
	}
}
