// Package transform applies the fitted scaling and polynomial expansion
// stages, in that order, to feature vectors.
package transform

import (
	"fmt"
	"math"

	"github.com/fidde/agripredict/pkg/models"
	"gonum.org/v1/gonum/floats"
)

// Scaler is a fitted standard scaler: (x - mean) / scale per column.
type Scaler struct {
	FeatureNames []string  `json:"feature_names,omitempty"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
}

// Validate checks the fitted parameters. A zero scale (constant column at
// fit time) is replaced by 1.
func (s *Scaler) Validate() error {
	if len(s.Mean) == 0 {
		return fmt.Errorf("scaler has no fitted columns")
	}
	if len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("scaler mean has %d columns, scale has %d", len(s.Mean), len(s.Scale))
	}
	if len(s.FeatureNames) != 0 && len(s.FeatureNames) != len(s.Mean) {
		return fmt.Errorf("scaler lists %d feature names for %d columns", len(s.FeatureNames), len(s.Mean))
	}
	for i := range s.Scale {
		if math.IsNaN(s.Mean[i]) || math.IsInf(s.Mean[i], 0) {
			return fmt.Errorf("scaler mean[%d] is not finite", i)
		}
		if s.Scale[i] < 0 || math.IsNaN(s.Scale[i]) || math.IsInf(s.Scale[i], 0) {
			return fmt.Errorf("scaler scale[%d] = %v is invalid", i, s.Scale[i])
		}
		if s.Scale[i] == 0 {
			s.Scale[i] = 1
		}
	}
	return nil
}

// Width is the number of columns the scaler was fitted on.
func (s *Scaler) Width() int {
	return len(s.Mean)
}

// Transform returns the scaled copy of v.
func (s *Scaler) Transform(v []float64) ([]float64, error) {
	if len(v) != s.Width() {
		return nil, fmt.Errorf("%w: scaler expects %d columns, got %d", models.ErrArtifactMismatch, s.Width(), len(v))
	}
	out := make([]float64, len(v))
	floats.SubTo(out, v, s.Mean)
	floats.Div(out, s.Scale)
	return out, nil
}
