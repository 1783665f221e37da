// Package predict evaluates the three fitted price regressors and sanitizes
// their output.
package predict

import (
	"fmt"
	"math"

	"github.com/fidde/agripredict/pkg/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Regressor maps an expanded feature vector to a raw price.
type Regressor interface {
	Predict(x []float64) (float64, error)
	Width() int
}

// LinearRegressor is a fitted linear model over the expanded features.
type LinearRegressor struct {
	Target    string    `json:"target"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// Validate checks the fitted parameters.
func (r *LinearRegressor) Validate() error {
	if len(r.Coef) == 0 {
		return fmt.Errorf("regressor %q has no coefficients", r.Target)
	}
	for i, c := range r.Coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("regressor %q coef[%d] is not finite", r.Target, i)
		}
	}
	if math.IsNaN(r.Intercept) || math.IsInf(r.Intercept, 0) {
		return fmt.Errorf("regressor %q intercept is not finite", r.Target)
	}
	return nil
}

// Width is the expanded width the regressor was fitted on.
func (r *LinearRegressor) Width() int {
	return len(r.Coef)
}

// Predict returns coef . x + intercept.
func (r *LinearRegressor) Predict(x []float64) (float64, error) {
	if len(x) != len(r.Coef) {
		return 0, fmt.Errorf("%w: regressor %q expects %d columns, got %d", models.ErrArtifactMismatch, r.Target, len(r.Coef), len(x))
	}
	return floats.Dot(r.Coef, x) + r.Intercept, nil
}

// PredictBatch evaluates every row of x.
func (r *LinearRegressor) PredictBatch(x mat.Matrix) ([]float64, error) {
	rows, cols := x.Dims()
	if cols != len(r.Coef) {
		return nil, fmt.Errorf("%w: regressor %q expects %d columns, got %d", models.ErrArtifactMismatch, r.Target, len(r.Coef), cols)
	}
	var out mat.VecDense
	out.MulVec(x, mat.NewVecDense(len(r.Coef), r.Coef))
	result := make([]float64, rows)
	for i := range result {
		result[i] = out.AtVec(i) + r.Intercept
	}
	return result, nil
}
