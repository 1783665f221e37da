// Package artifactstest writes small, deterministic artifact sets for tests.
package artifactstest

import (
	"testing"

	"github.com/fidde/agripredict/internal/artifacts"
	"github.com/fidde/agripredict/internal/predict"
	"github.com/fidde/agripredict/internal/transform"
)

// Options shapes the generated artifacts. The scaler is the identity, and
// each regressor is intercept + weight * x[0] over the expanded vector.
type Options struct {
	Width int

	MinIntercept   float64
	MaxIntercept   float64
	ModalIntercept float64
	Weight         float64

	// Skip names artifacts that are not written.
	Skip []string
}

// DefaultOptions returns options producing positive prices.
func DefaultOptions(width int) Options {
	return Options{
		Width:          width,
		MinIntercept:   1000,
		MaxIntercept:   1500,
		ModalIntercept: 1200,
		Weight:         2,
	}
}

// Build returns the artifact set described by o.
func Build(o Options) artifacts.Set {
	scaler := &transform.Scaler{
		Mean:  make([]float64, o.Width),
		Scale: make([]float64, o.Width),
	}
	for i := range scaler.Scale {
		scaler.Scale[i] = 1
	}

	expanded := o.Width + o.Width*(o.Width+1)/2
	regressor := func(target string, intercept float64) *predict.LinearRegressor {
		coef := make([]float64, expanded)
		coef[0] = o.Weight
		return &predict.LinearRegressor{Target: target, Coef: coef, Intercept: intercept}
	}

	set := artifacts.Set{
		Scaler:     scaler,
		Poly:       &transform.PolynomialExpander{NFeaturesIn: o.Width, Degree: 2},
		MinPrice:   regressor(artifacts.NameMinPrice, o.MinIntercept),
		MaxPrice:   regressor(artifacts.NameMaxPrice, o.MaxIntercept),
		ModalPrice: regressor(artifacts.NameModalPrice, o.ModalIntercept),
	}

	for _, name := range o.Skip {
		switch name {
		case artifacts.NameScaler:
			set.Scaler = nil
		case artifacts.NamePoly:
			set.Poly = nil
		case artifacts.NameMinPrice:
			set.MinPrice = nil
		case artifacts.NameMaxPrice:
			set.MaxPrice = nil
		case artifacts.NameModalPrice:
			set.ModalPrice = nil
		}
	}
	return set
}

// Write saves the set described by o under dir and returns its paths.
func Write(t testing.TB, dir string, o Options) artifacts.Paths {
	t.Helper()

	paths := artifacts.DefaultPaths(dir)
	if err := artifacts.Save(paths, Build(o)); err != nil {
		t.Fatalf("Failed to write artifacts: %v", err)
	}
	return paths
}
