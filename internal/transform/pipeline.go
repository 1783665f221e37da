package transform

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Pipeline runs Scale then Expand. It never reorders the stages and holds no
// mutable state, so one Pipeline serves all requests.
type Pipeline struct {
	scaler *Scaler
	poly   *PolynomialExpander
}

// NewPipeline creates a pipeline over validated artifacts.
func NewPipeline(scaler *Scaler, poly *PolynomialExpander) *Pipeline {
	return &Pipeline{scaler: scaler, poly: poly}
}

// InputWidth is the vector width the scaler was fitted on.
func (p *Pipeline) InputWidth() int {
	return p.scaler.Width()
}

// OutputWidth is the expanded width.
func (p *Pipeline) OutputWidth() int {
	return p.poly.OutputWidth()
}

// Transform scales and expands one vector.
func (p *Pipeline) Transform(v []float64) ([]float64, error) {
	scaled, err := p.scaler.Transform(v)
	if err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}
	expanded, err := p.poly.Transform(scaled)
	if err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}
	return expanded, nil
}

// TransformBatch transforms rows into an n x OutputWidth matrix.
func (p *Pipeline) TransformBatch(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	out := mat.NewDense(len(rows), p.OutputWidth(), nil)
	for i, row := range rows {
		expanded, err := p.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out.SetRow(i, expanded)
	}
	return out, nil
}
