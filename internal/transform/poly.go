package transform

import (
	"fmt"

	"github.com/fidde/agripredict/pkg/models"
)

// PolynomialExpander is a fitted degree-2 polynomial feature expansion
// without a bias column.
type PolynomialExpander struct {
	NFeaturesIn int     `json:"n_features_in"`
	Degree      int     `json:"degree"`
	IncludeBias bool    `json:"include_bias"`
	Powers      [][]int `json:"powers,omitempty"`

	terms []term
}

// term is one output column: x[a] for linear terms (b < 0), x[a]*x[b] otherwise.
type term struct {
	a, b int
}

// Validate checks the fitted parameters and compiles the output terms. When
// Powers is empty the canonical order is used: the linear terms, then x_i*x_j
// for i <= j in row-major order.
func (p *PolynomialExpander) Validate() error {
	if p.NFeaturesIn <= 0 {
		return fmt.Errorf("polynomial expander has n_features_in %d", p.NFeaturesIn)
	}
	if p.Degree != 2 {
		return fmt.Errorf("only degree 2 expansion is supported, got %d", p.Degree)
	}
	if p.IncludeBias {
		return fmt.Errorf("bias column is not supported")
	}

	if len(p.Powers) == 0 {
		p.Powers = CanonicalPowers(p.NFeaturesIn)
	}

	terms := make([]term, 0, len(p.Powers))
	for row, powers := range p.Powers {
		if len(powers) != p.NFeaturesIn {
			return fmt.Errorf("powers row %d has %d entries, want %d", row, len(powers), p.NFeaturesIn)
		}
		t := term{a: -1, b: -1}
		total := 0
		for col, pw := range powers {
			if pw < 0 || pw > 2 {
				return fmt.Errorf("powers row %d has exponent %d", row, pw)
			}
			total += pw
			for k := 0; k < pw; k++ {
				if t.a < 0 {
					t.a = col
				} else {
					t.b = col
				}
			}
		}
		if total < 1 || total > 2 {
			return fmt.Errorf("powers row %d has total degree %d", row, total)
		}
		terms = append(terms, t)
	}
	p.terms = terms
	return nil
}

// CanonicalPowers returns the degree-2, no-bias exponent matrix for n inputs.
func CanonicalPowers(n int) [][]int {
	powers := make([][]int, 0, n+n*(n+1)/2)
	for i := 0; i < n; i++ {
		row := make([]int, n)
		row[i] = 1
		powers = append(powers, row)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			row := make([]int, n)
			row[i]++
			row[j]++
			powers = append(powers, row)
		}
	}
	return powers
}

// Width is the number of input columns.
func (p *PolynomialExpander) Width() int {
	return p.NFeaturesIn
}

// OutputWidth is the number of expanded columns.
func (p *PolynomialExpander) OutputWidth() int {
	return len(p.terms)
}

// Transform returns the expanded copy of v.
func (p *PolynomialExpander) Transform(v []float64) ([]float64, error) {
	if len(v) != p.NFeaturesIn {
		return nil, fmt.Errorf("%w: polynomial expander expects %d columns, got %d", models.ErrArtifactMismatch, p.NFeaturesIn, len(v))
	}
	out := make([]float64, len(p.terms))
	for i, t := range p.terms {
		if t.b < 0 {
			out[i] = v[t.a]
		} else {
			out[i] = v[t.a] * v[t.b]
		}
	}
	return out, nil
}
