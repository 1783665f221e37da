package predict

import (
	"fmt"
	"math"

	"github.com/fidde/agripredict/pkg/models"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// BatchRegressor is a Regressor that can evaluate many rows at once.
type BatchRegressor interface {
	Regressor
	PredictBatch(x mat.Matrix) ([]float64, error)
}

// integralAbove is the magnitude from which every float64 is a whole number,
// so rounding to cents is a no-op and scaling by 100 could overflow.
const integralAbove = 1 << 53

// Aggregator runs the min, max and modal regressors over one expanded
// vector. The regressors share no state and are evaluated concurrently.
type Aggregator struct {
	min   Regressor
	max   Regressor
	modal Regressor
}

// NewAggregator creates an aggregator.
func NewAggregator(min, max, modal Regressor) *Aggregator {
	return &Aggregator{min: min, max: max, modal: modal}
}

// Predict evaluates all three regressors and returns sanitized prices.
func (a *Aggregator) Predict(x []float64) (models.PriceQuote, error) {
	var (
		quote models.PriceQuote
		g     errgroup.Group
	)

	run := func(name string, r Regressor, dst *float64) {
		g.Go(func() error {
			raw, err := r.Predict(x)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			price, err := Sanitize(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = price
			return nil
		})
	}

	run("min_price", a.min, &quote.MinPrice)
	run("max_price", a.max, &quote.MaxPrice)
	run("modal_price", a.modal, &quote.ModalPrice)

	if err := g.Wait(); err != nil {
		return models.PriceQuote{}, err
	}
	return quote, nil
}

// Sanitize clamps a raw prediction to a floor of zero and rounds it to two
// decimals. Non-finite values are rejected rather than clamped.
func Sanitize(raw float64) (float64, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("%w: %v", models.ErrNonFinitePrediction, raw)
	}
	price := math.Max(0, raw)
	if price < integralAbove {
		price = math.Round(price*100) / 100
	}
	return price, nil
}

// PredictBatch evaluates every row of x and returns one sanitized quote per
// row. Regressors without a batch path are evaluated row by row.
func (a *Aggregator) PredictBatch(x mat.Matrix) ([]models.PriceQuote, error) {
	rows, _ := x.Dims()
	quotes := make([]models.PriceQuote, rows)

	var g errgroup.Group
	run := func(name string, r Regressor, set func(q *models.PriceQuote, v float64)) {
		g.Go(func() error {
			raw, err := predictRows(r, x)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			for i, v := range raw {
				price, err := Sanitize(v)
				if err != nil {
					return fmt.Errorf("%s row %d: %w", name, i, err)
				}
				set(&quotes[i], price)
			}
			return nil
		})
	}

	run("min_price", a.min, func(q *models.PriceQuote, v float64) { q.MinPrice = v })
	run("max_price", a.max, func(q *models.PriceQuote, v float64) { q.MaxPrice = v })
	run("modal_price", a.modal, func(q *models.PriceQuote, v float64) { q.ModalPrice = v })

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}

func predictRows(r Regressor, x mat.Matrix) ([]float64, error) {
	if br, ok := r.(BatchRegressor); ok {
		return br.PredictBatch(x)
	}
	rows, cols := x.Dims()
	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := range out {
		mat.Row(row, i, x)
		v, err := r.Predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
