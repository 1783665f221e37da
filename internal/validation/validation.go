// Package validation checks decoded request payloads against the schema
// allow-lists and numeric ranges.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fidde/agripredict/internal/schema"
	"github.com/fidde/agripredict/pkg/models"
)

const (
	msgMissing       = "Missing data for required field."
	msgNotString     = "Not a valid string."
	msgNotNumber     = "Not a valid number."
	msgUnknownField  = "Unknown field."
	msgNotFinite     = "Special numeric values (nan or infinity) are not permitted."
	msgPriceNegative = "%s must be non-negative."
)

var priceFields = []struct {
	field string
	label string
}{
	{models.FieldMinPrice, "Min price"},
	{models.FieldMaxPrice, "Max price"},
	{models.FieldModalPrice, "Modal price"},
}

// Validator validates prediction and observation payloads.
type Validator struct {
	schema *schema.Schema
}

// New creates a validator bound to a schema.
func New(s *schema.Schema) *Validator {
	return &Validator{schema: s}
}

// Prediction validates a prediction payload.
func (v *Validator) Prediction(payload map[string]any) (models.PredictionRequest, error) {
	verr := models.NewValidationError()
	req := v.request(payload, verr)
	v.rejectUnknown(payload, verr, false)

	if verr.HasErrors() {
		return models.PredictionRequest{}, verr
	}
	return req, nil
}

// Observation validates an actual-price submission. ID and ReceivedAt are
// left for the caller to assign.
func (v *Validator) Observation(payload map[string]any) (models.Observation, error) {
	verr := models.NewValidationError()
	req := v.request(payload, verr)

	prices := make(map[string]float64, len(priceFields))
	for _, p := range priceFields {
		val, ok := number(payload, p.field, verr)
		if !ok {
			continue
		}
		if val < 0 {
			verr.Add(p.field, fmt.Sprintf(msgPriceNegative, p.label))
			continue
		}
		prices[p.field] = val
	}
	v.rejectUnknown(payload, verr, true)

	if verr.HasErrors() {
		return models.Observation{}, verr
	}

	return models.Observation{
		PredictionRequest: req,
		PriceQuote: models.PriceQuote{
			MinPrice:   prices[models.FieldMinPrice],
			MaxPrice:   prices[models.FieldMaxPrice],
			ModalPrice: prices[models.FieldModalPrice],
		},
	}, nil
}

func (v *Validator) request(payload map[string]any, verr *models.ValidationError) models.PredictionRequest {
	var req models.PredictionRequest

	cats := map[string]*string{
		models.FieldRegion:  &req.Region,
		models.FieldCrop:    &req.Crop,
		models.FieldVariety: &req.Variety,
	}
	for _, c := range v.schema.Categorical() {
		val, ok := str(payload, c.Field, verr)
		if !ok {
			continue
		}
		if !v.schema.IsAllowed(c.Field, val) {
			verr.Add(c.Field, fmt.Sprintf("Invalid %s selected.", c.Field))
			continue
		}
		if dst, ok := cats[c.Field]; ok {
			*dst = val
		}
	}

	nums := map[string]*float64{
		models.FieldRainfall:    &req.Rainfall,
		models.FieldTemperature: &req.Temperature,
		models.FieldArrival:     &req.Arrival,
		models.FieldHumidity:    &req.Humidity,
		models.FieldPesticide:   &req.Pesticide,
	}
	for _, n := range v.schema.Numeric() {
		val, ok := number(payload, n.Field, verr)
		if !ok {
			continue
		}
		if !n.Contains(val) {
			verr.Add(n.Field, rangeMessage(n))
			continue
		}
		if dst, ok := nums[n.Field]; ok {
			*dst = val
		}
	}

	return req
}

func (v *Validator) rejectUnknown(payload map[string]any, verr *models.ValidationError, withPrices bool) {
	known := make(map[string]struct{})
	for _, c := range v.schema.Categorical() {
		known[c.Field] = struct{}{}
	}
	for _, n := range v.schema.Numeric() {
		known[n.Field] = struct{}{}
	}
	if withPrices {
		for _, p := range priceFields {
			known[p.field] = struct{}{}
		}
	}
	for key := range payload {
		if _, ok := known[key]; !ok {
			verr.Add(key, msgUnknownField)
		}
	}
}

func rangeMessage(n schema.NumericColumn) string {
	msg := fmt.Sprintf("%s must be between %g and %g", n.Label, n.Min, n.Max)
	if n.Unit != "" {
		msg += " " + n.Unit
	}
	return msg + "."
}

func str(payload map[string]any, field string, verr *models.ValidationError) (string, bool) {
	raw, ok := payload[field]
	if !ok || raw == nil {
		verr.Add(field, msgMissing)
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		verr.Add(field, msgNotString)
		return "", false
	}
	return s, true
}

// number accepts JSON numbers and numeric strings.
func number(payload map[string]any, field string, verr *models.ValidationError) (float64, bool) {
	raw, ok := payload[field]
	if !ok || raw == nil {
		verr.Add(field, msgMissing)
		return 0, false
	}

	var (
		val float64
		err error
	)
	switch x := raw.(type) {
	case json.Number:
		val, err = x.Float64()
	case float64:
		val = x
	case int:
		val = float64(x)
	case string:
		val, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		err = fmt.Errorf("unsupported type %T", raw)
	}
	if err != nil {
		verr.Add(field, msgNotNumber)
		return 0, false
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		verr.Add(field, msgNotFinite)
		return 0, false
	}
	return val, true
}
