package features

import (
	"github.com/fidde/agripredict/internal/schema"
	"github.com/fidde/agripredict/pkg/models"
)

// Samples returns requests covering every indicator column once: a base row
// with every categorical field at its reference, then one row per mapped
// value with the other fields left at their references. Numeric inputs sit
// at the midpoint of their ranges.
func Samples(s *schema.Schema) []models.PredictionRequest {
	var base models.PredictionRequest
	for _, n := range s.Numeric() {
		setNumeric(&base, n.Field, (n.Min+n.Max)/2)
	}
	for _, c := range s.Categorical() {
		setCategorical(&base, c.Field, c.Reference)
	}

	out := []models.PredictionRequest{base}
	for _, c := range s.Categorical() {
		for _, v := range c.Allowed {
			if _, ok := s.ColumnName(c.Field, v); !ok {
				continue
			}
			req := base
			setCategorical(&req, c.Field, v)
			out = append(out, req)
		}
	}
	return out
}

func setNumeric(req *models.PredictionRequest, field string, v float64) {
	switch field {
	case models.FieldRainfall:
		req.Rainfall = v
	case models.FieldTemperature:
		req.Temperature = v
	case models.FieldArrival:
		req.Arrival = v
	case models.FieldHumidity:
		req.Humidity = v
	case models.FieldPesticide:
		req.Pesticide = v
	}
}

func setCategorical(req *models.PredictionRequest, field, v string) {
	switch field {
	case models.FieldRegion:
		req.Region = v
	case models.FieldCrop:
		req.Crop = v
	case models.FieldVariety:
		req.Variety = v
	}
}
