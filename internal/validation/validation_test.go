package validation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/fidde/agripredict/internal/schema"
	"github.com/fidde/agripredict/pkg/models"
)

func validPayload() map[string]any {
	return map[string]any{
		"region":      "Punjab",
		"crop":        "Wheat",
		"variety":     "HD-2967",
		"rainfall":    50.0,
		"temperature": 25.0,
		"arrival":     100.0,
		"humidity":    60.0,
		"pesticide":   2.0,
	}
}

func decode(t *testing.T, body string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	return payload
}

func TestPredictionValid(t *testing.T) {
	v := New(schema.Default())

	req, err := v.Prediction(validPayload())
	if err != nil {
		t.Fatalf("Prediction failed: %v", err)
	}

	want := models.PredictionRequest{
		Region: "Punjab", Crop: "Wheat", Variety: "HD-2967",
		Rainfall: 50, Temperature: 25, Arrival: 100, Humidity: 60, Pesticide: 2,
	}
	if req != want {
		t.Errorf("Got %+v, want %+v", req, want)
	}
}

func TestPredictionAcceptsJSONNumbersAndNumericStrings(t *testing.T) {
	v := New(schema.Default())

	payload := decode(t, `{"region":"Bihar","crop":"Maize","variety":"PMH-1",
		"rainfall":"120.5","temperature":45,"arrival":0,"humidity":"100","pesticide":10}`)

	req, err := v.Prediction(payload)
	if err != nil {
		t.Fatalf("Prediction failed: %v", err)
	}
	if req.Rainfall != 120.5 || req.Humidity != 100 || req.Pesticide != 10 {
		t.Errorf("Unexpected numeric values: %+v", req)
	}
}

func TestPredictionMissingRegion(t *testing.T) {
	v := New(schema.Default())

	payload := validPayload()
	delete(payload, "region")

	_, err := v.Prediction(payload)

	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	msgs, ok := verr.Fields["region"]
	if !ok {
		t.Fatalf("Expected region to be reported, got %v", verr.Fields)
	}
	if msgs[0] != "Missing data for required field." {
		t.Errorf("Unexpected message: %s", msgs[0])
	}
	if len(verr.Fields) != 1 {
		t.Errorf("Expected only region to fail, got %v", verr.FieldNames())
	}
}

func TestPredictionInvalidFields(t *testing.T) {
	v := New(schema.Default())

	tests := []struct {
		name    string
		field   string
		value   any
		message string
	}{
		{"region not allowed", "region", "Kerala", "Invalid region selected."},
		{"crop not a string", "crop", 12.0, "Not a valid string."},
		{"variety not allowed", "variety", "Golden", "Invalid variety selected."},
		{"rainfall above range", "rainfall", 200.01, "Rainfall must be between 0 and 200 mm."},
		{"temperature below range", "temperature", 9.99, "Temperature must be between 10 and 45 °C."},
		{"arrival negative", "arrival", -1.0, "Arrival must be between 0 and 5000 Quintals."},
		{"humidity above range", "humidity", 101.0, "Humidity must be between 0 and 100 %."},
		{"pesticide above range", "pesticide", 11.0, "Pesticide used must be between 0 and 10 litres/ha."},
		{"rainfall not numeric", "rainfall", "lots", "Not a valid number."},
		{"rainfall nan", "rainfall", "NaN", "Special numeric values (nan or infinity) are not permitted."},
		{"extra field", "soil", "clay", "Unknown field."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := validPayload()
			payload[tt.field] = tt.value

			_, err := v.Prediction(payload)

			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if got := verr.Fields[tt.field]; len(got) != 1 || got[0] != tt.message {
				t.Errorf("Field %s: got %v, want [%s]", tt.field, got, tt.message)
			}
		})
	}
}

func TestPredictionRangeBoundsInclusive(t *testing.T) {
	v := New(schema.Default())

	payload := validPayload()
	payload["rainfall"] = 0.0
	payload["temperature"] = 45.0
	payload["arrival"] = 5000.0
	payload["humidity"] = 0.0
	payload["pesticide"] = 10.0

	if _, err := v.Prediction(payload); err != nil {
		t.Errorf("Boundary values should be accepted: %v", err)
	}
}

func TestPredictionRejectsPriceFields(t *testing.T) {
	v := New(schema.Default())

	payload := validPayload()
	payload["min_price"] = 10.0

	if _, err := v.Prediction(payload); err == nil {
		t.Error("Expected price fields to be rejected on prediction")
	}
}

func TestObservation(t *testing.T) {
	v := New(schema.Default())

	payload := validPayload()
	payload["min_price"] = 1800.0
	payload["max_price"] = 2200.0
	payload["modal_price"] = 2000.0

	obs, err := v.Observation(payload)
	if err != nil {
		t.Fatalf("Observation failed: %v", err)
	}
	if obs.MinPrice != 1800 || obs.MaxPrice != 2200 || obs.ModalPrice != 2000 {
		t.Errorf("Unexpected prices: %+v", obs.PriceQuote)
	}
	if obs.Variety != "HD-2967" {
		t.Errorf("Unexpected variety: %s", obs.Variety)
	}
}

func TestObservationPriceErrors(t *testing.T) {
	v := New(schema.Default())

	payload := validPayload()
	payload["min_price"] = -1.0
	payload["modal_price"] = 0.0

	_, err := v.Observation(payload)

	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if got := verr.Fields["min_price"]; len(got) != 1 || got[0] != "Min price must be non-negative." {
		t.Errorf("Unexpected min_price messages: %v", got)
	}
	if got := verr.Fields["max_price"]; len(got) != 1 || got[0] != "Missing data for required field." {
		t.Errorf("Unexpected max_price messages: %v", got)
	}
	if _, ok := verr.Fields["modal_price"]; ok {
		t.Error("Zero modal price should be accepted")
	}
}
