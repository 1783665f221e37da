package schema

import (
	"fmt"
	"os"

	"github.com/fidde/agripredict/pkg/models"
	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a schema.
type File struct {
	Columns     []string           `yaml:"columns"`
	Numeric     []NumericColumn    `yaml:"numeric"`
	Categorical []CategoricalField `yaml:"categorical"`
}

// Load reads a schema from a YAML file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing schema YAML: %w", err)
	}

	s, err := New(f.Columns, f.Numeric, f.Categorical)
	if err != nil {
		return nil, fmt.Errorf("building schema from %s: %w", path, err)
	}
	return s, nil
}

// DefaultNumeric returns the five direct numeric inputs and their ranges.
func DefaultNumeric() []NumericColumn {
	return []NumericColumn{
		{Name: "Rainfall", Field: models.FieldRainfall, Label: "Rainfall", Unit: "mm", Min: 0, Max: 200},
		{Name: "Temperature", Field: models.FieldTemperature, Label: "Temperature", Unit: "°C", Min: 10, Max: 45},
		{Name: "Arrival", Field: models.FieldArrival, Label: "Arrival", Unit: "Quintals", Min: 0, Max: 5000},
		{Name: "Humidity", Field: models.FieldHumidity, Label: "Humidity", Unit: "%", Min: 0, Max: 100},
		{Name: "Pesticide", Field: models.FieldPesticide, Label: "Pesticide used", Unit: "litres/ha", Min: 0, Max: 10},
	}
}

// DefaultCategorical returns the allow-lists and reference values.
func DefaultCategorical() []CategoricalField {
	return []CategoricalField{
		{
			Field:     models.FieldRegion,
			Prefix:    "Region",
			Reference: "Punjab",
			Allowed:   []string{"Punjab", "Maharashtra", "Tamil Nadu", "Bihar", "Karnataka", "Uttar Pradesh"},
		},
		{
			Field:     models.FieldCrop,
			Prefix:    "Crop",
			Reference: "Wheat",
			Allowed:   []string{"Wheat", "Onion", "Tomato", "Maize", "Potato", "Rice"},
		},
		{
			Field:     models.FieldVariety,
			Prefix:    "Variety",
			Reference: "Agrifound Dark Red",
			Allowed: []string{
				"HD-2967", "PBW-343", "WH-147",
				"Nashik Red", "Pusa Red", "Agrifound Dark Red",
				"Local Red", "Pusa Ruby", "Hybrid Tomato",
				"Hybrid-1", "PMH-1", "HQPM-1",
				"Kufri Jyoti", "Kufri Sindhuri", "Kufri Chandramukhi",
				"Basmati", "Pusa-1121", "Sona Masuri",
			},
		},
	}
}

// DefaultColumns is the column order artifacts must be fitted on to be used
// with the built-in schema. No artifacts ship with the module; the scaler's
// feature_names, when present, are checked against this order at load.
// Values allow-listed after fitting (Bihar, Maize and most varieties) have
// no indicator column.
func DefaultColumns() []string {
	return []string{
		"Rainfall", "Temperature", "Arrival", "Humidity", "Pesticide",
		"Region_Karnataka", "Region_Maharashtra", "Region_Tamil Nadu", "Region_Uttar Pradesh",
		"Crop_Onion", "Crop_Potato", "Crop_Rice", "Crop_Tomato",
		"Variety_HD-2967", "Variety_Hybrid-1", "Variety_Kufri Jyoti", "Variety_Local Red", "Variety_Nashik Red",
	}
}

// Default returns the built-in schema.
func Default() *Schema {
	s, err := New(DefaultColumns(), DefaultNumeric(), DefaultCategorical())
	if err != nil {
		panic(fmt.Sprintf("default schema is inconsistent: %v", err))
	}
	return s
}
