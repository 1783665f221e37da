// Package models defines the request, observation and quote types exchanged
// between the transports, the prediction pipeline and the observation stores.
package models

import (
	"strconv"
	"time"
)

// Categorical field names as they appear on the wire.
const (
	FieldRegion  = "region"
	FieldCrop    = "crop"
	FieldVariety = "variety"
)

// Numeric field names as they appear on the wire.
const (
	FieldRainfall    = "rainfall"
	FieldTemperature = "temperature"
	FieldArrival     = "arrival"
	FieldHumidity    = "humidity"
	FieldPesticide   = "pesticide"
	FieldMinPrice    = "min_price"
	FieldMaxPrice    = "max_price"
	FieldModalPrice  = "modal_price"
)

// PredictionRequest is a validated prediction input. It is never mutated
// after validation.
type PredictionRequest struct {
	Region      string  `json:"region" db:"region"`
	Crop        string  `json:"crop" db:"crop"`
	Variety     string  `json:"variety" db:"variety"`
	Rainfall    float64 `json:"rainfall" db:"rainfall"`
	Temperature float64 `json:"temperature" db:"temperature"`
	Arrival     float64 `json:"arrival" db:"arrival"`
	Humidity    float64 `json:"humidity" db:"humidity"`
	Pesticide   float64 `json:"pesticide" db:"pesticide"`
}

// Categorical returns the categorical field values keyed by wire name.
func (r PredictionRequest) Categorical() map[string]string {
	return map[string]string{
		FieldRegion:  r.Region,
		FieldCrop:    r.Crop,
		FieldVariety: r.Variety,
	}
}

// PriceQuote is the pipeline output: three non-negative prices rounded to
// two decimals.
type PriceQuote struct {
	MinPrice   float64 `json:"min_price" db:"min_price"`
	MaxPrice   float64 `json:"max_price" db:"max_price"`
	ModalPrice float64 `json:"modal_price" db:"modal_price"`
}

// Ordered reports whether min <= modal <= max. A false result is a data
// quality signal since the three regressors are fitted independently.
func (q PriceQuote) Ordered() bool {
	return q.MinPrice <= q.ModalPrice && q.ModalPrice <= q.MaxPrice
}

// Observation is a validated ground-truth submission.
type Observation struct {
	ID         string    `json:"id" db:"id"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`

	PredictionRequest
	PriceQuote
}

// AuditTimeLayout is the timestamp layout used in the audit log.
const AuditTimeLayout = "2006-01-02 15:04:05"

// TrainingHeader is the header row of the training corpus.
var TrainingHeader = []string{
	"Region", "Crop", "Variety",
	"Rainfall", "Temperature", "Arrival", "Humidity", "Pesticide",
	"MinPrice", "MaxPrice", "ModalPrice",
}

// AuditHeader is the header row of the audit log.
var AuditHeader = append([]string{"Timestamp"}, TrainingHeader...)

// TrainingRecord renders the observation as a training corpus row.
func (o *Observation) TrainingRecord() []string {
	return []string{
		o.Region,
		o.Crop,
		o.Variety,
		formatFloat(o.Rainfall),
		formatFloat(o.Temperature),
		formatFloat(o.Arrival),
		formatFloat(o.Humidity),
		formatFloat(o.Pesticide),
		formatFloat(o.MinPrice),
		formatFloat(o.MaxPrice),
		formatFloat(o.ModalPrice),
	}
}

// AuditRecord renders the observation as an audit log row.
func (o *Observation) AuditRecord() []string {
	return append([]string{o.ReceivedAt.Format(AuditTimeLayout)}, o.TrainingRecord()...)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
