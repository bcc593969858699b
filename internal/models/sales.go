package models

import "time"

// SalesPoint represents total sales for one calendar date
type SalesPoint struct {
	Date  time.Time `json:"date"`
	Sales float64   `json:"sales"`
}

// ForecastPoint represents a predicted sales value for a future date
type ForecastPoint struct {
	Date           time.Time `json:"date"`
	PredictedSales float64   `json:"predicted_sales"`
	PredictionDate time.Time `json:"prediction_date"` // Last observed date of the batch
}

// ConfidenceRow represents one row of the SALES_CONFIDENCE_INTERVALS table
type ConfidenceRow struct {
	Date            time.Time `json:"date"`
	LowerBound      float64   `json:"lower_bound"`
	UpperBound      float64   `json:"upper_bound"`
	ConfidenceLevel float64   `json:"confidence_level"`
}

// CombinedRow represents a row of the history+forecast artifact.
// Historical rows carry Sales, forecast rows carry PredictedSales.
type CombinedRow struct {
	Date           time.Time `json:"Date" msgpack:"Date"`
	Sales          *float64  `json:"Sales" msgpack:"Sales"`
	PredictedSales *float64  `json:"predicted_sales" msgpack:"predicted_sales"`
	PredictionDate time.Time `json:"prediction_date" msgpack:"prediction_date"`
}
