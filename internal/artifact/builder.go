// Package artifact builds the combined history+forecast table and the
// long-format confidence interval table, and persists the former.
package artifact

import (
	"fmt"
	"time"

	"github.com/Dan9191/sales-forecast/internal/forecast"
	"github.com/Dan9191/sales-forecast/internal/models"
)

// BuildForecast pairs point predictions with their future dates
func BuildForecast(dates []time.Time, predicted []float64, predictionDate time.Time) ([]models.ForecastPoint, error) {
	if len(dates) != len(predicted) {
		return nil, fmt.Errorf("have %d forecast dates but %d predictions", len(dates), len(predicted))
	}
	points := make([]models.ForecastPoint, len(dates))
	for i := range dates {
		points[i] = models.ForecastPoint{
			Date:           dates[i],
			PredictedSales: predicted[i],
			PredictionDate: predictionDate,
		}
	}
	return points, nil
}

// BuildCombined merges history with the forecast.
// The historical row at the first forecast date is set to the first prediction
// (added when missing), history is kept from the year of predictionDate on,
// and every forecast row is appended after it.
func BuildCombined(history []models.SalesPoint, points []models.ForecastPoint, predictionDate time.Time) []models.CombinedRow {
	patched := make([]models.CombinedRow, 0, len(history)+1)
	for _, h := range history {
		sales := h.Sales
		patched = append(patched, models.CombinedRow{Date: h.Date, Sales: &sales})
	}

	if len(points) > 0 {
		first := points[0]
		value := first.PredictedSales
		found := false
		for i := range patched {
			if patched[i].Date.Equal(first.Date) {
				patched[i].Sales = &value
				found = true
				break
			}
		}
		if !found {
			patched = append(patched, models.CombinedRow{Date: first.Date, Sales: &value})
		}
	}

	rows := make([]models.CombinedRow, 0, len(patched)+len(points))
	for _, row := range patched {
		if row.Date.Year() < predictionDate.Year() {
			continue
		}
		row.PredictionDate = predictionDate
		rows = append(rows, row)
	}

	for _, p := range points {
		predicted := p.PredictedSales
		rows = append(rows, models.CombinedRow{
			Date:           p.Date,
			PredictedSales: &predicted,
			PredictionDate: predictionDate,
		})
	}
	return rows
}

// BuildIntervals flattens intervals into one block of rows per confidence
// level, in the order the intervals are given.
func BuildIntervals(dates []time.Time, intervals []*forecast.Interval) ([]models.ConfidenceRow, error) {
	rows := make([]models.ConfidenceRow, 0, len(dates)*len(intervals))
	for _, iv := range intervals {
		if len(iv.Lower) != len(dates) || len(iv.Upper) != len(dates) {
			return nil, fmt.Errorf("interval at level %v has %d bounds for %d dates", iv.Level, len(iv.Lower), len(dates))
		}
		for i, date := range dates {
			rows = append(rows, models.ConfidenceRow{
				Date:            date,
				LowerBound:      iv.Lower[i],
				UpperBound:      iv.Upper[i],
				ConfidenceLevel: iv.Level,
			})
		}
	}
	return rows, nil
}
