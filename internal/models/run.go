package models

import "time"

// RunSummary describes the outcome of one pipeline run
type RunSummary struct {
	RunID          string    `json:"run_id"`
	PredictionDate time.Time `json:"prediction_date"`
	Observations   int       `json:"observations"`
	Horizon        int       `json:"horizon"`
	Model          string    `json:"model"`
	ForecastRows   int       `json:"forecast_rows"`
	IntervalRows   int64     `json:"interval_rows"`
	ArtifactPath   string    `json:"artifact_path"`
	ArtifactDigest string    `json:"artifact_digest"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
