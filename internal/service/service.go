package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/sales-forecast/internal/artifact"
	"github.com/Dan9191/sales-forecast/internal/config"
	"github.com/Dan9191/sales-forecast/internal/forecast"
	"github.com/Dan9191/sales-forecast/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNoSalesData is returned when the loader produced an empty series
var ErrNoSalesData = errors.New("no sales data to forecast")

// ConfidenceLevels are the interval levels written to the warehouse, in order
var ConfidenceLevels = []float64{0.85, 0.90, 0.95}

// SalesSource loads the historical sales series
type SalesSource interface {
	LoadSales(ctx context.Context, start time.Time, minYear int) ([]models.SalesPoint, error)
}

// IntervalSink appends confidence interval rows
type IntervalSink interface {
	InsertConfidenceIntervals(ctx context.Context, rows []models.ConfidenceRow) (int64, error)
}

// Predictor is a fitted forecasting model
type Predictor interface {
	Forecast(steps int) ([]float64, error)
	ForecastInterval(steps int, level float64) (*forecast.Interval, error)
	Describe() string
}

// Fitter fits a model to a series
type Fitter interface {
	Fit(values []float64) (Predictor, error)
}

// ArtifactWriter persists the combined artifact and returns its digest
type ArtifactWriter interface {
	Write(ctx context.Context, path string, rows []models.CombinedRow) (string, error)
}

type batsFitter struct {
	bats *forecast.BATS
}

// NewBATSFitter returns a Fitter backed by the BATS estimator
func NewBATSFitter(cfg forecast.BATSConfig) Fitter {
	return batsFitter{bats: forecast.NewBATS(cfg)}
}

func (f batsFitter) Fit(values []float64) (Predictor, error) {
	model, err := f.bats.Fit(values)
	if err != nil {
		return nil, err
	}
	return model, nil
}

// Service runs the forecast pipeline
type Service struct {
	source SalesSource
	sink   IntervalSink
	fitter Fitter
	writer ArtifactWriter
	config *config.Config
	log    *logrus.Logger
}

// NewService initializes a new service
func NewService(source SalesSource, sink IntervalSink, fitter Fitter, writer ArtifactWriter, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		source: source,
		sink:   sink,
		fitter: fitter,
		writer: writer,
		config: cfg,
		log:    log,
	}
}

// Run loads the sales series, fits the model, writes the combined artifact to
// outputPath and appends the confidence intervals to the warehouse.
// A failure after the artifact is written leaves the two sinks out of step.
func (s *Service) Run(ctx context.Context, outputPath string) (*models.RunSummary, error) {
	summary := &models.RunSummary{
		RunID:        uuid.New().String(),
		ArtifactPath: outputPath,
		StartedAt:    time.Now().UTC(),
	}
	log := s.log.WithField("run_id", summary.RunID)

	log.WithField("step", "load").Info("Loading sales")
	series, err := s.source.LoadSales(ctx, s.config.StartDate, s.config.MinYear)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales: %w", err)
	}
	if len(series) == 0 {
		return nil, ErrNoSalesData
	}

	last := series[len(series)-1].Date
	horizon := forecast.Horizon(last)
	dates := forecast.FutureDates(last, horizon)
	summary.PredictionDate = last
	summary.Observations = len(series)
	summary.Horizon = horizon

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Sales
	}

	log.WithFields(logrus.Fields{
		"step":         "fit",
		"observations": len(values),
		"last_date":    last.Format(config.DateLayout),
		"horizon":      horizon,
	}).Info("Fitting model")
	model, err := s.fitter.Fit(values)
	if err != nil {
		return nil, fmt.Errorf("failed to fit model: %w", err)
	}
	summary.Model = model.Describe()
	log.WithField("model", summary.Model).Info("Model fitted")

	var points []models.ForecastPoint
	if horizon > 0 {
		predicted, err := model.Forecast(horizon)
		if err != nil {
			return nil, fmt.Errorf("failed to forecast: %w", err)
		}
		points, err = artifact.BuildForecast(dates, predicted, last)
		if err != nil {
			return nil, err
		}
	}
	summary.ForecastRows = len(points)

	log.WithField("step", "artifact").Info("Writing combined artifact")
	combined := artifact.BuildCombined(series, points, last)
	digest, err := s.writer.Write(ctx, outputPath, combined)
	if err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}
	summary.ArtifactDigest = digest

	if horizon > 0 {
		intervals := make([]*forecast.Interval, 0, len(ConfidenceLevels))
		for _, level := range ConfidenceLevels {
			iv, err := model.ForecastInterval(horizon, level)
			if err != nil {
				return nil, fmt.Errorf("failed to forecast %.0f%% interval: %w", level*100, err)
			}
			intervals = append(intervals, iv)
		}

		rows, err := artifact.BuildIntervals(dates, intervals)
		if err != nil {
			return nil, err
		}

		log.WithFields(logrus.Fields{"step": "intervals", "rows": len(rows)}).Info("Writing confidence intervals")
		inserted, err := s.sink.InsertConfidenceIntervals(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to write confidence intervals: %w", err)
		}
		summary.IntervalRows = inserted
	}

	summary.FinishedAt = time.Now().UTC()
	log.WithFields(logrus.Fields{
		"forecast_rows": summary.ForecastRows,
		"interval_rows": summary.IntervalRows,
		"duration":      summary.FinishedAt.Sub(summary.StartedAt).String(),
	}).Info("Forecast run completed")
	return summary, nil
}
