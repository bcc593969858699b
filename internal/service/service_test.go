package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dan9191/sales-forecast/internal/config"
	"github.com/Dan9191/sales-forecast/internal/forecast"
	"github.com/Dan9191/sales-forecast/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	series  []models.SalesPoint
	err     error
	start   time.Time
	minYear int
}

func (f *fakeSource) LoadSales(_ context.Context, start time.Time, minYear int) ([]models.SalesPoint, error) {
	f.start, f.minYear = start, minYear
	return f.series, f.err
}

// fakeSink behaves like the append-only warehouse table
type fakeSink struct {
	rows []models.ConfidenceRow
	err  error
}

func (f *fakeSink) InsertConfidenceIntervals(_ context.Context, rows []models.ConfidenceRow) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.rows = append(f.rows, rows...)
	return int64(len(rows)), nil
}

type fakeWriter struct {
	path string
	rows []models.CombinedRow
	err  error
}

func (f *fakeWriter) Write(_ context.Context, path string, rows []models.CombinedRow) (string, error) {
	f.path, f.rows = path, rows
	return "digest", f.err
}

type call struct {
	steps int
	level float64
}

type fakeModel struct {
	pointCalls    []int
	intervalCalls []call
}

func (m *fakeModel) Forecast(steps int) ([]float64, error) {
	m.pointCalls = append(m.pointCalls, steps)
	out := make([]float64, steps)
	for i := range out {
		out[i] = 1000 + float64(i)
	}
	return out, nil
}

func (m *fakeModel) ForecastInterval(steps int, level float64) (*forecast.Interval, error) {
	m.intervalCalls = append(m.intervalCalls, call{steps: steps, level: level})
	iv := &forecast.Interval{Level: level}
	for i := 0; i < steps; i++ {
		iv.Mean = append(iv.Mean, 1000+float64(i))
		iv.Lower = append(iv.Lower, 900-level*100)
		iv.Upper = append(iv.Upper, 1100+level*100)
	}
	return iv, nil
}

func (m *fakeModel) Describe() string { return "fake" }

type fakeFitter struct {
	model  *fakeModel
	err    error
	fits   int
	values []float64
}

func (f *fakeFitter) Fit(values []float64) (Predictor, error) {
	f.fits++
	f.values = values
	if f.err != nil {
		return nil, f.err
	}
	return f.model, nil
}

func monthlySeries(from time.Time, n int) []models.SalesPoint {
	series := make([]models.SalesPoint, n)
	for i := range series {
		series[i] = models.SalesPoint{Date: from.AddDate(0, i, 0), Sales: 500 + float64(i)}
	}
	return series
}

type fixture struct {
	source *fakeSource
	sink   *fakeSink
	writer *fakeWriter
	fitter *fakeFitter
	svc    *Service
}

func newFixture(series []models.SalesPoint) *fixture {
	log, _ := test.NewNullLogger()
	f := &fixture{
		source: &fakeSource{series: series},
		sink:   &fakeSink{},
		writer: &fakeWriter{},
		fitter: &fakeFitter{model: &fakeModel{}},
	}
	cfg := &config.Config{StartDate: time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC), MinYear: 2018}
	f.svc = NewService(f.source, f.sink, f.fitter, f.writer, cfg, log)
	return f
}

func TestRunEndingInJune(t *testing.T) {
	// Jan 2018 .. Jun 2024
	f := newFixture(monthlySeries(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), 78))
	last := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	summary, err := f.svc.Run(context.Background(), "/tmp/prediction_total.pkl")
	require.NoError(t, err)

	assert.Equal(t, 2018, f.source.minYear)
	assert.Equal(t, 1, f.fitter.fits)
	assert.Len(t, f.fitter.values, 78)

	model := f.fitter.model
	assert.Equal(t, []int{18}, model.pointCalls)
	assert.Equal(t, []call{{18, 0.85}, {18, 0.90}, {18, 0.95}}, model.intervalCalls)

	assert.Len(t, f.sink.rows, 54)
	assert.Equal(t, int64(54), summary.IntervalRows)
	for i, row := range f.sink.rows {
		assert.Equal(t, ConfidenceLevels[i/18], row.ConfidenceLevel)
	}
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), f.sink.rows[0].Date)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), f.sink.rows[17].Date)

	assert.Equal(t, "/tmp/prediction_total.pkl", f.writer.path)
	// 2024 history (Jan..Jun), patched Jul, 18 forecast rows
	require.Len(t, f.writer.rows, 6+1+18)
	boundary := f.writer.rows[6]
	require.NotNil(t, boundary.Sales)
	assert.Equal(t, 1000.0, *boundary.Sales)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, last, summary.PredictionDate)
	assert.Equal(t, 18, summary.Horizon)
	assert.Equal(t, 78, summary.Observations)
	assert.Equal(t, 18, summary.ForecastRows)
	assert.Equal(t, "digest", summary.ArtifactDigest)
	assert.Equal(t, "fake", summary.Model)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))
}

func TestRunTwiceDuplicatesIntervals(t *testing.T) {
	f := newFixture(monthlySeries(time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC), 40))

	_, err := f.svc.Run(context.Background(), "out.pkl")
	require.NoError(t, err)
	first := len(f.sink.rows)

	_, err = f.svc.Run(context.Background(), "out.pkl")
	require.NoError(t, err)

	assert.Equal(t, 2*first, len(f.sink.rows))
	assert.Equal(t, f.sink.rows[:first], f.sink.rows[first:])
}

func TestRunErrors(t *testing.T) {
	series := monthlySeries(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 30)

	t.Run("empty series", func(t *testing.T) {
		f := newFixture(nil)
		_, err := f.svc.Run(context.Background(), "out.pkl")
		assert.ErrorIs(t, err, ErrNoSalesData)
		assert.Zero(t, f.fitter.fits)
	})

	t.Run("load failure", func(t *testing.T) {
		f := newFixture(series)
		f.source.err = errors.New("warehouse down")
		_, err := f.svc.Run(context.Background(), "out.pkl")
		assert.ErrorContains(t, err, "warehouse down")
	})

	t.Run("fit failure", func(t *testing.T) {
		f := newFixture(series)
		f.fitter.err = forecast.ErrNoConvergence
		_, err := f.svc.Run(context.Background(), "out.pkl")
		assert.ErrorIs(t, err, forecast.ErrNoConvergence)
		assert.Empty(t, f.writer.path)
		assert.Empty(t, f.sink.rows)
	})

	t.Run("artifact failure skips the interval sink", func(t *testing.T) {
		f := newFixture(series)
		f.writer.err = errors.New("disk full")
		_, err := f.svc.Run(context.Background(), "out.pkl")
		assert.ErrorContains(t, err, "disk full")
		assert.Empty(t, f.sink.rows)
		assert.Empty(t, f.fitter.model.intervalCalls)
	})

	t.Run("sink failure after artifact", func(t *testing.T) {
		f := newFixture(series)
		f.sink.err = errors.New("permission denied")
		_, err := f.svc.Run(context.Background(), "out.pkl")
		assert.ErrorContains(t, err, "permission denied")
		assert.NotEmpty(t, f.writer.rows)
	})
}

func TestBATSFitterEndToEnd(t *testing.T) {
	series := make([]models.SalesPoint, 48)
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range series {
		season := []float64{0.8, 0.85, 1, 1.05, 1.1, 1.2, 1.25, 1.2, 1.05, 0.95, 0.9, 1.3}[i%12]
		series[i] = models.SalesPoint{Date: start.AddDate(0, i, 0), Sales: (2000 + 15*float64(i)) * season}
	}

	cfg := forecast.DefaultBATSConfig()
	cfg.UseARMAErrors = false
	log, _ := test.NewNullLogger()
	sink := &fakeSink{}
	writer := &fakeWriter{}
	svc := NewService(&fakeSource{series: series}, sink, NewBATSFitter(cfg), writer,
		&config.Config{StartDate: start, MinYear: 2018}, log)

	summary, err := svc.Run(context.Background(), "out.csv")
	require.NoError(t, err)

	// Last observation is December 2023
	assert.Equal(t, 12, summary.Horizon)
	assert.Len(t, sink.rows, 36)
	assert.Contains(t, summary.Model, "BATS(")
	for _, row := range sink.rows {
		assert.LessOrEqual(t, row.LowerBound, row.UpperBound)
	}
}
