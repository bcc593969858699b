package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestHorizon(t *testing.T) {
	for month := time.January; month <= time.December; month++ {
		h := Horizon(date(2024, month, 1))
		assert.Equal(t, 24-int(month), h)
		assert.GreaterOrEqual(t, h, 0)
		assert.LessOrEqual(t, h, 23)
	}
	assert.Equal(t, 18, Horizon(date(2024, time.June, 30)))
}

func TestFutureDates(t *testing.T) {
	dates := FutureDates(date(2024, time.June, 1), 3)
	assert.Equal(t, []time.Time{
		date(2024, time.July, 1),
		date(2024, time.August, 1),
		date(2024, time.September, 1),
	}, dates)

	assert.Nil(t, FutureDates(date(2024, time.June, 1), 0))
	assert.Len(t, FutureDates(date(2024, time.June, 1), 18), 18)
	assert.Equal(t, date(2025, time.December, 1), FutureDates(date(2024, time.June, 1), 18)[17])
}

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		n    int
		want time.Time
	}{
		{"jan31 to feb", date(2023, time.January, 31), 1, date(2023, time.February, 28)},
		{"jan31 to leap feb", date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{"aug31 to sep", date(2024, time.August, 31), 1, date(2024, time.September, 30)},
		{"year rollover", date(2024, time.November, 15), 3, date(2025, time.February, 15)},
		{"month end kept", date(2024, time.March, 31), 2, date(2024, time.May, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddMonths(tt.from, tt.n))
		})
	}
}

func TestBoxCoxRoundTrip(t *testing.T) {
	values := []float64{0.5, 1, 2.5, 100, 12345.678}
	for _, lambda := range []float64{0, 0.25, 0.5, 1} {
		back := InvBoxCox(BoxCox(values, lambda), lambda)
		for i := range values {
			assert.InDelta(t, values[i], back[i], 1e-9*values[i], "lambda=%v", lambda)
		}
	}
	assert.InDelta(t, math.Log(10), BoxCox([]float64{10}, 0)[0], 1e-12)
	assert.Equal(t, 0.0, InvBoxCox([]float64{-10}, 0.5)[0])
}

func TestStructurePackUnpack(t *testing.T) {
	s := newStructure(12, true, true, 2, 1, true)
	assert.Equal(t, 1+1+12+2+1, s.dim())
	assert.Equal(t, 8, s.nParams)

	p := params{Alpha: 0.2, Beta: 0.1, Gamma: 0.05, Phi: 0.9, Lambda: 0.3, AR: []float64{0.4, -0.2}, MA: []float64{0.1}}
	x := s.pack(p)
	require.Len(t, x, s.nParams)
	assert.Equal(t, p, s.unpack(x))

	plain := newStructure(12, false, true, 0, 0, false)
	assert.False(t, plain.Damped)
	got := plain.unpack(plain.pack(params{Alpha: 0.3, Gamma: 0.2}))
	assert.Equal(t, 1.0, got.Phi)
	assert.Equal(t, 1.0, got.Lambda)
}

func TestStateSpaceSeasonalRing(t *testing.T) {
	s := newStructure(4, false, false, 0, 0, false)
	ss := buildStateSpace(s, params{Alpha: 0, Gamma: 0, Phi: 1, Lambda: 1})

	// level 10, seasonal ring [s_t, s_{t-1}, s_{t-2}, s_{t-3}]
	x := []float64{10, 1, 2, 3, 4}
	tmp := make([]float64, ss.d)

	var got []float64
	for i := 0; i < 4; i++ {
		got = append(got, ss.w[0]*x[0]+ss.w[4]*x[4])
		ss.step(x, tmp, 0)
	}
	// Oldest season first, then the ring rotates
	assert.Equal(t, []float64{14, 13, 12, 11}, got)
	assert.True(t, ss.admissible())
}

func seasonalSeries(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		trend := 1000 + 8*float64(i)
		season := 1 + 0.2*math.Sin(2*math.Pi*float64(i)/12)
		noise := float64(i%5-2) * 4
		values[i] = trend*season + noise
	}
	return values
}

func testConfig() BATSConfig {
	cfg := DefaultBATSConfig()
	cfg.MaxARMAOrder = 1
	cfg.FuncEvaluations = 2000
	return cfg
}

func TestFitInsufficientData(t *testing.T) {
	_, err := NewBATS(DefaultBATSConfig()).Fit(seasonalSeries(23))
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestFitRejectsNaN(t *testing.T) {
	values := seasonalSeries(36)
	values[5] = math.NaN()
	_, err := NewBATS(DefaultBATSConfig()).Fit(values)
	require.Error(t, err)
}

func TestFitAndForecastSeasonalSeries(t *testing.T) {
	values := seasonalSeries(72)
	truth := seasonalSeries(72 + 12)[72:]

	model, err := NewBATS(testConfig()).Fit(values[:72])
	require.NoError(t, err)
	t.Logf("%s AIC=%.2f", model.Describe(), model.AIC)

	assert.Equal(t, 72, model.NObs())
	assert.GreaterOrEqual(t, model.Lambda, 0.0)
	assert.LessOrEqual(t, model.Lambda, 1.0)
	assert.Len(t, model.Residuals(), 72)
	assert.Len(t, model.FittedValues(), 72)

	points, err := model.Forecast(12)
	require.NoError(t, err)
	require.Len(t, points, 12)
	for h, p := range points {
		assert.InEpsilon(t, truth[h], p, 0.15, "h=%d", h)
	}
}

func TestForecastIntervalsAreNested(t *testing.T) {
	model, err := NewBATS(testConfig()).Fit(seasonalSeries(60))
	require.NoError(t, err)

	intervals, err := model.ForecastIntervals(18, 0.85, 0.90, 0.95)
	require.NoError(t, err)
	require.Len(t, intervals, 3)

	points, err := model.Forecast(18)
	require.NoError(t, err)

	for _, iv := range intervals {
		require.Len(t, iv.Lower, 18)
		require.Len(t, iv.Upper, 18)
		assert.InDeltaSlice(t, points, iv.Mean, 1e-9)
		for h := range points {
			assert.LessOrEqual(t, iv.Lower[h], points[h])
			assert.GreaterOrEqual(t, iv.Upper[h], points[h])
		}
	}
	for h := 0; h < 18; h++ {
		assert.GreaterOrEqual(t, intervals[0].Lower[h], intervals[1].Lower[h])
		assert.GreaterOrEqual(t, intervals[1].Lower[h], intervals[2].Lower[h])
		assert.LessOrEqual(t, intervals[0].Upper[h], intervals[1].Upper[h])
		assert.LessOrEqual(t, intervals[1].Upper[h], intervals[2].Upper[h])
	}
	// Transformed-scale variance never shrinks with the horizon
	_, variance, err := model.path(18)
	require.NoError(t, err)
	for h := 1; h < 18; h++ {
		assert.GreaterOrEqual(t, variance[h], variance[h-1])
	}

	single, err := model.ForecastInterval(18, 0.90)
	require.NoError(t, err)
	assert.Equal(t, intervals[1].Lower, single.Lower)
}

func TestForecastEdgeCases(t *testing.T) {
	model, err := NewBATS(testConfig()).Fit(seasonalSeries(48))
	require.NoError(t, err)

	points, err := model.Forecast(0)
	require.NoError(t, err)
	assert.Empty(t, points)

	_, err = model.Forecast(-1)
	assert.Error(t, err)

	_, err = model.ForecastInterval(3, 1.5)
	assert.Error(t, err)

	var empty *Model
	_, err = empty.Forecast(3)
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestFitWithoutBoxCoxForNonPositiveData(t *testing.T) {
	values := seasonalSeries(48)
	for i := range values {
		values[i] -= 1100
	}
	cfg := testConfig()
	cfg.UseARMAErrors = false

	model, err := NewBATS(cfg).Fit(values)
	require.NoError(t, err)
	assert.Equal(t, 1.0, model.Lambda)
	assert.Contains(t, model.Describe(), "BATS(1, {0,0}")
}
