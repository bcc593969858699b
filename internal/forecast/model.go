package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Model is a fitted BATS model
type Model struct {
	Alpha    float64
	Beta     float64
	Gamma    float64
	Phi      float64 // 1 when the trend is not damped
	Lambda   float64 // 1 when Box-Cox is not used
	AR       []float64
	MA       []float64
	Variance float64 // Innovation variance on the transformed scale
	LogLik   float64
	AIC      float64

	structure structure
	ss        *stateSpace
	state     []float64
	residuals []float64
	fitted    []float64
	nobs      int
}

// Interval is a forecast with lower and upper bounds at one confidence level
type Interval struct {
	Level float64
	Mean  []float64
	Lower []float64
	Upper []float64
}

func newModel(y []float64, s structure, p params, sumLog float64) *Model {
	z := y
	if s.BoxCox {
		z = BoxCox(y, p.Lambda)
	}
	ss := buildStateSpace(s, p)
	residuals, fitted, state := ss.filter(z, seedState(s, z))
	sse := sumSquares(residuals)
	n := len(y)

	ll := likelihood(n, sse, p.Lambda, sumLog, s.BoxCox)
	return &Model{
		Alpha:     p.Alpha,
		Beta:      p.Beta,
		Gamma:     p.Gamma,
		Phi:       p.Phi,
		Lambda:    p.Lambda,
		AR:        p.AR,
		MA:        p.MA,
		Variance:  sse / float64(n),
		LogLik:    -ll / 2,
		AIC:       ll + 2*float64(s.nParams+s.dim()),
		structure: s,
		ss:        ss,
		state:     state,
		residuals: residuals,
		fitted:    fitted,
		nobs:      n,
	}
}

// Forecast returns point forecasts for the next steps periods
func (m *Model) Forecast(steps int) ([]float64, error) {
	mean, _, err := m.path(steps)
	if err != nil {
		return nil, err
	}
	return m.untransform(mean), nil
}

// ForecastInterval returns point forecasts with bounds at the given confidence level
func (m *Model) ForecastInterval(steps int, level float64) (*Interval, error) {
	intervals, err := m.ForecastIntervals(steps, level)
	if err != nil {
		return nil, err
	}
	return intervals[0], nil
}

// ForecastIntervals computes the intervals of several confidence levels from one forecast path
func (m *Model) ForecastIntervals(steps int, levels ...float64) ([]*Interval, error) {
	for _, level := range levels {
		if level <= 0 || level >= 1 {
			return nil, fmt.Errorf("confidence level must be in (0, 1), got %v", level)
		}
	}

	mean, variance, err := m.path(steps)
	if err != nil {
		return nil, err
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1}
	out := make([]*Interval, 0, len(levels))
	for _, level := range levels {
		z := normal.Quantile((1 + level) / 2)
		lower := make([]float64, steps)
		upper := make([]float64, steps)
		for h := 0; h < steps; h++ {
			half := z * math.Sqrt(variance[h])
			lower[h] = mean[h] - half
			upper[h] = mean[h] + half
		}
		out = append(out, &Interval{
			Level: level,
			Mean:  m.untransform(mean),
			Lower: m.untransform(lower),
			Upper: m.untransform(upper),
		})
	}
	return out, nil
}

// path returns the transformed-scale forecast means and variances.
// var_h = sigma^2 * (1 + sum_{j<h} c_j^2) with c_j = w'F^{j-1}g.
func (m *Model) path(steps int) (mean, variance []float64, err error) {
	if m == nil || m.ss == nil {
		return nil, nil, ErrNotFitted
	}
	if steps < 0 {
		return nil, nil, errors.New("steps must not be negative")
	}

	ss := m.ss
	mean = make([]float64, steps)
	variance = make([]float64, steps)

	x := append([]float64(nil), m.state...)
	v := append([]float64(nil), ss.g...)
	tmp := make([]float64, ss.d)
	cum := 0.0

	for h := 0; h < steps; h++ {
		mean[h] = floats.Dot(ss.w, x)
		variance[h] = m.Variance * (1 + cum)

		c := floats.Dot(ss.w, v)
		cum += c * c

		ss.step(x, tmp, 0)
		ss.step(v, tmp, 0)
	}
	return mean, variance, nil
}

func (m *Model) untransform(values []float64) []float64 {
	if !m.structure.BoxCox {
		return append([]float64(nil), values...)
	}
	return InvBoxCox(values, m.Lambda)
}

// Residuals returns the one-step innovations on the transformed scale
func (m *Model) Residuals() []float64 {
	return append([]float64(nil), m.residuals...)
}

// FittedValues returns the one-step fitted values on the original scale
func (m *Model) FittedValues() []float64 {
	return m.untransform(m.fitted)
}

// NObs returns the number of observations the model was fitted on
func (m *Model) NObs() int {
	return m.nobs
}

// Describe renders the model as BATS(lambda, {p,q}, phi, {m})
func (m *Model) Describe() string {
	s := m.structure
	lambda := "1"
	if s.BoxCox {
		lambda = fmt.Sprintf("%.3f", m.Lambda)
	}
	phi := "-"
	if s.Damped {
		phi = fmt.Sprintf("%.3f", m.Phi)
	} else if s.Trend {
		phi = "1"
	}
	return fmt.Sprintf("BATS(%s, {%d,%d}, %s, {%d})", lambda, s.P, s.Q, phi, s.Period)
}
