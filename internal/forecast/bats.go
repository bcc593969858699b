// Package forecast implements the BATS seasonal exponential smoothing model
// used by the sales forecast job, plus the horizon and date helpers around it.
//
// BATS combines a Box-Cox transform, a (possibly damped) trend, a seasonal
// component and ARMA errors in a single linear innovations state space model.
// Parameters are estimated by minimizing
//
//	n*log(SSE) - 2*(lambda-1)*sum(log y)
//
// with Nelder-Mead, and the model structure (trend, damping, ARMA order) is
// selected by AIC.
//
// Basic usage:
//
//	model, err := forecast.NewBATS(forecast.DefaultBATSConfig()).Fit(values)
//	if err != nil {
//	    return err
//	}
//	points, _ := model.Forecast(12)
//	interval, _ := model.ForecastInterval(12, 0.95)
package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrInsufficientData is returned when the series is shorter than two seasons
	ErrInsufficientData = errors.New("insufficient data points for a seasonal model")
	// ErrNoConvergence is returned when no admissible parameters were found
	ErrNoConvergence = errors.New("model fit did not converge")
	// ErrNotFitted is returned when forecasting from a model that was never fitted
	ErrNotFitted = errors.New("model must be fitted before prediction")
)

// penalty is returned by the objective for inadmissible parameters
const penalty = 1e12

// BATSConfig holds the model hyperparameters.
// A nil UseTrend or UseDampedTrend lets the fit try both options.
type BATSConfig struct {
	SeasonalPeriod  int
	UseBoxCox       bool
	UseARMAErrors   bool
	UseTrend        *bool
	UseDampedTrend  *bool
	MaxARMAOrder    int
	FuncEvaluations int
}

// DefaultBATSConfig returns the hyperparameters of the monthly sales job
func DefaultBATSConfig() BATSConfig {
	return BATSConfig{
		SeasonalPeriod:  12,
		UseBoxCox:       true,
		UseARMAErrors:   true,
		MaxARMAOrder:    2,
		FuncEvaluations: 4000,
	}
}

// BATS estimates BATS models
type BATS struct {
	cfg BATSConfig
}

// NewBATS creates an estimator
func NewBATS(cfg BATSConfig) *BATS {
	if cfg.SeasonalPeriod < 2 {
		cfg.SeasonalPeriod = 12
	}
	if cfg.FuncEvaluations <= 0 {
		cfg.FuncEvaluations = 4000
	}
	if cfg.MaxARMAOrder < 0 {
		cfg.MaxARMAOrder = 0
	}
	return &BATS{cfg: cfg}
}

// Fit selects and estimates the best model for values
func (b *BATS) Fit(values []float64) (*Model, error) {
	m := b.cfg.SeasonalPeriod
	if len(values) < 2*m {
		return nil, fmt.Errorf("%w: have %d, need at least %d", ErrInsufficientData, len(values), 2*m)
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("series contains NaN or infinite values")
		}
	}

	// Box-Cox is only defined for positive data
	boxCox := b.cfg.UseBoxCox
	for _, v := range values {
		if v <= 0 {
			boxCox = false
			break
		}
	}

	var best *Model
	for _, tr := range b.trendOptions() {
		model, err := b.fitStructure(values, newStructure(m, tr.trend, tr.damped, 0, 0, boxCox))
		if err != nil {
			continue
		}
		if best == nil || model.AIC < best.AIC {
			best = model
		}
	}
	if best == nil {
		return nil, ErrNoConvergence
	}

	if b.cfg.UseARMAErrors {
		base := best.structure
		for p := 0; p <= b.cfg.MaxARMAOrder; p++ {
			for q := 0; q <= b.cfg.MaxARMAOrder; q++ {
				if p == 0 && q == 0 {
					continue
				}
				model, err := b.fitStructure(values, newStructure(m, base.Trend, base.Damped, p, q, boxCox))
				if err != nil {
					continue
				}
				if model.AIC < best.AIC {
					best = model
				}
			}
		}
	}

	return best, nil
}

type trendOption struct {
	trend, damped bool
}

func (b *BATS) trendOptions() []trendOption {
	trends := []bool{false, true}
	if b.cfg.UseTrend != nil {
		trends = []bool{*b.cfg.UseTrend}
	}
	damped := []bool{false, true}
	if b.cfg.UseDampedTrend != nil {
		damped = []bool{*b.cfg.UseDampedTrend}
	}

	var opts []trendOption
	for _, t := range trends {
		if !t {
			opts = append(opts, trendOption{})
			continue
		}
		for _, d := range damped {
			opts = append(opts, trendOption{trend: true, damped: d})
		}
	}
	return opts
}

// fitStructure estimates the parameters of one candidate structure
func (b *BATS) fitStructure(y []float64, s structure) (*Model, error) {
	sumLog := 0.0
	if s.BoxCox {
		for _, v := range y {
			sumLog += math.Log(v)
		}
	}

	objective := func(x []float64) float64 {
		p := s.unpack(x)
		if !s.inBounds(p) {
			return penalty
		}
		ss := buildStateSpace(s, p)
		if !ss.admissible() {
			return penalty
		}
		z := y
		if s.BoxCox {
			z = BoxCox(y, p.Lambda)
		}
		residuals, _, _ := ss.filter(z, seedState(s, z))
		sse := sumSquares(residuals)
		if math.IsNaN(sse) || math.IsInf(sse, 0) {
			return penalty
		}
		return likelihood(len(y), sse, p.Lambda, sumLog, s.BoxCox)
	}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{
		FuncEvaluations: b.cfg.FuncEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-8,
			Iterations: 200,
		},
	}

	var best *optimize.Result
	for _, lambda := range []float64{1, 0.5} {
		start := s.pack(s.startParams(lambda))
		// Hitting the evaluation limit still leaves a usable best point
		result, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
		if err != nil && (result == nil || result.F >= penalty) {
			continue
		}
		if result != nil && (best == nil || result.F < best.F) {
			best = result
		}
		if !s.BoxCox {
			break
		}
	}
	if best == nil || math.IsNaN(best.F) || best.F >= penalty {
		return nil, ErrNoConvergence
	}

	return newModel(y, s, s.unpack(best.X), sumLog), nil
}

func likelihood(n int, sse, lambda, sumLog float64, boxCox bool) float64 {
	if sse < 1e-12 {
		sse = 1e-12
	}
	ll := float64(n) * math.Log(sse)
	if boxCox {
		ll -= 2 * (lambda - 1) * sumLog
	}
	return ll
}

func sumSquares(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return s
}
