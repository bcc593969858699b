package forecast

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// admissibilityBound is the largest eigenvalue modulus accepted for D = F - g*w'
const admissibilityBound = 1.01

// structure describes which components a BATS candidate carries
type structure struct {
	Period  int
	Trend   bool
	Damped  bool
	P       int // AR order of the error process
	Q       int // MA order of the error process
	BoxCox  bool
	nParams int
}

// params holds one point in the parameter space of a structure
type params struct {
	Alpha  float64
	Beta   float64
	Gamma  float64
	Phi    float64
	Lambda float64
	AR     []float64
	MA     []float64
}

func newStructure(period int, trend, damped bool, p, q int, boxCox bool) structure {
	s := structure{Period: period, Trend: trend, Damped: trend && damped, P: p, Q: q, BoxCox: boxCox}
	s.nParams = 2 + p + q // alpha, gamma
	if s.Trend {
		s.nParams++
	}
	if s.Damped {
		s.nParams++
	}
	if s.BoxCox {
		s.nParams++
	}
	return s
}

// State vector layout: level, trend, seasonal ring (most recent first),
// past ARMA errors d_{t-1..t-p}, past innovations e_{t-1..t-q}.
func (s structure) dim() int       { return 1 + s.trendDim() + s.Period + s.P + s.Q }
func (s structure) trendDim() int  { return boolInt(s.Trend) }
func (s structure) seasStart() int { return 1 + s.trendDim() }
func (s structure) arStart() int   { return s.seasStart() + s.Period }
func (s structure) maStart() int   { return s.arStart() + s.P }

// pack flattens params into the optimizer's vector
func (s structure) pack(p params) []float64 {
	x := []float64{p.Alpha}
	if s.Trend {
		x = append(x, p.Beta)
	}
	if s.Damped {
		x = append(x, p.Phi)
	}
	x = append(x, p.Gamma)
	if s.BoxCox {
		x = append(x, p.Lambda)
	}
	x = append(x, p.AR...)
	x = append(x, p.MA...)
	return x
}

// unpack is the inverse of pack
func (s structure) unpack(x []float64) params {
	p := params{Phi: 1, Lambda: 1}
	i := 0
	next := func() float64 {
		v := x[i]
		i++
		return v
	}
	p.Alpha = next()
	if s.Trend {
		p.Beta = next()
	}
	if s.Damped {
		p.Phi = next()
	}
	p.Gamma = next()
	if s.BoxCox {
		p.Lambda = next()
	}
	p.AR = append([]float64(nil), x[i:i+s.P]...)
	i += s.P
	p.MA = append([]float64(nil), x[i:i+s.Q]...)
	return p
}

// startParams returns the optimizer's starting point
func (s structure) startParams(lambda float64) params {
	return params{
		Alpha:  0.09,
		Beta:   0.05,
		Gamma:  0.01,
		Phi:    0.97,
		Lambda: lambda,
		AR:     make([]float64, s.P),
		MA:     make([]float64, s.Q),
	}
}

// inBounds checks box constraints and AR stationarity
func (s structure) inBounds(p params) bool {
	if p.Alpha < 0 || p.Alpha > 1 || p.Gamma < 0 || p.Gamma > 1 {
		return false
	}
	if s.Trend && (p.Beta < 0 || p.Beta > 1) {
		return false
	}
	if s.Damped && (p.Phi < 0.8 || p.Phi > 1) {
		return false
	}
	if s.BoxCox && (p.Lambda < 0 || p.Lambda > 1) {
		return false
	}
	arSum := 0.0
	for _, a := range p.AR {
		arSum += math.Abs(a)
	}
	if arSum >= 1 {
		return false
	}
	for _, m := range p.MA {
		if math.Abs(m) >= 1 {
			return false
		}
	}
	return true
}

// stateSpace is the linear innovations form
//
//	y_t = w'x_{t-1} + e_t
//	x_t = F x_{t-1} + g e_t
type stateSpace struct {
	d int
	F []float64 // row-major d x d
	g []float64
	w []float64
}

func buildStateSpace(s structure, p params) *stateSpace {
	d := s.dim()
	ss := &stateSpace{
		d: d,
		F: make([]float64, d*d),
		g: make([]float64, d),
		w: make([]float64, d),
	}
	set := func(r, c int, v float64) { ss.F[r*d+c] += v }

	phi := 1.0
	if s.Damped {
		phi = p.Phi
	}

	// a'x_{t-1} is the predictable part of the ARMA error d_t
	a := make([]float64, d)
	for i, v := range p.AR {
		a[s.arStart()+i] = v
	}
	for j, v := range p.MA {
		a[s.maStart()+j] = v
	}
	addA := func(r int, k float64) {
		for c, v := range a {
			if v != 0 {
				set(r, c, k*v)
			}
		}
	}

	seas := s.seasStart()
	lastSeason := seas + s.Period - 1

	// Measurement: level + phi*trend + oldest seasonal + ARMA error
	ss.w[0] = 1
	if s.Trend {
		ss.w[1] = phi
	}
	ss.w[lastSeason] += 1
	floats.Add(ss.w, a)

	// Level
	set(0, 0, 1)
	if s.Trend {
		set(0, 1, phi)
	}
	addA(0, p.Alpha)
	ss.g[0] = p.Alpha

	// Trend
	if s.Trend {
		set(1, 1, phi)
		addA(1, p.Beta)
		ss.g[1] = p.Beta
	}

	// Seasonal ring
	set(seas, lastSeason, 1)
	addA(seas, p.Gamma)
	ss.g[seas] = p.Gamma
	for k := 1; k < s.Period; k++ {
		set(seas+k, seas+k-1, 1)
	}

	// ARMA error history
	if s.P > 0 {
		ar := s.arStart()
		addA(ar, 1)
		ss.g[ar] = 1
		for i := 1; i < s.P; i++ {
			set(ar+i, ar+i-1, 1)
		}
	}
	if s.Q > 0 {
		ma := s.maStart()
		ss.g[ma] = 1
		for j := 1; j < s.Q; j++ {
			set(ma+j, ma+j-1, 1)
		}
	}

	return ss
}

// admissible reports whether the discount matrix D = F - g*w' is stable,
// which keeps the filter forgetting its seed states.
func (ss *stateSpace) admissible() bool {
	D := mat.NewDense(ss.d, ss.d, append([]float64(nil), ss.F...))
	gw := mat.NewDense(ss.d, ss.d, nil)
	gw.Outer(1, mat.NewVecDense(ss.d, ss.g), mat.NewVecDense(ss.d, ss.w))
	D.Sub(D, gw)

	var eig mat.Eigen
	if ok := eig.Factorize(D, mat.EigenNone); !ok {
		return false
	}
	for _, v := range eig.Values(nil) {
		if cmplx.Abs(v) >= admissibilityBound {
			return false
		}
	}
	return true
}

// step advances x in place: x <- F x + g e. tmp must have length d.
func (ss *stateSpace) step(x, tmp []float64, e float64) {
	d := ss.d
	for r := 0; r < d; r++ {
		tmp[r] = floats.Dot(ss.F[r*d:(r+1)*d], x) + ss.g[r]*e
	}
	copy(x, tmp)
}

// filter runs the innovations filter from seed x0 over z and returns
// the residuals, the one-step fitted values and the final state.
func (ss *stateSpace) filter(z, x0 []float64) (residuals, fitted, state []float64) {
	x := append([]float64(nil), x0...)
	tmp := make([]float64, ss.d)
	residuals = make([]float64, len(z))
	fitted = make([]float64, len(z))

	for t, v := range z {
		yhat := floats.Dot(ss.w, x)
		e := v - yhat
		fitted[t] = yhat
		residuals[t] = e
		ss.step(x, tmp, e)
	}
	return residuals, fitted, x
}

// seedState derives heuristic seed states from the first two seasons
func seedState(s structure, z []float64) []float64 {
	m := s.Period
	x := make([]float64, s.dim())

	first := stat.Mean(z[:m], nil)
	trend := 0.0
	if s.Trend && len(z) >= 2*m {
		trend = (stat.Mean(z[m:2*m], nil) - first) / float64(m)
	}

	// Level one step before the first observation
	x[0] = first - trend*float64(m+1)/2
	if s.Trend {
		x[1] = trend
	}

	// Seasonal deviations, centred; position k is the season of observation m-1-k
	seasonal := make([]float64, m)
	mid := float64(m-1) / 2
	for i := 0; i < m; i++ {
		seasonal[i] = z[i] - (first + trend*(float64(i)-mid))
	}
	mean := stat.Mean(seasonal, nil)
	seas := s.seasStart()
	for i := 0; i < m; i++ {
		x[seas+m-1-i] = seasonal[i] - mean
	}

	return x
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
