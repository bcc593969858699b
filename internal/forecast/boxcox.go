package forecast

import "math"

const lambdaEps = 1e-8

// BoxCox applies the Box-Cox power transform. Values must be positive.
func BoxCox(values []float64, lambda float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = boxCox(v, lambda)
	}
	return out
}

// InvBoxCox reverses BoxCox
func InvBoxCox(values []float64, lambda float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = invBoxCox(v, lambda)
	}
	return out
}

func boxCox(v, lambda float64) float64 {
	if math.Abs(lambda) < lambdaEps {
		return math.Log(v)
	}
	return (math.Pow(v, lambda) - 1) / lambda
}

func invBoxCox(v, lambda float64) float64 {
	if math.Abs(lambda) < lambdaEps {
		return math.Exp(v)
	}
	base := lambda*v + 1
	// Below the transform's range the only sensible value is the lower limit
	if base <= 0 {
		return 0
	}
	return math.Pow(base, 1/lambda)
}
