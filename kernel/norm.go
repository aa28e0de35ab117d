package kernel

import (
	"math"

	"github.com/nanoforge/qmfrt/qerr"
)

// LayerNorm normalizes x (length n) in place: for each element,
// (x_i - mean) / sqrt(variance + eps) * gamma_i + beta_i. gamma and
// beta must each have length n, or be nil to use the identity (1, 0).
func LayerNorm(x []float32, gamma, beta []float32, eps float32) error {
	n := len(x)
	if (gamma != nil && len(gamma) != n) || (beta != nil && len(beta) != n) {
		return qerr.ErrDimensionMismatch
	}
	mean := meanOf(x)
	variance := varianceOf(x, mean)
	inv := float32(1.0 / math.Sqrt(float64(variance)+float64(eps)))
	for i, v := range x {
		norm := (v - mean) * inv
		if gamma != nil {
			norm *= gamma[i]
		}
		if beta != nil {
			norm += beta[i]
		}
		x[i] = norm
	}
	return nil
}

// LayerNormResidual computes LayerNorm(x + residual), writing the
// result into x in place and leaving residual untouched. The residual
// is added into x in its own pass before LayerNorm runs: no
// intermediate slice is allocated, but the add is not fused into the
// normalization passes.
func LayerNormResidual(x, residual, gamma, beta []float32, eps float32) error {
	if len(x) != len(residual) {
		return qerr.ErrDimensionMismatch
	}
	for i := range x {
		x[i] += residual[i]
	}
	return LayerNorm(x, gamma, beta, eps)
}

func meanOf(x []float32) float32 {
	var sum float32
	for _, v := range x {
		sum += v
	}
	return sum / float32(len(x))
}

func varianceOf(x []float32, mean float32) float32 {
	var sum float32
	for _, v := range x {
		d := v - mean
		sum += d * d
	}
	return sum / float32(len(x))
}
