package quant

import "github.com/nanoforge/qmfrt/qerr"

// Tensor is a quantized 2-D weight matrix (rows x cols) in one of the
// five supported schemes. Each concrete type stores its own block
// layout; Dequantize always reconstructs exactly rows*cols FP32 values
// in row-major order.
type Tensor interface {
	Scheme() Scheme
	Rows() int
	Cols() int
	// Dequantize reconstructs the full FP32 matrix, row-major.
	Dequantize() []float32
	// Bytes is the size of the quantized payload (scales/mins/codes),
	// excluding the Go struct overhead.
	Bytes() int
}

func numElements(rows, cols int) int { return rows * cols }

func numBlocks(n, blockSize int) int {
	return (n + blockSize - 1) / blockSize
}

func checkShape(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return qerr.ErrInvalidShape
	}
	return nil
}

// Quantize encodes a row-major FP32 matrix into the requested scheme
// using the default block size (DefaultBlockSize for block schemes,
// fixed SuperBlockSize/SubBlockSize for the K variants).
func Quantize(scheme Scheme, data []float32, rows, cols int) (Tensor, error) {
	if err := checkShape(rows, cols); err != nil {
		return nil, err
	}
	if len(data) != numElements(rows, cols) {
		return nil, qerr.ErrDimensionMismatch
	}
	switch scheme {
	case Q8_0:
		return QuantizeQ8_0(data, rows, cols, DefaultBlockSize)
	case Q4_0:
		return QuantizeQ4_0(data, rows, cols, DefaultBlockSize)
	case Q4_1:
		return QuantizeQ4_1(data, rows, cols, DefaultBlockSize)
	case Q4_K:
		return QuantizeQ4_K(data, rows, cols)
	case Q6_K:
		return QuantizeQ6_K(data, rows, cols)
	default:
		return nil, qerr.ErrUnsupportedQuantScheme
	}
}

func absMax(xs []float32) float32 {
	var m float32
	for _, x := range xs {
		a := x
		if a < 0 {
			a = -a
		}
		if a > m {
			m = a
		}
	}
	return m
}

func minMax(xs []float32) (min, max float32) {
	min, max = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return min, max
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
