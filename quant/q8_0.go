package quant

import (
	"math"

	"github.com/nanoforge/qmfrt/qerr"
)

// Q8_0Tensor is a symmetric 8-bit block-quantized matrix: each block of
// BlockSize elements shares one FP32 scale, scale = max(|x_i|)/127, and
// every element is stored as round(x_i/scale) clamped to [-127,127].
type Q8_0Tensor struct {
	RowsN, ColsN int
	BlockSize    int
	Scales       []float32 // len = numBlocks(rows*cols, BlockSize)
	Codes        []int8    // len = numBlocks*BlockSize (tail padded with zero codes)
}

func (t *Q8_0Tensor) Scheme() Scheme { return Q8_0 }
func (t *Q8_0Tensor) Rows() int      { return t.RowsN }
func (t *Q8_0Tensor) Cols() int      { return t.ColsN }

func (t *Q8_0Tensor) Bytes() int {
	return len(t.Scales)*4 + len(t.Codes)
}

// QuantizeQ8_0 encodes a row-major FP32 matrix with the given block size.
func QuantizeQ8_0(data []float32, rows, cols, blockSize int) (*Q8_0Tensor, error) {
	if blockSize <= 0 {
		return nil, qerr.ErrInvalidInput
	}
	n := numElements(rows, cols)
	nb := numBlocks(n, blockSize)
	t := &Q8_0Tensor{
		RowsN:     rows,
		ColsN:     cols,
		BlockSize: blockSize,
		Scales:    make([]float32, nb),
		Codes:     make([]int8, nb*blockSize),
	}
	for b := 0; b < nb; b++ {
		start := b * blockSize
		end := start + blockSize
		if end > n {
			end = n
		}
		block := data[start:end]
		scale := absMax(block) / 127
		t.Scales[b] = scale
		for i, x := range block {
			var code int32
			if scale != 0 {
				code = int32(math.Round(float64(x / scale)))
			}
			t.Codes[start+i] = int8(clampInt(int(code), -127, 127))
		}
	}
	return t, nil
}

// Dequantize reconstructs the FP32 matrix, row-major.
func (t *Q8_0Tensor) Dequantize() []float32 {
	n := numElements(t.RowsN, t.ColsN)
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		b := i / t.BlockSize
		out[i] = float32(t.Codes[i]) * t.Scales[b]
	}
	return out
}
