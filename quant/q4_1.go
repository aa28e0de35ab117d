package quant

import (
	"math"

	"github.com/nanoforge/qmfrt/qerr"
)

// Q4_1Tensor is an asymmetric 4-bit block-quantized matrix: each block
// shares an FP32 scale and minimum, scale = (max-min)/15, and every
// element is stored as an unsigned nibble in [0,15] such that
// x_i ~= min + code*scale. Packing uses the same half-block convention
// as Q4_0.
type Q4_1Tensor struct {
	RowsN, ColsN int
	BlockSize    int
	Scales       []float32
	Mins         []float32
	Packed       []byte
}

func (t *Q4_1Tensor) Scheme() Scheme { return Q4_1 }
func (t *Q4_1Tensor) Rows() int      { return t.RowsN }
func (t *Q4_1Tensor) Cols() int      { return t.ColsN }
func (t *Q4_1Tensor) Bytes() int     { return len(t.Scales)*4 + len(t.Mins)*4 + len(t.Packed) }

// QuantizeQ4_1 encodes a row-major FP32 matrix with the given block size,
// which must be even.
func QuantizeQ4_1(data []float32, rows, cols, blockSize int) (*Q4_1Tensor, error) {
	if blockSize <= 0 || blockSize%2 != 0 {
		return nil, qerr.ErrInvalidInput
	}
	n := numElements(rows, cols)
	nb := numBlocks(n, blockSize)
	half := blockSize / 2
	t := &Q4_1Tensor{
		RowsN:     rows,
		ColsN:     cols,
		BlockSize: blockSize,
		Scales:    make([]float32, nb),
		Mins:      make([]float32, nb),
		Packed:    make([]byte, nb*half),
	}
	for b := 0; b < nb; b++ {
		start := b * blockSize
		end := start + blockSize
		if end > n {
			end = n
		}
		block := data[start:end]
		min, max := minMax(block)
		scale := (max - min) / 15
		t.Scales[b] = scale
		t.Mins[b] = min
		codeOf := func(x float32) int {
			if scale == 0 {
				return 0
			}
			c := int(math.Round(float64((x - min) / scale)))
			return clampInt(c, 0, 15)
		}
		base := b * half
		for i := 0; i < half; i++ {
			var lowCode, highCode int
			if i < len(block) {
				lowCode = codeOf(block[i])
			}
			if half+i < len(block) {
				highCode = codeOf(block[half+i])
			}
			t.Packed[base+i] = byte(highCode<<4 | lowCode)
		}
	}
	return t, nil
}

// Dequantize reconstructs the FP32 matrix, row-major.
func (t *Q4_1Tensor) Dequantize() []float32 {
	n := numElements(t.RowsN, t.ColsN)
	out := make([]float32, n)
	half := t.BlockSize / 2
	for b := 0; b < len(t.Scales); b++ {
		scale, min := t.Scales[b], t.Mins[b]
		base := b * half
		blockStart := b * t.BlockSize
		for i := 0; i < half; i++ {
			byt := t.Packed[base+i]
			low := int(byt & 0x0f)
			high := int(byt >> 4)
			if idx := blockStart + i; idx < n {
				out[idx] = min + float32(low)*scale
			}
			if idx := blockStart + half + i; idx < n {
				out[idx] = min + float32(high)*scale
			}
		}
	}
	return out
}
