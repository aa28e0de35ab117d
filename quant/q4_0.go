package quant

import (
	"math"

	"github.com/nanoforge/qmfrt/qerr"
)

// Q4_0Tensor is a symmetric 4-bit block-quantized matrix: each block of
// BlockSize elements shares one FP32 scale, scale = max(|x_i|)/7, and
// every element is stored as a signed nibble in [-7,7]. Packing follows
// the half-block convention: within a block the first half of elements
// occupies the low nibble of each payload byte and the second half
// occupies the high nibble, byte[i] = (high+8)<<4 | (low+8).
type Q4_0Tensor struct {
	RowsN, ColsN int
	BlockSize    int
	Scales       []float32 // len = numBlocks
	Packed       []byte    // len = numBlocks*BlockSize/2
}

func (t *Q4_0Tensor) Scheme() Scheme { return Q4_0 }
func (t *Q4_0Tensor) Rows() int      { return t.RowsN }
func (t *Q4_0Tensor) Cols() int      { return t.ColsN }
func (t *Q4_0Tensor) Bytes() int     { return len(t.Scales)*4 + len(t.Packed) }

// QuantizeQ4_0 encodes a row-major FP32 matrix with the given block size,
// which must be even.
func QuantizeQ4_0(data []float32, rows, cols, blockSize int) (*Q4_0Tensor, error) {
	if blockSize <= 0 || blockSize%2 != 0 {
		return nil, qerr.ErrInvalidInput
	}
	n := numElements(rows, cols)
	nb := numBlocks(n, blockSize)
	half := blockSize / 2
	t := &Q4_0Tensor{
		RowsN:     rows,
		ColsN:     cols,
		BlockSize: blockSize,
		Scales:    make([]float32, nb),
		Packed:    make([]byte, nb*half),
	}
	codeOf := func(x, scale float32) int {
		if scale == 0 {
			return 0
		}
		c := int(math.Round(float64(x / scale)))
		return clampInt(c, -7, 7)
	}
	for b := 0; b < nb; b++ {
		start := b * blockSize
		end := start + blockSize
		if end > n {
			end = n
		}
		block := data[start:end]
		scale := absMax(block) / 7
		t.Scales[b] = scale
		base := b * half
		for i := 0; i < half; i++ {
			var lowCode, highCode int
			if i < len(block) {
				lowCode = codeOf(block[i], scale)
			}
			if half+i < len(block) {
				highCode = codeOf(block[half+i], scale)
			}
			t.Packed[base+i] = byte((highCode+8)<<4 | (lowCode + 8))
		}
	}
	return t, nil
}

// Dequantize reconstructs the FP32 matrix, row-major.
func (t *Q4_0Tensor) Dequantize() []float32 {
	n := numElements(t.RowsN, t.ColsN)
	out := make([]float32, n)
	half := t.BlockSize / 2
	for b := 0; b < len(t.Scales); b++ {
		scale := t.Scales[b]
		base := b * half
		blockStart := b * t.BlockSize
		for i := 0; i < half; i++ {
			byt := t.Packed[base+i]
			low := int(byt&0x0f) - 8
			high := int(byt>>4) - 8
			if idx := blockStart + i; idx < n {
				out[idx] = float32(low) * scale
			}
			if idx := blockStart + half + i; idx < n {
				out[idx] = float32(high) * scale
			}
		}
	}
	return out
}
