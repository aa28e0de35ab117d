package quant

import "math"

// Q6KTensor is a symmetric super-block-quantized matrix: each
// super-block of SuperBlockSize elements is divided into
// SubBlocksPerSuper sub-blocks of SubBlockSize elements, each with a
// 6-bit scale code against one shared FP32 super-block scale:
//
//	step[j] = SuperScale[s] * ScaleCode[s][j]
//	x_i ~= step[j] * code_i,  code_i in [-32,31]
//
// Element codes are bit-packed 6-bits-wide (tighter than Q4_K's
// nibble packing, since Q6_K carries no minimum and the element range
// needs the full 6 bits).
type Q6KTensor struct {
	RowsN, ColsN int
	NumSuper     int
	SuperScale   []float32
	ScaleCode    [][SubBlocksPerSuper]uint8
	Packed       []byte // pack6-encoded signed-as-(code+32) element codes
}

func (t *Q6KTensor) Scheme() Scheme { return Q6_K }
func (t *Q6KTensor) Rows() int      { return t.RowsN }
func (t *Q6KTensor) Cols() int      { return t.ColsN }
func (t *Q6KTensor) Bytes() int {
	return len(t.SuperScale)*4 + len(t.ScaleCode)*SubBlocksPerSuper + len(t.Packed)
}

// QuantizeQ6_K encodes a row-major FP32 matrix using the fixed
// 256/8/32 super-block layout.
func QuantizeQ6_K(data []float32, rows, cols int) (*Q6KTensor, error) {
	if err := checkShape(rows, cols); err != nil {
		return nil, err
	}
	n := numElements(rows, cols)
	nSuper := numBlocks(n, SuperBlockSize)
	t := &Q6KTensor{
		RowsN:      rows,
		ColsN:      cols,
		NumSuper:   nSuper,
		SuperScale: make([]float32, nSuper),
		ScaleCode:  make([][SubBlocksPerSuper]uint8, nSuper),
	}

	codes := make([]uint8, nSuper*SuperBlockSize)
	for s := 0; s < nSuper; s++ {
		superStart := s * SuperBlockSize
		var subStep [SubBlocksPerSuper]float32
		var subLen [SubBlocksPerSuper]int
		for j := 0; j < SubBlocksPerSuper; j++ {
			start := superStart + j*SubBlockSize
			end := start + SubBlockSize
			if start >= n {
				continue
			}
			if end > n {
				end = n
			}
			block := data[start:end]
			subLen[j] = len(block)
			subStep[j] = absMax(block) / 31
		}
		var maxStep float32
		for j := 0; j < SubBlocksPerSuper; j++ {
			if subStep[j] > maxStep {
				maxStep = subStep[j]
			}
		}
		superScale := maxStep / 63
		t.SuperScale[s] = superScale

		for j := 0; j < SubBlocksPerSuper; j++ {
			if subLen[j] == 0 {
				continue
			}
			var scCode int
			if superScale != 0 {
				scCode = clampInt(int(math.Round(float64(subStep[j]/superScale))), 0, 63)
			}
			t.ScaleCode[s][j] = uint8(scCode)
			effStep := superScale * float32(scCode)

			start := superStart + j*SubBlockSize
			for i := 0; i < SubBlockSize; i++ {
				idx := start + i
				if idx >= n {
					continue
				}
				var q int
				if effStep != 0 {
					q = clampInt(int(math.Round(float64(data[idx]/effStep))), -32, 31)
				}
				codes[idx] = uint8(q + 32)
			}
		}
	}
	t.Packed = pack6(codes)
	return t, nil
}

// Dequantize reconstructs the FP32 matrix, row-major.
func (t *Q6KTensor) Dequantize() []float32 {
	n := numElements(t.RowsN, t.ColsN)
	codes := unpack6(t.Packed, t.NumSuper*SuperBlockSize)
	out := make([]float32, n)
	for s := 0; s < t.NumSuper; s++ {
		superStart := s * SuperBlockSize
		for j := 0; j < SubBlocksPerSuper; j++ {
			step := t.SuperScale[s] * float32(t.ScaleCode[s][j])
			start := superStart + j*SubBlockSize
			for i := 0; i < SubBlockSize; i++ {
				idx := start + i
				if idx >= n {
					continue
				}
				q := int(codes[idx]) - 32
				out[idx] = float32(q) * step
			}
		}
	}
	return out
}
