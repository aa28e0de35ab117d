package quant

import "math"

// Q4KTensor is a super-block-quantized matrix: each super-block of
// SuperBlockSize elements is divided into SubBlocksPerSuper sub-blocks
// of SubBlockSize elements. Every sub-block has its own 4-bit unsigned
// quant step and minimum, both expressed as a 6-bit code against one
// shared FP32 scale and one shared FP32 minimum per super-block:
//
//	step[j]  = SuperScale[s] * StepCode[s][j]
//	min[j]   = SuperMin[s]   * MinCode[s][j]
//	x_i ~= min[j] + step[j] * code_i,  code_i in [0,15]
//
// Packing within a sub-block follows the Q4_0 half-block convention:
// the first 16 elements occupy low nibbles, the last 16 occupy high
// nibbles of 16 payload bytes.
type Q4KTensor struct {
	RowsN, ColsN int
	NumSuper     int
	SuperScale   []float32 // len = NumSuper
	SuperMin     []float32 // len = NumSuper
	StepCode     [][SubBlocksPerSuper]uint8 // 6-bit codes, len = NumSuper
	MinCode      [][SubBlocksPerSuper]uint8
	Packed       []byte // len = NumSuper*SuperBlockSize/2
}

func (t *Q4KTensor) Scheme() Scheme { return Q4_K }
func (t *Q4KTensor) Rows() int      { return t.RowsN }
func (t *Q4KTensor) Cols() int      { return t.ColsN }
func (t *Q4KTensor) Bytes() int {
	return len(t.SuperScale)*4 + len(t.SuperMin)*4 +
		len(t.StepCode)*SubBlocksPerSuper*2 + len(t.Packed)
}

// QuantizeQ4_K encodes a row-major FP32 matrix using the fixed
// 256/8/32 super-block layout.
func QuantizeQ4_K(data []float32, rows, cols int) (*Q4KTensor, error) {
	if err := checkShape(rows, cols); err != nil {
		return nil, err
	}
	n := numElements(rows, cols)
	nSuper := numBlocks(n, SuperBlockSize)
	t := &Q4KTensor{
		RowsN:      rows,
		ColsN:      cols,
		NumSuper:   nSuper,
		SuperScale: make([]float32, nSuper),
		SuperMin:   make([]float32, nSuper),
		StepCode:   make([][SubBlocksPerSuper]uint8, nSuper),
		MinCode:    make([][SubBlocksPerSuper]uint8, nSuper),
		Packed:     make([]byte, nSuper*SuperBlockSize/2),
	}

	for s := 0; s < nSuper; s++ {
		superStart := s * SuperBlockSize
		var subMin, subMax [SubBlocksPerSuper]float32
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
			subMin[j], subMax[j] = minMax(block)
		}

		var maxStep, minLocalMin float32
		first := true
		for j := 0; j < SubBlocksPerSuper; j++ {
			if subLen[j] == 0 {
				continue
			}
			step := (subMax[j] - subMin[j]) / 15
			if step > maxStep {
				maxStep = step
			}
			if first || subMin[j] < minLocalMin {
				minLocalMin = subMin[j]
				first = false
			}
		}
		superScale := maxStep / 63
		superMin := minLocalMin / 63
		t.SuperScale[s] = superScale
		t.SuperMin[s] = superMin

		for j := 0; j < SubBlocksPerSuper; j++ {
			if subLen[j] == 0 {
				continue
			}
			step := (subMax[j] - subMin[j]) / 15
			var stepCode, minCode int
			if superScale != 0 {
				stepCode = clampInt(int(math.Round(float64(step/superScale))), 0, 63)
			}
			if superMin != 0 {
				minCode = clampInt(int(math.Round(float64(subMin[j]/superMin))), 0, 63)
			}
			t.StepCode[s][j] = uint8(stepCode)
			t.MinCode[s][j] = uint8(minCode)

			effStep := superScale * float32(stepCode)
			effMin := superMin * float32(minCode)

			start := superStart + j*SubBlockSize
			packBase := (s*SubBlocksPerSuper + j) * (SubBlockSize / 2)
			half := SubBlockSize / 2
			for i := 0; i < half; i++ {
				var lowCode, highCode int
				if idx := start + i; idx < n {
					lowCode = codeQ4K(data[idx], effMin, effStep)
				}
				if idx := start + half + i; idx < n {
					highCode = codeQ4K(data[idx], effMin, effStep)
				}
				t.Packed[packBase+i] = byte(highCode<<4 | lowCode)
			}
		}
	}
	return t, nil
}

func codeQ4K(x, min, step float32) int {
	if step == 0 {
		return 0
	}
	c := int(math.Round(float64((x - min) / step)))
	return clampInt(c, 0, 15)
}

// Dequantize reconstructs the FP32 matrix, row-major.
func (t *Q4KTensor) Dequantize() []float32 {
	n := numElements(t.RowsN, t.ColsN)
	out := make([]float32, n)
	half := SubBlockSize / 2
	for s := 0; s < t.NumSuper; s++ {
		superStart := s * SuperBlockSize
		for j := 0; j < SubBlocksPerSuper; j++ {
			step := t.SuperScale[s] * float32(t.StepCode[s][j])
			min := t.SuperMin[s] * float32(t.MinCode[s][j])
			start := superStart + j*SubBlockSize
			packBase := (s*SubBlocksPerSuper + j) * half
			for i := 0; i < half; i++ {
				byt := t.Packed[packBase+i]
				low := int(byt & 0x0f)
				high := int(byt >> 4)
				if idx := start + i; idx < n {
					out[idx] = min + float32(low)*step
				}
				if idx := start + half + i; idx < n {
					out[idx] = min + float32(high)*step
				}
			}
		}
	}
	return out
}
