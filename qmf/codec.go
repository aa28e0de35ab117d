package qmf

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nanoforge/qmfrt/quant"
	"github.com/nanoforge/qmfrt/weight"
)

func putFloat32s(dst []byte, xs []float32) {
	for i, x := range xs {
		binary.LittleEndian.PutUint32(dst[i*4:i*4+4], math.Float32bits(x))
	}
}

func getFloat32s(src []byte, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4 : i*4+4]))
	}
	return out
}

// encodeTensor splits a weight tensor's raw data into the two byte
// regions spec.md §4.5's directory records separately: data (the bulk
// packed/raw element payload) and scale (every FP32 scale/minimum
// array and sub-block code table needed to interpret it). F32 tensors
// have no scale region.
func encodeTensor(t *weight.Tensor) (data, scale []byte, err error) {
	if !t.IsQuantized() {
		raw := t.Dequantize()
		data = make([]byte, len(raw)*4)
		putFloat32s(data, raw)
		return data, nil, nil
	}
	switch q := t.Quant().(type) {
	case *quant.Q8_0Tensor:
		data = int8ToBytes(q.Codes)
		scale = make([]byte, len(q.Scales)*4)
		putFloat32s(scale, q.Scales)
		return data, scale, nil
	case *quant.Q4_0Tensor:
		data = append([]byte(nil), q.Packed...)
		scale = make([]byte, len(q.Scales)*4)
		putFloat32s(scale, q.Scales)
		return data, scale, nil
	case *quant.Q4_1Tensor:
		data = append([]byte(nil), q.Packed...)
		scale = make([]byte, len(q.Scales)*4+len(q.Mins)*4)
		putFloat32s(scale, q.Scales)
		putFloat32s(scale[len(q.Scales)*4:], q.Mins)
		return data, scale, nil
	case *quant.Q4KTensor:
		data = append([]byte(nil), q.Packed...)
		n := q.NumSuper
		scale = make([]byte, n*4+n*4+n*quant.SubBlocksPerSuper+n*quant.SubBlocksPerSuper)
		off := 0
		putFloat32s(scale[off:], q.SuperScale)
		off += n * 4
		putFloat32s(scale[off:], q.SuperMin)
		off += n * 4
		for i := 0; i < n; i++ {
			copy(scale[off:off+quant.SubBlocksPerSuper], q.StepCode[i][:])
			off += quant.SubBlocksPerSuper
		}
		for i := 0; i < n; i++ {
			copy(scale[off:off+quant.SubBlocksPerSuper], q.MinCode[i][:])
			off += quant.SubBlocksPerSuper
		}
		return data, scale, nil
	case *quant.Q6KTensor:
		data = append([]byte(nil), q.Packed...)
		n := q.NumSuper
		scale = make([]byte, n*4+n*quant.SubBlocksPerSuper)
		off := 0
		putFloat32s(scale[off:], q.SuperScale)
		off += n * 4
		for i := 0; i < n; i++ {
			copy(scale[off:off+quant.SubBlocksPerSuper], q.ScaleCode[i][:])
			off += quant.SubBlocksPerSuper
		}
		return data, scale, nil
	default:
		return nil, nil, fmt.Errorf("qmf: unknown quantized tensor type %T", q)
	}
}

// decodeTensor reconstructs a *weight.Tensor from its directory entry
// and its separately-read data/scale byte regions. Per-scheme block
// counts are never stored explicitly in the directory (spec.md §4.5's
// entry has no such field): they're derived from the scale region's
// length, which is exactly nb (or nSuper) FP32/code arrays back to
// back for every scheme here.
func decodeTensor(entry DirEntry, data, scale []byte) (*weight.Tensor, error) {
	rows, cols := int(entry.Rows), int(entry.Cols)
	n := rows * cols
	if entry.Scheme == weight.SchemeF32 {
		return weight.NewFP32(entry.Name, getFloat32s(data, n), rows, cols)
	}
	schemeID, err := quant.ParseScheme(entry.Scheme)
	if err != nil {
		return nil, err
	}
	switch schemeID {
	case quant.Q8_0:
		nb := len(scale) / 4
		bs := len(data) / nb // Codes is stored one byte per element, nb*BlockSize long
		codes := bytesToInt8(data)
		return weight.NewQuantized(entry.Name, &quant.Q8_0Tensor{
			RowsN: rows, ColsN: cols, BlockSize: bs,
			Scales: getFloat32s(scale, nb), Codes: codes,
		}), nil
	case quant.Q4_0:
		nb := len(scale) / 4
		bs := (len(data) * 2) / nb // Packed is two nibbles per byte, nb*BlockSize/2 long
		return weight.NewQuantized(entry.Name, &quant.Q4_0Tensor{
			RowsN: rows, ColsN: cols, BlockSize: bs,
			Scales: getFloat32s(scale, nb), Packed: append([]byte(nil), data...),
		}), nil
	case quant.Q4_1:
		nb := len(scale) / 8
		bs := (len(data) * 2) / nb
		return weight.NewQuantized(entry.Name, &quant.Q4_1Tensor{
			RowsN: rows, ColsN: cols, BlockSize: bs,
			Scales: getFloat32s(scale, nb), Mins: getFloat32s(scale[nb*4:], nb),
			Packed: append([]byte(nil), data...),
		}), nil
	case quant.Q4_K:
		nSuper := len(scale) / (4 + 4 + quant.SubBlocksPerSuper + quant.SubBlocksPerSuper)
		off := 0
		superScale := getFloat32s(scale[off:], nSuper)
		off += nSuper * 4
		superMin := getFloat32s(scale[off:], nSuper)
		off += nSuper * 4
		stepCode := make([][quant.SubBlocksPerSuper]uint8, nSuper)
		for i := 0; i < nSuper; i++ {
			copy(stepCode[i][:], scale[off:off+quant.SubBlocksPerSuper])
			off += quant.SubBlocksPerSuper
		}
		minCode := make([][quant.SubBlocksPerSuper]uint8, nSuper)
		for i := 0; i < nSuper; i++ {
			copy(minCode[i][:], scale[off:off+quant.SubBlocksPerSuper])
			off += quant.SubBlocksPerSuper
		}
		return weight.NewQuantized(entry.Name, &quant.Q4KTensor{
			RowsN: rows, ColsN: cols, NumSuper: nSuper,
			SuperScale: superScale, SuperMin: superMin,
			StepCode: stepCode, MinCode: minCode, Packed: append([]byte(nil), data...),
		}), nil
	case quant.Q6_K:
		nSuper := len(scale) / (4 + quant.SubBlocksPerSuper)
		off := 0
		superScale := getFloat32s(scale[off:], nSuper)
		off += nSuper * 4
		scaleCode := make([][quant.SubBlocksPerSuper]uint8, nSuper)
		for i := 0; i < nSuper; i++ {
			copy(scaleCode[i][:], scale[off:off+quant.SubBlocksPerSuper])
			off += quant.SubBlocksPerSuper
		}
		return weight.NewQuantized(entry.Name, &quant.Q6KTensor{
			RowsN: rows, ColsN: cols, NumSuper: nSuper,
			SuperScale: superScale, ScaleCode: scaleCode, Packed: append([]byte(nil), data...),
		}), nil
	default:
		return nil, fmt.Errorf("qmf: unsupported scheme %q", entry.Scheme)
	}
}

func int8ToBytes(xs []int8) []byte {
	out := make([]byte, len(xs))
	for i, x := range xs {
		out[i] = byte(x)
	}
	return out
}

func bytesToInt8(xs []byte) []int8 {
	out := make([]int8, len(xs))
	for i, x := range xs {
		out[i] = int8(x)
	}
	return out
}
