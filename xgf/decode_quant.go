package xgf

import (
	"encoding/binary"
	"math"

	"github.com/nanoforge/qmfrt/quant"
)

// The two functions below decode XGF's native block-quantized
// payloads (always SourceBlockSize==32) into FP32, using the same
// scale-then-codes byte layout as this runtime's own QMF codec, then
// immediately dequantize. The FP32 result is what the importer then
// re-quantizes at this runtime's own DefaultBlockSize (64).

func getFloat32sXGF(b []byte, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	return out
}

func decodeXGFQ8_0(payload []byte, rows, cols int) ([]float32, error) {
	n := rows * cols
	bs := SourceBlockSize
	nb := (n + bs - 1) / bs
	scales := getFloat32sXGF(payload, nb)
	codesBytes := payload[nb*4 : nb*4+nb*bs]
	codes := make([]int8, len(codesBytes))
	for i, b := range codesBytes {
		codes[i] = int8(b)
	}
	t := &quant.Q8_0Tensor{RowsN: rows, ColsN: cols, BlockSize: bs, Scales: scales, Codes: codes}
	return t.Dequantize(), nil
}

func decodeXGFQ4_0(payload []byte, rows, cols int) ([]float32, error) {
	n := rows * cols
	bs := SourceBlockSize
	nb := (n + bs - 1) / bs
	scales := getFloat32sXGF(payload, nb)
	packed := append([]byte(nil), payload[nb*4:nb*4+nb*bs/2]...)
	t := &quant.Q4_0Tensor{RowsN: rows, ColsN: cols, BlockSize: bs, Scales: scales, Packed: packed}
	return t.Dequantize(), nil
}
