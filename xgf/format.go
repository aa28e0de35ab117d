// Package xgf imports tensors from the foreign XGF container format
// (versions 2 and 3) and reconciles them into this runtime's own
// weight.Tensor representation. Only XGF's two block-32 schemes this
// runtime itself supports, Q8_0 and Q4_0, are reconciled: each is
// dequantized and requantized at this runtime's own block size of 64.
// Every other tensor type the file may carry — F16, F32, Q4_1, Q4_K,
// Q6_K, Q5_K, or anything else — is collected across the whole file
// and reported in one batched error rather than imported or failed on
// individually.
//
// Grounded on fs/ggml/gguf.go's two-pass KV/tensor decode shape and on
// x/ml/backend/mlx/quant.go's per-dtype dispatch-and-reject pattern,
// generalized from a single rejected tensor to a batched
// qerr.UnsupportedTypesError covering every rejected tensor in one pass.
package xgf

import "fmt"

// MagicV2 and MagicV3 are XGF's version-specific magic values. Version
// 3 additionally pads each tensor payload to PayloadAlignment bytes;
// version 2 packs payloads with no padding.
const (
	MagicV2 = "XGF2"
	MagicV3 = "XGF3"
)

// PayloadAlignment is the padding boundary used by XGF version 3.
const PayloadAlignment = 32

// SourceBlockSize is the block size XGF's plain block-quantized
// schemes (Q8_0, Q4_0, Q4_1) always use. This runtime's own block size
// (quant.DefaultBlockSize, 64) differs, which is why the importer must
// dequantize and requantize rather than reinterpret the payload bytes
// directly.
const SourceBlockSize = 32

// typeCode identifies a tensor's storage format within an XGF file.
type typeCode uint8

const (
	typeF32 typeCode = iota
	typeF16
	typeQ8_0
	typeQ4_0
	typeQ4_1
	typeQ4_K
	typeQ6_K
	typeQ5_K // present in the wild, never supported by this importer
)

func (t typeCode) String() string {
	switch t {
	case typeF32:
		return "F32"
	case typeF16:
		return "F16"
	case typeQ8_0:
		return "Q8_0"
	case typeQ4_0:
		return "Q4_0"
	case typeQ4_1:
		return "Q4_1"
	case typeQ4_K:
		return "Q4_K"
	case typeQ6_K:
		return "Q6_K"
	case typeQ5_K:
		return "Q5_K"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// tensorHeader is the fixed-size portion of one tensor entry, name
// excluded (name is a uint16-length-prefixed string immediately
// preceding this struct's bytes on the wire).
type tensorHeader struct {
	Type      typeCode
	Rows      uint32
	Cols      uint32
	PayloadLen uint32
}
