// Package quant implements block-quantized weight tensors: per-block
// scale (plus, for some schemes, a per-block minimum or super-block
// scales) encoding of FP32 weights into Q8_0, Q4_0, Q4_1, Q4_K, or Q6_K,
// and their exact dequantization back to FP32.
//
// Grounded on fs/ggml/tensortype.go for the scheme-enum/String shape and
// on other_examples/yent-go-quant.go for the Q4_0 block layout,
// generalized here to all five schemes spec.md §4.1 requires. The
// encode loops here run sequentially on the calling goroutine.
package quant

import "fmt"

// Scheme identifies a block-quantization format.
type Scheme uint8

const (
	Q8_0 Scheme = iota
	Q4_0
	Q4_1
	Q4_K
	Q6_K
)

func (s Scheme) String() string {
	switch s {
	case Q8_0:
		return "Q8_0"
	case Q4_0:
		return "Q4_0"
	case Q4_1:
		return "Q4_1"
	case Q4_K:
		return "Q4_K"
	case Q6_K:
		return "Q6_K"
	default:
		return "unknown"
	}
}

// ParseScheme parses a scheme name as accepted by the CLI quantize
// operation and the QMF/XGF type tables.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "Q8_0":
		return Q8_0, nil
	case "Q4_0":
		return Q4_0, nil
	case "Q4_1":
		return Q4_1, nil
	case "Q4_K":
		return Q4_K, nil
	case "Q6_K":
		return Q6_K, nil
	default:
		return 0, fmt.Errorf("unsupported quantization scheme %q", s)
	}
}

// DefaultBlockSize is the block size used when the caller does not
// specify one. Super-block schemes (Q4_K, Q6_K) instead use a fixed
// 256-element super-block of 8 32-element sub-blocks and ignore this
// value.
const DefaultBlockSize = 64

// SuperBlockSize is the fixed super-block element count for the K
// variants.
const SuperBlockSize = 256

// SubBlockSize is the fixed sub-block element count within a K
// super-block.
const SubBlockSize = 32

// SubBlocksPerSuper is SuperBlockSize / SubBlockSize.
const SubBlocksPerSuper = SuperBlockSize / SubBlockSize
