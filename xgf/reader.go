package xgf

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nanoforge/qmfrt/qerr"
	"github.com/nanoforge/qmfrt/quant"
	"github.com/nanoforge/qmfrt/weight"
)

// Result is the outcome of a successful Import.
type Result struct {
	Metadata map[string]string
	Tensors  []*weight.Tensor
}

// Import reads an XGF (version 2 or 3) file and reconciles every
// tensor into this runtime's weight/quant representation.
func Import(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("xgf: read %s: %w", path, err)
	}
	return importBytes(data)
}

func importBytes(data []byte) (*Result, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: xgf file too short", qerr.ErrContainerCorrupt)
	}
	magic := string(data[0:4])
	var padded bool
	switch magic {
	case MagicV2:
		padded = false
	case MagicV3:
		padded = true
	default:
		return nil, fmt.Errorf("%w: unrecognized xgf magic %q", qerr.ErrContainerCorrupt, magic)
	}
	pos := 4
	if pos+8 > len(data) {
		return nil, fmt.Errorf("%w: truncated xgf header", qerr.ErrContainerCorrupt)
	}
	tensorCount := binary.LittleEndian.Uint32(data[pos:])
	pos += 4
	metaLen := binary.LittleEndian.Uint32(data[pos:])
	pos += 4
	if pos+int(metaLen) > len(data) {
		return nil, fmt.Errorf("%w: truncated xgf metadata", qerr.ErrContainerCorrupt)
	}
	var metadata map[string]string
	if metaLen > 0 {
		if err := json.Unmarshal(data[pos:pos+int(metaLen)], &metadata); err != nil {
			return nil, fmt.Errorf("%w: decoding xgf metadata: %v", qerr.ErrContainerCorrupt, err)
		}
	}
	pos += int(metaLen)

	var unsupported []string
	var tensors []*weight.Tensor

	for i := uint32(0); i < tensorCount; i++ {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated tensor name length", qerr.ErrContainerCorrupt)
		}
		nameLen := int(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2
		if pos+nameLen > len(data) {
			return nil, fmt.Errorf("%w: truncated tensor name", qerr.ErrContainerCorrupt)
		}
		name := string(data[pos : pos+nameLen])
		pos += nameLen

		if pos+13 > len(data) {
			return nil, fmt.Errorf("%w: truncated tensor header for %q", qerr.ErrContainerCorrupt, name)
		}
		th := tensorHeader{
			Type:       typeCode(data[pos]),
			Rows:       binary.LittleEndian.Uint32(data[pos+1:]),
			Cols:       binary.LittleEndian.Uint32(data[pos+5:]),
			PayloadLen: binary.LittleEndian.Uint32(data[pos+9:]),
		}
		pos += 13

		if pos+int(th.PayloadLen) > len(data) {
			return nil, fmt.Errorf("%w: truncated payload for %q", qerr.ErrContainerCorrupt, name)
		}
		payload := data[pos : pos+int(th.PayloadLen)]
		pos += int(th.PayloadLen)
		if padded {
			rem := pos % PayloadAlignment
			if rem != 0 {
				pos += PayloadAlignment - rem
			}
		}

		t, err := reconcileTensor(name, th, payload)
		if err != nil {
			if uerr, ok := asUnsupported(err); ok {
				unsupported = append(unsupported, uerr)
				continue
			}
			return nil, err
		}
		tensors = append(tensors, t)
	}

	if len(unsupported) > 0 {
		return nil, &qerr.UnsupportedTypesError{Types: unsupported}
	}
	return &Result{Metadata: metadata, Tensors: tensors}, nil
}

func asUnsupported(err error) (string, bool) {
	if ue, ok := err.(unsupportedTensorErr); ok {
		return ue.typeName, true
	}
	return "", false
}

type unsupportedTensorErr struct{ typeName string }

func (e unsupportedTensorErr) Error() string {
	return fmt.Sprintf("unsupported xgf tensor type %s", e.typeName)
}

// reconcileTensor converts one XGF tensor into a weight.Tensor,
// dequantizing and requantizing it from XGF's native 32-element block
// size to this runtime's 64-element block size. Only the two block-32
// schemes this runtime actually supports, Q8_0 and Q4_0, are
// reconciled; every other XGF tensor type — including F16, F32, Q4_1,
// Q4_K and Q6_K — is rejected so it can be batched into a single
// UnsupportedTypesError by importBytes.
func reconcileTensor(name string, th tensorHeader, payload []byte) (*weight.Tensor, error) {
	rows, cols := int(th.Rows), int(th.Cols)

	switch th.Type {
	case typeQ8_0:
		src, err := decodeXGFQ8_0(payload, rows, cols)
		if err != nil {
			return nil, err
		}
		return requantize(name, src, rows, cols, quant.Q8_0)

	case typeQ4_0:
		src, err := decodeXGFQ4_0(payload, rows, cols)
		if err != nil {
			return nil, err
		}
		return requantize(name, src, rows, cols, quant.Q4_0)

	default:
		return nil, unsupportedTensorErr{typeName: th.Type.String()}
	}
}

// requantize dequantizes an XGF-native (32-element block) tensor to
// FP32 and re-encodes it at this runtime's DefaultBlockSize.
func requantize(name string, fp32 []float32, rows, cols int, scheme quant.Scheme) (*weight.Tensor, error) {
	q, err := quant.Quantize(scheme, fp32, rows, cols)
	if err != nil {
		return nil, err
	}
	return weight.NewQuantized(name, q), nil
}

