package xgf

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/nanoforge/qmfrt/qerr"
	"github.com/nanoforge/qmfrt/quant"
)

func writeTensorEntry(buf *bytes.Buffer, name string, t typeCode, rows, cols uint32, payload []byte, padded bool) {
	nameBytes := []byte(name)
	var nameLen [2]byte
	binary.LittleEndian.PutUint16(nameLen[:], uint16(len(nameBytes)))
	buf.Write(nameLen[:])
	buf.Write(nameBytes)

	buf.WriteByte(byte(t))
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], rows)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], cols)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(len(payload)))
	buf.Write(u32[:])

	buf.Write(payload)
	if padded {
		rem := buf.Len() % PayloadAlignment
		if rem != 0 {
			buf.Write(make([]byte, PayloadAlignment-rem))
		}
	}
}

func encodeXGFQ8_0Payload(t *testing.T, data []float32, rows, cols int) []byte {
	q, err := quant.QuantizeQ8_0(data, rows, cols, SourceBlockSize)
	if err != nil {
		t.Fatalf("QuantizeQ8_0: %v", err)
	}
	buf := make([]byte, len(q.Scales)*4+len(q.Codes))
	for i, s := range q.Scales {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	codes := make([]byte, len(q.Codes))
	for i, c := range q.Codes {
		codes[i] = byte(c)
	}
	copy(buf[len(q.Scales)*4:], codes)
	return buf
}

func encodeXGFQ4_0Payload(t *testing.T, data []float32, rows, cols int) []byte {
	q, err := quant.QuantizeQ4_0(data, rows, cols, SourceBlockSize)
	if err != nil {
		t.Fatalf("QuantizeQ4_0: %v", err)
	}
	buf := make([]byte, len(q.Scales)*4+len(q.Packed))
	for i, s := range q.Scales {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	copy(buf[len(q.Scales)*4:], q.Packed)
	return buf
}

func buildFixture(t *testing.T, magic string, includeUnsupported bool) string {
	var buf bytes.Buffer
	buf.WriteString(magic)

	q8Data := make([]float32, 64)
	q4Data := make([]float32, 64)
	for i := range q8Data {
		q8Data[i] = float32(math.Sin(float64(i) * 0.1))
		q4Data[i] = float32(math.Cos(float64(i) * 0.1))
	}

	type entry struct {
		name       string
		typ        typeCode
		rows, cols uint32
		payload    []byte
	}
	entries := []entry{
		{"layer0.attn", typeQ8_0, 1, 64, encodeXGFQ8_0Payload(t, q8Data, 1, 64)},
		{"layer0.ffn", typeQ4_0, 1, 64, encodeXGFQ4_0Payload(t, q4Data, 1, 64)},
	}
	if includeUnsupported {
		entries = append(entries, entry{"layer0.weird", typeQ5_K, 1, 32, make([]byte, 16)})
	}

	meta := map[string]string{"arch": "xgf-fixture"}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal meta: %v", err)
	}

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(entries)))
	buf.Write(countBuf[:])
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(metaJSON)))
	buf.Write(countBuf[:])
	buf.Write(metaJSON)

	padded := magic == MagicV3
	for _, e := range entries {
		writeTensorEntry(&buf, e.name, e.typ, e.rows, e.cols, e.payload, padded)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.xgf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestImportV2(t *testing.T) {
	path := buildFixture(t, MagicV2, false)
	res, err := Import(path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Metadata["arch"] != "xgf-fixture" {
		t.Errorf("metadata = %v, want arch=xgf-fixture", res.Metadata)
	}
	if len(res.Tensors) != 2 {
		t.Fatalf("got %d tensors, want 2", len(res.Tensors))
	}
	byName := map[string]string{}
	for _, tn := range res.Tensors {
		byName[tn.Name] = tn.Scheme()
	}
	if byName["layer0.attn"] != "Q8_0" {
		t.Errorf("layer0.attn scheme = %q, want Q8_0", byName["layer0.attn"])
	}
	if byName["layer0.ffn"] != "Q4_0" {
		t.Errorf("layer0.ffn scheme = %q, want Q4_0", byName["layer0.ffn"])
	}
}

func TestImportV3Padded(t *testing.T) {
	path := buildFixture(t, MagicV3, false)
	res, err := Import(path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Tensors) != 2 {
		t.Fatalf("got %d tensors, want 2", len(res.Tensors))
	}
}

// Only Q8_0 and Q4_0, both block-32, are importable; every other XGF
// tensor type is rejected into a single batched UnsupportedTypesError.
func TestImportRejectsUnsupportedType(t *testing.T) {
	path := buildFixture(t, MagicV2, true)
	_, err := Import(path)
	if err == nil {
		t.Fatal("expected error for Q5_K tensor")
	}
	var uerr *qerr.UnsupportedTypesError
	if !asUnsupportedTypesError(err, &uerr) {
		t.Fatalf("expected *qerr.UnsupportedTypesError, got %T: %v", err, err)
	}
	if len(uerr.Types) != 1 || uerr.Types[0] != "Q5_K" {
		t.Errorf("Types = %v, want [Q5_K]", uerr.Types)
	}
}

// F32 and F16 are not among the two schemes this importer reconciles
// (only block-32 Q8_0/Q4_0 are); both must be rejected the same way
// Q5_K is, batched into one error rather than imported.
func TestImportRejectsF16AndF32(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(MagicV2)

	meta := map[string]string{}
	metaJSON, _ := json.Marshal(meta)
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], 2)
	buf.Write(countBuf[:])
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(metaJSON)))
	buf.Write(countBuf[:])
	buf.Write(metaJSON)

	f32Payload := make([]byte, 16)
	f16Payload := make([]byte, 8)
	writeTensorEntry(&buf, "tok_embd", typeF32, 2, 2, f32Payload, false)
	writeTensorEntry(&buf, "norm", typeF16, 2, 2, f16Payload, false)

	dir := t.TempDir()
	path := filepath.Join(dir, "f16f32.xgf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Import(path)
	if err == nil {
		t.Fatal("expected error for F32/F16 tensors")
	}
	var uerr *qerr.UnsupportedTypesError
	if !asUnsupportedTypesError(err, &uerr) {
		t.Fatalf("expected *qerr.UnsupportedTypesError, got %T: %v", err, err)
	}
	if len(uerr.Types) != 2 {
		t.Errorf("Types = %v, want 2 entries", uerr.Types)
	}
}

func asUnsupportedTypesError(err error, target **qerr.UnsupportedTypesError) bool {
	if ue, ok := err.(*qerr.UnsupportedTypesError); ok {
		*target = ue
		return true
	}
	return false
}

func TestImportRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.xgf")
	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Import(path); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestReconcileBlockSize32To64(t *testing.T) {
	// A Q4_0 tensor encoded at XGF's native 32-element block size must
	// come out re-encoded at this runtime's 64-element default when
	// imported.
	data := make([]float32, 128)
	for i := range data {
		data[i] = float32(math.Sin(float64(i) * 0.1))
	}
	q, err := quant.QuantizeQ4_0(data, 1, 128, SourceBlockSize)
	if err != nil {
		t.Fatalf("QuantizeQ4_0: %v", err)
	}
	payload := make([]byte, len(q.Scales)*4+len(q.Packed))
	for i, s := range q.Scales {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(s))
	}
	copy(payload[len(q.Scales)*4:], q.Packed)

	fp32, err := decodeXGFQ4_0(payload, 1, 128)
	if err != nil {
		t.Fatalf("decodeXGFQ4_0: %v", err)
	}
	wt, err := requantize("w", fp32, 1, 128, quant.Q4_0)
	if err != nil {
		t.Fatalf("requantize: %v", err)
	}
	if wt.Scheme() != "Q4_0" {
		t.Errorf("Scheme() = %q, want Q4_0", wt.Scheme())
	}
	if wt.Quant().(*quant.Q4_0Tensor).BlockSize != quant.DefaultBlockSize {
		t.Errorf("re-encoded block size = %d, want %d", wt.Quant().(*quant.Q4_0Tensor).BlockSize, quant.DefaultBlockSize)
	}
}
