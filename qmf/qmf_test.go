package qmf

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/nanoforge/qmfrt/quant"
	"github.com/nanoforge/qmfrt/weight"
)

func writeGarbage(path string) error {
	return os.WriteFile(path, []byte("not a qmf file at all, just garbage bytes"), 0o644)
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.qmf")

	f32Data := []float32{1, 2, 3, 4, 5, 6}
	f32, err := weight.NewFP32("embed", f32Data, 2, 3)
	if err != nil {
		t.Fatalf("NewFP32: %v", err)
	}

	q8Data := make([]float32, 128)
	for i := range q8Data {
		q8Data[i] = float32(math.Sin(float64(i) * 0.05))
	}
	q8, err := quant.QuantizeQ8_0(q8Data, 2, 64, 64)
	if err != nil {
		t.Fatalf("QuantizeQ8_0: %v", err)
	}
	q8w := weight.NewQuantized("layer0.attn", q8)

	q4kData := make([]float32, 512)
	for i := range q4kData {
		q4kData[i] = float32(math.Cos(float64(i) * 0.02))
	}
	q4k, err := quant.QuantizeQ4_K(q4kData, 2, 256)
	if err != nil {
		t.Fatalf("QuantizeQ4_K: %v", err)
	}
	q4kw := weight.NewQuantized("layer0.ffn", q4k)

	meta := map[string]string{"general.arch": "qmfrt-test", "general.block_size": "64"}
	if err := Write(path, meta, []*weight.Tensor{f32, q8w, q4kw}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if got := r.Metadata()["general.arch"]; got != "qmfrt-test" {
		t.Errorf("metadata[general.arch] = %q, want qmfrt-test", got)
	}
	if len(r.Names()) != 3 {
		t.Fatalf("Names() = %v, want 3 entries", r.Names())
	}

	gotF32, err := r.Tensor("embed")
	if err != nil {
		t.Fatalf("Tensor(embed): %v", err)
	}
	for i, v := range gotF32.Dequantize() {
		if v != f32Data[i] {
			t.Errorf("embed[%d] = %v, want %v", i, v, f32Data[i])
		}
	}

	gotQ8, err := r.Tensor("layer0.attn")
	if err != nil {
		t.Fatalf("Tensor(layer0.attn): %v", err)
	}
	if gotQ8.Scheme() != "Q8_0" {
		t.Errorf("scheme = %q, want Q8_0", gotQ8.Scheme())
	}
	decoded := gotQ8.Dequantize()
	for i := range q8Data {
		if math.Abs(float64(decoded[i]-q8Data[i])) > 0.05 {
			t.Errorf("Q8_0 round trip at %d: got %v, want ~%v", i, decoded[i], q8Data[i])
			break
		}
	}

	gotQ4K, err := r.Tensor("layer0.ffn")
	if err != nil {
		t.Fatalf("Tensor(layer0.ffn): %v", err)
	}
	if gotQ4K.Rows != 2 || gotQ4K.Cols != 256 {
		t.Errorf("shape = (%d,%d), want (2,256)", gotQ4K.Rows, gotQ4K.Cols)
	}
}

// Two writes of the same tensors and metadata must produce byte-
// identical containers, per spec.md §4.5/§6's "bit-exact" contract.
func TestWriteIsByteExactAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.qmf")
	pathB := filepath.Join(dir, "b.qmf")

	build := func() []*weight.Tensor {
		f32, _ := weight.NewFP32("embed", []float32{1, 2, 3, 4, 5, 6}, 2, 3)
		q, _ := quant.QuantizeQ4_0(make([]float32, 64), 1, 64, 64)
		return []*weight.Tensor{f32, weight.NewQuantized("layer0.w", q)}
	}
	meta := map[string]string{"general.arch": "qmfrt-test"}

	if err := Write(pathA, meta, build()); err != nil {
		t.Fatalf("Write a: %v", err)
	}
	if err := Write(pathB, meta, build()); err != nil {
		t.Fatalf("Write b: %v", err)
	}

	bytesA, err := os.ReadFile(pathA)
	if err != nil {
		t.Fatalf("read a: %v", err)
	}
	bytesB, err := os.ReadFile(pathB)
	if err != nil {
		t.Fatalf("read b: %v", err)
	}
	if len(bytesA) != len(bytesB) {
		t.Fatalf("byte length differs: %d vs %d", len(bytesA), len(bytesB))
	}
	for i := range bytesA {
		if bytesA[i] != bytesB[i] {
			t.Fatalf("containers diverge at byte %d", i)
		}
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.qmf")
	if err := writeGarbage(path); err != nil {
		t.Fatalf("writeGarbage: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error opening a non-QMF file")
	}
}

func TestInspectDoesNotLoadPayloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.qmf")
	data := make([]float32, 64)
	q, _ := quant.QuantizeQ4_0(data, 1, 64, 64)
	w := weight.NewQuantized("t", q)
	if err := Write(path, nil, []*weight.Tensor{w}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	summary, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if summary.TensorCount != 1 || summary.Schemes["t"] != "Q4_0" {
		t.Errorf("summary = %+v, want one Q4_0 tensor named t", summary)
	}
}
