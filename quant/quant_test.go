package quant

import (
	"math"
	"testing"
)

func sineData(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(float64(i) * 0.1))
	}
	return out
}

func maxRelError(orig, got []float32) float64 {
	var worst float64
	for i := range orig {
		denom := math.Abs(float64(orig[i]))
		if denom < 1e-3 {
			denom = 1e-3
		}
		e := math.Abs(float64(got[i]-orig[i])) / denom
		if e > worst {
			worst = e
		}
	}
	return worst
}

func TestRoundTripTolerance(t *testing.T) {
	cases := []struct {
		scheme  Scheme
		n       int
		maxErr  float64
	}{
		{Q8_0, 256, 0.01},
		{Q4_0, 256, 0.15},
		{Q4_1, 256, 0.10},
		{Q4_K, 512, 0.05},
		{Q6_K, 512, 0.03},
	}
	for _, c := range cases {
		t.Run(c.scheme.String(), func(t *testing.T) {
			data := sineData(c.n)
			qt, err := Quantize(c.scheme, data, 1, c.n)
			if err != nil {
				t.Fatalf("Quantize: %v", err)
			}
			got := qt.Dequantize()
			if len(got) != c.n {
				t.Fatalf("Dequantize length = %d, want %d", len(got), c.n)
			}
			if e := maxRelError(data, got); e > c.maxErr {
				t.Errorf("max relative error %.4f exceeds %.4f", e, c.maxErr)
			}
		})
	}
}

func TestQuantizeRejectsBadShape(t *testing.T) {
	if _, err := Quantize(Q8_0, []float32{1, 2, 3}, 0, 3); err == nil {
		t.Fatal("expected error for zero rows")
	}
	if _, err := Quantize(Q8_0, []float32{1, 2, 3}, 2, 3); err == nil {
		t.Fatal("expected error for mismatched data length")
	}
}

func TestSchemeStringAndParse(t *testing.T) {
	for _, s := range []Scheme{Q8_0, Q4_0, Q4_1, Q4_K, Q6_K} {
		parsed, err := ParseScheme(s.String())
		if err != nil {
			t.Fatalf("ParseScheme(%s): %v", s, err)
		}
		if parsed != s {
			t.Errorf("ParseScheme(%s) = %v, want %v", s, parsed, s)
		}
	}
	if _, err := ParseScheme("Q5_K"); err == nil {
		t.Fatal("expected error for unknown scheme")
	}
}

func TestNonBlockAlignedLength(t *testing.T) {
	// 70 elements does not divide evenly by the default block size (64).
	data := sineData(70)
	qt, err := Quantize(Q8_0, data, 1, 70)
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	got := qt.Dequantize()
	if len(got) != 70 {
		t.Fatalf("Dequantize length = %d, want 70", len(got))
	}
}

func TestQ4KSuperBlockTail(t *testing.T) {
	// 300 elements: one full super-block (256) plus a partial one (44),
	// whose last sub-block (12 elements) is itself partial.
	data := sineData(300)
	qt, err := QuantizeQ4_K(data, 1, 300)
	if err != nil {
		t.Fatalf("QuantizeQ4_K: %v", err)
	}
	got := qt.Dequantize()
	if len(got) != 300 {
		t.Fatalf("Dequantize length = %d, want 300", len(got))
	}
	if e := maxRelError(data, got); e > 0.08 {
		t.Errorf("max relative error %.4f too high for tail super-block", e)
	}
}
