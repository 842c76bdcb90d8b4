package vector

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	tests := []struct {
		name     string
		in       []float32
		wantZero bool
	}{
		{"unit axis", []float32{0, 3, 0}, false},
		{"general", []float32{1, 2, 3}, false},
		{"negative", []float32{-4, 3}, false},
		{"zero", []float32{0, 0, 0}, true},
		{"nan component", []float32{1, nan, 0}, true},
		{"inf component", []float32{inf, 1, 0}, true},
		{"overflowing norm", []float32{math.MaxFloat32, math.MaxFloat32}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(tt.in)
			if len(out) != len(tt.in) {
				t.Fatalf("len = %d, want %d", len(out), len(tt.in))
			}
			norm := L2Norm(out)
			if tt.wantZero {
				for i, v := range out {
					if v != 0 {
						t.Errorf("out[%d] = %v, want 0", i, v)
					}
				}
				return
			}
			if math.Abs(norm-1) > 1e-5 {
				t.Errorf("norm = %v, want 1", norm)
			}
		})
	}
}

func TestNormalize_DoesNotMutate(t *testing.T) {
	in := []float32{3, 4}
	_ = Normalize(in)
	if in[0] != 3 || in[1] != 4 {
		t.Errorf("input mutated: %v", in)
	}
}

func TestInnerProduct(t *testing.T) {
	if got := InnerProduct([]float32{1, 2, 3}, []float32{4, 5, 6}); got != 32 {
		t.Errorf("InnerProduct = %v, want 32", got)
	}
	if got := InnerProduct([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("length mismatch = %v, want 0", got)
	}
	if got := InnerProduct(nil, nil); got != 0 {
		t.Errorf("empty = %v, want 0", got)
	}
}

func TestFiniteScore(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if finiteScore(v) != 0 {
			t.Errorf("finiteScore(%v) != 0", v)
		}
	}
	if finiteScore(0.5) != 0.5 {
		t.Error("finite score changed")
	}
}
