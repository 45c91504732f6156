package anderson

import (
	"math"
	"testing"
)

func Test_Mix_zeroDepthIsNoOp(t *testing.T) {
	a := New(0, 0)
	x := []float64{1, 2, 3}
	g := []float64{4, 5, 6}
	out := a.Mix(x, g)
	for i := range out {
		if out[i] != g[i] {
			t.Fatalf("Mix with depth 0 changed value at %d: %g != %g", i, out[i], g[i])
		}
	}
}

func Test_Mix_firstCallReturnsRawOutput(t *testing.T) {
	a := New(3, 0)
	x := []float64{0, 0}
	g := []float64{1, 1}
	out := a.Mix(x, g)
	for i := range out {
		if out[i] != g[i] {
			t.Fatalf("first Mix call should return g unchanged, got %v want %v", out, g)
		}
	}
}

func Test_Mix_convergesFasterThanPlainFixedPoint(t *testing.T) {
	// Contraction map G(x) = 0.5*x + 1, fixed point at x=2.
	step := func(x float64) float64 { return 0.5*x + 1 }
	a := New(2, 0)
	x := []float64{0}
	for i := 0; i < 5; i++ {
		g := []float64{step(x[0])}
		x = a.Mix(x, g)
	}
	if math.Abs(x[0]-2) > 1e-6 {
		t.Fatalf("accelerated iteration did not converge to fixed point: %v", x)
	}
}

func Test_Reset_clearsHistory(t *testing.T) {
	a := New(2, 0)
	a.Mix([]float64{0}, []float64{1})
	a.Mix([]float64{1}, []float64{1.5})
	a.Reset()
	if a.gPrev != nil || a.fPrev != nil || len(a.dG) != 0 || len(a.dF) != 0 {
		t.Fatal("Reset did not clear history")
	}
}
