package reduction

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/la"

	"github.com/cpmech/gowass/grid"
	"github.com/cpmech/gowass/operators"
)

func newTestGrid(t *testing.T) *grid.Grid {
	t.Helper()
	g, err := grid.New(grid.Shape{Ny: 3, Nx: 3}, grid.VoxelSize{Hy: 1, Hx: 1})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func Test_AssembleSchur_symmetric(t *testing.T) {
	g := newTestGrid(t)
	w := NewWorkspace(g)
	dHatInv := make([]float64, g.NumFaces)
	for f := range dHatInv {
		dHatInv[f] = 1.0 + 0.1*float64(f)
	}
	S := w.AssembleSchur(dHatInv)
	n := g.NumCells + 1
	for i := 0; i < n; i++ {
		ei := make([]float64, n)
		ei[i] = 1
		for j := 0; j < n; j++ {
			ej := make([]float64, n)
			ej[j] = 1
			ri := make([]float64, n)
			la.SpMatVecMulAdd(ri, 1, S, ej)
			rj := make([]float64, n)
			la.SpMatVecMulAdd(rj, 1, S, ei)
			if math.Abs(ri[i]-rj[j]) > 1e-10 {
				t.Fatalf("S not symmetric at (%d,%d): %g vs %g", i, j, ri[i], rj[j])
			}
		}
	}
}

func Test_AssembleSchur_pinRowSelectsPinnedCell(t *testing.T) {
	g := newTestGrid(t)
	w := NewWorkspace(g)
	dHatInv := make([]float64, g.NumFaces)
	for f := range dHatInv {
		dHatInv[f] = 1
	}
	S := w.AssembleSchur(dHatInv)
	lambda := g.NumCells
	e := make([]float64, lambda+1)
	e[lambda] = 1
	res := make([]float64, lambda+1)
	la.SpMatVecMulAdd(res, 1, S, e)
	for c := 0; c < g.NumCells; c++ {
		if c == g.PinnedCell {
			if math.Abs(res[c]-1) > 1e-14 {
				t.Fatalf("pin row entry at pinned cell = %g, want 1", res[c])
			}
		} else if math.Abs(res[c]) > 1e-14 {
			t.Fatalf("pin row entry at cell %d = %g, want 0", c, res[c])
		}
	}
}

func Test_FullToReduced_skipsOnlyPinnedCell(t *testing.T) {
	g := newTestGrid(t)
	w := NewWorkspace(g)
	count := 0
	for c := 0; c < g.NumCells; c++ {
		if c == g.PinnedCell {
			if w.FullToReduced[c] != -1 {
				t.Fatalf("pinned cell should map to -1, got %d", w.FullToReduced[c])
			}
			continue
		}
		if w.FullToReduced[c] < 0 || w.FullToReduced[c] >= g.NumCells-1 {
			t.Fatalf("cell %d maps out of range: %d", c, w.FullToReduced[c])
		}
		count++
	}
	if count != g.NumCells-1 {
		t.Fatalf("expected %d non-pinned cells, got %d", g.NumCells-1, count)
	}
	for k, c := range w.ReducedToFull {
		if w.FullToReduced[c] != k {
			t.Fatalf("ReducedToFull/FullToReduced mismatch at %d", k)
		}
	}
}

func Test_AssembleFullyReduced_smallerThanSchur(t *testing.T) {
	g := newTestGrid(t)
	w := NewWorkspace(g)
	dHatInv := make([]float64, g.NumFaces)
	for f := range dHatInv {
		dHatInv[f] = 1
	}
	St := w.AssembleFullyReduced(dHatInv)
	n := g.NumCells - 1
	x := make([]float64, n)
	for k := range x {
		x[k] = 1
	}
	res := make([]float64, n)
	la.SpMatVecMulAdd(res, 1, St, x)
	if len(res) != n {
		t.Fatalf("fully reduced system produced wrong length result: %d, want %d", len(res), n)
	}
}

func Test_ExpandPotential_pinnedCellIsZero(t *testing.T) {
	g := newTestGrid(t)
	w := NewWorkspace(g)
	reduced := make([]float64, g.NumCells-1)
	for k := range reduced {
		reduced[k] = float64(k + 1)
	}
	full := w.ExpandPotential(reduced)
	if full[g.PinnedCell] != 0 {
		t.Fatalf("pinned cell potential = %g, want 0", full[g.PinnedCell])
	}
	for c := 0; c < g.NumCells; c++ {
		if c == g.PinnedCell {
			continue
		}
		if full[c] != reduced[w.FullToReduced[c]] {
			t.Fatalf("cell %d: full=%g reduced=%g", c, full[c], reduced[w.FullToReduced[c]])
		}
	}
}

func Test_BackSubstituteFlux_zeroResidualZeroPotentialGivesZeroFlux(t *testing.T) {
	g := newTestGrid(t)
	ops, err := operators.New(g, operators.Config{Lumping: true})
	if err != nil {
		t.Fatal(err)
	}
	dHatInv := make([]float64, g.NumFaces)
	for f := range dHatInv {
		dHatInv[f] = 1
	}
	ru := make([]float64, g.NumFaces)
	xp := make([]float64, g.NumCells)
	flux := BackSubstituteFlux(ops, dHatInv, ru, xp)
	for f, v := range flux {
		if v != 0 {
			t.Fatalf("face %d flux = %g, want 0", f, v)
		}
	}
}

func Test_CheckPinPreconditions(t *testing.T) {
	if err := CheckPinPreconditions(0, 0, 1e-8); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := CheckPinPreconditions(1e-3, 0, 1e-8); err == nil {
		t.Fatal("expected error for nonzero multiplier residual")
	}
	if err := CheckPinPreconditions(0, 1e-3, 1e-8); err == nil {
		t.Fatal("expected error for nonzero pinned potential")
	}
}
