package bregman

import (
	"math"
	"testing"

	"github.com/cpmech/gowass/grid"
	"github.com/cpmech/gowass/lsolve"
	"github.com/cpmech/gowass/operators"
)

func Test_Solve_zeroMassImbalanceGivesZeroDistance(t *testing.T) {
	g, err := grid.New(grid.Shape{Ny: 3, Nx: 3}, grid.VoxelSize{Hy: 1, Hx: 1})
	if err != nil {
		t.Fatal(err)
	}
	ops, err := operators.New(g, operators.Config{Lumping: true})
	if err != nil {
		t.Fatal(err)
	}
	deltaMass := make([]float64, g.NumCells)

	res, err := Solve(g, ops, deltaMass, Options{
		MaxIter: 10,
		Linear:  lsolve.Settings{Method: lsolve.AMG},
	})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Distance) > 1e-8 {
		t.Fatalf("distance for zero imbalance = %g, want 0", res.Distance)
	}
}

func Test_Solve_pinnedPotentialStaysZero(t *testing.T) {
	g, err := grid.New(grid.Shape{Ny: 4, Nx: 4}, grid.VoxelSize{Hy: 1, Hx: 1})
	if err != nil {
		t.Fatal(err)
	}
	ops, err := operators.New(g, operators.Config{Lumping: true})
	if err != nil {
		t.Fatal(err)
	}
	deltaMass := make([]float64, g.NumCells)
	deltaMass[0] = 1
	deltaMass[g.NumCells-1] = -1

	res, err := Solve(g, ops, deltaMass, Options{
		MaxIter: 5,
		Linear:  lsolve.Settings{Method: lsolve.AMG},
	})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Potential[g.PinnedCell]) > 1e-8 {
		t.Fatalf("pinned potential = %g, want 0", res.Potential[g.PinnedCell])
	}
}

// Every spec.md 6 reduction tier produces the same distance on the same
// instance (the full, flux-reduced, and fully-reduced linear systems are
// algebraically equivalent).
func Test_LinearSolverTiers_AgreeOnDistance(t *testing.T) {
	g, err := grid.New(grid.Shape{Ny: 4, Nx: 4}, grid.VoxelSize{Hy: 1, Hx: 1})
	if err != nil {
		t.Fatal(err)
	}
	ops, err := operators.New(g, operators.Config{Lumping: true})
	if err != nil {
		t.Fatal(err)
	}
	deltaMass := make([]float64, g.NumCells)
	deltaMass[0] = 1
	deltaMass[g.NumCells-1] = -1

	tiers := []lsolve.Tier{lsolve.TierFull, lsolve.TierFluxReduced, lsolve.TierFullyReduced}
	var distances []float64
	for _, tier := range tiers {
		res, err := Solve(g, ops, deltaMass, Options{
			MaxIter:      100,
			TolResidual:  1e-7,
			TolIncrement: 1e-7,
			TolDistance:  1e-9,
			Tier:         tier,
			Linear:       lsolve.Settings{Method: lsolve.LU},
		})
		if err != nil {
			t.Fatalf("tier %v: %v", tier, err)
		}
		distances = append(distances, res.Distance)
	}
	for k := 1; k < len(distances); k++ {
		if math.Abs(distances[k]-distances[0]) > 1e-4 {
			t.Fatalf("tier %v distance = %g, want %g (tier %v)", tiers[k], distances[k], distances[0], tiers[0])
		}
	}
}

func Test_shrink_zeroFluxStaysZero(t *testing.T) {
	g, err := grid.New(grid.Shape{Ny: 3, Nx: 3}, grid.VoxelSize{Hy: 1, Hx: 1})
	if err != nil {
		t.Fatal(err)
	}
	zero := make([]float64, g.NumFaces)
	out := shrink(g, zero, 1.0, 1e-10)
	for f, v := range out {
		if v != 0 {
			t.Fatalf("face %d shrink output = %g, want 0", f, v)
		}
	}
}
