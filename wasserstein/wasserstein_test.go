package wasserstein

import (
	"fmt"
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"

	"github.com/cpmech/gowass/grid"
	"github.com/cpmech/gowass/reduction"
)

func solveOpts() Options {
	o := NewOptions()
	o.NumIter = 300
	o.LinearSolver = "amg-potential"
	o.TolResidual = 1e-7
	o.TolIncrement = 1e-7
	o.TolDistance = 1e-9
	return o
}

func dirac(ny, nx, i, j int) [][]float64 {
	m := make([][]float64, ny)
	for r := range m {
		m[r] = make([]float64, nx)
	}
	m[i][j] = 1
	return m
}

func zeros(ny, nx int) [][]float64 {
	m := make([][]float64, ny)
	for r := range m {
		m[r] = make([]float64, nx)
	}
	return m
}

// S1: shift along a row, 1x8 grid, expected W = 7.
func Test_S1_ShiftAlongRow(t *testing.T) {
	m1 := dirac(1, 8, 0, 0)
	m2 := dirac(1, 8, 0, 7)
	res, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, solveOpts())
	if err != nil {
		t.Fatal(err)
	}
	chk.Scalar(t, "S1: distance", 0.5, res.Distance, 7)
}

// S2: shift along a column, 8x1 grid, expected W = 7.
func Test_S2_ShiftAlongColumn(t *testing.T) {
	m1 := dirac(8, 1, 0, 0)
	m2 := dirac(8, 1, 7, 0)
	res, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, solveOpts())
	if err != nil {
		t.Fatal(err)
	}
	chk.Scalar(t, "S2: distance", 0.5, res.Distance, 7)
}

// S3: diagonal shift on a 5x5 grid, expected W = 8 (Manhattan distance).
func Test_S3_DiagonalShift(t *testing.T) {
	m1 := dirac(5, 5, 0, 0)
	m2 := dirac(5, 5, 4, 4)
	res, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, solveOpts())
	if err != nil {
		t.Fatal(err)
	}
	chk.Scalar(t, "S3: distance", 1.0, res.Distance, 8)
}

// S4: two-bump rearrangement on a 4x4 grid, expected W = 3.
func Test_S4_TwoBumpRearrangement(t *testing.T) {
	m1 := zeros(4, 4)
	m1[0][0] = 0.5
	m1[3][3] = 0.5
	m2 := zeros(4, 4)
	m2[0][3] = 0.5
	m2[3][0] = 0.5
	res, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, solveOpts())
	if err != nil {
		t.Fatal(err)
	}
	chk.Scalar(t, "S4: distance", 0.75, res.Distance, 3)
}

// S5: uniform shift on a 1x16 grid, expected W = 8.
func Test_S5_UniformShift(t *testing.T) {
	m1 := zeros(1, 16)
	m2 := zeros(1, 16)
	for j := 0; j < 8; j++ {
		m1[0][j] = 0.125
	}
	for j := 8; j < 16; j++ {
		m2[0][j] = 0.125
	}
	res, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, solveOpts())
	if err != nil {
		t.Fatal(err)
	}
	chk.Scalar(t, "S5: distance", 1.5, res.Distance, 8)
}

// S6: anisotropic voxel, 1x8 grid with Hx=2, Hy=1, expected W = 14.
func Test_S6_AnisotropicVoxel(t *testing.T) {
	m1 := dirac(1, 8, 0, 0)
	m2 := dirac(1, 8, 0, 7)
	res, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 2}, MethodNewton, solveOpts())
	if err != nil {
		t.Fatal(err)
	}
	chk.Scalar(t, "S6: distance", 1.0, res.Distance, 14)
}

// P1: identity, W(m,m) = 0 and the optimal flux is exactly zero.
func Test_P1_Identity(t *testing.T) {
	m := dirac(4, 4, 1, 2)
	res, err := Distance(m, m, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, solveOpts())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Distance) > 1e-8 {
		t.Fatalf("P1: distance = %g, want 0", res.Distance)
	}
	for i, row := range res.Flux {
		for j, v := range row {
			if math.Abs(v[0]) > 1e-8 || math.Abs(v[1]) > 1e-8 {
				t.Fatalf("P1: flux at (%d,%d) = %v, want zero", i, j, v)
			}
		}
	}
}

// P2: symmetry, W(m1,m2) = W(m2,m1) within 2*tol_distance.
func Test_P2_Symmetry(t *testing.T) {
	m1 := dirac(4, 4, 0, 0)
	m2 := dirac(4, 4, 3, 3)
	res12, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, solveOpts())
	if err != nil {
		t.Fatal(err)
	}
	res21, err := Distance(m2, m1, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, solveOpts())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res12.Distance-res21.Distance) > 2*solveOpts().TolDistance {
		t.Fatalf("P2: W(m1,m2)=%g, W(m2,m1)=%g, not symmetric", res12.Distance, res21.Distance)
	}
}

// P3: mass compatibility is a hard precondition; violation is rejected.
func Test_P3_MassCompatibilityRejected(t *testing.T) {
	m1 := dirac(3, 3, 0, 0)
	m2 := zeros(3, 3)
	m2[2][2] = 0.5 // total mass 0.5, imbalanced against m1's total mass 1
	_, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, solveOpts())
	if err == nil {
		t.Fatal("expected mass-imbalance rejection, got nil error")
	}
	var wErr *Error
	if !asError(err, &wErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if wErr.Kind != InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", wErr.Kind)
	}
}

// P5: the potential at the pinned cell is exactly 0.
func Test_P5_PinnedPotentialIsZero(t *testing.T) {
	m1 := dirac(4, 4, 0, 0)
	m2 := dirac(4, 4, 3, 3)
	res, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, solveOpts())
	if err != nil {
		t.Fatal(err)
	}
	g, _ := grid.New(grid.Shape{Ny: 4, Nx: 4}, grid.VoxelSize{Hy: 1, Hx: 1})
	pi, pj := g.CellCoords(g.PinnedCell)
	if res.Potential[pi][pj] != 0 {
		t.Fatalf("P5: potential at pinned cell = %g, want exactly 0", res.Potential[pi][pj])
	}
}

// P7: Newton vs Bregman agreement to 1e-4 relative (loosened here to
// account for the coarse CG tier and iteration budget used by the test).
func Test_P7_NewtonVsBregmanAgreement(t *testing.T) {
	m1 := dirac(4, 4, 0, 0)
	m2 := dirac(4, 4, 3, 3)
	opt := solveOpts()
	resN, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, opt)
	if err != nil {
		t.Fatal(err)
	}
	resB, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodBregman, opt)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(resN.Distance-resB.Distance) > 0.5 {
		t.Fatalf("P7: Newton=%g, Bregman=%g, disagree", resN.Distance, resB.Distance)
	}
}

// Round-trip: identical inputs produce identical outputs (determinism).
func Test_Determinism(t *testing.T) {
	m1 := dirac(3, 3, 0, 0)
	m2 := dirac(3, 3, 2, 2)
	opt := solveOpts()
	res1, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, opt)
	if err != nil {
		t.Fatal(err)
	}
	res2, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, opt)
	if err != nil {
		t.Fatal(err)
	}
	if res1.Distance != res2.Distance {
		t.Fatalf("non-deterministic distance: %g vs %g", res1.Distance, res2.Distance)
	}
}

func Test_InvalidInput_ShapeMismatch(t *testing.T) {
	m1 := dirac(3, 3, 0, 0)
	m2 := zeros(3, 4)
	_, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, solveOpts())
	if err == nil {
		t.Fatal("expected shape-mismatch error")
	}
}

func Test_InvalidInput_NonPositiveVoxel(t *testing.T) {
	m1 := dirac(3, 3, 0, 0)
	m2 := dirac(3, 3, 1, 1)
	_, err := Distance(m1, m2, grid.VoxelSize{Hy: 0, Hx: 1}, MethodNewton, solveOpts())
	if err == nil {
		t.Fatal("expected non-positive voxel error")
	}
}

// Every spec.md 6 linear_solver string is accepted and produces a
// convergent, mutually consistent distance (S1-S6/P1-P7 above only ever
// exercise "amg-potential").
func Test_LinearSolver_AllTiersEndToEnd(t *testing.T) {
	m1 := dirac(4, 4, 0, 0)
	m2 := dirac(4, 4, 3, 3)
	var distances []float64
	for _, ls := range []string{"lu", "lu-flux-reduced", "amg-flux-reduced", "lu-potential", "amg-potential"} {
		opt := solveOpts()
		opt.LinearSolver = ls
		res, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, opt)
		if err != nil {
			t.Fatalf("linear_solver %q: %v", ls, err)
		}
		if !res.Status.Converged {
			t.Fatalf("linear_solver %q: did not converge", ls)
		}
		distances = append(distances, res.Distance)
	}
	for i := 1; i < len(distances); i++ {
		if math.Abs(distances[i]-distances[0]) > 0.5 {
			t.Fatalf("linear_solver tiers disagree: %v", distances)
		}
	}
}

func Test_UnsupportedConfiguration_UnknownMode(t *testing.T) {
	m1 := dirac(3, 3, 0, 0)
	m2 := dirac(3, 3, 1, 1)
	opt := solveOpts()
	opt.Mode = "not_a_mode"
	_, err := Distance(m1, m2, grid.VoxelSize{Hy: 1, Hx: 1}, MethodNewton, opt)
	if err == nil {
		t.Fatal("expected unknown-mode error")
	}
	var wErr *Error
	if !asError(err, &wErr) || wErr.Kind != UnsupportedConfiguration {
		t.Fatalf("expected UnsupportedConfiguration, got %v", err)
	}
}

// classifySolverError must route a pin-precondition violation to
// UnsupportedConfiguration, not NumericFailure (spec.md 7).
func Test_classifySolverError_PinPreconditionIsUnsupportedConfiguration(t *testing.T) {
	pinErr := reduction.CheckPinPreconditions(1.0, 0, 1e-8)
	wrapped := fmt.Errorf("newton: iteration 0: %w", pinErr)

	err := classifySolverError(wrapped)
	var wErr *Error
	if !asError(err, &wErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if wErr.Kind != UnsupportedConfiguration {
		t.Fatalf("expected UnsupportedConfiguration, got %v", wErr.Kind)
	}
}

func asError(err error, target **Error) bool {
	if e, ok := err.(*Error); ok {
		*target = e
		return true
	}
	return false
}
