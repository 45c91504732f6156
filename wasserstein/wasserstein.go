// Copyright 2012 Dorival Pedroso & Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wasserstein is the external entry point of the variational L1
// Wasserstein distance engine (spec.md 6): it validates a pair of mass
// distributions, assembles the shared discrete operators once, dispatches
// to the Newton or Bregman solver, and reshapes the flat solver state back
// into the caller's 2D/3D array convention. No file formats, CLI, or
// persisted state live at this layer (spec.md 6).
package wasserstein

import (
	"errors"
	"fmt"
	"math"

	"github.com/cpmech/gosl/utl"

	"github.com/cpmech/gowass/bregman"
	"github.com/cpmech/gowass/flux"
	"github.com/cpmech/gowass/grid"
	"github.com/cpmech/gowass/lsolve"
	"github.com/cpmech/gowass/newton"
	"github.com/cpmech/gowass/operators"
	"github.com/cpmech/gowass/reduction"
)

// Method selects the outer solver (spec.md 6).
type Method int

const (
	MethodNewton Method = iota
	MethodBregman
)

func (m Method) String() string {
	if m == MethodBregman {
		return "bregman"
	}
	return "newton"
}

func ParseMethod(s string) (Method, bool) {
	switch s {
	case "newton", "Newton":
		return MethodNewton, true
	case "bregman", "Bregman":
		return MethodBregman, true
	default:
		return 0, false
	}
}

// ErrorKind categorizes a failure (spec.md 7).
type ErrorKind int

const (
	InvalidInput ErrorKind = iota
	UnsupportedConfiguration
	NumericFailure
	Divergence
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case UnsupportedConfiguration:
		return "UnsupportedConfiguration"
	case NumericFailure:
		return "NumericFailure"
	case Divergence:
		return "Divergence"
	default:
		return "Unknown"
	}
}

// Error is the typed failure returned by Distance (spec.md 7). InvalidInput
// and UnsupportedConfiguration are hard failures: the caller gets an error
// and no Result. A NumericFailure from a failed linear solve inside either
// solver is also returned as an error with an empty Result; no partial
// iterate is kept in that case. Non-convergence (the iteration budget used
// up, or Bregman's L exceeding LMax) is reported inside a returned Result
// (Status.Converged=false, Status.FailureKind set) rather than as a Go
// error.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wasserstein: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("wasserstein: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures the engine (spec.md 6, all optional with the listed
// defaults).
type Options struct {
	NumIter      int
	TolResidual  float64
	TolIncrement float64
	TolDistance  float64

	L                   float64 // Bregman's fixed-point L / Newton's floor mobility for iteration>=1
	LInit               float64 // Newton's mobility at iteration 0 (homogeneous Darcy initial guess)
	LMax                float64
	LFactor             float64
	MaxIterIncreaseDiff int
	UpdateL             bool

	Regularization float64
	Lumping        bool
	Mode           string // "cell_arithmetic" | "cell_harmonic" | "face_arithmetic"

	LinearSolver          string // "lu" | "lu-flux-reduced" | "lu-potential" | "amg-flux-reduced" | "amg-potential"
	LinearSolverTol       float64
	LinearSolverVerbosity bool

	AADepth   int
	AARestart int

	Verbose bool
	AMG     AMGOptions
}

// AMGOptions accepts the algebraic-multigrid knobs of spec.md 6's
// "amg-flux-reduced"/"amg-potential" tiers for interface fidelity. These
// tiers run the Jacobi-preconditioned CG iteration of
// lsolve.solveIterative, which takes no setting from this struct: all four
// fields are accepted and logged under Options.Verbose but do not change
// the solve, since no algebraic-multigrid package exists anywhere in the
// retrieved corpus (see DESIGN.md).
type AMGOptions struct {
	MaxLevels    int
	CoarseCutoff int
	Smoother     string
	PreSmoother  string
}

func (o Options) withDefaults() Options {
	if o.NumIter <= 0 {
		o.NumIter = 100
	}
	if o.TolResidual <= 0 {
		o.TolResidual = 1e-6
	}
	if o.TolIncrement <= 0 {
		o.TolIncrement = 1e-6
	}
	if o.TolDistance <= 0 {
		o.TolDistance = 1e-6
	}
	if o.L <= 0 {
		o.L = 1.0
	}
	if o.LInit <= 0 {
		o.LInit = 1.0
	}
	if o.LMax <= 0 {
		o.LMax = 1e8
	}
	if o.LFactor <= 0 {
		o.LFactor = 2.0
	}
	if o.MaxIterIncreaseDiff <= 0 {
		o.MaxIterIncreaseDiff = 20
	}
	if o.Mode == "" {
		o.Mode = "face_arithmetic"
	}
	if o.LinearSolver == "" {
		o.LinearSolver = "lu"
	}
	if o.LinearSolverTol <= 0 {
		o.LinearSolverTol = 1e-6
	}
	// Lumping and UpdateL default true (spec.md 6); zero-value bool can't
	// distinguish "unset" from "explicitly false", so both are handled by
	// the caller's zero-value Options meaning "use the default of true"
	// only through NewOptions. Distance itself takes Options as given.
	return o
}

// NewOptions returns an Options populated with every spec.md 6 default,
// including the two booleans (Lumping, UpdateL) that default to true and
// therefore cannot be distinguished from "unset" on a bare zero-value
// Options.
func NewOptions() Options {
	o := Options{Lumping: true, UpdateL: true}
	return o.withDefaults()
}

// ConvergenceReport is the per-run diagnostic record (spec.md 6). Newton
// runs leave Force/AuxIncrement/ForceIncrement at zero; Bregman runs leave
// ResidualFlux/ResidualPotential/ResidualLambda at zero — the two solvers
// share one report shape with the fields each one doesn't produce unused.
type ConvergenceReport struct {
	Converged                bool
	Iterations               int
	Distance                 float64
	Residual                 float64
	MassConservationResidual float64
	FluxIncrement            float64
	DistanceIncrement        float64
	FailureKind              ErrorKind
	HasFailure               bool

	// Newton-only decomposition.
	ResidualFlux      float64
	ResidualPotential float64
	ResidualLambda    float64
	NewtonHistory     []newton.IterationRecord

	// Bregman-only fields.
	Force          float64
	AuxIncrement   float64
	ForceIncrement float64
	BregmanHistory []bregman.IterationRecord
}

// Result is the outcome of Distance (spec.md 6).
type Result struct {
	Distance         float64
	Flux             [][][2]float64 // Ny x Nx x 2, cell-centered vector field
	Potential        [][]float64    // Ny x Nx
	TransportDensity [][]float64    // Ny x Nx
	Status           ConvergenceReport
}

// Distance computes the variational L1 Wasserstein (earth-mover) distance
// between two equal-mass 2D densities (spec.md 6).
func Distance(mass1, mass2 [][]float64, voxel grid.VoxelSize, method Method, opt Options) (Result, error) {
	opt = opt.withDefaults()

	shape, deltaMass, err := checkCompatibility(mass1, mass2, voxel)
	if err != nil {
		return Result{}, err
	}

	if opt.Verbose {
		utl.Pfcyan("wasserstein: shape=(%d,%d) voxel=(%g,%g) method=%v linear_solver=%s\n",
			shape.Ny, shape.Nx, voxel.Hy, voxel.Hx, method, opt.LinearSolver)
		if opt.LinearSolver == "amg-flux-reduced" || opt.LinearSolver == "amg-potential" {
			utl.Pfgrey("wasserstein: amg tier realized via Jacobi-CG; max_levels=%d coarse_cutoff=%d smoother=%q pre_smoother=%q logged only\n",
				opt.AMG.MaxLevels, opt.AMG.CoarseCutoff, opt.AMG.Smoother, opt.AMG.PreSmoother)
		}
	}

	g, err := grid.New(shape, voxel)
	if err != nil {
		return Result{}, &Error{Kind: InvalidInput, Msg: "grid construction", Err: err}
	}

	normMode, ok := flux.ParseNormMode(opt.Mode)
	if !ok {
		return Result{}, &Error{Kind: UnsupportedConfiguration, Msg: fmt.Sprintf("unknown mode %q", opt.Mode)}
	}
	linTier, linMethod, ok := lsolve.ParseLinearSolver(opt.LinearSolver)
	if !ok {
		return Result{}, &Error{Kind: UnsupportedConfiguration, Msg: fmt.Sprintf("unknown linear_solver %q", opt.LinearSolver)}
	}

	ops, err := operators.New(g, operators.Config{
		Lumping:        opt.Lumping,
		Regularization: opt.Regularization,
		LInit:          opt.LInit,
	})
	if err != nil {
		return Result{}, &Error{Kind: InvalidInput, Msg: "operator assembly", Err: err}
	}

	// LinearSolverTol has no corresponding field on lsolve.Settings: gosl's
	// direct factorization has no tolerance knob, and gonum's linsolve.CG
	// (see lsolve.solveIterative) owns its own convergence test internally
	// rather than taking one from the caller.
	linear := lsolve.Settings{
		Method:    linMethod,
		Symmetric: true,
		Verbose:   opt.LinearSolverVerbosity,
	}

	var u, p []float64
	var report ConvergenceReport

	switch method {
	case MethodNewton:
		res, err := newton.Solve(g, ops, deltaMass, newton.Options{
			MaxIter:         opt.NumIter,
			TolResidual:     opt.TolResidual,
			TolIncrement:    opt.TolIncrement,
			TolDistance:     opt.TolDistance,
			L:               opt.L,
			LInit:           opt.LInit,
			Regularization:  opt.Regularization,
			NormMode:        normMode,
			AndersonDepth:   opt.AADepth,
			AndersonRestart: opt.AARestart,
			Tier:            linTier,
			Linear:          linear,
		})
		if err != nil {
			return Result{}, classifySolverError(err)
		}
		u, p = res.Flux, res.Potential
		report = newtonReport(res, opt)

	case MethodBregman:
		res, err := bregman.Solve(g, ops, deltaMass, bregman.Options{
			MaxIter:             opt.NumIter,
			TolResidual:         opt.TolResidual,
			TolIncrement:        opt.TolIncrement,
			TolDistance:         opt.TolDistance,
			L:                   opt.L,
			Regularization:      opt.Regularization,
			UpdateL:             opt.UpdateL,
			MaxIterIncreaseDiff: opt.MaxIterIncreaseDiff,
			LFactor:             opt.LFactor,
			LMax:                opt.LMax,
			AndersonDepth:       opt.AADepth,
			AndersonRestart:     opt.AARestart,
			Tier:                linTier,
			Linear:              linear,
		})
		if err != nil {
			return Result{}, classifySolverError(err)
		}
		u, p = res.Flux, res.Potential
		report = bregmanReport(res, opt)

	default:
		return Result{}, &Error{Kind: UnsupportedConfiguration, Msg: fmt.Sprintf("unknown method %d", method)}
	}

	cell := flux.FaceToCell(g, u)
	density := flux.TransportDensity(cell)

	if opt.Verbose {
		if report.Converged {
			utl.Pfgreen("wasserstein: converged in %d iterations, distance=%g\n", report.Iterations, report.Distance)
		} else {
			utl.PfMag("wasserstein: did not converge after %d iterations, distance=%g, kind=%v\n", report.Iterations, report.Distance, report.FailureKind)
		}
	}

	return Result{
		Distance:         report.Distance,
		Flux:             reshapeFlux(g, cell),
		Potential:        reshape(g, p),
		TransportDensity: reshape(g, density),
		Status:           report,
	}, nil
}

func newtonReport(res newton.Result, opt Options) ConvergenceReport {
	r := ConvergenceReport{
		Converged:     res.Converged,
		Iterations:    res.Iterations,
		Distance:      res.Distance,
		NewtonHistory: res.History,
	}
	if len(res.History) > 0 {
		last := res.History[len(res.History)-1]
		r.Residual = last.Residual
		r.ResidualFlux = last.ResidualFlux
		r.ResidualPotential = last.ResidualPotential
		r.ResidualLambda = last.ResidualLambda
		r.FluxIncrement = last.IncrementFlux
		r.DistanceIncrement = last.DistanceIncrement
		r.MassConservationResidual = last.ResidualPotential
	}
	if !res.Converged {
		r.HasFailure = true
		if res.Iterations >= opt.NumIter {
			r.FailureKind = Divergence
		} else {
			r.FailureKind = NumericFailure
		}
	}
	return r
}

func bregmanReport(res bregman.Result, opt Options) ConvergenceReport {
	r := ConvergenceReport{
		Converged:      res.Converged,
		Iterations:     res.Iterations,
		Distance:       res.Distance,
		BregmanHistory: res.History,
	}
	if len(res.History) > 0 {
		last := res.History[len(res.History)-1]
		r.MassConservationResidual = last.MassResidual
		r.FluxIncrement = last.FluxIncrement
		r.DistanceIncrement = last.DistanceIncrement
		r.Force = last.Force
		r.AuxIncrement = last.AuxIncrement
		r.ForceIncrement = last.ForceIncrement
		r.Residual = last.MassResidual
	}
	if !res.Converged {
		r.HasFailure = true
		r.FailureKind = Divergence
	}
	return r
}

// classifySolverError maps a solver error to its wasserstein ErrorKind
// (spec.md 7): a pin-precondition violation (only reachable with the
// fully-reduced linear_solver tiers) is UnsupportedConfiguration, since it
// reports a configuration the pin-elimination algorithm cannot handle, not a
// numeric failure of the iteration itself; anything else a failed linear
// solve surfaces is a NumericFailure. Neither solver has a partial iterate
// to fall back to when the call itself errors, so both are hard failures.
func classifySolverError(err error) error {
	if errors.Is(err, reduction.ErrPinPrecondition) {
		return &Error{Kind: UnsupportedConfiguration, Msg: "pin elimination precondition violated", Err: err}
	}
	return &Error{Kind: NumericFailure, Msg: "solver iteration failed", Err: err}
}

// checkCompatibility checks the compatibility preconditions of spec.md 6/7
// and flattens the two mass arrays into deltaMass = m1-m2 (spec.md 4
// convention, row-major matching grid.Grid.CellIndex).
func checkCompatibility(mass1, mass2 [][]float64, voxel grid.VoxelSize) (grid.Shape, []float64, error) {
	if voxel.Hy <= 0 || voxel.Hx <= 0 {
		return grid.Shape{}, nil, &Error{Kind: InvalidInput, Msg: fmt.Sprintf("voxel size must be positive, got (%g,%g)", voxel.Hy, voxel.Hx)}
	}

	ny := len(mass1)
	if ny != len(mass2) {
		return grid.Shape{}, nil, &Error{Kind: InvalidInput, Msg: fmt.Sprintf("mass1/mass2 row count mismatch: %d vs %d", ny, len(mass2))}
	}
	if ny < 2 {
		return grid.Shape{}, nil, &Error{Kind: InvalidInput, Msg: fmt.Sprintf("shape must be at least 2x2, got %d rows", ny)}
	}
	nx := len(mass1[0])
	if nx < 2 {
		return grid.Shape{}, nil, &Error{Kind: InvalidInput, Msg: fmt.Sprintf("shape must be at least 2x2, got %d columns", nx)}
	}

	deltaMass := make([]float64, ny*nx)
	sumAbs := 0.0
	imbalance := 0.0
	for i := 0; i < ny; i++ {
		if len(mass1[i]) != nx || len(mass2[i]) != nx {
			return grid.Shape{}, nil, &Error{Kind: InvalidInput, Msg: fmt.Sprintf("mass1/mass2 must be rectangular with %d columns, row %d has %d/%d", nx, i, len(mass1[i]), len(mass2[i]))}
		}
		for j := 0; j < nx; j++ {
			m1, m2 := mass1[i][j], mass2[i][j]
			if math.IsNaN(m1) || math.IsInf(m1, 0) || math.IsNaN(m2) || math.IsInf(m2, 0) {
				return grid.Shape{}, nil, &Error{Kind: InvalidInput, Msg: fmt.Sprintf("non-finite mass entry at (%d,%d)", i, j)}
			}
			if m1 < 0 || m2 < 0 {
				return grid.Shape{}, nil, &Error{Kind: InvalidInput, Msg: fmt.Sprintf("negative mass entry at (%d,%d)", i, j)}
			}
			d := m1 - m2
			deltaMass[i*nx+j] = d
			imbalance += d
			sumAbs += m1 + m2
		}
	}
	cellArea := voxel.Hy * voxel.Hx
	imbalance *= cellArea
	scale := sumAbs * cellArea
	tol := 1e-6
	if scale > 0 && math.Abs(imbalance) > tol*scale {
		return grid.Shape{}, nil, &Error{Kind: InvalidInput, Msg: fmt.Sprintf("mass imbalance %g exceeds relative tolerance %g of total mass %g", imbalance, tol, scale)}
	}

	return grid.Shape{Ny: ny, Nx: nx}, deltaMass, nil
}

func reshape(g *grid.Grid, flat []float64) [][]float64 {
	out := make([][]float64, g.Shape.Ny)
	for i := range out {
		out[i] = append([]float64(nil), flat[i*g.Shape.Nx:(i+1)*g.Shape.Nx]...)
	}
	return out
}

func reshapeFlux(g *grid.Grid, cell []flux.Vec2) [][][2]float64 {
	out := make([][][2]float64, g.Shape.Ny)
	for i := range out {
		row := make([][2]float64, g.Shape.Nx)
		for j := 0; j < g.Shape.Nx; j++ {
			v := cell[g.CellIndex(i, j)]
			row[j] = [2]float64{v.X, v.Y}
		}
		out[i] = row
	}
	return out
}
