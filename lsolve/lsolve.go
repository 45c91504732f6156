// Copyright 2012 Dorival Pedroso & Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lsolve wraps the linear-solver tiers used to invert the reduced
// systems produced by package reduction: a direct sparse factorization via
// gosl's la.LinSol (spec.md 6 "lu", "lu-flux-reduced", "lu-potential"), and
// a Jacobi-preconditioned conjugate-gradient iteration via gonum's linsolve
// package standing in for the "amg-flux-reduced"/"amg-potential" tiers (no
// algebraic multigrid package is available; see DESIGN.md).
package lsolve

import (
	"fmt"

	"github.com/cpmech/gosl/la"
	"gonum.org/v1/gonum/linsolve"
	"gonum.org/v1/gonum/mat"
)

// Method names the linear-solver backend (spec.md 6); which reduction stage
// is solved is named separately by Tier.
type Method int

const (
	LU Method = iota
	AMG
)

func ParseMethod(s string) (Method, bool) {
	switch s {
	case "lu", "lu-flux-reduced", "lu-potential":
		return LU, true
	case "amg-flux-reduced", "amg-potential":
		return AMG, true
	default:
		return 0, false
	}
}

// Tier names which reduction stage of the saddle-point system (spec.md 4.4)
// a linear_solver string targets: the full flux-potential-multiplier system,
// the flux-Schur-reduced potential-multiplier system, or the fully-reduced
// (pin-eliminated) potential system. The three are differently sized linear
// systems, not interchangeable aliases (original_source's linearization_step,
// wasserstein.py:1174-1262, solves a distinct system per branch).
type Tier int

const (
	TierFullyReduced Tier = iota
	TierFluxReduced
	TierFull
)

// ParseLinearSolver parses one of spec.md 6's five linear_solver strings into
// its reduction tier and solver backend.
func ParseLinearSolver(s string) (Tier, Method, bool) {
	method, ok := ParseMethod(s)
	if !ok {
		return 0, 0, false
	}
	switch s {
	case "lu":
		return TierFull, method, true
	case "lu-flux-reduced", "amg-flux-reduced":
		return TierFluxReduced, method, true
	case "lu-potential", "amg-potential":
		return TierFullyReduced, method, true
	default:
		return 0, 0, false
	}
}

// Settings controls both tiers.
type Settings struct {
	Method       Method
	Symmetric    bool
	Verbose      bool
	Timing       bool
	InitialGuess []float64 // optional warm start for the CG tier, nil for zero
}

func (s Settings) withDefaults() Settings { return s }

// Solver holds the state of one linear-solver tier across repeated solves of
// systems that share the same sparsity pattern (e.g. successive Newton
// iterations), mirroring gofem's Domain.LinSol lifecycle in fem/solver.go:
// InitR once, Fact+SolveR on every reassembly.
type Solver struct {
	settings Settings

	direct   la.LinSol
	initDone bool
}

// New allocates a Solver for the given backend. For the LU backend this
// obtains the concrete gosl umfpack solver exactly as gofem's
// Domain.LinSol is obtained via la.GetSolver in fem/domain.go.
func New(settings Settings) *Solver {
	settings = settings.withDefaults()
	s := &Solver{settings: settings}
	if settings.Method == LU {
		s.direct = la.GetSolver("umfpack")
	}
	return s
}

// Solve solves A*x = b for the reduced system triplet A (gosl sparse LU
// tier) and returns x.
func (s *Solver) Solve(tri *la.Triplet, b []float64) ([]float64, error) {
	switch s.settings.Method {
	case LU:
		return s.solveDirect(tri, b)
	case AMG:
		return s.solveIterative(tri.ToMatrix(nil), b)
	default:
		return nil, fmt.Errorf("lsolve: unknown method %d", s.settings.Method)
	}
}

func (s *Solver) solveDirect(tri *la.Triplet, b []float64) ([]float64, error) {
	if !s.initDone {
		if err := s.direct.InitR(tri, s.settings.Symmetric, s.settings.Verbose, s.settings.Timing); err != nil {
			return nil, fmt.Errorf("lsolve: init: %w", err)
		}
		s.initDone = true
	}
	if err := s.direct.Fact(); err != nil {
		return nil, fmt.Errorf("lsolve: factorisation: %w", err)
	}
	x := make([]float64, len(b))
	if err := s.direct.SolveR(x, b, false); err != nil {
		return nil, fmt.Errorf("lsolve: solve: %w", err)
	}
	return x, nil
}

// Close releases resources held by the direct solver (gofem's
// Domain.LinSol.Free/Clean pattern).
func (s *Solver) Close() {
	if s.direct != nil {
		s.direct.Clean()
	}
}

// jacobiSystem adapts a *la.CCMatrix to gonum/linsolve's MulVecToer and
// jacobi-preconditioned PreconSolve interfaces (grounded on gonum's own
// AllenCahnFD.MulVecTo example and linsolve's internal testCase.PreconSolve,
// which implements both on the same receiver passed as Iterative's first
// argument).
type jacobiSystem struct {
	a    *la.CCMatrix
	diag []float64 // 1/A[i,i] per row
}

func newJacobiSystem(a *la.CCMatrix, n int) *jacobiSystem {
	diag := make([]float64, n)
	e := make([]float64, n)
	for i := 0; i < n; i++ {
		e[i] = 1
		col := make([]float64, n)
		la.SpMatVecMulAdd(col, 1, a, e)
		if col[i] != 0 {
			diag[i] = 1.0 / col[i]
		} else {
			diag[i] = 1
		}
		e[i] = 0
	}
	return &jacobiSystem{a: a, diag: diag}
}

func (m *jacobiSystem) MulVecTo(dst *mat.VecDense, trans bool, x mat.Vector) {
	n := dst.Len()
	xs := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = x.AtVec(i)
	}
	out := make([]float64, n)
	if trans {
		la.SpMatTrVecMulAdd(out, 1, m.a, xs)
	} else {
		la.SpMatVecMulAdd(out, 1, m.a, xs)
	}
	for i := 0; i < n; i++ {
		dst.SetVec(i, out[i])
	}
}

func (m *jacobiSystem) PreconSolve(dst *mat.VecDense, _ bool, rhs mat.Vector) error {
	for i := range m.diag {
		dst.SetVec(i, m.diag[i]*rhs.AtVec(i))
	}
	return nil
}

func (s *Solver) solveIterative(a *la.CCMatrix, b []float64) ([]float64, error) {
	n := len(b)
	sys := newJacobiSystem(a, n)

	x0 := mat.NewVecDense(n, nil)
	if s.settings.InitialGuess != nil {
		x0 = mat.NewVecDense(n, append([]float64(nil), s.settings.InitialGuess...))
	}
	dst := mat.NewVecDense(n, nil)

	settings := &linsolve.Settings{
		InitX: x0,
		Dst:   dst,
		Work:  linsolve.NewContext(n),
	}

	rhs := mat.NewVecDense(n, append([]float64(nil), b...))
	result, err := linsolve.Iterative(sys, rhs, &linsolve.CG{}, settings)
	if err != nil {
		return nil, fmt.Errorf("lsolve: cg: %w", err)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = result.X.AtVec(i)
	}
	return out, nil
}
