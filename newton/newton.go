// Copyright 2012 Dorival Pedroso & Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package newton implements the Newton linearization of the regularized
// L1 Wasserstein flow (spec.md 4.5): a homogeneous-Darcy first iterate,
// followed by iterations that linearize the flux-norm term with a
// diagonal, lumped-mass-weighted mobility.
package newton

import (
	"fmt"
	"math"
	"time"

	"github.com/cpmech/gosl/la"

	"github.com/cpmech/gowass/anderson"
	"github.com/cpmech/gowass/flux"
	"github.com/cpmech/gowass/grid"
	"github.com/cpmech/gowass/lsolve"
	"github.com/cpmech/gowass/operators"
	"github.com/cpmech/gowass/reduction"
)

// Options configures the Newton iteration (spec.md 4.5, 6 defaults).
type Options struct {
	MaxIter         int
	TolResidual     float64
	TolIncrement    float64
	TolDistance     float64
	L               float64 // floor mobility used to linearize the flux norm from iteration 1 onward
	LInit           float64 // mobility of the homogeneous-Darcy iteration-0 Jacobian
	Regularization  float64
	NormMode        flux.NormMode
	AndersonDepth   int
	AndersonRestart int
	Tier            lsolve.Tier
	Linear          lsolve.Settings
}

func (o Options) withDefaults() Options {
	if o.MaxIter <= 0 {
		o.MaxIter = 100
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
	return o
}

// IterationRecord is one row of the convergence history (spec.md 6
// ConvergenceReport).
type IterationRecord struct {
	Distance           float64
	Residual           float64
	ResidualFlux       float64
	ResidualPotential  float64
	ResidualLambda     float64
	Increment          float64
	IncrementFlux      float64
	IncrementPotential float64
	DistanceIncrement  float64
	TimeSetup          time.Duration
	TimeSolve          time.Duration
	TimeAnderson       time.Duration
}

// Result is the outcome of the Newton iteration.
type Result struct {
	Flux       []float64
	Potential  []float64
	Lagrange   float64
	Distance   float64
	Converged  bool
	Iterations int
	History    []IterationRecord
}

func dissipationMode(mode flux.NormMode) flux.DissipationMode {
	if mode == flux.FaceArithmetic {
		return flux.DissipationFaceArithmetic
	}
	return flux.DissipationCellArithmetic
}

// Solve runs the Newton iteration for the mass imbalance deltaMass = m1-m2
// (length n_c), returning the flux/potential/multiplier solution and
// convergence history.
func Solve(g *grid.Grid, ops *operators.Operators, deltaMass []float64, opt Options) (Result, error) {
	opt = opt.withDefaults()

	ws := reduction.NewWorkspace(g)
	solver := lsolve.New(opt.Linear)
	defer solver.Close()
	acc := anderson.New(opt.AndersonDepth, opt.AndersonRestart)

	rp := make([]float64, g.NumCells)
	for c := range rp {
		rp[c] = ops.CellMassDiag[c] * deltaMass[c]
	}

	u := make([]float64, g.NumFaces)
	p := make([]float64, g.NumCells)
	lambda := 0.0

	dMode := dissipationMode(opt.NormMode)
	distance := flux.L1Dissipation(g, ops, u, dMode, opt.Regularization)

	var history []IterationRecord
	converged := false

	for it := 0; it < opt.MaxIter; it++ {
		tSetup0 := time.Now()

		var ru, rpIter []float64
		var rLambda float64
		var dHatInv []float64

		if it == 0 {
			dHat := make([]float64, g.NumFaces)
			dHatInv = make([]float64, g.NumFaces)
			for f := range dHat {
				dHat[f] = opt.LInit * ops.FaceMassDiagLumped[f]
				dHatInv[f] = 1.0 / dHat[f]
			}
			ru = make([]float64, g.NumFaces)
			rpIter = rp
			rLambda = 0
		} else {
			faceNorm := flux.VectorFaceFluxNorm(g, ops, u, opt.NormMode, opt.Regularization)
			dHat := make([]float64, g.NumFaces)
			dHatInv = make([]float64, g.NumFaces)
			unitFlux := make([]float64, g.NumFaces)
			for f := range faceNorm {
				n := faceNorm[f]
				if n < opt.Regularization {
					n = opt.Regularization
				}
				mobility := 1.0 / n
				if opt.L > mobility {
					mobility = opt.L
				}
				dHat[f] = mobility * ops.FaceMassDiagLumped[f]
				dHatInv[f] = 1.0 / dHat[f]
				unitFlux[f] = u[f] / n
			}
			massTimesUnit := make([]float64, g.NumFaces)
			la.SpMatVecMulAdd(massTimesUnit, 1, ops.FaceMass, unitFlux)

			btP := make([]float64, g.NumFaces)
			la.SpMatTrVecMulAdd(btP, 1, ops.Div, p)
			ru = make([]float64, g.NumFaces)
			for f := range ru {
				ru[f] = btP[f] - massTimesUnit[f]
			}

			bU := make([]float64, g.NumCells)
			la.SpMatVecMulAdd(bU, 1, ops.Div, u)
			rpIter = make([]float64, g.NumCells)
			for c := range rpIter {
				rpIter[c] = rp[c] - bU[c]
			}

			rLambda = -p[g.PinnedCell]
		}

		tSetup := time.Since(tSetup0)

		tSolve0 := time.Now()
		deltaU, deltaP, err := reduction.SolveTier(ops, ws, solver, opt.Tier, dHatInv, ru, rpIter, rLambda, p[g.PinnedCell])
		if err != nil {
			return Result{}, fmt.Errorf("newton: iteration %d: %w", it, err)
		}
		tSolve := time.Since(tSolve0)

		rawNextU := make([]float64, g.NumFaces)
		for f := range rawNextU {
			rawNextU[f] = u[f] + deltaU[f]
		}

		tAnderson0 := time.Now()
		mixedU := acc.Mix(u, rawNextU)
		tAnderson := time.Since(tAnderson0)

		newP := make([]float64, g.NumCells)
		for c := range newP {
			newP[c] = p[c] + deltaP[c]
		}

		incFlux := normDiff(mixedU, u)
		incPot := normDiff(newP, p)
		incTotal := math.Hypot(incFlux, incPot)

		u, p = mixedU, newP

		newDistance := flux.L1Dissipation(g, ops, u, dMode, opt.Regularization)
		distIncrement := math.Abs(newDistance - distance)
		distance = newDistance

		resNorm := norm(ru, rpIter, rLambda)

		history = append(history, IterationRecord{
			Distance:           distance,
			Residual:           resNorm,
			ResidualFlux:       norm2(ru),
			ResidualPotential:  norm2(rpIter),
			ResidualLambda:     math.Abs(rLambda),
			Increment:          incTotal,
			IncrementFlux:      incFlux,
			IncrementPotential: incPot,
			DistanceIncrement:  distIncrement,
			TimeSetup:          tSetup,
			TimeSolve:          tSolve,
			TimeAnderson:       tAnderson,
		})

		if (resNorm < opt.TolResidual && incTotal < opt.TolIncrement) || distIncrement < opt.TolDistance {
			converged = true
			return Result{
				Flux: u, Potential: p, Lagrange: lambda,
				Distance: distance, Converged: converged,
				Iterations: it + 1, History: history,
			}, nil
		}
	}

	return Result{
		Flux: u, Potential: p, Lagrange: lambda,
		Distance: distance, Converged: converged,
		Iterations: opt.MaxIter, History: history,
	}, nil
}

func norm2(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func norm(ru, rp []float64, rLambda float64) float64 {
	sum := 0.0
	for _, x := range ru {
		sum += x * x
	}
	for _, x := range rp {
		sum += x * x
	}
	sum += rLambda * rLambda
	return math.Sqrt(sum)
}

func normDiff(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
