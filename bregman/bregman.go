// Copyright 2012 Dorival Pedroso & Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bregman implements the Split-Bregman (ADMM) solver of the
// regularized L1 Wasserstein flow (spec.md 4.6): a fixed L-Darcy linear
// solve per iteration, a cell-wise shrink operator, and an adaptive
// schedule that grows L when the distance stagnates or increases.
package bregman

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

// Options configures the Bregman iteration (spec.md 4.6, 6 defaults).
type Options struct {
	MaxIter             int
	TolResidual         float64
	TolIncrement        float64
	TolDistance         float64
	L                   float64
	Regularization      float64
	UpdateL             bool
	MaxIterIncreaseDiff int
	LFactor             float64
	LMax                float64
	AndersonDepth       int
	AndersonRestart     int
	Tier                lsolve.Tier
	Linear              lsolve.Settings
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
	if o.MaxIterIncreaseDiff <= 0 {
		o.MaxIterIncreaseDiff = 20
	}
	if o.LFactor <= 0 {
		o.LFactor = 2
	}
	if o.LMax <= 0 {
		o.LMax = 1e8
	}
	return o
}

// IterationRecord is one row of the Bregman convergence history (spec.md 6:
// adds force/aux/force-increment fields to the common set).
type IterationRecord struct {
	Distance          float64
	MassResidual      float64
	Force             float64
	FluxIncrement     float64
	AuxIncrement      float64
	ForceIncrement    float64
	DistanceIncrement float64
	TimeLinearization time.Duration
	TimeShrink        time.Duration
	TimeAnderson      time.Duration
}

// Result is the outcome of the Bregman iteration.
type Result struct {
	Flux       []float64
	Potential  []float64
	Lagrange   float64
	Distance   float64
	Converged  bool
	Iterations int
	History    []IterationRecord
}

// Solve runs the Split-Bregman iteration for the mass imbalance
// deltaMass = m1-m2 (length n_c).
func Solve(g *grid.Grid, ops *operators.Operators, deltaMass []float64, opt Options) (Result, error) {
	opt = opt.withDefaults()

	ws := reduction.NewWorkspace(g)
	acc := anderson.New(opt.AndersonDepth, opt.AndersonRestart)

	rp := make([]float64, g.NumCells)
	for c := range rp {
		rp[c] = ops.CellMassDiag[c] * deltaMass[c]
	}

	L := opt.L
	solver := lsolve.New(opt.Linear)
	defer solver.Close()

	u := make([]float64, g.NumFaces)
	p := make([]float64, g.NumCells)
	oldAux := make([]float64, g.NumFaces)
	newAux := make([]float64, g.NumFaces)
	oldForce := make([]float64, g.NumFaces)
	newForce := make([]float64, g.NumFaces)

	distance := flux.L1Dissipation(g, ops, u, flux.DissipationCellArithmetic, opt.Regularization)

	var history []IterationRecord
	converged := false
	numNegDiff := 0

	it := 0
	for ; it < opt.MaxIter; it++ {
		oldDistance := distance

		tLin0 := time.Now()
		ruFlux := make([]float64, g.NumFaces)
		la.SpMatVecMulAdd(ruFlux, L, ops.FaceMass, u)

		dHatInv := make([]float64, g.NumFaces)
		for f := range dHatInv {
			dHatInv[f] = 1.0 / (L * ops.FaceMassDiagLumped[f])
		}
		intermediateU, intermediateP, err := reduction.SolveTier(ops, ws, solver, opt.Tier, dHatInv, ruFlux, rp, 0, p[g.PinnedCell])
		if err != nil {
			return Result{}, fmt.Errorf("bregman: iteration %d: %w", it, err)
		}
		timeLinearization := time.Since(tLin0)

		tShrink0 := time.Now()
		shrunkU := shrink(g, intermediateU, L, opt.Regularization)
		timeShrink := time.Since(tShrink0)

		tAnderson0 := time.Now()
		newFlatFlux := acc.Mix(intermediateU, shrunkU)
		timeAnderson := time.Since(tAnderson0)

		fluxIncrement := normDiff(newFlatFlux, u)
		auxIncrement := normDiff(newAux, oldAux)
		forceIncrement := normDiff(newForce, oldForce)
		force := norm2(newForce)

		u = newFlatFlux
		p = intermediateP

		newDistance := flux.L1Dissipation(g, ops, u, flux.DissipationCellArithmetic, opt.Regularization)

		bu := make([]float64, g.NumCells)
		la.SpMatVecMulAdd(bu, 1, ops.Div, u)
		massResidual := 0.0
		for c := range rp {
			d := rp[c] - bu[c]
			massResidual += d * d
		}
		massResidual = math.Sqrt(massResidual)

		distanceIncrement := math.Abs(newDistance - oldDistance)
		distance = newDistance

		history = append(history, IterationRecord{
			Distance:          distance,
			MassResidual:      massResidual,
			Force:             force,
			FluxIncrement:     fluxIncrement,
			AuxIncrement:      auxIncrement,
			ForceIncrement:    forceIncrement,
			DistanceIncrement: distanceIncrement,
			TimeLinearization: timeLinearization,
			TimeShrink:        timeShrink,
			TimeAnderson:      timeAnderson,
		})

		if newDistance > oldDistance {
			numNegDiff++
		}

		if opt.UpdateL {
			if distanceIncrement < opt.TolDistance || numNegDiff > opt.MaxIterIncreaseDiff {
				L *= opt.LFactor
				numNegDiff = 0
			}
			if L > opt.LMax {
				it++
				break
			}
		}

		oldAux, oldForce = newAux, newForce

		if it > 1 && ((massResidual < opt.TolResidual && fluxIncrement < opt.TolIncrement) || distanceIncrement < opt.TolDistance) {
			converged = true
			it++
			break
		}
	}

	return Result{
		Flux: u, Potential: p, Lagrange: 0,
		Distance: distance, Converged: converged,
		Iterations: it, History: history,
	}, nil
}

// shrink is the cell-arithmetic shrinkage of spec.md 4.6 / 9: per cell,
// scale = max(0, ||v_c|| - 1/L) / (||v_c|| + regularization), mapped back
// to faces by arithmetic averaging and applied face-wise.
func shrink(g *grid.Grid, faceFlux []float64, L, regularization float64) []float64 {
	cellFlux := flux.FaceToCell(g, faceFlux)
	cellScaling := make([]float64, g.NumCells)
	for c, v := range cellFlux {
		n := math.Hypot(v.X, v.Y)
		s := n - 1.0/L
		if s < 0 {
			s = 0
		}
		cellScaling[c] = s / (n + regularization)
	}
	faceScaling := flux.CellToFace(g, cellScaling, flux.Arithmetic)
	out := make([]float64, g.NumFaces)
	for f := range out {
		out[f] = faceScaling[f] * faceFlux[f]
	}
	return out
}

func norm2(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
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
