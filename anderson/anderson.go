// Copyright 2012 Dorival Pedroso & Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package anderson implements depth-m Anderson acceleration (Walker-Ni
// Type-I) of a nonlinear fixed-point iteration, applied only to the flux
// block of the Newton and Bregman iterations (spec.md 4.7, 9: "Anderson
// acceleration is applied to the flux block only in both solvers; do not
// extend it to the full state (source reports this diverges)").
package anderson

import "gonum.org/v1/gonum/mat"

// Accelerator holds the depth-m history of fixed-point increments and
// residual increments needed to mix successive iterates.
type Accelerator struct {
	Depth   int // m: number of past increments retained
	Restart int // force-clear history every Restart iterations; 0 disables

	gPrev []float64 // previous raw fixed-point output G(x_{k-1})
	fPrev []float64 // previous residual G(x_{k-1}) - x_{k-1}
	dG    [][]float64
	dF    [][]float64
	iter  int
}

// New returns an Accelerator with the given depth and restart period.
func New(depth, restart int) *Accelerator {
	return &Accelerator{Depth: depth, Restart: restart}
}

// Reset discards all history, restarting the acceleration from scratch
// (spec.md 6 "Solver state (Anderson history, L) is reset per call").
func (a *Accelerator) Reset() {
	a.gPrev = nil
	a.fPrev = nil
	a.dG = nil
	a.dF = nil
	a.iter = 0
}

// Mix accepts the latest fixed-point map output g = G(x) together with the
// iterate x it was computed from, and returns the accelerated next iterate.
// With Depth <= 0 the accelerator is a no-op and Mix(x, g) == g.
func (a *Accelerator) Mix(x, g []float64) []float64 {
	if a.Depth <= 0 {
		return append([]float64(nil), g...)
	}

	f := make([]float64, len(g))
	for i := range f {
		f[i] = g[i] - x[i]
	}

	if a.Restart > 0 && a.iter > 0 && a.iter%a.Restart == 0 {
		a.dG = nil
		a.dF = nil
	}

	if a.gPrev == nil {
		a.gPrev = append([]float64(nil), g...)
		a.fPrev = f
		a.iter++
		return append([]float64(nil), g...)
	}

	dg := make([]float64, len(g))
	df := make([]float64, len(f))
	for i := range g {
		dg[i] = g[i] - a.gPrev[i]
		df[i] = f[i] - a.fPrev[i]
	}
	a.dG = append(a.dG, dg)
	a.dF = append(a.dF, df)
	if len(a.dG) > a.Depth {
		a.dG = a.dG[1:]
		a.dF = a.dF[1:]
	}

	gamma := leastSquaresCoeffs(a.dF, f)

	mixed := make([]float64, len(g))
	copy(mixed, g)
	for k, c := range gamma {
		for i := range mixed {
			mixed[i] -= c * a.dG[k][i]
		}
	}

	a.gPrev = append([]float64(nil), g...)
	a.fPrev = f
	a.iter++
	return mixed
}

// leastSquaresCoeffs solves min_gamma || f - sum_k gamma_k * deltaF[k] ||_2
// via gonum's QR-based least squares (mat.VecDense.SolveVec on a tall system).
func leastSquaresCoeffs(deltaF [][]float64, f []float64) []float64 {
	k := len(deltaF)
	if k == 0 {
		return nil
	}
	n := len(f)
	a := mat.NewDense(n, k, nil)
	for j, col := range deltaF {
		for i, v := range col {
			a.Set(i, j, v)
		}
	}
	b := mat.NewVecDense(n, append([]float64(nil), f...))

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return make([]float64, k)
	}
	gamma := make([]float64, k)
	for j := 0; j < k; j++ {
		gamma[j] = x.AtVec(j)
	}
	return gamma
}
