// Copyright 2012 Dorival Pedroso & Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flux implements the matrix-free face<->cell projections, the
// vector face-flux norms, and the transport-density / l1-dissipation
// quantities of the variational Wasserstein distance engine (spec.md 4.2,
// 4.3).
package flux

import (
	"math"

	"github.com/cpmech/gosl/la"

	"github.com/cpmech/gowass/grid"
	"github.com/cpmech/gowass/operators"
)

// Vec2 is a cell-centered 2D vector (horizontal, vertical components).
type Vec2 struct {
	X, Y float64
}

const harmonicRegularization = 1e-10

// FaceToCell reconstructs the cell-centered vectorial flux field from the
// normal fluxes on faces, via the lowest-order Raviart-Thomas-like
// projection: each component is half the sum of the two faces bracketing
// the cell along that axis (boundary cells use the single available face,
// still weighted by one half — spec.md 4.2).
func FaceToCell(g *grid.Grid, faceFlux []float64) []Vec2 {
	cell := make([]Vec2, g.NumCells)
	for i := 0; i < g.Shape.Ny; i++ {
		for j := 0; j < g.Shape.Nx-1; j++ {
			v := 0.5 * faceFlux[g.VerticalFace(i, j)]
			cell[g.CellIndex(i, j)].X += v
			cell[g.CellIndex(i, j+1)].X += v
		}
	}
	for i := 0; i < g.Shape.Ny-1; i++ {
		for j := 0; j < g.Shape.Nx; j++ {
			v := 0.5 * faceFlux[g.HorizontalFace(i, j)]
			cell[g.CellIndex(i, j)].Y += v
			cell[g.CellIndex(i+1, j)].Y += v
		}
	}
	return cell
}

// CellToFaceMode selects the averaging rule used by CellToFace.
type CellToFaceMode int

const (
	Arithmetic CellToFaceMode = iota
	Harmonic
)

// CellToFace projects a scalar cell quantity onto faces, arithmetically
// (1/2*(qL+qR)) or harmonically (qL*qR / (arithmetic-average +
// sign-regularization), spec.md 4.2). Both axes use the same, consistent
// formula; the original source halves only the vertical-axis arithmetic
// average before regularizing it in harmonic mode, which spec.md 4.9
// flags as a bug — this implementation intentionally applies the same
// unhalved formula on both axes.
func CellToFace(g *grid.Grid, cellQty []float64, mode CellToFaceMode) []float64 {
	out := make([]float64, g.NumFaces)
	for i := 0; i < g.Shape.Ny; i++ {
		for j := 0; j < g.Shape.Nx-1; j++ {
			qL := cellQty[g.CellIndex(i, j)]
			qR := cellQty[g.CellIndex(i, j+1)]
			out[g.VerticalFace(i, j)] = averagePair(qL, qR, mode)
		}
	}
	for i := 0; i < g.Shape.Ny-1; i++ {
		for j := 0; j < g.Shape.Nx; j++ {
			qT := cellQty[g.CellIndex(i, j)]
			qB := cellQty[g.CellIndex(i+1, j)]
			out[g.HorizontalFace(i, j)] = averagePair(qT, qB, mode)
		}
	}
	return out
}

func averagePair(a, b float64, mode CellToFaceMode) float64 {
	avg := 0.5 * (a + b)
	switch mode {
	case Arithmetic:
		return avg
	case Harmonic:
		reg := (2*sign(avg) + 1) * harmonicRegularization
		return (a * b) / (avg + reg)
	default:
		panic("flux: unknown CellToFaceMode")
	}
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func norm2(v Vec2) float64 { return math.Hypot(v.X, v.Y) }

// NormMode selects how the vector-valued face-flux norm is evaluated
// (spec.md 4.2).
type NormMode int

const (
	CellArithmetic NormMode = iota
	CellHarmonic
	FaceArithmetic
)

func ParseNormMode(s string) (NormMode, bool) {
	switch s {
	case "cell_arithmetic":
		return CellArithmetic, true
	case "cell_harmonic":
		return CellHarmonic, true
	case "face_arithmetic":
		return FaceArithmetic, true
	default:
		return 0, false
	}
}

// VectorFaceFluxNorm returns a length-n_f vector with the norm of the
// vector-valued flux, evaluated in one of three modes (spec.md 4.2).
func VectorFaceFluxNorm(g *grid.Grid, ops *operators.Operators, faceFlux []float64, mode NormMode, regularization float64) []float64 {
	switch mode {
	case CellArithmetic, CellHarmonic:
		cell := FaceToCell(g, faceFlux)
		cellNorm := make([]float64, g.NumCells)
		for c, v := range cell {
			n := norm2(v)
			if n < regularization {
				n = regularization
			}
			cellNorm[c] = n
		}
		avgMode := Arithmetic
		if mode == CellHarmonic {
			avgMode = Harmonic
		}
		return CellToFace(g, cellNorm, avgMode)

	case FaceArithmetic:
		tangential := make([]float64, g.NumFaces)
		la.SpMatVecMulAdd(tangential, 1, ops.OrthoAvg, faceFlux)
		out := make([]float64, g.NumFaces)
		for f := range out {
			out[f] = math.Hypot(faceFlux[f], tangential[f])
		}
		return out

	default:
		panic("flux: unknown NormMode")
	}
}

// TransportDensity is the Euclidean norm of the cell-centered reconstructed
// flux field (spec.md 4.3, GLOSSARY).
func TransportDensity(cell []Vec2) []float64 {
	out := make([]float64, len(cell))
	for c, v := range cell {
		out[c] = norm2(v)
	}
	return out
}

// DissipationMode selects how L1Dissipation is evaluated (spec.md 4.3).
type DissipationMode int

const (
	DissipationCellArithmetic DissipationMode = iota
	DissipationFaceArithmetic
)

// L1Dissipation computes the discrete l1 dissipation potential of a flux
// field (spec.md 4.3).
func L1Dissipation(g *grid.Grid, ops *operators.Operators, faceFlux []float64, mode DissipationMode, regularization float64) float64 {
	switch mode {
	case DissipationCellArithmetic:
		cell := FaceToCell(g, faceFlux)
		density := TransportDensity(cell)
		sum := 0.0
		for c, d := range density {
			sum += ops.CellMassDiag[c] * d
		}
		return sum
	case DissipationFaceArithmetic:
		norm := VectorFaceFluxNorm(g, ops, faceFlux, FaceArithmetic, regularization)
		mv := make([]float64, g.NumFaces)
		la.SpMatVecMulAdd(mv, 1, ops.FaceMass, norm)
		sum := 0.0
		for _, v := range mv {
			sum += v
		}
		return sum
	default:
		panic("flux: unknown DissipationMode")
	}
}
