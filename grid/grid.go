// Copyright 2012 Dorival Pedroso & Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package grid implements the rectangular cell grid and face topology that
// underlie the mixed finite-volume discretization of the variational
// Wasserstein distance engine.
package grid

import "fmt"

// Shape is the number of cells (Ny, Nx) of a rectangular grid.
type Shape struct {
	Ny int
	Nx int
}

// VoxelSize is the physical size (Hy, Hx) of a single cell.
type VoxelSize struct {
	Hy float64
	Hx float64
}

// Face axis tags. Vertical faces separate horizontally neighboring cells
// (normal along x); horizontal faces separate vertically neighboring cells
// (normal along y).
const (
	Vertical = iota
	Horizontal
)

// Grid is a uniform rectangular grid of cells with enumerated faces.
//
// Faces are ordered all-vertical-first, then all-horizontal, matching the
// original Beckman-problem discretization: vertical faces counted
// row-by-row left to right, horizontal faces counted row-by-row left to
// right.
type Grid struct {
	Shape     Shape
	Voxel     VoxelSize
	NumCells  int
	NumVert   int // number of vertical faces
	NumHoriz  int // number of horizontal faces
	NumFaces  int
	PinnedCell int // flat index of the geometric center cell

	// left/right neighbors per face: conn[f] = (cLeft, cRight)
	connLeft  []int
	connRight []int
}

// New builds the grid topology for the given shape and voxel size.
func New(shape Shape, voxel VoxelSize) (*Grid, error) {
	if shape.Ny < 2 || shape.Nx < 2 {
		return nil, fmt.Errorf("grid: shape must be at least 2x2, got (%d,%d)", shape.Ny, shape.Nx)
	}
	if voxel.Hy <= 0 || voxel.Hx <= 0 {
		return nil, fmt.Errorf("grid: voxel size must be positive, got (%g,%g)", voxel.Hy, voxel.Hx)
	}

	g := &Grid{Shape: shape, Voxel: voxel}
	g.NumCells = shape.Ny * shape.Nx
	g.NumVert = shape.Ny * (shape.Nx - 1)
	g.NumHoriz = (shape.Ny - 1) * shape.Nx
	g.NumFaces = g.NumVert + g.NumHoriz
	g.PinnedCell = g.CellIndex(shape.Ny/2, shape.Nx/2)

	g.connLeft = make([]int, g.NumFaces)
	g.connRight = make([]int, g.NumFaces)

	// Vertical faces: row-major, (i, j) connects cell (i,j) to (i,j+1).
	for i := 0; i < shape.Ny; i++ {
		for j := 0; j < shape.Nx-1; j++ {
			f := g.VerticalFace(i, j)
			g.connLeft[f] = g.CellIndex(i, j)
			g.connRight[f] = g.CellIndex(i, j+1)
		}
	}
	// Horizontal faces: row-major, (i, j) connects cell (i,j) to (i+1,j).
	for i := 0; i < shape.Ny-1; i++ {
		for j := 0; j < shape.Nx; j++ {
			f := g.HorizontalFace(i, j)
			g.connLeft[f] = g.CellIndex(i, j)
			g.connRight[f] = g.CellIndex(i+1, j)
		}
	}

	return g, nil
}

// CellIndex flattens a (row, col) cell into a row-major index.
func (g *Grid) CellIndex(i, j int) int { return i*g.Shape.Nx + j }

// CellCoords un-flattens a cell index into (row, col).
func (g *Grid) CellCoords(c int) (i, j int) { return c / g.Shape.Nx, c % g.Shape.Nx }

// VerticalFace returns the flat face index of the vertical face between
// cells (i,j) and (i,j+1), for 0 <= i < Ny, 0 <= j < Nx-1.
func (g *Grid) VerticalFace(i, j int) int { return i*(g.Shape.Nx-1) + j }

// HorizontalFace returns the flat face index of the horizontal face between
// cells (i,j) and (i+1,j), for 0 <= i < Ny-1, 0 <= j < Nx.
func (g *Grid) HorizontalFace(i, j int) int { return g.NumVert + i*g.Shape.Nx + j }

// IsVertical reports whether face f is a vertical face.
func (g *Grid) IsVertical(f int) bool { return f < g.NumVert }

// Neighbors returns the (left, right) cells of face f (left/right along the
// face's own normal axis: top/bottom for horizontal faces).
func (g *Grid) Neighbors(f int) (left, right int) { return g.connLeft[f], g.connRight[f] }

// AreaElement returns the area weight a_f used in the divergence assembly:
// Hx for vertical faces and Hy for horizontal faces, i.e. the cell extent
// along the face's normal axis (not the face's own edge length).
func (g *Grid) AreaElement(f int) float64 {
	if g.IsVertical(f) {
		return g.Voxel.Hx
	}
	return g.Voxel.Hy
}

// CellVolume is the (constant) area of one cell.
func (g *Grid) CellVolume() float64 { return g.Voxel.Hy * g.Voxel.Hx }

// PerpendicularNeighbors returns the (up to four) faces perpendicular to
// face f that share a cell with it, used to build the orthogonal-face
// averaging operator. Vertical faces return the horizontal faces bracketing
// their two endpoint cells (top/bottom of left cell, top/bottom of right
// cell); horizontal faces return the vertical faces bracketing their two
// endpoint cells (left/right of top cell, left/right of bottom cell).
func (g *Grid) PerpendicularNeighbors(f int) []int {
	var out []int
	left, right := g.Neighbors(f)
	if g.IsVertical(f) {
		out = append(out, g.horizontalFacesOfCell(left)...)
		out = append(out, g.horizontalFacesOfCell(right)...)
	} else {
		out = append(out, g.verticalFacesOfCell(left)...)
		out = append(out, g.verticalFacesOfCell(right)...)
	}
	return out
}

func (g *Grid) verticalFacesOfCell(c int) []int {
	i, j := g.CellCoords(c)
	var out []int
	if j > 0 {
		out = append(out, g.VerticalFace(i, j-1))
	}
	if j < g.Shape.Nx-1 {
		out = append(out, g.VerticalFace(i, j))
	}
	return out
}

func (g *Grid) horizontalFacesOfCell(c int) []int {
	i, j := g.CellCoords(c)
	var out []int
	if i > 0 {
		out = append(out, g.HorizontalFace(i-1, j))
	}
	if i < g.Shape.Ny-1 {
		out = append(out, g.HorizontalFace(i, j))
	}
	return out
}

// Dof layout: n_f flux unknowns, then n_c potential unknowns, then 1
// Lagrange multiplier.
func (g *Grid) NumDof() int { return g.NumFaces + g.NumCells + 1 }

func (g *Grid) FluxIndices() (lo, hi int) { return 0, g.NumFaces }

func (g *Grid) PotentialIndices() (lo, hi int) { return g.NumFaces, g.NumFaces + g.NumCells }

func (g *Grid) LagrangeIndex() int { return g.NumFaces + g.NumCells }
