// Copyright 2012 Dorival Pedroso & Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reduction

import (
	"github.com/cpmech/gowass/lsolve"
	"github.com/cpmech/gowass/operators"
)

// SolveTier dispatches one linear solve of the flux-potential-multiplier
// system through the reduction stage named by tier (spec.md 6: the five
// linear_solver strings map onto TierFull/TierFluxReduced/TierFullyReduced
// via lsolve.ParseLinearSolver), returning the flux and potential updates.
// Shared by both newton.Solve and bregman.Solve so the reduction stage used
// is whatever the caller actually asked for, not always the fully reduced
// one.
func SolveTier(ops *operators.Operators, ws *Workspace, solver *lsolve.Solver, tier lsolve.Tier, dHatInv, ru, rp []float64, rLambda, potentialAtPin float64) (deltaU, deltaP []float64, err error) {
	g := ops.Grid

	switch tier {
	case lsolve.TierFull:
		ws.AssembleFull(dHatInv)
		rhs := FullRHS(g, ru, rp, rLambda)
		x, err := solver.Solve(ws.FullTriplet(), rhs)
		if err != nil {
			return nil, nil, err
		}
		deltaU = append([]float64(nil), x[:g.NumFaces]...)
		deltaP = append([]float64(nil), x[g.NumFaces:g.NumFaces+g.NumCells]...)
		return deltaU, deltaP, nil

	case lsolve.TierFluxReduced:
		ws.AssembleSchur(dHatInv)
		reducedRHS := ReducedRHS(ops, dHatInv, ru, rp, rLambda)
		x, err := solver.Solve(ws.SchurTriplet(), reducedRHS)
		if err != nil {
			return nil, nil, err
		}
		deltaP = append([]float64(nil), x[:g.NumCells]...)
		deltaU = BackSubstituteFlux(ops, dHatInv, ru, deltaP)
		return deltaU, deltaP, nil

	default: // TierFullyReduced
		if err := CheckPinPreconditions(rLambda, potentialAtPin, 1e-8); err != nil {
			return nil, nil, err
		}
		reducedRHS := ReducedRHS(ops, dHatInv, ru, rp, rLambda)
		fullyReducedRHS := ws.FullyReducedRHS(reducedRHS)
		ws.AssembleFullyReduced(dHatInv)
		xpReduced, err := solver.Solve(ws.FullyReducedTriplet(), fullyReducedRHS)
		if err != nil {
			return nil, nil, err
		}
		deltaP = ws.ExpandPotential(xpReduced)
		deltaU = BackSubstituteFlux(ops, dHatInv, ru, deltaP)
		return deltaU, deltaP, nil
	}
}
