// Copyright ©2026 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dogleg

import (
	"gonum.org/v1/gonum/mat"
)

const (
	zero = 0.0
	half = 0.5
	one  = 1.0
)

type trTask int

const (
	iterLoop trTask = iota
	// Converged the termination check accepted a trial point.
	Converged
	// ConvergenceFailure more than MaxShrinks consecutive radius shrinks.
	ConvergenceFailure
	// OverIterLimit more than max iterations in the trust-region loop.
	OverIterLimit
	// HaltEvalPanic residual or jacobian evaluation panic.
	HaltEvalPanic
	// HaltLinearSolve the newton system is unsolvable and the gradient vanishes.
	HaltLinearSolve
)

type errInfo int

const (
	ok errInfo = iota
	// the subproblem has neither a newton step nor a descent direction
	errDeadSubproblem
)

type trSpec struct {
	// the number of equations and variables
	n int
	// the resolved jacobian evaluation (user supplied or finite-difference fallback)
	jac Jacobian
	// logging config
	logger Logger
	Problem
}

type trLoc struct {
	// half squared residual norm fₖ = ‖F(xₒ)‖²/2
	f float64
	// the last accepted point xₒ
	x []float64 // n
	// the residual F(xₒ)
	r []float64 // n
}

type trCtx struct {
	// trust radius Δ and its cap Δmax
	delta, deltaMax float64
	// consecutive shrink counter
	shrink int
	// iteration counter
	iter int
	// residual and jacobian evaluation counters
	numEval, numJac int
	// the trial point xₒ + δ and its residual
	xt, rt []float64 // n
	// the gradient g = 𝐉ᵀF of the local model
	grad []float64 // n
	// dogleg scratch: chosen step δ, newton step δN,
	// steepest-descent step δsd, path segment δN - δsd, 𝐇δ
	d, dn, dsd, dd, hd []float64 // n
	// rhs scratch -F for the newton solve
	rhs []float64 // n
	// the jacobian 𝐉 backed by jd (row-major)
	jd  []float64 // n × n
	jac *mat.Dense
	// the gauss-newton hessian 𝐇 = 𝐉ᵀ𝐉
	hess *mat.SymDense
	// reused factorization of the newton system
	lu mat.LU
	// vector views over the scratch slices
	vGrad, vD, vDn, vHd, vRhs *mat.VecDense
	// vector view over the residual of the current location
	vR *mat.VecDense
}

func (c *trCtx) clear() {
	c.delta, c.deltaMax = zero, zero
	c.shrink, c.iter = 0, 0
	c.numEval, c.numJac = 0, 0
	c.vR = nil
}

func (c *trCtx) bind(loc *trLoc) {
	c.vR = mat.NewVecDense(len(loc.r), loc.r)
}
