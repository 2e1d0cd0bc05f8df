// Copyright ©2026 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dogleg

import (
	"errors"
)

// ErrSingular reports that the jacobian factorization is singular or too
// ill-conditioned to produce a trustworthy newton step.
var ErrSingular = errors.New("dogleg: singular jacobian")

// newtonStep solves the newton system 𝐉δN = -F into ctx.dn, delegating to
// the injected LinearSolver when one is configured and to a dense LU
// factorization otherwise. The factorization storage is reused across
// iterations of one solve invocation.
func newtonStep(loc *trLoc, spec *trSpec, ctx *trCtx) error {

	if spec.Solver != nil {
		return spec.Solver(ctx.jac, loc.r, ctx.dn)
	}

	if len(ctx.rhs) < len(loc.r) {
		panic("bound check error")
	}
	for i, v := range loc.r {
		ctx.rhs[i] = -v
	}

	ctx.lu.Factorize(ctx.jac)
	if err := ctx.lu.SolveVecTo(ctx.vDn, false, ctx.vRhs); err != nil {
		return ErrSingular
	}
	return nil
}
