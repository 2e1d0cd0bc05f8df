// Copyright ©2026 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dogleg

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Subroutine dogleg
//
// Given the local quadratic model of 𝑓(𝐱) = ‖𝒇(𝐱)‖²/2 at the accepted point
//
//	𝑚(δ) = 𝑓ₖ + 𝐠ᵀδ + ½δᵀ𝐇δ   (𝐠 = 𝐉ᵀF, 𝐇 = 𝐉ᵀ𝐉)
//
// this subroutine minimizes 𝑚(δ) over the ball ‖δ‖ ≤ Δ along the dogleg path,
// the piecewise-linear path from the steepest-descent step δsd = -𝐠 to the
// newton step δN solving 𝐉δN = -F.
//
// Three cases arise:
//   - ‖δN‖ ≤ Δ : the unconstrained minimizer lies inside the region, δ = δN
//   - ‖δsd‖ ≥ Δ : even the best descent direction leaves the region,
//     δ = -Δ𝐠/‖𝐠‖ clipped to the boundary
//   - otherwise : δ = δsd + τ(δN - δsd) lies exactly on the boundary,
//     where τ ∈ (0,1) is the positive root of ‖δsd + τ(δN - δsd)‖² = Δ²
//
// The scalar quadratic for τ has coefficients
//   - a = ‖δN - δsd‖²
//   - b = δsd·(δN - δsd)
//   - c = ‖δsd‖² - Δ²
//
// so τ = (-b + √(b² - ac))/a with b² - ac ≥ 0 guaranteed by ‖δsd‖ < Δ < ‖δN‖.
//
// When the newton system has no usable solution the step is treated as if
// ‖δN‖ = ∞ and the path degrades to the clipped steepest-descent branch;
// a vanishing gradient then leaves no descent direction at all and the
// subproblem is reported dead.
//
// bound reports whether the returned step lies on the trust-region boundary.
func dogleg(loc *trLoc, spec *trSpec, ctx *trCtx) (bound bool, info errInfo) {

	n := spec.n
	d, dn, dsd, dd, g := ctx.d, ctx.dn, ctx.dsd, ctx.dd, ctx.grad

	if n <= 0 || n > len(d) || n > len(dn) || n > len(dsd) || n > len(dd) || n > len(g) {
		panic("bound check error")
	}

	newton := newtonStep(loc, spec, ctx) == nil
	if newton && floats.Norm(dn, 2) <= ctx.delta {
		copy(d, dn)
		return false, ok
	}

	gNorm := floats.Norm(g, 2)
	if !newton || gNorm >= ctx.delta {
		if gNorm == zero {
			return false, errDeadSubproblem
		}
		// δ = -Δ𝐠/‖𝐠‖
		scale := ctx.delta / gNorm
		for i, g := range g[:n] {
			d[i] = -scale * g
		}
		return true, ok
	}

	// δsd = -𝐠 and the path segment δN - δsd
	for i, g := range g[:n] {
		dsd[i] = -g
	}
	floats.SubTo(dd, dn, dsd)

	a := floats.Dot(dd, dd)
	b := floats.Dot(dsd, dd)
	c := gNorm*gNorm - ctx.delta*ctx.delta
	if a == zero {
		// δN coincides with δsd outside the region
		scale := ctx.delta / floats.Norm(dn, 2)
		for i, dn := range dn[:n] {
			d[i] = scale * dn
		}
		return true, ok
	}

	tau := (-b + math.Sqrt(math.Max(b*b-a*c, zero))) / a
	floats.AddScaledTo(d, dsd, tau, dd)
	return true, ok
}
