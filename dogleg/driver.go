// Copyright ©2026 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dogleg

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// trDriver solve a square system of nonlinear equations 𝒇(𝐱) = 0
// with a trust-region newton method.
//
// The residual induces the merit function 𝑓(𝐱) = ‖𝒇(𝐱)‖²/2 whose local
// quadratic model at the accepted point 𝐱ₒ is
//
//	𝑚(δ) = 𝑓ₖ + 𝐠ᵀδ + ½δᵀ𝐇δ
//
// with the gradient 𝐠 = 𝐉ᵀF and the gauss-newton hessian 𝐇 = 𝐉ᵀ𝐉 built
// from the jacobian 𝐉 = 𝒇′(𝐱ₒ) without second derivatives.
//
// Each iteration minimizes 𝑚(δ) inside the ball ‖δ‖ ≤ Δ (see dogleg),
// evaluates the residual at the trial point 𝐱ₒ + δ and judges the model
// fidelity by the actual-vs-predicted reduction ratio
//
//	𝑟 = (𝑓ₖ₊₁ - 𝑓ₖ) / (𝐠ᵀδ + ½δᵀ𝐇δ)
//
// which drives both the step acceptance and the radius adaptation:
//   - 𝑟 < η₂ : the model fits poorly, Δ ← t₁Δ and the shrink counter grows;
//     more than MaxShrinks consecutive shrinks declare ConvergenceFailure
//   - 𝑟 > η₁ : the trial point is accepted, 𝐱ₒ ← 𝐱ₒ + δ and the model
//     is rebuilt at the new point
//   - 𝑟 > η₃ : when the step was constrained by the boundary ‖δ‖ = Δ,
//     the region is trusted further and Δ ← 𝚖𝚒𝚗(t₂Δ, Δmax)
//
// A rejected trial leaves 𝐱ₒ, 𝐠, 𝐇 and 𝑓ₖ untouched: only the radius
// carries forward, so the jacobian is never evaluated at a rejected point.
//
// # Reference
//
// Jorge Nocedal, Stephen J. Wright: "Numerical Optimization",
// second edition, chapter 4 (trust-region methods), 2006
type trDriver struct {
	optimizer *Optimizer
	workspace *Workspace
	location  *trLoc
}

// nextResidual evaluates the residual at x for the current iteration.
func (d *trDriver) nextResidual(task trTask, x, fx []float64) trTask {
	o, w := d.optimizer, d.workspace
	func() {
		defer func() {
			if r := recover(); r != nil {
				task = HaltEvalPanic
			}
		}()
		o.Residual(x, fx)
		w.numEval++
	}()
	return task
}

// nextModel evaluates the jacobian at the accepted point and rebuilds
// the gradient 𝐠 = 𝐉ᵀF and the gauss-newton hessian 𝐇 = 𝐉ᵀ𝐉.
func (d *trDriver) nextModel(task trTask) trTask {
	o, w, loc := d.optimizer, d.workspace, d.location
	func() {
		defer func() {
			if r := recover(); r != nil {
				task = HaltEvalPanic
			}
		}()
		o.jac(loc.x, w.jd)
		w.numJac++
	}()
	if task == iterLoop {
		ctx := &w.trCtx
		ctx.vGrad.MulVec(ctx.jac.T(), ctx.vR)
		ctx.hess.SymOuterK(one, ctx.jac.T())
	}
	return task
}

// initRadius derives the radius defaults left at their zero sentinel:
// Δmax = 𝚖𝚊𝚡(‖𝒇(𝐱₀)‖₂, 𝚖𝚊𝚡(𝐱₀)-𝚖𝚒𝚗(𝐱₀)) and Δ₀ = Δmax/11.
func (d *trDriver) initRadius() {
	loc := d.location
	ctx := &d.workspace.trCtx
	trust := &d.optimizer.Trust

	ctx.deltaMax = trust.MaxRadius
	if ctx.deltaMax == zero {
		span := floats.Max(loc.x) - floats.Min(loc.x)
		ctx.deltaMax = math.Max(floats.Norm(loc.r, 2), span)
		if ctx.deltaMax == zero {
			ctx.deltaMax = one
		}
	}
	ctx.delta = trust.InitRadius
	if ctx.delta == zero {
		ctx.delta = ctx.deltaMax / defRadiusDiv
	}
	// a configured Δ₀ may exceed a derived Δmax
	ctx.delta = math.Min(ctx.delta, ctx.deltaMax)
}

// converged evaluates the termination strategy on a provisionally
// accepted trial point.
func (d *trDriver) converged() bool {
	spec, ctx, loc := &d.optimizer.trSpec, &d.workspace.trCtx, d.location
	stop := &spec.Stop
	if stop.Check != nil {
		return stop.Check(ctx.rt, ctx.xt, loc.x)
	}
	switch {
	case floats.Norm(ctx.rt, math.Inf(1)) <= stop.Accuracy:
		return true
	case stop.StepTolerance > zero:
		return floats.Distance(ctx.xt, loc.x, 2) <= stop.StepTolerance
	}
	return false
}

// commit makes the trial point the accepted location.
func (d *trDriver) commit(ft float64) {
	loc, ctx := d.location, &d.workspace.trCtx
	copy(loc.x, ctx.xt)
	copy(loc.r, ctx.rt)
	loc.f = ft
}

// mainLoop is the main execution loop of the trust-region iteration,
// alternating the dogleg subproblem with the accept/reject/radius logic.
func (d *trDriver) mainLoop() (task trTask) {

	loc := d.location
	spec := &d.optimizer.trSpec
	ctx := &d.workspace.trCtx
	trust := &spec.Trust

	ctx.clear()
	ctx.bind(loc)

	// Calculate F(x₀), f₀ and the model at x₀
	if task = d.nextResidual(task, loc.x, loc.r); task != iterLoop {
		return
	}
	loc.f = half * floats.Dot(loc.r, loc.r)
	if floats.Norm(loc.r, math.Inf(1)) <= spec.Stop.Accuracy {
		// The initial guess is already a root.
		task = Converged
		d.printExit(task)
		return
	}
	if task = d.nextModel(task); task != iterLoop {
		return
	}
	d.initRadius()
	d.printInit()

	for task == iterLoop {

		if ctx.iter++; ctx.iter > spec.Stop.MaxIterations {
			ctx.iter--
			task = OverIterLimit
			break
		}

		// Solve the subproblem 𝚖𝚒𝚗 𝑚(δ) inside ‖δ‖ ≤ Δ
		bound, info := dogleg(loc, spec, ctx)
		if info != ok {
			task = HaltLinearSolve
			break
		}

		// Trial point x = xₒ + δ and fₖ₊₁ = ‖F(x)‖²/2
		floats.AddTo(ctx.xt, loc.x, ctx.d)
		if task = d.nextResidual(task, ctx.xt, ctx.rt); task != iterLoop {
			break
		}
		ft := half * floats.Dot(ctx.rt, ctx.rt)

		// Model fidelity ratio 𝑟 = (𝑓ₖ₊₁ - 𝑓ₖ) / (𝐠ᵀδ + ½δᵀ𝐇δ).
		// A non-negative predicted reduction cannot justify any step,
		// force rejection instead of dividing by an ill-signed model.
		ctx.vHd.MulVec(ctx.hess, ctx.vD)
		pred := floats.Dot(ctx.d, ctx.grad) + half*floats.Dot(ctx.d, ctx.hd)
		ratio := math.Inf(-1)
		if pred < zero {
			ratio = (ft - loc.f) / pred
		}

		if ratio < trust.ShrinkThreshold {
			ctx.delta *= trust.ShrinkFactor
			if ctx.shrink++; ctx.shrink > trust.MaxShrinks {
				// Report the current trial point as the best effort.
				d.commit(ft)
				task = ConvergenceFailure
				break
			}
		} else {
			ctx.shrink = 0
		}

		accepted := ratio > trust.StepThreshold
		if accepted {
			if d.converged() {
				d.commit(ft)
				task = Converged
				break
			}
			d.commit(ft)
			if task = d.nextModel(task); task != iterLoop {
				break
			}
			if bound && ratio > trust.ExpandThreshold {
				ctx.delta = math.Min(trust.ExpandFactor*ctx.delta, ctx.deltaMax)
			}
		}

		d.printIter(ratio, accepted)
	}

	d.printExit(task)
	return
}

// printInit logs the state after the initial evaluation.
func (d *trDriver) printInit() {
	loc, ctx := d.location, &d.workspace.trCtx
	if log := d.optimizer.logger; log.enable(LogEval) {
		log.log("At iterate %5d    f= %12.5e    delta= %10.3e\n", ctx.iter, loc.f, ctx.delta)
	}
}

// printIter logs the quantities related to the finished iteration.
func (d *trDriver) printIter(ratio float64, accepted bool) {
	loc, ctx := d.location, &d.workspace.trCtx
	log := d.optimizer.logger
	if !log.enable(LogEval) || ctx.iter%int(log.Level) != 0 {
		return
	}
	word := "rej"
	if accepted {
		word = "acc"
	}
	log.log("At iterate %5d    f= %12.5e    ratio= %9.2e    delta= %10.3e  %s\n",
		ctx.iter, loc.f, ratio, ctx.delta, word)
	if log.enable(LogTrace) {
		log.log("\n X = ")
		for i, v := range loc.x {
			log.log("%.2e ", v)
			if (i+1)%6 == 0 {
				log.log("\n     ")
			}
		}
		log.log("\n")
	}
}

// printExit logs the final statistics and exit conditions of the solve process.
func (d *trDriver) printExit(task trTask) {

	loc := d.location
	spec := &d.optimizer.trSpec
	ctx := &d.workspace.trCtx

	log := spec.logger
	if !log.enable(LogLast) {
		return
	}

	log.log("\n           * * *\n")
	log.log("Tit   = total number of iterations\n")
	log.log("Tnf   = total number of residual evaluations\n")
	log.log("Tnj   = total number of jacobian evaluations\n")
	log.log("Shrk  = consecutive radius shrinks at exit\n")
	log.log("Delta = final trust radius\n")
	log.log("F     = final half squared residual norm\n")
	log.log("\n           * * *\n")
	log.log("\n   N      Tit      Tnf     Tnj   Shrk      Delta          F\n")
	log.log("%5d %6d %7d %6d %6d %10.3e %12.5e\n",
		spec.n, ctx.iter, ctx.numEval, ctx.numJac, ctx.shrink, ctx.delta, loc.f)

	var msg string
	switch task {
	case Converged:
		msg = "CONVERGENCE: TERMINATION CHECK SATISFIED"
	case ConvergenceFailure:
		msg = "ABNORMAL_TERMINATION: CONSECUTIVE SHRINK LIMIT REACHED"
	case OverIterLimit:
		msg = "STOP: TOTAL NO. of ITERATIONS REACHED LIMIT"
	case HaltEvalPanic:
		msg = "STOP: CALLBACK EVALUATION PANIC"
	case HaltLinearSolve:
		msg = "STOP: SINGULAR MODEL WITHOUT DESCENT DIRECTION"
	default:
		msg = "UNKNOWN TASK"
	}
	log.log("\n%s\n", msg)

	if log.enable(LogEval) {
		log.log(" F = %.9e\n", loc.f)
	}
}
