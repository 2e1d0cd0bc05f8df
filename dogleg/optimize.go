// Copyright ©2026 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dogleg

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/nonlinear/numdiff"
)

// LogLevel controls the frequency and type of logger output
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast print only the exit report
	LogLast LogLevel = 0
	// LogEval print also f, ratio and Δ every `level` iterations for any (0 < level < 99)
	LogEval LogLevel = 1
	// LogTrace print details of every iteration
	LogTrace LogLevel = 99
)

// Logger handles logging output for the solver.
// Note the writer must be thread-safe.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
}

func (l *Logger) enable(level LogLevel) bool {
	return l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

// Residual evaluates the system 𝒇(𝐱) : ℝⁿ → ℝⁿ at x and stores 𝒇(𝐱) into fx.
// The solver searches a root 𝒇(𝐱) = 0.
type Residual func(x, fx []float64)

// Jacobian evaluates the partials 𝒇′(𝐱) : ℝⁿ → ℝⁿˣⁿ at x and stores them
// into jac row-major: jac[i×n+j] = ∂𝒇ᵢ/∂𝐱ⱼ.
// The solver requests the jacobian only at accepted points, never at a
// rejected trial.
type Jacobian func(x, jac []float64)

// LinearSolver solves the newton system 𝐉δN = -F and stores δN into dn.
// An error reports that no usable step could be produced; the subproblem
// then degrades to the steepest-descent branch.
type LinearSolver func(jac *mat.Dense, fx, dn []float64) error

// Termination specifies the stopping criteria for the trust-region loop.
type Termination struct {
	// The iteration will stop when ‖𝒇(𝐱)‖∞ ≤ 𝚊𝚌𝚌 at an accepted point.
	// Zero value defaults to 1e-8.
	Accuracy float64
	// The iteration will stop when ‖𝐱ₖ₊₁ - 𝐱ₖ‖₂ ≤ 𝚡𝚝𝚘𝚕 at an accepted point.
	// Zero disables the check.
	StepTolerance float64
	// The iteration stop when the number of iteration exceeds limit.
	MaxIterations int
	// Optional termination strategy evaluated on (F, 𝐱, 𝐱ₒ) once a step is
	// provisionally accepted. When set it replaces the norm checks above.
	Check func(fx, x, x0 []float64) bool
}

// TrustRegion specifies the radius adaptation parameters.
// Zero values select the documented defaults.
type TrustRegion struct {
	// The radius cap Δmax. Zero derives 𝚖𝚊𝚡(‖𝒇(𝐱₀)‖₂, 𝚖𝚊𝚡(𝐱₀)-𝚖𝚒𝚗(𝐱₀)) at fit time.
	MaxRadius float64
	// The initial radius Δ₀. Zero derives Δmax/11 at fit time.
	InitRadius float64
	// The minimum ratio η₁ to accept a step (default 1e-4).
	StepThreshold float64
	// The ratio η₂ below which the radius shrinks (default 0.25).
	ShrinkThreshold float64
	// The ratio η₃ above which a boundary step grows the radius (default 0.75).
	ExpandThreshold float64
	// The radius shrink factor t₁ (default 0.25).
	ShrinkFactor float64
	// The radius expand factor t₂ (default 2.0).
	ExpandFactor float64
	// The consecutive shrink limit before declaring failure (default 32).
	MaxShrinks int
}

const (
	defAccuracy  = 1e-8
	defStep      = 1e-4
	defShrink    = 0.25
	defExpand    = 0.75
	defShrinkFac = 0.25
	defExpandFac = 2.0
	defShrinks   = 32
	defRadiusDiv = 11.0
)

// Problem specifies the problem for the trust-region dogleg solver.
type Problem struct {
	N        int          // The problem dimension
	Residual Residual     // Residual function 𝒇(𝐱)
	Jacobian Jacobian     // Optional jacobian 𝒇′(𝐱); nil selects a finite-difference fallback
	Solver   LinearSolver // Optional newton-step solver; nil selects a dense LU factorization
	Stop     Termination  // Stop condition
	Trust    TrustRegion  // Radius adaptation option
}

// New creates a new dogleg solver for given problem.
func (p *Problem) New(logger *Logger) (optimizer *Optimizer, err error) {

	if logger == nil {
		logger = new(Logger)
		logger.Level = LogNoop
	}
	if logger.Msg == nil {
		logger.Msg = os.Stdout
	}

	n, stop, trust := p.N, p.Stop, p.Trust

	if stop.Accuracy == zero {
		stop.Accuracy = defAccuracy
	}
	if trust.StepThreshold == zero {
		trust.StepThreshold = defStep
	}
	if trust.ShrinkThreshold == zero {
		trust.ShrinkThreshold = defShrink
	}
	if trust.ExpandThreshold == zero {
		trust.ExpandThreshold = defExpand
	}
	if trust.ShrinkFactor == zero {
		trust.ShrinkFactor = defShrinkFac
	}
	if trust.ExpandFactor == zero {
		trust.ExpandFactor = defExpandFac
	}
	if trust.MaxShrinks == 0 {
		trust.MaxShrinks = defShrinks
	}

	switch {
	case n <= 0:
		err = errors.New("problem dimension must greater than 0")
	case p.Residual == nil:
		err = errors.New("residual function is required")
	case stop.MaxIterations <= 0:
		err = errors.New("max iteration must greater than 1")
	case math.IsNaN(stop.Accuracy) || stop.Accuracy < zero:
		err = errors.New("solution accuracy must not less than 0")
	case math.IsNaN(stop.StepTolerance) || stop.StepTolerance < zero:
		err = errors.New("step tolerance must not less than 0")
	case trust.MaxRadius < zero || trust.InitRadius < zero:
		err = errors.New("trust radius must not less than 0")
	case trust.MaxRadius > zero && trust.InitRadius > trust.MaxRadius:
		err = errors.New("initial radius must not greater than max radius")
	case trust.StepThreshold <= zero || trust.StepThreshold >= one:
		err = errors.New("step threshold must lie in (0,1)")
	case trust.ShrinkThreshold <= trust.StepThreshold || trust.ShrinkThreshold >= one:
		err = errors.New("shrink threshold must lie in (step threshold,1)")
	case trust.ExpandThreshold < trust.ShrinkThreshold || trust.ExpandThreshold >= one:
		err = errors.New("expand threshold must lie in [shrink threshold,1)")
	case trust.ShrinkFactor <= zero || trust.ShrinkFactor >= one:
		err = errors.New("shrink factor must lie in (0,1)")
	case trust.ExpandFactor <= one:
		err = errors.New("expand factor must greater than 1")
	case trust.MaxShrinks <= 0:
		err = errors.New("shrink limit must greater than 0")
	}

	if err != nil {
		return
	}

	jac := p.Jacobian
	if jac == nil {
		diff := &numdiff.JacSpec{
			N:      n,
			Func:   p.Residual,
			Method: numdiff.Central,
		}
		jac = func(x, jm []float64) {
			if e := diff.Jac(x, jm); e != nil {
				panic(e)
			}
		}
	}

	optimizer = &Optimizer{
		trSpec{
			n:      n,
			jac:    jac,
			logger: *logger,
			Problem: Problem{
				N:        n,
				Residual: p.Residual,
				Jacobian: p.Jacobian,
				Solver:   p.Solver,
				Stop:     stop,
				Trust:    trust,
			},
		},
	}
	return
}

// Optimizer implemented using the trust-region dogleg algorithm.
type Optimizer struct {
	trSpec
}

// Workspace contains the state and context of one solve invocation.
// Given problem dimension n, total work space is approximately float64[n² + 9×n].
type Workspace struct {
	n int
	trCtx
}

// Result contains the final result of the solve process.
type Result struct {
	OK      bool      // Whether the solver converged to a root.
	F       float64   // Final half squared residual norm ‖𝒇(𝐱)‖²/2.
	X, R    []float64 // Final iterate and residual.
	Summary           // Solve summary.
}

// Summary contains a summary of the solve process.
type Summary struct {
	Status  trTask // Final task status after solving.
	NumIter int    // Number of iterations performed.
	NumEval int    // Number of residual evaluations performed.
	NumJac  int    // Number of jacobian evaluations performed.
}

// Init allocate the workspace for the dogleg solver.
// To avoid race conditions, separate workspaces need to be created for each goroutine.
// But multiple workspaces could share one optimizer.
func (o *Optimizer) Init() *Workspace {
	w := new(Workspace)
	w.n = o.n

	n := o.n
	wrk := make([]float64, 9*n)
	w.trCtx = trCtx{
		xt:   wrk[0*n : 1*n],
		rt:   wrk[1*n : 2*n],
		grad: wrk[2*n : 3*n],
		d:    wrk[3*n : 4*n],
		dn:   wrk[4*n : 5*n],
		dsd:  wrk[5*n : 6*n],
		dd:   wrk[6*n : 7*n],
		hd:   wrk[7*n : 8*n],
		rhs:  wrk[8*n : 9*n],
		jd:   make([]float64, n*n),
	}

	w.jac = mat.NewDense(n, n, w.jd)
	w.hess = mat.NewSymDense(n, nil)
	w.vGrad = mat.NewVecDense(n, w.grad)
	w.vD = mat.NewVecDense(n, w.d)
	w.vDn = mat.NewVecDense(n, w.dn)
	w.vHd = mat.NewVecDense(n, w.hd)
	w.vRhs = mat.NewVecDense(n, w.rhs)

	return w
}

// Fit runs the solve process using the initial guess x and workspace w.
func (o *Optimizer) Fit(x []float64, w *Workspace) *Result {

	if len(x) != o.n {
		panic("initial x dimension not match spec")
	}

	if w.n != o.n {
		panic("workspace dimension not match spec")
	}

	loc := trLoc{
		x: slices.Clone(x),
		r: make([]float64, o.n),
	}

	driver := trDriver{
		optimizer: o,
		workspace: w,
		location:  &loc,
	}

	res := driver.mainLoop()
	return &Result{
		OK: res == Converged,
		X:  loc.x, R: loc.r, F: loc.f,
		Summary: Summary{
			Status:  res,
			NumIter: w.iter,
			NumEval: w.numEval,
			NumJac:  w.numJac,
		},
	}
}
