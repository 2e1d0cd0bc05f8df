// Copyright ©2026 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dogleg

import (
	"math"
	"testing"
)

func TestSqrt2(t *testing.T) {

	p := Problem{
		N: 1,
		Residual: func(x, fx []float64) {
			fx[0] = x[0]*x[0] - 2
		},
		Jacobian: func(x, jac []float64) {
			jac[0] = 2 * x[0]
		},
		Stop: Termination{
			Accuracy:      1e-10,
			MaxIterations: 100,
		},
	}

	s, e := p.New(nil)
	if e != nil {
		panic(e)
	}

	w := s.Init()
	r := s.Fit([]float64{1.0}, w)

	switch {
	case !r.OK || r.Status != Converged:
		t.Fatal("TestSqrt2: Not Converge")
	case math.Abs(r.X[0]-math.Sqrt2) > 1e-8:
		t.Fatalf("TestSqrt2: Root Not Accurate: %v", r.X[0])
	case math.Abs(r.R[0]) > 1e-10:
		t.Fatalf("TestSqrt2: Residual Too Large: %v", r.R[0])
	case w.delta <= 0 || w.delta > w.deltaMax:
		t.Fatalf("TestSqrt2: Radius Out Of Bounds: %v / %v", w.delta, w.deltaMax)
	case w.shrink != 0:
		t.Fatalf("TestSqrt2: Shrink Counter Not Reset: %v", w.shrink)
	}
}

func circleLine(x, fx []float64) {
	fx[0] = x[0]*x[0] + x[1]*x[1] - 1
	fx[1] = x[0] - x[1]
}

func circleLineJac(x, jac []float64) {
	jac[0], jac[1] = 2*x[0], 2*x[1]
	jac[2], jac[3] = 1, -1
}

func TestCircleLine(t *testing.T) {

	p := Problem{
		N:        2,
		Residual: circleLine,
		Jacobian: circleLineJac,
		Stop: Termination{
			Accuracy:      1e-10,
			MaxIterations: 100,
		},
	}

	s, e := p.New(nil)
	if e != nil {
		panic(e)
	}

	w := s.Init()
	r := s.Fit([]float64{2, 2}, w)

	root := math.Sqrt2 / 2
	switch {
	case !r.OK:
		t.Fatal("TestCircleLine: Not Converge")
	case math.Abs(math.Abs(r.X[0])-root) > 1e-8:
		t.Fatalf("TestCircleLine: Root Not Accurate: %v", r.X)
	case math.Abs(r.X[0]-r.X[1]) > 1e-8:
		t.Fatalf("TestCircleLine: Root Off The Line: %v", r.X)
	case w.delta <= 0 || w.delta > w.deltaMax:
		t.Fatalf("TestCircleLine: Radius Out Of Bounds: %v / %v", w.delta, w.deltaMax)
	}
}

// The jacobian fallback of package numdiff must reach the same root.
func TestCircleLineNumDiff(t *testing.T) {

	p := Problem{
		N:        2,
		Residual: circleLine,
		Stop: Termination{
			Accuracy:      1e-9,
			MaxIterations: 100,
		},
	}

	s, e := p.New(nil)
	if e != nil {
		panic(e)
	}

	w := s.Init()
	r := s.Fit([]float64{2, 2}, w)

	root := math.Sqrt2 / 2
	switch {
	case !r.OK:
		t.Fatal("TestCircleLineNumDiff: Not Converge")
	case math.Abs(math.Abs(r.X[0])-root) > 1e-7:
		t.Fatalf("TestCircleLineNumDiff: Root Not Accurate: %v", r.X)
	}
}

// When the root of a linear residual lies within the initial radius the
// dogleg step is the plain newton step and a single iteration suffices.
func TestNewtonInside(t *testing.T) {

	b := []float64{0.3, 0.7}
	p := Problem{
		N: 2,
		Residual: func(x, fx []float64) {
			fx[0] = x[0] - b[0]
			fx[1] = x[1] - b[1]
		},
		Jacobian: func(x, jac []float64) {
			jac[0], jac[1] = 1, 0
			jac[2], jac[3] = 0, 1
		},
		Stop: Termination{
			MaxIterations: 10,
		},
		Trust: TrustRegion{
			InitRadius: 1,
			MaxRadius:  10,
		},
	}

	s, e := p.New(nil)
	if e != nil {
		panic(e)
	}

	w := s.Init()
	r := s.Fit([]float64{0.35, 0.75}, w)

	switch {
	case !r.OK:
		t.Fatal("TestNewtonInside: Not Converge")
	case r.NumIter > 2:
		t.Fatalf("TestNewtonInside: Too Many Iterations: %v", r.NumIter)
	case r.NumJac != 1:
		t.Fatalf("TestNewtonInside: Unexpected Jacobian Evaluations: %v", r.NumJac)
	case math.Abs(r.X[0]-b[0]) > 1e-12 || math.Abs(r.X[1]-b[1]) > 1e-12:
		t.Fatalf("TestNewtonInside: Root Not Accurate: %v", r.X)
	}
}

// A constant residual never reduces, so every trial is rejected and the
// radius shrinks until the consecutive limit declares failure.
func TestShrinkFailure(t *testing.T) {

	p := Problem{
		N: 2,
		Residual: func(x, fx []float64) {
			fx[0], fx[1] = 1, 1
		},
		Jacobian: func(x, jac []float64) {
			jac[0], jac[1] = 1, 0
			jac[2], jac[3] = 0, 1
		},
		Stop: Termination{
			MaxIterations: 100,
		},
	}

	s, e := p.New(nil)
	if e != nil {
		panic(e)
	}

	w := s.Init()
	r := s.Fit([]float64{0, 0}, w)

	switch {
	case r.OK || r.Status != ConvergenceFailure:
		t.Fatalf("TestShrinkFailure: Unexpected Status: %v", r.Status)
	case r.NumIter != defShrinks+1:
		t.Fatalf("TestShrinkFailure: Unexpected Iterations: %v", r.NumIter)
	case w.delta <= 0:
		t.Fatalf("TestShrinkFailure: Radius Not Positive: %v", w.delta)
	}
}

func TestOverIterLimit(t *testing.T) {

	p := Problem{
		N: 2,
		Residual: func(x, fx []float64) {
			fx[0] = 10 * (x[1] - x[0]*x[0])
			fx[1] = 1 - x[0]
		},
		Jacobian: func(x, jac []float64) {
			jac[0], jac[1] = -20*x[0], 10
			jac[2], jac[3] = -1, 0
		},
		Stop: Termination{
			MaxIterations: 3,
		},
	}

	s, e := p.New(nil)
	if e != nil {
		panic(e)
	}

	w := s.Init()
	r := s.Fit([]float64{-1.2, 1}, w)

	switch {
	case r.OK || r.Status != OverIterLimit:
		t.Fatalf("TestOverIterLimit: Unexpected Status: %v", r.Status)
	case r.NumIter != 3:
		t.Fatalf("TestOverIterLimit: Unexpected Iterations: %v", r.NumIter)
	}
}

// The jacobian is requested only at accepted points, so the half squared
// residual norm observed at each model rebuild must never increase.
func TestMonotoneAccepted(t *testing.T) {

	var hist []float64
	p := Problem{
		N:        2,
		Residual: circleLine,
		Jacobian: func(x, jac []float64) {
			fx := make([]float64, 2)
			circleLine(x, fx)
			hist = append(hist, half*(fx[0]*fx[0]+fx[1]*fx[1]))
			circleLineJac(x, jac)
		},
		Stop: Termination{
			Accuracy:      1e-10,
			MaxIterations: 100,
		},
	}

	s, e := p.New(nil)
	if e != nil {
		panic(e)
	}

	w := s.Init()
	r := s.Fit([]float64{2, 2}, w)

	if !r.OK {
		t.Fatal("TestMonotoneAccepted: Not Converge")
	}
	if len(hist) != r.NumJac {
		t.Fatalf("TestMonotoneAccepted: Unexpected Jacobian Evaluations: %v != %v", len(hist), r.NumJac)
	}
	for i := 1; i < len(hist); i++ {
		if hist[i] > hist[i-1] {
			t.Fatalf("TestMonotoneAccepted: Residual Increased At Accepted Step %d: %v > %v", i, hist[i], hist[i-1])
		}
	}
}

// An injected termination strategy replaces the norm checks.
func TestCustomCheck(t *testing.T) {

	checks := 0
	p := Problem{
		N:        2,
		Residual: circleLine,
		Jacobian: circleLineJac,
		Stop: Termination{
			MaxIterations: 100,
			Check: func(fx, x, x0 []float64) bool {
				checks++
				return true
			},
		},
	}

	s, e := p.New(nil)
	if e != nil {
		panic(e)
	}

	w := s.Init()
	r := s.Fit([]float64{2, 2}, w)

	switch {
	case r.Status != Converged:
		t.Fatalf("TestCustomCheck: Unexpected Status: %v", r.Status)
	case checks != 1:
		t.Fatalf("TestCustomCheck: Unexpected Check Count: %v", checks)
	case r.NumIter != 1:
		t.Fatalf("TestCustomCheck: Unexpected Iterations: %v", r.NumIter)
	}
}

func TestEvalPanic(t *testing.T) {

	p := Problem{
		N: 1,
		Residual: func(x, fx []float64) {
			panic("residual blew up")
		},
		Stop: Termination{
			MaxIterations: 10,
		},
	}

	s, e := p.New(nil)
	if e != nil {
		panic(e)
	}

	w := s.Init()
	r := s.Fit([]float64{1}, w)

	if r.OK || r.Status != HaltEvalPanic {
		t.Fatalf("TestEvalPanic: Unexpected Status: %v", r.Status)
	}
}

// A configured initial radius above a derived cap must be clamped so the
// radius never exceeds the cap.
func TestInitRadiusClamp(t *testing.T) {

	p := Problem{
		N: 1,
		Residual: func(x, fx []float64) {
			fx[0] = x[0] - 0.5
		},
		Jacobian: func(x, jac []float64) {
			jac[0] = 1
		},
		Stop: Termination{
			MaxIterations: 100,
		},
		Trust: TrustRegion{
			InitRadius: 100,
		},
	}

	s, e := p.New(nil)
	if e != nil {
		panic(e)
	}

	w := s.Init()
	r := s.Fit([]float64{1}, w)

	switch {
	case !r.OK:
		t.Fatal("TestInitRadiusClamp: Not Converge")
	case w.delta <= 0 || w.delta > w.deltaMax:
		t.Fatalf("TestInitRadiusClamp: Radius Out Of Bounds: %v / %v", w.delta, w.deltaMax)
	case math.Abs(r.X[0]-0.5) > 1e-10:
		t.Fatalf("TestInitRadiusClamp: Root Not Accurate: %v", r.X[0])
	}
}

func TestBadSpec(t *testing.T) {

	residual := func(x, fx []float64) { fx[0] = x[0] }
	stop := Termination{MaxIterations: 10}

	bad := []Problem{
		{N: 0, Residual: residual, Stop: stop},
		{N: 1, Stop: stop},
		{N: 1, Residual: residual},
		{N: 1, Residual: residual, Stop: stop, Trust: TrustRegion{ShrinkFactor: 2}},
		{N: 1, Residual: residual, Stop: stop, Trust: TrustRegion{MaxRadius: 1, InitRadius: 2}},
		{N: 1, Residual: residual, Stop: Termination{MaxIterations: 10, Accuracy: -1}},
	}

	for i, p := range bad {
		if _, e := p.New(nil); e == nil {
			t.Fatalf("TestBadSpec: Case %d Not Rejected", i)
		}
	}
}
