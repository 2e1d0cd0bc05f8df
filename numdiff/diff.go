// Copyright ©2026 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"errors"
	"math"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use the second order accuracy central difference.
	Central
)

// JacSpec represents a finite-difference approximation of the jacobian
// of a square vector function 𝒇(𝐱) : ℝⁿ → ℝⁿ.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
//
// # License
//
//   - https://github.com/scipy/scipy/blob/main/LICENSE.txt
type JacSpec struct {
	N int
	// Function of which to estimate the jacobian.
	// The argument x passed to this function is an n-vector.
	// The result is stored in the n-vector y.
	Func func(x, y []float64)
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute the absolute step size as
	// h = RelStep * sign(x0) * abs(x0). When zero the step is selected
	// automatically as h = eps^(1/2 or 1/3) * sign(x0) * max(1, abs(x0)).
	RelStep float64
	// Absolute step size to use instead of the relative one.
	// For the Central method the sign of AbsStep is ignored.
	AbsStep float64

	f0, f1, f2 []float64
	step       []float64
}

// Check the parameters and allocate the evaluation scratch.
func (js *JacSpec) Check(x0, jac []float64) (err error) {

	switch {
	case js.N <= 0:
		err = errors.New("negative dimensions")
	case js.Method != Forward && js.Method != Central:
		err = errors.New("unknown method")
	case js.Func == nil:
		err = errors.New("object function is required")
	case js.N != len(x0):
		err = errors.New("invalid x0 dimensions")
	case js.N*js.N != len(jac):
		err = errors.New("invalid jacobian dimensions")
	}
	if err != nil {
		return
	}

	n := js.N
	if len(js.f0) != n {
		js.f0 = make([]float64, n)
		js.f1 = make([]float64, n)
		js.f2 = make([]float64, n)
	}
	if len(js.step) != n {
		js.step = make([]float64, n)
	}
	return
}

// Jac approximates the jacobian of Func at x0 into jac row-major:
// jac[i×n+j] = ∂𝒇ᵢ/∂𝐱ⱼ. The point x0 is perturbed in place during the
// evaluations and restored on return.
func (js *JacSpec) Jac(x0, jac []float64) error {

	if err := js.Check(x0, jac); err != nil {
		return err
	}

	js.absoluteStep(x0)
	if js.Method == Central {
		js.approxCentral(x0, jac)
	} else {
		js.approxForward(x0, jac)
	}
	return nil
}

func (js *JacSpec) absoluteStep(x0 []float64) {
	h := js.step
	if len(h) != len(x0) {
		panic("bound check error")
	}

	eps := sqrtEps
	if js.Method == Central {
		eps = cubeEps
	}

	abs, rel := js.AbsStep, js.RelStep
	if abs == 0 && rel == 0 {
		for i, v := range x0 {
			h[i] = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
	} else {
		for i, v := range x0 {
			s := abs
			if s == 0 {
				s = math.Copysign(rel, v) * math.Abs(v)
			}
			// the step actually representable at v
			d := (v + s) - v
			if d == 0 {
				s = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
			}
			h[i] = s
		}
	}
}

func (js *JacSpec) approxForward(x0, jac []float64) {

	f0, fx, h, n := js.f0, js.f1, js.step, js.N
	if len(h) != len(x0) || len(f0) != len(fx) {
		panic("bound check error")
	}

	fun := js.Func
	fun(x0, f0)
	for j, s := range h {
		t := x0[j]
		x0[j] = t + s
		fun(x0, fx)
		d := 1.0 / s
		for i := range f0 {
			jac[i*n+j] = (fx[i] - f0[i]) * d
		}
		x0[j] = t
	}
}

func (js *JacSpec) approxCentral(x0, jac []float64) {

	f1, f2, h, n := js.f1, js.f2, js.step, js.N
	if len(h) != len(x0) || len(f1) != len(f2) {
		panic("bound check error")
	}

	fun := js.Func
	for j, s := range h {
		s = math.Abs(s)
		t := x0[j]
		d := 1.0 / (2 * s)
		x0[j] = t - s
		fun(x0, f1)
		x0[j] = t + s
		fun(x0, f2)
		for i := range f1 {
			jac[i*n+j] = (f2[i] - f1[i]) * d
		}
		x0[j] = t
	}
}
