// Package numeric provides scalar numerical routines that gonum does not cover.
package numeric

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNotBracketed  = errors.New("function values at the bracket ends do not differ in sign")
	ErrMaxIterations = errors.New("maximum number of iterations reached")
	ErrNonFinite     = errors.New("function returned a non-finite value")
)

// RootSettings controls the Brent root search
type RootSettings struct {
	XTol    float64
	RTol    float64
	MaxIter int
}

// DefaultRootSettings mirrors the tolerances commonly used for brentq
func DefaultRootSettings() RootSettings {
	return RootSettings{
		XTol:    2e-12,
		RTol:    4 * 2.220446049250313e-16,
		MaxIter: 100,
	}
}

// RootResult reports the located root and how it was found
type RootResult struct {
	Root       float64
	Iterations int
	FuncEvals  int
}

// Brent finds a root of f in [a, b] using Brent's method. f(a) and f(b) must
// have opposite signs (or one of them must be zero). All working state is
// local to the call.
func Brent(f func(float64) float64, a, b float64, settings RootSettings) (RootResult, error) {
	if settings.MaxIter <= 0 {
		settings = DefaultRootSettings()
	}
	var res RootResult

	fa, fb := f(a), f(b)
	res.FuncEvals = 2
	if math.IsNaN(fa) || math.IsNaN(fb) || math.IsInf(fa, 0) || math.IsInf(fb, 0) {
		return res, fmt.Errorf("%w: f(%g)=%g, f(%g)=%g", ErrNonFinite, a, fa, b, fb)
	}
	if fa == 0 {
		res.Root = a
		return res, nil
	}
	if fb == 0 {
		res.Root = b
		return res, nil
	}
	if math.Signbit(fa) == math.Signbit(fb) {
		return res, fmt.Errorf("%w: f(%g)=%g, f(%g)=%g", ErrNotBracketed, a, fa, b, fb)
	}

	// c is the previous iterate; b is the best estimate so far
	c, fc := a, fa
	d := b - a
	e := d
	for res.Iterations = 1; res.Iterations <= settings.MaxIter; res.Iterations++ {
		if math.Signbit(fb) == math.Signbit(fc) {
			c, fc = a, fa
			d = b - a
			e = d
		}
		if math.Abs(fc) < math.Abs(fb) {
			a, b, c = b, c, b
			fa, fb, fc = fb, fc, fb
		}

		tol := settings.XTol + settings.RTol*math.Abs(b)
		m := 0.5 * (c - b)
		if math.Abs(m) <= tol || fb == 0 {
			res.Root = b
			return res, nil
		}

		if math.Abs(e) >= tol && math.Abs(fa) > math.Abs(fb) {
			// Inverse quadratic interpolation, or secant when only two points are distinct
			var p, q float64
			s := fb / fa
			if a == c {
				p = 2 * m * s
				q = 1 - s
			} else {
				qa := fa / fc
				r := fb / fc
				p = s * (2*m*qa*(qa-r) - (b-a)*(r-1))
				q = (qa - 1) * (r - 1) * (s - 1)
			}
			if p > 0 {
				q = -q
			} else {
				p = -p
			}
			if 2*p < math.Min(3*m*q-math.Abs(tol*q), math.Abs(e*q)) {
				e = d
				d = p / q
			} else {
				d = m
				e = m
			}
		} else {
			d = m
			e = m
		}

		a, fa = b, fb
		if math.Abs(d) > tol {
			b += d
		} else if m > 0 {
			b += tol
		} else {
			b -= tol
		}
		fb = f(b)
		res.FuncEvals++
		if math.IsNaN(fb) {
			return res, fmt.Errorf("%w: f(%g) is NaN", ErrNonFinite, b)
		}
	}

	res.Root = b
	return res, fmt.Errorf("%w after %d iterations (last estimate %g)", ErrMaxIterations, settings.MaxIter, b)
}
