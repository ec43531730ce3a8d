// math/core.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	gomath "math"

	"golang.org/x/exp/constraints"
)

const Pi = gomath.Pi

func Abs[T constraints.Integer | constraints.Float](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

func Sqr[T constraints.Integer | constraints.Float](x T) T { return x * x }

func Sqrt(x float64) float64 { return gomath.Sqrt(x) }

func Clamp[T constraints.Ordered](x T, low T, high T) T {
	if x < low {
		return low
	} else if x > high {
		return high
	}
	return x
}

func Lerp(x, a, b float64) float64 {
	return (1-x)*a + x*b
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func Radians(d float64) float64 { return d / 180 * Pi }
func Degrees(r float64) float64 { return r * 180 / Pi }

func Round(x float64) float64 { return gomath.Round(x) }

func Sin(a float64) float64        { return gomath.Sin(a) }
func Cos(a float64) float64        { return gomath.Cos(a) }
func Atan2(y, x float64) float64   { return gomath.Atan2(y, x) }
func Asin(a float64) float64       { return gomath.Asin(a) }
func Acos(a float64) float64       { return gomath.Acos(Clamp(a, -1, 1)) }
func Mod(a, b float64) float64     { return gomath.Mod(a, b) }
func Floor(a float64) float64      { return gomath.Floor(a) }
func Pow(a, b float64) float64     { return gomath.Pow(a, b) }
func NaN() float64                 { return gomath.NaN() }
func IsNaN(a float64) bool         { return gomath.IsNaN(a) }
