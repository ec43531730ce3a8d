// math/ballistic.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import "time"

// The altitude profile of a ballistic flight is a piecewise curve over
// missile progress: a sine ease-in boost up to the apex fraction, a cruise
// at apex altitude, and a sine ease-out re-entry back to the surface.

const (
	boostPhaseCap   = 15 * time.Second
	reentryPhaseCap = 8 * time.Second
	// Neither phase may take more than this fraction of the total flight,
	// however short the flight is.
	phaseFractionCap = 0.45
)

// EaseInSine is the standard sine ease-in over t in [0,1].
func EaseInSine(t float64) float64 {
	return 1 - Cos(t*Pi/2)
}

// EaseOutSine is the standard sine ease-out over t in [0,1].
func EaseOutSine(t float64) float64 {
	return Sin(t * Pi / 2)
}

// BallisticPhases returns the fractions of the given flight duration spent
// in boost and re-entry.
func BallisticPhases(flightDuration time.Duration) (boostFrac, reentryFrac float64) {
	if flightDuration <= 0 {
		return phaseFractionCap, phaseFractionCap
	}
	boostFrac = Min(float64(boostPhaseCap)/float64(flightDuration), phaseFractionCap)
	reentryFrac = Min(float64(reentryPhaseCap)/float64(flightDuration), phaseFractionCap)
	return
}

// ApexAltitudeKm gives the cruise altitude for a ballistic flight spanning
// the given central angle in degrees; longer shots fly higher, clamped so
// that even short-range shots arc visibly.
func ApexAltitudeKm(angularDistanceDeg float64) float64 {
	return 500 * Clamp(angularDistanceDeg/60, 0.15, 1)
}

// BallisticAltitudeKm evaluates the altitude curve at the given progress
// in [0,1].
func BallisticAltitudeKm(progress, apexKm, boostFrac, reentryFrac float64) float64 {
	progress = Clamp(progress, 0, 1)
	switch {
	case progress < boostFrac:
		return apexKm * EaseInSine(progress/boostFrac)
	case progress > 1-reentryFrac:
		return apexKm * EaseOutSine((1-progress)/reentryFrac)
	default:
		return apexKm
	}
}

// RadarHorizonKm returns the great-circle range at which a surface radar
// can see a target at the given altitude, beyond its baseline range: the
// distance to the horizon from altitude h is ~sqrt(2*R*h) on a spherical
// earth.
func RadarHorizonKm(targetAltitudeKm float64) float64 {
	if targetAltitudeKm <= 0 {
		return 0
	}
	return Sqrt(2 * EarthRadiusKm * targetAltitudeKm)
}
