// math/math_test.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"testing"
	"time"
)

func TestKMDistance2LL(t *testing.T) {
	type dist struct {
		a, b Point2LL
		km   float64
	}
	// Reference distances computed with the haversine formula on a
	// 6371 km sphere.
	dists := []dist{
		{a: MakePoint2LL(40.7128, -74.0060), b: MakePoint2LL(40.7128, -74.0060), km: 0},
		{a: MakePoint2LL(40.7128, -74.0060), b: MakePoint2LL(51.5074, -0.1278), km: 5570},
		{a: MakePoint2LL(55.7558, 37.6173), b: MakePoint2LL(38.9072, -77.0369), km: 7820},
		{a: MakePoint2LL(0, 0), b: MakePoint2LL(0, 180), km: EarthRadiusKm * Pi},
	}

	for _, d := range dists {
		if got := KMDistance2LL(d.a, d.b); Abs(got-d.km) > 0.01*d.km+1 {
			t.Errorf("%s - %s: got %f km, expected %f km", d.a.DDString(), d.b.DDString(), got, d.km)
		}
	}
}

func TestLerpGCEndpoints(t *testing.T) {
	a := MakePoint2LL(34.05, -118.24)
	b := MakePoint2LL(55.75, 37.61)

	for _, x := range []float64{0, 1} {
		p := LerpGC(x, a, b)
		want := Select(x == 0, a, b)
		if Abs(p.Latitude()-want.Latitude()) > 1e-6 || Abs(p.Longitude()-want.Longitude()) > 1e-6 {
			t.Errorf("LerpGC(%f): got %s, expected %s", x, p.DDString(), want.DDString())
		}
	}

	// The midpoint must be equidistant from both endpoints.
	mid := LerpGC(0.5, a, b)
	da, db := KMDistance2LL(a, mid), KMDistance2LL(mid, b)
	if Abs(da-db) > 1 {
		t.Errorf("midpoint not equidistant: %f vs %f km", da, db)
	}

	// And the two halves together must cover the whole arc.
	if total := KMDistance2LL(a, b); Abs(da+db-total) > 1 {
		t.Errorf("great circle split: %f + %f != %f", da, db, total)
	}
}

func Select[T any](sel bool, a, b T) T {
	if sel {
		return a
	}
	return b
}

func TestBallisticAltitude(t *testing.T) {
	boost, reentry := BallisticPhases(60 * time.Second)
	if Abs(boost-0.25) > 1e-9 {
		t.Errorf("boost fraction: got %f, expected 0.25", boost)
	}
	if Abs(reentry-8.0/60.0) > 1e-9 {
		t.Errorf("reentry fraction: got %f, expected %f", reentry, 8.0/60.0)
	}

	// Both phases are capped for very short flights.
	boost, reentry = BallisticPhases(10 * time.Second)
	if boost != phaseFractionCap || reentry != phaseFractionCap {
		t.Errorf("short flight phases: got %f, %f, expected caps", boost, reentry)
	}

	apex := ApexAltitudeKm(60)
	if apex != 500 {
		t.Errorf("apex for 60 degrees: got %f, expected 500", apex)
	}

	boost, reentry = BallisticPhases(120 * time.Second)
	if a := BallisticAltitudeKm(0, apex, boost, reentry); a != 0 {
		t.Errorf("altitude at launch: got %f, expected 0", a)
	}
	if a := BallisticAltitudeKm(0.5, apex, boost, reentry); a != apex {
		t.Errorf("altitude at cruise: got %f, expected %f", a, apex)
	}
	if a := BallisticAltitudeKm(1, apex, boost, reentry); Abs(a) > 1e-9 {
		t.Errorf("altitude at impact: got %f, expected 0", a)
	}

	// Monotone climb through boost.
	prev := -1.0
	for i := 0; i <= 10; i++ {
		p := boost * float64(i) / 10
		a := BallisticAltitudeKm(p, apex, boost, reentry)
		if a < prev {
			t.Errorf("altitude not monotone during boost at progress %f", p)
		}
		prev = a
	}
}

func TestPointInPolygon(t *testing.T) {
	square := []Point2LL{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if !PointInPolygon(Point2LL{5, 5}, square) {
		t.Errorf("(5,5) should be inside the unit square")
	}
	if PointInPolygon(Point2LL{15, 5}, square) {
		t.Errorf("(15,5) should be outside the unit square")
	}
	if PointInPolygon(Point2LL{-1, -1}, square) {
		t.Errorf("(-1,-1) should be outside the unit square")
	}
}
