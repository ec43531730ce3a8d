// math/latlong.go
// Copyright(c) 2025-2026 standoff contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"fmt"
)

// EarthRadiusKm is the mean Earth radius used throughout; the simulation
// treats the Earth as a sphere.
const EarthRadiusKm = 6371.0

// Point2LL represents a 2D point on the Earth in latitude-longitude.
// Important: 0 (x) is longitude, 1 (y) is latitude
type Point2LL [2]float64

func MakePoint2LL(latitude, longitude float64) Point2LL {
	return Point2LL{longitude, latitude}
}

func (p Point2LL) Longitude() float64 {
	return p[0]
}

func (p Point2LL) Latitude() float64 {
	return p[1]
}

// DDString returns the position in decimal degrees, e.g.:
// (39.860901, -75.274864)
func (p Point2LL) DDString() string {
	return fmt.Sprintf("(%f, %f)", p[1], p[0]) // latitude, longitude
}

func (p Point2LL) IsZero() bool {
	return p[0] == 0 && p[1] == 0
}

///////////////////////////////////////////////////////////////////////////
// Sphere geometry

// Vec3 is a point or direction in a geocentric Cartesian frame, in km.
type Vec3 [3]float64

// ToVec3 returns the unit vector on the sphere corresponding to the given
// lat-long point.
func (p Point2LL) ToVec3() Vec3 {
	lat, lon := Radians(p.Latitude()), Radians(p.Longitude())
	return Vec3{Cos(lat) * Cos(lon), Cos(lat) * Sin(lon), Sin(lat)}
}

// Vec3ToLL maps a (not necessarily normalized) geocentric direction back
// to latitude-longitude.
func Vec3ToLL(v Vec3) Point2LL {
	n := Sqrt(Sqr(v[0]) + Sqr(v[1]) + Sqr(v[2]))
	lat := Degrees(Asin(Clamp(v[2]/n, -1, 1)))
	lon := Degrees(Atan2(v[1], v[0]))
	return Point2LL{lon, lat}
}

func Dot3(a, b Vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// Cartesian3 returns the geocentric position of the given lat-long point
// at the given altitude above the surface, in km; used for close-proximity
// checks between objects at different altitudes.
func (p Point2LL) Cartesian3(altitudeKm float64) Vec3 {
	u := p.ToVec3()
	r := EarthRadiusKm + altitudeKm
	return Vec3{u[0] * r, u[1] * r, u[2] * r}
}

// Distance3 returns the Euclidean distance in km between two geocentric
// positions.
func Distance3(a, b Vec3) float64 {
	return Sqrt(Sqr(a[0]-b[0]) + Sqr(a[1]-b[1]) + Sqr(a[2]-b[2]))
}

// AngularDistance returns the central angle in radians between two points
// on the sphere, via the haversine formula.
// https://www.movable-type.co.uk/scripts/latlong.html
func AngularDistance(a, b Point2LL) float64 {
	lat1, lon1 := Radians(a.Latitude()), Radians(a.Longitude())
	lat2, lon2 := Radians(b.Latitude()), Radians(b.Longitude())
	dlat, dlon := lat2-lat1, lon2-lon1

	x := Sqr(Sin(dlat/2)) + Cos(lat1)*Cos(lat2)*Sqr(Sin(dlon/2))
	return 2 * Atan2(Sqrt(x), Sqrt(1-x))
}

// KMDistance2LL returns the great-circle distance in km between two
// lat-long coordinates.
func KMDistance2LL(a, b Point2LL) float64 {
	return EarthRadiusKm * AngularDistance(a, b)
}

// LerpGC interpolates along the great circle from a to b; x=0 gives a,
// x=1 gives b.  Spherical linear interpolation on the unit sphere.
func LerpGC(x float64, a, b Point2LL) Point2LL {
	va, vb := a.ToVec3(), b.ToVec3()
	omega := Acos(Dot3(va, vb))
	if omega < 1e-9 {
		// Degenerate: the points (near-)coincide.
		return a
	}

	sa := Sin((1-x)*omega) / Sin(omega)
	sb := Sin(x*omega) / Sin(omega)
	return Vec3ToLL(Vec3{
		sa*va[0] + sb*vb[0],
		sa*va[1] + sb*vb[1],
		sa*va[2] + sb*vb[2],
	})
}

// NormalizeLongitude wraps a longitude into [-180, 180).
func NormalizeLongitude(lon float64) float64 {
	lon = Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

///////////////////////////////////////////////////////////////////////////
// Polygons

// PointInPolygon reports whether p is inside the polygon given by its
// vertices, via the usual crossing count.  Boundary polygons in the
// catalog are small enough that treating lat-long as planar is fine.
func PointInPolygon(p Point2LL, poly []Point2LL) bool {
	inside := false
	j := len(poly) - 1
	for i := range poly {
		pi, pj := poly[i], poly[j]
		if (pi[1] > p[1]) != (pj[1] > p[1]) &&
			p[0] < (pj[0]-pi[0])*(p[1]-pi[1])/(pj[1]-pi[1])+pi[0] {
			inside = !inside
		}
		j = i
	}
	return inside
}
