package geo

import "math"

// AngularDistance returns the great-circle distance between a and b in degrees.
func AngularDistance(a, b LonLat) float64 {
	lambda1, phi1 := a.Lon*radians, a.Lat*radians
	lambda2, phi2 := b.Lon*radians, b.Lat*radians

	deltaLambda := lambda2 - lambda1
	sinPhi1, cosPhi1 := math.Sincos(phi1)
	sinPhi2, cosPhi2 := math.Sincos(phi2)
	sinDelta, cosDelta := math.Sincos(deltaLambda)

	x := cosPhi2 * sinDelta
	y := cosPhi1*sinPhi2 - sinPhi1*cosPhi2*cosDelta
	z := sinPhi1*sinPhi2 + cosPhi1*cosPhi2*cosDelta

	return math.Atan2(math.Sqrt(x*x+y*y), z) * degrees
}

// Interpolate returns the point a fraction t of the way along the great circle from a to b.
func Interpolate(a, b LonLat, t float64) LonLat {
	d := AngularDistance(a, b) * radians
	if d < epsilon {
		return a
	}
	va := cartesian(a.Lon*radians, a.Lat*radians)
	vb := cartesian(b.Lon*radians, b.Lat*radians)

	s := math.Sin(d)
	if s < epsilon {
		// antipodal: any great circle works, fall back to a straight lerp
		return LonLat{Lon: a.Lon + (b.Lon-a.Lon)*t, Lat: a.Lat + (b.Lat-a.Lat)*t}
	}
	ka := math.Sin((1-t)*d) / s
	kb := math.Sin(t*d) / s
	lambda, phi := spherical([3]float64{
		ka*va[0] + kb*vb[0],
		ka*va[1] + kb*vb[1],
		ka*va[2] + kb*vb[2],
	})
	return LonLat{Lon: lambda * degrees, Lat: phi * degrees}
}

// Valid reports whether p is a finite position with latitude in [-90, 90]
// and longitude in [-180, 180].
func (p LonLat) Valid() bool {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) || math.IsInf(p.Lon, 0) || math.IsInf(p.Lat, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}
