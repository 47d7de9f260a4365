package geo

import "math"

const (
	radians = math.Pi / 180
	degrees = 180 / math.Pi
	epsilon = 1e-6
)

// LonLat is a geographic position in degrees
type LonLat struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Rotation is a three-axis sphere rotation in degrees: Lambda spins about the
// polar axis, Phi tilts north/south, Gamma rolls about the view axis.
type Rotation struct {
	Lambda float64 `json:"lambda"`
	Phi    float64 `json:"phi"`
	Gamma  float64 `json:"gamma"`
}

// Normalize keeps every angle within (-360, 360), preserving sign.
func (r Rotation) Normalize() Rotation {
	return Rotation{
		Lambda: math.Mod(r.Lambda, 360),
		Phi:    math.Mod(r.Phi, 360),
		Gamma:  math.Mod(r.Gamma, 360),
	}
}

// rotator applies a Rotation to points given in radians
type rotator struct {
	deltaLambda                  float64
	cosDeltaPhi, sinDeltaPhi     float64
	cosDeltaGamma, sinDeltaGamma float64
}

func newRotator(r Rotation) rotator {
	return rotator{
		deltaLambda:   r.Lambda * radians,
		cosDeltaPhi:   math.Cos(r.Phi * radians),
		sinDeltaPhi:   math.Sin(r.Phi * radians),
		cosDeltaGamma: math.Cos(r.Gamma * radians),
		sinDeltaGamma: math.Sin(r.Gamma * radians),
	}
}

// wrapLambda folds a longitude in radians into [-π, π]
func wrapLambda(lambda float64) float64 {
	if math.Abs(lambda) > math.Pi {
		return lambda - math.Round(lambda/(2*math.Pi))*2*math.Pi
	}
	return lambda
}

// forward rotates (lambda, phi) in radians
func (r rotator) forward(lambda, phi float64) (float64, float64) {
	lambda = wrapLambda(lambda + r.deltaLambda)

	cosPhi := math.Cos(phi)
	x := math.Cos(lambda) * cosPhi
	y := math.Sin(lambda) * cosPhi
	z := math.Sin(phi)
	k := z*r.cosDeltaPhi + x*r.sinDeltaPhi

	return math.Atan2(y*r.cosDeltaGamma-k*r.sinDeltaGamma, x*r.cosDeltaPhi-z*r.sinDeltaPhi),
		asin(k*r.cosDeltaGamma + y*r.sinDeltaGamma)
}

// invert undoes forward
func (r rotator) invert(lambda, phi float64) (float64, float64) {
	cosPhi := math.Cos(phi)
	x := math.Cos(lambda) * cosPhi
	y := math.Sin(lambda) * cosPhi
	z := math.Sin(phi)
	k := z*r.cosDeltaGamma - y*r.sinDeltaGamma

	lambda = math.Atan2(y*r.cosDeltaGamma+z*r.sinDeltaGamma, x*r.cosDeltaPhi+k*r.sinDeltaPhi)
	phi = asin(k*r.cosDeltaPhi - x*r.sinDeltaPhi)
	return wrapLambda(lambda - r.deltaLambda), phi
}

// asin clamps its argument to [-1, 1] first
func asin(x float64) float64 {
	if x > 1 {
		return math.Pi / 2
	}
	if x < -1 {
		return -math.Pi / 2
	}
	return math.Asin(x)
}

// cartesian returns the unit vector of (lambda, phi) in radians
func cartesian(lambda, phi float64) [3]float64 {
	cosPhi := math.Cos(phi)
	return [3]float64{math.Cos(lambda) * cosPhi, math.Sin(lambda) * cosPhi, math.Sin(phi)}
}

// spherical converts a (not necessarily unit) vector back to (lambda, phi) in radians
func spherical(v [3]float64) (float64, float64) {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return 0, 0
	}
	return math.Atan2(v[1], v[0]), asin(v[2] / n)
}
