package geo

import "math"

// Point is a position on the drawing surface in pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Orthographic is an orthographic projection of the unit sphere onto a
// drawing surface. The zero value is not usable; build one with NewOrthographic.
// It is an immutable value: changing the rotation means building a new one.
type Orthographic struct {
	rotation  Rotation
	rot       rotator
	scale     float64
	translate Point
	clipAngle float64
	cosClip   float64
}

// NewOrthographic creates a projection with the given rotation, scale in
// pixels, translation of the sphere centre and clip angle in degrees.
func NewOrthographic(rotation Rotation, scale float64, translate Point, clipAngle float64) Orthographic {
	rotation = rotation.Normalize()
	return Orthographic{
		rotation:  rotation,
		rot:       newRotator(rotation),
		scale:     scale,
		translate: translate,
		clipAngle: clipAngle,
		cosClip:   math.Cos(clipAngle * radians),
	}
}

// Rotation returns the projection's rotation
func (o Orthographic) Rotation() Rotation { return o.rotation }

// Scale returns the sphere radius in pixels
func (o Orthographic) Scale() float64 { return o.scale }

// Translate returns the pixel position of the sphere centre
func (o Orthographic) Translate() Point { return o.translate }

// ClipAngle returns the clip angle in degrees
func (o Orthographic) ClipAngle() float64 { return o.clipAngle }

// WithRotation returns a copy of o rotated to r
func (o Orthographic) WithRotation(r Rotation) Orthographic {
	return NewOrthographic(r, o.scale, o.translate, o.clipAngle)
}

// Project maps p to surface pixels. The second result is false when p lies
// beyond the clip angle; the pixel position is still returned.
func (o Orthographic) Project(p LonLat) (Point, bool) {
	lambda, phi := o.rot.forward(p.Lon*radians, p.Lat*radians)
	v := cartesian(lambda, phi)
	return o.toPixel(v[1], v[2]), v[0] > o.cosClip-epsilon
}

// Invert maps a surface pixel back to a geographic position. The second
// result is false when the pixel lies outside the sphere's disc.
func (o Orthographic) Invert(pt Point) (LonLat, bool) {
	x := (pt.X - o.translate.X) / o.scale
	y := (o.translate.Y - pt.Y) / o.scale

	z := math.Sqrt(x*x + y*y)
	if z > 1+epsilon {
		return LonLat{}, false
	}
	c := asin(z)
	sc, cc := math.Sincos(c)

	lambda := math.Atan2(x*sc, z*cc)
	var phi float64
	if z != 0 {
		phi = asin(y * sc / z)
	}
	lambda, phi = o.rot.invert(lambda, phi)
	return LonLat{Lon: lambda * degrees, Lat: phi * degrees}, true
}

// Center returns the geographic position under the centre of the sphere's disc.
func (o Orthographic) Center() LonLat {
	c, _ := o.Invert(o.translate)
	return c
}

// Visible reports whether p is on the near side of the clip angle.
func (o Orthographic) Visible(p LonLat) bool {
	_, ok := o.Project(p)
	return ok
}

// rotated returns the unit vector of p in the rotated (view) frame: x points
// at the viewer, y right, z up.
func (o Orthographic) rotated(p LonLat) [3]float64 {
	lambda, phi := o.rot.forward(p.Lon*radians, p.Lat*radians)
	return cartesian(lambda, phi)
}

func (o Orthographic) toPixel(x, y float64) Point {
	return Point{X: o.translate.X + o.scale*x, Y: o.translate.Y - o.scale*y}
}

// ProjectClamped maps p to surface pixels, pushing points beyond the horizon
// radially onto the limb. The second result is false when p was clamped.
func (o Orthographic) ProjectClamped(p LonLat) (Point, bool) {
	v := o.rotated(p)
	if v[0] > o.cosClip {
		return o.toPixel(v[1], v[2]), true
	}
	n := math.Hypot(v[1], v[2])
	if n < epsilon {
		// directly behind the centre; any limb point will do
		return o.toPixel(1, 0), false
	}
	r := math.Sin(o.clipAngle * radians)
	return o.toPixel(v[1]/n*r, v[2]/n*r), false
}
