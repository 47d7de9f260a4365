package globe

import (
	"math"
	"strconv"

	"github.com/john-huang-121/D3-globe/internal/geo"
	"github.com/paulmach/orb"
)

const (
	epsilon = 1e-6

	// bisection steps when locating where a line crosses the horizon
	horizonSteps = 16

	// largest angle between consecutive points along the limb, in radians
	limbStep = 5 * math.Pi / 180
)

// pathBuilder accumulates SVG path data with two-decimal coordinates
type pathBuilder struct {
	buf []byte
}

func (b *pathBuilder) moveTo(p geo.Point) { b.command('M', p) }

func (b *pathBuilder) lineTo(p geo.Point) { b.command('L', p) }

func (b *pathBuilder) closePath() { b.buf = append(b.buf, 'Z') }

func (b *pathBuilder) command(c byte, p geo.Point) {
	b.buf = append(b.buf, c)
	b.point(p)
}

func (b *pathBuilder) point(p geo.Point) {
	b.buf = appendCoord(b.buf, p.X)
	b.buf = append(b.buf, ',')
	b.buf = appendCoord(b.buf, p.Y)
}

func (b *pathBuilder) String() string { return string(b.buf) }

func appendCoord(buf []byte, v float64) []byte {
	v = math.Round(v*100) / 100
	if v == 0 {
		v = 0 // drop negative zero
	}
	return strconv.AppendFloat(buf, v, 'f', -1, 64)
}

// SpherePath returns the outline of the visible disc as two half-circle arcs
func SpherePath(p geo.Orthographic) string {
	c := p.Translate()
	r := p.Scale() * math.Sin(math.Min(p.ClipAngle(), 90)*math.Pi/180)

	var b pathBuilder
	top := geo.Point{X: c.X, Y: c.Y - r}
	bottom := geo.Point{X: c.X, Y: c.Y + r}
	b.moveTo(top)
	for _, end := range []geo.Point{bottom, top} {
		b.buf = append(b.buf, 'A')
		b.buf = appendCoord(b.buf, r)
		b.buf = append(b.buf, ',')
		b.buf = appendCoord(b.buf, r)
		b.buf = append(b.buf, " 0 1,1 "...)
		b.point(end)
	}
	b.closePath()
	return b.String()
}

// LinesPath draws open polylines, cutting each one where it passes behind
// the horizon.
func LinesPath(p geo.Orthographic, lines [][]geo.LonLat) string {
	var b pathBuilder
	for _, line := range lines {
		var prev geo.LonLat
		var prevVisible bool
		for i, pos := range line {
			pt, visible := p.Project(pos)
			switch {
			case i == 0:
				if visible {
					b.moveTo(pt)
				}
			case prevVisible && visible:
				b.lineTo(pt)
			case prevVisible && !visible:
				b.lineTo(horizon(p, prev, pos))
			case !prevVisible && visible:
				b.moveTo(horizon(p, pos, prev))
				b.lineTo(pt)
			}
			prev, prevVisible = pos, visible
		}
	}
	return b.String()
}

// LandPath draws every polygon ring. Parts of a ring beyond the horizon are
// pushed onto the limb so the fill stays closed; rings entirely out of view
// are skipped.
func LandPath(p geo.Orthographic, land orb.MultiPolygon) string {
	var b pathBuilder
	for _, polygon := range land {
		for _, ring := range polygon {
			drawRing(&b, p, ring)
		}
	}
	return b.String()
}

func drawRing(b *pathBuilder, p geo.Orthographic, ring orb.Ring) {
	anyVisible := false
	for _, pt := range ring {
		if p.Visible(lonLat(pt)) {
			anyVisible = true
			break
		}
	}
	if !anyVisible {
		return
	}

	started := false
	var last geo.Point
	var lastVisible bool
	emit := func(pt geo.Point, visible bool) {
		if !started {
			b.moveTo(pt)
			started = true
		} else {
			if !visible && !lastVisible {
				limbArc(b, p, last, pt)
			}
			b.lineTo(pt)
		}
		last, lastVisible = pt, visible
	}

	var prev geo.LonLat
	var prevVisible bool
	for i, raw := range ring {
		pos := lonLat(raw)
		pt, visible := p.ProjectClamped(pos)
		if i > 0 && visible != prevVisible {
			if visible {
				emit(horizon(p, pos, prev), false)
			} else {
				emit(horizon(p, prev, pos), true)
			}
		}
		emit(pt, visible)
		prev, prevVisible = pos, visible
	}
	b.closePath()
}

// limbArc inserts points along the limb between two limb points so the
// hidden part of a ring follows the disc edge instead of cutting across it.
func limbArc(b *pathBuilder, p geo.Orthographic, from, to geo.Point) {
	c := p.Translate()
	a0 := math.Atan2(from.Y-c.Y, from.X-c.X)
	a1 := math.Atan2(to.Y-c.Y, to.X-c.X)
	delta := math.Remainder(a1-a0, 2*math.Pi)
	n := int(math.Abs(delta) / limbStep)
	if n == 0 {
		return
	}
	r := math.Hypot(from.X-c.X, from.Y-c.Y)
	for i := 1; i <= n; i++ {
		a := a0 + delta*float64(i)/float64(n+1)
		b.lineTo(geo.Point{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)})
	}
}

// horizon finds the pixel where the great circle from inside (visible) to
// outside (hidden) crosses the clip edge.
func horizon(p geo.Orthographic, inside, outside geo.LonLat) geo.Point {
	lo, hi := 0.0, 1.0
	for i := 0; i < horizonSteps; i++ {
		mid := (lo + hi) / 2
		if p.Visible(geo.Interpolate(inside, outside, mid)) {
			lo = mid
		} else {
			hi = mid
		}
	}
	pt, _ := p.ProjectClamped(geo.Interpolate(inside, outside, lo))
	return pt
}

func lonLat(p orb.Point) geo.LonLat {
	return geo.LonLat{Lon: p.Lon(), Lat: p.Lat()}
}
