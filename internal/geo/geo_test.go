package geo

import (
	"math"
	"testing"
)

func near(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestAngularDistance(t *testing.T) {
	for _, tc := range []struct {
		a, b     LonLat
		expected float64
	}{
		{LonLat{0, 0}, LonLat{0, 0}, 0},
		{LonLat{0, 0}, LonLat{90, 0}, 90},
		{LonLat{0, 0}, LonLat{180, 0}, 180},
		{LonLat{0, 90}, LonLat{123, -90}, 180},
		{LonLat{0, 0}, LonLat{0, 30}, 30},
		{LonLat{0, 0}, LonLat{0.25, 30}, 30.00094},
		{LonLat{-179, 0}, LonLat{179, 0}, 2},
		// planar distance would be wrong here: both at 80N, 180 deg of longitude apart
		{LonLat{0, 80}, LonLat{180, 80}, 20},
	} {
		if got := AngularDistance(tc.a, tc.b); !near(got, tc.expected, 1e-4) {
			t.Errorf("%v -> %v: got %.6f, expected %.6f", tc.a, tc.b, got, tc.expected)
		}
	}
}

func TestInterpolate(t *testing.T) {
	a, b := LonLat{0, 0}, LonLat{90, 0}
	mid := Interpolate(a, b, 0.5)
	if !near(mid.Lon, 45, 1e-9) || !near(mid.Lat, 0, 1e-9) {
		t.Errorf("got %v, expected {45 0}", mid)
	}
	if p := Interpolate(a, b, 0); !near(p.Lon, 0, 1e-9) {
		t.Errorf("got %v at t=0", p)
	}
	if p := Interpolate(a, b, 1); !near(p.Lon, 90, 1e-9) {
		t.Errorf("got %v at t=1", p)
	}
}

func testProjection(r Rotation) Orthographic {
	return NewOrthographic(r, 800/2.2, Point{400, 400}, 90)
}

func TestCenter(t *testing.T) {
	for _, tc := range []struct {
		rotation Rotation
		expected LonLat
	}{
		{Rotation{0, -30, 0}, LonLat{0, 30}},
		{Rotation{-0.25, -30, 0}, LonLat{0.25, 30}},
		{Rotation{45, 10, 0}, LonLat{-45, -10}},
		{Rotation{-100, 0, 0}, LonLat{100, 0}},
	} {
		c := testProjection(tc.rotation).Center()
		if !near(c.Lon, tc.expected.Lon, 1e-9) || !near(c.Lat, tc.expected.Lat, 1e-9) {
			t.Errorf("%+v: got centre %v, expected %v", tc.rotation, c, tc.expected)
		}
	}
}

func TestProjectInvertRoundTrip(t *testing.T) {
	p := testProjection(Rotation{37, -21, 0})
	center := p.Center()
	for _, ll := range []LonLat{
		center,
		{center.Lon + 20, center.Lat - 10},
		{center.Lon - 60, center.Lat + 15},
		{-10, 40},
	} {
		pt, visible := p.Project(ll)
		if !visible {
			t.Errorf("%v: expected visible", ll)
			continue
		}
		back, ok := p.Invert(pt)
		if !ok {
			t.Errorf("%v: invert failed for %v", ll, pt)
			continue
		}
		if !near(back.Lon, ll.Lon, 1e-6) || !near(back.Lat, ll.Lat, 1e-6) {
			t.Errorf("%v: round trip gave %v", ll, back)
		}
	}
}

func TestProjectCenterPixel(t *testing.T) {
	p := testProjection(Rotation{0, -30, 0})
	pt, visible := p.Project(LonLat{0, 30})
	if !visible || !near(pt.X, 400, 1e-9) || !near(pt.Y, 400, 1e-9) {
		t.Errorf("got %v (visible %v), expected the surface centre", pt, visible)
	}

	// north of the centre draws above it
	pt, _ = p.Project(LonLat{0, 60})
	if pt.Y >= 400 {
		t.Errorf("got y=%f, expected above the centre", pt.Y)
	}
	// east of the centre draws to the right
	pt, _ = p.Project(LonLat{30, 30})
	if pt.X <= 400 {
		t.Errorf("got x=%f, expected right of the centre", pt.X)
	}
}

func TestVisible(t *testing.T) {
	p := testProjection(Rotation{0, 0, 0})
	if !p.Visible(LonLat{89, 0}) {
		t.Errorf("expected 89E to be visible")
	}
	if p.Visible(LonLat{91, 0}) {
		t.Errorf("expected 91E to be hidden")
	}
	if p.Visible(LonLat{180, 0}) {
		t.Errorf("expected the antipode to be hidden")
	}
}

func TestInvertOutsideDisc(t *testing.T) {
	p := testProjection(Rotation{})
	if _, ok := p.Invert(Point{0, 0}); ok {
		t.Errorf("expected the surface corner to be outside the disc")
	}
}

func TestProjectClamped(t *testing.T) {
	p := testProjection(Rotation{})
	pt, inside := p.ProjectClamped(LonLat{120, 0})
	if inside {
		t.Errorf("expected a clamped point")
	}
	r := math.Hypot(pt.X-400, pt.Y-400)
	if !near(r, p.Scale(), 1e-6) {
		t.Errorf("got radius %f, expected the limb at %f", r, p.Scale())
	}
}

func TestNormalize(t *testing.T) {
	r := Rotation{Lambda: -370, Phi: 400}.Normalize()
	if !near(r.Lambda, -10, 1e-9) || !near(r.Phi, 40, 1e-9) {
		t.Errorf("got %+v", r)
	}
}
