package globe

import (
	"math"
	"testing"

	"github.com/john-huang-121/D3-globe/internal/airports"
	"github.com/john-huang-121/D3-globe/internal/config"
	"github.com/john-huang-121/D3-globe/internal/geo"
	"github.com/john-huang-121/D3-globe/pkg/logger"
)

func newTestRenderer(t *testing.T, variant string) *Renderer {
	t.Helper()
	cfg := config.GlobeConfig{Variant: variant}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewRenderer(cfg, logger.NewNop())
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestRendererIdleTickEndToEnd(t *testing.T) {
	r := newTestRenderer(t, config.VariantAirports)
	r.SetAirports([]airports.Airport{{ID: "1", Lon: 0, Lat: 0}})

	first := r.Render()
	if len(first.Enter) != 1 || first.Enter[0].Key != "1" {
		t.Fatalf("got %+v, expected airport 1 to enter", first.Enter)
	}

	if !r.Tick() {
		t.Fatalf("expected the idle tick to rotate")
	}
	rot := r.Rotation()
	if !near(rot.Lambda, -0.25, 1e-9) || !near(rot.Phi, -30, 1e-9) {
		t.Errorf("got rotation %+v, expected [-0.25, -30]", rot)
	}

	frame := r.Render()
	if len(frame.Enter) != 0 || len(frame.Exit) != 0 {
		t.Errorf("got enter %v exit %v, expected only an update", frame.Enter, frame.Exit)
	}
	if len(frame.Update) != 1 {
		t.Fatalf("got %d updates, expected 1", len(frame.Update))
	}
	if d := frame.Update[0].Distance; !near(d, 30, 0.01) {
		t.Errorf("got distance %v, expected about 30", d)
	}
	if c := frame.Center; !near(c.Lon, 0.25, 1e-6) || !near(c.Lat, 30, 1e-6) {
		t.Errorf("got centre %+v, expected (0.25, 30)", c)
	}
}

func TestRendererCenterAlwaysVisible(t *testing.T) {
	rotations := []geo.Rotation{
		{Lambda: 0, Phi: -30},
		{Lambda: 123.4, Phi: 45},
		{Lambda: -170, Phi: -89},
		{Lambda: 540, Phi: 300},
	}
	for _, rot := range rotations {
		r := newTestRenderer(t, config.VariantAirports)
		r.setRotation(rot)
		c := r.Projection().Center()
		r.SetAirports([]airports.Airport{{ID: "c", Lon: c.Lon, Lat: c.Lat}})

		visible := r.Visible()
		if len(visible) != 1 {
			t.Errorf("rotation %+v: centre airport not visible", rot)
		}
		frame := r.Render()
		if len(frame.Enter) != 1 || !near(frame.Enter[0].Distance, 0, 1e-6) {
			t.Errorf("rotation %+v: got %+v, expected one marker at distance 0", rot, frame.Enter)
		}
	}
}

func TestRendererBeyondHorizonExcluded(t *testing.T) {
	r := newTestRenderer(t, config.VariantAirports)
	c := r.Projection().Center()
	antipode := geo.LonLat{Lon: c.Lon + 180, Lat: -c.Lat}
	if antipode.Lon > 180 {
		antipode.Lon -= 360
	}

	r.SetAirports([]airports.Airport{
		{ID: "far", Lon: antipode.Lon, Lat: antipode.Lat},
		{ID: "edge", Lon: c.Lon, Lat: c.Lat - 90.5},
		{ID: "near", Lon: c.Lon, Lat: c.Lat - 89.5},
	})

	frame := r.Render()
	if len(frame.Enter) != 1 || frame.Enter[0].Key != "near" {
		t.Errorf("got %+v, expected only the near airport", frame.Enter)
	}
	if r.Marker("far") != nil || r.Marker("edge") != nil {
		t.Errorf("markers beyond 90 degrees were drawn")
	}
}

func TestRendererIdempotentRender(t *testing.T) {
	r := newTestRenderer(t, config.VariantAirports)
	r.SetAirports([]airports.Airport{
		{ID: "A", Lon: 0, Lat: 0},
		{ID: "B", Lon: 10, Lat: 40},
		{ID: "C", Lon: 180, Lat: 0},
	})

	first := r.Render()
	if len(first.Enter) != 2 {
		t.Fatalf("got %d entering, expected 2", len(first.Enter))
	}

	second := r.Render()
	if len(second.Enter)+len(second.Update)+len(second.Exit) != 0 {
		t.Errorf("got churn %+v on an unchanged render", second)
	}
	if second.Seq != first.Seq+1 {
		t.Errorf("got seq %d, expected %d", second.Seq, first.Seq+1)
	}
	if second.Paths != first.Paths {
		t.Errorf("paths changed without a rotation change")
	}
}

func TestRendererReusesMarkers(t *testing.T) {
	r := newTestRenderer(t, config.VariantAirports)
	r.SetAirports([]airports.Airport{{ID: "1", Lon: 0, Lat: 0}, {Name: "Nameless", Lon: 5, Lat: 5}})
	r.Render()

	before := r.Marker("1")
	named := r.Marker("Nameless")
	if before == nil || named == nil {
		t.Fatalf("markers not drawn")
	}
	x := before.X

	r.DragStart("a")
	if !r.DragMove("a", 8, -4) {
		t.Fatalf("expected drag move to rotate")
	}
	r.DragEnd("a")
	frame := r.Render()

	if after := r.Marker("1"); after != before {
		t.Errorf("marker 1 was recreated instead of repositioned")
	}
	if len(frame.Enter) != 0 || len(frame.Update) != 2 {
		t.Errorf("got enter %d update %d, expected 0 and 2", len(frame.Enter), len(frame.Update))
	}
	if before.X == x {
		t.Errorf("marker position not updated")
	}
}

func TestRendererExit(t *testing.T) {
	r := newTestRenderer(t, config.VariantAirports)
	r.SetAirports([]airports.Airport{{ID: "1", Lon: 0, Lat: 0}})
	r.Render()

	r.DragStart("a")
	r.DragMove("a", 720, 0) // 180 degrees of longitude
	frame := r.Render()

	if len(frame.Exit) != 1 || frame.Exit[0] != "1" {
		t.Errorf("got exit %v, expected [1]", frame.Exit)
	}
	if r.MarkerCount() != 0 {
		t.Errorf("got %d markers, expected none", r.MarkerCount())
	}
}

func TestRendererDragExcludesIdle(t *testing.T) {
	r := newTestRenderer(t, config.VariantAirports)
	start := r.Rotation()

	if r.DragMove("a", 10, 10) {
		t.Errorf("drag move outside a drag changed the rotation")
	}

	r.DragStart("a")
	if !r.Dragging() {
		t.Fatalf("expected dragging")
	}
	for i := 0; i < 5; i++ {
		if r.Tick() {
			t.Errorf("idle tick rotated during a drag")
		}
	}
	if r.Rotation() != start {
		t.Errorf("got %+v, expected %+v", r.Rotation(), start)
	}

	r.DragMove("a", 4, 8)
	rot := r.Rotation()
	if !near(rot.Lambda, start.Lambda+1, 1e-9) || !near(rot.Phi, start.Phi-2, 1e-9) {
		t.Errorf("got %+v after drag", rot)
	}

	r.DragEnd("a")
	if !r.Tick() {
		t.Errorf("idle tick did not resume after the drag")
	}
}

func TestRendererOverlappingDrags(t *testing.T) {
	r := newTestRenderer(t, config.VariantAirports)
	start := r.Rotation()

	r.DragStart("a")
	r.DragStart("b")
	r.DragEnd("a")
	if !r.Dragging() || r.Draggers() != 1 {
		t.Fatalf("got dragging %v with %d drags, expected b still dragging", r.Dragging(), r.Draggers())
	}
	if r.Tick() {
		t.Errorf("idle tick rotated while b was dragging")
	}
	if r.DragMove("a", 4, 0) {
		t.Errorf("move from a finished drag was applied")
	}
	if r.Rotation() != start {
		t.Errorf("got %+v, expected %+v", r.Rotation(), start)
	}
	if !r.DragMove("b", 4, 0) {
		t.Errorf("move from b was ignored")
	}

	r.DragEnd("c")
	if !r.Dragging() {
		t.Errorf("ending an unknown drag released b")
	}
	r.DragEnd("b")
	if r.Dragging() || !r.Tick() {
		t.Errorf("idle tick did not resume after the last drag ended")
	}
}

func TestRendererDataVersion(t *testing.T) {
	r := newTestRenderer(t, config.VariantAirports)
	if r.DataVersion() != 0 {
		t.Fatalf("got version %d before any data", r.DataVersion())
	}
	r.SetLand(nil)
	r.SetAirports([]airports.Airport{{ID: "1"}})
	if r.DataVersion() != 2 {
		t.Errorf("got version %d, expected 2", r.DataVersion())
	}
}

func TestRendererClassicVariant(t *testing.T) {
	r := newTestRenderer(t, config.VariantClassic)
	r.SetAirports([]airports.Airport{{ID: "1", Lon: 0, Lat: 0}})

	if r.Tick() {
		t.Errorf("classic variant auto-rotated")
	}
	frame := r.Render()
	if len(frame.Enter) != 0 || r.MarkerCount() != 0 {
		t.Errorf("classic variant drew markers")
	}
	if frame.Paths.Sphere == "" || frame.Paths.Graticule == "" {
		t.Errorf("static layers missing: %+v", frame.Paths)
	}
}

func TestRendererSetAirportsDropsDuplicates(t *testing.T) {
	r := newTestRenderer(t, config.VariantAirports)
	r.SetAirports([]airports.Airport{
		{ID: "1", Name: "first", Lon: 0, Lat: 0},
		{ID: "1", Name: "second", Lon: 1, Lat: 1},
		{ID: "2", Lon: 2, Lat: 2},
	})

	visible := r.Visible()
	if len(visible) != 2 || visible[0].Name != "first" {
		t.Errorf("got %+v, expected the first record for each key", visible)
	}
}

func TestRendererSnapshot(t *testing.T) {
	r := newTestRenderer(t, config.VariantAirports)
	r.SetAirports([]airports.Airport{{ID: "B", Lon: 10, Lat: 10}, {ID: "A", Lon: 0, Lat: 0}})
	frame := r.Render()

	snap := r.Snapshot()
	if snap.Seq != frame.Seq {
		t.Errorf("snapshot advanced seq to %d", snap.Seq)
	}
	if len(snap.Enter) != 2 || snap.Enter[0].Key != "B" || snap.Enter[1].Key != "A" {
		t.Errorf("got %+v, expected every marker in list order", snap.Enter)
	}

	// a snapshot does not disturb reconciliation
	if next := r.Render(); len(next.Enter) != 0 {
		t.Errorf("got %d entering after a snapshot", len(next.Enter))
	}
}

func TestRenderAt(t *testing.T) {
	cfg := config.DefaultGlobe()
	list := []airports.Airport{{ID: "1", Lon: 0, Lat: 0}}

	frame := RenderAt(cfg, geo.Rotation{Lambda: 180}, Data{Airports: list}, logger.NewNop())
	if len(frame.Enter) != 0 {
		t.Errorf("got %+v, expected the airport hidden", frame.Enter)
	}

	frame = RenderAt(cfg, geo.Rotation{}, Data{Airports: list}, logger.NewNop())
	if len(frame.Enter) != 1 {
		t.Errorf("got %+v, expected the airport visible", frame.Enter)
	}
	if c := frame.Center; !near(c.Lon, 0, 1e-9) || !near(c.Lat, 0, 1e-9) {
		t.Errorf("got centre %+v", c)
	}
}
