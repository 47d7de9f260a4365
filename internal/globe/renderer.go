// Package globe holds the globe renderer: rotation state, the drag and idle
// state machine, hemisphere visibility of airports and marker reconciliation.
package globe

import (
	"sort"

	"github.com/john-huang-121/D3-globe/internal/airports"
	"github.com/john-huang-121/D3-globe/internal/config"
	"github.com/john-huang-121/D3-globe/internal/geo"
	"github.com/john-huang-121/D3-globe/pkg/logger"
	"github.com/paulmach/orb"
)

// Marker is the drawn element for one visible airport
type Marker struct {
	Key         string  `json:"key"`
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name,omitempty"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Distance    float64 `json:"distance"` // degrees from the view centre
	Declination float64 `json:"declination"`
}

// Paths holds the SVG path data of the static layers
type Paths struct {
	Sphere    string `json:"sphere"`
	Graticule string `json:"graticule"`
	Land      string `json:"land,omitempty"`
}

// Frame is the result of one render pass. Enter, Update and Exit describe
// how the marker layer changed since the previous frame.
type Frame struct {
	Seq      uint64       `json:"seq"`
	Rotation geo.Rotation `json:"rotation"`
	Center   geo.LonLat   `json:"center"`
	Dragging bool         `json:"dragging"`
	Paths    Paths        `json:"paths"`
	Enter    []Marker     `json:"enter,omitempty"`
	Update   []Marker     `json:"update,omitempty"`
	Exit     []string     `json:"exit,omitempty"`
}

// Renderer owns the projection state and the marker layer. It is not safe
// for concurrent use; Loop serialises every call onto one goroutine.
type Renderer struct {
	config config.GlobeConfig
	logger *logger.Logger

	rotation   geo.Rotation
	projection geo.Orthographic
	draggers   map[string]struct{} // owners of the drags in progress

	land      orb.MultiPolygon
	airports  []airports.Airport
	markers   map[string]*Marker
	graticule [][]geo.LonLat
	sphere    string

	seq         uint64
	dataVersion uint64
}

// NewRenderer creates a renderer with the configured initial rotation.
// The sphere and graticule are available immediately; land and airports
// appear once SetLand and SetAirports are called.
func NewRenderer(cfg config.GlobeConfig, log *logger.Logger) *Renderer {
	start := cfg.StartRotation()
	rotation := geo.Rotation{Lambda: start[0], Phi: start[1]}
	projection := geo.NewOrthographic(
		rotation,
		cfg.Scale(),
		geo.Point{X: float64(cfg.Width) / 2, Y: float64(cfg.Height) / 2},
		cfg.ClipAngle,
	)

	return &Renderer{
		config:     cfg,
		logger:     log.Named("globe-renderer"),
		rotation:   projection.Rotation(),
		projection: projection,
		draggers:   make(map[string]struct{}),
		markers:    make(map[string]*Marker),
		graticule:  Graticule(cfg.GraticuleStep, cfg.Precision),
		sphere:     SpherePath(projection),
	}
}

// Rotation returns the current rotation
func (r *Renderer) Rotation() geo.Rotation { return r.rotation }

// Projection returns the current projection
func (r *Renderer) Projection() geo.Orthographic { return r.projection }

// Dragging reports whether any drag is in progress
func (r *Renderer) Dragging() bool { return len(r.draggers) > 0 }

// Draggers returns the number of drags in progress
func (r *Renderer) Draggers() int { return len(r.draggers) }

// DataVersion counts land and airport installs
func (r *Renderer) DataVersion() uint64 { return r.dataVersion }

// MarkerCount returns the number of markers currently drawn
func (r *Renderer) MarkerCount() int { return len(r.markers) }

// Marker returns the drawn marker for key, or nil
func (r *Renderer) Marker(key string) *Marker { return r.markers[key] }

// SetLand installs the land geometry
func (r *Renderer) SetLand(land orb.MultiPolygon) {
	r.land = land
	r.dataVersion++
}

// SetAirports installs the airport list. Later records that repeat an
// earlier key are dropped.
func (r *Renderer) SetAirports(list []airports.Airport) {
	seen := make(map[string]bool, len(list))
	unique := make([]airports.Airport, 0, len(list))
	for _, a := range list {
		key := a.Key()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, a)
	}
	if dropped := len(list) - len(unique); dropped > 0 {
		r.logger.Warn("Dropped airports with duplicate keys", logger.Int("dropped", dropped))
	}
	r.airports = unique
	r.dataVersion++
}

// DragStart begins a drag owned by owner. The renderer is Dragging while
// at least one owner holds a drag.
func (r *Renderer) DragStart(owner string) {
	r.draggers[owner] = struct{}{}
}

// DragMove applies a pointer delta from owner. It reports whether the
// rotation changed; moves from an owner with no drag in progress are ignored.
func (r *Renderer) DragMove(owner string, dx, dy float64) bool {
	if _, ok := r.draggers[owner]; !ok {
		return false
	}
	s := r.config.Sensitivity
	r.setRotation(geo.Rotation{
		Lambda: r.rotation.Lambda + dx*s,
		Phi:    r.rotation.Phi - dy*s,
		Gamma:  r.rotation.Gamma,
	})
	return true
}

// DragEnd ends owner's drag. The renderer returns to Idle once the last
// drag has ended; ending a drag that was never started is a no-op.
func (r *Renderer) DragEnd(owner string) {
	delete(r.draggers, owner)
}

// Tick advances the idle rotation by one step. It is a no-op while
// dragging or when auto-rotation is off, and reports whether anything changed.
func (r *Renderer) Tick() bool {
	if r.Dragging() || !r.config.AutoRotateEnabled() || r.config.IdleStepDeg == 0 {
		return false
	}
	r.setRotation(geo.Rotation{
		Lambda: r.rotation.Lambda - r.config.IdleStepDeg,
		Phi:    r.rotation.Phi,
		Gamma:  r.rotation.Gamma,
	})
	return true
}

func (r *Renderer) setRotation(rotation geo.Rotation) {
	r.projection = r.projection.WithRotation(rotation)
	r.rotation = r.projection.Rotation()
}

// Visible returns the airports on the near hemisphere, in list order
func (r *Renderer) Visible() []airports.Airport {
	visible := VisibleAirports(r.projection, r.airports)
	out := make([]airports.Airport, len(visible))
	for i, v := range visible {
		out[i] = v.Airport
	}
	return out
}

// Render re-renders every layer and reconciles the marker layer against
// the airports visible under the current rotation.
func (r *Renderer) Render() *Frame {
	r.seq++
	frame := r.frame()
	frame.Paths.Graticule = LinesPath(r.projection, r.graticule)
	frame.Paths.Land = LandPath(r.projection, r.land)

	if !r.config.AirportsEnabled() {
		return frame
	}

	seen := make(map[string]bool, len(r.markers))
	for _, v := range VisibleAirports(r.projection, r.airports) {
		key := v.Airport.Key()
		seen[key] = true

		m, ok := r.markers[key]
		if !ok {
			m = newMarker(v)
			r.markers[key] = m
			frame.Enter = append(frame.Enter, *m)
			continue
		}
		if m.X != v.Point.X || m.Y != v.Point.Y {
			m.X, m.Y, m.Distance = v.Point.X, v.Point.Y, v.Distance
			frame.Update = append(frame.Update, *m)
		}
	}

	for key := range r.markers {
		if !seen[key] {
			delete(r.markers, key)
			frame.Exit = append(frame.Exit, key)
		}
	}
	sort.Strings(frame.Exit)

	return frame
}

// Snapshot returns the full current picture without reconciling: every
// drawn marker is listed in Enter. New viewers start from a snapshot.
func (r *Renderer) Snapshot() *Frame {
	frame := r.frame()
	frame.Paths.Graticule = LinesPath(r.projection, r.graticule)
	frame.Paths.Land = LandPath(r.projection, r.land)
	for _, a := range r.airports {
		if m, ok := r.markers[a.Key()]; ok {
			frame.Enter = append(frame.Enter, *m)
		}
	}
	return frame
}

func (r *Renderer) frame() *Frame {
	return &Frame{
		Seq:      r.seq,
		Rotation: r.rotation,
		Center:   r.projection.Center(),
		Dragging: r.Dragging(),
		Paths:    Paths{Sphere: r.sphere},
	}
}

// VisibleAirport is an airport on the near hemisphere with its projected position
type VisibleAirport struct {
	Airport  airports.Airport
	Point    geo.Point
	Distance float64
}

// VisibleAirports filters list to the airports whose great-circle distance
// from the point under the view centre is within the clip angle.
func VisibleAirports(p geo.Orthographic, list []airports.Airport) []VisibleAirport {
	center := p.Center()
	limit := p.ClipAngle()

	out := make([]VisibleAirport, 0, len(list)/2)
	for _, a := range list {
		pos := a.Position()
		if !pos.Valid() {
			continue
		}
		d := geo.AngularDistance(center, pos)
		if d > limit {
			continue
		}
		pt, _ := p.Project(pos)
		out = append(out, VisibleAirport{Airport: a, Point: pt, Distance: d})
	}
	return out
}

func newMarker(v VisibleAirport) *Marker {
	return &Marker{
		Key:         v.Airport.Key(),
		ID:          v.Airport.ID,
		Name:        v.Airport.Name,
		Lat:         v.Airport.Lat,
		Lon:         v.Airport.Lon,
		X:           v.Point.X,
		Y:           v.Point.Y,
		Distance:    v.Distance,
		Declination: v.Airport.Declination,
	}
}
