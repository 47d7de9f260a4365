// Package topology decodes TopoJSON documents into orb geometries.
package topology

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
)

// Topology is a decoded TopoJSON document
type Topology struct {
	Type      string                     `json:"type"`
	Transform *Transform                 `json:"transform,omitempty"`
	Arcs      [][][2]float64             `json:"arcs"`
	Objects   map[string]json.RawMessage `json:"objects"`

	decoded [][]orb.Point
}

// Transform is the quantization transform of a TopoJSON document
type Transform struct {
	Scale     [2]float64 `json:"scale"`
	Translate [2]float64 `json:"translate"`
}

// geometry is one TopoJSON geometry object. Arcs is kept raw because its
// nesting depth depends on Type.
type geometry struct {
	Type       string          `json:"type"`
	Arcs       json.RawMessage `json:"arcs,omitempty"`
	Geometries []geometry      `json:"geometries,omitempty"`
}

// Decode parses a TopoJSON document and resolves its arcs.
func Decode(data []byte) (*Topology, error) {
	var t Topology
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode topology: %w", err)
	}
	if t.Type != "Topology" {
		return nil, fmt.Errorf("unexpected document type %q", t.Type)
	}
	t.decoded = make([][]orb.Point, len(t.Arcs))
	for i, arc := range t.Arcs {
		t.decoded[i] = t.decodeArc(arc)
	}
	return &t, nil
}

// decodeArc undoes delta encoding and quantization
func (t *Topology) decodeArc(arc [][2]float64) []orb.Point {
	points := make([]orb.Point, len(arc))
	if t.Transform == nil {
		for i, p := range arc {
			points[i] = orb.Point{p[0], p[1]}
		}
		return points
	}

	var x, y float64
	s, tr := t.Transform.Scale, t.Transform.Translate
	for i, p := range arc {
		x += p[0]
		y += p[1]
		points[i] = orb.Point{x*s[0] + tr[0], y*s[1] + tr[1]}
	}
	return points
}

// ObjectNames lists the objects in the topology, sorted
func (t *Topology) ObjectNames() []string {
	names := make([]string, 0, len(t.Objects))
	for name := range t.Objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MultiPolygon merges every polygon of the named object into one MultiPolygon.
// Non-areal geometries are ignored.
func (t *Topology) MultiPolygon(object string) (orb.MultiPolygon, error) {
	raw, ok := t.Objects[object]
	if !ok {
		return nil, fmt.Errorf("object %q not found in topology (have %v)", object, t.ObjectNames())
	}
	var g geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("failed to decode object %q: %w", object, err)
	}

	var mp orb.MultiPolygon
	if err := t.collect(g, &mp); err != nil {
		return nil, fmt.Errorf("object %q: %w", object, err)
	}
	return mp, nil
}

func (t *Topology) collect(g geometry, mp *orb.MultiPolygon) error {
	switch g.Type {
	case "GeometryCollection":
		for _, child := range g.Geometries {
			if err := t.collect(child, mp); err != nil {
				return err
			}
		}
	case "Polygon":
		var rings [][]int
		if err := json.Unmarshal(g.Arcs, &rings); err != nil {
			return fmt.Errorf("invalid polygon arcs: %w", err)
		}
		poly, err := t.polygon(rings)
		if err != nil {
			return err
		}
		*mp = append(*mp, poly)
	case "MultiPolygon":
		var polys [][][]int
		if err := json.Unmarshal(g.Arcs, &polys); err != nil {
			return fmt.Errorf("invalid multipolygon arcs: %w", err)
		}
		for _, rings := range polys {
			poly, err := t.polygon(rings)
			if err != nil {
				return err
			}
			*mp = append(*mp, poly)
		}
	}
	return nil
}

func (t *Topology) polygon(rings [][]int) (orb.Polygon, error) {
	poly := make(orb.Polygon, 0, len(rings))
	for _, arcs := range rings {
		ring, err := t.ring(arcs)
		if err != nil {
			return nil, err
		}
		poly = append(poly, ring)
	}
	return poly, nil
}

// ring stitches arcs together; a negative index ~i means arc i reversed.
// Consecutive arcs share an endpoint, which is kept only once.
func (t *Topology) ring(arcs []int) (orb.Ring, error) {
	var ring orb.Ring
	for _, index := range arcs {
		reversed := index < 0
		if reversed {
			index = ^index
		}
		if index >= len(t.decoded) {
			return nil, fmt.Errorf("arc index %d out of range (%d arcs)", index, len(t.decoded))
		}

		if len(ring) > 0 {
			ring = ring[:len(ring)-1]
		}
		arc := t.decoded[index]
		if reversed {
			for i := len(arc) - 1; i >= 0; i-- {
				ring = append(ring, arc[i])
			}
		} else {
			ring = append(ring, arc...)
		}
	}

	if len(ring) == 0 {
		return ring, nil
	}
	for len(ring) < 4 {
		ring = append(ring, ring[0])
	}
	return ring, nil
}
