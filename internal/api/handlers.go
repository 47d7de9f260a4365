package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/john-huang-121/D3-globe/internal/airports"
	"github.com/john-huang-121/D3-globe/internal/config"
	"github.com/john-huang-121/D3-globe/internal/dataset"
	"github.com/john-huang-121/D3-globe/internal/geo"
	"github.com/john-huang-121/D3-globe/internal/globe"
	"github.com/john-huang-121/D3-globe/internal/storage/sqlite"
	"github.com/john-huang-121/D3-globe/pkg/logger"
	"github.com/paulmach/orb/geojson"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
)

// GlobeState is the read side of the render loop
type GlobeState interface {
	State(ctx context.Context) (globe.State, error)
	Data(ctx context.Context) (globe.Data, error)
}

// AirportCatalog looks airports up by key or name
type AirportCatalog interface {
	Get(ctx context.Context, key string) (*airports.Airport, error)
	Search(ctx context.Context, query string, limit int) ([]airports.Airport, error)
}

// LoadReporter reports data load status
type LoadReporter interface {
	Report() dataset.Report
}

// SnapshotRenderer turns a frame into an SVG document
type SnapshotRenderer interface {
	RenderSnapshot(frame *globe.Frame) ([]byte, error)
}

// ClientCounter reports connected viewers
type ClientCounter interface {
	ClientCount() int
}

// Handler contains the API handlers
type Handler struct {
	config    *config.Config
	globe     GlobeState
	catalog   AirportCatalog
	loader    LoadReporter
	snapshots SnapshotRenderer
	clients   ClientCounter
	cache     *expirable.LRU[string, []byte]
	logger    *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(cfg *config.Config, globeState GlobeState, catalog AirportCatalog, loader LoadReporter, snapshots SnapshotRenderer, clients ClientCounter, log *logger.Logger) *Handler {
	ttl := time.Duration(cfg.Server.SnapshotCacheTTLSeconds) * time.Second
	return &Handler{
		config:    cfg,
		globe:     globeState,
		catalog:   catalog,
		loader:    loader,
		snapshots: snapshots,
		clients:   clients,
		cache:     expirable.NewLRU[string, []byte](cfg.Server.SnapshotCacheSize, nil, ttl),
		logger:    log.Named("api-handler"),
	}
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := h.loader.Report()

	status := "ok"
	if report.Land == dataset.StatusFailed || report.Airports == dataset.StatusFailed {
		status = "degraded"
	}

	response := map[string]any{
		"status":   status,
		"land":     report.Land,
		"airports": report.Airports,
		"clients":  h.clients.ClientCount(),
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetConfig returns the public configuration
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	g := h.config.Globe
	publicConfig := map[string]any{
		"globe": map[string]any{
			"variant":          g.Variant,
			"width":            g.Width,
			"height":           g.Height,
			"initial_rotation": g.StartRotation(),
			"clip_angle":       g.ClipAngle,
			"scale":            g.Scale(),
			"sensitivity":      g.Sensitivity,
			"idle_step_deg":    g.IdleStepDeg,
			"auto_rotate":      g.AutoRotateEnabled(),
			"show_airports":    g.AirportsEnabled(),
			"marker_radius":    g.MarkerRadius,
			"tick_source":      g.TickSource,
			"max_frame_rate":   g.MaxFrameRate,
			"palette":          g.Palette,
		},
	}

	WriteJSON(w, http.StatusOK, publicConfig)
}

// GetState returns the renderer state and data load status
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.globe.State(r.Context())
	if err != nil {
		h.logger.Error("Failed to read renderer state", logger.Error(err))
		http.Error(w, "Renderer unavailable", http.StatusServiceUnavailable)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"renderer": state,
		"data":     h.loader.Report(),
	})
}

// GetGlobeSVG renders a standalone SVG snapshot. lambda, phi and gamma
// select the rotation; omitted angles default to the live rotation.
func (h *Handler) GetGlobeSVG(w http.ResponseWriter, r *http.Request) {
	state, err := h.globe.State(r.Context())
	if err != nil {
		http.Error(w, "Renderer unavailable", http.StatusServiceUnavailable)
		return
	}

	rotation, err := parseRotation(r, state.Rotation)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Rotations closer than a hundredth of a degree share an entry. The data
	// version is the renderer's, so an entry never outlives the data it drew.
	key := fmt.Sprintf("%.2f:%.2f:%.2f:%d", rotation.Lambda, rotation.Phi, rotation.Gamma, state.DataVersion)
	if svg, ok := h.cache.Get(key); ok {
		writeSVG(w, svg, "HIT")
		return
	}

	data, err := h.globe.Data(r.Context())
	if err != nil {
		http.Error(w, "Renderer unavailable", http.StatusServiceUnavailable)
		return
	}

	frame := globe.RenderAt(h.config.Globe, rotation, data, h.logger)
	svg, err := h.snapshots.RenderSnapshot(frame)
	if err != nil {
		h.logger.Error("Failed to render snapshot", logger.Error(err))
		http.Error(w, "Failed to render snapshot", http.StatusInternalServerError)
		return
	}
	h.cache.Add(key, svg)

	writeSVG(w, svg, "MISS")
}

// GetLand returns the loaded land geometry as GeoJSON
func (h *Handler) GetLand(w http.ResponseWriter, r *http.Request) {
	data, err := h.globe.Data(r.Context())
	if err != nil {
		http.Error(w, "Renderer unavailable", http.StatusServiceUnavailable)
		return
	}
	if len(data.Land) == 0 {
		http.Error(w, "Land not loaded", http.StatusServiceUnavailable)
		return
	}

	fc := geojson.NewFeatureCollection()
	feature := geojson.NewFeature(data.Land)
	feature.Properties["polygons"] = len(data.Land)
	fc.Append(feature)

	raw, err := fc.MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// SearchAirports returns airports whose key or name matches q
func (h *Handler) SearchAirports(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := parseLimit(r)

	results, err := h.catalog.Search(r.Context(), query, limit)
	if err != nil {
		h.logger.Error("Failed to search airports", logger.Error(err), logger.String("query", query))
		http.Error(w, "Failed to search airports", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"airports": results,
		"count":    len(results),
	})
}

// GetAirport returns one airport with its distance from the view centre
func (h *Handler) GetAirport(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "Missing airport key", http.StatusBadRequest)
		return
	}

	airport, err := h.catalog.Get(r.Context(), key)
	if errors.Is(err, sqlite.ErrNotFound) {
		http.Error(w, "Airport not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to get airport", logger.Error(err), logger.String("key", key))
		http.Error(w, "Failed to get airport", http.StatusInternalServerError)
		return
	}

	response := map[string]any{"airport": airport}
	if state, err := h.globe.State(r.Context()); err == nil {
		distance := geo.AngularDistance(state.Center, airport.Position())
		response["distance"] = math.Round(distance*100) / 100
		response["visible"] = distance <= h.config.Globe.ClipAngle
	}

	WriteJSON(w, http.StatusOK, response)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeSVG(w http.ResponseWriter, svg []byte, cache string) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("X-Cache", cache)
	w.WriteHeader(http.StatusOK)
	w.Write(svg)
}

func parseRotation(r *http.Request, current geo.Rotation) (geo.Rotation, error) {
	rotation := current
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"lambda", &rotation.Lambda},
		{"phi", &rotation.Phi},
		{"gamma", &rotation.Gamma},
	} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return geo.Rotation{}, fmt.Errorf("invalid %s: %q", p.name, raw)
		}
		*p.dst = v
	}
	return rotation.Normalize(), nil
}

func parseLimit(r *http.Request) int {
	limit := defaultSearchLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return limit
}
