package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/john-huang-121/D3-globe/internal/airports"
	"github.com/john-huang-121/D3-globe/internal/config"
	"github.com/john-huang-121/D3-globe/internal/dataset"
	"github.com/john-huang-121/D3-globe/internal/geo"
	"github.com/john-huang-121/D3-globe/internal/globe"
	"github.com/john-huang-121/D3-globe/internal/storage/sqlite"
	"github.com/john-huang-121/D3-globe/internal/templating"
	"github.com/john-huang-121/D3-globe/pkg/logger"
	"github.com/paulmach/orb"
)

type fakeGlobe struct {
	state     globe.State
	data      globe.Data
	dataCalls int
}

func (g *fakeGlobe) State(ctx context.Context) (globe.State, error) { return g.state, nil }

func (g *fakeGlobe) Data(ctx context.Context) (globe.Data, error) {
	g.dataCalls++
	return g.data, nil
}

type fakeCatalog map[string]airports.Airport

func (c fakeCatalog) Get(ctx context.Context, key string) (*airports.Airport, error) {
	a, ok := c[key]
	if !ok {
		return nil, sqlite.ErrNotFound
	}
	return &a, nil
}

func (c fakeCatalog) Search(ctx context.Context, query string, limit int) ([]airports.Airport, error) {
	var out []airports.Airport
	for key, a := range c {
		if strings.Contains(strings.ToLower(key+" "+a.Name), strings.ToLower(query)) && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeLoader struct{ report dataset.Report }

func (l fakeLoader) Report() dataset.Report { return l.report }

type fakeClients int

func (c fakeClients) ClientCount() int { return int(c) }

type testEnv struct {
	router http.Handler
	globe  *fakeGlobe
	static string
}

func newTestEnv(t *testing.T, report dataset.Report) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{SnapshotCacheSize: 8, SnapshotCacheTTLSeconds: 60},
		Globe:  config.DefaultGlobe(),
	}

	list := []airports.Airport{
		{ID: "KBOS", Name: "Logan International", Lat: 42.36, Lon: -71.01},
		{ID: "NULL", Name: "Null Island", Lat: 0, Lon: 0},
	}
	g := &fakeGlobe{
		state: globe.State{Rotation: geo.Rotation{Phi: -30}, Center: geo.LonLat{Lat: 30}},
		data:  globe.Data{Airports: list},
	}
	catalog := fakeCatalog{"KBOS": list[0], "NULL": list[1]}

	static := t.TempDir()
	if err := os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>globe</html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := logger.NewNop()
	h := NewHandler(cfg, g, catalog, fakeLoader{report}, templating.NewService("", cfg.Globe, log), fakeClients(2), log)
	ws := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }

	return &testEnv{router: NewRouter(h, ws, static, log), globe: g, static: static}
}

func (e *testEnv) get(t *testing.T, path string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name     string
		report   dataset.Report
		expected string
	}{
		{"loaded", dataset.Report{Land: dataset.StatusLoaded, Airports: dataset.StatusLoaded}, "ok"},
		{"pending", dataset.Report{Land: dataset.StatusPending, Airports: dataset.StatusDisabled}, "ok"},
		{"land failed", dataset.Report{Land: dataset.StatusFailed, Airports: dataset.StatusLoaded}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newTestEnv(t, tt.report).get(t, "/api/health")
			if rec.Code != http.StatusOK {
				t.Fatalf("got %d, expected 200", rec.Code)
			}
			body := decode(t, rec)
			if body["status"] != tt.expected {
				t.Errorf("got %v, expected %s", body["status"], tt.expected)
			}
			if body["clients"] != float64(2) {
				t.Errorf("got %v clients, expected 2", body["clients"])
			}
		})
	}
}

func TestGetConfigAndState(t *testing.T) {
	env := newTestEnv(t, dataset.Report{})

	body := decode(t, env.get(t, "/api/config"))
	g, ok := body["globe"].(map[string]any)
	if !ok {
		t.Fatalf("got %v, expected a globe section", body)
	}
	if g["variant"] != config.VariantAirports || g["sensitivity"] != 0.25 || g["auto_rotate"] != true {
		t.Errorf("got %v", g)
	}

	body = decode(t, env.get(t, "/api/state"))
	renderer, ok := body["renderer"].(map[string]any)
	if !ok {
		t.Fatalf("got %v, expected a renderer section", body)
	}
	rotation := renderer["rotation"].(map[string]any)
	if rotation["phi"] != float64(-30) {
		t.Errorf("got rotation %v", rotation)
	}
}

func TestGetGlobeSVG(t *testing.T) {
	env := newTestEnv(t, dataset.Report{})

	rec := env.get(t, "/api/globe.svg?lambda=0&phi=0")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("got content type %s", ct)
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("first request should miss the cache")
	}
	svg := rec.Body.String()
	if !strings.HasPrefix(svg, "<svg") || !strings.Contains(svg, `data-key="NULL"`) {
		t.Errorf("got %q, expected an SVG with the Null Island marker", svg)
	}

	rec = env.get(t, "/api/globe.svg?lambda=0.001&phi=0")
	if rec.Header().Get("X-Cache") != "HIT" {
		t.Errorf("nearby rotation should hit the cache")
	}
	if env.globe.dataCalls != 1 {
		t.Errorf("got %d data reads, expected 1", env.globe.dataCalls)
	}

	rec = env.get(t, "/api/globe.svg?lambda=180&phi=0")
	if strings.Contains(rec.Body.String(), `data-key="NULL"`) {
		t.Errorf("Null Island should be hidden at lambda 180")
	}

	rec = env.get(t, "/api/globe.svg?lambda=abc")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, expected 400", rec.Code)
	}

	rec = env.get(t, "/api/globe.svg?lambda=10", "Accept-Encoding", "gzip")
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Errorf("expected a gzip response")
	}
}

func TestGetGlobeSVGFollowsInstalledData(t *testing.T) {
	env := newTestEnv(t, dataset.Report{Land: dataset.StatusLoaded, Airports: dataset.StatusLoaded})
	airportsLater := env.globe.data.Airports
	env.globe.data = globe.Data{}

	// loaded but not yet installed in the renderer
	rec := env.get(t, "/api/globe.svg?lambda=0&phi=0")
	if rec.Header().Get("X-Cache") != "MISS" || strings.Contains(rec.Body.String(), "<circle") {
		t.Fatalf("got %s %q, expected a fresh snapshot without markers", rec.Header().Get("X-Cache"), rec.Body.String())
	}

	env.globe.data = globe.Data{Airports: airportsLater}
	env.globe.state.DataVersion = 1

	rec = env.get(t, "/api/globe.svg?lambda=0&phi=0")
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("snapshot drawn before the airports arrived was served from the cache")
	}
	if !strings.Contains(rec.Body.String(), `data-key="NULL"`) {
		t.Errorf("got %q, expected the Null Island marker", rec.Body.String())
	}
}

func TestGetLand(t *testing.T) {
	env := newTestEnv(t, dataset.Report{})

	if rec := env.get(t, "/api/land.geojson"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d before land loaded, expected 503", rec.Code)
	}

	env.globe.data.Land = orb.MultiPolygon{{{{0, 0}, {10, 0}, {10, 10}, {0, 0}}}}
	rec := env.get(t, "/api/land.geojson")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["type"] != "FeatureCollection" {
		t.Errorf("got %v", body["type"])
	}
	features := body["features"].([]any)
	geometry := features[0].(map[string]any)["geometry"].(map[string]any)
	if geometry["type"] != "MultiPolygon" {
		t.Errorf("got geometry %v", geometry["type"])
	}
}

func TestAirportEndpoints(t *testing.T) {
	env := newTestEnv(t, dataset.Report{})

	body := decode(t, env.get(t, "/api/airports?q=logan"))
	if body["count"] != float64(1) {
		t.Errorf("got %v, expected one match", body)
	}

	rec := env.get(t, "/api/airports/NULL")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	body = decode(t, rec)
	if body["visible"] != true || body["distance"] != float64(30) {
		t.Errorf("got %v, expected visible at 30 degrees", body)
	}

	if rec := env.get(t, "/api/airports/EGLL"); rec.Code != http.StatusNotFound {
		t.Errorf("got %d, expected 404", rec.Code)
	}
}

func TestStaticAndWebSocketRoutes(t *testing.T) {
	env := newTestEnv(t, dataset.Report{})

	rec := env.get(t, "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "globe") {
		t.Errorf("got %d %q, expected the index page", rec.Code, rec.Body.String())
	}

	if rec := env.get(t, "/missing.js"); rec.Code != http.StatusNotFound {
		t.Errorf("got %d, expected 404", rec.Code)
	}

	if rec := env.get(t, "/ws"); rec.Code != http.StatusTeapot {
		t.Errorf("got %d, expected the websocket handler", rec.Code)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query    string
		expected int
	}{
		{"", defaultSearchLimit},
		{"limit=5", 5},
		{"limit=-1", defaultSearchLimit},
		{"limit=x", defaultSearchLimit},
		{"limit=100000", maxSearchLimit},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/airports?"+tt.query, nil)
		if got := parseLimit(req); got != tt.expected {
			t.Errorf("%q: got %d, expected %d", tt.query, got, tt.expected)
		}
	}
}
