// Package dataset loads the land topology and the airport list once at
// startup and hands them to the renderer.
package dataset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/john-huang-121/D3-globe/internal/airports"
	"github.com/john-huang-121/D3-globe/internal/config"
	"github.com/john-huang-121/D3-globe/internal/topology"
	"github.com/john-huang-121/D3-globe/pkg/logger"
	"github.com/paulmach/orb"
)

// Status of one data layer
type Status string

const (
	StatusPending  Status = "pending"
	StatusLoaded   Status = "loaded"
	StatusFailed   Status = "failed"
	StatusDisabled Status = "disabled"
)

// LandSink receives the land geometry once it has loaded
type LandSink interface {
	SetLand(ctx context.Context, land orb.MultiPolygon) error
}

// AirportSink receives the airport list once it has loaded
type AirportSink interface {
	SetAirports(ctx context.Context, list []airports.Airport) error
}

// Report is a point-in-time view of the loader
type Report struct {
	Land            Status `json:"land"`
	Airports        Status `json:"airports"`
	LandPolygons    int    `json:"land_polygons"`
	AirportCount    int    `json:"airport_count"`
	AirportsSkipped int    `json:"airports_skipped"`
}

// Loader fetches and decodes both data layers
type Loader struct {
	fetcher      *Fetcher
	config       config.DataConfig
	loadAirports bool
	logger       *logger.Logger

	mu            sync.RWMutex
	land          orb.MultiPolygon
	airports      []airports.Airport
	landStatus    Status
	airportStatus Status
	skipped       int
}

// NewLoader creates a new loader. When loadAirports is false the airport
// layer is never fetched.
func NewLoader(cfg config.DataConfig, loadAirports bool, log *logger.Logger) *Loader {
	airportStatus := StatusPending
	if !loadAirports {
		airportStatus = StatusDisabled
	}
	return &Loader{
		fetcher:       NewFetcher(time.Duration(cfg.RequestTimeoutSeconds)*time.Second, cfg.MaxRetries, log),
		config:        cfg,
		loadAirports:  loadAirports,
		logger:        log.Named("dataset"),
		landStatus:    StatusPending,
		airportStatus: airportStatus,
	}
}

// Start issues both loads in the background and returns immediately. Each
// load hands its result to the sinks when it completes; a failed load is
// logged and its layer never appears.
func (l *Loader) Start(ctx context.Context, land LandSink, sinks ...AirportSink) {
	go func() {
		mp, err := l.LoadLand(ctx)
		if err != nil {
			l.logger.Warn("Land layer unavailable", logger.Error(err))
			return
		}
		if err := land.SetLand(ctx, mp); err != nil {
			l.logger.Warn("Failed to hand land to renderer", logger.Error(err))
		}
	}()

	if !l.loadAirports {
		l.logger.Info("Airport layer disabled")
		return
	}
	go func() {
		list, err := l.LoadAirports(ctx)
		if err != nil {
			l.logger.Warn("Airport layer unavailable", logger.Error(err))
			return
		}
		for _, sink := range sinks {
			if err := sink.SetAirports(ctx, list); err != nil {
				l.logger.Warn("Failed to hand airports to sink", logger.Error(err))
			}
		}
	}()
}

// LoadLand fetches and decodes the land topology
func (l *Loader) LoadLand(ctx context.Context) (orb.MultiPolygon, error) {
	start := time.Now()
	mp, err := l.loadLand(ctx)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.landStatus = StatusFailed
		return nil, err
	}
	l.land = mp
	l.landStatus = StatusLoaded

	l.logger.Info("Land loaded",
		logger.String("source", l.config.LandURL),
		logger.Int("polygons", len(mp)),
		logger.Duration("duration", time.Since(start)))
	return mp, nil
}

func (l *Loader) loadLand(ctx context.Context) (orb.MultiPolygon, error) {
	doc, err := l.fetcher.Fetch(ctx, l.config.LandURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch land: %w", err)
	}
	topo, err := topology.Decode(doc.Body)
	if err != nil {
		return nil, err
	}
	return topo.MultiPolygon(l.config.LandObject)
}

// LoadAirports fetches and parses the airport list. Malformed records are skipped.
func (l *Loader) LoadAirports(ctx context.Context) ([]airports.Airport, error) {
	start := time.Now()
	result, err := l.loadAirportList(ctx)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.airportStatus = StatusFailed
		return nil, err
	}

	for _, s := range result.Skipped {
		l.logger.Debug("Skipped airport record",
			logger.Int("index", s.Index),
			logger.String("reason", s.Reason))
	}
	l.airports = result.Airports
	l.skipped = len(result.Skipped)
	l.airportStatus = StatusLoaded

	l.logger.Info("Airports loaded",
		logger.String("source", l.config.AirportsURL),
		logger.Int("count", len(result.Airports)),
		logger.Int("skipped", len(result.Skipped)),
		logger.Duration("duration", time.Since(start)))
	return result.Airports, nil
}

func (l *Loader) loadAirportList(ctx context.Context) (*airports.Result, error) {
	doc, err := l.fetcher.Fetch(ctx, l.config.AirportsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch airports: %w", err)
	}
	format := airports.DetectFormat(doc.Location, doc.ContentType)
	result, err := airports.Parse(doc.Body, format, airports.Filter{Types: l.config.AirportTypes})
	if err != nil {
		return nil, err
	}
	airports.Annotate(result.Airports, time.Now())
	return result, nil
}

// Report returns the current load status
func (l *Loader) Report() Report {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Report{
		Land:            l.landStatus,
		Airports:        l.airportStatus,
		LandPolygons:    len(l.land),
		AirportCount:    len(l.airports),
		AirportsSkipped: l.skipped,
	}
}
