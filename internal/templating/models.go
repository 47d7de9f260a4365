package templating

import (
	"time"

	"github.com/john-huang-121/D3-globe/internal/config"
	"github.com/john-huang-121/D3-globe/internal/globe"
)

// SnapshotContext represents the raw data for one SVG snapshot
type SnapshotContext struct {
	Frame        *globe.Frame   `json:"frame"`
	Palette      config.Palette `json:"palette"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	MarkerRadius float64        `json:"marker_radius"`
	Variant      string         `json:"variant"`
	Timestamp    time.Time      `json:"timestamp"`
}

// SnapshotData is the formatted data handed to the template
type SnapshotData struct {
	Width        int
	Height       int
	Palette      config.Palette
	Paths        globe.Paths
	Markers      []MarkerData
	MarkerRadius string
	Title        string
	Center       string
	Generated    string
}

// MarkerData is one marker circle with its tooltip
type MarkerData struct {
	Key   string
	X     string
	Y     string
	Title string
}

// FormattingOptions controls how a snapshot is formatted
type FormattingOptions struct {
	MaxMarkers int    `json:"max_markers"` // 0 = no limit
	TimeFormat string `json:"time_format"`
}

// DefaultFormattingOptions returns the defaults for snapshot formatting
func DefaultFormattingOptions() FormattingOptions {
	return FormattingOptions{
		MaxMarkers: 0,
		TimeFormat: time.RFC3339,
	}
}
