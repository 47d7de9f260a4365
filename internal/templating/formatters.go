package templating

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/john-huang-121/D3-globe/internal/geo"
	"github.com/john-huang-121/D3-globe/internal/globe"
)

// FormatMarkers converts drawn markers into template rows
func FormatMarkers(markers []globe.Marker, limit int) []MarkerData {
	if limit > 0 && len(markers) > limit {
		markers = markers[:limit]
	}
	out := make([]MarkerData, 0, len(markers))
	for _, m := range markers {
		out = append(out, MarkerData{
			Key:   m.Key,
			X:     formatNumber(m.X),
			Y:     formatNumber(m.Y),
			Title: FormatMarkerTitle(m),
		})
	}
	return out
}

// FormatMarkerTitle builds the tooltip for one marker, e.g.
// "KBOS Logan International Airport (42.36°N 71.01°W, var 14.2°W)"
func FormatMarkerTitle(m globe.Marker) string {
	var builder strings.Builder

	switch {
	case m.ID != "" && m.Name != "":
		builder.WriteString(m.ID + " " + m.Name)
	case m.ID != "":
		builder.WriteString(m.ID)
	default:
		builder.WriteString(m.Name)
	}

	builder.WriteString(" (")
	builder.WriteString(FormatPosition(geo.LonLat{Lon: m.Lon, Lat: m.Lat}))
	if m.Declination != 0 {
		builder.WriteString(", var ")
		builder.WriteString(FormatDeclination(m.Declination))
	}
	builder.WriteString(")")

	return builder.String()
}

// FormatPosition formats a position as hemisphere-suffixed degrees
func FormatPosition(p geo.LonLat) string {
	ns := "N"
	if p.Lat < 0 {
		ns = "S"
	}
	ew := "E"
	if p.Lon < 0 {
		ew = "W"
	}
	return fmt.Sprintf("%.2f°%s %.2f°%s", math.Abs(p.Lat), ns, math.Abs(p.Lon), ew)
}

// FormatDeclination formats a magnetic variation, east positive
func FormatDeclination(deg float64) string {
	if deg < 0 {
		return fmt.Sprintf("%.1f°W", -deg)
	}
	return fmt.Sprintf("%.1f°E", deg)
}

func formatNumber(v float64) string {
	v = math.Round(v*100) / 100
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
