package globe

import (
	"math"

	"github.com/john-huang-121/D3-globe/internal/geo"
)

// graticule extents: minor meridians stop short of the poles, major
// meridians (every 90°) run pole to pole
const (
	minorLatExtent = 80.0
	majorStep      = 90.0
)

// Graticule returns the meridians and parallels spaced step degrees apart,
// each sampled every precision degrees.
func Graticule(step, precision float64) [][]geo.LonLat {
	if step <= 0 || precision <= 0 {
		return nil
	}

	var lines [][]geo.LonLat
	for lon := -180.0; lon < 180-epsilon; lon += step {
		extent := minorLatExtent
		if isMultiple(lon, majorStep) {
			extent = 90
		}
		lines = append(lines, meridian(lon, -extent, extent, precision))
	}

	start := math.Ceil(-minorLatExtent/step) * step
	for lat := start; lat <= minorLatExtent+epsilon; lat += step {
		lines = append(lines, parallel(lat, precision))
	}
	return lines
}

func meridian(lon, from, to, precision float64) []geo.LonLat {
	line := make([]geo.LonLat, 0, int((to-from)/precision)+2)
	for lat := from; lat < to-epsilon; lat += precision {
		line = append(line, geo.LonLat{Lon: lon, Lat: lat})
	}
	return append(line, geo.LonLat{Lon: lon, Lat: to})
}

func parallel(lat, precision float64) []geo.LonLat {
	line := make([]geo.LonLat, 0, int(360/precision)+2)
	for lon := -180.0; lon < 180-epsilon; lon += precision {
		line = append(line, geo.LonLat{Lon: lon, Lat: lat})
	}
	return append(line, geo.LonLat{Lon: 180, Lat: lat})
}

func isMultiple(v, of float64) bool {
	r := math.Mod(math.Abs(v), of)
	return r < epsilon || of-r < epsilon
}
