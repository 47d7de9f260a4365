package geo

import (
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// MagneticVariation calculates the magnetic declination for a given position and time
// Returns declination in degrees (+East, -West)
func MagneticVariation(p LonLat, altFt float64, date time.Time) float64 {
	// Convert altitude to meters for WMM
	altM := altFt * 0.3048

	loc := egm96.NewLocationGeodetic(p.Lat, p.Lon, altM)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		// Outside the model's validity window
		return 0.0
	}

	return mag.D()
}
