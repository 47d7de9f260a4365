// Package airports parses airport lists into ordered, validated records.
package airports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/john-huang-121/D3-globe/internal/geo"
)

// Airport is one immutable airport record
type Airport struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Type        string  `json:"type,omitempty"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Declination float64 `json:"declination"` // magnetic declination, degrees (+E/-W)
}

// Key identifies the airport's marker: the ID, or the name when there is no ID.
func (a Airport) Key() string {
	if a.ID != "" {
		return a.ID
	}
	return a.Name
}

// Position returns the airport's coordinate
func (a Airport) Position() geo.LonLat {
	return geo.LonLat{Lon: a.Lon, Lat: a.Lat}
}

// Format of an airport list
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv" // OurAirports airports.csv
)

// DetectFormat guesses the list format from the source location and content type.
func DetectFormat(location, contentType string) Format {
	loc := strings.ToLower(location)
	loc = strings.TrimSuffix(loc, ".zst")
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	if strings.HasSuffix(loc, ".csv") || strings.Contains(contentType, "csv") {
		return FormatCSV
	}
	return FormatJSON
}

// Result is the outcome of parsing an airport list
type Result struct {
	Airports []Airport
	Skipped  []Skipped
}

// Skipped describes a malformed record that was left out
type Skipped struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Filter restricts which records are kept
type Filter struct {
	Types []string // OurAirports types to keep, empty keeps all
}

// keep reports whether a record of the given type passes. Untyped records
// always pass.
func (f Filter) keep(kind string) bool {
	if len(f.Types) == 0 || kind == "" {
		return true
	}
	for _, t := range f.Types {
		if strings.EqualFold(t, kind) {
			return true
		}
	}
	return false
}

// Parse reads an airport list in the given format. Malformed records are
// skipped and reported; only an unreadable document is an error.
func Parse(data []byte, format Format, filter Filter) (*Result, error) {
	switch format {
	case FormatCSV:
		return parseCSV(bytes.NewReader(data), filter)
	case FormatJSON:
		return parseJSON(data, filter)
	default:
		return nil, fmt.Errorf("unknown airport list format: %s", format)
	}
}

// jsonRecord accepts the common spellings of each field
type jsonRecord struct {
	ID        FlexibleField `json:"id"`
	Ident     FlexibleField `json:"ident"`
	IATA      FlexibleField `json:"iata"`
	ICAO      FlexibleField `json:"icao"`
	Name      FlexibleField `json:"name"`
	Type      FlexibleField `json:"type"`
	Lat       FlexibleField `json:"lat"`
	Latitude  FlexibleField `json:"latitude"`
	Lon       FlexibleField `json:"lon"`
	Lng       FlexibleField `json:"lng"`
	Longitude FlexibleField `json:"longitude"`
}

func parseJSON(data []byte, filter Filter) (*Result, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode airport list: %w", err)
	}

	result := &Result{Airports: make([]Airport, 0, len(raw))}
	for i, msg := range raw {
		var rec jsonRecord
		if err := json.Unmarshal(msg, &rec); err != nil {
			result.Skipped = append(result.Skipped, Skipped{Index: i, Reason: err.Error()})
			continue
		}
		kind := rec.Type.String()
		if !filter.keep(kind) {
			continue
		}
		airport, err := build(
			first(rec.ID, rec.Ident, rec.ICAO, rec.IATA).String(),
			rec.Name.String(),
			kind,
			first(rec.Lat, rec.Latitude),
			first(rec.Lon, rec.Lng, rec.Longitude),
		)
		if err != nil {
			result.Skipped = append(result.Skipped, Skipped{Index: i, Reason: err.Error()})
			continue
		}
		result.Airports = append(result.Airports, airport)
	}
	return result, nil
}

// OurAirports column positions, used when the header is missing a name
const (
	csvIdent = 1
	csvType  = 2
	csvName  = 3
	csvLat   = 4
	csvLon   = 5
)

func parseCSV(r io.Reader, filter Filter) (*Result, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read airport csv header: %w", err)
	}
	columns := map[string]int{}
	for i, name := range header {
		columns[strings.TrimSpace(strings.ToLower(name))] = i
	}
	column := func(name string, fallback int) int {
		if i, ok := columns[name]; ok {
			return i
		}
		return fallback
	}
	identCol := column("ident", csvIdent)
	typeCol := column("type", csvType)
	nameCol := column("name", csvName)
	latCol := column("latitude_deg", csvLat)
	lonCol := column("longitude_deg", csvLon)

	result := &Result{}
	for i := 0; ; i++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Skipped = append(result.Skipped, Skipped{Index: i, Reason: err.Error()})
				continue
			}
			return nil, fmt.Errorf("failed to read airport csv: %w", err)
		}

		field := func(col int) string {
			if col < len(record) {
				return strings.TrimSpace(record[col])
			}
			return ""
		}
		kind := field(typeCol)
		if !filter.keep(kind) {
			continue
		}
		airport, err := build(field(identCol), field(nameCol), kind,
			csvField(field(latCol)), csvField(field(lonCol)))
		if err != nil {
			result.Skipped = append(result.Skipped, Skipped{Index: i, Reason: err.Error()})
			continue
		}
		result.Airports = append(result.Airports, airport)
	}
	return result, nil
}

func csvField(s string) FlexibleField {
	if s == "" {
		return FlexibleField{}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return FlexibleField{value: n, set: true}
	}
	return FlexibleField{value: s, set: true}
}

func build(id, name, kind string, lat, lon FlexibleField) (Airport, error) {
	if id == "" && name == "" {
		return Airport{}, errors.New("record has neither id nor name")
	}
	latV, ok := lat.Float64()
	if !ok {
		return Airport{}, fmt.Errorf("%s: missing or invalid latitude", keyOf(id, name))
	}
	lonV, ok := lon.Float64()
	if !ok {
		return Airport{}, fmt.Errorf("%s: missing or invalid longitude", keyOf(id, name))
	}
	p := geo.LonLat{Lon: lonV, Lat: latV}
	if !p.Valid() {
		return Airport{}, fmt.Errorf("%s: coordinate out of range (%g, %g)", keyOf(id, name), lonV, latV)
	}
	return Airport{ID: id, Name: name, Type: kind, Lat: latV, Lon: lonV}, nil
}

func keyOf(id, name string) string {
	if id != "" {
		return id
	}
	return name
}

// Annotate fills in the magnetic declination of every airport for the given date.
func Annotate(list []Airport, at time.Time) {
	for i := range list {
		list[i].Declination = geo.MagneticVariation(list[i].Position(), 0, at)
	}
}
