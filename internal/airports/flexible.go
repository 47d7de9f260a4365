package airports

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleField can hold either a string or a number
type FlexibleField struct {
	value any
	set   bool
}

// UnmarshalJSON implements custom JSON unmarshaling for FlexibleField
func (f *FlexibleField) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	// Try to unmarshal as a number first
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.value, f.set = num, true
		return nil
	}

	// If that fails, try to unmarshal as a string
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		f.value, f.set = str, true
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleField", data)
}

// IsSet reports whether the field was present and not null
func (f FlexibleField) IsSet() bool {
	return f.set
}

// Float64 returns the value as a float64. The second result is false when
// the field is missing or not numeric.
func (f FlexibleField) Float64() (float64, bool) {
	switch v := f.value.(type) {
	case float64:
		return v, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// String returns the value as a string
func (f FlexibleField) String() string {
	switch v := f.value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}

// first returns the first field that is set
func first(fields ...FlexibleField) FlexibleField {
	for _, f := range fields {
		if f.IsSet() {
			return f
		}
	}
	return FlexibleField{}
}
