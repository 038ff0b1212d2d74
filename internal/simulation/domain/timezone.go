package domain

import (
	"fmt"
	"math"
	"time"
)

// Timezone resolution methods recorded in run provenance.
const (
	TimezoneIANA            = "iana"
	TimezoneLongitudeOffset = "longitude_offset"
)

// ResolveTimezone resolves the zone simulated hours are stamped in. An
// explicit IANA name wins; otherwise a whole-hour offset is estimated from
// the longitude (15 degrees per hour).
func ResolveTimezone(name string, longitude float64) (*time.Location, string, error) {
	if name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, "", fmt.Errorf("%w: unknown timezone %q", ErrInvalidRequest, name)
		}
		return loc, TimezoneIANA, nil
	}
	offsetHours := int(math.Round(longitude / 15))
	zoneName := fmt.Sprintf("UTC%+d", offsetHours)
	return time.FixedZone(zoneName, offsetHours*3600), TimezoneLongitudeOffset, nil
}
