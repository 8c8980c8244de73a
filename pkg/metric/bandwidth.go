package metric

import (
	"math"

	"Netshape/pkg/tcerr"
)

// bandwidthUnits maps tc rate units to bits per second.
var bandwidthUnits = map[string]float64{
	"bit":  1,
	"kbit": 1e3,
	"mbit": 1e6,
	"gbit": 1e9,
	"tbit": 1e12,
	"bps":  8,
	"kbps": 8e3,
	"mbps": 8e6,
	"gbps": 8e9,
	"tbps": 8e12,
}

// Bandwidth is a link rate such as "10mbit".
type Bandwidth struct {
	value float64
	unit  string
}

// ParseBandwidth validates s as a positive rate with a tc rate unit.
func ParseBandwidth(s string) (Bandwidth, error) {
	v, unit, ok := splitValue(s)
	if !ok {
		return Bandwidth{}, tcerr.Invalid("bandwidth", s, "expected <number><unit>")
	}
	scale, known := bandwidthUnits[unit]
	if !known {
		return Bandwidth{}, tcerr.Invalid("bandwidth", s, "unit must be one of "+unitList(bandwidthUnits))
	}
	if v <= 0 {
		return Bandwidth{}, tcerr.Invalid("bandwidth", s, "must be greater than zero")
	}
	if v*scale >= math.MaxUint64 {
		return Bandwidth{}, tcerr.Invalid("bandwidth", s, "exceeds a 64-bit count of bits per second")
	}
	return Bandwidth{value: v, unit: unit}, nil
}

// BitsPerSecond returns the rate in bits per second.
func (b Bandwidth) BitsPerSecond() uint64 {
	return uint64(math.Round(b.value * bandwidthUnits[b.unit]))
}

// IsZero reports whether b was never set.
func (b Bandwidth) IsZero() bool {
	return b.unit == ""
}

func (b Bandwidth) String() string {
	if b.IsZero() {
		return ""
	}
	return formatFloat(b.value) + b.unit
}
