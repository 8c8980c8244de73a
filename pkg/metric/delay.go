package metric

import (
	"fmt"
	"math"
	"time"

	"Netshape/pkg/tcerr"
)

// delayUnits maps the accepted time units to their duration.
var delayUnits = map[string]float64{
	"s":     float64(time.Second),
	"sec":   float64(time.Second),
	"secs":  float64(time.Second),
	"ms":    float64(time.Millisecond),
	"msec":  float64(time.Millisecond),
	"msecs": float64(time.Millisecond),
	"us":    float64(time.Microsecond),
	"usec":  float64(time.Microsecond),
	"usecs": float64(time.Microsecond),
}

// Delay is a non-negative time value with microsecond resolution, the
// resolution netem works in.
type Delay struct {
	d time.Duration
}

// ParseDelay validates s as "<number><unit>".
func ParseDelay(s string) (Delay, error) {
	v, unit, ok := splitValue(s)
	if !ok {
		return Delay{}, tcerr.Invalid("delay", s, "expected <number><unit>")
	}
	scale, known := delayUnits[unit]
	if !known {
		return Delay{}, tcerr.Invalid("delay", s, "unit must be one of "+unitList(delayUnits))
	}
	ns := v * scale
	if ns >= math.MaxInt64 {
		return Delay{}, tcerr.Invalid("delay", s, "must be below "+time.Duration(math.MaxInt64).Truncate(time.Hour).String())
	}
	d := time.Duration(ns).Round(time.Microsecond)
	return Delay{d: d}, nil
}

// DelayOf wraps a duration, truncated to microseconds.
func DelayOf(d time.Duration) Delay {
	if d < 0 {
		d = 0
	}
	return Delay{d: d.Truncate(time.Microsecond)}
}

// Duration returns the delay as a time.Duration.
func (d Delay) Duration() time.Duration {
	return d.d
}

// Add returns d + o.
func (d Delay) Add(o Delay) Delay {
	return Delay{d: d.d + o.d}
}

func (d Delay) String() string {
	if d.d%time.Millisecond == 0 {
		return fmt.Sprintf("%dms", d.d/time.Millisecond)
	}
	return fmt.Sprintf("%dus", d.d/time.Microsecond)
}
