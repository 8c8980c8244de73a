package metric

import (
	"Netshape/pkg/tcerr"
)

// Percentage is a probability in [0, 100]. A bare number is read as percent.
type Percentage struct {
	value float64
}

// ParsePercentage validates s as "<number>%" within [0, 100].
func ParsePercentage(s string) (Percentage, error) {
	v, unit, ok := splitValue(s)
	if !ok || (unit != "%" && unit != "") {
		return Percentage{}, tcerr.Invalid("percentage", s, "expected <number>%")
	}
	if v < 0 || v > 100 {
		return Percentage{}, tcerr.Invalid("percentage", s, "must be between 0% and 100%")
	}
	return Percentage{value: v}, nil
}

// Value returns the percentage as a number between 0 and 100.
func (p Percentage) Value() float64 {
	return p.value
}

func (p Percentage) String() string {
	return formatFloat(p.value) + "%"
}
