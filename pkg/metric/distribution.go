package metric

import (
	"strings"

	"Netshape/pkg/tcerr"
)

// Distribution names one of the delay distribution tables shipped with
// iproute2.
type Distribution string

const (
	Uniform      Distribution = "uniform"
	Normal       Distribution = "normal"
	Pareto       Distribution = "pareto"
	ParetoNormal Distribution = "paretonormal"
)

// ParseDistribution validates s against the known distribution tables.
func ParseDistribution(s string) (Distribution, error) {
	d := Distribution(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case Uniform, Normal, Pareto, ParetoNormal:
		return d, nil
	}
	return "", tcerr.Invalid("distribution", s, "must be one of uniform, normal, pareto, paretonormal")
}

func (d Distribution) String() string {
	return string(d)
}
