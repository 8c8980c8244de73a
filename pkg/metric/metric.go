// Package metric holds the validated value types link attributes are
// expressed in. Every type parses from the `<value><unit>` form tc uses and
// renders back to a form tc accepts.
package metric

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var valueRe = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*([a-zA-Z%]*)$`)

// splitValue splits "10.5mbit" into 10.5 and "mbit".
func splitValue(s string) (float64, string, bool) {
	m := valueRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	return v, strings.ToLower(m[2]), true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func unitList(units map[string]float64) string {
	names := make([]string, 0, len(units))
	for u := range units {
		names = append(names, u)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
