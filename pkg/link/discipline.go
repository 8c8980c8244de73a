package link

import (
	"sort"
	"strconv"

	"Netshape/pkg/device"
	"Netshape/pkg/metric"
	"Netshape/pkg/tcerr"
)

type paramType int

const (
	paramInt paramType = iota
	paramSize
	paramDelay
	paramFloat
	paramFlag
	paramBandwidth
)

type paramSpec struct {
	name string
	typ  paramType
}

// disciplines lists the leaf disciplines that may replace netem on an IFB,
// with the options each accepts in the order tc documents them.
var disciplines = map[string][]paramSpec{
	"pfifo": {
		{"limit", paramInt},
	},
	"codel": {
		{"limit", paramInt},
		{"target", paramDelay},
		{"interval", paramDelay},
		{"ce_threshold", paramDelay},
		{"ecn", paramFlag},
		{"noecn", paramFlag},
	},
	"fq_codel": {
		{"limit", paramInt},
		{"flows", paramInt},
		{"target", paramDelay},
		{"interval", paramDelay},
		{"quantum", paramSize},
		{"ce_threshold", paramDelay},
		{"memory_limit", paramSize},
		{"ecn", paramFlag},
		{"noecn", paramFlag},
	},
	"pie": {
		{"limit", paramInt},
		{"target", paramDelay},
		{"tupdate", paramDelay},
		{"alpha", paramInt},
		{"beta", paramInt},
		{"ecn", paramFlag},
		{"noecn", paramFlag},
		{"bytemode", paramFlag},
		{"nobytemode", paramFlag},
		{"dq_rate_estimator", paramFlag},
	},
	"fq_pie": {
		{"limit", paramInt},
		{"flows", paramInt},
		{"target", paramDelay},
		{"tupdate", paramDelay},
		{"alpha", paramInt},
		{"beta", paramInt},
		{"quantum", paramSize},
		{"memory_limit", paramSize},
		{"ecn_prob", paramInt},
		{"ecn", paramFlag},
		{"noecn", paramFlag},
		{"bytemode", paramFlag},
		{"dq_rate_estimator", paramFlag},
	},
	"red": {
		{"limit", paramSize},
		{"min", paramSize},
		{"max", paramSize},
		{"avpkt", paramSize},
		{"burst", paramInt},
		{"probability", paramFloat},
		{"bandwidth", paramBandwidth},
		{"ecn", paramFlag},
		{"harddrop", paramFlag},
		{"adaptive", paramFlag},
	},
	"choke": {
		{"limit", paramInt},
		{"min", paramInt},
		{"max", paramInt},
		{"avpkt", paramSize},
		{"burst", paramInt},
		{"probability", paramFloat},
		{"bandwidth", paramBandwidth},
		{"ecn", paramFlag},
	},
}

// SupportedDisciplines returns the names accepted by ParseDiscipline.
func SupportedDisciplines() []string {
	return []string{"pfifo", "codel", "fq_codel", "pie", "fq_pie", "red", "choke"}
}

// Discipline is a validated leaf discipline ready to install.
type Discipline struct {
	Kind   string
	Params device.Params
}

// ParseDiscipline checks kind against the supported set and every option
// against what that kind accepts. Unknown options are rejected rather than
// passed through to tc.
func ParseDiscipline(kind string, params map[string]string) (Discipline, error) {
	specs, ok := disciplines[kind]
	if !ok {
		return Discipline{}, &tcerr.InvalidQdiscError{Name: kind, Supported: SupportedDisciplines()}
	}

	known := map[string]bool{}
	for _, s := range specs {
		known[s.name] = true
	}
	var unknown []string
	for k := range params {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Discipline{}, tcerr.Invalid(kind+" parameter", unknown[0], "not an option of "+kind)
	}

	d := Discipline{Kind: kind, Params: device.Params{}}
	for _, s := range specs {
		raw, ok := params[s.name]
		if !ok {
			continue
		}
		v, include, err := s.typ.normalize(raw)
		if err != nil {
			return Discipline{}, tcerr.Invalid(kind+" "+s.name, raw, err.Error())
		}
		if !include {
			continue
		}
		if s.typ == paramFlag {
			d.Params = d.Params.Set(s.name)
		} else {
			d.Params = d.Params.Set(s.name, v)
		}
	}
	return d, nil
}

type constraintError string

func (e constraintError) Error() string { return string(e) }

// normalize validates raw and returns the form handed to tc. include is false
// for a flag explicitly turned off.
func (t paramType) normalize(raw string) (string, bool, error) {
	switch t {
	case paramInt:
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return "", false, constraintError("expected a non-negative integer")
		}
		return strconv.FormatUint(n, 10), true, nil
	case paramSize:
		s, err := metric.ParseSize(raw)
		if err != nil {
			return "", false, constraintError("expected a byte count such as 1500 or 32kb")
		}
		return s.String(), true, nil
	case paramDelay:
		d, err := metric.ParseDelay(raw)
		if err != nil {
			return "", false, constraintError("expected a time such as 5ms")
		}
		return d.String(), true, nil
	case paramFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 || f > 1 {
			return "", false, constraintError("expected a probability between 0 and 1")
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true, nil
	case paramBandwidth:
		b, err := metric.ParseBandwidth(raw)
		if err != nil {
			return "", false, constraintError("expected a rate such as 10mbit")
		}
		return b.String(), true, nil
	case paramFlag:
		if raw == "" {
			return "", true, nil
		}
		on, err := strconv.ParseBool(raw)
		if err != nil {
			return "", false, constraintError("expected true or false")
		}
		return "", on, nil
	}
	return "", false, constraintError("unsupported parameter type")
}
