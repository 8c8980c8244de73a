package node

import (
	"strconv"

	"Netshape/api"
	"Netshape/pkg/link"
	"Netshape/pkg/metric"
	"Netshape/pkg/tcerr"
)

// Properties is a validated api.LinkProperties. Nil fields are left alone
// when applied.
type Properties struct {
	Bandwidth  *metric.Bandwidth
	Delay      *metric.Delay
	Jitter     *link.Jitter
	Loss       link.Impairment
	Corrupt    *link.Corruption
	Duplicate  *link.Duplication
	Reorder    *link.Reordering
	Discipline *link.Discipline
}

// ParseProperties validates every field of p. Giving more than one loss
// model is an error.
func ParseProperties(p api.LinkProperties) (Properties, error) {
	var out Properties
	if p.Bandwidth != "" {
		bw, err := metric.ParseBandwidth(p.Bandwidth)
		if err != nil {
			return Properties{}, err
		}
		out.Bandwidth = &bw
	}
	if p.Delay != "" {
		d, err := metric.ParseDelay(p.Delay)
		if err != nil {
			return Properties{}, err
		}
		out.Delay = &d
	}
	if p.Jitter != "" {
		j, err := parseJitter(p.Jitter, p.JitterCorr, p.Distribution)
		if err != nil {
			return Properties{}, err
		}
		out.Jitter = &j
	} else if p.JitterCorr != "" || p.Distribution != "" {
		return Properties{}, tcerr.Invalid("jitter", "", "required with jitterCorrelation or distribution")
	}

	var (
		loss    *link.Loss
		state   *link.LossState
		gemodel *link.LossGemodel
	)
	if p.Loss != "" {
		l, err := parseLoss(p.Loss, p.LossCorr)
		if err != nil {
			return Properties{}, err
		}
		loss = &l
	}
	if p.LossState != nil {
		s, err := parseLossState(*p.LossState)
		if err != nil {
			return Properties{}, err
		}
		state = &s
	}
	if p.LossGemodel != nil {
		g, err := parseLossGemodel(*p.LossGemodel)
		if err != nil {
			return Properties{}, err
		}
		gemodel = &g
	}
	imp, err := link.SelectLoss(loss, state, gemodel)
	if err != nil {
		return Properties{}, err
	}
	out.Loss = imp

	if p.Corrupt != "" {
		c, err := parseCorruption(p.Corrupt, p.CorruptCorr)
		if err != nil {
			return Properties{}, err
		}
		out.Corrupt = &c
	}
	if p.Duplicate != "" {
		d, err := parseDuplication(p.Duplicate, p.DuplicateCorr)
		if err != nil {
			return Properties{}, err
		}
		out.Duplicate = &d
	}
	if p.Reorder != nil {
		r, err := parseReordering(*p.Reorder)
		if err != nil {
			return Properties{}, err
		}
		out.Reorder = &r
	}
	if p.Qdisc != "" {
		d, err := link.ParseDiscipline(p.Qdisc, p.QdiscParams)
		if err != nil {
			return Properties{}, err
		}
		out.Discipline = &d
	} else if len(p.QdiscParams) > 0 {
		return Properties{}, tcerr.Invalid("qdisc", "", "required with qdiscParams")
	}
	return out, nil
}

// Empty reports whether p changes nothing.
func (p Properties) Empty() bool {
	return p == Properties{}
}

// check rejects p before anything is applied when a later step is bound to
// fail: jitter or reordering with no delay to build on, or a discipline whose
// IFB name cannot exist.
func (i *Interface) check(p Properties) error {
	if p.Jitter != nil || p.Reorder != nil {
		if _, ok := i.endpoint.Delay(); !ok && p.Delay == nil {
			op := "reordering"
			if p.Jitter != nil {
				op = "jitter"
			}
			return &tcerr.DelayNotSetError{Device: i.Link().String(), Op: op}
		}
	}
	if p.Discipline != nil {
		if _, err := link.IfbName(i.Name); err != nil {
			return err
		}
	}
	return nil
}

// Apply pushes p onto the interface. Bandwidth and delay go first so that
// jitter and reordering find a delay to build on.
func (i *Interface) Apply(p Properties) error {
	if err := i.check(p); err != nil {
		return err
	}
	if p.Bandwidth != nil {
		if err := i.lm.SetBandwidth(i.endpoint, *p.Bandwidth); err != nil {
			return err
		}
	}
	if p.Delay != nil {
		if err := i.lm.SetDelay(i.endpoint, *p.Delay); err != nil {
			return err
		}
	}
	var imps []link.Impairment
	if p.Jitter != nil {
		imps = append(imps, *p.Jitter)
	}
	if p.Loss != nil {
		imps = append(imps, p.Loss)
	}
	if p.Corrupt != nil {
		imps = append(imps, *p.Corrupt)
	}
	if p.Duplicate != nil {
		imps = append(imps, *p.Duplicate)
	}
	if p.Reorder != nil {
		imps = append(imps, *p.Reorder)
	}
	for _, imp := range imps {
		if err := i.lm.ApplyImpairment(i.endpoint, imp); err != nil {
			return err
		}
	}
	if p.Discipline != nil {
		if err := i.lm.SetDiscipline(i.endpoint, *p.Discipline); err != nil {
			return err
		}
	}
	return nil
}

// parseOptional parses s unless it is empty.
func parseOptional(s string) (*metric.Percentage, error) {
	if s == "" {
		return nil, nil
	}
	p, err := metric.ParsePercentage(s)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func parseJitter(jitter, correlation, distribution string) (link.Jitter, error) {
	j, err := metric.ParseDelay(jitter)
	if err != nil {
		return link.Jitter{}, err
	}
	corr, err := parseOptional(correlation)
	if err != nil {
		return link.Jitter{}, err
	}
	var dist metric.Distribution
	if distribution != "" {
		if dist, err = metric.ParseDistribution(distribution); err != nil {
			return link.Jitter{}, err
		}
	}
	return link.Jitter{Jitter: j, Correlation: corr, Distribution: dist}, nil
}

func parseLoss(rate, correlation string) (link.Loss, error) {
	r, err := metric.ParsePercentage(rate)
	if err != nil {
		return link.Loss{}, err
	}
	corr, err := parseOptional(correlation)
	if err != nil {
		return link.Loss{}, err
	}
	return link.Loss{Rate: r, Correlation: corr}, nil
}

func parseLossState(s api.LossState) (link.LossState, error) {
	if s.P13 == "" {
		return link.LossState{}, tcerr.Invalid("loss state p13", "", "is required")
	}
	var ps [5]*metric.Percentage
	for n, raw := range []string{s.P13, s.P31, s.P32, s.P23, s.P14} {
		p, err := parseOptional(raw)
		if err != nil {
			return link.LossState{}, err
		}
		ps[n] = p
	}
	return link.LossState{P13: ps[0], P31: ps[1], P32: ps[2], P23: ps[3], P14: ps[4], ECN: s.ECN}, nil
}

func parseLossGemodel(g api.LossGemodel) (link.LossGemodel, error) {
	p, err := metric.ParsePercentage(g.P)
	if err != nil {
		return link.LossGemodel{}, err
	}
	var rest [3]*metric.Percentage
	names := []string{"r", "1-h", "1-k"}
	for n, raw := range []string{g.R, g.OneMinusH, g.OneMinusK} {
		v, err := parseOptional(raw)
		if err != nil {
			return link.LossGemodel{}, err
		}
		if v != nil && n > 0 && rest[n-1] == nil {
			return link.LossGemodel{}, tcerr.Invalid("loss gemodel "+names[n], raw, names[n]+" needs "+names[n-1]+" to be set")
		}
		rest[n] = v
	}
	return link.LossGemodel{P: p, R: rest[0], OneMinusH: rest[1], OneMinusK: rest[2], ECN: g.ECN}, nil
}

func parseCorruption(rate, correlation string) (link.Corruption, error) {
	l, err := parseLoss(rate, correlation)
	return link.Corruption{Rate: l.Rate, Correlation: l.Correlation}, err
}

func parseDuplication(rate, correlation string) (link.Duplication, error) {
	l, err := parseLoss(rate, correlation)
	return link.Duplication{Rate: l.Rate, Correlation: l.Correlation}, err
}

func parseReordering(r api.Reorder) (link.Reordering, error) {
	d, err := metric.ParseDelay(r.Delay)
	if err != nil {
		return link.Reordering{}, err
	}
	rate, err := metric.ParsePercentage(r.Rate)
	if err != nil {
		return link.Reordering{}, err
	}
	corr, err := parseOptional(r.Correlation)
	if err != nil {
		return link.Reordering{}, err
	}
	if r.Gap < 0 {
		return link.Reordering{}, invalid("gap", r.Gap, "must not be negative")
	}
	return link.Reordering{Delay: d, Rate: rate, Correlation: corr, Gap: r.Gap}, nil
}

func invalid(field string, v int, constraint string) error {
	return tcerr.Invalid(field, strconv.Itoa(v), constraint)
}
