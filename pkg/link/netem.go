package link

import (
	"fmt"
	"strconv"
	"strings"

	"Netshape/pkg/device"
	"Netshape/pkg/metric"
	"Netshape/pkg/tcerr"
)

// DefaultNetemLimit is the packet limit of a freshly installed impairment leaf.
const DefaultNetemLimit = 1000

const (
	slotLimit        = "limit"
	slotDelay        = "delay"
	slotDistribution = "distribution"
	slotReorder      = "reorder"
	slotGap          = "gap"
	slotLoss         = "loss"
	slotCorrupt      = "corrupt"
	slotDuplicate    = "duplicate"
)

// newNetemParams declares every netem slot up front, empty, so the option
// order tc sees never depends on which setter ran first.
func newNetemParams(limit int) device.Params {
	return device.Params{
		{Key: slotLimit, Values: []string{strconv.Itoa(limit)}},
		{Key: slotDelay, Values: []string{"", "", ""}},
		{Key: slotDistribution, Values: []string{""}},
		{Key: slotReorder, Values: []string{"", ""}},
		{Key: slotGap, Values: []string{""}},
		{Key: slotLoss, Values: []string{""}},
		{Key: slotCorrupt, Values: []string{"", ""}},
		{Key: slotDuplicate, Values: []string{"", ""}},
	}
}

// netemState is what an Impairment reads and rewrites. Params holds the full
// option list of the leaf; the delay fields track the base delay separately
// from the effective one written to the delay slot.
type netemState struct {
	device       string
	params       device.Params
	delay        metric.Delay
	hasDelay     bool
	reorderDelay metric.Delay
}

func (s *netemState) slot(key string) []string {
	v, _ := s.params.Get(key)
	return append([]string(nil), v...)
}

func (s *netemState) set(key string, values ...string) {
	s.params = s.params.Set(key, values...)
}

func (s *netemState) effectiveDelay() string {
	return s.delay.Add(s.reorderDelay).String()
}

// Impairment is one variant of netem configuration. Every variant writes only
// the slots it owns on the shared impairment leaf.
type Impairment interface {
	encode(s *netemState) error
	fmt.Stringer
}

func optional(p *metric.Percentage) string {
	if p == nil {
		return ""
	}
	return p.String()
}

// Latency sets the base one-way delay.
type Latency struct {
	Delay metric.Delay
}

func (l Latency) encode(s *netemState) error {
	s.delay = l.Delay
	s.hasDelay = true
	vals := s.slot(slotDelay)
	vals[0] = s.effectiveDelay()
	s.set(slotDelay, vals...)
	return nil
}

func (l Latency) String() string { return "delay " + l.Delay.String() }

// Jitter adds variation around the current delay, drawn from Distribution
// when one is given.
type Jitter struct {
	Jitter       metric.Delay
	Correlation  *metric.Percentage
	Distribution metric.Distribution
}

func (j Jitter) encode(s *netemState) error {
	if !s.hasDelay {
		return &tcerr.DelayNotSetError{Device: s.device, Op: "jitter"}
	}
	s.set(slotDelay, s.effectiveDelay(), j.Jitter.String(), optional(j.Correlation))
	s.set(slotDistribution, j.Distribution.String())
	return nil
}

func (j Jitter) String() string {
	return strings.Join(strings.Fields(fmt.Sprintf("jitter %s %s %s", j.Jitter, optional(j.Correlation), j.Distribution)), " ")
}

// Loss is independent random loss.
type Loss struct {
	Rate        metric.Percentage
	Correlation *metric.Percentage
}

func (l Loss) encode(s *netemState) error {
	s.set(slotLoss, l.Rate.String(), optional(l.Correlation))
	return nil
}

func (l Loss) String() string { return "loss " + l.Rate.String() }

// LossState is the 4-state Markov loss model. Omitted transition
// probabilities are 0%.
type LossState struct {
	P13, P31, P32, P23, P14 *metric.Percentage
	ECN                     bool
}

// ParamString renders the transition probabilities in tc order.
func (l LossState) ParamString() string {
	var ps []string
	for _, p := range []*metric.Percentage{l.P13, l.P31, l.P32, l.P23, l.P14} {
		if p == nil {
			p = &metric.Percentage{}
		}
		ps = append(ps, p.String())
	}
	return strings.Join(ps, " ")
}

func (l LossState) encode(s *netemState) error {
	if l.P13 == nil {
		return tcerr.Invalid("loss state", "", "p13 is required")
	}
	vals := append([]string{"state"}, strings.Fields(l.ParamString())...)
	s.set(slotLoss, append(vals, ecnFlag(l.ECN))...)
	return nil
}

func (l LossState) String() string { return "loss state " + l.ParamString() }

// LossGemodel is the Gilbert-Elliott loss model.
type LossGemodel struct {
	P                       metric.Percentage
	R, OneMinusH, OneMinusK *metric.Percentage
	ECN                     bool
}

// ParamString renders the model parameters in tc order, stopping at the first
// parameter that was not given.
func (l LossGemodel) ParamString() string {
	ps := []string{l.P.String()}
	for _, p := range []*metric.Percentage{l.R, l.OneMinusH, l.OneMinusK} {
		if p == nil {
			break
		}
		ps = append(ps, p.String())
	}
	return strings.Join(ps, " ")
}

func (l LossGemodel) encode(s *netemState) error {
	// tc reads these positionally, so a later one cannot be given without
	// every one before it
	given := []*metric.Percentage{l.R, l.OneMinusH, l.OneMinusK}
	names := []string{"r", "1-h", "1-k"}
	for i := 1; i < len(given); i++ {
		if given[i] != nil && given[i-1] == nil {
			return tcerr.Invalid("loss gemodel", given[i].String(), names[i]+" needs "+names[i-1]+" to be set")
		}
	}
	s.set(slotLoss, "gemodel", l.P.String(), optional(l.R), optional(l.OneMinusH), optional(l.OneMinusK), ecnFlag(l.ECN))
	return nil
}

func (l LossGemodel) String() string { return "loss gemodel " + l.ParamString() }

func ecnFlag(on bool) string {
	if on {
		return "ecn"
	}
	return ""
}

// Corruption flips a random bit in the given share of packets.
type Corruption struct {
	Rate        metric.Percentage
	Correlation *metric.Percentage
}

func (c Corruption) encode(s *netemState) error {
	s.set(slotCorrupt, c.Rate.String(), optional(c.Correlation))
	return nil
}

func (c Corruption) String() string { return "corrupt " + c.Rate.String() }

// Duplication duplicates the given share of packets.
type Duplication struct {
	Rate        metric.Percentage
	Correlation *metric.Percentage
}

func (d Duplication) encode(s *netemState) error {
	s.set(slotDuplicate, d.Rate.String(), optional(d.Correlation))
	return nil
}

func (d Duplication) String() string { return "duplicate " + d.Rate.String() }

// Reordering sends Rate of the packets immediately while the rest are held
// for Delay on top of the current delay. With a Gap, every Gap-th packet is
// the one reordered.
type Reordering struct {
	Delay       metric.Delay
	Rate        metric.Percentage
	Correlation *metric.Percentage
	Gap         int
}

func (r Reordering) encode(s *netemState) error {
	if !s.hasDelay {
		return &tcerr.DelayNotSetError{Device: s.device, Op: "reordering"}
	}
	if r.Gap < 0 {
		return tcerr.Invalid("gap", strconv.Itoa(r.Gap), "must not be negative")
	}
	s.reorderDelay = r.Delay
	vals := s.slot(slotDelay)
	vals[0] = s.effectiveDelay()
	s.set(slotDelay, vals...)
	s.set(slotReorder, r.Rate.String(), optional(r.Correlation))
	gap := ""
	if r.Gap > 0 {
		gap = strconv.Itoa(r.Gap)
	}
	s.set(slotGap, gap)
	return nil
}

func (r Reordering) String() string {
	return fmt.Sprintf("reorder %s after %s", r.Rate, r.Delay)
}

// SelectLoss returns the single loss model among the given ones. Loss models
// share one slot on the leaf, so asking for two at once is an error.
func SelectLoss(loss *Loss, state *LossState, gemodel *LossGemodel) (Impairment, error) {
	var picked []Impairment
	if loss != nil {
		picked = append(picked, *loss)
	}
	if state != nil {
		picked = append(picked, *state)
	}
	if gemodel != nil {
		picked = append(picked, *gemodel)
	}
	switch len(picked) {
	case 0:
		return nil, nil
	case 1:
		return picked[0], nil
	}
	var names []string
	for _, p := range picked {
		names = append(names, p.String())
	}
	return nil, tcerr.Invalid("loss", strings.Join(names, "; "), "only one loss model can be applied at a time")
}
