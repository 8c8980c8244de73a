package node

import (
	"github.com/sirupsen/logrus"

	"Netshape/api"
	"Netshape/pkg/device"
	"Netshape/pkg/link"
	"Netshape/pkg/metric"
	"Netshape/pkg/util"
)

var nodeLog = logrus.WithField("source", "netshape/node")

// Interface is one end of a veth pair as seen by the topology layer. All
// shaping goes through its setters, which validate their inputs before any
// device is touched.
type Interface struct {
	Name      string
	Namespace string
	Peer      string
	Addresses []string
	MTU       int

	endpoint *link.Endpoint
	lm       *link.LinkManager
}

// NewInterface validates cfg and returns an unshaped Interface driven by lm.
func NewInterface(lm *link.LinkManager, cfg api.Interface) (*Interface, error) {
	if err := util.CheckInterfaceName(cfg.Name); err != nil {
		return nil, err
	}
	for _, a := range cfg.Addresses {
		if _, err := util.CheckAddress(a); err != nil {
			return nil, err
		}
	}
	if cfg.MTU < 0 {
		return nil, invalid("mtu", cfg.MTU, "must not be negative")
	}
	l := device.Link{Namespace: cfg.NetNs, Name: cfg.Name}
	return &Interface{
		Name:      cfg.Name,
		Namespace: cfg.NetNs,
		Peer:      cfg.Peer,
		Addresses: append([]string(nil), cfg.Addresses...),
		MTU:       cfg.MTU,
		endpoint:  link.NewEndpoint(l),
		lm:        lm,
	}, nil
}

// Link returns the device handle of the interface.
func (i *Interface) Link() device.Link {
	return i.endpoint.Primary.Link
}

func (i *Interface) log() *logrus.Entry {
	return nodeLog.WithField("interface", i.Link().String())
}

// SetBandwidth limits the egress rate.
func (i *Interface) SetBandwidth(bandwidth string) error {
	bw, err := metric.ParseBandwidth(bandwidth)
	if err != nil {
		return err
	}
	return i.lm.SetBandwidth(i.endpoint, bw)
}

// SetDelay sets the base one-way delay.
func (i *Interface) SetDelay(delay string) error {
	d, err := metric.ParseDelay(delay)
	if err != nil {
		return err
	}
	return i.lm.SetDelay(i.endpoint, d)
}

// SetDelayDistribution adds jitter around the current delay. correlation and
// distribution may be empty.
func (i *Interface) SetDelayDistribution(jitter, correlation, distribution string) error {
	j, err := parseJitter(jitter, correlation, distribution)
	if err != nil {
		return err
	}
	return i.lm.ApplyImpairment(i.endpoint, j)
}

// SetPacketLoss sets independent random loss, replacing any loss model.
func (i *Interface) SetPacketLoss(rate, correlation string) error {
	l, err := parseLoss(rate, correlation)
	if err != nil {
		return err
	}
	return i.lm.ApplyImpairment(i.endpoint, l)
}

// SetPacketLossState sets the 4-state Markov loss model. Only p13 is
// required.
func (i *Interface) SetPacketLossState(p13, p31, p32, p23, p14 string, ecn bool) error {
	s, err := parseLossState(api.LossState{P13: p13, P31: p31, P32: p32, P23: p23, P14: p14, ECN: ecn})
	if err != nil {
		return err
	}
	return i.lm.ApplyImpairment(i.endpoint, s)
}

// SetPacketLossGemodel sets the Gilbert-Elliott loss model.
func (i *Interface) SetPacketLossGemodel(p, r, oneMinusH, oneMinusK string, ecn bool) error {
	g, err := parseLossGemodel(api.LossGemodel{P: p, R: r, OneMinusH: oneMinusH, OneMinusK: oneMinusK, ECN: ecn})
	if err != nil {
		return err
	}
	return i.lm.ApplyImpairment(i.endpoint, g)
}

func (i *Interface) SetPacketCorruption(rate, correlation string) error {
	c, err := parseCorruption(rate, correlation)
	if err != nil {
		return err
	}
	return i.lm.ApplyImpairment(i.endpoint, c)
}

func (i *Interface) SetPacketDuplication(rate, correlation string) error {
	d, err := parseDuplication(rate, correlation)
	if err != nil {
		return err
	}
	return i.lm.ApplyImpairment(i.endpoint, d)
}

// SetPacketReordering sends rate of the packets without the extra delay; the
// rest wait delay on top of the current delay. gap 0 means no gap.
func (i *Interface) SetPacketReordering(delay, rate, correlation string, gap int) error {
	r, err := parseReordering(api.Reorder{Delay: delay, Rate: rate, Correlation: correlation, Gap: gap})
	if err != nil {
		return err
	}
	return i.lm.ApplyImpairment(i.endpoint, r)
}

// SetQdisc installs a named discipline as the leaf of the interface's IFB,
// creating the IFB on first use.
func (i *Interface) SetQdisc(name string, params map[string]string) error {
	d, err := link.ParseDiscipline(name, params)
	if err != nil {
		return err
	}
	if err := i.lm.SetDiscipline(i.endpoint, d); err != nil {
		return err
	}
	i.log().WithField("qdisc", name).Info("Qdisc set")
	return nil
}

// SetAttributes applies bandwidth and delay, then qdisc when it is not empty.
// Every argument is validated before the first change is made.
func (i *Interface) SetAttributes(bandwidth, delay, qdisc string, params map[string]string) error {
	bw, err := metric.ParseBandwidth(bandwidth)
	if err != nil {
		return err
	}
	d, err := metric.ParseDelay(delay)
	if err != nil {
		return err
	}
	p := Properties{Bandwidth: &bw, Delay: &d}
	if qdisc != "" {
		disc, err := link.ParseDiscipline(qdisc, params)
		if err != nil {
			return err
		}
		p.Discipline = &disc
	}
	if err := i.Apply(p); err != nil {
		return err
	}
	i.log().WithFields(logrus.Fields{"rate": bw.String(), "delay": d.String(), "qdisc": qdisc}).Info("Attributes set")
	return nil
}

// GetQdisc returns the active leaf discipline on the IFB, or nil while the
// interface has no IFB.
func (i *Interface) GetQdisc() *link.QueueNode {
	return i.endpoint.Qdisc()
}

// Installed reports whether the shaping structure is in place.
func (i *Interface) Installed() bool {
	return i.endpoint.Installed()
}

// Ifb returns the IFB device of the interface and whether it has one.
func (i *Interface) Ifb() (device.Link, bool) {
	t := i.endpoint.Ifb()
	if t == nil {
		return device.Link{}, false
	}
	return t.Link, true
}

// Rate returns the current egress rate; zero while unshaped.
func (i *Interface) Rate() metric.Bandwidth {
	return i.endpoint.Rate()
}

// Delay returns the current base delay and whether one was set.
func (i *Interface) Delay() (metric.Delay, bool) {
	return i.endpoint.Delay()
}

// Trees returns copies of the primary and IFB queueing trees.
func (i *Interface) Trees() (primary, ifb *link.Tree) {
	return i.endpoint.Trees()
}
