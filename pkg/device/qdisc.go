package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"Netshape/pkg/metric"
	"Netshape/pkg/tcerr"
)

// qdiscHandle is the part of *netlink.Handle used to program the kernel.
type qdiscHandle interface {
	LinkByName(name string) (netlink.Link, error)
	QdiscAdd(qdisc netlink.Qdisc) error
	QdiscChange(qdisc netlink.Qdisc) error
	QdiscDel(qdisc netlink.Qdisc) error
	ClassAdd(class netlink.Class) error
	ClassChange(class netlink.Class) error
	FilterAdd(filter netlink.Filter) error
}

// NetlinkDevice implements Device with netlink for the htb root and class,
// the ingress qdisc and the match-all mirred filter. netem and the other leaf
// disciplines carry options netlink cannot encode (loss state and gemodel,
// distribution tables, red and pie parameters) and are passed to Leaves.
type NetlinkDevice struct {
	nl     qdiscHandle
	leaves Device
}

// NewNetlinkDevice returns a NetlinkDevice handing leaf disciplines to
// leaves.
func NewNetlinkDevice(leaves Device) *NetlinkDevice {
	return &NetlinkDevice{nl: &netlink.Handle{}, leaves: leaves}
}

func netlinkQdisc(kind string) bool {
	return kind == "htb" || kind == "ingress"
}

// mirredTarget returns the device a match-all u32 mirred filter sends to, or
// false for any other filter.
func mirredTarget(f Filter) (string, bool) {
	if f.Kind != "u32" {
		return "", false
	}
	match, _ := f.Params.Get("match")
	if strings.Join(match, " ") != "u32 0 0" {
		return "", false
	}
	action, _ := f.Params.Get("action")
	if len(action) != 5 || action[0] != "mirred" || action[1] != "egress" || action[3] != "dev" {
		return "", false
	}
	if action[2] != "redirect" && action[2] != "mirror" {
		return "", false
	}
	return action[4], true
}

// run looks l up inside its namespace and calls fn with it. A failure is
// reported as a *tcerr.CommandError carrying the equivalent tc arguments.
func (d *NetlinkDevice) run(l Link, args []string, fn func(link netlink.Link) error) error {
	log := tcLog.WithFields(logrus.Fields{"namespace": l.Namespace, "device": l.Name})
	log.Debugf("netlink: tc %s", strings.Join(args, " "))

	err := inNamespace(l.Namespace, func() error {
		link, err := d.nl.LinkByName(l.Name)
		if err != nil {
			return fmt.Errorf("failed to get link by name %s: %w", l, err)
		}
		return fn(link)
	})
	if err != nil {
		log.WithError(err).Error("netlink request failed")
		return &tcerr.CommandError{Args: append([]string{"tc"}, args...), Err: err}
	}
	return nil
}

func (d *NetlinkDevice) AddQdisc(l Link, q Qdisc) error {
	if !netlinkQdisc(q.Kind) {
		return d.leaves.AddQdisc(l, q)
	}
	return d.run(l, qdiscArgs("add", l, q), func(link netlink.Link) error {
		nq, err := toQdisc(link.Attrs().Index, q)
		if err != nil {
			return err
		}
		return d.nl.QdiscAdd(nq)
	})
}

func (d *NetlinkDevice) ChangeQdisc(l Link, q Qdisc) error {
	if !netlinkQdisc(q.Kind) {
		return d.leaves.ChangeQdisc(l, q)
	}
	return d.run(l, qdiscArgs("change", l, q), func(link netlink.Link) error {
		nq, err := toQdisc(link.Attrs().Index, q)
		if err != nil {
			return err
		}
		return d.nl.QdiscChange(nq)
	})
}

func (d *NetlinkDevice) DeleteQdisc(l Link, q Qdisc) error {
	if !netlinkQdisc(q.Kind) {
		return d.leaves.DeleteQdisc(l, q)
	}
	return d.run(l, qdiscArgs("del", l, Qdisc{Parent: q.Parent, Handle: q.Handle}), func(link netlink.Link) error {
		attrs, err := qdiscAttrs(link.Attrs().Index, q)
		if err != nil {
			return err
		}
		return d.nl.QdiscDel(&netlink.GenericQdisc{QdiscAttrs: attrs, QdiscType: q.Kind})
	})
}

func (d *NetlinkDevice) AddClass(l Link, c Class) error {
	if c.Kind != "htb" {
		return d.leaves.AddClass(l, c)
	}
	return d.run(l, classArgs("add", l, c), func(link netlink.Link) error {
		nc, err := toHtbClass(link.Attrs().Index, c)
		if err != nil {
			return err
		}
		return d.nl.ClassAdd(nc)
	})
}

func (d *NetlinkDevice) ChangeClass(l Link, c Class) error {
	if c.Kind != "htb" {
		return d.leaves.ChangeClass(l, c)
	}
	return d.run(l, classArgs("change", l, c), func(link netlink.Link) error {
		nc, err := toHtbClass(link.Attrs().Index, c)
		if err != nil {
			return err
		}
		return d.nl.ClassChange(nc)
	})
}

// AddFilter installs a match-all mirred filter through netlink. The target
// device must live in the same namespace as l.
func (d *NetlinkDevice) AddFilter(l Link, f Filter) error {
	target, ok := mirredTarget(f)
	if !ok {
		return d.leaves.AddFilter(l, f)
	}
	return d.run(l, filterArgs("add", l, f), func(link netlink.Link) error {
		dst, err := d.nl.LinkByName(target)
		if err != nil {
			return fmt.Errorf("failed to get link by name %s: %w", target, err)
		}
		nf, err := toMirredFilter(link.Attrs().Index, dst.Attrs().Index, f)
		if err != nil {
			return err
		}
		return d.nl.FilterAdd(nf)
	})
}

// parseHandle reads a tc handle such as "1:", "1:1", "ffff:" or "root".
func parseHandle(s string) (uint32, error) {
	switch s {
	case "":
		return netlink.HANDLE_NONE, nil
	case ParentRoot:
		return netlink.HANDLE_ROOT, nil
	}
	major, minor, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid handle %q", s)
	}
	maj, err := strconv.ParseUint(major, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid handle %q", s)
	}
	var mn uint64
	if minor != "" {
		if mn, err = strconv.ParseUint(minor, 16, 16); err != nil {
			return 0, fmt.Errorf("invalid handle %q", s)
		}
	}
	return netlink.MakeHandle(uint16(maj), uint16(mn)), nil
}

func qdiscAttrs(index int, q Qdisc) (netlink.QdiscAttrs, error) {
	if q.Kind == "ingress" {
		// tc qdisc add dev eth0 handle ffff: ingress
		return netlink.QdiscAttrs{
			LinkIndex: index,
			Handle:    netlink.MakeHandle(0xffff, 0),
			Parent:    netlink.HANDLE_INGRESS,
		}, nil
	}
	handle, err := parseHandle(q.Handle)
	if err != nil {
		return netlink.QdiscAttrs{}, err
	}
	parent, err := parseHandle(q.Parent)
	if err != nil {
		return netlink.QdiscAttrs{}, err
	}
	return netlink.QdiscAttrs{LinkIndex: index, Handle: handle, Parent: parent}, nil
}

// toQdisc builds the netlink form of an htb or ingress qdisc.
func toQdisc(index int, q Qdisc) (netlink.Qdisc, error) {
	attrs, err := qdiscAttrs(index, q)
	if err != nil {
		return nil, err
	}
	if q.Kind == "ingress" {
		if len(q.Params) > 0 {
			return nil, fmt.Errorf("ingress takes no options, got %v", q.Params.Args())
		}
		return &netlink.Ingress{QdiscAttrs: attrs}, nil
	}

	htb := netlink.NewHtb(attrs)
	for _, p := range q.Params {
		switch {
		case p.Key == "default" && len(p.Values) == 1:
			defcls, err := strconv.ParseUint(p.Values[0], 16, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid htb default class %q", p.Values[0])
			}
			htb.Defcls = uint32(defcls)
		case p.Key == "r2q" && len(p.Values) == 1:
			r2q, err := strconv.ParseUint(p.Values[0], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid htb r2q %q", p.Values[0])
			}
			htb.Rate2Quantum = uint32(r2q)
		default:
			return nil, fmt.Errorf("unsupported htb option %q", p.Key)
		}
	}
	return htb, nil
}

// toHtbClass builds the netlink form of an htb class. Rates are given in bits
// per second; netlink derives the burst buffers from them.
func toHtbClass(index int, c Class) (*netlink.HtbClass, error) {
	handle, err := parseHandle(c.ClassID)
	if err != nil {
		return nil, err
	}
	parent, err := parseHandle(c.Parent)
	if err != nil {
		return nil, err
	}
	var cattrs netlink.HtbClassAttrs
	for _, p := range c.Params {
		if len(p.Values) != 1 {
			return nil, fmt.Errorf("unsupported htb class option %q", p.Key)
		}
		switch p.Key {
		case "rate", "ceil":
			bw, err := metric.ParseBandwidth(p.Values[0])
			if err != nil {
				return nil, err
			}
			if p.Key == "rate" {
				cattrs.Rate = bw.BitsPerSecond()
			} else {
				cattrs.Ceil = bw.BitsPerSecond()
			}
		case "prio":
			prio, err := strconv.ParseUint(p.Values[0], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid htb prio %q", p.Values[0])
			}
			cattrs.Prio = uint32(prio)
		default:
			return nil, fmt.Errorf("unsupported htb class option %q", p.Key)
		}
	}
	if cattrs.Rate == 0 {
		return nil, fmt.Errorf("htb class %s has no rate", c.ClassID)
	}
	return netlink.NewHtbClass(netlink.ClassAttrs{LinkIndex: index, Handle: handle, Parent: parent}, cattrs), nil
}

var filterProtocols = map[string]uint16{
	"":     unix.ETH_P_ALL,
	"all":  unix.ETH_P_ALL,
	"ip":   unix.ETH_P_IP,
	"ipv6": unix.ETH_P_IPV6,
}

// toMirredFilter builds a match-all u32 filter whose action sends every
// packet to the device with index target.
//
// tc filter add dev eth0 parent ffff: protocol all prio 1 u32 match u32 0 0 action mirred egress redirect dev i-eth0
func toMirredFilter(index, target int, f Filter) (*netlink.U32, error) {
	parent, err := parseHandle(f.Parent)
	if err != nil {
		return nil, err
	}
	proto, ok := filterProtocols[f.Protocol]
	if !ok {
		return nil, fmt.Errorf("unsupported filter protocol %q", f.Protocol)
	}
	if f.Prio < 0 || f.Prio > 0xffff {
		return nil, fmt.Errorf("filter prio %d out of range", f.Prio)
	}

	mirred := netlink.NewMirredAction(target)
	if action, _ := f.Params.Get("action"); action[2] == "mirror" {
		mirred.MirredAction = netlink.TCA_EGRESS_MIRROR
		mirred.Action = netlink.TC_ACT_PIPE
	}
	// a nil selector matches every packet
	return &netlink.U32{
		FilterAttrs: netlink.FilterAttrs{
			LinkIndex: index,
			Parent:    parent,
			Priority:  uint16(f.Prio),
			Protocol:  proto,
		},
		Actions: []netlink.Action{mirred},
	}, nil
}
