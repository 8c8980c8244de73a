package link

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"Netshape/pkg/device"
	"Netshape/pkg/tcerr"
)

// MaxNameLen is the longest interface name the kernel accepts.
const MaxNameLen = unix.IFNAMSIZ - 1

// IfbPrefix is prepended to an interface's name to name its IFB.
const IfbPrefix = "i-"

// IfbName derives the IFB name for the interface called name. Names are never
// truncated: two interfaces sharing a prefix would collide.
func IfbName(name string) (string, error) {
	ifb := IfbPrefix + name
	if len(ifb) > MaxNameLen {
		return "", &tcerr.NameTooLongError{Name: ifb, Limit: MaxNameLen}
	}
	return ifb, nil
}

// IfbManager attaches an IFB to an endpoint and mirrors the endpoint's
// inbound traffic onto it, where it is shaped as egress.
type IfbManager struct {
	dev     device.Device
	links   device.LinkOps
	builder *Builder
}

// NewIfbManager returns an IfbManager using builder for the IFB's own tree.
func NewIfbManager(dev device.Device, links device.LinkOps, builder *Builder) *IfbManager {
	return &IfbManager{dev: dev, links: links, builder: builder}
}

// GetOrCreate returns the IFB of e, creating and wiring it on first use.
// Each step is recorded on e as it succeeds, so a call that failed half way
// resumes where it stopped instead of adding a second ingress qdisc or
// mirror filter.
//
// tc qdisc add dev eth0 handle ffff: ingress
// tc filter add dev eth0 parent ffff: protocol all prio 1 u32 match u32 0 0 action mirred egress redirect dev i-eth0
func (m *IfbManager) GetOrCreate(e *Endpoint) (*Target, error) {
	if e.mirrored {
		return e.ifb, nil
	}
	name, err := IfbName(e.Primary.Link.Name)
	if err != nil {
		return nil, err
	}
	log := linkLog.WithFields(logrus.Fields{"device": e.Primary.Link.String(), "ifb": name})

	if e.ifb == nil {
		ifbLink := device.Link{Namespace: e.Primary.Link.Namespace, Name: name}
		exists, err := m.links.LinkExists(ifbLink)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s: %w", ifbLink, err)
		}
		if !exists {
			if err := m.links.AddIfb(ifbLink); err != nil {
				return nil, err
			}
		}
		e.ifb = NewTarget(ifbLink)
		log.Info("IFB created")
	}

	if err := m.builder.EnsureStructure(e.ifb); err != nil {
		return nil, err
	}

	if !e.ingress {
		q := device.Qdisc{Kind: "ingress", Handle: device.IngressHandle}
		if err := m.dev.AddQdisc(e.Primary.Link, q); err != nil {
			return nil, fmt.Errorf("failed to add ingress qdisc on %s: %w", e.Primary.Link, err)
		}
		e.ingress = true
	}

	f := device.Filter{
		Parent:   device.IngressHandle,
		Protocol: "all",
		Prio:     1,
		Kind:     "u32",
		Params: device.Params{}.
			Set("match", "u32", "0", "0").
			Set("action", "mirred", "egress", "redirect", "dev", name),
	}
	if err := m.dev.AddFilter(e.Primary.Link, f); err != nil {
		return nil, fmt.Errorf("failed to mirror ingress of %s to %s: %w", e.Primary.Link, name, err)
	}
	e.mirrored = true
	log.Info("Ingress mirrored to IFB")
	return e.ifb, nil
}
