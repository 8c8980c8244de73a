package link

import (
	"fmt"
	"sync"

	"Netshape/pkg/device"
	"Netshape/pkg/metric"
)

// Endpoint is one shaped interface together with the IFB it may own.
type Endpoint struct {
	mu sync.Mutex

	Primary *Target

	ifb      *Target
	ingress  bool
	mirrored bool
}

// NewEndpoint returns an unshaped endpoint for l.
func NewEndpoint(l device.Link) *Endpoint {
	return &Endpoint{Primary: NewTarget(l)}
}

// Ifb returns the endpoint's IFB once traffic is mirrored to it, or nil.
func (e *Endpoint) Ifb() *Target {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.mirrored {
		return nil
	}
	return e.ifb
}

// IfbAttached reports whether inbound traffic is mirrored to an IFB.
func (e *Endpoint) IfbAttached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mirrored
}

// Installed reports whether the primary structure was ever installed.
func (e *Endpoint) Installed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Primary.Installed()
}

// Rate returns the rate of the primary rate-limiting class.
func (e *Endpoint) Rate() metric.Bandwidth {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Primary.Rate()
}

// Delay returns the base delay of the primary leaf.
func (e *Endpoint) Delay() (metric.Delay, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Primary.Delay()
}

// Trees returns copies of the primary tree and of the IFB tree, the latter
// nil without an IFB.
func (e *Endpoint) Trees() (primary, ifb *Tree) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mirrored {
		ifb = e.ifb.Tree()
	}
	return e.Primary.Tree(), ifb
}

// Qdisc returns a copy of the IFB leaf, or nil when there is no IFB.
func (e *Endpoint) Qdisc() *QueueNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.mirrored {
		return nil
	}
	return e.ifb.Leaf()
}

// LinkManager is the shaping engine: it drives a Builder for the trees and an
// IfbManager for ingress shaping. Calls on one Endpoint are serialized;
// different endpoints share nothing and may be configured in parallel.
type LinkManager struct {
	builder *Builder
	ifbs    *IfbManager
}

// NewLinkManager wires an engine on top of the given primitives.
func NewLinkManager(dev device.Device, links device.LinkOps, cfg Config) *LinkManager {
	b := NewBuilder(dev, cfg)
	return &LinkManager{
		builder: b,
		ifbs:    NewIfbManager(dev, links, b),
	}
}

// EnsureStructure installs the shaping structure on e's primary device.
func (lm *LinkManager) EnsureStructure(e *Endpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lm.builder.EnsureStructure(e.Primary)
}

// SetBandwidth limits e's egress to bw. An attached IFB follows, so the
// ingress discipline keeps shaping at the same rate.
func (lm *LinkManager) SetBandwidth(e *Endpoint, bw metric.Bandwidth) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := lm.builder.SetBandwidth(e.Primary, bw); err != nil {
		return err
	}
	if e.mirrored {
		return lm.builder.SetBandwidth(e.ifb, bw)
	}
	return nil
}

// SetDelay sets the base delay of e's egress.
func (lm *LinkManager) SetDelay(e *Endpoint, d metric.Delay) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lm.builder.SetDelay(e.Primary, d)
}

// ApplyImpairment applies imp to e's egress.
func (lm *LinkManager) ApplyImpairment(e *Endpoint, imp Impairment) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lm.builder.ApplyImpairment(e.Primary, imp)
}

// SetDiscipline installs d as the leaf of e's IFB, creating the IFB if
// needed. The IFB's class is first set to the primary class rate so the
// substitution keeps the bandwidth already in force.
func (lm *LinkManager) SetDiscipline(e *Endpoint, d Discipline) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	// fail on an impossible IFB name before touching the device
	if _, err := IfbName(e.Primary.Link.Name); err != nil {
		return err
	}
	if err := lm.builder.EnsureStructure(e.Primary); err != nil {
		return err
	}
	rate, err := classRate(e.Primary)
	if err != nil {
		return fmt.Errorf("failed to read rate of %s: %w", e.Primary.Link, err)
	}
	ifb, err := lm.ifbs.GetOrCreate(e)
	if err != nil {
		return err
	}
	if err := lm.builder.SetBandwidth(ifb, rate); err != nil {
		return err
	}
	return lm.builder.ReplaceLeaf(ifb, d)
}

// AttachIfb makes sure e has an IFB receiving its inbound traffic.
func (lm *LinkManager) AttachIfb(e *Endpoint) (*Target, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lm.ifbs.GetOrCreate(e)
}
