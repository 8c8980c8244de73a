package link

import (
	"Netshape/pkg/device"
	"Netshape/pkg/metric"
)

// Target is the shaping state of one device: its installed tree and the
// rate and delay last applied to it.
type Target struct {
	Link device.Link

	tree         *Tree
	installed    bool
	rate         metric.Bandwidth
	delay        metric.Delay
	hasDelay     bool
	reorderDelay metric.Delay
}

// NewTarget returns an unshaped target for l.
func NewTarget(l device.Link) *Target {
	return &Target{Link: l, tree: &Tree{}}
}

// Installed reports whether the structure was ever fully installed. It never
// goes back to false.
func (t *Target) Installed() bool {
	return t.installed
}

func (t *Target) complete() bool {
	return t.tree.Find(device.RootHandle) != nil &&
		t.tree.Find(device.ClassHandle) != nil &&
		t.tree.Find(device.LeafHandle) != nil
}

// Rate returns the rate of the rate-limiting class.
func (t *Target) Rate() metric.Bandwidth {
	return t.rate
}

// Delay returns the base delay and whether one was ever set.
func (t *Target) Delay() (metric.Delay, bool) {
	return t.delay, t.hasDelay
}

// Tree returns a copy of the installed tree.
func (t *Target) Tree() *Tree {
	return t.tree.Clone()
}

// Leaf returns a copy of the leaf below the rate-limiting class.
func (t *Target) Leaf() *QueueNode {
	return t.tree.Find(device.LeafHandle).Clone()
}

func (t *Target) netemState() *netemState {
	leaf := t.tree.Find(device.LeafHandle)
	return &netemState{
		device:       t.Link.String(),
		params:       leaf.Params.Clone(),
		delay:        t.delay,
		hasDelay:     t.hasDelay,
		reorderDelay: t.reorderDelay,
	}
}

func (t *Target) commit(s *netemState) {
	t.tree.Find(device.LeafHandle).Params = s.params
	t.delay = s.delay
	t.hasDelay = s.hasDelay
	t.reorderDelay = s.reorderDelay
}
