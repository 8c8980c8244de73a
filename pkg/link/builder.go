package link

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"Netshape/pkg/device"
	"Netshape/pkg/metric"
)

var linkLog = logrus.WithField("source", "netshape/link")

const (
	kindHtb   = "htb"
	kindNetem = "netem"
)

// Config carries the engine-wide settings. DefaultBandwidth is read when a
// structure is installed and never again for that device.
type Config struct {
	DefaultBandwidth metric.Bandwidth
	NetemLimit       int
}

// Builder installs and updates the htb + netem stack on a device.
//
// tc qdisc add dev eth0 root handle 1: htb default 1
// tc class add dev eth0 parent 1: classid 1:1 htb rate 1gbit
// tc qdisc add dev eth0 parent 1:1 handle 11: netem limit 1000
type Builder struct {
	dev device.Device
	cfg Config
}

// NewBuilder returns a Builder issuing primitives through dev.
func NewBuilder(dev device.Device, cfg Config) *Builder {
	if cfg.NetemLimit <= 0 {
		cfg.NetemLimit = DefaultNetemLimit
	}
	return &Builder{dev: dev, cfg: cfg}
}

// EnsureStructure installs whatever part of the root/class/leaf triple is
// missing on t. Parts already present are left alone, so a structure that
// was half built by a failed call is completed on the next one.
func (b *Builder) EnsureStructure(t *Target) error {
	if t.complete() {
		return nil
	}
	if b.cfg.DefaultBandwidth.IsZero() {
		return fmt.Errorf("no default bandwidth configured for %s", t.Link)
	}

	if t.tree.Find(device.RootHandle) == nil {
		root := device.Qdisc{
			Kind:   kindHtb,
			Parent: device.ParentRoot,
			Handle: device.RootHandle,
			Params: device.Params{}.Set("default", "1"),
		}
		if err := b.dev.AddQdisc(t.Link, root); err != nil {
			return fmt.Errorf("failed to add htb root qdisc on %s: %w", t.Link, err)
		}
		t.tree.Attach(qdiscNode(root))
	}

	if t.tree.Find(device.ClassHandle) == nil {
		class := device.Class{
			Kind:    kindHtb,
			Parent:  device.RootHandle,
			ClassID: device.ClassHandle,
			Params:  device.Params{}.Set("rate", b.cfg.DefaultBandwidth.String()),
		}
		if err := b.dev.AddClass(t.Link, class); err != nil {
			return fmt.Errorf("failed to add htb class on %s: %w", t.Link, err)
		}
		t.tree.Attach(classNode(class))
		t.rate = b.cfg.DefaultBandwidth
	}

	if t.tree.Find(device.LeafHandle) == nil {
		leaf := device.Qdisc{
			Kind:   kindNetem,
			Parent: device.ClassHandle,
			Handle: device.LeafHandle,
			Params: newNetemParams(b.cfg.NetemLimit),
		}
		if err := b.dev.AddQdisc(t.Link, leaf); err != nil {
			return fmt.Errorf("failed to add netem qdisc on %s: %w", t.Link, err)
		}
		t.tree.Attach(qdiscNode(leaf))
	}

	t.installed = true
	linkLog.WithFields(logrus.Fields{"device": t.Link.String(), "rate": t.rate.String()}).Info("Shaping structure installed")
	return nil
}

// SetBandwidth changes the rate of t's rate-limiting class.
func (b *Builder) SetBandwidth(t *Target, bw metric.Bandwidth) error {
	if err := b.EnsureStructure(t); err != nil {
		return err
	}
	node := t.tree.Find(device.ClassHandle)
	params := node.Params.Clone().Set("rate", bw.String())
	class := device.Class{Kind: node.Kind, Parent: node.Parent, ClassID: node.Handle, Params: params}
	if err := b.dev.ChangeClass(t.Link, class); err != nil {
		return fmt.Errorf("failed to change rate on %s: %w", t.Link, err)
	}
	node.Params = params
	t.rate = bw
	linkLog.WithFields(logrus.Fields{"device": t.Link.String(), "rate": bw.String()}).Debug("Rate changed")
	return nil
}

// SetDelay sets the base delay of t's impairment leaf.
func (b *Builder) SetDelay(t *Target, d metric.Delay) error {
	return b.ApplyImpairment(t, Latency{Delay: d})
}

// ApplyImpairment merges imp into the options of t's netem leaf and pushes
// the complete option list, since `tc qdisc change` resets every netem
// option it is not given.
func (b *Builder) ApplyImpairment(t *Target, imp Impairment) error {
	if !t.complete() {
		// rejected requests must not leave a structure behind
		dry := &netemState{
			device:       t.Link.String(),
			params:       newNetemParams(b.cfg.NetemLimit),
			delay:        t.delay,
			hasDelay:     t.hasDelay,
			reorderDelay: t.reorderDelay,
		}
		if err := imp.encode(dry); err != nil {
			return err
		}
	}
	if err := b.EnsureStructure(t); err != nil {
		return err
	}
	leaf := t.tree.Find(device.LeafHandle)
	if leaf.Kind != kindNetem {
		return fmt.Errorf("cannot apply %s on %s: leaf is %s, not netem", imp, t.Link, leaf.Kind)
	}

	state := t.netemState()
	if err := imp.encode(state); err != nil {
		return err
	}
	q := device.Qdisc{Kind: kindNetem, Parent: leaf.Parent, Handle: leaf.Handle, Params: state.params}
	if err := b.dev.ChangeQdisc(t.Link, q); err != nil {
		return fmt.Errorf("failed to apply %s on %s: %w", imp, t.Link, err)
	}
	t.commit(state)
	linkLog.WithFields(logrus.Fields{"device": t.Link.String(), "impairment": imp.String()}).Debug("Impairment applied")
	return nil
}

// ReplaceLeaf swaps t's leaf for d.
func (b *Builder) ReplaceLeaf(t *Target, d Discipline) error {
	if err := b.EnsureStructure(t); err != nil {
		return err
	}
	leaf := t.tree.Find(device.LeafHandle)
	if err := b.dev.DeleteQdisc(t.Link, device.Qdisc{Kind: leaf.Kind, Parent: leaf.Parent, Handle: leaf.Handle}); err != nil {
		return fmt.Errorf("failed to delete %s leaf on %s: %w", leaf.Kind, t.Link, err)
	}
	t.tree.Detach(leaf.Handle)

	q := device.Qdisc{Kind: d.Kind, Parent: device.ClassHandle, Handle: device.LeafHandle, Params: d.Params.Clone()}
	if err := b.dev.AddQdisc(t.Link, q); err != nil {
		return fmt.Errorf("failed to add %s leaf on %s: %w", d.Kind, t.Link, err)
	}
	t.tree.Attach(qdiscNode(q))
	if d.Kind != kindNetem {
		t.hasDelay = false
		t.delay = metric.Delay{}
		t.reorderDelay = metric.Delay{}
	}
	linkLog.WithFields(logrus.Fields{"device": t.Link.String(), "qdisc": d.Kind}).Info("Leaf qdisc replaced")
	return nil
}

func qdiscNode(q device.Qdisc) *QueueNode {
	return &QueueNode{Kind: q.Kind, Parent: q.Parent, Handle: q.Handle, Params: q.Params.Clone()}
}

func classNode(c device.Class) *QueueNode {
	return &QueueNode{Kind: c.Kind, Parent: c.Parent, Handle: c.ClassID, IsClass: true, Params: c.Params.Clone()}
}

// classRate reads the rate off t's rate-limiting class.
func classRate(t *Target) (metric.Bandwidth, error) {
	node := t.tree.Find(device.ClassHandle)
	if node == nil {
		return metric.Bandwidth{}, fmt.Errorf("%s has no rate-limiting class", t.Link)
	}
	return metric.ParseBandwidth(node.Param("rate"))
}
