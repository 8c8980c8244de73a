package pkg

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"Netshape/api"
	"Netshape/pkg/device"
	"Netshape/pkg/link"
	"Netshape/pkg/node"
)

var managerLog = logrus.WithField("source", "netshape/manager")

// Manager keeps the interfaces of a topology and applies link properties to
// them. Interfaces are configured in parallel; the properties of any one
// interface are applied in the order they appear in the topology.
type Manager struct {
	mu         sync.Mutex
	interfaces map[device.Link]*node.Interface // keyed by namespace and name

	lm          *link.LinkManager
	parallelism int
}

// NewManager returns a Manager shaping through dev and links.
func NewManager(dev device.Device, links device.LinkOps, cfg link.Config) *Manager {
	return &Manager{
		interfaces:  make(map[device.Link]*node.Interface),
		lm:          link.NewLinkManager(dev, links, cfg),
		parallelism: runtime.GOMAXPROCS(0),
	}
}

// AddInterface registers cfg. Registering the same namespace and name again
// returns the existing interface.
func (m *Manager) AddInterface(cfg api.Interface) (*node.Interface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := device.Link{Namespace: cfg.NetNs, Name: cfg.Name}
	if existing, ok := m.interfaces[key]; ok {
		return existing, nil
	}
	i, err := node.NewInterface(m.lm, cfg)
	if err != nil {
		return nil, err
	}
	m.interfaces[key] = i
	managerLog.WithFields(logrus.Fields{"interface": cfg.Name, "netns": cfg.NetNs}).Debug("Interface registered")
	return i, nil
}

// Interface returns the registered interface l.
func (m *Manager) Interface(l device.Link) (*node.Interface, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.interfaces[l]
	return i, ok
}

// Interfaces returns every registered interface sorted by namespace and name.
func (m *Manager) Interfaces() []*node.Interface {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*node.Interface, 0, len(m.interfaces))
	for _, i := range m.interfaces {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Link().String() < out[b].Link().String() })
	return out
}

// ApplyTopology registers the interfaces of topo and applies their own
// properties followed by those of every link they terminate. A link applies
// to its source and, unless it is unidirectional, to its destination. Link
// ends name an interface either as "netns/name" or, when the name is unique
// in the topology, as "name". The whole topology is validated before the
// first change is made.
func (m *Manager) ApplyTopology(ctx context.Context, topo api.TopoConfig) error {
	plans := make(map[device.Link][]node.Properties)
	var order []device.Link
	add := func(l device.Link, p api.LinkProperties) error {
		props, err := node.ParseProperties(p)
		if err != nil {
			return fmt.Errorf("invalid properties for %s: %w", l, err)
		}
		if props.Empty() {
			return nil
		}
		if _, ok := plans[l]; !ok {
			order = append(order, l)
		}
		plans[l] = append(plans[l], props)
		return nil
	}

	known := make(map[device.Link]bool)
	byName := make(map[string][]device.Link)
	for _, i := range topo.Interfaces {
		l := device.Link{Namespace: i.NetNs, Name: i.Name}
		if known[l] {
			return fmt.Errorf("interface %s declared twice", l)
		}
		known[l] = true
		byName[i.Name] = append(byName[i.Name], l)
		if err := add(l, i.Properties); err != nil {
			return err
		}
	}
	resolve := func(end, ref string) (device.Link, error) {
		if ns, name, ok := strings.Cut(ref, "/"); ok {
			l := device.Link{Namespace: ns, Name: name}
			if !known[l] {
				return device.Link{}, fmt.Errorf("%s interface %s not found", end, ref)
			}
			return l, nil
		}
		switch found := byName[ref]; len(found) {
		case 0:
			return device.Link{}, fmt.Errorf("%s interface %s not found", end, ref)
		case 1:
			return found[0], nil
		default:
			return device.Link{}, fmt.Errorf("%s interface %s exists in %d namespaces, write it as netns/name", end, ref, len(found))
		}
	}
	for _, l := range topo.Links {
		src, err := resolve("src", l.Src)
		if err != nil {
			return err
		}
		dst, err := resolve("dst", l.Dst)
		if err != nil {
			return err
		}
		if err := add(src, l.Properties); err != nil {
			return err
		}
		if !l.UniDirectional {
			if err := add(dst, l.Properties); err != nil {
				return err
			}
		}
	}

	for _, cfg := range topo.Interfaces {
		if _, err := m.AddInterface(cfg); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for _, l := range order {
		i, _ := m.Interface(l)
		steps := plans[l]
		g.Go(func() error {
			for _, p := range steps {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := i.Apply(p); err != nil {
					managerLog.WithError(err).WithField("interface", i.Link().String()).Error("Failed to apply properties")
					return fmt.Errorf("failed to configure %s: %w", i.Link(), err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	managerLog.WithFields(logrus.Fields{"interfaces": len(topo.Interfaces), "links": len(topo.Links)}).Info("Topology applied")
	return nil
}
