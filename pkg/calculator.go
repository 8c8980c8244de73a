package pkg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"Netshape/api"
	"Netshape/pkg/device"
	"Netshape/pkg/link"
	"Netshape/pkg/metric"
	"Netshape/pkg/node"
)

// DefaultBandwidth is the class rate installed when neither the command line
// nor the topology file gives one.
const DefaultBandwidth = "1gbit"

// Calculator is what the command line drives. The engine behind it is built
// on first use, which fixes its default bandwidth for the life of the
// process.
type Calculator struct {
	mu sync.Mutex

	dev   device.Device
	links device.LinkOps

	defaultBandwidth string
	prepare          func() error
	m                *Manager
}

// NewCalculator returns a Calculator configuring devices through dev and
// links.
func NewCalculator(dev device.Device, links device.LinkOps) *Calculator {
	return &Calculator{
		dev:     dev,
		links:   links,
		prepare: device.EnsureIfbModule,
	}
}

// SetDefaultBandwidth overrides the default bandwidth of any topology file.
func (c *Calculator) SetDefaultBandwidth(bw string) error {
	if _, err := metric.ParseBandwidth(bw); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m != nil {
		return fmt.Errorf("default bandwidth is already fixed")
	}
	c.defaultBandwidth = bw
	return nil
}

// manager returns the engine, building it with fallback as default bandwidth
// unless one was set explicitly.
func (c *Calculator) manager(fallback string) (*Manager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m != nil {
		return c.m, nil
	}
	raw := c.defaultBandwidth
	if raw == "" {
		raw = fallback
	}
	if raw == "" {
		raw = DefaultBandwidth
	}
	bw, err := metric.ParseBandwidth(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid default bandwidth: %w", err)
	}
	if c.prepare != nil {
		if err := c.prepare(); err != nil {
			return nil, err
		}
	}
	c.m = NewManager(c.dev, c.links, link.Config{DefaultBandwidth: bw})
	return c.m, nil
}

// LoadTopoConfig reads a topology file. Unknown keys are rejected.
func LoadTopoConfig(filepath string) (api.TopoConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return api.TopoConfig{}, fmt.Errorf("error reading YAML file: %w", err)
	}
	var topoCfg api.TopoConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&topoCfg); err != nil && err != io.EOF {
		return api.TopoConfig{}, fmt.Errorf("error unmarshaling YAML file: %w", err)
	}
	return topoCfg, nil
}

// ApplyTopoConfig loads and applies the topology file at filepath.
func (c *Calculator) ApplyTopoConfig(ctx context.Context, filepath string) error {
	topoCfg, err := LoadTopoConfig(filepath)
	if err != nil {
		return err
	}
	m, err := c.manager(topoCfg.DefaultBandwidth)
	if err != nil {
		return err
	}
	return m.ApplyTopology(ctx, topoCfg)
}

// Set applies the properties of cfg to one interface, registering it first
// if it is new.
func (c *Calculator) Set(cfg api.Interface) error {
	props, err := node.ParseProperties(cfg.Properties)
	if err != nil {
		return err
	}
	m, err := c.manager("")
	if err != nil {
		return err
	}
	i, err := m.AddInterface(cfg)
	if err != nil {
		return err
	}
	return i.Apply(props)
}

func (c *Calculator) interfaces() []*node.Interface {
	c.mu.Lock()
	m := c.m
	c.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.Interfaces()
}

// ShowInterfaces prints the shaping state of every interface.
func (c *Calculator) ShowInterfaces(w io.Writer) {
	for _, i := range c.interfaces() {
		rate, delay, qdisc, ifb := "-", "-", "-", "-"
		if i.Installed() {
			rate = i.Rate().String()
		}
		if d, ok := i.Delay(); ok {
			delay = d.String()
		}
		if l, ok := i.Ifb(); ok {
			ifb = l.Name
		}
		if q := i.GetQdisc(); q != nil {
			qdisc = q.Kind
		}
		fmt.Fprintf(w, "Interface: %s, NetNs: %s, Peer: %s, Bw: %s, Delay: %s, Qdisc: %s, IFB: %s\n",
			i.Name, i.Namespace, i.Peer, rate, delay, qdisc, ifb)
	}
}

// ShowQdiscs prints the qdiscs the kernel reports for every interface and
// its IFB.
func (c *Calculator) ShowQdiscs(w io.Writer) error {
	for _, i := range c.interfaces() {
		devs := []device.Link{i.Link()}
		if l, ok := i.Ifb(); ok {
			devs = append(devs, l)
		}
		for _, l := range devs {
			qdiscs, err := c.links.QdiscList(l)
			if err != nil {
				return fmt.Errorf("failed to list qdiscs of %s: %w", l, err)
			}
			var parts []string
			for _, q := range qdiscs {
				parts = append(parts, fmt.Sprintf("%s %s parent %s", q.Kind, q.Handle, q.Parent))
			}
			fmt.Fprintf(w, "%s: %s\n", l, strings.Join(parts, "; "))
		}
	}
	return nil
}
