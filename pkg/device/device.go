// Package device issues add/change/delete primitives for qdiscs, classes and
// filters against an interface inside a network namespace.
package device

import "strconv"

// Reserved handles. Every shaped device, primary or IFB, carries the same
// triple: an htb root, a single rate-limiting class and one leaf below it.
const (
	RootHandle    = "1:"
	ClassHandle   = "1:1"
	LeafHandle    = "11:"
	IngressHandle = "ffff:"

	// ParentRoot attaches a qdisc as the device root.
	ParentRoot = "root"
)

// Link identifies an interface inside a network namespace. An empty Namespace
// is the namespace of the running process.
type Link struct {
	Namespace string
	Name      string
}

func (l Link) String() string {
	if l.Namespace == "" {
		return l.Name
	}
	return l.Namespace + "/" + l.Name
}

// Param is one keyword of a tc option list with its positional values.
// A Param without values renders as a bare flag. A Param whose values are all
// empty is present but renders nothing, which lets a caller clear a slot
// explicitly instead of inheriting what was there before.
type Param struct {
	Key    string
	Values []string
}

// Params is an ordered tc option list.
type Params []Param

// Get returns the values stored under key.
func (p Params) Get(key string) ([]string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Values, true
		}
	}
	return nil, false
}

// Set replaces the values of key, appending key if it is absent.
func (p Params) Set(key string, values ...string) Params {
	for i, kv := range p {
		if kv.Key == key {
			p[i].Values = values
			return p
		}
	}
	return append(p, Param{Key: key, Values: values})
}

// Delete removes key.
func (p Params) Delete(key string) Params {
	out := p[:0]
	for _, kv := range p {
		if kv.Key != key {
			out = append(out, kv)
		}
	}
	return out
}

// Clone returns a deep copy of p.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for i, kv := range p {
		out[i] = Param{Key: kv.Key, Values: append([]string(nil), kv.Values...)}
	}
	return out
}

// Args renders p as tc arguments.
func (p Params) Args() []string {
	var args []string
	for _, kv := range p {
		if len(kv.Values) == 0 {
			args = append(args, kv.Key)
			continue
		}
		var vals []string
		for _, v := range kv.Values {
			if v != "" {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}
		args = append(args, kv.Key)
		args = append(args, vals...)
	}
	return args
}

// Qdisc is a queueing discipline object.
type Qdisc struct {
	Kind   string
	Parent string
	Handle string
	Params Params
}

// Class is a class of a classful qdisc.
type Class struct {
	Kind    string
	Parent  string
	ClassID string
	Params  Params
}

// Filter is a classifier attached to a qdisc.
type Filter struct {
	Parent   string
	Protocol string
	Prio     int
	Kind     string
	Params   Params
}

// Device is the primitive layer the shaping engine drives.
type Device interface {
	AddQdisc(l Link, q Qdisc) error
	ChangeQdisc(l Link, q Qdisc) error
	DeleteQdisc(l Link, q Qdisc) error
	AddClass(l Link, c Class) error
	ChangeClass(l Link, c Class) error
	AddFilter(l Link, f Filter) error
}

// QdiscInfo describes a qdisc found on a live interface.
type QdiscInfo struct {
	Kind   string
	Handle string
	Parent string
}

// LinkOps creates and inspects interfaces.
type LinkOps interface {
	// AddIfb creates an ifb device named l.Name in l.Namespace and brings it up.
	AddIfb(l Link) error
	LinkExists(l Link) (bool, error)
	QdiscList(l Link) ([]QdiscInfo, error)
}

func qdiscArgs(op string, l Link, q Qdisc) []string {
	args := []string{"qdisc", op, "dev", l.Name}
	args = append(args, parentArgs(q.Parent)...)
	if q.Handle != "" {
		args = append(args, "handle", q.Handle)
	}
	if q.Kind != "" {
		args = append(args, q.Kind)
	}
	return append(args, q.Params.Args()...)
}

func classArgs(op string, l Link, c Class) []string {
	args := []string{"class", op, "dev", l.Name}
	args = append(args, parentArgs(c.Parent)...)
	args = append(args, "classid", c.ClassID, c.Kind)
	return append(args, c.Params.Args()...)
}

func filterArgs(op string, l Link, f Filter) []string {
	args := []string{"filter", op, "dev", l.Name}
	args = append(args, parentArgs(f.Parent)...)
	if f.Protocol != "" {
		args = append(args, "protocol", f.Protocol)
	}
	if f.Prio > 0 {
		args = append(args, "prio", strconv.Itoa(f.Prio))
	}
	args = append(args, f.Kind)
	return append(args, f.Params.Args()...)
}

func parentArgs(parent string) []string {
	switch parent {
	case "":
		return nil
	case ParentRoot:
		return []string{ParentRoot}
	}
	return []string{"parent", parent}
}
