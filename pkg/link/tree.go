package link

import (
	"strings"

	"Netshape/pkg/device"
)

// QueueNode is one qdisc or class in a device's queueing tree.
type QueueNode struct {
	Kind     string
	Parent   string
	Handle   string
	IsClass  bool
	Params   device.Params
	Children []*QueueNode
}

// Param returns the first value of key, or "".
func (n *QueueNode) Param(key string) string {
	v, _ := n.Params.Get(key)
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Clone returns a deep copy of n and its children.
func (n *QueueNode) Clone() *QueueNode {
	if n == nil {
		return nil
	}
	c := &QueueNode{
		Kind:    n.Kind,
		Parent:  n.Parent,
		Handle:  n.Handle,
		IsClass: n.IsClass,
		Params:  n.Params.Clone(),
	}
	for _, child := range n.Children {
		c.Children = append(c.Children, child.Clone())
	}
	return c
}

func (n *QueueNode) String() string {
	var b strings.Builder
	n.write(&b, 0)
	return b.String()
}

func (n *QueueNode) write(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	if n.IsClass {
		b.WriteString("class ")
	} else {
		b.WriteString("qdisc ")
	}
	b.WriteString(n.Kind + " " + n.Handle + " parent " + n.Parent)
	if args := n.Params.Args(); len(args) > 0 {
		b.WriteString(" " + strings.Join(args, " "))
	}
	b.WriteString("\n")
	for _, c := range n.Children {
		c.write(b, depth+1)
	}
}

// Tree is the queueing tree installed on one device.
type Tree struct {
	Root *QueueNode
}

// Find returns the node with the given handle.
func (t *Tree) Find(handle string) *QueueNode {
	if t == nil || t.Root == nil {
		return nil
	}
	return find(t.Root, handle)
}

func find(n *QueueNode, handle string) *QueueNode {
	if n.Handle == handle {
		return n
	}
	for _, c := range n.Children {
		if found := find(c, handle); found != nil {
			return found
		}
	}
	return nil
}

// Attach adds child below the node with handle parent.
func (t *Tree) Attach(child *QueueNode) bool {
	if child.Parent == device.ParentRoot {
		t.Root = child
		return true
	}
	p := t.Find(child.Parent)
	if p == nil {
		return false
	}
	p.Children = append(p.Children, child)
	return true
}

// Detach removes the node with the given handle and its subtree.
func (t *Tree) Detach(handle string) {
	if t.Root == nil {
		return
	}
	if t.Root.Handle == handle {
		t.Root = nil
		return
	}
	detach(t.Root, handle)
}

func detach(n *QueueNode, handle string) bool {
	for i, c := range n.Children {
		if c.Handle == handle {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
		if detach(c, handle) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	return &Tree{Root: t.Root.Clone()}
}

func (t *Tree) String() string {
	if t == nil || t.Root == nil {
		return ""
	}
	return t.Root.String()
}
