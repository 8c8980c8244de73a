package link

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"Netshape/pkg/device"
)

func TestTreeAttachFindDetach(t *testing.T) {
	tree := &Tree{}
	assert.True(t, tree.Attach(&QueueNode{Kind: "htb", Parent: device.ParentRoot, Handle: device.RootHandle}))
	assert.True(t, tree.Attach(&QueueNode{Kind: "htb", Parent: device.RootHandle, Handle: device.ClassHandle, IsClass: true}))
	assert.True(t, tree.Attach(&QueueNode{Kind: "netem", Parent: device.ClassHandle, Handle: device.LeafHandle}))
	assert.False(t, tree.Attach(&QueueNode{Kind: "pfifo", Parent: "7:1", Handle: "70:"}))

	assert.Equal(t, "netem", tree.Find(device.LeafHandle).Kind)
	assert.Equal(t, "qdisc htb 1: parent root\n  class htb 1:1 parent 1:\n    qdisc netem 11: parent 1:1\n", tree.String())

	c := tree.Clone()
	tree.Detach(device.LeafHandle)
	assert.Nil(t, tree.Find(device.LeafHandle))
	assert.NotNil(t, c.Find(device.LeafHandle))

	tree.Detach(device.RootHandle)
	assert.Nil(t, tree.Find(device.ClassHandle))
}
