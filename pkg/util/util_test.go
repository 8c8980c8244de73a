package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Netshape/pkg/tcerr"
)

func TestCheckAddress(t *testing.T) {
	a, err := CheckAddress("10.0.0.1/24")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1/24", a.IPNet.String())

	a, err = CheckAddress("192.168.1.7")
	require.NoError(t, err)
	ones, _ := a.Mask.Size()
	assert.Equal(t, 32, ones)

	a, err = CheckAddress("fd00::1/64")
	require.NoError(t, err)
	ones, _ = a.Mask.Size()
	assert.Equal(t, 64, ones)

	for _, bad := range []string{"", "300.1.1.1", "10.0.0.1/40", "host"} {
		_, err := CheckAddress(bad)
		var verr *tcerr.ValidationError
		assert.True(t, errors.As(err, &verr), bad)
	}
}

func TestCheckInterfaceName(t *testing.T) {
	assert.NoError(t, CheckInterfaceName("node0-node1-0"))
	assert.NoError(t, CheckInterfaceName("eth0"))

	var nerr *tcerr.NameTooLongError
	assert.True(t, errors.As(CheckInterfaceName("longnode0-longnode1-0"), &nerr))

	var verr *tcerr.ValidationError
	for _, bad := range []string{"", "..", "a/b", "eth 0"} {
		assert.True(t, errors.As(CheckInterfaceName(bad), &verr), bad)
	}
}
