package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Netshape/api"
	"Netshape/pkg"
	"Netshape/pkg/device"
	"Netshape/pkg/tcerr"
)

func run(t *testing.T, c *pkg.Calculator, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(c)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestShow(t *testing.T) {
	rec := device.NewRecorder()
	c := pkg.NewCalculator(rec, rec)

	out, err := run(t, c, "show")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = run(t, c, "show", "--class", "nodes")
	assert.ErrorContains(t, err, `invalid class "nodes"`)
}

func TestSetValidatesBeforeShaping(t *testing.T) {
	rec := device.NewRecorder()
	c := pkg.NewCalculator(rec, rec)

	_, err := run(t, c, "set", "-i", "veth0", "--delay", "5 minutes")
	var verr *tcerr.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = run(t, c, "set", "-i", "veth0", "--loss", "1%", "--loss-state", "1%")
	assert.Error(t, err)

	_, err = run(t, c, "set", "--delay", "5ms")
	assert.ErrorContains(t, err, "interface")

	_, err = run(t, c, "--default-bandwidth", "fast", "show")
	assert.True(t, errors.As(err, &verr))

	_, err = run(t, c, "--log-level", "chatty", "show")
	assert.Error(t, err)

	_, err = run(t, c, "apply")
	assert.ErrorContains(t, err, "-f")

	assert.Empty(t, rec.Calls())
}

func TestSetOptions(t *testing.T) {
	o := &setOptions{
		iface:       api.Interface{Name: "veth0", NetNs: "red"},
		props:       api.LinkProperties{Delay: "10ms"},
		lossGemodel: []string{"1%", "10%"},
		ecn:         true,
		reorderRate: "25%", reorderDelay: "5ms", reorderGap: 3,
	}
	cfg, err := o.interfaceConfig()
	require.NoError(t, err)
	assert.Equal(t, "veth0", cfg.Name)
	assert.Equal(t, &api.LossGemodel{P: "1%", R: "10%", ECN: true}, cfg.Properties.LossGemodel)
	assert.Equal(t, &api.Reorder{Delay: "5ms", Rate: "25%", Gap: 3}, cfg.Properties.Reorder)
	assert.Nil(t, cfg.Properties.LossState)

	o = &setOptions{lossState: []string{"1%", "1%", "1%", "1%", "1%", "1%"}}
	_, err = o.interfaceConfig()
	assert.Error(t, err)
}
