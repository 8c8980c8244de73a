package link

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Netshape/pkg/device"
	"Netshape/pkg/metric"
	"Netshape/pkg/tcerr"
)

var veth0 = device.Link{Namespace: "red", Name: "veth0"}

func newEngine(t *testing.T, links ...device.Link) (*LinkManager, *device.Recorder) {
	t.Helper()
	rec := device.NewRecorder(links...)
	return NewLinkManager(rec, rec, Config{DefaultBandwidth: bandwidth(t, "1gbit")}), rec
}

func bandwidth(t *testing.T, s string) metric.Bandwidth {
	t.Helper()
	bw, err := metric.ParseBandwidth(s)
	require.NoError(t, err)
	return bw
}

func delay(t *testing.T, s string) metric.Delay {
	t.Helper()
	d, err := metric.ParseDelay(s)
	require.NoError(t, err)
	return d
}

func percent(t *testing.T, s string) *metric.Percentage {
	t.Helper()
	p, err := metric.ParsePercentage(s)
	require.NoError(t, err)
	return &p
}

func leafArgs(t *testing.T, rec *device.Recorder, l device.Link) string {
	t.Helper()
	q, ok := rec.Qdisc(l, device.LeafHandle)
	require.True(t, ok, "no leaf on %s", l)
	return strings.Join(q.Params.Args(), " ")
}

func TestEnsureStructureIsIdempotent(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	require.NoError(t, lm.EnsureStructure(e))
	once, _ := e.Trees()
	require.NoError(t, lm.EnsureStructure(e))
	twice, _ := e.Trees()

	assert.Equal(t, once, twice)
	assert.Equal(t, []string{
		"tc qdisc add dev veth0 root handle 1: htb default 1",
		"tc class add dev veth0 parent 1: classid 1:1 htb rate 1gbit",
		"tc qdisc add dev veth0 parent 1:1 handle 11: netem limit 1000",
	}, rec.CallsFor(veth0))
	assert.True(t, e.Installed())
	assert.Equal(t, "1gbit", e.Rate().String())
}

func TestStructureResumesAfterFailure(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	rec.FailOn = func(c device.Call) bool { return c.Args[0] == "class" }
	err := lm.EnsureStructure(e)
	require.Error(t, err)
	assert.True(t, errors.Is(err, device.ErrInjected))
	assert.False(t, e.Installed())

	rec.FailOn = nil
	require.NoError(t, lm.EnsureStructure(e))
	assert.True(t, e.Installed())
	assert.Len(t, rec.CallsFor(veth0), 3)
}

func TestImpairmentsAreOrthogonal(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	require.NoError(t, lm.ApplyImpairment(e, Loss{Rate: *percent(t, "5%")}))
	require.NoError(t, lm.SetDelay(e, delay(t, "10ms")))
	assert.Equal(t, "limit 1000 delay 10ms loss 5%", leafArgs(t, rec, veth0))

	require.NoError(t, lm.ApplyImpairment(e, Corruption{Rate: *percent(t, "0.1%")}))
	require.NoError(t, lm.ApplyImpairment(e, Duplication{Rate: *percent(t, "1%"), Correlation: percent(t, "10%")}))
	assert.Equal(t, "limit 1000 delay 10ms loss 5% corrupt 0.1% duplicate 1% 10%", leafArgs(t, rec, veth0))

	calls := rec.CallsFor(veth0)
	assert.Equal(t, "tc qdisc change dev veth0 parent 1:1 handle 11: netem limit 1000 delay 10ms loss 5% corrupt 0.1% duplicate 1% 10%",
		calls[len(calls)-1])
}

func TestImpairmentOrderDoesNotMatter(t *testing.T) {
	imps := []Impairment{
		Latency{Delay: delay(t, "20ms")},
		Loss{Rate: *percent(t, "2%")},
		Corruption{Rate: *percent(t, "1%")},
	}
	var results []string
	for _, order := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}} {
		lm, rec := newEngine(t, veth0)
		e := NewEndpoint(veth0)
		for _, i := range order {
			require.NoError(t, lm.ApplyImpairment(e, imps[i]))
		}
		results = append(results, leafArgs(t, rec, veth0))
	}
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
}

func TestReorderingNeedsDelay(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	err := lm.ApplyImpairment(e, Reordering{Delay: delay(t, "5ms"), Rate: *percent(t, "25%")})
	var derr *tcerr.DelayNotSetError
	require.True(t, errors.As(err, &derr), "got %v", err)
	assert.Equal(t, "reordering", derr.Op)

	err = lm.ApplyImpairment(e, Jitter{Jitter: delay(t, "2ms")})
	assert.True(t, errors.As(err, &derr))

	assert.Empty(t, rec.CallsFor(veth0))
	assert.False(t, e.Installed())
}

func TestReorderingIsRelativeToDelay(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	require.NoError(t, lm.SetDelay(e, delay(t, "10ms")))
	require.NoError(t, lm.ApplyImpairment(e, Reordering{Delay: delay(t, "5ms"), Rate: *percent(t, "25%"), Gap: 5}))
	assert.Equal(t, "limit 1000 delay 15ms reorder 25% gap 5", leafArgs(t, rec, veth0))

	require.NoError(t, lm.SetDelay(e, delay(t, "20ms")))
	assert.Equal(t, "limit 1000 delay 25ms reorder 25% gap 5", leafArgs(t, rec, veth0))

	base, ok := e.Delay()
	assert.True(t, ok)
	assert.Equal(t, "20ms", base.String())
}

func TestZeroDelayEnablesReordering(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	require.NoError(t, lm.SetDelay(e, delay(t, "0ms")))
	require.NoError(t, lm.ApplyImpairment(e, Reordering{Delay: delay(t, "10ms"), Rate: *percent(t, "50%")}))
	assert.Equal(t, "limit 1000 delay 10ms reorder 50%", leafArgs(t, rec, veth0))
}

func TestJitterKeepsDelay(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	require.NoError(t, lm.SetDelay(e, delay(t, "10ms")))
	require.NoError(t, lm.ApplyImpairment(e, Jitter{Jitter: delay(t, "2ms"), Distribution: metric.Normal}))
	assert.Equal(t, "limit 1000 delay 10ms 2ms distribution normal", leafArgs(t, rec, veth0))

	require.NoError(t, lm.SetDelay(e, delay(t, "30ms")))
	assert.Equal(t, "limit 1000 delay 30ms 2ms distribution normal", leafArgs(t, rec, veth0))
}

func TestLossModelsReplaceEachOther(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	require.NoError(t, lm.ApplyImpairment(e, Loss{Rate: *percent(t, "5%"), Correlation: percent(t, "25%")}))
	assert.Equal(t, "limit 1000 loss 5% 25%", leafArgs(t, rec, veth0))

	require.NoError(t, lm.ApplyImpairment(e, LossState{P13: percent(t, "10%")}))
	assert.Equal(t, "limit 1000 loss state 10% 0% 0% 0% 0%", leafArgs(t, rec, veth0))

	require.NoError(t, lm.ApplyImpairment(e, LossGemodel{P: *percent(t, "1%"), R: percent(t, "10%"), ECN: true}))
	assert.Equal(t, "limit 1000 loss gemodel 1% 10% ecn", leafArgs(t, rec, veth0))

	require.NoError(t, lm.ApplyImpairment(e, Loss{Rate: *percent(t, "3%")}))
	assert.Equal(t, "limit 1000 loss 3%", leafArgs(t, rec, veth0))
}

func TestLossStateDefaults(t *testing.T) {
	s := LossState{P13: percent(t, "10%")}
	assert.Equal(t, "10% 0% 0% 0% 0%", s.ParamString())

	_, err := SelectLoss(nil, &LossState{}, nil)
	require.NoError(t, err)
	err = LossState{}.encode(&netemState{params: newNetemParams(DefaultNetemLimit)})
	assert.Error(t, err)
}

func TestGemodelIsPositional(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	err := lm.ApplyImpairment(e, LossGemodel{P: *percent(t, "1%"), OneMinusH: percent(t, "50%")})
	var verr *tcerr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Empty(t, rec.Calls())

	require.NoError(t, lm.EnsureStructure(e))
	err = lm.ApplyImpairment(e, LossGemodel{P: *percent(t, "1%"), OneMinusK: percent(t, "50%")})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "limit 1000", leafArgs(t, rec, veth0))
}

func TestSelectLossRejectsTwoModels(t *testing.T) {
	loss := &Loss{Rate: *percent(t, "5%")}
	state := &LossState{P13: percent(t, "1%")}

	imp, err := SelectLoss(loss, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, *loss, imp)

	imp, err = SelectLoss(nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, imp)

	_, err = SelectLoss(loss, state, nil)
	var verr *tcerr.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestBandwidthCarriesIntoIfb(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	require.NoError(t, lm.SetBandwidth(e, bandwidth(t, "10mbit")))
	codel, err := ParseDiscipline("codel", map[string]string{"target": "5ms"})
	require.NoError(t, err)
	require.NoError(t, lm.SetDiscipline(e, codel))

	ifb := device.Link{Namespace: "red", Name: "i-veth0"}
	class, ok := rec.Class(ifb, device.ClassHandle)
	require.True(t, ok)
	assert.Equal(t, []string{"rate", "10mbit"}, class.Params.Args())

	leaf, ok := rec.Qdisc(ifb, device.LeafHandle)
	require.True(t, ok)
	assert.Equal(t, "codel", leaf.Kind)
	assert.Equal(t, device.ClassHandle, leaf.Parent)

	primaryLeaf, _ := rec.Qdisc(veth0, device.LeafHandle)
	assert.Equal(t, "netem", primaryLeaf.Kind)

	q := e.Qdisc()
	require.NotNil(t, q)
	assert.Equal(t, "codel", q.Kind)
	assert.Equal(t, "5ms", q.Param("target"))
}

func TestNamedDisciplineWithDefaultBandwidth(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	red, err := ParseDiscipline("red", map[string]string{"limit": "150000", "min": "7500", "max": "22500"})
	require.NoError(t, err)
	require.NoError(t, lm.SetDiscipline(e, red))

	ifb := device.Link{Namespace: "red", Name: "i-veth0"}
	primaryClass, _ := rec.Class(veth0, device.ClassHandle)
	assert.Equal(t, []string{"rate", "1gbit"}, primaryClass.Params.Args())

	assert.Equal(t, []string{
		"ip link add i-veth0 type ifb",
		"tc qdisc add dev i-veth0 root handle 1: htb default 1",
		"tc class add dev i-veth0 parent 1: classid 1:1 htb rate 1gbit",
		"tc qdisc add dev i-veth0 parent 1:1 handle 11: netem limit 1000",
		"tc class change dev i-veth0 parent 1: classid 1:1 htb rate 1gbit",
		"tc qdisc del dev i-veth0 parent 1:1 handle 11:",
		"tc qdisc add dev i-veth0 parent 1:1 handle 11: red limit 150000 min 7500 max 22500",
	}, rec.CallsFor(ifb))

	assert.Equal(t, []string{
		"tc qdisc add dev veth0 root handle 1: htb default 1",
		"tc class add dev veth0 parent 1: classid 1:1 htb rate 1gbit",
		"tc qdisc add dev veth0 parent 1:1 handle 11: netem limit 1000",
		"tc qdisc add dev veth0 handle ffff: ingress",
		"tc filter add dev veth0 parent ffff: protocol all prio 1 u32 match u32 0 0 action mirred egress redirect dev i-veth0",
	}, rec.CallsFor(veth0))
}

func TestMirrorInstalledOnce(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	for _, kind := range []string{"codel", "fq_codel", "pfifo"} {
		d, err := ParseDiscipline(kind, nil)
		require.NoError(t, err)
		require.NoError(t, lm.SetDiscipline(e, d))
	}
	assert.Len(t, rec.Filters(veth0), 1)
	assert.Equal(t, "pfifo", e.Qdisc().Kind)

	ifb := device.Link{Namespace: "red", Name: "i-veth0"}
	adds := 0
	for _, c := range rec.CallsFor(ifb) {
		if strings.HasPrefix(c, "ip link add") {
			adds++
		}
	}
	assert.Equal(t, 1, adds)
}

func TestSetBandwidthFollowsIntoAttachedIfb(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	d, _ := ParseDiscipline("fq_codel", nil)
	require.NoError(t, lm.SetDiscipline(e, d))
	require.NoError(t, lm.SetBandwidth(e, bandwidth(t, "20mbit")))

	class, _ := rec.Class(device.Link{Namespace: "red", Name: "i-veth0"}, device.ClassHandle)
	assert.Equal(t, []string{"rate", "20mbit"}, class.Params.Args())
}

func TestBandwidthOnlyTouchesOwnDevice(t *testing.T) {
	peer := device.Link{Namespace: "blue", Name: "veth1"}
	lm, rec := newEngine(t, veth0, peer)

	require.NoError(t, lm.SetBandwidth(NewEndpoint(veth0), bandwidth(t, "5mbit")))
	assert.Empty(t, rec.CallsFor(peer))
}

func TestIfbNameLimit(t *testing.T) {
	name, err := IfbName("node0-node1-0")
	require.NoError(t, err)
	assert.Equal(t, "i-node0-node1-0", name)
	assert.LessOrEqual(t, len(name), MaxNameLen)

	_, err = IfbName("node0-node1-10")
	var nerr *tcerr.NameTooLongError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, 15, nerr.Limit)
}

func TestLongNameFailsBeforeAnyCall(t *testing.T) {
	long := device.Link{Namespace: "red", Name: "node0-node1-10"}
	lm, rec := newEngine(t, long)
	e := NewEndpoint(long)

	d, _ := ParseDiscipline("codel", nil)
	err := lm.SetDiscipline(e, d)
	var nerr *tcerr.NameTooLongError
	require.True(t, errors.As(err, &nerr))
	assert.Empty(t, rec.Calls())
	assert.False(t, e.Installed())
}

func TestFailedSubstitutionKeepsStateAndRecovers(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)
	red, _ := ParseDiscipline("red", map[string]string{"limit": "150000"})

	rec.FailOn = func(c device.Call) bool {
		return len(c.Args) > 1 && c.Args[1] == "add" && strings.Contains(c.String(), " red ")
	}
	require.Error(t, lm.SetDiscipline(e, red))
	assert.True(t, e.Installed())
	assert.True(t, e.IfbAttached())

	rec.FailOn = nil
	require.NoError(t, lm.SetDiscipline(e, red))
	assert.Equal(t, "red", e.Qdisc().Kind)
	assert.Len(t, rec.Filters(veth0), 1)
}

func TestMirrorResumesAfterFilterFailure(t *testing.T) {
	lm, rec := newEngine(t, veth0)
	e := NewEndpoint(veth0)

	rec.FailOn = func(c device.Call) bool { return c.Args[0] == "filter" }
	_, err := lm.AttachIfb(e)
	require.Error(t, err)
	assert.False(t, e.IfbAttached())

	rec.FailOn = nil
	ifb, err := lm.AttachIfb(e)
	require.NoError(t, err)
	assert.Equal(t, "i-veth0", ifb.Link.Name)
	assert.Len(t, rec.Filters(veth0), 1)
}

func TestEndpointsConfigureConcurrently(t *testing.T) {
	var links []device.Link
	for i := 0; i < 8; i++ {
		links = append(links, device.Link{Namespace: fmt.Sprintf("ns%d", i), Name: "eth0"})
	}
	lm, rec := newEngine(t, links...)

	var wg sync.WaitGroup
	errs := make([]error, len(links))
	for i, l := range links {
		wg.Add(1)
		go func(i int, l device.Link) {
			defer wg.Done()
			e := NewEndpoint(l)
			if err := lm.SetBandwidth(e, bandwidth(t, fmt.Sprintf("%dmbit", i+1))); err != nil {
				errs[i] = err
				return
			}
			d, _ := ParseDiscipline("codel", nil)
			errs[i] = lm.SetDiscipline(e, d)
		}(i, l)
	}
	wg.Wait()

	for i, l := range links {
		require.NoError(t, errs[i])
		class, ok := rec.Class(device.Link{Namespace: l.Namespace, Name: "i-eth0"}, device.ClassHandle)
		require.True(t, ok)
		assert.Equal(t, []string{"rate", fmt.Sprintf("%dmbit", i+1)}, class.Params.Args())
	}
}
