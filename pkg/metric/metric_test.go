package metric

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Netshape/pkg/tcerr"
)

func TestParseBandwidth(t *testing.T) {
	tests := []struct {
		in   string
		bits uint64
		str  string
	}{
		{"10mbit", 10_000_000, "10mbit"},
		{"1.5Gbit", 1_500_000_000, "1.5gbit"},
		{"100kbps", 800_000, "100kbps"},
		{"512bit", 512, "512bit"},
	}
	for _, tt := range tests {
		bw, err := ParseBandwidth(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.bits, bw.BitsPerSecond(), tt.in)
		assert.Equal(t, tt.str, bw.String(), tt.in)
	}
}

func TestParseBandwidthRejects(t *testing.T) {
	for _, in := range []string{"", "mbit", "10", "10furlongs", "0mbit", "-5mbit"} {
		_, err := ParseBandwidth(in)
		var verr *tcerr.ValidationError
		assert.True(t, errors.As(err, &verr), "expected validation error for %q, got %v", in, err)
	}
}

func TestParseDelay(t *testing.T) {
	tests := []struct {
		in  string
		d   time.Duration
		str string
	}{
		{"10ms", 10 * time.Millisecond, "10ms"},
		{"1s", time.Second, "1000ms"},
		{"2secs", 2 * time.Second, "2000ms"},
		{"250us", 250 * time.Microsecond, "250us"},
		{"1.5msec", 1500 * time.Microsecond, "1500us"},
		{"0ms", 0, "0ms"},
	}
	for _, tt := range tests {
		d, err := ParseDelay(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.d, d.Duration(), tt.in)
		assert.Equal(t, tt.str, d.String(), tt.in)
	}

	_, err := ParseDelay("10ns")
	assert.Error(t, err)
	_, err = ParseDelay("fast")
	assert.Error(t, err)
}

func TestParseDelayRejectsOverflow(t *testing.T) {
	for _, in := range []string{"10000000000s", "99999999999999ms", "9223372036854775808us"} {
		d, err := ParseDelay(in)
		var verr *tcerr.ValidationError
		require.True(t, errors.As(err, &verr), "%s parsed as %s", in, d)
		assert.Equal(t, "delay", verr.Field)
	}

	d, err := ParseDelay("9000000000s")
	require.NoError(t, err)
	assert.Greater(t, d.Duration(), time.Duration(0))
}

func TestParseBandwidthRejectsOverflow(t *testing.T) {
	_, err := ParseBandwidth("20000000tbit")
	var verr *tcerr.ValidationError
	require.True(t, errors.As(err, &verr))

	bw, err := ParseBandwidth("100tbit")
	require.NoError(t, err)
	assert.Equal(t, uint64(1e14), bw.BitsPerSecond())
}

func TestDelayAdd(t *testing.T) {
	a, _ := ParseDelay("10ms")
	b, _ := ParseDelay("500us")
	assert.Equal(t, "10500us", a.Add(b).String())
	assert.Equal(t, "0ms", Delay{}.String())
}

func TestParsePercentage(t *testing.T) {
	p, err := ParsePercentage("5%")
	require.NoError(t, err)
	assert.Equal(t, "5%", p.String())

	p, err = ParsePercentage("0.25")
	require.NoError(t, err)
	assert.Equal(t, 0.25, p.Value())

	p, err = ParsePercentage("100%")
	require.NoError(t, err)
	assert.Equal(t, "100%", p.String())

	for _, in := range []string{"101%", "5ms", "x%", ""} {
		_, err := ParsePercentage(in)
		assert.Error(t, err, in)
	}
	assert.Equal(t, "0%", Percentage{}.String())
}

func TestParseDistribution(t *testing.T) {
	d, err := ParseDistribution("Pareto")
	require.NoError(t, err)
	assert.Equal(t, Pareto, d)

	_, err = ParseDistribution("gaussian")
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	s, err := ParseSize("150000")
	require.NoError(t, err)
	assert.Equal(t, Size(150000), s)

	s, err = ParseSize("32kb")
	require.NoError(t, err)
	assert.Equal(t, "32768", s.String())

	_, err = ParseSize("lots")
	assert.Error(t, err)
}
