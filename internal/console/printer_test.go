package console_test

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gctrail/internal/console"
)

func TestPrinterPlainLines(t *testing.T) {
	var out bytes.Buffer
	p := console.New(&out, console.ColorOff)
	assert.False(t, p.Colored())

	p.Linef("[gc_trace] %s", "done")
	p.Targetf("[target_found] pointer: %#x", 0x10)
	p.Blank()
	_, err := p.Write([]byte("[0] <root> -> main -> 0x10\n"))
	require.NoError(t, err)

	assert.Equal(t,
		"[gc_trace] done\n[target_found] pointer: 0x10\n\n[0] <root> -> main -> 0x10\n",
		out.String())
}

func TestPrinterFlushesEveryLine(t *testing.T) {
	var out bytes.Buffer
	buf := bufio.NewWriterSize(&out, 4096)
	p := console.New(buf, console.ColorOff)

	p.Linef("first")
	assert.Equal(t, "first\n", out.String())
	_, err := p.Write([]byte("second\n"))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", out.String())
}

func TestChainColorsLeadingMarker(t *testing.T) {
	var out bytes.Buffer
	p := console.New(&out, console.ColorOn)
	require.True(t, p.Colored())

	line := "[0] <root> -> <root> -> 0x10\n"
	n, err := p.Chain().Write([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.True(t, strings.HasPrefix(out.String(), "[0] \x1b["), out.String())
	assert.True(t, strings.HasSuffix(out.String(), " -> <root> -> 0x10\n"), out.String())
	assert.Equal(t, 2, strings.Count(out.String(), "<root>"))
}

func TestPrinterWriteIsPlain(t *testing.T) {
	var out bytes.Buffer
	p := console.New(&out, console.ColorOn)

	dump := "[FlightRecorder] 0: from: <unknown>, to: <root>\n"
	_, err := p.Write([]byte(dump))
	require.NoError(t, err)
	_, err = p.Chain().Write([]byte("no marker here\n"))
	require.NoError(t, err)
	assert.Equal(t, dump+"no marker here\n", out.String())
}

func TestChainWithoutColor(t *testing.T) {
	var out bytes.Buffer
	p := console.New(&out, console.ColorOff)
	_, err := p.Chain().Write([]byte("[1] <unknown> -> 0x10\n"))
	require.NoError(t, err)
	assert.Equal(t, "[1] <unknown> -> 0x10\n", out.String())
}

func TestAutoColorIsOffForBuffers(t *testing.T) {
	p := console.New(&bytes.Buffer{}, console.ColorAuto)
	assert.False(t, p.Colored())
}

func TestResolve(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, console.ColorOff, console.Resolve(console.ColorAuto, &buf))
	assert.Equal(t, console.ColorOn, console.Resolve(console.ColorOn, &buf))
	assert.Equal(t, console.ColorOff, console.Resolve(console.ColorOff, &buf))
}

func TestParseColorMode(t *testing.T) {
	for in, want := range map[string]console.ColorMode{
		"":     console.ColorAuto,
		"AUTO": console.ColorAuto,
		"on":   console.ColorOn,
		" off": console.ColorOff,
	} {
		got, err := console.ParseColorMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := console.ParseColorMode("always")
	assert.Error(t, err)
}

func TestCount(t *testing.T) {
	assert.Equal(t, "1,234,567", console.Count(1234567))
	assert.Equal(t, "12", console.Count(12))
}
