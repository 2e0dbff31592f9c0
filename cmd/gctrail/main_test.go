package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gctrail/internal/heap"
	"gctrail/internal/trace"
)

const smallHeap = "../../internal/heap/testdata/small.toml"

// writeCorruptHeap writes a copy of smallHeap whose Pair 0x3100 points at
// byte 4, the middle of its first pointer field.
func writeCorruptHeap(t *testing.T) string {
	t.Helper()
	src, err := os.ReadFile(smallHeap)
	require.NoError(t, err)
	bad := strings.Replace(string(src), "refs = [{ offset = 8, target = 0x5000 }]", "refs = [{ offset = 4, target = 0x5000 }]", 1)
	require.NotEqual(t, string(src), bad)

	path := filepath.Join(t.TempDir(), "corrupt.toml")
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))
	return path
}

// execute runs the CLI with a throwaway config so the result does not
// depend on a gctrail.toml above the working directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "gctrail.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("[output]\ncolor = \"off\"\n"), 0o600))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTraceFindsTargets(t *testing.T) {
	out, err := execute(t, "trace", "--target", "0x2200", "--target", "0x7000", smallHeap)
	require.NoError(t, err)

	assert.Contains(t, out, "[gc_addptr] recording: 0x2200 of type Node\n")
	assert.Contains(t, out,
		"[target_found] pointer: 0x2200 ::Node\n"+
			"[0] 0x2100 ::Node -> next (field position: 1) -> 0x2200 ::Node\n"+
			"[1] 0x3000 ::List -> (field position: 2) -> 0x2100 ::Node\n"+
			"[2] 0x1000 ::Main -> cache_globalref -> 0x3000 ::List\n"+
			"[3] <root> -> main -> 0x1000 ::Main\n")
	assert.Contains(t, out,
		"[gc_trace] the following pointers were not detected:\n[0] pointer: 0x7000\n")
	assert.NotContains(t, out, "==>")
}

func TestTraceByType(t *testing.T) {
	out, err := execute(t, "trace", "--target-type", "Blob", "--target-type", "Nope", smallHeap)
	require.NoError(t, err)

	assert.Contains(t, out, "[gc_addptr] no objects of type Nope\n")
	assert.Contains(t, out, "[target_found] pointer: 0x5000 ::Blob\n")
	assert.Contains(t, out, "[gc_trace] all targets were detected\n")
}

func TestTraceWithoutTargets(t *testing.T) {
	out, err := execute(t, "trace", smallHeap)
	require.NoError(t, err)
	assert.Equal(t, "[gc_trace] There are no targets to trace...\n", out)
}

func TestTraceDumpNDJSON(t *testing.T) {
	out, err := execute(t, "trace", "-t", "0x4200", "--dump", "3", "--dump-format", "ndjson", smallHeap)
	require.NoError(t, err)

	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 3)
	assert.EqualValues(t, 2, lines[0]["index"])
	assert.Equal(t, "scan: 0x2000 ::Outer", lines[0]["msg"])
	assert.EqualValues(t, 0, lines[2]["index"])
	assert.Equal(t, "from: 0x2000, to: 0x2200, offset: 16", lines[2]["msg"])
}

func TestTraceParallelKeepsArgumentOrder(t *testing.T) {
	packed := filepath.Join(t.TempDir(), "small.heap")
	_, err := execute(t, "pack", "-o", packed, smallHeap)
	require.NoError(t, err)

	out, err := execute(t, "trace", "-j", "2", "-t", "0x4200", smallHeap, packed, smallHeap)
	require.NoError(t, err)

	first := strings.Index(out, "==> "+smallHeap+" <==")
	second := strings.Index(out, "==> "+packed+" <==")
	last := strings.LastIndex(out, "==> "+smallHeap+" <==")
	require.True(t, first >= 0 && second > first && last > second, out)
	assert.Equal(t, 3, strings.Count(out, "[target_found] pointer: 0x4200 ::Node\n"))
	assert.Equal(t, 3, strings.Count(out, "[2] <root> -> task -> 0x4000 ::Task\n"), out)
}

func TestTraceParallelTrapKeepsOutput(t *testing.T) {
	corrupt := writeCorruptHeap(t)
	cfg := filepath.Join(t.TempDir(), "gctrail.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("[output]\ncolor = \"off\"\n"), 0o600))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", cfg, "trace", "-j", "2", "-t", "0x2200", "-t", "0x4200", smallHeap, corrupt})

	var abort *trace.Abort
	func() {
		defer func() { abort, _ = recover().(*trace.Abort) }()
		_ = root.ExecuteContext(context.Background())
	}()
	require.NotNil(t, abort)
	assert.Equal(t, trace.AbortTrap, abort.Kind)

	got := out.String()
	good := strings.Index(got, "==> "+smallHeap+" <==")
	bad := strings.Index(got, "==> "+corrupt+" <==")
	require.True(t, good >= 0 && bad > good, got)
	assert.Contains(t, got[good:bad], "[gc_trace] done\n")
	assert.Contains(t, got[bad:], "[target_found] pointer: 0x4200 ::Node\n")
	assert.Contains(t, got[bad:], "[gc_record_field_edge] from: 0x3100, to: 0x5000, byte_offset: 4")
	assert.Contains(t, got[bad:], "[FlightRecorder] num entries:")
	assert.True(t, strings.HasSuffix(got, "BREAK INTO DEBUGGER\n"), got)
}

func TestTraceWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.pprof")
	mem := filepath.Join(dir, "mem.pprof")
	_, err := execute(t, "trace", "-t", "0x4200", "--cpu-profile", cpu, "--mem-profile", mem, smallHeap)
	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, mem)
}

func TestTraceRejectsBadInput(t *testing.T) {
	cases := map[string][]string{
		"bad address":   {"trace", "-t", "zz", smallHeap},
		"null address":  {"trace", "-t", "0", smallHeap},
		"zero capacity": {"trace", "--capacity", "0", smallHeap},
		"bad format":    {"trace", "--dump-format", "xml", smallHeap},
		"bad color":     {"--color", "sometimes", "trace", smallHeap},
		"missing heap":  {"trace", "-t", "0x10", "does-not-exist.heap"},
		"no args":       {"trace"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestPackAndInspect(t *testing.T) {
	packed := filepath.Join(t.TempDir(), "small.heap")
	out, err := execute(t, "pack", "-o", packed, smallHeap)
	require.NoError(t, err)
	assert.Equal(t, "packed "+smallHeap+" -> "+packed+" (13 objects, 2 roots)\n", out)

	out, err = execute(t, "inspect", "--type", "Node", packed)
	require.NoError(t, err)
	assert.Equal(t,
		"roots:\n"+
			"[0] main -> 0x1000 ::Main\n"+
			"[1] task -> 0x4000 ::Task\n"+
			"objects: 5\n"+
			"0x2100 ::Node (struct)\n"+
			"0x2200 ::Node (struct)\n"+
			"0x4200 ::Node (struct)\n"+
			"0x6000 ::Node (struct)\n"+
			"0x7000 ::Node (struct)\n",
		out)
}

func TestPackRejectsBadOffsets(t *testing.T) {
	corrupt := writeCorruptHeap(t)
	packed := filepath.Join(t.TempDir(), "corrupt.heap")

	_, err := execute(t, "pack", "-o", packed, corrupt)
	require.ErrorIs(t, err, heap.ErrBadFieldRef)
	assert.NoFileExists(t, packed)

	_, err = execute(t, "pack", "--allow-bad-offsets", "-o", packed, corrupt)
	require.NoError(t, err)
	assert.FileExists(t, packed)
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--format", "json", "--hash")
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "gctrail", payload["tool"])
	assert.NotEmpty(t, payload["version"])
	assert.Equal(t, "unknown", payload["git_commit"])
	_, hasDate := payload["build_date"]
	assert.False(t, hasDate)
}

func TestVersionPretty(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "gctrail "), out)
	assert.Contains(t, out, versionTagline)

	_, err = execute(t, "version", "--format", "yaml")
	assert.Error(t, err)
}
