package session_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gctrail/internal/console"
	"gctrail/internal/reach"
	"gctrail/internal/session"
	"gctrail/internal/trace"
)

type fakeHost struct {
	fields map[uint64]reach.FieldRef
}

func (h fakeHost) ResolveField(from reach.ID, offset uint64) (reach.FieldRef, error) {
	f, ok := h.fields[offset]
	if !ok {
		return reach.FieldRef{}, fmt.Errorf("no pointer field at offset %d", offset)
	}
	return f, nil
}

func (fakeHost) Describe(id reach.ID) string {
	return "T" + id.String()
}

// script is a collector replaying a fixed sequence of edge reports.
type script func(sink reach.EdgeSink)

func (s script) Collect(_ context.Context, sink reach.EdgeSink) error {
	s(sink)
	return nil
}

type warmScript struct {
	script
	warmed int
	err    error
}

func (w *warmScript) Warm(context.Context) error {
	w.warmed++
	return w.err
}

func newTracer(t *testing.T, opts ...session.Option) (*session.Tracer, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	host := fakeHost{fields: map[uint64]reach.FieldRef{8: {Index: 1, Name: "next"}}}
	rec := trace.NewRecorder(64, 128, trace.WithAbortHandler(trace.PanicAbortHandler))
	opts = append([]session.Option{
		session.WithRecorder(rec),
		session.WithAbortHandler(trace.PanicAbortHandler),
	}, opts...)
	return session.New(console.New(&out, console.ColorOff), host, opts...), &out
}

func TestRunFindsTargetThroughBinding(t *testing.T) {
	tr, out := newTracer(t)
	require.NoError(t, tr.AddTarget(0xb0))

	report, err := tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
		sink.ReportRoot(0xa0, "main")
		sink.ReportBinding(0xa0, 0xb0, "field1")
	}))
	require.NoError(t, err)

	assert.Contains(t, out.String(),
		"[target_found] pointer: 0xb0 ::T0xb0\n"+
			"[0] 0xa0 ::T0xa0 -> field1 -> 0xb0 ::T0xb0\n"+
			"[1] <root> -> main -> 0xa0 ::T0xa0\n\n")
	assert.Contains(t, out.String(), "[gc_trace] all targets were detected\n")
	assert.True(t, strings.HasSuffix(out.String(), "[gc_trace] done\n"))

	require.Len(t, report.Found, 1)
	assert.Equal(t, session.Found{ID: 0xb0, Depth: 2}, report.Found[0])
	assert.Empty(t, report.Missing)
	assert.Equal(t, 2, report.Visited)
	assert.NotEmpty(t, report.SessionID)
	assert.Empty(t, tr.Targets())
	assert.Equal(t, session.StateIdle, tr.State())
}

func TestRunReportsMissingTarget(t *testing.T) {
	tr, out := newTracer(t)
	require.NoError(t, tr.AddTarget(0xff))

	report, err := tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
		sink.ReportRoot(0xa0, "main")
		sink.ReportArrayEdge(0xa0, 0xa8, 0)
	}))
	require.NoError(t, err)

	assert.Equal(t, []reach.ID{0xff}, report.Missing)
	assert.Empty(t, report.Found)
	assert.Contains(t, out.String(),
		"[gc_trace] the following pointers were not detected:\n[0] pointer: 0xff\n")
	assert.Empty(t, tr.Targets())
}

func TestRunWithoutTargets(t *testing.T) {
	tr, out := newTracer(t)
	called := false
	report, err := tr.Run(context.Background(), script(func(reach.EdgeSink) { called = true }))
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, &session.Report{}, report)
	assert.Equal(t, "[gc_trace] There are no targets to trace...\n", out.String())
}

func TestTargetReportedOnce(t *testing.T) {
	tr, out := newTracer(t)
	require.NoError(t, tr.AddTarget(0xc0))

	report, err := tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
		sink.ReportRoot(0xa0, "main")
		sink.ReportRoot(0xa1, "task")
		sink.ReportFrameLink(0xa0, 0xc0)
		sink.ReportFrameLink(0xa1, 0xc0)
		sink.ReportArrayEdge(0xa1, 0xc0, 3)
		sink.ReportRoot(0xc0, "late")
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out.String(), "[target_found]"))
	require.Len(t, report.Found, 1)
}

func TestTargetThatIsRoot(t *testing.T) {
	tr, out := newTracer(t)
	require.NoError(t, tr.AddTarget(0xa0))

	_, err := tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
		sink.ReportRoot(0xa0, "main")
	}))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "[0] <root> -> main -> 0xa0 ::T0xa0\n")
}

func TestFieldEdgeUsesResolver(t *testing.T) {
	tr, out := newTracer(t)
	require.NoError(t, tr.AddTarget(0xd0))

	_, err := tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
		sink.ReportRoot(0xa0, "main")
		sink.ReportTaskFrame(0xa0, 0xf0)
		sink.ReportFieldEdge(0xf0, 0xd0, 8)
	}))
	require.NoError(t, err)
	assert.Contains(t, out.String(),
		"[0] 0xf0 ::T0xf0 -> next (field position: 1) -> 0xd0 ::T0xd0\n"+
			"[1] 0xa0 ::T0xa0 -> 0xf0 ::T0xf0\n"+
			"[2] <root> -> main -> 0xa0 ::T0xa0\n")
}

func TestFieldEdgeUnresolvableTraps(t *testing.T) {
	tr, out := newTracer(t)
	require.NoError(t, tr.AddTarget(0xd0))

	var abort *trace.Abort
	func() {
		defer func() { abort, _ = recover().(*trace.Abort) }()
		_, _ = tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
			sink.ReportRoot(0xa0, "main")
			sink.ReportFieldEdge(0xa0, 0xd0, 24)
		}))
	}()
	require.NotNil(t, abort)
	assert.Equal(t, trace.AbortTrap, abort.Kind)
	assert.Contains(t, out.String(), "[FlightRecorder] num entries:")
	assert.Contains(t, out.String(), "BREAK INTO DEBUGGER")
}

func TestRecoveredTrapLeavesTracerIdle(t *testing.T) {
	tr, out := newTracer(t)
	require.NoError(t, tr.AddTarget(0xd0))

	func() {
		defer func() { _ = recover() }()
		_, _ = tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
			sink.ReportRoot(0xa0, "main")
			sink.ReportFieldEdge(0xa0, 0xd0, 24)
		}))
	}()
	assert.Equal(t, session.StateIdle, tr.State())
	assert.False(t, tr.Recorder().Enabled())
	assert.Empty(t, tr.Targets())

	out.Reset()
	require.NoError(t, tr.AddTarget(0xd0))
	report, err := tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
		sink.ReportRoot(0xa0, "main")
		sink.ReportFieldEdge(0xa0, 0xd0, 8)
	}))
	require.NoError(t, err)
	require.Len(t, report.Found, 1)
	assert.Equal(t, 2, report.Visited)
	assert.Contains(t, out.String(), "[0] 0xa0 ::T0xa0 -> next (field position: 1) -> 0xd0 ::T0xd0\n")
}

func TestFieldEdgeToKnownObjectSkipsResolver(t *testing.T) {
	tr, _ := newTracer(t)
	require.NoError(t, tr.AddTarget(0xee))

	_, err := tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
		sink.ReportRoot(0xa0, "main")
		sink.ReportRoot(0xd0, "other")
		// offset 24 is unknown to the host; the edge must be a no-op
		sink.ReportFieldEdge(0xa0, 0xd0, 24)
	}))
	require.NoError(t, err)
}

func TestMissingParentDegrades(t *testing.T) {
	tr, out := newTracer(t, session.WithMissDump(2))
	require.NoError(t, tr.AddTarget(0xc0))

	report, err := tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
		sink.ReportRoot(0xa0, "main")
		sink.ReportArrayEdge(0xbad, 0xc0, 2)
	}))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "[FlightRecorder] num entries: 2\n")
	assert.Contains(t, out.String(), "[ERROR] Cannot find the parent 0xbad for 0xc0 (array-index)\n")
	assert.Contains(t, out.String(), "[0] <unknown> -> (field position: 2) -> 0xc0 ::T0xc0\n")
	require.Len(t, report.Found, 1)
	assert.True(t, report.Found[0].Incomplete)
}

func TestGlobalRefBinding(t *testing.T) {
	tr, out := newTracer(t)
	require.NoError(t, tr.AddTarget(0xb0))

	_, err := tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
		sink.ReportRoot(0xa0, "main")
		sink.ReportBindingGlobalRef(0xa0, 0, "ignored")
		sink.ReportBindingGlobalRef(0xa0, 0xb0, "cache")
	}))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "-> cache_globalref -> 0xb0")
}

func TestOpaqueAndInternalEdgesOnlyLog(t *testing.T) {
	tr, _ := newTracer(t)
	require.NoError(t, tr.AddTarget(0xb0))

	var during []trace.Record
	report, err := tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
		sink.ReportRoot(0xa0, "main")
		sink.ReportInternalEdge(0xa0, 0xb0)
		sink.ReportOpaqueEdge(0xa0, 64)
		during = tr.Recorder().Records(2)
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Visited)
	assert.Equal(t, []reach.ID{0xb0}, report.Missing)

	require.Len(t, during, 2)
	assert.Equal(t, "from: 0xa0, to: 0xb0", during[0].Message)
	assert.Equal(t, "from: 0xa0, bytes: 64", during[1].Message)
	assert.Equal(t, "session.(*Tracer).ReportOpaqueEdge", during[1].Function)
}

func TestEdgesOutsideSessionAreIgnored(t *testing.T) {
	tr, _ := newTracer(t)
	tr.ReportRoot(0xa0, "main")
	tr.ReportBinding(0xa0, 0xb0, "x")
	assert.Equal(t, 0, tr.Recorder().Size())
	assert.False(t, tr.Recorder().Enabled())
}

func TestAddTargetRejectsNilAndActiveSession(t *testing.T) {
	tr, _ := newTracer(t)
	assert.ErrorIs(t, tr.AddTarget(0), session.ErrNilTarget)
	require.NoError(t, tr.AddTarget(0xb0))

	var addErr, runErr error
	_, err := tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
		sink.ReportRoot(0xa0, "main")
		addErr = tr.AddTarget(0xc0)
		_, runErr = tr.Run(context.Background(), script(func(reach.EdgeSink) {}))
	}))
	require.NoError(t, err)
	assert.ErrorIs(t, addErr, session.ErrSessionActive)
	assert.ErrorIs(t, runErr, session.ErrSessionActive)
}

func TestCollectorErrorIsReturnedAfterTeardown(t *testing.T) {
	tr, out := newTracer(t)
	require.NoError(t, tr.AddTarget(0xb0))

	boom := errors.New("boom")
	report, err := tr.Run(context.Background(), collectorFunc(func(sink reach.EdgeSink) error {
		sink.ReportRoot(0xa0, "main")
		return boom
	}))
	require.ErrorIs(t, err, boom)
	require.NotNil(t, report)
	assert.Equal(t, session.StateIdle, tr.State())
	assert.False(t, tr.Recorder().Enabled())
	assert.Contains(t, out.String(), "[gc_trace] done\n")
}

func TestWarmerRunsBeforeRecording(t *testing.T) {
	tr, _ := newTracer(t)
	require.NoError(t, tr.AddTarget(0xb0))

	w := &warmScript{script: script(func(sink reach.EdgeSink) {
		sink.ReportRoot(0xb0, "main")
	})}
	report, err := tr.Run(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 1, w.warmed)
	assert.Len(t, report.Found, 1)

	w.err = errors.New("no heuristics")
	require.NoError(t, tr.AddTarget(0xb0))
	_, err = tr.Run(context.Background(), w)
	assert.ErrorContains(t, err, "warm up collector")
	assert.Empty(t, tr.Targets())
}

func TestTracerReusableAcrossSessions(t *testing.T) {
	tr, _ := newTracer(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.AddTarget(0xb0))
		report, err := tr.Run(context.Background(), script(func(sink reach.EdgeSink) {
			sink.ReportRoot(0xa0, "main")
			sink.ReportBinding(0xa0, 0xb0, "v")
		}))
		require.NoError(t, err)
		require.Len(t, report.Found, 1, "session %d", i)
	}
}

type collectorFunc func(sink reach.EdgeSink) error

func (f collectorFunc) Collect(_ context.Context, sink reach.EdgeSink) error { return f(sink) }
