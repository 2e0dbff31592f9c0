package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gctrail/internal/console"
	"gctrail/internal/observ"
	"gctrail/internal/reach"
	"gctrail/internal/trace"
)

// Collector is the host's full-collection entry point. Collect must report
// every edge it traverses to sink, parents first, and return once the pass
// is complete.
type Collector interface {
	Collect(ctx context.Context, sink reach.EdgeSink) error
}

// Warmer is implemented by collectors whose heuristics need a few untraced
// passes before a full collection behaves.
type Warmer interface {
	Warm(ctx context.Context) error
}

// Report is the outcome of one session.
type Report struct {
	SessionID string
	Found     []Found
	Missing   []reach.ID
	Visited   int
	Elapsed   time.Duration
}

// Run performs one traced full collection. Targets registered with
// AddTarget are searched for; each one found is printed with its chain as
// soon as it is indexed. At the end the targets that were not found are
// listed and all session state is cleared.
//
// A session that finds nothing is not an error. Errors from the collector
// are returned after the tracer is back to idle.
func (t *Tracer) Run(ctx context.Context, c Collector) (*Report, error) {
	if t.state == StateRecording {
		return nil, ErrSessionActive
	}
	if t.watch.Len() == 0 {
		t.out.Linef("[gc_trace] There are no targets to trace...")
		return &Report{}, nil
	}

	t.out.Headerf("[gc_trace] Checking for the following targets:")
	for i, id := range t.watch.Pending() {
		t.out.Linef("[%d] pointer: %s", i, id)
	}

	report := &Report{SessionID: uuid.NewString()}
	log := t.log.With(zap.String("session_id", report.SessionID))
	log.Info("session starting", zap.Int("targets", t.watch.Len()))

	t.index.Clear()
	t.index.Reserve(t.reserve)
	t.found = t.found[:0]
	timer := observ.NewTimer()

	if w, ok := c.(Warmer); ok {
		idx := timer.Begin("warmup")
		err := w.Warm(ctx)
		timer.End(idx, "")
		if err != nil {
			t.watch.Clear()
			log.Error("warm-up failed", zap.Error(err))
			return nil, fmt.Errorf("warm up collector: %w", err)
		}
	}

	t.rec.Reset()
	t.state = StateRecording
	t.rec.Enable(true)
	defer t.endSession()

	t.out.Linef("[gc_trace] running the garbage collector... ")
	idx := timer.Begin("collect")
	collectErr := c.Collect(trace.WithRecorder(ctx, t.rec), t)
	report.Visited = t.index.Len()
	report.Elapsed = timer.End(idx, console.Count(report.Visited)+" objects")
	t.rec.Enable(false)

	t.out.Linef("[gc_trace] GC executed in %s, %s objects indexed", observ.Seconds(report.Elapsed), console.Count(report.Visited))

	report.Missing = t.watch.Pending()
	if len(report.Missing) > 0 {
		t.out.Missingf("[gc_trace] the following pointers were not detected:")
		for i, id := range report.Missing {
			t.out.Missingf("[%d] pointer: %s", i, id)
		}
	} else {
		t.out.Linef("[gc_trace] all targets were detected")
	}
	report.Found = append([]Found(nil), t.found...)
	t.out.Linef("[gc_trace] done")

	log.Info("session finished",
		zap.Int("found", len(report.Found)),
		zap.Int("missing", len(report.Missing)),
		zap.Int("visited", report.Visited),
		zap.Duration("elapsed", report.Elapsed))

	if collectErr != nil {
		return report, fmt.Errorf("collect: %w", collectErr)
	}
	return report, nil
}

// endSession returns the tracer to idle. It also runs when a trap unwinds
// through Run, so a recovered abort leaves a reusable tracer.
func (t *Tracer) endSession() {
	t.rec.Enable(false)
	t.watch.Clear()
	t.index.Clear()
	t.found = t.found[:0]
	t.state = StateIdle
}
