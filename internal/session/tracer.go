package session

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
	"go.uber.org/zap"

	"gctrail/internal/console"
	"gctrail/internal/reach"
	"gctrail/internal/trace"
)

var (
	// ErrSessionActive is returned when targets change or a session starts
	// while another one is recording.
	ErrSessionActive = errors.New("session already recording")
	// ErrNilTarget is returned for the zero identity.
	ErrNilTarget = errors.New("nil target")
)

// DefaultMissDump is the number of flight recorder entries printed when an
// edge names an unknown parent.
const DefaultMissDump = 128

// State is the session state machine: Idle -> Recording -> Idle.
type State uint8

const (
	StateIdle State = iota
	StateRecording
)

// String returns the string representation of State.
func (s State) String() string {
	if s == StateRecording {
		return "recording"
	}
	return "idle"
}

// Host is what the tracer needs from the host runtime besides the edges.
type Host interface {
	reach.FieldResolver
	reach.Describer
}

// Found describes a target located during a session.
type Found struct {
	ID         reach.ID
	Depth      int  // number of edges printed for the chain
	Incomplete bool // the chain ends in <unknown>
}

// Tracer is the long-lived tracing context: it owns the flight recorder, the
// reachability index and the watch set, and receives edges from the host
// collector. Construct one at start-up and reuse it across sessions.
// A Tracer is not safe for concurrent use.
type Tracer struct {
	rec   *trace.Recorder
	index *reach.Index
	watch *reach.WatchSet
	out   *console.Printer
	host  Host
	log   *zap.Logger
	abort trace.AbortHandler

	missDump int
	reserve  int

	state State
	found []Found
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithRecorder uses rec as the flight recorder.
func WithRecorder(rec *trace.Recorder) Option {
	return func(t *Tracer) { t.rec = rec }
}

// WithLogger sets the operational logger.
func WithLogger(log *zap.Logger) Option {
	return func(t *Tracer) { t.log = log }
}

// WithAbortHandler routes layout corruption to h.
func WithAbortHandler(h trace.AbortHandler) Option {
	return func(t *Tracer) { t.abort = h }
}

// WithMissDump sets how many recorder entries are printed on a parent miss.
func WithMissDump(n int) Option {
	return func(t *Tracer) { t.missDump = n }
}

// WithReserve pre-sizes the index at session start.
func WithReserve(n int) Option {
	return func(t *Tracer) { t.reserve = n }
}

// New creates an idle Tracer printing to out.
func New(out *console.Printer, host Host, opts ...Option) *Tracer {
	t := &Tracer{
		watch:    reach.NewWatchSet(),
		out:      out,
		host:     host,
		log:      zap.NewNop(),
		missDump: DefaultMissDump,
		reserve:  1 << 16,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.rec == nil {
		t.rec = trace.NewRecorder(trace.DefaultCapacity, trace.DefaultMessageSize, trace.WithAbortHandler(t.abort))
	}
	t.index = reach.NewIndex(t.parentMissing)
	return t
}

// Recorder returns the flight recorder.
func (t *Tracer) Recorder() *trace.Recorder { return t.rec }

// State returns the current session state.
func (t *Tracer) State() State { return t.state }

// Targets returns the pending targets in ascending order.
func (t *Tracer) Targets() []reach.ID { return t.watch.Pending() }

// AddTarget registers id to be searched for by the next session.
func (t *Tracer) AddTarget(id reach.ID) error {
	if t.state == StateRecording {
		return ErrSessionActive
	}
	if id == 0 {
		return ErrNilTarget
	}
	t.out.Linef("[gc_addptr] recording: %s of type %s", id, t.host.Describe(id))
	t.watch.Add(id)
	return nil
}

func (t *Tracer) recording() bool {
	return t.state == StateRecording
}

// ReportRoot indexes a root such as the main module or a task.
func (t *Tracer) ReportRoot(id reach.ID, name string) {
	t.rec.Recordf("root: %#x, name: %s", uint64(id), name)
	if !t.recording() || id == 0 {
		return
	}
	ref, created := t.index.RecordRoot(id, name)
	if !created {
		return
	}
	t.rec.Recordf("root inserted")
	t.targetFound(ref)
}

// ReportBinding indexes a value held in a module's binding table.
func (t *Tracer) ReportBinding(module, to reach.ID, name string) {
	t.rec.Recordf("module: %#x, value: %#x, name: %s", uint64(module), uint64(to), name)
	t.record(module, to, reach.KindModuleBinding, name, 0)
}

// ReportBindingGlobalRef indexes a value reached through a global reference
// of a module binding.
func (t *Tracer) ReportBindingGlobalRef(module, to reach.ID, name string) {
	if !t.recording() || to == 0 {
		return
	}
	t.ReportBinding(module, to, name+"_globalref")
}

// ReportTaskFrame indexes the top frame of a task's stack.
func (t *Tracer) ReportTaskFrame(task, frame reach.ID) {
	t.rec.Recordf("task: %#x, frame: %#x", uint64(task), uint64(frame))
	t.record(task, frame, reach.KindTaskFrame, "", 0)
}

// ReportFrameLink indexes a frame or object reached from a stack frame.
func (t *Tracer) ReportFrameLink(from, to reach.ID) {
	t.rec.Recordf("from: %#x, to: %#x", uint64(from), uint64(to))
	t.record(from, to, reach.KindStackFrame, "", 0)
}

// ReportArrayEdge indexes an array element.
func (t *Tracer) ReportArrayEdge(from, to reach.ID, index uint64) {
	t.rec.Recordf("from: %#x, to: %#x, index: %d", uint64(from), uint64(to), index)
	t.record(from, to, reach.KindArrayIndex, "", index)
}

// ReportFieldEdge indexes an object stored in a field of from at the given
// byte offset. The offset is resolved to a field name by the host; a slot
// that does not hold a pointer means the layout is corrupt and traps.
func (t *Tracer) ReportFieldEdge(from, to reach.ID, offset uint64) {
	t.rec.Recordf("from: %#x, to: %#x, offset: %d", uint64(from), uint64(to), offset)
	if !t.recording() {
		return
	}
	if _, ok := t.index.Lookup(to); ok {
		return
	}
	field, err := t.host.ResolveField(from, offset)
	if err != nil {
		t.out.Linef("[gc_record_field_edge] from: %s, to: %s, byte_offset: %d, type: %s, error: %v",
			from, to, offset, t.host.Describe(from), err)
		_ = t.rec.Dump(t.out, t.missDump)
		t.out.Linef("BREAK INTO DEBUGGER")
		trace.Fatal(t.abort, trace.AbortTrap, "Tracer.ReportFieldEdge", "cannot resolve offset %d in %s: %v", offset, from, err)
		return
	}
	pos, err := safecast.Conv[uint64](field.Index)
	if err != nil {
		pos = 0
	}
	t.record(from, to, reach.KindField, field.Name, pos)
}

// ReportInternalEdge is logged only.
func (t *Tracer) ReportInternalEdge(from, to reach.ID) {
	t.rec.Recordf("from: %#x, to: %#x", uint64(from), uint64(to))
}

// ReportOpaqueEdge is logged only: the memory is not made of references.
func (t *Tracer) ReportOpaqueEdge(from reach.ID, bytes uint64) {
	t.rec.Recordf("from: %#x, bytes: %d", uint64(from), bytes)
}

func (t *Tracer) record(from, to reach.ID, kind reach.EdgeKind, label string, pos uint64) {
	if !t.recording() {
		return
	}
	ref, created := t.index.RecordEdge(from, to, kind, label, pos)
	if !created {
		return
	}
	t.rec.Recordf("item inserted")
	t.targetFound(ref)
}

// parentMissing runs when an edge names a parent that was never reported.
// The node stays in the index with an <unknown> parent.
func (t *Tracer) parentMissing(n reach.Node, from reach.ID) {
	_ = t.rec.Dump(t.out, t.missDump)
	t.out.Linef("[ERROR] Cannot find the parent %s for %s (%s)", from, n.ID, n.Kind)
	t.log.Warn("parent not indexed",
		zap.Stringer("from", from),
		zap.Stringer("to", n.ID),
		zap.Stringer("kind", n.Kind))
}

func (t *Tracer) targetFound(ref reach.NodeRef) {
	n := t.index.Node(ref)
	if !t.watch.Has(n.ID) {
		return
	}
	t.out.Targetf("[target_found] pointer: %s ::%s", n.ID, t.host.Describe(n.ID))
	_ = t.index.WriteChain(t.out.Chain(), ref, t.host)
	t.out.Blank()

	steps, _ := t.index.Chain(ref)
	last := t.index.Node(steps[len(steps)-1])
	t.found = append(t.found, Found{
		ID:         n.ID,
		Depth:      len(steps),
		Incomplete: last.Kind != reach.KindRoot,
	})
	t.watch.Remove(n.ID)
}

func (t *Tracer) String() string {
	return fmt.Sprintf("Tracer{state: %s, targets: %d, indexed: %d}", t.state, t.watch.Len(), t.index.Len())
}
