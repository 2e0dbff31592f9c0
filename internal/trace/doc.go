// Package trace provides the flight recorder used during a traced collection.
//
// The flight recorder keeps the last N low-level events of a collection pass
// in a fixed circular buffer so they can be inspected after something goes
// wrong.
//
// # Usage
//
//	rec := trace.NewRecorder(2048, 512)
//	rec.Enable(true)
//	rec.Recordf("from: %#x, to: %#x", from, to)
//	rec.Dump(os.Stdout, 128)
//
// # Storage
//
// A Recorder owns capacity entry slots plus capacity*messageSize bytes of
// message storage allocated once at construction. Insert never allocates and
// never fails: once the buffer is full the oldest slot is overwritten.
//
// A message is the content of its slot up to the first NUL byte.
//
// # Aborts
//
// Construction with a zero capacity and out-of-range logical indexes are not
// recoverable. They are routed to an AbortHandler instead of being returned as
// errors, see Abort.
//
// # Context Propagation
//
// Recorders are propagated through a session via context:
//
//	ctx = trace.WithRecorder(ctx, rec)
//	rec := trace.FromContext(ctx)
package trace
