package trace

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

const (
	// DefaultCapacity is the number of entries kept by a default recorder.
	DefaultCapacity = 2048
	// DefaultMessageSize is the width of a message slot in bytes.
	DefaultMessageSize = 512
)

// Recorder keeps the last N entries in memory (circular buffer).
// It is not safe for concurrent use: a recorder belongs to the goroutine that
// runs the collection pass.
type Recorder struct {
	entries  []Entry
	messages []byte // capacity * msgSize bytes
	msgSize  int
	capacity int
	end      int  // next write position
	full     bool // has wrapped around
	enabled  bool
	abort    AbortHandler
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithAbortHandler routes unrecoverable conditions to h instead of
// DefaultAbortHandler.
func WithAbortHandler(h AbortHandler) Option {
	return func(r *Recorder) { r.abort = h }
}

// NewRecorder creates a disabled Recorder with the given capacity and message
// slot width. A zero capacity or message size is a fatal configuration error.
func NewRecorder(capacity, messageSize int, opts ...Option) *Recorder {
	r := &Recorder{}
	for _, opt := range opts {
		opt(r)
	}
	if capacity <= 0 {
		Fatal(r.abort, AbortExit, "Recorder.ctor", "capacity is %d", capacity)
	}
	if messageSize <= 0 {
		Fatal(r.abort, AbortExit, "Recorder.ctor", "message size is %d", messageSize)
	}
	r.entries = make([]Entry, capacity)
	r.messages = make([]byte, capacity*messageSize)
	r.capacity = capacity
	r.msgSize = messageSize
	return r
}

// Enable switches recording on or off.
func (r *Recorder) Enable(on bool) {
	r.enabled = on
}

// Enabled reports whether Insert records anything.
func (r *Recorder) Enabled() bool {
	return r != nil && r.enabled && r.capacity > 0
}

// Insert records the call-site metadata in the next slot and returns the
// slot's message buffer, cleared. The caller writes a NUL-terminated message
// into it directly. When the recorder is disabled Insert does nothing and
// returns false so no formatting work is wasted.
func (r *Recorder) Insert(source string, line uint64, function string) ([]byte, bool) {
	if !r.Enabled() {
		return nil, false
	}

	r.entries[r.end] = Entry{Source: source, Line: line, Function: function}
	off := r.end * r.msgSize
	buf := r.messages[off : off+r.msgSize : off+r.msgSize]
	clear(buf)

	r.end++
	if r.end == r.capacity {
		r.full = true
		r.end = 0
	}
	return buf, true
}

// Recordf inserts an entry for the caller and formats the message into its
// slot, truncating to the slot width.
func (r *Recorder) Recordf(format string, args ...any) {
	if !r.Enabled() {
		return
	}
	pc, file, line, ok := runtime.Caller(1)
	fn := "?"
	if ok {
		if f := runtime.FuncForPC(pc); f != nil {
			fn = shortFuncName(f.Name())
		}
	}
	ln, err := safecast.Conv[uint64](line)
	if err != nil {
		ln = 0
	}
	buf, _ := r.Insert(file, ln, fn)
	w := slotWriter{buf: buf}
	fmt.Fprintf(&w, format, args...)
	w.terminate()
}

// Size returns the number of live entries, capped at the capacity.
func (r *Recorder) Size() int {
	if r.full {
		return r.capacity
	}
	return r.end
}

// Capacity returns the maximum number of entries.
func (r *Recorder) Capacity() int {
	return r.capacity
}

// MessageSize returns the width of a message slot in bytes.
func (r *Recorder) MessageSize() int {
	return r.msgSize
}

// Reset forgets every entry without releasing storage.
func (r *Recorder) Reset() {
	r.end = 0
	r.full = false
}

// physical converts a logical index (0 is the oldest entry) to a slot.
func (r *Recorder) physical(i int) int {
	if i < 0 || i >= r.Size() {
		Fatal(r.abort, AbortExit, "Recorder.physical", "invalid index: %d", i)
	}
	if !r.full {
		return i
	}
	if i < r.capacity-r.end {
		return r.end + i
	}
	return i - (r.capacity - r.end)
}

func (r *Recorder) message(slot int) []byte {
	buf := r.messages[slot*r.msgSize : (slot+1)*r.msgSize]
	if n := bytes.IndexByte(buf, 0); n >= 0 {
		return buf[:n]
	}
	return buf
}

// Records returns a copy of the newest min(Size, limit) entries, oldest first.
func (r *Recorder) Records(limit int) []Record {
	n := min(r.Size(), limit)
	if n <= 0 {
		return nil
	}
	out := make([]Record, 0, n)
	for i, j := r.Size()-n, n-1; i < r.Size(); i, j = i+1, j-1 {
		k := r.physical(i)
		out = append(out, Record{
			Entry:   r.entries[k],
			Index:   j,
			Message: string(r.message(k)),
		})
	}
	return out
}

// Dump writes a header and up to limit entries, oldest to newest, in text
// format. Every line is handed to w with a single Write call.
func (r *Recorder) Dump(w io.Writer, limit int) error {
	return r.DumpFormat(w, limit, FormatText)
}

// DumpAll writes every live entry.
func (r *Recorder) DumpAll(w io.Writer) error {
	return r.Dump(w, r.Size())
}

// DumpFormat writes up to limit entries in the given format. The text format
// starts with a header line; NDJSON emits one object per entry.
func (r *Recorder) DumpFormat(w io.Writer, limit int, format Format) error {
	n := max(0, min(r.Size(), limit))
	if format == FormatText {
		header := "[FlightRecorder] empty\n"
		if r.Size() > 0 {
			header = "[FlightRecorder] num entries: " + strconv.Itoa(n) + "\n"
		}
		if _, err := io.WriteString(w, header); err != nil {
			return err
		}
	}

	line := make([]byte, 0, 128+r.msgSize)
	for i, j := r.Size()-n, n-1; i < r.Size(); i, j = i+1, j-1 {
		k := r.physical(i)
		line = FormatEntry(line[:0], j, r.entries[k], r.message(k), format)
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func shortFuncName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func basename(path string) string {
	return filepath.Base(path)
}

// slotWriter writes into a fixed message slot, silently truncating and
// keeping room for the terminating NUL.
type slotWriter struct {
	buf []byte
	n   int
}

func (w *slotWriter) Write(p []byte) (int, error) {
	room := len(w.buf) - 1 - w.n
	if room > 0 {
		w.n += copy(w.buf[w.n:w.n+room], p)
	}
	return len(p), nil
}

func (w *slotWriter) terminate() {
	if w.n < len(w.buf) {
		w.buf[w.n] = 0
	}
}
