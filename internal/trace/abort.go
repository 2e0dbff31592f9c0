package trace

import (
	"fmt"
	"os"
	"runtime"
)

// AbortKind separates configuration failures from memory-layout corruption.
type AbortKind uint8

const (
	// AbortExit terminates the process after printing the diagnostic.
	AbortExit AbortKind = iota + 1
	// AbortTrap stops into a debugger; the state that produced it is corrupt.
	AbortTrap
)

// String returns the string representation of AbortKind.
func (k AbortKind) String() string {
	switch k {
	case AbortExit:
		return "exit"
	case AbortTrap:
		return "trap"
	default:
		return "unknown"
	}
}

// Abort is an unrecoverable outcome. It is never returned as an error value
// from the hot path; it is handed to an AbortHandler which must not return
// control to the caller.
type Abort struct {
	Kind    AbortKind
	Origin  string // function that detected the condition
	Message string
}

func (a *Abort) Error() string {
	return fmt.Sprintf("%s: %s", a.Origin, a.Message)
}

// AbortHandler receives an Abort. Implementations must not return normally:
// they exit the process, trap, or panic.
type AbortHandler func(*Abort)

// DefaultAbortHandler prints the diagnostic to stderr and terminates.
// Traps call runtime.Breakpoint when GCTRAIL_BREAK=1 is set, otherwise they
// panic with the Abort so the goroutine stack is printed.
func DefaultAbortHandler(a *Abort) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", a.Error())
	if a.Kind == AbortTrap {
		if os.Getenv("GCTRAIL_BREAK") == "1" {
			runtime.Breakpoint()
		}
		panic(a)
	}
	os.Exit(1)
}

// PanicAbortHandler panics with the Abort. Useful in tests and in embedders
// that convert aborts into crashes of their own.
func PanicAbortHandler(a *Abort) {
	panic(a)
}

func raise(h AbortHandler, a *Abort) {
	if h == nil {
		h = DefaultAbortHandler
	}
	h(a)
	// A handler that returns would let the caller continue past a broken
	// invariant.
	panic(a)
}

// Fatal routes an abort of the given kind through h.
func Fatal(h AbortHandler, kind AbortKind, origin, format string, args ...any) {
	raise(h, &Abort{Kind: kind, Origin: origin, Message: fmt.Sprintf(format, args...)})
}
