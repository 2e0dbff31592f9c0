// Package console writes diagnostic lines to a console-like sink.
//
// Every line is handed to the underlying writer in one Write call and flushed
// right away, so output produced just before a crash is not lost.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Printer writes whole lines and flushes after each one.
type Printer struct {
	w       io.Writer
	colored bool

	target  *color.Color
	missing *color.Color
	marker  *color.Color
	header  *color.Color
}

// New creates a Printer writing to w.
func New(w io.Writer, mode ColorMode) *Printer {
	p := &Printer{
		w:       w,
		colored: useColor(mode, w),
		target:  color.New(color.FgGreen, color.Bold),
		missing: color.New(color.FgRed, color.Bold),
		marker:  color.New(color.FgYellow),
		header:  color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{p.target, p.missing, p.marker, p.header} {
		if p.colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Colored reports whether the printer emits ANSI colour codes.
func (p *Printer) Colored() bool {
	return p.colored
}

// Write passes b through unchanged and flushes. Callers are expected to hand
// over complete lines.
func (p *Printer) Write(b []byte) (int, error) {
	if _, err := p.w.Write(b); err != nil {
		return 0, err
	}
	return len(b), p.Flush()
}

// Chain returns a writer for chain lines. The marker that may open a line
// ("[2] <root> -> ...") is coloured; the rest is written as is.
func (p *Printer) Chain() io.Writer {
	return chainWriter{p}
}

var chainMarkers = []string{"<root>", "<unknown>", "<cycle>"}

type chainWriter struct{ p *Printer }

func (c chainWriter) Write(b []byte) (int, error) {
	if !c.p.colored {
		return c.p.Write(b)
	}
	line := string(b)
	i := strings.Index(line, "] ")
	if i < 0 {
		return c.p.Write(b)
	}
	head, rest := line[:i+2], line[i+2:]
	for _, m := range chainMarkers {
		if strings.HasPrefix(rest, m) {
			if _, err := io.WriteString(c.p.w, head+c.p.marker.Sprint(m)+rest[len(m):]); err != nil {
				return 0, err
			}
			return len(b), c.p.Flush()
		}
	}
	return c.p.Write(b)
}

// Linef formats one line; a trailing newline is added.
func (p *Printer) Linef(format string, args ...any) {
	p.line(fmt.Sprintf(format, args...))
}

// Headerf prints a section line in the header colour.
func (p *Printer) Headerf(format string, args ...any) {
	p.line(p.header.Sprintf(format, args...))
}

// Targetf prints a found-target line.
func (p *Printer) Targetf(format string, args ...any) {
	p.line(p.target.Sprintf(format, args...))
}

// Missingf prints a not-found line.
func (p *Printer) Missingf(format string, args ...any) {
	p.line(p.missing.Sprintf(format, args...))
}

// Blank prints an empty line.
func (p *Printer) Blank() {
	p.line("")
}

func (p *Printer) line(s string) {
	// Best-effort write - diagnostics must not fail the collection
	_, _ = io.WriteString(p.w, s+"\n")
	_ = p.Flush()
}

// Flush flushes the underlying writer if it buffers.
func (p *Printer) Flush() error {
	if flusher, ok := p.w.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

var countPrinter = message.NewPrinter(language.English)

// Count formats n with thousands separators.
func Count(n int) string {
	return countPrinter.Sprintf("%d", n)
}
