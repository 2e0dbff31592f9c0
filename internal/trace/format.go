package trace

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Format represents the output format for dumped entries.
type Format uint8

const (
	FormatText   Format = iota // human-readable text
	FormatNDJSON               // newline-delimited JSON
)

// String returns the string representation of Format.
func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatNDJSON:
		return "ndjson"
	default:
		return "unknown"
	}
}

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "ndjson", "json":
		return FormatNDJSON, nil
	default:
		return FormatText, fmt.Errorf("invalid dump format: %q (expected: text|ndjson)", s)
	}
}

// FormatEntry appends one formatted entry, newline included, to dst.
func FormatEntry(dst []byte, index int, e Entry, msg []byte, format Format) []byte {
	switch format {
	case FormatNDJSON:
		return appendNDJSON(dst, index, e, msg)
	default:
		return appendText(dst, index, e, msg)
	}
}

// appendText formats an entry as
// [index][basename::line, fn: function] message
func appendText(dst []byte, index int, e Entry, msg []byte) []byte {
	dst = append(dst, '[')
	dst = strconv.AppendInt(dst, int64(index), 10)
	dst = append(dst, "]["...)
	dst = append(dst, basename(e.Source)...)
	dst = append(dst, "::"...)
	dst = strconv.AppendUint(dst, e.Line, 10)
	dst = append(dst, ", fn: "...)
	dst = append(dst, e.Function...)
	dst = append(dst, ']')
	if len(msg) > 0 {
		dst = append(dst, ' ')
		dst = append(dst, msg...)
	}
	return append(dst, '\n')
}

func appendNDJSON(dst []byte, index int, e Entry, msg []byte) []byte {
	type jsonEntry struct {
		Index    int    `json:"index"`
		Source   string `json:"source"`
		Line     uint64 `json:"line"`
		Function string `json:"fn"`
		Message  string `json:"msg,omitempty"`
	}

	data, _ := json.Marshal(jsonEntry{
		Index:    index,
		Source:   basename(e.Source),
		Line:     e.Line,
		Function: e.Function,
		Message:  string(msg),
	})
	dst = append(dst, data...)
	return append(dst, '\n')
}
