package trace

import "context"

// ctxKey is the key type for storing a Recorder in context.
type ctxKey struct{}

// disabled is returned when no recorder is attached; it records nothing.
var disabled = &Recorder{}

// FromContext extracts the Recorder from context.
// If not found, returns a disabled recorder.
func FromContext(ctx context.Context) *Recorder {
	if ctx == nil {
		return disabled
	}
	if r, ok := ctx.Value(ctxKey{}).(*Recorder); ok && r != nil {
		return r
	}
	return disabled
}

// WithRecorder attaches a Recorder to context.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	if r == nil {
		r = disabled
	}
	return context.WithValue(ctx, ctxKey{}, r)
}
