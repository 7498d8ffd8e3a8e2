// Package h2flow implements the flow-control window arithmetic shared by the
// connection and every stream: a signed accounting value that shrinks as
// DATA is sent or received and grows on WINDOW_UPDATE, bounded to the
// 31-bit range RFC 7540 §6.9 allows it to occupy.
package h2flow

import (
	"fmt"

	"github.com/albertbausili/celeris/internal/h2wire"
)

// Window is a single flow-control accounting value. It is not safe for
// concurrent use; callers serialize access the same way they serialize
// frame dispatch into the connection state machine.
type Window struct {
	size int64
}

// New returns a Window initialized to the given starting size, typically
// h2wire.DefaultInitialWindowSize or a negotiated SETTINGS value.
func New(initial int32) Window {
	return Window{size: int64(initial)}
}

// Size returns the current window value. It can be negative after a
// SETTINGS-driven INITIAL_WINDOW_SIZE shrink (RFC 7540 §6.9.2).
func (w Window) Size() int32 {
	return int32(w.size)
}

// Consume reduces the window by n, as happens when a DATA frame of that
// many octets is sent (sender's window) or received (receiver's window).
// The window may go negative. It returns an error without mutating the
// window if n would drive it below h2wire.MinWindowSize or if n is negative;
// the caller decides which HTTP/2 error class that becomes.
func (w *Window) Consume(n int32) error {
	if n < 0 {
		return fmt.Errorf("h2flow: negative consume amount %d", n)
	}
	next := w.size - int64(n)
	if next < h2wire.MinWindowSize {
		return fmt.Errorf("h2flow: consume %d would underflow window %d below %d", n, w.size, h2wire.MinWindowSize)
	}
	w.size = next
	return nil
}

// Increase grows the window by increment, as happens on receipt of a
// WINDOW_UPDATE frame. Per RFC 7540 §6.9.1, an increment is rejected if it
// would push the window above h2wire.MaxWindowSize; the window is left
// unmodified so the caller can turn the rejection into the correct error
// class (stream-level vs connection-level FLOW_CONTROL_ERROR).
func (w *Window) Increase(increment int32) error {
	if increment <= 0 {
		return fmt.Errorf("h2flow: non-positive window increment %d", increment)
	}
	next := w.size + int64(increment)
	if next > h2wire.MaxWindowSize {
		return fmt.Errorf("h2flow: increment %d would overflow window %d past %d", increment, w.size, h2wire.MaxWindowSize)
	}
	w.size = next
	return nil
}

// ApplyInitialWindowSizeDelta re-baselines the window when a SETTINGS frame
// changes SETTINGS_INITIAL_WINDOW_SIZE. RFC 7540 §6.9.2 requires every
// stream's window to move by the same signed delta (new - old) rather than
// being reset to the new value outright, and allows the result to go
// negative (but never below h2wire.MinWindowSize, and never above
// h2wire.MaxWindowSize) without erroring until the peer tries to send on it.
func (w *Window) ApplyInitialWindowSizeDelta(delta int64) error {
	next := w.size + delta
	if next > h2wire.MaxWindowSize || next < h2wire.MinWindowSize {
		return fmt.Errorf("h2flow: initial window delta %d would move window %d out of [%d, %d]", delta, w.size, h2wire.MinWindowSize, h2wire.MaxWindowSize)
	}
	w.size = next
	return nil
}

// Exhausted reports whether the window has reached or passed zero, meaning
// no further DATA may legally be sent against it until it grows again.
func (w Window) Exhausted() bool {
	return w.size <= 0
}
