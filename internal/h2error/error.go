// Package h2error defines the two-axis error taxonomy the state machine
// reports failures through: a StreamError scoped to one stream (the caller
// answers it with RST_STREAM) and a ConnectionError scoped to the whole
// connection (the caller answers it with GOAWAY). Every internal validation
// failure in h2stream/h2conn resolves to one of these two before it leaves
// the package, grounded on golang.org/x/net/http2's same-named StreamError
// and ConnectionError types and RFC 7540 §7's error-code table.
package h2error

import (
	"fmt"

	"github.com/albertbausili/celeris/internal/h2wire"
)

// StreamError reports a violation scoped to a single stream. The connection
// as a whole remains usable; the caller is expected to send RST_STREAM with
// Code on StreamID and continue processing other streams.
type StreamError struct {
	StreamID uint32
	Code     h2wire.ErrCode
	Reason   string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("h2: stream %d error %v: %s", e.StreamID, e.Code, e.Reason)
}

// NewStreamError builds a StreamError, recording a human-readable reason
// alongside the wire error code the caller will put on RST_STREAM.
func NewStreamError(streamID uint32, code h2wire.ErrCode, reason string) *StreamError {
	return &StreamError{StreamID: streamID, Code: code, Reason: reason}
}

// ConnectionError reports a violation that invalidates the whole connection.
// The caller is expected to send GOAWAY with Code and the last stream ID it
// processed, then close the connection; no further frames may be dispatched
// into the state machine afterward.
type ConnectionError struct {
	Code   h2wire.ErrCode
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("h2: connection error %v: %s", e.Code, e.Reason)
}

// NewConnectionError builds a ConnectionError carrying the wire error code
// the caller will put on GOAWAY.
func NewConnectionError(code h2wire.ErrCode, reason string) *ConnectionError {
	return &ConnectionError{Code: code, Reason: reason}
}

// Named failure categories, each mapped onto one of the two error types
// above by the constructor that raises it rather than by a separate enum,
// so a caller catching *StreamError or *ConnectionError never needs to also
// switch on a category to decide how to respond on the wire.

// InvalidFlowControlWindowSize reports a WINDOW_UPDATE or DATA frame that
// would drive a flow-control window out of its legal range.
func InvalidFlowControlWindowSize(streamID uint32, reason string) error {
	if streamID == 0 {
		return NewConnectionError(h2wire.ErrCodeFlowControl, reason)
	}
	return NewStreamError(streamID, h2wire.ErrCodeFlowControl, reason)
}

// InvalidWindowIncrementSize reports a WINDOW_UPDATE increment of zero,
// which RFC 7540 §6.9 forbids.
func InvalidWindowIncrementSize(streamID uint32) error {
	if streamID == 0 {
		return NewConnectionError(h2wire.ErrCodeProtocol, "WINDOW_UPDATE increment of 0 on connection")
	}
	return NewStreamError(streamID, h2wire.ErrCodeProtocol, "WINDOW_UPDATE increment of 0")
}

// StreamClosedError reports a frame arriving for a stream already closed or
// never opened, outside the brief grace period the recently-reset set grants.
func StreamClosedError(streamID uint32) error {
	return NewStreamError(streamID, h2wire.ErrCodeStreamClosed, "frame received for closed stream")
}

// BadStreamStateTransition reports a frame type the stream's current state
// does not permit (RFC 7540 §5.1's state diagram).
func BadStreamStateTransition(streamID uint32, from string, event string) error {
	return NewStreamError(streamID, h2wire.ErrCodeStreamClosed, fmt.Sprintf("frame %s not allowed from state %s", event, from))
}

// ContentLengthViolation reports a DATA payload whose cumulative size
// disagrees with a previously declared content-length header.
func ContentLengthViolation(streamID uint32) error {
	return NewStreamError(streamID, h2wire.ErrCodeProtocol, "DATA length does not match content-length")
}

// MaxConcurrentStreamsViolation reports an attempt to open a stream beyond
// the negotiated SETTINGS_MAX_CONCURRENT_STREAMS limit.
func MaxConcurrentStreamsViolation(streamID uint32) error {
	return NewStreamError(streamID, h2wire.ErrCodeRefusedStream, "MAX_CONCURRENT_STREAMS exceeded")
}
