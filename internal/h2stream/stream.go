package h2stream

import (
	"github.com/albertbausili/celeris/internal/h2error"
	"github.com/albertbausili/celeris/internal/h2flow"
)

// Stream is one HTTP/2 stream's mutable state: its lifecycle position plus
// its two flow-control windows. It carries no mutex and no writer handle:
// this type never performs I/O and is only ever touched by the
// single-threaded connection state machine that owns it.
type Stream struct {
	ID       uint32
	State    State
	RecvWindow h2flow.Window
	SendWindow h2flow.Window

	HeadersReceived   bool
	TrailersReceived  bool
	EndStreamReceived bool
	EndStreamSent     bool

	ContentLengthDeclared bool
	ContentLengthValue    int64
	BytesReceived         int64

	Priority Priority
}

// New creates a stream in the idle state with both windows seeded at the
// given initial sizes (the connection's currently negotiated
// SETTINGS_INITIAL_WINDOW_SIZE for each direction).
func New(id uint32, recvInitial, sendInitial int32) *Stream {
	return &Stream{
		ID:         id,
		State:      StateIdle,
		RecvWindow: h2flow.New(recvInitial),
		SendWindow: h2flow.New(sendInitial),
		Priority:   DefaultPriority(),
	}
}

// Transition validates and, only if valid, applies a state transition driven
// by event. On rejection it returns a *h2error.StreamError and leaves the
// stream's State untouched, satisfying the pre-validate-before-mutate rule:
// callers must not have mutated anything else on the strength of a frame
// before calling Transition, since a rejection here must be answerable as if
// the frame had never been looked at.
func (s *Stream) Transition(event Event) error {
	to, ok := next(s.State, event)
	if !ok {
		return h2error.BadStreamStateTransition(s.ID, s.State.String(), event.String())
	}
	s.State = to
	return nil
}

// Closed reports whether the stream has reached its terminal state.
func (s *Stream) Closed() bool {
	return s.State == StateClosed
}

// AllowsFrame reports whether a frame of the given kind may still arrive
// FROM THE PEER in the stream's current state, independent of whether
// processing it would also trigger a state transition. It is a single table
// on the state itself so the receive call sites that consult it (DATA,
// HEADERS, WINDOW_UPDATE in internal/h2conn) share one source of truth. Use
// AllowsSend for the opposite direction:
// half-closed-remote means the peer is done sending but we may not be.
func (s *Stream) AllowsFrame(kind FrameKind) bool {
	switch s.State {
	case StateClosed:
		// RST_STREAM, PRIORITY and WINDOW_UPDATE may race with closure and
		// are tolerated; everything else this late is a protocol violation.
		return kind == FrameKindRSTStream || kind == FrameKindPriority || kind == FrameKindWindowUpdate
	case StateIdle:
		return kind == FrameKindHeaders || kind == FrameKindPriority || kind == FrameKindPushPromise
	case StateReservedLocal:
		return kind == FrameKindRSTStream || kind == FrameKindPriority || kind == FrameKindWindowUpdate
	case StateReservedRemote:
		return kind == FrameKindHeaders || kind == FrameKindRSTStream || kind == FrameKindPriority
	case StateHalfClosedRemote:
		// Peer already signaled END_STREAM; nothing further may arrive from it.
		return kind == FrameKindWindowUpdate || kind == FrameKindRSTStream || kind == FrameKindPriority
	default: // open, halfClosedLocal: peer may still send data/headers/trailers
		return kind != FrameKindPushPromise || s.State == StateOpen
	}
}

// AllowsSend reports whether a frame of the given kind may still be WRITTEN
// BY US in the stream's current state. It is the mirror image of
// AllowsFrame: half-closed-local means we are done sending, half-closed-remote
// means the peer is done but we may still have data or trailers to write.
func (s *Stream) AllowsSend(kind FrameKind) bool {
	switch s.State {
	case StateClosed:
		return kind == FrameKindRSTStream || kind == FrameKindPriority || kind == FrameKindWindowUpdate
	case StateIdle:
		return kind == FrameKindHeaders || kind == FrameKindPriority || kind == FrameKindPushPromise
	case StateReservedRemote:
		return kind == FrameKindRSTStream || kind == FrameKindPriority || kind == FrameKindWindowUpdate
	case StateReservedLocal:
		return kind == FrameKindHeaders || kind == FrameKindRSTStream || kind == FrameKindPriority
	case StateHalfClosedLocal:
		// We already signaled END_STREAM; nothing further may be sent.
		return kind == FrameKindWindowUpdate || kind == FrameKindRSTStream || kind == FrameKindPriority
	default: // open, halfClosedRemote: we may still send data/headers/trailers
		return kind != FrameKindPushPromise || s.State == StateOpen
	}
}

// FrameKind classifies an incoming or outgoing frame for the purpose of
// AllowsFrame's per-state table. It is coarser than h2wire.FrameType: it
// does not need to distinguish DATA from trailing HEADERS, for instance,
// since both are governed by the same rule once headers have been seen.
type FrameKind int

const (
	FrameKindHeaders FrameKind = iota
	FrameKindData
	FrameKindRSTStream
	FrameKindPriority
	FrameKindWindowUpdate
	FrameKindPushPromise
	FrameKindContinuation
)
