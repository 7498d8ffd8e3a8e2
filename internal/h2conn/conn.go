// Package h2conn implements the top-level HTTP/2 connection state machine:
// it dispatches decoded frames against the per-stream state machines in
// internal/h2stream held in an internal/h2streammap, maintains the
// connection-level flow-control window from internal/h2flow, negotiates
// SETTINGS, and tracks GOAWAY/quiescing. It performs no I/O of its own —
// every operation either returns an error (normally a
// *h2error.StreamError/*h2error.ConnectionError) without changing any stream
// or flow-control window, or succeeds and returns a ConnectionStateChange
// describing what the caller (the transport layer) should now do on the wire.
// Connection-level protocol violations additionally move the connection to
// StateClosed.
package h2conn

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/albertbausili/celeris/internal/h2error"
	"github.com/albertbausili/celeris/internal/h2flow"
	"github.com/albertbausili/celeris/internal/h2stream"
	"github.com/albertbausili/celeris/internal/h2streammap"
	"github.com/albertbausili/celeris/internal/h2wire"
)

// recentlyResetCapacity bounds the FIFO of stream IDs remembered after
// RST_STREAM, so a frame racing a just-reset stream's closure can still be
// distinguished from one referencing a stream ID never opened at all.
const recentlyResetCapacity = 32

// State is the connection's own lifecycle position, distinct from any one
// stream's State.
type State int

const (
	StateActive State = iota
	StateGoAway // GOAWAY sent and/or received; no new streams accepted
	StateClosed // terminal; no further dispatch accepted
)

// Conn is the connection-scoped state machine. It is not safe for
// concurrent use; exactly one goroutine (the transport's read loop) is
// expected to drive it.
type Conn struct {
	state State

	streams *h2streammap.Map

	local              Settings
	peer               Settings
	pendingLocalSettings []Settings

	connRecvWindow h2flow.Window // bounds what the peer may send us
	connSendWindow h2flow.Window // bounds what we may send the peer

	lastOddID  uint32
	lastEvenID uint32

	recentlyReset     []uint32
	recentlyResetSet  map[uint32]bool

	goAwaySent       bool
	goAwayReceived   bool
	lastProcessedID  uint32 // highest client stream ID we began processing
}

// New returns a connection state machine seeded with the given locally
// advertised settings (applied immediately, before any stream exists) and
// RFC 7540 defaults for the peer's settings until its own SETTINGS frame is
// received.
func New(local Settings) *Conn {
	return &Conn{
		state:            StateActive,
		streams:          h2streammap.New(),
		local:            local,
		peer:             DefaultSettings(),
		connRecvWindow:   h2flow.New(h2wire.DefaultInitialWindowSize),
		connSendWindow:   h2flow.New(h2wire.DefaultInitialWindowSize),
		recentlyResetSet: make(map[uint32]bool, recentlyResetCapacity),
	}
}

// State reports the connection's current lifecycle position.
func (c *Conn) State() State { return c.state }

// StreamCount reports how many streams are currently tracked (any
// non-closed state).
func (c *Conn) StreamCount() int { return c.streams.Len() }

// Get returns the tracked stream with the given ID, for callers (the
// transport layer, tests) that need to inspect state this package's
// dispatch methods don't already surface through a ConnectionStateChange.
func (c *Conn) Get(streamID uint32) (*h2stream.Stream, bool) {
	return c.streams.Get(streamID)
}

// guardClosed rejects dispatch once the connection is fully closed. A
// GOAWAY in flight (StateGoAway) still allows existing streams to finish;
// only StateClosed rejects everything.
func (c *Conn) guardClosed() error {
	if c.state == StateClosed {
		return fmt.Errorf("h2conn: connection is closed")
	}
	return nil
}

func (c *Conn) fail(err *h2error.ConnectionError) (ConnectionStateChange, error) {
	c.state = StateClosed
	return ConnectionStateChange{Kind: ChangeConnectionClosed, ErrCode: err.Code}, err
}

func (c *Conn) markRecentlyReset(id uint32) {
	if c.recentlyResetSet[id] {
		return
	}
	if len(c.recentlyReset) >= recentlyResetCapacity {
		oldest := c.recentlyReset[0]
		c.recentlyReset = c.recentlyReset[1:]
		delete(c.recentlyResetSet, oldest)
	}
	c.recentlyReset = append(c.recentlyReset, id)
	c.recentlyResetSet[id] = true
}

func (c *Conn) wasRecentlyReset(id uint32) bool {
	return c.recentlyResetSet[id]
}

// PriorityInfo carries an optional PRIORITY annotation riding on a HEADERS
// frame, as decoded by the frame layer's priority-exclusive flag fields.
type PriorityInfo struct {
	StreamDependency uint32
	Weight           uint8
	Exclusive        bool
}

// contentLengthOf scans a decoded header list for a content-length entry and
// reports its parsed value. Header names arrive lowercase per RFC 7540
// §8.1.2; an unparsable value is treated as absent rather than rejected
// outright, since malformed content-length is not itself a framing error.
func contentLengthOf(headers [][2]string) (int64, bool) {
	for _, h := range headers {
		if h[0] != "content-length" {
			continue
		}
		v, err := strconv.ParseInt(h[1], 10, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// ReceiveHeaders dispatches a decoded HEADERS frame (its header block
// already HPACK-decoded and any CONTINUATION fragments already merged by
// the frame layer) for a peer-initiated request or, for an existing open
// stream, a trailer block. headers carries the decoded name/value pairs so
// a declared content-length can be recorded and policed against the DATA
// frames that follow.
func (c *Conn) ReceiveHeaders(streamID uint32, endStream bool, headers [][2]string, priority *PriorityInfo) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	if streamID == 0 || streamID%2 == 0 {
		return c.fail(h2error.NewConnectionError(h2wire.ErrCodeProtocol, "HEADERS on a non-client-initiated stream ID"))
	}

	s, exists := c.streams.Get(streamID)
	if !exists {
		if c.wasRecentlyReset(streamID) {
			return ConnectionStateChange{}, h2error.StreamClosedError(streamID)
		}
		if streamID <= c.lastOddID {
			return c.fail(h2error.NewConnectionError(h2wire.ErrCodeProtocol, "HEADERS reused a non-monotonic stream ID"))
		}
		if c.goAwaySent || c.goAwayReceived {
			return ConnectionStateChange{}, h2error.NewStreamError(streamID, h2wire.ErrCodeRefusedStream, "new stream refused during GOAWAY")
		}
		if c.local.MaxConcurrentStreams != 0 && c.openStreamCount() >= int(c.local.MaxConcurrentStreams) {
			return ConnectionStateChange{}, h2error.MaxConcurrentStreamsViolation(streamID)
		}

		event := h2stream.EventRecvHeaders
		if endStream {
			event = h2stream.EventRecvHeadersEndStream
		}
		ns := h2stream.New(streamID, int32(c.local.InitialWindowSize), int32(c.peer.InitialWindowSize))
		if err := ns.Transition(event); err != nil {
			return ConnectionStateChange{}, err
		}
		ns.HeadersReceived = true
		if length, ok := contentLengthOf(headers); ok {
			ns.ContentLengthDeclared = true
			ns.ContentLengthValue = length
		}
		if priority != nil {
			ns.SetPriority(priority.StreamDependency, priority.Weight, priority.Exclusive)
		}
		c.streams.Put(ns)
		c.lastOddID = streamID
		if streamID > c.lastProcessedID {
			c.lastProcessedID = streamID
		}
		return ConnectionStateChange{Kind: ChangeStreamOpened, StreamID: streamID, FromState: h2stream.StateIdle, ToState: ns.State}, nil
	}

	// Existing stream: this HEADERS frame must be a trailer block, which
	// RFC 7540 §8.1 requires to carry END_STREAM.
	if !s.AllowsFrame(h2stream.FrameKindHeaders) || !endStream {
		return ConnectionStateChange{}, h2error.BadStreamStateTransition(streamID, s.State.String(), "trailerHeaders")
	}
	from := s.State
	if err := s.Transition(h2stream.EventRecvEndStream); err != nil {
		return ConnectionStateChange{}, err
	}
	s.TrailersReceived = true
	if s.Closed() {
		c.streams.Delete(streamID)
		c.markRecentlyReset(streamID)
		return ConnectionStateChange{Kind: ChangeStreamClosed, StreamID: streamID, FromState: from, ToState: s.State}, nil
	}
	return ConnectionStateChange{Kind: ChangeStreamStateChanged, StreamID: streamID, FromState: from, ToState: s.State}, nil
}

func (c *Conn) openStreamCount() int {
	n := 0
	c.streams.Range(func(s *h2stream.Stream) bool {
		if !s.Closed() {
			n++
		}
		return true
	})
	return n
}

// ReceiveData dispatches a DATA frame of length payloadLen octets (the
// payload bytes themselves are not the core's concern, only their count
// against flow control and any declared content-length).
func (c *Conn) ReceiveData(streamID uint32, payloadLen uint32, endStream bool) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	if streamID == 0 {
		return c.fail(h2error.NewConnectionError(h2wire.ErrCodeProtocol, "DATA on stream 0"))
	}
	s, exists := c.streams.Get(streamID)
	if !exists {
		if c.wasRecentlyReset(streamID) {
			// Peer may still be draining in-flight DATA for a stream we
			// just reset; account it against the connection window only.
			if err := c.connRecvWindow.Consume(int32(payloadLen)); err != nil {
				return c.fail(h2error.NewConnectionError(h2wire.ErrCodeFlowControl, err.Error()))
			}
			return ConnectionStateChange{Kind: ChangeWindowUpdated, WindowSize: c.connRecvWindow.Size()}, nil
		}
		return ConnectionStateChange{}, h2error.StreamClosedError(streamID)
	}
	if !s.AllowsFrame(h2stream.FrameKindData) {
		return ConnectionStateChange{}, h2error.BadStreamStateTransition(streamID, s.State.String(), "DATA")
	}

	// Pre-validate both windows before mutating either.
	if int64(c.connRecvWindow.Size()) < int64(payloadLen) {
		return ConnectionStateChange{}, h2error.InvalidFlowControlWindowSize(0, fmt.Sprintf("DATA of %d bytes exceeds connection recv window %d", payloadLen, c.connRecvWindow.Size()))
	}
	if int64(s.RecvWindow.Size()) < int64(payloadLen) {
		return ConnectionStateChange{}, h2error.InvalidFlowControlWindowSize(streamID, fmt.Sprintf("DATA of %d bytes exceeds stream recv window %d", payloadLen, s.RecvWindow.Size()))
	}
	if s.ContentLengthDeclared && s.BytesReceived+int64(payloadLen) > s.ContentLengthValue {
		return ConnectionStateChange{}, h2error.ContentLengthViolation(streamID)
	}
	if endStream && s.ContentLengthDeclared && s.BytesReceived+int64(payloadLen) != s.ContentLengthValue {
		return ConnectionStateChange{}, h2error.ContentLengthViolation(streamID)
	}

	if err := c.connRecvWindow.Consume(int32(payloadLen)); err != nil {
		return c.fail(h2error.NewConnectionError(h2wire.ErrCodeFlowControl, err.Error()))
	}
	if err := s.RecvWindow.Consume(int32(payloadLen)); err != nil {
		return ConnectionStateChange{}, h2error.InvalidFlowControlWindowSize(streamID, err.Error())
	}
	s.BytesReceived += int64(payloadLen)

	from := s.State
	if endStream {
		if err := s.Transition(h2stream.EventRecvEndStream); err != nil {
			return ConnectionStateChange{}, err
		}
		if s.Closed() {
			c.streams.Delete(streamID)
			c.markRecentlyReset(streamID)
			return ConnectionStateChange{Kind: ChangeStreamClosed, StreamID: streamID, FromState: from, ToState: s.State}, nil
		}
		return ConnectionStateChange{Kind: ChangeStreamStateChanged, StreamID: streamID, FromState: from, ToState: s.State}, nil
	}
	return ConnectionStateChange{Kind: ChangeWindowUpdated, StreamID: streamID, WindowSize: s.RecvWindow.Size()}, nil
}

// ReceiveWindowUpdate dispatches a WINDOW_UPDATE frame, streamID 0 meaning
// the connection-level window.
func (c *Conn) ReceiveWindowUpdate(streamID uint32, increment uint32) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	if increment == 0 {
		return ConnectionStateChange{}, h2error.InvalidWindowIncrementSize(streamID)
	}
	if streamID == 0 {
		if err := c.connSendWindow.Increase(int32(increment)); err != nil {
			return c.fail(h2error.NewConnectionError(h2wire.ErrCodeFlowControl, err.Error()))
		}
		return ConnectionStateChange{Kind: ChangeWindowUpdated, WindowSize: c.connSendWindow.Size()}, nil
	}
	s, exists := c.streams.Get(streamID)
	if !exists {
		if c.wasRecentlyReset(streamID) {
			return ConnectionStateChange{Kind: ChangeNone}, nil
		}
		return ConnectionStateChange{}, h2error.StreamClosedError(streamID)
	}
	if !s.AllowsFrame(h2stream.FrameKindWindowUpdate) {
		return ConnectionStateChange{}, h2error.BadStreamStateTransition(streamID, s.State.String(), "WINDOW_UPDATE")
	}
	if err := s.SendWindow.Increase(int32(increment)); err != nil {
		return ConnectionStateChange{}, h2error.InvalidFlowControlWindowSize(streamID, err.Error())
	}
	return ConnectionStateChange{Kind: ChangeWindowUpdated, StreamID: streamID, WindowSize: s.SendWindow.Size()}, nil
}

// ReceiveRSTStream dispatches a peer-sent RST_STREAM.
func (c *Conn) ReceiveRSTStream(streamID uint32, code h2wire.ErrCode) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	s, exists := c.streams.Get(streamID)
	if !exists {
		if c.wasRecentlyReset(streamID) {
			return ConnectionStateChange{Kind: ChangeNone}, nil
		}
		if streamID == 0 || streamID > c.lastOddID && streamID > c.lastEvenID {
			return c.fail(h2error.NewConnectionError(h2wire.ErrCodeProtocol, "RST_STREAM for a stream never opened"))
		}
		return ConnectionStateChange{Kind: ChangeNone}, nil
	}
	from := s.State
	if err := s.Transition(h2stream.EventRecvRSTStream); err != nil {
		return ConnectionStateChange{}, err
	}
	c.streams.Delete(streamID)
	c.markRecentlyReset(streamID)
	return ConnectionStateChange{Kind: ChangeStreamClosed, StreamID: streamID, FromState: from, ToState: s.State, ErrCode: code}, nil
}

// ReceiveSettings dispatches a SETTINGS frame. ack=true means this is the
// peer's acknowledgment of a SETTINGS frame we previously sent (applied via
// SendSettings); ack=false means the peer is announcing new values of its
// own, applied immediately per RFC 7540 §6.5.3.
func (c *Conn) ReceiveSettings(entries []h2wire.Setting, ack bool) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	if ack {
		if len(c.pendingLocalSettings) == 0 {
			return c.fail(h2error.NewConnectionError(h2wire.ErrCodeProtocol, "unexpected SETTINGS ACK"))
		}
		applied := c.pendingLocalSettings[0]
		c.pendingLocalSettings = c.pendingLocalSettings[1:]
		delta := int64(applied.InitialWindowSize) - int64(c.local.InitialWindowSize)
		if delta != 0 {
			if err := c.rebaselineRecvWindows(delta); err != nil {
				return c.fail(h2error.NewConnectionError(h2wire.ErrCodeFlowControl, err.Error()))
			}
		}
		c.local = applied
		return ConnectionStateChange{Kind: ChangeSettingsApplied, AppliedSettings: c.local}, nil
	}

	next, delta := c.peer.apply(entries)
	if delta != 0 {
		// All-or-nothing: validate every tracked stream can absorb the
		// delta before committing it to any of them.
		if err := c.validateSendRebaseline(delta); err != nil {
			return c.fail(h2error.NewConnectionError(h2wire.ErrCodeFlowControl, err.Error()))
		}
		c.rebaselineSendWindows(delta)
	}
	c.peer = next
	return ConnectionStateChange{Kind: ChangeSettingsApplied, AppliedSettings: c.peer}, nil
}

func (c *Conn) validateSendRebaseline(delta int64) error {
	var outerErr error
	c.streams.Range(func(s *h2stream.Stream) bool {
		if c.wasRecentlyReset(s.ID) {
			return true
		}
		probe := s.SendWindow
		if err := probe.ApplyInitialWindowSizeDelta(delta); err != nil {
			outerErr = err
			return false
		}
		return true
	})
	return outerErr
}

func (c *Conn) rebaselineSendWindows(delta int64) {
	c.streams.Range(func(s *h2stream.Stream) bool {
		if c.wasRecentlyReset(s.ID) {
			return true
		}
		_ = s.SendWindow.ApplyInitialWindowSizeDelta(delta)
		return true
	})
}

func (c *Conn) rebaselineRecvWindows(delta int64) error {
	var outerErr error
	c.streams.Range(func(s *h2stream.Stream) bool {
		if c.wasRecentlyReset(s.ID) {
			return true
		}
		probe := s.RecvWindow
		if err := probe.ApplyInitialWindowSizeDelta(delta); err != nil {
			outerErr = err
			return false
		}
		return true
	})
	if outerErr != nil {
		return outerErr
	}
	c.streams.Range(func(s *h2stream.Stream) bool {
		if !c.wasRecentlyReset(s.ID) {
			_ = s.RecvWindow.ApplyInitialWindowSizeDelta(delta)
		}
		return true
	})
	return nil
}

// SendSettings records that the caller is about to emit a SETTINGS frame
// with the given new local values; they take effect only once
// ReceiveSettings observes the peer's ACK for them, per RFC 7540 §6.5.3.
func (c *Conn) SendSettings(next Settings) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	c.pendingLocalSettings = append(c.pendingLocalSettings, next)
	return ConnectionStateChange{Kind: ChangeNone}, nil
}

// closeStreamsAbove closes every tracked stream with an ID greater than
// lastStreamID and returns their IDs in strictly increasing order, merging
// across both the odd and even buffers rather than relying on either one's
// own sort order alone.
func (c *Conn) closeStreamsAbove(lastStreamID uint32) []uint32 {
	var tail []*h2stream.Stream
	c.streams.Range(func(s *h2stream.Stream) bool {
		if s.ID > lastStreamID {
			tail = append(tail, s)
		}
		return true
	})
	sort.Slice(tail, func(i, j int) bool { return tail[i].ID < tail[j].ID })

	ids := make([]uint32, len(tail))
	for i, s := range tail {
		c.streams.Delete(s.ID)
		c.markRecentlyReset(s.ID)
		ids[i] = s.ID
	}
	return ids
}

// ReceiveGoAway dispatches a peer-initiated GOAWAY: the connection moves to
// quiescing, refusing new streams but allowing in-flight ones below
// lastStreamID to finish. Any stream already open above lastStreamID is one
// the peer is telling us it will never process further, so it is closed
// immediately and reported as a bulk closure.
func (c *Conn) ReceiveGoAway(lastStreamID uint32, code h2wire.ErrCode) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	c.goAwayReceived = true
	if c.state == StateActive {
		c.state = StateGoAway
	}
	closed := c.closeStreamsAbove(lastStreamID)
	if len(closed) > 0 {
		return ConnectionStateChange{Kind: ChangeBulkClosure, LastStreamID: lastStreamID, ErrCode: code, ClosedStreamIDs: closed}, nil
	}
	return ConnectionStateChange{Kind: ChangeGoAway, LastStreamID: lastStreamID, ErrCode: code}, nil
}

// InitiateGoAway records that the caller is sending its own GOAWAY, naming
// lastProcessedID (the highest peer-initiated stream ID this side began
// processing) as the last stream it will finish. Any tracked stream above
// that ID, which can only be a server-initiated (pushed) stream, is closed
// and reported as a bulk closure.
func (c *Conn) InitiateGoAway(code h2wire.ErrCode) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	c.goAwaySent = true
	if c.state == StateActive {
		c.state = StateGoAway
	}
	closed := c.closeStreamsAbove(c.lastProcessedID)
	if len(closed) > 0 {
		return ConnectionStateChange{Kind: ChangeBulkClosure, LastStreamID: c.lastProcessedID, ErrCode: code, ClosedStreamIDs: closed}, nil
	}
	return ConnectionStateChange{Kind: ChangeGoAway, LastStreamID: c.lastProcessedID, ErrCode: code}, nil
}

// Teardown transitions the connection straight to closed and reports every
// stream still tracked as a bulk closure, for a caller that stops delivering
// frames on its own initiative (a local socket error, a shutdown deadline)
// rather than because the peer sent GOAWAY.
func (c *Conn) Teardown() (ConnectionStateChange, error) {
	if c.state == StateClosed {
		return ConnectionStateChange{Kind: ChangeNone}, nil
	}
	ids := c.closeStreamsAbove(0)
	c.state = StateClosed
	return ConnectionStateChange{Kind: ChangeBulkClosure, ClosedStreamIDs: ids}, nil
}

// ReceivePing dispatches a PING frame; ack distinguishes a peer's reply to
// our own PING (nothing further to do) from a PING we must answer.
func (c *Conn) ReceivePing(ack bool) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	return ConnectionStateChange{Kind: ChangeNone}, nil
}

// ReceivePriority dispatches a PRIORITY frame. Priority is accepted and
// recorded on the stream if one exists; no scheduling decision is derived
// from it, so a PRIORITY frame for a stream this core is not tracking is
// simply ignored rather than allocating a placeholder entry.
func (c *Conn) ReceivePriority(streamID, dependency uint32, weight uint8, exclusive bool) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	if streamID == 0 {
		return ConnectionStateChange{}, h2error.NewConnectionError(h2wire.ErrCodeProtocol, "PRIORITY on stream 0")
	}
	if s, exists := c.streams.Get(streamID); exists {
		s.SetPriority(dependency, weight, exclusive)
	}
	return ConnectionStateChange{Kind: ChangeNone, StreamID: streamID}, nil
}

// ReceivePushPromise dispatches a peer-sent PUSH_PROMISE: it creates the
// promised stream in reservedRemote. The associated stream (the one the
// PUSH_PROMISE frame arrived on) must already be open or halfClosedLocal,
// mirroring the send-side rule the peer applied before emitting it.
func (c *Conn) ReceivePushPromise(associatedStreamID, promisedStreamID uint32, headers [][2]string) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	if promisedStreamID == 0 || promisedStreamID%2 == 1 {
		return c.fail(h2error.NewConnectionError(h2wire.ErrCodeProtocol, "PUSH_PROMISE promised a non-server-initiated stream ID"))
	}
	if promisedStreamID <= c.lastEvenID {
		return c.fail(h2error.NewConnectionError(h2wire.ErrCodeProtocol, "PUSH_PROMISE reused a non-monotonic stream ID"))
	}
	assoc, exists := c.streams.Get(associatedStreamID)
	if !exists || (assoc.State != h2stream.StateOpen && assoc.State != h2stream.StateHalfClosedLocal) {
		return c.fail(h2error.NewConnectionError(h2wire.ErrCodeProtocol, "PUSH_PROMISE on a stream not open to receive one"))
	}
	if c.goAwaySent || c.goAwayReceived {
		return ConnectionStateChange{}, h2error.NewStreamError(promisedStreamID, h2wire.ErrCodeRefusedStream, "push refused during GOAWAY")
	}

	ns := h2stream.New(promisedStreamID, int32(c.local.InitialWindowSize), int32(c.peer.InitialWindowSize))
	if err := ns.Transition(h2stream.EventRecvPushPromise); err != nil {
		return ConnectionStateChange{}, err
	}
	if length, ok := contentLengthOf(headers); ok {
		ns.ContentLengthDeclared = true
		ns.ContentLengthValue = length
	}
	c.streams.Put(ns)
	c.lastEvenID = promisedStreamID
	return ConnectionStateChange{Kind: ChangeStreamOpened, StreamID: promisedStreamID, FromState: h2stream.StateIdle, ToState: ns.State}, nil
}

// SendPushPromise records this side initiating a push: it creates the
// promised stream in reservedLocal and immediately applies the responding
// HEADERS the caller is about to send on it. A pushed stream's peer never
// sends anything on it, so if that responding HEADERS also carries
// END_STREAM, both directions are already finished and the stream never
// occupies halfClosedRemote at all — it is reported as
// ChangeStreamCreatedAndClosed instead of two separate changes.
func (c *Conn) SendPushPromise(associatedStreamID, promisedStreamID uint32, responseEndStream bool) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	if promisedStreamID == 0 || promisedStreamID%2 == 1 {
		return c.fail(h2error.NewConnectionError(h2wire.ErrCodeProtocol, "PUSH_PROMISE promised a non-server-initiated stream ID"))
	}
	if promisedStreamID <= c.lastEvenID {
		return c.fail(h2error.NewConnectionError(h2wire.ErrCodeProtocol, "PUSH_PROMISE reused a non-monotonic stream ID"))
	}
	assoc, exists := c.streams.Get(associatedStreamID)
	if !exists {
		return ConnectionStateChange{}, h2error.StreamClosedError(associatedStreamID)
	}
	if assoc.State != h2stream.StateOpen && assoc.State != h2stream.StateHalfClosedRemote {
		return ConnectionStateChange{}, h2error.BadStreamStateTransition(associatedStreamID, assoc.State.String(), "sendPushPromise")
	}
	if c.goAwaySent || c.goAwayReceived {
		return ConnectionStateChange{}, h2error.NewStreamError(promisedStreamID, h2wire.ErrCodeRefusedStream, "push refused during GOAWAY")
	}

	ns := h2stream.New(promisedStreamID, int32(c.local.InitialWindowSize), int32(c.peer.InitialWindowSize))
	if err := ns.Transition(h2stream.EventSendPushPromise); err != nil {
		return ConnectionStateChange{}, err
	}
	c.streams.Put(ns)
	c.lastEvenID = promisedStreamID

	if !responseEndStream {
		if err := ns.Transition(h2stream.EventSendHeaders); err != nil {
			return ConnectionStateChange{}, err
		}
		return ConnectionStateChange{Kind: ChangeStreamOpened, StreamID: promisedStreamID, FromState: h2stream.StateIdle, ToState: ns.State}, nil
	}

	c.streams.Delete(promisedStreamID)
	c.markRecentlyReset(promisedStreamID)
	return ConnectionStateChange{Kind: ChangeStreamCreatedAndClosed, StreamID: promisedStreamID}, nil
}
