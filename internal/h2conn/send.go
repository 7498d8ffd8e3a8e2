package h2conn

import (
	"fmt"

	"github.com/albertbausili/celeris/internal/h2error"
	"github.com/albertbausili/celeris/internal/h2stream"
	"github.com/albertbausili/celeris/internal/h2wire"
)

// SendHeaders records that the caller is about to write a HEADERS frame of
// its own on streamID (a response to a peer-initiated request, or a
// trailer block on one already open).
func (c *Conn) SendHeaders(streamID uint32, endStream bool) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	s, exists := c.streams.Get(streamID)
	if !exists {
		return ConnectionStateChange{}, fmt.Errorf("h2conn: SendHeaders on unknown stream %d", streamID)
	}
	if !s.AllowsSend(h2stream.FrameKindHeaders) {
		return ConnectionStateChange{}, h2error.BadStreamStateTransition(streamID, s.State.String(), "sendHeaders")
	}
	event := h2stream.EventSendHeaders
	if endStream {
		event = h2stream.EventSendHeadersEndStream
	}
	// A response HEADERS on an already-open stream (trailers) advances via
	// the plain send-end-stream event instead of re-opening.
	if s.State == h2stream.StateOpen || s.State == h2stream.StateHalfClosedRemote {
		if endStream {
			event = h2stream.EventSendEndStream
		} else {
			return ConnectionStateChange{Kind: ChangeNone, StreamID: streamID}, nil
		}
	}
	from := s.State
	if err := s.Transition(event); err != nil {
		return ConnectionStateChange{}, err
	}
	if s.Closed() {
		c.streams.Delete(streamID)
		c.markRecentlyReset(streamID)
		return ConnectionStateChange{Kind: ChangeStreamClosed, StreamID: streamID, FromState: from, ToState: s.State}, nil
	}
	return ConnectionStateChange{Kind: ChangeStreamStateChanged, StreamID: streamID, FromState: from, ToState: s.State}, nil
}

// SendData records n octets of DATA the caller is about to write on
// streamID, checking and consuming both flow-control windows first.
func (c *Conn) SendData(streamID uint32, n uint32, endStream bool) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	s, exists := c.streams.Get(streamID)
	if !exists {
		return ConnectionStateChange{}, fmt.Errorf("h2conn: SendData on unknown stream %d", streamID)
	}
	if !s.AllowsSend(h2stream.FrameKindData) {
		return ConnectionStateChange{}, h2error.BadStreamStateTransition(streamID, s.State.String(), "sendData")
	}
	if int64(c.connSendWindow.Size()) < int64(n) {
		return ConnectionStateChange{}, h2error.InvalidFlowControlWindowSize(0, fmt.Sprintf("send of %d bytes exceeds connection send window %d", n, c.connSendWindow.Size()))
	}
	if int64(s.SendWindow.Size()) < int64(n) {
		return ConnectionStateChange{}, h2error.InvalidFlowControlWindowSize(streamID, fmt.Sprintf("send of %d bytes exceeds stream send window %d", n, s.SendWindow.Size()))
	}
	if err := c.connSendWindow.Consume(int32(n)); err != nil {
		return c.fail(h2error.NewConnectionError(h2wire.ErrCodeFlowControl, err.Error()))
	}
	if err := s.SendWindow.Consume(int32(n)); err != nil {
		return ConnectionStateChange{}, h2error.InvalidFlowControlWindowSize(streamID, err.Error())
	}

	if !endStream {
		return ConnectionStateChange{Kind: ChangeWindowUpdated, StreamID: streamID, WindowSize: s.SendWindow.Size()}, nil
	}
	from := s.State
	if err := s.Transition(h2stream.EventSendEndStream); err != nil {
		return ConnectionStateChange{}, err
	}
	if s.Closed() {
		c.streams.Delete(streamID)
		c.markRecentlyReset(streamID)
		return ConnectionStateChange{Kind: ChangeStreamClosed, StreamID: streamID, FromState: from, ToState: s.State}, nil
	}
	return ConnectionStateChange{Kind: ChangeStreamStateChanged, StreamID: streamID, FromState: from, ToState: s.State}, nil
}

// SendRSTStream records that the caller is about to write RST_STREAM on
// streamID, typically in direct response to an error this package returned.
func (c *Conn) SendRSTStream(streamID uint32, code h2wire.ErrCode) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	s, exists := c.streams.Get(streamID)
	if !exists {
		c.markRecentlyReset(streamID)
		return ConnectionStateChange{Kind: ChangeNone, StreamID: streamID}, nil
	}
	from := s.State
	_ = s.Transition(h2stream.EventSendRSTStream) // RST_STREAM always succeeds in forcing closure
	s.State = h2stream.StateClosed
	c.streams.Delete(streamID)
	c.markRecentlyReset(streamID)
	return ConnectionStateChange{Kind: ChangeStreamClosed, StreamID: streamID, FromState: from, ToState: h2stream.StateClosed, ErrCode: code}, nil
}

// SendWindowUpdate records that the caller is about to write a
// WINDOW_UPDATE frame growing our own receive-side accounting, streamID 0
// meaning the connection-level window.
func (c *Conn) SendWindowUpdate(streamID uint32, increment uint32) (ConnectionStateChange, error) {
	if err := c.guardClosed(); err != nil {
		return ConnectionStateChange{}, err
	}
	if increment == 0 {
		return ConnectionStateChange{}, h2error.InvalidWindowIncrementSize(streamID)
	}
	if streamID == 0 {
		if err := c.connRecvWindow.Increase(int32(increment)); err != nil {
			return ConnectionStateChange{}, h2error.InvalidFlowControlWindowSize(0, err.Error())
		}
		return ConnectionStateChange{Kind: ChangeWindowUpdated, WindowSize: c.connRecvWindow.Size()}, nil
	}
	s, exists := c.streams.Get(streamID)
	if !exists {
		return ConnectionStateChange{}, fmt.Errorf("h2conn: SendWindowUpdate on unknown stream %d", streamID)
	}
	if err := s.RecvWindow.Increase(int32(increment)); err != nil {
		return ConnectionStateChange{}, h2error.InvalidFlowControlWindowSize(streamID, err.Error())
	}
	return ConnectionStateChange{Kind: ChangeWindowUpdated, StreamID: streamID, WindowSize: s.RecvWindow.Size()}, nil
}
