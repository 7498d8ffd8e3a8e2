package h2conn

import (
	"testing"

	"github.com/albertbausili/celeris/internal/h2error"
	"github.com/albertbausili/celeris/internal/h2stream"
	"github.com/albertbausili/celeris/internal/h2wire"
)

func newTestConn() *Conn {
	return New(DefaultSettings())
}

func TestReceiveHeadersOpensStream(t *testing.T) {
	c := newTestConn()
	change, err := c.ReceiveHeaders(1, false, nil, nil)
	if err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	if change.Kind != ChangeStreamOpened {
		t.Fatalf("Kind = %v, want ChangeStreamOpened", change.Kind)
	}
	if c.StreamCount() != 1 {
		t.Fatalf("StreamCount = %d, want 1", c.StreamCount())
	}
}

func TestReceiveHeadersRejectsEvenStreamID(t *testing.T) {
	c := newTestConn()
	_, err := c.ReceiveHeaders(2, false, nil, nil)
	if err == nil {
		t.Fatal("HEADERS on an even (server-initiated) stream ID should be rejected")
	}
	if c.State() != StateClosed {
		t.Fatalf("connection state = %v, want closed after protocol violation", c.State())
	}
}

func TestReceiveHeadersRejectsNonMonotonicStreamID(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceiveHeaders(5, false, nil, nil); err != nil {
		t.Fatalf("ReceiveHeaders(5): %v", err)
	}
	if _, err := c.ReceiveHeaders(3, false, nil, nil); err == nil {
		t.Fatal("HEADERS reusing a lower stream ID than already seen should be rejected")
	}
}

func TestEndToEndRequestResponseCycle(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceiveHeaders(1, false, nil, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	if _, err := c.ReceiveData(1, 100, true); err != nil {
		t.Fatalf("ReceiveData: %v", err)
	}
	s, ok := c.Get(1)
	if !ok {
		t.Fatal("stream 1 should still exist half-closed-remote")
	}
	if s.State != h2stream.StateHalfClosedRemote {
		t.Fatalf("state = %v, want halfClosedRemote", s.State)
	}
	change, err := c.SendHeaders(1, false)
	if err != nil {
		t.Fatalf("SendHeaders: %v", err)
	}
	if change.Kind != ChangeNone && change.Kind != ChangeStreamStateChanged {
		t.Fatalf("unexpected change kind %v", change.Kind)
	}
	change, err = c.SendData(1, 50, true)
	if err != nil {
		t.Fatalf("SendData: %v", err)
	}
	if change.Kind != ChangeStreamClosed {
		t.Fatalf("Kind = %v, want ChangeStreamClosed", change.Kind)
	}
	if c.StreamCount() != 0 {
		t.Fatalf("StreamCount = %d, want 0 after full close", c.StreamCount())
	}
}

func TestReceiveDataOnUnknownStreamIsStreamError(t *testing.T) {
	c := newTestConn()
	_, err := c.ReceiveData(99, 10, false)
	if err == nil {
		t.Fatal("DATA on unknown stream should error")
	}
	if c.State() == StateClosed {
		t.Fatal("a stream-scoped error must not close the connection")
	}
}

func TestReceiveDataExceedingStreamWindowDoesNotMutate(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceiveHeaders(1, false, nil, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	s, _ := c.Get(1)
	before := s.RecvWindow.Size()
	_, err := c.ReceiveData(1, uint32(before)+1, false)
	if err == nil {
		t.Fatal("DATA exceeding the stream's recv window should error")
	}
	if s.RecvWindow.Size() != before {
		t.Fatal("rejected DATA must not consume the stream window")
	}
}

func TestWindowUpdateZeroIncrementRejected(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceiveHeaders(1, false, nil, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	if _, err := c.ReceiveWindowUpdate(1, 0); err == nil {
		t.Fatal("WINDOW_UPDATE increment of 0 should be rejected")
	}
}

func TestConnectionLevelWindowUpdate(t *testing.T) {
	c := newTestConn()
	before := c.connSendWindow.Size()
	change, err := c.ReceiveWindowUpdate(0, 1000)
	if err != nil {
		t.Fatalf("ReceiveWindowUpdate: %v", err)
	}
	if change.WindowSize != before+1000 {
		t.Fatalf("WindowSize = %d, want %d", change.WindowSize, before+1000)
	}
}

func TestRSTStreamClosesAndMarksRecentlyReset(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceiveHeaders(1, false, nil, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	change, err := c.ReceiveRSTStream(1, h2wire.ErrCodeCancel)
	if err != nil {
		t.Fatalf("ReceiveRSTStream: %v", err)
	}
	if change.Kind != ChangeStreamClosed {
		t.Fatalf("Kind = %v, want ChangeStreamClosed", change.Kind)
	}
	if !c.wasRecentlyReset(1) {
		t.Fatal("stream 1 should be in the recently-reset set")
	}
	if _, err := c.ReceiveData(1, 10, false); err != nil {
		t.Fatalf("DATA for a recently-reset stream should be silently discarded, got error: %v", err)
	}
}

func TestSettingsInitialWindowSizeDeltaRebaselinesOpenStreams(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceiveHeaders(1, false, nil, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	s, _ := c.Get(1)
	before := s.SendWindow.Size()

	_, err := c.ReceiveSettings([]h2wire.Setting{{ID: h2wire.SettingInitialWindowSize, Val: uint32(before) - 1000}}, false)
	if err != nil {
		t.Fatalf("ReceiveSettings: %v", err)
	}
	if got := s.SendWindow.Size(); got != before-1000 {
		t.Fatalf("SendWindow after SETTINGS delta = %d, want %d", got, before-1000)
	}
}

func TestSettingsDeltaSkipsRecentlyResetStreams(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceiveHeaders(1, false, nil, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	if _, err := c.ReceiveRSTStream(1, h2wire.ErrCodeCancel); err != nil {
		t.Fatalf("ReceiveRSTStream: %v", err)
	}
	// Should not panic or error even though stream 1 no longer exists in the map.
	if _, err := c.ReceiveSettings([]h2wire.Setting{{ID: h2wire.SettingInitialWindowSize, Val: 1000}}, false); err != nil {
		t.Fatalf("ReceiveSettings after reset: %v", err)
	}
}

func TestLocalSettingsApplyOnlyOnAck(t *testing.T) {
	c := newTestConn()
	newSettings := DefaultSettings()
	newSettings.InitialWindowSize = 10000
	if _, err := c.SendSettings(newSettings); err != nil {
		t.Fatalf("SendSettings: %v", err)
	}
	if c.local.InitialWindowSize == 10000 {
		t.Fatal("local settings must not apply before ACK")
	}
	if _, err := c.ReceiveSettings(nil, true); err != nil {
		t.Fatalf("ReceiveSettings(ack): %v", err)
	}
	if c.local.InitialWindowSize != 10000 {
		t.Fatal("local settings should apply once ACKed")
	}
}

func TestUnexpectedSettingsAckIsConnectionError(t *testing.T) {
	c := newTestConn()
	_, err := c.ReceiveSettings(nil, true)
	if err == nil {
		t.Fatal("an ACK with nothing pending should be a connection error")
	}
	if c.State() != StateClosed {
		t.Fatal("unexpected SETTINGS ACK should close the connection")
	}
}

func TestGoAwayReceivedQuiesces(t *testing.T) {
	c := newTestConn()
	change, err := c.ReceiveGoAway(0, h2wire.ErrCodeNo)
	if err != nil {
		t.Fatalf("ReceiveGoAway: %v", err)
	}
	if change.Kind != ChangeGoAway {
		t.Fatalf("Kind = %v, want ChangeGoAway", change.Kind)
	}
	if c.State() != StateGoAway {
		t.Fatalf("state = %v, want StateGoAway", c.State())
	}
}

func TestNewStreamRefusedDuringGoAway(t *testing.T) {
	c := newTestConn()
	if _, err := c.InitiateGoAway(h2wire.ErrCodeNo); err != nil {
		t.Fatalf("InitiateGoAway: %v", err)
	}
	if _, err := c.ReceiveHeaders(1, false, nil, nil); err == nil {
		t.Fatal("a new stream after GOAWAY should be refused")
	}
}

func TestDispatchAfterConnectionClosedRejected(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceiveHeaders(2, false, nil, nil); err == nil {
		t.Fatal("expected the even-stream-ID protocol violation to fail")
	}
	if _, err := c.ReceiveHeaders(3, false, nil, nil); err == nil {
		t.Fatal("dispatch after the connection closed should be rejected")
	}
}

func TestMaxConcurrentStreamsEnforced(t *testing.T) {
	settings := DefaultSettings()
	settings.MaxConcurrentStreams = 1
	c := New(settings)
	if _, err := c.ReceiveHeaders(1, false, nil, nil); err != nil {
		t.Fatalf("ReceiveHeaders(1): %v", err)
	}
	if _, err := c.ReceiveHeaders(3, false, nil, nil); err == nil {
		t.Fatal("a second concurrent stream beyond MAX_CONCURRENT_STREAMS=1 should be refused")
	}
}

func TestPriorityRecordedOnExistingStream(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceiveHeaders(1, false, nil, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	if _, err := c.ReceivePriority(1, 0, 42, false); err != nil {
		t.Fatalf("ReceivePriority: %v", err)
	}
	s, _ := c.Get(1)
	if s.Priority.Weight != 42 {
		t.Fatalf("Weight = %d, want 42", s.Priority.Weight)
	}
}

func TestPriorityOnUnknownStreamIgnored(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceivePriority(7, 0, 42, false); err != nil {
		t.Fatalf("ReceivePriority on unknown stream should be a no-op, got error: %v", err)
	}
}

func TestReceiveDataOnStreamZeroIsConnectionError(t *testing.T) {
	c := newTestConn()
	_, err := c.ReceiveData(0, 10, false)
	if err == nil {
		t.Fatal("DATA on stream 0 should error")
	}
	connErr, ok := err.(*h2error.ConnectionError)
	if !ok {
		t.Fatalf("error = %T, want *h2error.ConnectionError", err)
	}
	if connErr.Code != h2wire.ErrCodeProtocol {
		t.Fatalf("Code = %v, want ErrCodeProtocol", connErr.Code)
	}
	if c.State() != StateClosed {
		t.Fatal("DATA on stream 0 should close the connection")
	}
}

func TestGoAwayBulkClosureMatchesScenario(t *testing.T) {
	c := newTestConn()
	for _, id := range []uint32{1, 3, 7} {
		if _, err := c.ReceiveHeaders(id, false, nil, nil); err != nil {
			t.Fatalf("ReceiveHeaders(%d): %v", id, err)
		}
	}
	change, err := c.ReceiveGoAway(5, h2wire.ErrCodeNo)
	if err != nil {
		t.Fatalf("ReceiveGoAway: %v", err)
	}
	if change.Kind != ChangeBulkClosure {
		t.Fatalf("Kind = %v, want ChangeBulkClosure", change.Kind)
	}
	if len(change.ClosedStreamIDs) != 1 || change.ClosedStreamIDs[0] != 7 {
		t.Fatalf("ClosedStreamIDs = %v, want [7]", change.ClosedStreamIDs)
	}
	if _, ok := c.Get(1); !ok {
		t.Fatal("stream 1 should remain open below lastStreamID")
	}
	if _, ok := c.Get(3); !ok {
		t.Fatal("stream 3 should remain open below lastStreamID")
	}
	if _, ok := c.Get(7); ok {
		t.Fatal("stream 7 should have been bulk-closed")
	}
}

func TestGoAwayBulkClosureOrderingIsIncreasing(t *testing.T) {
	c := newTestConn()
	for _, id := range []uint32{9, 11, 13} {
		if _, err := c.ReceiveHeaders(id, false, nil, nil); err != nil {
			t.Fatalf("ReceiveHeaders(%d): %v", id, err)
		}
	}
	change, err := c.ReceiveGoAway(1, h2wire.ErrCodeNo)
	if err != nil {
		t.Fatalf("ReceiveGoAway: %v", err)
	}
	want := []uint32{9, 11, 13}
	if len(change.ClosedStreamIDs) != len(want) {
		t.Fatalf("ClosedStreamIDs = %v, want %v", change.ClosedStreamIDs, want)
	}
	for i, id := range want {
		if change.ClosedStreamIDs[i] != id {
			t.Fatalf("ClosedStreamIDs = %v, want %v", change.ClosedStreamIDs, want)
		}
	}
}

func TestTeardownClosesAllStreamsAndIsIdempotent(t *testing.T) {
	c := newTestConn()
	for _, id := range []uint32{1, 3, 5} {
		if _, err := c.ReceiveHeaders(id, false, nil, nil); err != nil {
			t.Fatalf("ReceiveHeaders(%d): %v", id, err)
		}
	}
	change, err := c.Teardown()
	if err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if change.Kind != ChangeBulkClosure {
		t.Fatalf("Kind = %v, want ChangeBulkClosure", change.Kind)
	}
	want := []uint32{1, 3, 5}
	if len(change.ClosedStreamIDs) != len(want) {
		t.Fatalf("ClosedStreamIDs = %v, want %v", change.ClosedStreamIDs, want)
	}
	if c.StreamCount() != 0 {
		t.Fatalf("StreamCount = %d, want 0 after teardown", c.StreamCount())
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %v, want StateClosed", c.State())
	}

	change, err = c.Teardown()
	if err != nil {
		t.Fatalf("second Teardown: %v", err)
	}
	if change.Kind != ChangeNone {
		t.Fatalf("second Teardown Kind = %v, want ChangeNone", change.Kind)
	}
}

func TestContentLengthViolationExceededMidStream(t *testing.T) {
	c := newTestConn()
	headers := [][2]string{{"content-length", "10"}}
	if _, err := c.ReceiveHeaders(1, false, headers, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	s, _ := c.Get(1)
	if !s.ContentLengthDeclared || s.ContentLengthValue != 10 {
		t.Fatalf("content-length not recorded: declared=%v value=%d", s.ContentLengthDeclared, s.ContentLengthValue)
	}
	if _, err := c.ReceiveData(1, 11, false); err == nil {
		t.Fatal("DATA exceeding the declared content-length should error")
	}
}

func TestContentLengthViolationShortAtEndStream(t *testing.T) {
	c := newTestConn()
	headers := [][2]string{{"content-length", "10"}}
	if _, err := c.ReceiveHeaders(1, false, headers, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	if _, err := c.ReceiveData(1, 5, true); err == nil {
		t.Fatal("END_STREAM DATA short of the declared content-length should error")
	}
}

func TestContentLengthSatisfiedHalfClosesStreamNormally(t *testing.T) {
	c := newTestConn()
	headers := [][2]string{{"content-length", "10"}}
	if _, err := c.ReceiveHeaders(1, false, headers, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	change, err := c.ReceiveData(1, 10, true)
	if err != nil {
		t.Fatalf("ReceiveData: %v", err)
	}
	if change.Kind != ChangeStreamStateChanged {
		t.Fatalf("Kind = %v, want ChangeStreamStateChanged", change.Kind)
	}
}

func TestReceivePushPromiseOpensReservedRemoteStream(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceiveHeaders(1, false, nil, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	change, err := c.ReceivePushPromise(1, 2, nil)
	if err != nil {
		t.Fatalf("ReceivePushPromise: %v", err)
	}
	if change.Kind != ChangeStreamOpened {
		t.Fatalf("Kind = %v, want ChangeStreamOpened", change.Kind)
	}
	s, ok := c.Get(2)
	if !ok {
		t.Fatal("promised stream 2 should be tracked")
	}
	if s.State != h2stream.StateReservedRemote {
		t.Fatalf("state = %v, want StateReservedRemote", s.State)
	}
}

func TestReceivePushPromiseRejectsOnUnreadyAssociatedStream(t *testing.T) {
	c := newTestConn()
	_, err := c.ReceivePushPromise(1, 2, nil)
	if err == nil {
		t.Fatal("PUSH_PROMISE referencing a non-existent associated stream should error")
	}
}

func TestSendPushPromiseWithoutEndStreamOpensReservedLocal(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceiveHeaders(1, false, nil, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	change, err := c.SendPushPromise(1, 2, false)
	if err != nil {
		t.Fatalf("SendPushPromise: %v", err)
	}
	if change.Kind != ChangeStreamOpened {
		t.Fatalf("Kind = %v, want ChangeStreamOpened", change.Kind)
	}
	s, ok := c.Get(2)
	if !ok {
		t.Fatal("promised stream 2 should be tracked")
	}
	if s.State != h2stream.StateHalfClosedRemote {
		t.Fatalf("state = %v, want StateHalfClosedRemote after sending non-terminal HEADERS", s.State)
	}
}

func TestSendPushPromiseWithEndStreamClosesImmediately(t *testing.T) {
	c := newTestConn()
	if _, err := c.ReceiveHeaders(1, false, nil, nil); err != nil {
		t.Fatalf("ReceiveHeaders: %v", err)
	}
	change, err := c.SendPushPromise(1, 2, true)
	if err != nil {
		t.Fatalf("SendPushPromise: %v", err)
	}
	if change.Kind != ChangeStreamCreatedAndClosed {
		t.Fatalf("Kind = %v, want ChangeStreamCreatedAndClosed", change.Kind)
	}
	if _, ok := c.Get(2); ok {
		t.Fatal("promised stream 2 should not remain tracked after an END_STREAM push response")
	}
	if !c.wasRecentlyReset(2) {
		t.Fatal("promised stream 2 should be recorded in the recently-reset set")
	}
}
