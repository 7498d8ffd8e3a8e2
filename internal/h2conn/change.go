package h2conn

import (
	"github.com/albertbausili/celeris/internal/h2stream"
	"github.com/albertbausili/celeris/internal/h2wire"
)

// ChangeKind tags the variant of a ConnectionStateChange. The zero value,
// ChangeNone, is returned by dispatch operations that validated and applied
// a frame but produced nothing a caller needs to act on beyond "continue".
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeStreamOpened
	ChangeStreamStateChanged
	ChangeStreamClosed
	ChangeStreamCreatedAndClosed
	ChangeWindowUpdated
	ChangeSettingsApplied
	ChangeGoAway
	ChangeBulkClosure
	ChangeConnectionClosed
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeNone:
		return "none"
	case ChangeStreamOpened:
		return "streamOpened"
	case ChangeStreamStateChanged:
		return "streamStateChanged"
	case ChangeStreamClosed:
		return "streamClosed"
	case ChangeStreamCreatedAndClosed:
		return "streamCreatedAndClosed"
	case ChangeWindowUpdated:
		return "windowUpdated"
	case ChangeSettingsApplied:
		return "settingsApplied"
	case ChangeGoAway:
		return "goAway"
	case ChangeBulkClosure:
		return "bulkClosure"
	case ChangeConnectionClosed:
		return "connectionClosed"
	default:
		return "unknown"
	}
}

// ConnectionStateChange is the single structured event every dispatch
// operation returns alongside its error. Only the fields relevant to Kind
// are meaningful; it is a tagged union expressed as a flat struct (the same
// Type+Flags+Payload idiom internal/h2frame.Frame uses) rather than an
// interface hierarchy.
type ConnectionStateChange struct {
	Kind ChangeKind

	StreamID uint32 // 0 for a connection-scoped change

	FromState h2stream.State
	ToState   h2stream.State

	// WindowSize is the new window value for ChangeWindowUpdated; StreamID
	// 0 means the connection-level window, otherwise the named stream.
	WindowSize int32

	// LastStreamID and ErrCode are populated for ChangeGoAway and ChangeBulkClosure.
	LastStreamID uint32
	ErrCode      h2wire.ErrCode

	// ClosedStreamIDs carries every stream ID a ChangeBulkClosure swept up,
	// in strictly increasing order.
	ClosedStreamIDs []uint32

	// AppliedSettings is populated for ChangeSettingsApplied.
	AppliedSettings Settings
}
