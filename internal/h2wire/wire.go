// Package h2wire holds the wire-level constants the connection and stream
// state machines dispatch on: frame types, frame flags, error codes, and
// SETTINGS identifiers. It re-exports golang.org/x/net/http2's own constants
// under names local to this module instead of redeclaring the magic numbers.
package h2wire

import "golang.org/x/net/http2"

// FrameType identifies the kind of an HTTP/2 frame.
type FrameType = http2.FrameType

const (
	FrameData         = http2.FrameData
	FrameHeaders      = http2.FrameHeaders
	FramePriority     = http2.FramePriority
	FrameRSTStream    = http2.FrameRSTStream
	FrameSettings     = http2.FrameSettings
	FramePushPromise  = http2.FramePushPromise
	FramePing         = http2.FramePing
	FrameGoAway       = http2.FrameGoAway
	FrameWindowUpdate = http2.FrameWindowUpdate
	FrameContinuation = http2.FrameContinuation
)

// Flags are the per-frame-type bit flags.
type Flags = http2.Flags

const (
	FlagEndStream  = http2.FlagDataEndStream
	FlagEndHeaders = http2.FlagHeadersEndHeaders
	FlagPadded     = http2.FlagDataPadded
	FlagPriority   = http2.FlagHeadersPriority
	FlagSettingsAck = http2.FlagSettingsAck
	FlagPingAck    = http2.FlagPingAck
)

// ErrCode is the HTTP/2 error code carried on RST_STREAM/GOAWAY frames.
type ErrCode = http2.ErrCode

const (
	ErrCodeNo                 = http2.ErrCodeNo
	ErrCodeProtocol           = http2.ErrCodeProtocol
	ErrCodeInternal           = http2.ErrCodeInternal
	ErrCodeFlowControl        = http2.ErrCodeFlowControl
	ErrCodeSettingsTimeout    = http2.ErrCodeSettingsTimeout
	ErrCodeStreamClosed       = http2.ErrCodeStreamClosed
	ErrCodeFrameSize          = http2.ErrCodeFrameSize
	ErrCodeRefusedStream      = http2.ErrCodeRefusedStream
	ErrCodeCancel             = http2.ErrCodeCancel
	ErrCodeCompression        = http2.ErrCodeCompression
	ErrCodeConnect            = http2.ErrCodeConnect
	ErrCodeEnhanceYourCalm    = http2.ErrCodeEnhanceYourCalm
	ErrCodeInadequateSecurity = http2.ErrCodeInadequateSecurity
	ErrCodeHTTP11Required     = http2.ErrCodeHTTP11Required
)

// SettingID identifies a single entry inside a SETTINGS frame.
type SettingID = http2.SettingID

const (
	SettingHeaderTableSize      = http2.SettingHeaderTableSize
	SettingEnablePush           = http2.SettingEnablePush
	SettingMaxConcurrentStreams = http2.SettingMaxConcurrentStreams
	SettingInitialWindowSize    = http2.SettingInitialWindowSize
	SettingMaxFrameSize         = http2.SettingMaxFrameSize
	SettingMaxHeaderListSize    = http2.SettingMaxHeaderListSize
)

// Setting pairs a SettingID with its value, as carried in a SETTINGS frame.
type Setting = http2.Setting

// DefaultInitialWindowSize is the HTTP/2 default per-stream flow-control
// window before any SETTINGS negotiation (RFC 7540 §6.9.2).
const DefaultInitialWindowSize = 65535

// DefaultMaxFrameSize is the HTTP/2 default maximum frame payload size.
const DefaultMaxFrameSize = 16384

// MaxWindowSize is the largest value a flow-control window may legally hold.
const MaxWindowSize = (1 << 31) - 1

// MinWindowSize is the smallest (most negative) value a flow-control window
// may legally hold after a SETTINGS-driven shrink.
const MinWindowSize = -MaxWindowSize
