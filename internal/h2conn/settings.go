package h2conn

import "github.com/albertbausili/celeris/internal/h2wire"

// Settings is one side's negotiated SETTINGS values. Zero-valued fields are
// never meaningful on their own; always start from DefaultSettings.
type Settings struct {
	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
}

// DefaultSettings returns the RFC 7540 §6.5.2 default values a connection
// assumes before any SETTINGS frame changes them.
func DefaultSettings() Settings {
	return Settings{
		HeaderTableSize:      4096,
		EnablePush:           true,
		MaxConcurrentStreams: 0, // 0 == unlimited, per RFC 7540 §6.5.2
		InitialWindowSize:    h2wire.DefaultInitialWindowSize,
		MaxFrameSize:         h2wire.DefaultMaxFrameSize,
		MaxHeaderListSize:    0, // 0 == unlimited
	}
}

// apply overlays the entries carried in a SETTINGS frame onto s, returning
// the updated value and the signed delta applied to InitialWindowSize (0 if
// that setting was not present in entries).
func (s Settings) apply(entries []h2wire.Setting) (next Settings, initialWindowDelta int64) {
	next = s
	for _, e := range entries {
		switch e.ID {
		case h2wire.SettingHeaderTableSize:
			next.HeaderTableSize = e.Val
		case h2wire.SettingEnablePush:
			next.EnablePush = e.Val != 0
		case h2wire.SettingMaxConcurrentStreams:
			next.MaxConcurrentStreams = e.Val
		case h2wire.SettingInitialWindowSize:
			initialWindowDelta = int64(e.Val) - int64(s.InitialWindowSize)
			next.InitialWindowSize = e.Val
		case h2wire.SettingMaxFrameSize:
			next.MaxFrameSize = e.Val
		case h2wire.SettingMaxHeaderListSize:
			next.MaxHeaderListSize = e.Val
		}
	}
	return next, initialWindowDelta
}
