package h2transport

import (
	"io"
	"log"
)

// Config holds the transport's configuration: the gnet socket options, the
// HTTP/2 SETTINGS this connection will advertise, and an ambient logger.
// HTTP/1.1, TLS/ALPN negotiation, and keep-alive policy live outside this
// component's scope.
type Config struct {
	Addr         string
	Multicore    bool
	NumEventLoop int
	ReusePort    bool

	MaxConcurrentStreams uint32
	MaxFrameSize         uint32
	InitialWindowSize    uint32

	Logger *log.Logger

	Tracing TracingConfig
}

func newSilentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:                 ":8080",
		Multicore:            true,
		NumEventLoop:         0,
		ReusePort:            true,
		MaxConcurrentStreams: 100,
		MaxFrameSize:         16384,
		InitialWindowSize:    65535,
		Logger:               newSilentLogger(),
		Tracing:              DefaultTracingConfig(),
	}
}

// Validate checks and normalizes the configuration values, clamping instead
// of failing.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxFrameSize < 16384 {
		c.MaxFrameSize = 16384
	}
	if c.MaxFrameSize > (1<<24)-1 {
		c.MaxFrameSize = (1 << 24) - 1
	}
	if c.InitialWindowSize == 0 {
		c.InitialWindowSize = 65535
	}
	if c.MaxConcurrentStreams == 0 {
		c.MaxConcurrentStreams = 100
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.Tracing.TracerName == "" {
		c.Tracing = DefaultTracingConfig()
	}
	return nil
}
