package h2transport

import "testing"

func TestIsPrefacePrefixAcceptsTruePrefixes(t *testing.T) {
	if !isPrefacePrefix([]byte("PRI * HTTP/2")) {
		t.Fatal("expected true prefix of the preface to be accepted")
	}
	if !isPrefacePrefix(nil) {
		t.Fatal("expected empty input to be accepted as a trivial prefix")
	}
}

func TestIsPrefacePrefixRejectsMismatch(t *testing.T) {
	if isPrefacePrefix([]byte("GET / HTTP/1.1")) {
		t.Fatal("expected an HTTP/1.1 request line to be rejected")
	}
}

func TestIsPrefacePrefixRejectsTooLong(t *testing.T) {
	if isPrefacePrefix([]byte(http2Preface + "extra")) {
		t.Fatal("expected input longer than the preface to be rejected")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig should already validate cleanly: %v", err)
	}
	if cfg.Addr == "" {
		t.Fatal("expected a non-empty default address")
	}
}

func TestConfigValidateClampsZeroValues(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate clamps rather than errors: %v", err)
	}
	if cfg.MaxFrameSize < 16384 {
		t.Fatalf("expected MaxFrameSize clamped to the RFC 7540 minimum, got %d", cfg.MaxFrameSize)
	}
	if cfg.InitialWindowSize == 0 {
		t.Fatal("expected InitialWindowSize to be clamped to a non-zero default")
	}
	if cfg.MaxConcurrentStreams == 0 {
		t.Fatal("expected MaxConcurrentStreams to be clamped to a non-zero default")
	}
	if cfg.Logger == nil {
		t.Fatal("expected a logger to be filled in")
	}
}

func TestConfigValidateClampsOversizedMaxFrameSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFrameSize = 1 << 30
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxFrameSize > (1<<24)-1 {
		t.Fatalf("expected MaxFrameSize clamped to the RFC 7540 maximum, got %d", cfg.MaxFrameSize)
	}
}
