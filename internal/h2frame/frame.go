// Package h2frame is the wire-level collaborator the connection state
// machine in internal/h2conn never needs to know about: reading raw bytes
// off the socket into frame headers/payloads, and HPACK-encoding/decoding
// header blocks into the [][2]string pairs internal/h2conn's HEADERS
// dispatch expects. Frame serialization and HPACK coding are external
// collaborators, not part of the state machine itself; this package's
// Type/Flags constants route through internal/h2wire so there is exactly
// one definition of each wire value in the module.
package h2frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/albertbausili/celeris/internal/h2wire"
)

// Frame is a generic, already-length-delimited HTTP/2 frame as read off the
// wire, before any type-specific interpretation.
type Frame struct {
	Type     h2wire.FrameType
	Flags    h2wire.Flags
	StreamID uint32
	Payload  []byte
}

// Parser reads HTTP/2 frames from a connection's byte stream.
type Parser struct {
	framer *http2.Framer
	buf    *bytes.Buffer
}

// NewParser creates a new frame parser.
func NewParser() *Parser {
	return &Parser{buf: new(bytes.Buffer)}
}

// InitReader binds the parser to a persistent reader, preserving
// CONTINUATION-sequencing state across frames the way http2.Framer requires.
func (p *Parser) InitReader(r io.Reader) {
	p.framer = http2.NewFramer(p.buf, r)
	p.framer.SetMaxReadFrameSize(1 << 20)
}

// Parse reads and parses a single HTTP/2 frame header+payload from r without
// going through http2.Framer, for callers that only need the raw bytes
// (e.g. a frame whose type this module does not otherwise interpret).
func (p *Parser) Parse(r io.Reader) (*Frame, error) {
	header := make([]byte, 9)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length := uint32(header[0])<<16 | uint32(header[1])<<8 | uint32(header[2])
	frameType := h2wire.FrameType(header[3])
	flags := h2wire.Flags(header[4])
	streamID := binary.BigEndian.Uint32(header[5:9]) & 0x7fffffff

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	return &Frame{Type: frameType, Flags: flags, StreamID: streamID, Payload: payload}, nil
}

// BindReader binds a persistent reader to the underlying http2.Framer so
// CONTINUATION expectations are preserved across calls to ReadNextFrame.
func (p *Parser) BindReader(r io.Reader) { p.InitReader(r) }

// EnableHeaderMerging assigns the HPACK decoder the underlying http2.Framer
// uses to merge a HEADERS frame's CONTINUATION fragments and decode the
// header block in one step, returning a *http2.MetaHeadersFrame from
// ReadNextFrame instead of the raw, unmerged http2.HeadersFrame.
func (p *Parser) EnableHeaderMerging(dec *hpack.Decoder) {
	p.framer.ReadMetaHeaders = dec
}

// ReadNextFrame reads the next frame using the bound reader, returning the
// richly-typed http2.Frame so CONTINUATION merging and padding stripping are
// handled by the well-tested upstream framer rather than reimplemented here.
func (p *Parser) ReadNextFrame() (http2.Frame, error) {
	if p.framer == nil {
		return nil, fmt.Errorf("h2frame: parser not initialized; call InitReader")
	}
	return p.framer.ReadFrame()
}

// Writer handles HTTP/2 frame writing.
type Writer struct {
	framer *http2.Framer
	writer io.Writer
	mu     sync.Mutex
}

// NewWriter creates a new frame writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{framer: http2.NewFramer(w, nil), writer: w}
}

// Flush flushes any buffered data, if the underlying writer supports it.
func (w *Writer) Flush() error {
	if flusher, ok := w.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// WriteSettings writes a SETTINGS frame.
func (w *Writer) WriteSettings(settings ...h2wire.Setting) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.framer.WriteSettings(settings...)
}

// WriteSettingsAck writes a SETTINGS acknowledgment frame.
func (w *Writer) WriteSettingsAck() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.framer.WriteSettingsAck()
}

// WriteHeaders writes HEADERS (and CONTINUATION) frames, fragmenting the
// already-HPACK-encoded header block by maxFrameSize.
func (w *Writer) WriteHeaders(streamID uint32, endStream bool, headerBlock []byte, maxFrameSize uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if maxFrameSize == 0 {
		maxFrameSize = h2wire.DefaultMaxFrameSize
	}

	remaining := headerBlock
	first := true
	for len(remaining) > 0 || first {
		chunkLen := int(maxFrameSize)
		if len(remaining) < chunkLen {
			chunkLen = len(remaining)
		}
		frag := remaining[:chunkLen]
		remaining = remaining[chunkLen:]

		if first {
			var flags http2.Flags
			if endStream {
				flags |= http2.FlagHeadersEndStream
			}
			if len(remaining) == 0 {
				flags |= http2.FlagHeadersEndHeaders
			}
			if err := w.framer.WriteRawFrame(http2.FrameHeaders, flags, streamID, frag); err != nil {
				return err
			}
			first = false
			continue
		}
		var flags http2.Flags
		if len(remaining) == 0 {
			flags |= http2.FlagContinuationEndHeaders
		}
		if err := w.framer.WriteRawFrame(http2.FrameContinuation, flags, streamID, frag); err != nil {
			return err
		}
	}
	return nil
}

// WriteData writes a DATA frame.
func (w *Writer) WriteData(streamID uint32, endStream bool, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(data) == 0 && !endStream {
		return nil
	}
	return w.framer.WriteData(streamID, endStream, data)
}

// WriteWindowUpdate writes a WINDOW_UPDATE frame.
func (w *Writer) WriteWindowUpdate(streamID uint32, increment uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.framer.WriteWindowUpdate(streamID, increment)
}

// WriteRSTStream writes a RST_STREAM frame.
func (w *Writer) WriteRSTStream(streamID uint32, code h2wire.ErrCode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.framer.WriteRSTStream(streamID, code)
}

// WriteGoAway writes a GOAWAY frame.
func (w *Writer) WriteGoAway(lastStreamID uint32, code h2wire.ErrCode, debugData []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.framer.WriteGoAway(lastStreamID, code, debugData)
}

// WritePing writes a PING frame.
func (w *Writer) WritePing(ack bool, data [8]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.framer.WritePing(ack, data)
}

// HeaderEncoder encodes decoded headers to HPACK wire format.
type HeaderEncoder struct {
	encoder *hpack.Encoder
	buf     *bytes.Buffer
}

var headerBufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// NewHeaderEncoder creates a new header encoder, reusing a pooled buffer.
func NewHeaderEncoder() *HeaderEncoder {
	buf, ok := headerBufPool.Get().(*bytes.Buffer)
	if !ok {
		buf = new(bytes.Buffer)
	}
	buf.Reset()
	return &HeaderEncoder{encoder: hpack.NewEncoder(buf), buf: buf}
}

// Encode encodes headers to HPACK format, returning an owned copy.
func (e *HeaderEncoder) Encode(headers [][2]string) ([]byte, error) {
	e.buf.Reset()
	for _, h := range headers {
		if err := e.encoder.WriteField(hpack.HeaderField{Name: h[0], Value: h[1]}); err != nil {
			return nil, err
		}
	}
	result := make([]byte, e.buf.Len())
	copy(result, e.buf.Bytes())
	return result, nil
}

// Close releases the encoder's pooled buffer. The encoder must not be used
// after Close.
func (e *HeaderEncoder) Close() {
	if e.buf == nil {
		return
	}
	e.buf.Reset()
	headerBufPool.Put(e.buf)
	e.buf = nil
	e.encoder = hpack.NewEncoder(new(bytes.Buffer))
}

// HeaderDecoder decodes HPACK-encoded header blocks into the [][2]string
// pairs internal/h2conn's HEADERS dispatch consumes.
type HeaderDecoder struct {
	decoder *hpack.Decoder
}

// NewHeaderDecoder creates a new header decoder with the given dynamic
// table size bound.
func NewHeaderDecoder(maxSize uint32) *HeaderDecoder {
	return &HeaderDecoder{decoder: hpack.NewDecoder(maxSize, nil)}
}

// Decode decodes one HPACK-encoded header block.
func (d *HeaderDecoder) Decode(data []byte) ([][2]string, error) {
	headers := make([][2]string, 0)
	d.decoder.SetEmitFunc(func(hf hpack.HeaderField) {
		headers = append(headers, [2]string{hf.Name, hf.Value})
	})
	if _, err := d.decoder.Write(data); err != nil {
		return nil, fmt.Errorf("h2frame: hpack decode error: %w", err)
	}
	return headers, nil
}
