// Package h2transport is the gnet-driven I/O loop around internal/h2conn:
// it owns the TCP socket, buffers bytes until a full frame is available,
// calls internal/h2frame's Parser/Writer to turn bytes into frames and back
// (CONTINUATION-merging and HPACK coding included), drives internal/h2conn's
// dispatch, and performs the I/O side effects (RST_STREAM, GOAWAY, SETTINGS
// ACK) a returned ConnectionStateChange calls for. None of this package's
// buffering/socket-ownership concerns are part of the state machine core;
// child-channel plumbing lives here, outside it, as its own collaborator.
package h2transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/albertbausili/celeris/internal/h2conn"
	"github.com/albertbausili/celeris/internal/h2error"
	"github.com/albertbausili/celeris/internal/h2frame"
	"github.com/albertbausili/celeris/internal/h2wire"
)

const http2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// isPrefacePrefix reports whether got, however short, is consistent with
// being a prefix of the connection preface.
func isPrefacePrefix(got []byte) bool {
	return bytes.HasPrefix([]byte(http2Preface), got)
}

// prefaceTimeout bounds how long a connection may sit without having sent a
// complete, valid preface before it is dropped.
const prefaceTimeout = 1 * time.Second

// Server implements gnet's event handler interface for HTTP/2 connections.
type Server struct {
	gnet.BuiltinEventEngine

	cfg    Config
	logger *log.Logger
	tracer *tracer
	engine gnet.Engine

	activeConnsMu sync.Mutex
	activeConns   []gnet.Conn
}

// NewServer creates a server that will drive one internal/h2conn.Conn per
// accepted connection.
func NewServer(cfg Config) *Server {
	if err := cfg.Validate(); err != nil {
		cfg = DefaultConfig()
	}
	return &Server{cfg: cfg, logger: cfg.Logger, tracer: newTracer(cfg.Tracing)}
}

// Start runs the gnet event loop; it blocks until the loop exits.
func (s *Server) Start() error {
	opts := []gnet.Option{
		gnet.WithMulticore(s.cfg.Multicore),
		gnet.WithReusePort(s.cfg.ReusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
	}
	if s.cfg.NumEventLoop > 0 {
		opts = append(opts, gnet.WithNumEventLoop(s.cfg.NumEventLoop))
	}
	return gnet.Run(s, "tcp://"+s.cfg.Addr, opts...)
}

// Stop asks gnet to shut down, first sending GOAWAY on every tracked
// connection so peers are told to stop opening new streams.
func (s *Server) Stop(ctx context.Context) error {
	s.activeConnsMu.Lock()
	conns := append([]gnet.Conn(nil), s.activeConns...)
	s.activeConnsMu.Unlock()

	for _, gc := range conns {
		if hc, ok := gc.Context().(*connection); ok {
			hc.initiateShutdown()
		}
	}
	return s.engine.Stop(ctx)
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.logger.Printf("h2transport: listening on %s (multicore=%v)", s.cfg.Addr, s.cfg.Multicore)
	return gnet.None
}

func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	hc := newConnection(c, s.cfg, s.logger, s.tracer)
	c.SetContext(hc)

	s.activeConnsMu.Lock()
	s.activeConns = append(s.activeConns, c)
	s.activeConnsMu.Unlock()

	connectionsActive.Inc()
	return nil, gnet.None
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	if hc, ok := c.Context().(*connection); ok {
		hc.close()
	}
	s.activeConnsMu.Lock()
	for i, gc := range s.activeConns {
		if gc == c {
			s.activeConns[i] = s.activeConns[len(s.activeConns)-1]
			s.activeConns = s.activeConns[:len(s.activeConns)-1]
			break
		}
	}
	s.activeConnsMu.Unlock()
	connectionsActive.Dec()
	return gnet.None
}

func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	hc, ok := c.Context().(*connection)
	if !ok {
		return gnet.Close
	}
	buf, err := c.Next(-1)
	if err != nil {
		return gnet.Close
	}
	if err := hc.handleData(buf); err != nil {
		s.logger.Printf("h2transport: %v", err)
		return gnet.Close
	}
	return gnet.None
}

// connection is the per-socket driver pairing one internal/h2conn.Conn with
// its frame codec and write path.
type connection struct {
	core   *h2conn.Conn
	parser *h2frame.Parser
	hdec   *hpack.Decoder
	out    *connWriter
	logger *log.Logger
	tracer *tracer

	buf             bytes.Buffer
	prefaceReceived bool
	prefaceStart    time.Time

	ctx         context.Context
	connSpan    trace.Span
	streamMu    sync.Mutex
	streamSpans map[uint32]trace.Span
}

func newConnection(gc gnet.Conn, cfg Config, logger *log.Logger, tr *tracer) *connection {
	local := h2conn.DefaultSettings()
	local.MaxConcurrentStreams = cfg.MaxConcurrentStreams
	local.MaxFrameSize = cfg.MaxFrameSize
	local.InitialWindowSize = cfg.InitialWindowSize

	out := &connWriter{gc: gc}
	hc := &connection{
		core:         h2conn.New(local),
		out:          out,
		logger:       logger,
		tracer:       tr,
		prefaceStart: time.Now(),
		streamSpans:  make(map[uint32]trace.Span),
	}
	out.writer = h2frame.NewWriter(out)
	hc.hdec = hpack.NewDecoder(cfg.MaxFrameSize, nil)

	spanCtx, span := tr.startConnection(context.Background(), gc.RemoteAddr().String())
	hc.ctx = spanCtx
	hc.connSpan = span
	return hc
}

func (c *connection) close() {
	c.streamMu.Lock()
	for id, span := range c.streamSpans {
		endStream(span, "connectionClosed", nil)
		delete(c.streamSpans, id)
	}
	c.streamMu.Unlock()
	c.connSpan.End()
}

func (c *connection) initiateShutdown() {
	change, err := c.core.InitiateGoAway(h2wire.ErrCodeNo)
	if err != nil {
		return
	}
	goAwaySentTotal.WithLabelValues(change.ErrCode.String()).Inc()
	_ = c.out.writer.WriteGoAway(change.LastStreamID, change.ErrCode, nil)
}

// handleData is the per-OnTraffic entry point: accumulate bytes, consume
// the connection preface once, then parse and dispatch complete frames.
func (c *connection) handleData(data []byte) error {
	c.buf.Write(data)

	if !c.prefaceReceived {
		if err := c.consumePreface(); err != nil {
			return err
		}
		if !c.prefaceReceived {
			return nil
		}
	}

	for c.buf.Len() >= 9 {
		header := c.buf.Bytes()[:9]
		length := uint32(header[0])<<16 | uint32(header[1])<<8 | uint32(header[2])
		if c.buf.Len() < 9+int(length) {
			break // wait for the rest of this frame on the next OnTraffic call
		}

		fr, err := c.parser.ReadNextFrame()
		if err != nil {
			return fmt.Errorf("h2transport: frame decode: %w", err)
		}
		if err := c.dispatch(fr); err != nil {
			return err
		}
	}
	return nil
}

func (c *connection) consumePreface() error {
	if time.Since(c.prefaceStart) > prefaceTimeout {
		return fmt.Errorf("h2transport: connection preface not received within %s", prefaceTimeout)
	}
	if c.buf.Len() < len(http2Preface) {
		if c.buf.Len() > 0 && !isPrefacePrefix(c.buf.Bytes()) {
			return fmt.Errorf("h2transport: invalid connection preface prefix")
		}
		return nil
	}
	preface := make([]byte, len(http2Preface))
	_, _ = c.buf.Read(preface)
	if !isPrefacePrefix(preface) || len(preface) != len(http2Preface) {
		return fmt.Errorf("h2transport: invalid connection preface")
	}
	c.prefaceReceived = true

	c.parser = h2frame.NewParser()
	c.parser.BindReader(&c.buf)
	c.parser.EnableHeaderMerging(c.hdec)

	return c.out.writer.WriteSettings(
		h2wire.Setting{ID: h2wire.SettingMaxConcurrentStreams, Val: 100},
	)
}

// toHeaderPairs converts a decoded HPACK field list into the name/value
// pairs internal/h2conn's HEADERS dispatch inspects for content-length.
func toHeaderPairs(fields []hpack.HeaderField) [][2]string {
	out := make([][2]string, len(fields))
	for i, f := range fields {
		out[i] = [2]string{f.Name, f.Value}
	}
	return out
}

// dispatch turns one decoded http2.Frame into the matching internal/h2conn
// call, then performs the I/O the returned ConnectionStateChange calls for.
func (c *connection) dispatch(fr http2.Frame) error {
	switch f := fr.(type) {
	case *http2.MetaHeadersFrame:
		var prio *h2conn.PriorityInfo
		if f.HasPriority() {
			prio = &h2conn.PriorityInfo{
				StreamDependency: f.Priority.StreamDep,
				Weight:           f.Priority.Weight,
				Exclusive:        f.Priority.Exclusive,
			}
		}
		change, err := c.core.ReceiveHeaders(f.StreamID, f.StreamEnded(), toHeaderPairs(f.Fields), prio)
		return c.settle(f.StreamID, change, err)

	case *http2.PushPromiseFrame:
		// PUSH_PROMISE + CONTINUATION merging is not offered by
		// Framer.ReadMetaHeaders (it only wraps HEADERS), so the header
		// block here is decoded directly; it is assumed to fit in one frame.
		headers, err := c.hdec.DecodeFull(f.HeaderBlockFragment())
		if err != nil {
			return fmt.Errorf("h2transport: push promise header decode: %w", err)
		}
		change, err := c.core.ReceivePushPromise(f.StreamID, f.PromiseID, toHeaderPairs(headers))
		return c.settle(f.PromiseID, change, err)

	case *http2.DataFrame:
		change, err := c.core.ReceiveData(f.Header().StreamID, uint32(len(f.Data())), f.StreamEnded())
		return c.settle(f.Header().StreamID, change, err)

	case *http2.WindowUpdateFrame:
		change, err := c.core.ReceiveWindowUpdate(f.StreamID, f.Increment)
		return c.settle(f.StreamID, change, err)

	case *http2.RSTStreamFrame:
		change, err := c.core.ReceiveRSTStream(f.StreamID, f.ErrCode)
		return c.settle(f.StreamID, change, err)

	case *http2.SettingsFrame:
		if f.IsAck() {
			change, err := c.core.ReceiveSettings(nil, true)
			return c.settle(0, change, err)
		}
		entries := make([]h2wire.Setting, 0, f.NumSettings())
		_ = f.ForeachSetting(func(s http2.Setting) error {
			entries = append(entries, h2wire.Setting{ID: s.ID, Val: s.Val})
			return nil
		})
		change, err := c.core.ReceiveSettings(entries, false)
		if err != nil {
			return c.settle(0, change, err)
		}
		return c.out.writer.WriteSettingsAck()

	case *http2.GoAwayFrame:
		change, err := c.core.ReceiveGoAway(f.LastStreamID, f.ErrCode)
		return c.settle(0, change, err)

	case *http2.PingFrame:
		if f.IsAck() {
			_, err := c.core.ReceivePing(true)
			return err
		}
		_, err := c.core.ReceivePing(false)
		if err != nil {
			return err
		}
		return c.out.writer.WritePing(true, f.Data)

	case *http2.PriorityFrame:
		change, err := c.core.ReceivePriority(f.StreamID, f.StreamDep, f.Weight, f.Exclusive)
		return c.settle(f.StreamID, change, err)
	}
	return nil
}

// settle performs the I/O side effects (metrics, spans, RST_STREAM/GOAWAY
// writes) called for by a dispatch result, translating a *h2error.StreamError
// into RST_STREAM and a *h2error.ConnectionError into GOAWAY.
func (c *connection) settle(streamID uint32, change h2conn.ConnectionStateChange, err error) error {
	if err == nil {
		switch change.Kind {
		case h2conn.ChangeStreamOpened:
			streamsOpenedTotal.Inc()
			streamsActive.Inc()
			_, span := c.tracer.startStream(c.ctx, change.StreamID)
			c.streamMu.Lock()
			c.streamSpans[change.StreamID] = span
			c.streamMu.Unlock()
		case h2conn.ChangeStreamClosed:
			streamsActive.Dec()
			streamsClosedTotal.WithLabelValues("normal").Inc()
			c.streamMu.Lock()
			span, ok := c.streamSpans[change.StreamID]
			delete(c.streamSpans, change.StreamID)
			c.streamMu.Unlock()
			if ok {
				endStream(span, change.ToState.String(), nil)
			}
		case h2conn.ChangeStreamCreatedAndClosed:
			streamsOpenedTotal.Inc()
			streamsClosedTotal.WithLabelValues("normal").Inc()
		case h2conn.ChangeBulkClosure:
			for _, id := range change.ClosedStreamIDs {
				streamsActive.Dec()
				streamsClosedTotal.WithLabelValues("goAway").Inc()
				c.streamMu.Lock()
				span, ok := c.streamSpans[id]
				delete(c.streamSpans, id)
				c.streamMu.Unlock()
				if ok {
					endStream(span, "bulkClosure", nil)
				}
			}
		}
		return nil
	}

	var streamErr *h2error.StreamError
	if errors.As(err, &streamErr) {
		streamsClosedTotal.WithLabelValues("reset").Inc()
		c.streamMu.Lock()
		span, ok := c.streamSpans[streamErr.StreamID]
		delete(c.streamSpans, streamErr.StreamID)
		c.streamMu.Unlock()
		if ok {
			endStream(span, "reset", streamErr)
		}
		return c.out.writer.WriteRSTStream(streamErr.StreamID, streamErr.Code)
	}

	var connErr *h2error.ConnectionError
	if errors.As(err, &connErr) {
		goAwaySentTotal.WithLabelValues(connErr.Code.String()).Inc()
		_ = c.out.writer.WriteGoAway(streamID, connErr.Code, []byte(connErr.Reason))
		return connErr
	}
	return err
}

// connWriter adapts a gnet.Conn to io.Writer for internal/h2frame.Writer,
// which owns the actual outbound frame encoding.
type connWriter struct {
	gc     gnet.Conn
	writer *h2frame.Writer
}

func (w *connWriter) Write(p []byte) (int, error) {
	if err := w.gc.AsyncWrite(p, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}
