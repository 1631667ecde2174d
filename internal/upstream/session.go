// Package upstream implements the client-facing HTTP/2 adapter: the
// session state machine (component D), the stream registry (component B)
// and record (component C), the origin I/O glue (component E), and the
// priority store. "Upstream" here means the client-facing side, matching
// the reverse-proxy jargon this package's design is grounded on: the
// origin is called "downstream".
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"

	"github.com/relayforge/h2gate/config"
	"github.com/relayforge/h2gate/internal/errorpage"
	fc "github.com/relayforge/h2gate/internal/flowcontrol"
	"github.com/relayforge/h2gate/internal/frame"
	"github.com/relayforge/h2gate/internal/headers"
	"github.com/relayforge/h2gate/internal/metrics"
	"github.com/relayforge/h2gate/internal/tracing"
)

// OUTBUF_MAX_THRES from spec §4.D/§6: the shared backpressure threshold
// for the connection's pending-output byte count and, per stream, the
// combined outbound-plus-body-buffer size.
const outbufMaxThres = 65536

const settingsAckTimeout = 10 * time.Second

// defaultInitialWindowSize is RFC 7540 §6.5.2's SETTINGS_INITIAL_WINDOW_SIZE
// default, used for both the connection and every stream's remote send
// window until the client announces otherwise.
const defaultInitialWindowSize = 65535

// maxWindowSize is the largest permissible HTTP/2 flow-control window
// (2^31-1), per RFC 7540 §6.9.1. A WINDOW_UPDATE or SETTINGS change that
// would push a window past this is a FLOW_CONTROL_ERROR.
const maxWindowSize = 0x7fffffff

// OriginDialer attaches a new origin connection for a stream. The default
// implementation lives in internal/origin; spec §1 places the real
// connector's transport (TLS, pooling) out of scope for this core.
type OriginDialer interface {
	Dial(streamID uint32, scheme, authority string, s *Session) (OriginConn, error)
}

// Session is the per-connection adapter (component D / H2Upstream).
type Session struct {
	cfg    *config.Config
	conn   gnet.Conn
	dialer OriginDialer

	inbuf           bytes.Buffer
	prefaceReceived bool

	parser        *frame.Parser
	writer        *frame.Writer
	headerDec     *frame.HeaderDecoder
	headerEnc     *frame.HeaderEncoder
	readerBound   bool

	registry   *Registry
	connWindow *fc.Window

	// remoteWindow and peerInitialWindow track outbound (send-direction)
	// flow control for this session's own response DATA: the connection-
	// level credit the client has granted, and the per-stream starting
	// credit newly opened streams get, per the client's most recent
	// SETTINGS_INITIAL_WINDOW_SIZE.
	remoteWindow      int32
	peerInitialWindow int32

	outQueue bytes.Buffer // pending bytes not yet handed to the socket

	settingsAckTimer *time.Timer
	settingsAckMu    sync.Mutex

	// previousUpstream holds the PriorRequest handed over by an h2c
	// upgrade (UpgradeFromHTTP1). It is set once and never cleared.
	previousUpstream any

	originEvents chan OriginEvent

	spans map[uint32]trace.Span

	closed bool

	// pendingHeaders buffers a HEADERS frame's fragment across however
	// many CONTINUATION frames follow, since InitReader runs with
	// ReadMetaHeaders disabled (see internal/frame.Parser.InitReader) and
	// the connection's single shared HPACK decoder must only ever see a
	// fully reassembled block, never a truncated one.
	pendingHeaders *pendingHeaderBlock
}

type pendingHeaderBlock struct {
	streamID  uint32
	endStream bool
	block     bytes.Buffer
}

// NewSession constructs a session bound to a gnet connection.
func NewSession(c gnet.Conn, cfg *config.Config, dialer OriginDialer) *Session {
	s := &Session{
		cfg:               cfg,
		conn:              c,
		dialer:            dialer,
		parser:            frame.NewParser(),
		headerDec:         frame.NewHeaderDecoder(4096),
		headerEnc:         frame.NewHeaderEncoder(),
		registry:          NewRegistry(cfg.MaxConcurrentStreams),
		originEvents:      make(chan OriginEvent, 64),
		spans:             make(map[uint32]trace.Span),
		remoteWindow:      defaultInitialWindowSize,
		peerInitialWindow: defaultInitialWindowSize,
	}
	s.connWindow = fc.NewWindow(int32(65535 + cfg.ConnectionWindowDelta()))
	s.writer = frame.NewWriter(&s.outQueue)
	if cfg.UpstreamFrameDebug {
		s.writer.SetDebugLogger(cfg.Logger)
	}
	return s
}

// Start runs the startup sequence (spec §4.D): submit initial SETTINGS
// and, if configured, an initial connection WINDOW_UPDATE.
func (s *Session) Start() error {
	initWin := s.cfg.StreamInitialWindow()
	if err := s.writer.WriteSettings(
		http2.Setting{ID: http2.SettingMaxConcurrentStreams, Val: s.cfg.MaxConcurrentStreams},
		//nolint:gosec // bounded by config.Validate to [6,30] bits
		http2.Setting{ID: http2.SettingInitialWindowSize, Val: uint32(initWin)},
	); err != nil {
		return fmt.Errorf("upstream: write initial settings: %w", err)
	}
	s.armSettingsAckTimer()
	if delta := s.cfg.ConnectionWindowDelta(); delta > 0 {
		if err := s.writer.WriteWindowUpdate(0, delta); err != nil {
			return fmt.Errorf("upstream: write initial connection window update: %w", err)
		}
	}
	return s.flushSend()
}

// OnReadable pulls buffered client bytes, feeds them into the codec, then
// flushes. Returns an error to signal the caller (the gnet handler) that
// the connection must be closed.
func (s *Session) OnReadable(data []byte) error {
	s.inbuf.Write(data)

	if !s.prefaceReceived {
		if s.inbuf.Len() < len(frame.Preface) {
			return nil
		}
		got := make([]byte, len(frame.Preface))
		_, _ = s.inbuf.Read(got)
		if string(got) != frame.Preface {
			_ = s.writer.WriteGoAway(0, http2.ErrCodeProtocol, []byte("invalid connection preface"))
			_ = s.flushSend()
			return fmt.Errorf("upstream: invalid connection preface")
		}
		s.prefaceReceived = true
		if err := s.Start(); err != nil {
			return err
		}
	}

	if !s.readerBound {
		s.parser.InitReader(&sessionReader{s: s})
		s.readerBound = true
	}

	for s.inbuf.Len() >= 9 {
		var hdr [9]byte
		copy(hdr[:], s.inbuf.Bytes()[:9])
		length := int(hdr[0])<<16 | int(hdr[1])<<8 | int(hdr[2])
		if s.inbuf.Len() < 9+length {
			break // wait for the rest of the frame
		}
		f, err := s.parser.ReadNextFrame()
		if err != nil {
			_ = s.writer.WriteGoAway(0, http2.ErrCodeProtocol, []byte(err.Error()))
			_ = s.flushSend()
			return fmt.Errorf("upstream: frame parse error: %w", err)
		}
		if err := s.dispatchFrame(f); err != nil {
			return err
		}
	}
	return s.flushSend()
}

// OnWritable is invoked once the socket has capacity again.
func (s *Session) OnWritable() error { return s.flushSend() }

// sessionReader adapts s.inbuf into a persistent io.Reader for the
// framer, so CONTINUATION state survives across OnReadable calls (see
// internal/frame.Parser.InitReader).
type sessionReader struct{ s *Session }

func (r *sessionReader) Read(p []byte) (int, error) { return r.s.inbuf.Read(p) }

func (s *Session) dispatchFrame(f http2.Frame) error {
	if s.pendingHeaders != nil {
		// RFC 7540 §6.10: CONTINUATION must immediately follow the HEADERS
		// (or CONTINUATION) frame it completes, with no other frame types
		// interleaved on any stream in between.
		cont, ok := f.(*http2.ContinuationFrame)
		if !ok || cont.StreamID != s.pendingHeaders.streamID {
			return s.connectionError(http2.ErrCodeProtocol, "frame interleaved within a header block")
		}
		return s.handleContinuation(cont)
	}
	switch v := f.(type) {
	case *http2.SettingsFrame:
		return s.handleSettings(v)
	case *http2.HeadersFrame:
		return s.handleHeaders(v)
	case *http2.ContinuationFrame:
		return s.connectionError(http2.ErrCodeProtocol, "unexpected CONTINUATION frame")
	case *http2.DataFrame:
		return s.handleData(v)
	case *http2.WindowUpdateFrame:
		return s.handleWindowUpdate(v)
	case *http2.PriorityFrame:
		return s.handlePriority(v)
	case *http2.RSTStreamFrame:
		return s.handleRSTStream(v)
	case *http2.PushPromiseFrame:
		return s.handlePushPromise(v)
	case *http2.GoAwayFrame:
		s.closed = true
		return nil
	default:
		return nil // unknown frames are ignored per spec §6
	}
}

// connectionError sends GOAWAY with code, flushes it, and returns a non-nil
// error so the caller tears down the socket. Used for failures that corrupt
// connection-scoped state (the shared HPACK dynamic table, frame framing
// itself) where a per-stream RST_STREAM would leave the peer's and this
// session's HPACK tables out of sync for every later stream.
func (s *Session) connectionError(code http2.ErrCode, msg string) error {
	if err := s.terminateSession(code); err != nil {
		return err
	}
	if err := s.flushSend(); err != nil {
		return err
	}
	return fmt.Errorf("upstream: connection error (%v): %s", code, msg)
}

func (s *Session) handleSettings(f *http2.SettingsFrame) error {
	if f.IsAck() {
		s.cancelSettingsAckTimer()
		return nil
	}
	if err := f.ForeachSetting(func(setting http2.Setting) error {
		if setting.ID == http2.SettingInitialWindowSize && setting.Val > maxWindowSize {
			return fmt.Errorf("SETTINGS_INITIAL_WINDOW_SIZE %d exceeds the maximum flow-control window", setting.Val)
		}
		s.applyPeerSetting(setting)
		return nil
	}); err != nil {
		return s.connectionError(http2.ErrCodeFlowControl, err.Error())
	}
	return s.writer.WriteSettingsAck()
}

func (s *Session) handleHeaders(f *http2.HeadersFrame) error {
	sid := f.StreamID
	if !f.HeadersEnded() {
		s.pendingHeaders = &pendingHeaderBlock{streamID: sid, endStream: f.StreamEnded()}
		s.pendingHeaders.block.Write(f.HeaderBlockFragment())
		return nil
	}
	return s.processHeaderBlock(sid, f.HeaderBlockFragment(), f.StreamEnded())
}

// handleContinuation appends a CONTINUATION fragment to the header block
// buffered by handleHeaders, and once END_HEADERS arrives, decodes and
// processes the fully reassembled block (see frame_test.go's
// TestWriteHeadersFragmentsOverMaxFrameSize for the matching write-side
// fragmentation this mirrors).
func (s *Session) handleContinuation(f *http2.ContinuationFrame) error {
	pending := s.pendingHeaders
	pending.block.Write(f.HeaderBlockFragment())
	if !f.HeadersEnded() {
		return nil
	}
	s.pendingHeaders = nil
	return s.processHeaderBlock(pending.streamID, pending.block.Bytes(), pending.endStream)
}

func (s *Session) processHeaderBlock(sid uint32, block []byte, streamEnded bool) error {
	// headerDec's dynamic table is shared for the connection's whole
	// lifetime (see NewSession), so a decode failure here means the
	// table's state relative to the peer's encoder is no longer known:
	// per RFC 7541 this must be a connection error, not a per-stream one.
	fields, err := s.headerDec.Decode(block)
	if err != nil {
		return s.connectionError(http2.ErrCodeCompression, "hpack decode failure")
	}

	st := NewStream(sid, DefaultPriority, s.cfg.StreamInitialWindow())
	st.SendWindow = s.peerInitialWindow
	if !s.registry.TryOpen(st) {
		st.Release()
		return s.submitRST(sid, http2.ErrCodeRefusedStream)
	}

	for _, kv := range fields {
		if !st.AddHeader(kv[0], kv[1], s.cfg.MaxHeadersSum) {
			return s.submitRST(sid, http2.ErrCodeInternal)
		}
	}

	normalized := headers.Normalize(st.Headers)
	if err := headers.Validate(normalized); err != nil {
		return s.submitRST(sid, http2.ErrCodeProtocol)
	}
	pseudo, regular := headers.ExtractPseudo(normalized)
	if err := headers.Accept(pseudo, regular, s.cfg.HTTP2Proxy, streamEnded); err != nil {
		return s.submitRST(sid, http2.ErrCodeProtocol)
	}

	st.Method, st.Scheme, st.Authority, st.Path = pseudo.Method, pseudo.Scheme, pseudo.Authority, pseudo.Path
	st.Headers = regular
	st.RequestState = ReqHeaderComplete
	st.Upgraded = headers.IsUpgrade(pseudo, regular)

	if s.cfg.DumpRequestHeaderTo != nil {
		fmt.Fprintf(s.cfg.DumpRequestHeaderTo, "stream %d: %+v %+v\n", sid, pseudo, regular)
	}

	ctx, span := tracing.StartStreamSpan(context.Background(), sid, pseudo.Method, pseudo.Path, pseudo.Authority)
	s.spans[sid] = span
	_ = ctx
	metrics.StreamOpened()

	origin, err := s.dialer.Dial(sid, pseudo.Scheme, pseudo.Authority, s)
	if err != nil {
		st.RequestState = ReqConnectFail
		return s.errorReply(st, 502)
	}
	st.OriginConn = origin
	if err := origin.SubmitRequest(pseudo.Method, pseudo.Scheme, pseudo.Authority, pseudo.Path, regular, st.Upgraded); err != nil {
		st.RequestState = ReqConnectFail
		return s.submitRST(sid, http2.ErrCodeInternal)
	}

	if streamEnded {
		st.RequestState = ReqMsgComplete
		_ = st.EndUpload()
	}
	return nil
}

func (s *Session) handleData(f *http2.DataFrame) error {
	st := s.registry.Find(f.StreamID)
	if st == nil {
		return nil
	}
	n := len(f.Data())
	if err := st.PushUploadChunk(f.Data()); err != nil {
		return s.submitRST(f.StreamID, http2.ErrCodeInternal)
	}
	//nolint:gosec // n bounded by MAX_FRAME_SIZE, well within int32
	s.connWindow.OnConsumed(int32(n))
	//nolint:gosec // n bounded by MAX_FRAME_SIZE, well within int32
	st.RecvWindow.OnConsumed(int32(n))
	if inc, ok := s.connWindow.Increment(); ok {
		if err := s.submitWindowUpdate(0, inc); err != nil {
			return err
		}
	}
	if inc, ok := st.RecvWindow.Increment(); ok {
		if err := s.submitWindowUpdate(f.StreamID, inc); err != nil {
			return err
		}
	}
	if f.StreamEnded() {
		st.RequestState = ReqMsgComplete
		_ = st.EndUpload()
	}
	return nil
}

func (s *Session) handlePriority(f *http2.PriorityFrame) error {
	st := s.registry.Find(f.StreamID)
	if st == nil {
		return nil
	}
	st.ChangePriority(Priority{
		StreamDependency: f.StreamDep,
		Weight:           f.Weight,
		Exclusive:        f.Exclusive,
	})
	return nil
}

// handleWindowUpdate folds an incoming WINDOW_UPDATE into the outbound
// (send-direction) flow-control credit this session tracks for its own
// response DATA, then resumes whichever pump(s) that credit unblocks.
func (s *Session) handleWindowUpdate(f *http2.WindowUpdateFrame) error {
	if f.Increment == 0 {
		if f.StreamID == 0 {
			return s.connectionError(http2.ErrCodeProtocol, "WINDOW_UPDATE with a zero increment")
		}
		return s.submitRST(f.StreamID, http2.ErrCodeProtocol)
	}
	if f.StreamID == 0 {
		next := int64(s.remoteWindow) + int64(f.Increment)
		if next > maxWindowSize {
			return s.connectionError(http2.ErrCodeFlowControl, "connection send window overflow")
		}
		s.remoteWindow = int32(next)
		return s.pumpAllStreams()
	}
	st := s.registry.Find(f.StreamID)
	if st == nil {
		return nil
	}
	next := int64(st.SendWindow) + int64(f.Increment)
	if next > maxWindowSize {
		return s.submitRST(f.StreamID, http2.ErrCodeFlowControl)
	}
	st.SendWindow = int32(next)
	return s.pumpResponseBody(st)
}

func (s *Session) handleRSTStream(f *http2.RSTStreamFrame) error {
	st := s.registry.Find(f.StreamID)
	if st == nil {
		return nil
	}
	s.closeStream(st)
	return nil
}

func (s *Session) handlePushPromise(f *http2.PushPromiseFrame) error {
	return s.submitRST(f.PromiseID, http2.ErrCodeRefusedStream)
}

// submitRST requests a RST_STREAM. This is unconditionally a non-failure
// path from the caller's perspective (spec §4.D): a codec write error
// here aborts the whole process via log.Fatalf, matching submit-side
// fatal codec errors.
func (s *Session) submitRST(streamID uint32, code http2.ErrCode) error {
	if err := s.writer.WriteRSTStream(streamID, code); err != nil {
		log.Fatalf("upstream: fatal codec error writing RST_STREAM: %v", err)
	}
	if st := s.registry.Find(streamID); st != nil {
		s.closeStream(st)
	}
	return nil
}

// submitWindowUpdate emits WINDOW_UPDATE for a stream (or the connection
// when streamID == 0).
func (s *Session) submitWindowUpdate(streamID uint32, delta uint32) error {
	if delta == 0 {
		return nil
	}
	scope := "stream"
	if streamID == 0 {
		scope = "connection"
	}
	metrics.WindowUpdateSent(scope)
	return s.writer.WriteWindowUpdate(streamID, delta)
}

// terminateSession emits GOAWAY with the given error code.
func (s *Session) terminateSession(code http2.ErrCode) error {
	last := uint32(0)
	s.registry.Each(func(st *Stream) {
		if st.ID > last {
			last = st.ID
		}
	})
	s.closed = true
	return s.writer.WriteGoAway(last, code, nil)
}

// errorReply synthesizes a canned error response for a stream that never
// reached a live origin exchange (component G / spec §4.D error_reply).
func (s *Session) errorReply(st *Stream, status int) error {
	acceptEncoding := ""
	for _, kv := range st.Headers {
		if kv[0] == "accept-encoding" {
			acceptEncoding = kv[1]
		}
	}
	page := errorpage.Render(status, s.cfg.ServerName, acceptEncoding)
	st.ResponseBodyBuf.Write(page.Body)
	st.ResponseState = RespMsgComplete
	return s.submitResponseHeaders(st, page.Headers)
}

func (s *Session) submitResponseHeaders(st *Stream, hdrs [][2]string) error {
	if s.cfg.DumpResponseHeaderTo != nil {
		fmt.Fprintf(s.cfg.DumpResponseHeaderTo, "stream %d: %+v\n", st.ID, hdrs)
	}
	block, err := s.headerEnc.Encode(hdrs)
	if err != nil {
		return s.submitRST(st.ID, http2.ErrCodeInternal)
	}
	endStream := st.ResponseState == RespMsgComplete && st.ResponseBodyBuf.Len() == 0
	if err := s.writer.WriteHeaders(st.ID, endStream, block, frame.DefaultMaxFrameSize); err != nil {
		// frame-not-sent HEADERS response: reset the stream so it cannot hang.
		return s.submitRST(st.ID, http2.ErrCodeInternal)
	}
	if st.ResponseState != RespMsgComplete {
		st.ResponseState = RespHeaderComplete
	}
	return s.pumpResponseBody(st)
}

// pumpResponseBody implements the response data-provider pull of spec
// §4.D: drain the stream's body buffer into DATA frames until it is
// empty, honoring OUTBUF_MAX_THRES and the peer's declared send windows,
// and proactively resuming the origin read side once buffered output
// falls back below the threshold.
//
// Each write is capped to the smaller of the connection and stream send
// windows; once either is exhausted the loop stops and the remainder
// stays in ResponseBodyBuf until a WINDOW_UPDATE calls this again.
func (s *Session) pumpResponseBody(st *Stream) error {
	for st.ResponseBodyBuf.Len() > 0 && s.outQueue.Len() < outbufMaxThres {
		avail := minInt(int(s.remoteWindow), int(st.SendWindow))
		avail = minInt(avail, frame.DefaultMaxFrameSize)
		if avail <= 0 {
			break
		}
		n := minInt(st.ResponseBodyBuf.Len(), avail)
		chunk := st.ResponseBodyBuf.Next(n)
		endStream := st.ResponseState == RespMsgComplete && st.ResponseBodyBuf.Len() == 0
		var werr error
		if s.cfg.Padding {
			werr = s.writer.WriteDataPadded(st.ID, endStream, chunk, frame.DefaultMaxFrameSize)
		} else {
			werr = s.writer.WriteData(st.ID, endStream, chunk)
		}
		if werr != nil {
			return s.submitRST(st.ID, http2.ErrCodeInternal)
		}
		//nolint:gosec // n bounded by avail, itself bounded by the two windows
		s.remoteWindow -= int32(n)
		st.SendWindow -= int32(n)
	}
	combined := s.outQueue.Len() + st.ResponseBodyBuf.Len()
	if combined < outbufMaxThres && st.OriginConn != nil {
		st.OriginConn.ResumeRead()
	}
	if st.ResponseBodyBuf.Len() == 0 && st.ResponseState == RespMsgComplete {
		if st.Upgraded {
			return s.submitRST(st.ID, st.InferredRSTCode())
		}
		s.closeStream(st)
	}
	return nil
}

// pumpAllStreams resumes every open stream's response pump, used when a
// connection-level WINDOW_UPDATE lifts a block that could have been
// starving any number of streams at once.
func (s *Session) pumpAllStreams() error {
	var streams []*Stream
	s.registry.Each(func(st *Stream) { streams = append(streams, st) })
	for _, st := range streams {
		if err := s.pumpResponseBody(st); err != nil {
			return err
		}
	}
	return nil
}

// closeStream implements the stream-close disposition of spec §4.D.
func (s *Session) closeStream(st *Stream) {
	wasCONNECTFail := st.RequestState == ReqConnectFail
	st.RequestState = ReqStreamClosed

	if span, ok := s.spans[st.ID]; ok {
		outcome := metrics.OutcomeOK
		switch {
		case st.ResponseState == RespReset:
			outcome = metrics.OutcomeReset
		case wasCONNECTFail:
			outcome = metrics.OutcomeBadGateway
		}
		tracing.EndStreamSpan(span, 0, nil)
		metrics.StreamClosed(outcome)
		delete(s.spans, st.ID)
	}

	if wasCONNECTFail {
		s.registry.Remove(st.ID)
		st.Release()
		return
	}

	if origin := st.DetachOrigin(); origin != nil {
		if st.ResponseState == RespMsgComplete && !st.Upgraded {
			origin.Detach()
		} else {
			_ = origin.Close()
		}
	}
	s.registry.Remove(st.ID)
	st.Release()
}

// flushSend hands all of the frame writer's pending bytes to the socket in
// a single AsyncWritev call; the write itself is not split or bounded by
// OUTBUF_MAX_THRES (pumpResponseBody applies that threshold when it
// decides how much DATA to queue).
func (s *Session) flushSend() error {
	if s.outQueue.Len() == 0 {
		if s.closed && s.registry.Count() == 0 {
			return s.conn.Close()
		}
		return nil
	}
	buf := make([]byte, s.outQueue.Len())
	n, _ := s.outQueue.Read(buf)
	closeAfter := s.closed && s.registry.Count() == 0
	err := s.conn.AsyncWritev([][]byte{buf[:n]}, func(c gnet.Conn, err error) error {
		if err != nil {
			s.cfg.Logger.Printf("upstream: async write failed: %v", err)
			return c.Close()
		}
		if closeAfter {
			return c.Close()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upstream: socket write: %w", err)
	}
	return nil
}

func (s *Session) armSettingsAckTimer() {
	s.settingsAckMu.Lock()
	defer s.settingsAckMu.Unlock()
	if s.settingsAckTimer != nil {
		return
	}
	s.settingsAckTimer = time.AfterFunc(settingsAckTimeout, func() {
		_ = s.conn.Wake(func(gnet.Conn, error) error {
			if err := s.terminateSession(http2.ErrCodeSettingsTimeout); err != nil {
				return s.conn.Close()
			}
			// Session-fatal: close every open stream so flushSend sees an
			// empty registry and schedules the socket close.
			var open []*Stream
			s.registry.Each(func(st *Stream) { open = append(open, st) })
			for _, st := range open {
				s.closeStream(st)
			}
			if err := s.flushSend(); err != nil {
				return s.conn.Close()
			}
			// terminateSession already marked s.closed; flushSend's own
			// closeAfter/AsyncWritev completion callback closes the socket
			// once the GOAWAY bytes actually reach the wire.
			return nil
		})
	})
}

func (s *Session) cancelSettingsAckTimer() {
	s.settingsAckMu.Lock()
	defer s.settingsAckMu.Unlock()
	if s.settingsAckTimer != nil {
		s.settingsAckTimer.Stop()
		s.settingsAckTimer = nil
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
