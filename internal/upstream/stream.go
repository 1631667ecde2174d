package upstream

import (
	"bytes"
	"fmt"
	"sync"

	"golang.org/x/net/http2"

	"github.com/relayforge/h2gate/internal/flowcontrol"
)

// RequestState is the request-side progress of a stream.
type RequestState int

const (
	ReqInitial RequestState = iota
	ReqHeaderComplete
	ReqMsgComplete
	ReqStreamClosed
	ReqConnectFail
)

// ResponseState is the response-side progress of a stream.
type ResponseState int

const (
	RespInitial ResponseState = iota
	RespHeaderComplete
	RespMsgComplete
	RespReset
)

var bodyBufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

func getBodyBuf() *bytes.Buffer {
	b := bodyBufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// OriginConn is the interface a stream's bound origin connection presents
// to the session/glue layer. Implementations live in a separate package
// (see internal/origin for the default one); this core only ever calls
// through the interface, never assumes a concrete transport.
type OriginConn interface {
	// SubmitRequest writes the request line/headers to the origin,
	// derived from the stream's pseudo-headers and accumulated headers.
	SubmitRequest(method, scheme, authority, path string, headers [][2]string, upgraded bool) error
	// Write forwards an upload chunk (request body bytes) to the origin.
	Write(p []byte) (int, error)
	// CloseWrite signals end of the request body (half-close towards origin).
	CloseWrite() error
	// PauseRead asks the connector to stop reading further response
	// bytes off the origin socket (backpressure from a full client-facing
	// output buffer).
	PauseRead()
	// ResumeRead lifts a prior PauseRead.
	ResumeRead()
	// Detach releases the connection back to a pool without closing the
	// underlying transport (used when the exchange completed cleanly and
	// keep-alive is possible).
	Detach()
	// Close tears down the underlying transport unconditionally.
	Close() error
}

// Stream is the per-stream record (component C). The Session commands its
// transitions; the record itself has no thread of its own and performs no
// I/O beyond what its bound OriginConn is asked to do.
type Stream struct {
	ID       uint32
	Priority Priority

	RequestState  RequestState
	ResponseState ResponseState

	Method, Scheme, Authority, Path string
	Headers                         [][2]string
	headerOctets                    int

	Upgraded bool

	OriginConn      OriginConn
	ResponseBodyBuf *bytes.Buffer

	// ResponseRSTError is the error code observed from the origin side,
	// used to propagate REFUSED_STREAM (spec's response_rst_error).
	ResponseRSTError http2.ErrCode
	HasRSTError      bool

	pausedUpload bool

	// RecvWindow tracks this stream's local (receiver-side) flow-control
	// window over client upload DATA (component F).
	RecvWindow *flowcontrol.Window

	// SendWindow tracks this stream's remote (peer-granted) flow-control
	// credit for response DATA the session sends toward the client. It
	// starts at the RFC 7540 default and is overwritten by the session
	// once the stream is opened, matching whatever SETTINGS_INITIAL_WINDOW_SIZE
	// the client has most recently announced.
	SendWindow int32

	registry *Registry
}

// NewStream allocates a stream record with the given id, priority, and
// initial receive-window size. It does not register the stream; callers
// use Registry.TryOpen.
func NewStream(id uint32, pri Priority, initialWindow int32) *Stream {
	return &Stream{
		ID:              id,
		Priority:        pri,
		RequestState:    ReqInitial,
		ResponseState:   RespInitial,
		ResponseBodyBuf: getBodyBuf(),
		RecvWindow:      flowcontrol.NewWindow(initialWindow),
		SendWindow:      defaultInitialWindowSize,
	}
}

// AddHeader appends a validated (name, value) pair, tracking the running
// octet sum used to enforce the header-size cap (invariant 4). Returns
// false if adding this header would push the sum over maxHeadersSum; the
// caller must not append it and should fail the stream.
func (s *Stream) AddHeader(name, value string, maxHeadersSum int) bool {
	octets := len(name) + len(value) + 32 // HPACK per-entry overhead, RFC 7541 §4.1
	if s.headerOctets+octets > maxHeadersSum {
		return false
	}
	s.headerOctets += octets
	s.Headers = append(s.Headers, [2]string{name, value})
	return true
}

// HeaderOctets returns the running sum of accounted header octets.
func (s *Stream) HeaderOctets() int { return s.headerOctets }

// PushUploadChunk forwards bytes to the bound origin connection. Returns
// an error if there is no origin attached or the write failed.
func (s *Stream) PushUploadChunk(p []byte) error {
	if s.OriginConn == nil {
		return fmt.Errorf("upstream: stream %d has no origin connection", s.ID)
	}
	if len(p) == 0 {
		return nil
	}
	_, err := s.OriginConn.Write(p)
	return err
}

// EndUpload signals end of the request body to the origin.
func (s *Stream) EndUpload() error {
	if s.OriginConn == nil {
		return nil
	}
	return s.OriginConn.CloseWrite()
}

// ChangePriority updates the stream's stored priority value. No tree
// rebalancing is performed.
func (s *Stream) ChangePriority(p Priority) { s.Priority = p }

// PauseUpload sets the stream's upload-paused flag reported by
// PausedUpload (client-side backpressure, distinct from
// OriginConn.PauseRead which paces reading the response). The session's
// DATA handling does not consult this flag.
func (s *Stream) PauseUpload() { s.pausedUpload = true }

// ResumeUpload clears the pause flag. This is the stream-local reaction to
// the origin's write buffer draining (Open Question 2, see DESIGN.md). It
// performs no origin write and returns nothing, so nothing it does can
// fail the stream or the session.
func (s *Stream) ResumeUpload() {
	s.pausedUpload = false
}

// PausedUpload reports whether upload reads are currently paused.
func (s *Stream) PausedUpload() bool { return s.pausedUpload }

// SetRSTError records the error code to surface on the next RST_STREAM
// derived from origin-side failure (propagating REFUSED_STREAM).
func (s *Stream) SetRSTError(code http2.ErrCode) {
	s.ResponseRSTError = code
	s.HasRSTError = true
}

// InferredRSTCode returns the error code to use for a stream-close driven
// RST_STREAM: REFUSED_STREAM passes through unchanged, anything else the
// origin glue observed collapses to INTERNAL_ERROR.
func (s *Stream) InferredRSTCode() http2.ErrCode {
	if s.HasRSTError && s.ResponseRSTError == http2.ErrCodeRefusedStream {
		return http2.ErrCodeRefusedStream
	}
	return http2.ErrCodeInternal
}

// DetachOrigin clears the stream's origin pointer without closing the
// underlying connection (invariant: pointers on both sides must be
// cleared before either object is deleted).
func (s *Stream) DetachOrigin() OriginConn {
	o := s.OriginConn
	s.OriginConn = nil
	return o
}

// Release returns the response body buffer to the pool. Must be called
// exactly once, after the stream-close callback (invariant 2).
func (s *Stream) Release() {
	if s.ResponseBodyBuf != nil {
		bodyBufPool.Put(s.ResponseBodyBuf)
		s.ResponseBodyBuf = nil
	}
}
