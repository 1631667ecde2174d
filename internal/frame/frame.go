// Package frame wraps golang.org/x/net/http2's Framer and HPACK codec into
// the incremental parse/write primitives the upstream session drives its
// state machine with. It is the "wire codec" library boundary: it knows
// nothing about streams, origins, or proxying.
package frame

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// Preface is the 24-byte client connection preface.
const Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// DefaultMaxFrameSize is used whenever a peer's advertised MAX_FRAME_SIZE
// is not yet known.
const DefaultMaxFrameSize = 16384

// Parser incrementally decodes HTTP/2 frames from a persistent reader,
// preserving CONTINUATION state across calls.
type Parser struct {
	framer *http2.Framer
	scratch *bytes.Buffer
}

// NewParser creates a frame parser. Call InitReader once bytes start
// arriving; ReadNextFrame may then be called repeatedly.
func NewParser() *Parser {
	return &Parser{scratch: new(bytes.Buffer)}
}

// InitReader binds the parser to a persistent reader so the underlying
// http2.Framer preserves header-block/CONTINUATION expectations across
// frames instead of resetting per call.
func (p *Parser) InitReader(r io.Reader) {
	p.framer = http2.NewFramer(p.scratch, r)
	p.framer.SetMaxReadFrameSize(1 << 20)
	p.framer.ReadMetaHeaders = nil
}

// ReadNextFrame reads the next frame using the bound reader. Returns
// io.ErrUnexpectedEOF (wrapped by the reader) when more bytes are needed.
func (p *Parser) ReadNextFrame() (http2.Frame, error) {
	if p.framer == nil {
		return nil, fmt.Errorf("frame: parser not initialized; call InitReader")
	}
	return p.framer.ReadFrame()
}

// Writer serializes outgoing HTTP/2 frames onto an io.Writer, fragmenting
// HEADERS into CONTINUATION frames as needed. DATA payloads are written as
// given; callers size them to the frame limit.
type Writer struct {
	framer *http2.Framer
	mu     sync.Mutex
	debug  *log.Logger
}

// NewWriter creates a frame writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{framer: http2.NewFramer(w, nil)}
}

// SetDebugLogger routes a one-line summary of every written frame to l.
// Used for the upstream_frame_debug config knob; nil disables it.
func (w *Writer) SetDebugLogger(l *log.Logger) {
	w.mu.Lock()
	w.debug = l
	w.mu.Unlock()
}

func (w *Writer) logf(format string, args ...any) {
	if w.debug != nil {
		w.debug.Printf(format, args...)
	}
}

// WriteSettings writes a non-ACK SETTINGS frame.
func (w *Writer) WriteSettings(settings ...http2.Setting) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logf("> SETTINGS %v", settings)
	return w.framer.WriteSettings(settings...)
}

// WriteSettingsAck writes a SETTINGS ACK frame.
func (w *Writer) WriteSettingsAck() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logf("> SETTINGS ack")
	return w.framer.WriteSettingsAck()
}

// WriteHeaders writes HEADERS followed by however many CONTINUATION
// frames are needed to carry headerBlock, respecting maxFrameSize.
func (w *Writer) WriteHeaders(streamID uint32, endStream bool, headerBlock []byte, maxFrameSize uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	remaining := headerBlock
	first := true
	for first || len(remaining) > 0 {
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
			w.logf("> HEADERS stream=%d end_stream=%v end_headers=%v len=%d", streamID, endStream, len(remaining) == 0, len(frag))
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
		w.logf("> CONTINUATION stream=%d end_headers=%v len=%d", streamID, len(remaining) == 0, len(frag))
		if err := w.framer.WriteRawFrame(http2.FrameContinuation, flags, streamID, frag); err != nil {
			return err
		}
	}
	return nil
}

// WriteData writes a DATA frame. A zero-length, non-END_STREAM DATA frame
// is suppressed since it carries no information and can trip strict peers.
func (w *Writer) WriteData(streamID uint32, endStream bool, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(data) == 0 && !endStream {
		return nil
	}
	w.logf("> DATA stream=%d end_stream=%v len=%d", streamID, endStream, len(data))
	return w.framer.WriteData(streamID, endStream, data)
}

// WriteDataPadded writes a DATA frame padded to the next 32-byte boundary
// (bounded by maxFrameSize), used when the padding config knob is enabled.
func (w *Writer) WriteDataPadded(streamID uint32, endStream bool, data []byte, maxFrameSize uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	padTo := (len(data) + 31) / 32 * 32
	padLen := padTo - len(data)
	for padLen > 255 || 1+len(data)+padLen > int(maxFrameSize) {
		padLen--
	}
	if padLen < 0 {
		padLen = 0
	}
	pad := make([]byte, padLen)
	w.logf("> DATA(padded) stream=%d end_stream=%v len=%d pad=%d", streamID, endStream, len(data), padLen)
	return w.framer.WriteDataPadded(streamID, endStream, data, pad)
}

// WriteWindowUpdate writes a WINDOW_UPDATE frame. increment must be > 0.
func (w *Writer) WriteWindowUpdate(streamID uint32, increment uint32) error {
	if increment == 0 {
		return fmt.Errorf("frame: refusing to write WINDOW_UPDATE with zero increment")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logf("> WINDOW_UPDATE stream=%d inc=%d", streamID, increment)
	return w.framer.WriteWindowUpdate(streamID, increment)
}

// WriteRSTStream writes a RST_STREAM frame.
func (w *Writer) WriteRSTStream(streamID uint32, code http2.ErrCode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logf("> RST_STREAM stream=%d code=%v", streamID, code)
	return w.framer.WriteRSTStream(streamID, code)
}

// WriteGoAway writes a GOAWAY frame.
func (w *Writer) WriteGoAway(lastStreamID uint32, code http2.ErrCode, debugData []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logf("> GOAWAY last=%d code=%v", lastStreamID, code)
	return w.framer.WriteGoAway(lastStreamID, code, debugData)
}

// WritePushPromise always fails: incoming PUSH_PROMISE from an upstream
// peer is refused per spec (server push origination is a non-goal), and
// this core never originates one either.
func (w *Writer) WritePushPromise(uint32, uint32, []byte) error {
	return fmt.Errorf("frame: server push origination is not supported")
}

// HeaderEncoder HPACK-encodes header lists. Not safe for concurrent use;
// callers serialize access (the session's flush path already does).
type HeaderEncoder struct {
	enc *hpack.Encoder
	buf *bytes.Buffer
}

// NewHeaderEncoder creates a header encoder with its own dynamic table.
func NewHeaderEncoder() *HeaderEncoder {
	buf := new(bytes.Buffer)
	return &HeaderEncoder{enc: hpack.NewEncoder(buf), buf: buf}
}

// SetMaxTableSize bounds the encoder's dynamic table to size, per the
// peer's advertised SETTINGS_HEADER_TABLE_SIZE.
func (e *HeaderEncoder) SetMaxTableSize(size uint32) {
	e.enc.SetMaxDynamicTableSize(size)
}

// Encode HPACK-encodes headers and returns an owned copy of the block.
func (e *HeaderEncoder) Encode(headers [][2]string) ([]byte, error) {
	e.buf.Reset()
	for _, h := range headers {
		if err := e.enc.WriteField(hpack.HeaderField{Name: h[0], Value: h[1]}); err != nil {
			return nil, err
		}
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

// HeaderDecoder HPACK-decodes header blocks against a shared dynamic
// table whose maximum size is fixed when the decoder is created.
type HeaderDecoder struct {
	dec *hpack.Decoder
}

// NewHeaderDecoder creates a header decoder with the given max dynamic
// table size.
func NewHeaderDecoder(maxTableSize uint32) *HeaderDecoder {
	return &HeaderDecoder{dec: hpack.NewDecoder(maxTableSize, nil)}
}

// Decode decodes one header block into an ordered name/value list.
func (d *HeaderDecoder) Decode(block []byte) ([][2]string, error) {
	var out [][2]string
	d.dec.SetEmitFunc(func(hf hpack.HeaderField) {
		out = append(out, [2]string{hf.Name, hf.Value})
	})
	if _, err := d.dec.Write(block); err != nil {
		return nil, fmt.Errorf("frame: hpack decode: %w", err)
	}
	if err := d.dec.Close(); err != nil {
		return nil, fmt.Errorf("frame: hpack close: %w", err)
	}
	return out, nil
}
