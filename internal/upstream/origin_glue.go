package upstream

import (
	"fmt"

	"github.com/panjf2000/gnet/v2"
	"golang.org/x/net/http2"

	"github.com/relayforge/h2gate/internal/date"
	"github.com/relayforge/h2gate/internal/headers"
)

// OriginEventKind enumerates the events an OriginConn implementation
// reports back to the owning Session (component E, spec §4.E).
type OriginEventKind int

const (
	OriginConnected OriginEventKind = iota
	OriginResponseHeaders
	OriginResponseBody
	OriginWritable
	OriginEOF
	OriginError
	OriginTimeout
)

// OriginEvent is a single message from an origin connector's own
// goroutine into the session's single-threaded event loop. It is never
// dispatched inline: the connector enqueues it and wakes the connection,
// so the codec is never re-entered from inside an origin read/write
// callback (the re-entrancy hazard spec §5 calls out).
type OriginEvent struct {
	StreamID uint32
	Kind     OriginEventKind

	Status  int
	Headers [][2]string

	Body []byte
	End  bool

	Err error
}

// NewConnectedEvent reports that the origin socket completed connect.
func NewConnectedEvent(streamID uint32) OriginEvent {
	return OriginEvent{StreamID: streamID, Kind: OriginConnected}
}

// NewResponseHeadersEvent reports the origin's parsed response status
// and header list.
func NewResponseHeadersEvent(streamID uint32, status int, headers [][2]string) OriginEvent {
	return OriginEvent{StreamID: streamID, Kind: OriginResponseHeaders, Status: status, Headers: headers}
}

// NewResponseBodyEvent reports a chunk of origin response body, end true
// on the chunk that reaches body EOF.
func NewResponseBodyEvent(streamID uint32, body []byte, end bool) OriginEvent {
	return OriginEvent{StreamID: streamID, Kind: OriginResponseBody, Body: body, End: end}
}

// NewWritableEvent reports that the origin's outbound (request body)
// buffer has drained.
func NewWritableEvent(streamID uint32) OriginEvent {
	return OriginEvent{StreamID: streamID, Kind: OriginWritable}
}

// NewErrorEvent reports a non-timeout transport error.
func NewErrorEvent(streamID uint32, err error) OriginEvent {
	return OriginEvent{StreamID: streamID, Kind: OriginError, Err: err}
}

// NewTimeoutEvent reports a read/write deadline expiry.
func NewTimeoutEvent(streamID uint32, err error) OriginEvent {
	return OriginEvent{StreamID: streamID, Kind: OriginTimeout, Err: err}
}

// QueueOriginEvent is called by an OriginConn implementation, from
// whatever goroutine drives its I/O, to hand an event back to this
// stream's owning session. It never touches session or stream state
// directly; it only enqueues and wakes the event loop.
func (s *Session) QueueOriginEvent(ev OriginEvent) {
	select {
	case s.originEvents <- ev:
	default:
		// Queue full: drop is safe only because the connector treats a
		// full queue as backpressure and pauses; in practice PauseRead
		// is applied well before this can happen.
	}
	_ = s.conn.Wake(func(gnet.Conn, error) error {
		return s.pumpOriginEvents()
	})
}

// pumpOriginEvents drains all currently queued origin events on the
// session's own goroutine and dispatches each in turn, then flushes.
func (s *Session) pumpOriginEvents() error {
	for {
		select {
		case ev := <-s.originEvents:
			if err := s.dispatchOriginEvent(ev); err != nil {
				return err
			}
		default:
			return s.flushSend()
		}
	}
}

func (s *Session) dispatchOriginEvent(ev OriginEvent) error {
	st := s.registry.Find(ev.StreamID)

	// readable: if the stream is already closed there is no consumer.
	if st == nil {
		return nil
	}
	if st.RequestState == ReqStreamClosed {
		s.registry.Remove(st.ID)
		return nil
	}
	if st.ResponseState == RespReset {
		if err := s.submitRST(st.ID, st.InferredRSTCode()); err != nil {
			return err
		}
		if origin := st.DetachOrigin(); origin != nil {
			_ = origin.Close()
		}
		return s.flushSend()
	}

	switch ev.Kind {
	case OriginConnected:
		// TCP_NODELAY is set by the connector itself on accept of the
		// dialed socket; nothing to do at the session level.
		return nil

	case OriginResponseHeaders:
		return s.onOriginResponseHeaders(st, ev.Status, ev.Headers)

	case OriginResponseBody:
		st.ResponseBodyBuf.Write(ev.Body)
		if ev.End {
			st.ResponseState = RespMsgComplete
		}
		return s.pumpResponseBody(st)

	case OriginWritable:
		// The origin's send buffer (request body toward origin) has
		// drained: resume relaying client DATA for this stream.
		st.ResumeUpload()
		return nil

	case OriginEOF:
		return s.onOriginTermination(st, false, false, nil)

	case OriginTimeout:
		return s.onOriginTermination(st, true, true, ev.Err)

	case OriginError:
		return s.onOriginTermination(st, true, false, ev.Err)

	default:
		return nil
	}
}

// onOriginResponseHeaders normalizes and rewrites the origin's response
// headers and submits them, per spec §4.A response post-processing.
func (s *Session) onOriginResponseHeaders(st *Stream, status int, raw [][2]string) error {
	normalized := headers.Normalize(raw)
	if !s.cfg.ClientProxy {
		for i, kv := range normalized {
			if kv[0] == "location" {
				normalized[i][1] = headers.RewriteLocation(kv[1], st.Scheme, st.Authority, st.Scheme, st.Authority)
			}
		}
	}
	if !s.cfg.NoVia {
		via := ""
		out := normalized[:0]
		for _, kv := range normalized {
			if kv[0] == "via" {
				via = kv[1]
				continue
			}
			out = append(out, kv)
		}
		normalized = append(out, [2]string{"via", headers.SpliceVia(via, "1.1 "+s.cfg.ServerName)})
	}

	hdrs := append([][2]string{{":status", fmt.Sprintf("%d", status)}}, normalized...)
	if s.cfg.ServerName != "" {
		hdrs = append(hdrs, [2]string{"server", s.cfg.ServerName})
	}
	hasDate := false
	for _, kv := range hdrs {
		if kv[0] == "date" {
			hasDate = true
			break
		}
	}
	if !hasDate {
		hdrs = append(hdrs, [2]string{"date", string(date.Current())})
	}
	return s.submitResponseHeaders(st, hdrs)
}

// onOriginTermination handles EOF/error/timeout uniformly (spec §4.E: the
// error/timeout path is symmetric to EOF except for status selection).
func (s *Session) onOriginTermination(st *Stream, isFailure, isTimeout bool, cause error) error {
	if cause != nil {
		s.cfg.Logger.Printf("upstream: stream %d origin termination: %v", st.ID, cause)
	}
	headersSent := st.ResponseState == RespHeaderComplete || st.ResponseState == RespMsgComplete

	if !headersSent {
		status := 502
		if isTimeout {
			status = 504
		}
		if origin := st.DetachOrigin(); origin != nil {
			_ = origin.Close()
		}
		if err := s.errorReply(st, status); err != nil {
			return err
		}
		return s.flushSend()
	}

	st.ResponseState = RespMsgComplete
	if origin := st.DetachOrigin(); origin != nil {
		_ = origin.Close()
	}

	if st.Upgraded {
		// Open Question 1 (see DESIGN.md): emit RST_STREAM symmetrically
		// on clean EOF as well as on error/timeout, finalizing the tunnel
		// explicitly rather than relying on an implicit body-complete
		// signal that might race socket teardown.
		code := http2.ErrCodeInternal
		if !isFailure {
			code = http2.ErrCodeNo
		}
		if err := s.submitRST(st.ID, code); err != nil {
			return err
		}
		return s.flushSend()
	}

	if err := s.pumpResponseBody(st); err != nil {
		return err
	}
	return s.flushSend()
}
