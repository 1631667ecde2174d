// Package origin is the default downstream connector: a minimal
// blocking TCP + HTTP/1.1 client used to satisfy internal/upstream's
// OriginDialer/OriginConn interfaces. The spec this core implements
// places the real connector (TLS, connection pooling, full HTTP/1
// parsing) out of scope as an external collaborator; this package exists
// only so the adapter runs end-to-end, and is meant to be swapped for a
// production-grade connector.
package origin

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/relayforge/h2gate/internal/upstream"
)

// Dialer is the default upstream.OriginDialer: it opens a fresh TCP
// connection per request and speaks HTTP/1.1 to it. authorityToAddr
// resolves an HTTP/2 :authority into a dial address (host:port); when
// nil, the authority is used verbatim.
type Dialer struct {
	DialTimeout    time.Duration
	ResponseHeader time.Duration
	Logger         *log.Logger

	AuthorityToAddr func(scheme, authority string) string
}

// NewDialer returns a Dialer with sane defaults.
func NewDialer(logger *log.Logger) *Dialer {
	return &Dialer{
		DialTimeout:    5 * time.Second,
		ResponseHeader: 30 * time.Second,
		Logger:         logger,
	}
}

func (d *Dialer) addr(scheme, authority string) string {
	if d.AuthorityToAddr != nil {
		return d.AuthorityToAddr(scheme, authority)
	}
	if strings.Contains(authority, ":") {
		return authority
	}
	if scheme == "https" {
		return authority + ":443"
	}
	return authority + ":80"
}

// Dial implements upstream.OriginDialer.
func (d *Dialer) Dial(streamID uint32, scheme, authority string, sess *upstream.Session) (upstream.OriginConn, error) {
	addr := d.addr(scheme, authority)
	nc, err := net.DialTimeout("tcp", addr, d.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("origin: dial %s: %w", addr, err)
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	c := &Conn{
		nc:      nc,
		br:      bufio.NewReader(nc),
		sess:    sess,
		id:      streamID,
		logger:  d.Logger,
		respHdr: d.ResponseHeader,
	}
	sess.QueueOriginEvent(upstream.NewConnectedEvent(streamID))
	return c, nil
}

// Conn is the default upstream.OriginConn: one TCP connection dedicated
// to a single request/response exchange (no pooling — Detach just closes
// since there is no pool to return the connection to).
type Conn struct {
	nc     net.Conn
	br     *bufio.Reader
	sess   *upstream.Session
	id     uint32
	logger *log.Logger

	respHdr time.Duration

	mu     sync.Mutex
	paused bool
	closed bool
}

// SubmitRequest writes the HTTP/1.1 request line and headers, then
// starts the background goroutine that reads the response and feeds
// events back into the session. Per spec §5's re-entrancy contract, this
// goroutine never calls back into the session directly: it only queues
// events through Session.QueueOriginEvent, which wakes the session's own
// event loop to dispatch them.
func (c *Conn) SubmitRequest(method, scheme, authority, path string, headers [][2]string, upgraded bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, path)
	fmt.Fprintf(&b, "host: %s\r\n", authority)
	for _, kv := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", kv[0], kv[1])
	}
	b.WriteString("\r\n")
	if _, err := io.WriteString(c.nc, b.String()); err != nil {
		return fmt.Errorf("origin: write request: %w", err)
	}
	go c.readLoop()
	return nil
}

func (c *Conn) readLoop() {
	if dl := c.respHdr; dl > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(dl))
	}
	resp, err := http.ReadResponse(c.br, nil)
	if err != nil {
		c.reportErr(err)
		return
	}
	_ = c.nc.SetReadDeadline(time.Time{})

	hdrs := make([][2]string, 0, len(resp.Header))
	for name, values := range resp.Header {
		for _, v := range values {
			hdrs = append(hdrs, [2]string{strings.ToLower(name), v})
		}
	}
	c.sess.QueueOriginEvent(upstream.NewResponseHeadersEvent(c.id, resp.StatusCode, hdrs))

	buf := make([]byte, 32*1024)
	for {
		c.mu.Lock()
		for c.paused && !c.closed {
			c.mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			c.mu.Lock()
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.sess.QueueOriginEvent(upstream.NewResponseBodyEvent(c.id, chunk, err == io.EOF))
		}
		if err != nil {
			if err != io.EOF {
				c.reportErr(err)
			}
			return
		}
	}
}

func (c *Conn) reportErr(err error) {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		c.sess.QueueOriginEvent(upstream.NewTimeoutEvent(c.id, err))
		return
	}
	c.sess.QueueOriginEvent(upstream.NewErrorEvent(c.id, err))
}

// Write forwards a request-body chunk to the origin socket.
func (c *Conn) Write(p []byte) (int, error) { return c.nc.Write(p) }

// CloseWrite half-closes the connection towards the origin.
func (c *Conn) CloseWrite() error {
	if tc, ok := c.nc.(*net.TCPConn); ok {
		return tc.CloseWrite()
	}
	return nil
}

// PauseRead stops the read loop from draining further response body.
func (c *Conn) PauseRead() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// ResumeRead lifts a prior PauseRead.
func (c *Conn) ResumeRead() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// Detach closes the connection: this connector has no pool to return it
// to (a production-grade connector would keep it alive for reuse here).
func (c *Conn) Detach() { _ = c.Close() }

// Close tears down the underlying TCP connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.nc.Close()
}
