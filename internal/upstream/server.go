package upstream

import (
	"log"
	"sync"

	"github.com/panjf2000/gnet/v2"

	"github.com/relayforge/h2gate/config"
)

// Server is the gnet.EventHandler binding accepted TCP connections to a
// Session apiece. It owns nothing about the HTTP/2 protocol itself; every
// byte-in/byte-out decision belongs to Session.
type Server struct {
	gnet.BuiltinEventEngine

	cfg    config.Config
	dialer OriginDialer
	logger *log.Logger

	engine gnet.Engine

	activeMu sync.Mutex
	active   []gnet.Conn
}

// NewServer builds a Server bound to the given OriginDialer (the origin
// connector to use for every session it accepts).
func NewServer(cfg config.Config, dialer OriginDialer) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Server{cfg: cfg, dialer: dialer, logger: cfg.Logger}
}

// Run starts accepting connections; blocks until the engine stops.
func (s *Server) Run() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
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

// OnBoot records the running engine handle and logs the listen address.
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.logger.Printf("upstream: listening on %s", s.cfg.Addr)
	return gnet.None
}

// OnOpen allocates a Session and stores it as the connection's context, per
// gnet's recommended per-connection state pattern.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	sess := NewSession(c, &s.cfg, s.dialer)
	c.SetContext(sess)

	s.activeMu.Lock()
	s.active = append(s.active, c)
	s.activeMu.Unlock()
	return nil, gnet.None
}

// UpgradeConn promotes a connection an HTTP/1.1 sibling upstream has
// already accepted (and taken through the h2c Upgrade handshake) into a
// full HTTP/2 session (spec §4.D upgrade_from_http1). The sibling
// upstream's own request parsing is out of scope for this core; it must
// call UpgradeConn exactly once, with the parsed prior request, before
// handing this connection any further bytes.
func (s *Server) UpgradeConn(c gnet.Conn, req PriorRequest) error {
	sess := NewSession(c, &s.cfg, s.dialer)
	c.SetContext(sess)

	s.activeMu.Lock()
	s.active = append(s.active, c)
	s.activeMu.Unlock()

	return sess.UpgradeFromHTTP1(req)
}

// OnClose drops the connection's session from tracking. The session itself
// needs no explicit teardown call: its registry and streams are simply
// garbage once the connection's context is released.
func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	s.activeMu.Lock()
	for i, cc := range s.active {
		if cc == c {
			s.active[i] = s.active[len(s.active)-1]
			s.active = s.active[:len(s.active)-1]
			break
		}
	}
	s.activeMu.Unlock()
	if err != nil {
		s.logger.Printf("upstream: connection closed with error: %v", err)
	}
	return gnet.None
}

// OnTraffic reads everything currently buffered and hands it to the
// connection's Session.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	sess, ok := c.Context().(*Session)
	if !ok || sess == nil {
		s.logger.Printf("upstream: missing session context, closing")
		return gnet.Close
	}
	buf, err := c.Next(-1)
	if err != nil {
		s.logger.Printf("upstream: read error: %v", err)
		return gnet.Close
	}
	if err := sess.OnReadable(buf); err != nil {
		s.logger.Printf("upstream: %v", err)
		return gnet.Close
	}
	return gnet.None
}
