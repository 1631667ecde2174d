package upstream

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"golang.org/x/net/http2"
)

// PriorRequest is the minimal shape the HTTP/1.1 sibling upstream hands
// off during an h2c upgrade: the request that carried the Upgrade
// header, already parsed by that (out-of-scope) collaborator.
type PriorRequest struct {
	Method, Scheme, Authority, Path string
	Headers                         [][2]string
	HTTP2Settings                   string // raw HTTP2-Settings header value
}

// parseSettingsPayload decodes a raw SETTINGS frame payload (the same
// 6-byte-per-entry wire format as a SETTINGS frame body, minus the frame
// header) into individual settings, as carried base64url-encoded in an
// h2c HTTP2-Settings request header per RFC 7540 §3.2.1.
func parseSettingsPayload(raw []byte) ([]http2.Setting, error) {
	if len(raw)%6 != 0 {
		return nil, fmt.Errorf("upstream: malformed HTTP2-Settings payload (%d bytes)", len(raw))
	}
	settings := make([]http2.Setting, 0, len(raw)/6)
	for i := 0; i+6 <= len(raw); i += 6 {
		settings = append(settings, http2.Setting{
			ID:  http2.SettingID(binary.BigEndian.Uint16(raw[i : i+2])),
			Val: binary.BigEndian.Uint32(raw[i+2 : i+6]),
		})
	}
	return settings, nil
}

// applyPeerSettings folds settings the peer announced outside the normal
// SETTINGS-frame path (the h2c upgrade handshake) into this session's
// codec state, the same way an in-band SETTINGS frame would be honored.
func (s *Session) applyPeerSettings(settings []http2.Setting) {
	for _, st := range settings {
		s.applyPeerSetting(st)
	}
}

// applyPeerSetting folds a single peer-announced setting into session
// state. Shared by the in-band SETTINGS path (handleSettings) and the h2c
// upgrade path (applyPeerSettings), so both honor the same settings the
// same way.
func (s *Session) applyPeerSetting(setting http2.Setting) {
	switch setting.ID {
	case http2.SettingHeaderTableSize:
		s.headerEnc.SetMaxTableSize(setting.Val)
	case http2.SettingInitialWindowSize:
		s.applyInitialWindowSize(setting.Val)
	}
}

// applyInitialWindowSize folds a new SETTINGS_INITIAL_WINDOW_SIZE into
// every currently open stream's send window by the delta between the old
// and new value, per RFC 7540 §6.9.2, rather than resetting each stream's
// window outright (which would double-count bytes already in flight).
func (s *Session) applyInitialWindowSize(val uint32) {
	delta := int64(val) - int64(s.peerInitialWindow)
	//nolint:gosec // callers keep val within maxWindowSize before reaching here
	s.peerInitialWindow = int32(val)
	if s.registry == nil {
		return
	}
	s.registry.Each(func(st *Stream) {
		st.SendWindow += int32(delta)
	})
}

// UpgradeFromHTTP1 promotes a pre-upgrade HTTP/1.1 request to stream 1
// with default priority, applies the client's announced settings from the
// HTTP2-Settings header, and starts the connection's own preface as if
// the (implied) client preface had just been read (spec §4.D
// upgrade_from_http1, §8 scenario 7).
//
// The prior upstream itself is held by the caller exclusively until its
// buffered input has been handed to the codec, per the ownership rule in
// spec §3; only the parsed request line and headers cross that boundary.
func (s *Session) UpgradeFromHTTP1(req PriorRequest) error {
	raw, err := base64.RawURLEncoding.DecodeString(req.HTTP2Settings)
	if err != nil {
		return fmt.Errorf("upstream: invalid HTTP2-Settings: %w", err)
	}
	settings, err := parseSettingsPayload(raw)
	if err != nil {
		return err
	}
	for _, setting := range settings {
		if setting.ID == http2.SettingInitialWindowSize && setting.Val > maxWindowSize {
			return fmt.Errorf("upstream: SETTINGS_INITIAL_WINDOW_SIZE %d exceeds the maximum flow-control window", setting.Val)
		}
	}
	s.applyPeerSettings(settings)

	const upgradeStreamID = 1
	st := NewStream(upgradeStreamID, DefaultPriority, s.cfg.StreamInitialWindow())
	st.SendWindow = s.peerInitialWindow
	if !s.registry.TryOpen(st) {
		return fmt.Errorf("upstream: could not register upgrade stream")
	}
	st.Method, st.Scheme, st.Authority, st.Path = req.Method, req.Scheme, req.Authority, req.Path
	st.Headers = req.Headers
	st.RequestState = ReqHeaderComplete

	s.previousUpstream = req
	s.prefaceReceived = true // the h2c preface is implied by the 101 handshake
	if err := s.Start(); err != nil {
		return err
	}

	origin, err := s.dialer.Dial(upgradeStreamID, req.Scheme, req.Authority, s)
	if err != nil {
		st.RequestState = ReqConnectFail
		return s.errorReply(st, 502)
	}
	st.OriginConn = origin
	if err := origin.SubmitRequest(req.Method, req.Scheme, req.Authority, req.Path, req.Headers, false); err != nil {
		st.RequestState = ReqConnectFail
		return s.submitRST(upgradeStreamID, http2.ErrCodeInternal)
	}
	st.RequestState = ReqMsgComplete
	_ = st.EndUpload()

	return nil
}
