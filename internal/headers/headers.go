// Package headers implements HTTP/2 header-set normalization and
// validation (component A): canonicalizing raw HPACK-decoded (name, value)
// pairs, extracting pseudo-headers, enforcing the request acceptance
// rules, and post-processing responses (Location rewrite, Via splice).
package headers

import (
	"fmt"
	"strings"
)

// Pseudo holds the extracted request pseudo-headers.
type Pseudo struct {
	Method    string
	Scheme    string
	Authority string
	Path      string
}

// connectionSpecific lists headers forbidden on an HTTP/2 message per
// RFC 7540 §8.1.2.2, except that "te: trailers" is allowed.
var connectionSpecific = map[string]bool{
	"connection":       true,
	"keep-alive":       true,
	"transfer-encoding": true,
	"upgrade":          true,
	"proxy-connection": true,
}

// Normalize lowercases names, trims header-grammar linear whitespace from
// values, and coalesces duplicate names (other than set-cookie) into a
// single value joined by ", ". Order of first occurrence is preserved.
func Normalize(raw [][2]string) [][2]string {
	index := make(map[string]int, len(raw))
	out := make([][2]string, 0, len(raw))
	for _, kv := range raw {
		name := strings.ToLower(kv[0])
		value := trimOWS(kv[1])
		if name == "set-cookie" {
			out = append(out, [2]string{name, value})
			continue
		}
		if i, ok := index[name]; ok {
			out[i][1] = out[i][1] + ", " + value
			continue
		}
		index[name] = len(out)
		out = append(out, [2]string{name, value})
	}
	return out
}

func trimOWS(s string) string {
	return strings.Trim(s, " \t")
}

// Validate checks a normalized header list against the HTTP/2 grammar and
// proxy-forwarding restrictions of spec §4.A. It does not check the
// request-acceptance rules (method/scheme/path/authority presence); call
// ExtractPseudo + Accept for that once Validate has passed.
func Validate(headers [][2]string) error {
	seenRegular := false
	seenPseudo := make(map[string]bool)
	for _, kv := range headers {
		name, value := kv[0], kv[1]
		if name == "" {
			return fmt.Errorf("headers: empty header name")
		}
		if strings.HasPrefix(name, ":") {
			if seenRegular {
				return fmt.Errorf("headers: pseudo-header %s after regular header", name)
			}
			switch name {
			case ":method", ":scheme", ":path", ":authority", ":protocol":
				// :protocol carries RFC 8441 extended CONNECT's target
				// protocol (e.g. websocket); IsUpgrade inspects it once
				// this passes.
				if seenPseudo[name] {
					return fmt.Errorf("headers: duplicate pseudo-header %s", name)
				}
				seenPseudo[name] = true
			default:
				return fmt.Errorf("headers: unknown pseudo-header %s", name)
			}
			continue
		}
		seenRegular = true
		if err := validateToken(name); err != nil {
			return fmt.Errorf("headers: invalid name %q: %w", name, err)
		}
		if err := validateValue(value); err != nil {
			return fmt.Errorf("headers: invalid value for %q: %w", name, err)
		}
		if connectionSpecific[name] {
			return fmt.Errorf("headers: connection-specific header not allowed: %s", name)
		}
		if name == "te" && value != "trailers" {
			return fmt.Errorf("headers: te must be 'trailers', got %q", value)
		}
	}
	return nil
}

func validateToken(name string) error {
	for _, c := range name {
		if c >= 'A' && c <= 'Z' {
			return fmt.Errorf("uppercase byte")
		}
		if c < 0x20 || c == 0x7f {
			return fmt.Errorf("control byte")
		}
		switch c {
		case '(', ')', '<', '>', '@', ',', ';', ':', '\\', '"', '/', '[', ']', '?', '=', '{', '}', ' ', '\t':
			return fmt.Errorf("disallowed separator %q", c)
		}
	}
	return nil
}

func validateValue(value string) error {
	for _, c := range value {
		if c == '\r' || c == '\n' || c == 0 {
			return fmt.Errorf("CR/LF/NUL in value")
		}
	}
	return nil
}

// ExtractPseudo pulls out the four pseudo-headers, returning the remaining
// regular headers in order.
func ExtractPseudo(headers [][2]string) (Pseudo, [][2]string) {
	var p Pseudo
	regular := make([][2]string, 0, len(headers))
	for _, kv := range headers {
		switch kv[0] {
		case ":method":
			p.Method = kv[1]
		case ":scheme":
			p.Scheme = kv[1]
		case ":authority":
			p.Authority = kv[1]
		case ":path":
			p.Path = kv[1]
		default:
			regular = append(regular, kv)
		}
	}
	return p, regular
}

// value of the "host" header, if present, from a regular header list.
func hostHeader(regular [][2]string) string {
	for _, kv := range regular {
		if kv[0] == "host" {
			return kv[1]
		}
	}
	return ""
}

func hasHeader(regular [][2]string, name string) (string, bool) {
	for _, kv := range regular {
		if kv[0] == name {
			return kv[1], true
		}
	}
	return "", false
}

// Accept applies the request-acceptance rules of spec §4.A. proxyMode
// forces authority to be present unconditionally (http2_proxy config).
// endStream is the HEADERS frame's END_STREAM flag.
func Accept(p Pseudo, regular [][2]string, proxyMode bool, endStream bool) error {
	if p.Method == "CONNECT" {
		if p.Authority == "" {
			return fmt.Errorf("headers: CONNECT requires :authority")
		}
		if p.Scheme != "" || p.Path != "" {
			return fmt.Errorf("headers: CONNECT must not carry :scheme or :path")
		}
		return nil
	}
	if p.Method == "" || p.Scheme == "" || p.Path == "" {
		return fmt.Errorf("headers: missing required pseudo-header")
	}
	if proxyMode {
		if p.Authority == "" {
			return fmt.Errorf("headers: proxy mode requires :authority")
		}
	} else if p.Authority == "" && hostHeader(regular) == "" {
		return fmt.Errorf("headers: missing :authority or host")
	}
	if !endStream {
		cl, ok := hasHeader(regular, "content-length")
		if !ok || cl == "" || strings.ContainsAny(cl, " \t") {
			return fmt.Errorf("headers: missing or invalid content-length on bodied request")
		}
	}
	return nil
}

// IsUpgrade reports whether the request promotes the stream to a tunnel:
// a CONNECT method, or an extended-CONNECT-style :protocol pseudo-header
// (carried as a regular header once HPACK-decoded, per RFC 8441).
func IsUpgrade(p Pseudo, regular [][2]string) bool {
	if p.Method == "CONNECT" {
		return true
	}
	_, ok := hasHeader(regular, ":protocol")
	return ok
}

// RewriteLocation substitutes the origin-facing scheme/authority in a
// Location response header with the upstream-facing one, when the
// referenced authority matches the origin's and the adapter is not
// running in transparent client_proxy mode.
func RewriteLocation(location, originScheme, originAuthority, upstreamScheme, upstreamAuthority string) string {
	prefix := originScheme + "://" + originAuthority
	if !strings.HasPrefix(location, prefix) {
		return location
	}
	rest := location[len(prefix):]
	if rest != "" && rest[0] != '/' && rest[0] != '?' && rest[0] != '#' {
		return location
	}
	return upstreamScheme + "://" + upstreamAuthority + rest
}

// SpliceVia appends token to an existing Via header value (after ", "),
// or returns token alone if there was none.
func SpliceVia(existing, token string) string {
	if existing == "" {
		return token
	}
	return existing + ", " + token
}
