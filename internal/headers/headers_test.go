package headers

import "testing"

func TestNormalizeLowercasesAndCoalesces(t *testing.T) {
	raw := [][2]string{
		{"Content-Type", " text/plain "},
		{"X-Multi", "a"},
		{"x-multi", "b"},
		{"Set-Cookie", "a=1"},
		{"set-cookie", "b=2"},
	}
	got := Normalize(raw)

	want := map[string]string{
		"content-type": "text/plain",
		"x-multi":      "a, b",
	}
	seenCookies := 0
	for _, kv := range got {
		if kv[0] == "set-cookie" {
			seenCookies++
			continue
		}
		if w, ok := want[kv[0]]; !ok || w != kv[1] {
			t.Errorf("unexpected pair %q=%q", kv[0], kv[1])
		}
	}
	if seenCookies != 2 {
		t.Errorf("expected set-cookie to remain uncoalesced, got %d entries", seenCookies)
	}
}

func TestValidateRejectsConnectionSpecific(t *testing.T) {
	cases := []struct {
		name    string
		headers [][2]string
		wantErr bool
	}{
		{"clean", [][2]string{{":method", "GET"}, {"accept", "*/*"}}, false},
		{"connection header", [][2]string{{"connection", "keep-alive"}}, true},
		{"te trailers ok", [][2]string{{"te", "trailers"}}, false},
		{"te gzip rejected", [][2]string{{"te", "gzip"}}, true},
		{"pseudo after regular", [][2]string{{"accept", "*/*"}, {":method", "GET"}}, true},
		{"unknown pseudo", [][2]string{{":bogus", "x"}}, true},
		{"extended connect protocol", [][2]string{{":method", "CONNECT"}, {":protocol", "websocket"}}, false},
		{"duplicate pseudo", [][2]string{{":method", "GET"}, {":method", "POST"}}, true},
		{"uppercase name", [][2]string{{"Accept", "*/*"}}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Validate(c.headers)
			if (err != nil) != c.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", c.headers, err, c.wantErr)
			}
		})
	}
}

func TestExtractPseudo(t *testing.T) {
	p, regular := ExtractPseudo([][2]string{
		{":method", "GET"},
		{":scheme", "https"},
		{":authority", "example.com"},
		{":path", "/"},
		{"accept", "*/*"},
	})
	if p.Method != "GET" || p.Scheme != "https" || p.Authority != "example.com" || p.Path != "/" {
		t.Errorf("unexpected pseudo %+v", p)
	}
	if len(regular) != 1 || regular[0][0] != "accept" {
		t.Errorf("unexpected regular headers %v", regular)
	}
}

func TestAcceptConnect(t *testing.T) {
	ok := Pseudo{Method: "CONNECT", Authority: "example.com:443"}
	if err := Accept(ok, nil, false, false); err != nil {
		t.Errorf("expected valid CONNECT to pass, got %v", err)
	}
	bad := Pseudo{Method: "CONNECT", Authority: "example.com:443", Scheme: "https"}
	if err := Accept(bad, nil, false, false); err == nil {
		t.Error("expected CONNECT with :scheme to be rejected")
	}
	noAuth := Pseudo{Method: "CONNECT"}
	if err := Accept(noAuth, nil, false, false); err == nil {
		t.Error("expected CONNECT without :authority to be rejected")
	}
}

func TestAcceptRegularRequest(t *testing.T) {
	p := Pseudo{Method: "GET", Scheme: "https", Path: "/", Authority: "example.com"}
	if err := Accept(p, nil, false, true); err != nil {
		t.Errorf("expected valid GET to pass, got %v", err)
	}

	missing := Pseudo{Method: "GET", Scheme: "https", Path: "/"}
	if err := Accept(missing, nil, false, true); err == nil {
		t.Error("expected missing authority/host to be rejected")
	}
	withHost := [][2]string{{"host", "example.com"}}
	if err := Accept(missing, withHost, false, true); err != nil {
		t.Errorf("expected host header to satisfy authority requirement, got %v", err)
	}

	proxyMode := Pseudo{Method: "GET", Scheme: "https", Path: "/"}
	if err := Accept(proxyMode, withHost, true, true); err == nil {
		t.Error("expected proxy mode to require :authority even with host header")
	}

	bodied := Pseudo{Method: "POST", Scheme: "https", Path: "/", Authority: "example.com"}
	if err := Accept(bodied, nil, false, false); err == nil {
		t.Error("expected bodied request without content-length to be rejected")
	}
	withCL := [][2]string{{"content-length", "10"}}
	if err := Accept(bodied, withCL, false, false); err != nil {
		t.Errorf("expected content-length to satisfy bodied request, got %v", err)
	}
}

func TestIsUpgrade(t *testing.T) {
	if !IsUpgrade(Pseudo{Method: "CONNECT"}, nil) {
		t.Error("expected CONNECT to be an upgrade")
	}
	if !IsUpgrade(Pseudo{Method: "GET"}, [][2]string{{":protocol", "websocket"}}) {
		t.Error("expected :protocol to mark an extended CONNECT upgrade")
	}
	if IsUpgrade(Pseudo{Method: "GET"}, nil) {
		t.Error("expected plain GET to not be an upgrade")
	}
}

func TestExtendedConnectSurvivesFullPipeline(t *testing.T) {
	raw := [][2]string{
		{":method", "CONNECT"},
		{":protocol", "websocket"},
		{":scheme", "https"},
		{":authority", "example.com"},
		{":path", "/chat"},
	}
	if err := Validate(raw); err != nil {
		t.Fatalf("Validate rejected an extended CONNECT request: %v", err)
	}
	pseudo, regular := ExtractPseudo(raw)
	if !IsUpgrade(pseudo, regular) {
		t.Error("expected the reassembled request to be detected as an upgrade")
	}
}

func TestRewriteLocation(t *testing.T) {
	got := RewriteLocation("https://origin.internal/path?q=1", "https", "origin.internal", "https", "public.example.com")
	want := "https://public.example.com/path?q=1"
	if got != want {
		t.Errorf("RewriteLocation() = %q, want %q", got, want)
	}

	unrelated := RewriteLocation("https://elsewhere.example.com/x", "https", "origin.internal", "https", "public.example.com")
	if unrelated != "https://elsewhere.example.com/x" {
		t.Errorf("expected unrelated Location to pass through unchanged, got %q", unrelated)
	}
}

func TestSpliceVia(t *testing.T) {
	if got := SpliceVia("", "1.1 h2gate"); got != "1.1 h2gate" {
		t.Errorf("SpliceVia empty = %q", got)
	}
	if got := SpliceVia("1.0 fake", "1.1 h2gate"); got != "1.0 fake, 1.1 h2gate" {
		t.Errorf("SpliceVia existing = %q", got)
	}
}
