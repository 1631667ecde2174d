package errorpage

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/andybalholm/brotli"
)

func headerValue(hdrs [][2]string, name string) (string, bool) {
	for _, kv := range hdrs {
		if kv[0] == name {
			return kv[1], true
		}
	}
	return "", false
}

func TestRenderPlain(t *testing.T) {
	page := Render(502, "h2gate", "")
	if page.Status != 502 {
		t.Errorf("Status = %d, want 502", page.Status)
	}
	if status, _ := headerValue(page.Headers, ":status"); status != "502" {
		t.Errorf(":status header = %q, want 502", status)
	}
	if _, ok := headerValue(page.Headers, "content-encoding"); ok {
		t.Error("expected no content-encoding without accept-encoding: br")
	}
	if server, _ := headerValue(page.Headers, "server"); server != "h2gate" {
		t.Errorf("server header = %q, want h2gate", server)
	}
	cl, ok := headerValue(page.Headers, "content-length")
	if !ok || cl != strconv.Itoa(len(page.Body)) {
		t.Errorf("content-length header = %q, want %d", cl, len(page.Body))
	}
	if _, ok := headerValue(page.Headers, "date"); !ok {
		t.Error("expected a date header")
	}
}

func TestRenderBrotli(t *testing.T) {
	page := Render(504, "h2gate", "gzip, br")
	enc, ok := headerValue(page.Headers, "content-encoding")
	if !ok || enc != "br" {
		t.Fatalf("content-encoding = %q, ok=%v, want br", enc, ok)
	}
	r := brotli.NewReader(bytes.NewReader(page.Body))
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		t.Fatalf("brotli decode failed: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("504")) {
		t.Errorf("decompressed body missing status text: %q", out.String())
	}
}

func TestRenderUnknownStatus(t *testing.T) {
	page := Render(599, "", "")
	if !bytes.Contains(page.Body, []byte("Error")) {
		t.Errorf("expected fallback status text for unknown code, got %q", page.Body)
	}
	if _, ok := headerValue(page.Headers, "server"); ok {
		t.Error("expected no server header when serverName is empty")
	}
}
