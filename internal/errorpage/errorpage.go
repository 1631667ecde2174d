// Package errorpage synthesizes a canned HTML error body and the response
// headers that frame it (component G), for the cases where this core must
// answer a client stream itself: an origin that could not be dialed, or
// an origin transport failure before response headers arrived.
package errorpage

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/relayforge/h2gate/internal/date"
)

// Page is a synthesized error response, ready to be staged as a stream's
// response: Headers already contains :status/content-type/server/
// content-length, and Body is what the shared data-provider pull should
// drain.
type Page struct {
	Status  int
	Headers [][2]string
	Body    []byte
}

const htmlTemplate = `<html><head><title>%[1]d %[2]s</title></head>` +
	`<body><h1>%[1]d %[2]s</h1></body></html>`

// Render builds the canned body for status and frames the response
// headers with serverName in the Server header. If acceptEncoding
// advertises "br", the body is brotli-compressed and content-encoding is
// set accordingly; origin response bodies are never routed through this
// path, so this never touches the byte-identical pass-through invariant.
func Render(status int, serverName, acceptEncoding string) Page {
	text := http.StatusText(status)
	if text == "" {
		text = "Error"
	}
	body := []byte(fmt.Sprintf(htmlTemplate, status, text))

	hdrs := [][2]string{
		{":status", strconv.Itoa(status)},
		{"content-type", "text/html; charset=UTF-8"},
		{"date", string(date.Current())},
	}
	if strings.Contains(acceptEncoding, "br") {
		if compressed, ok := compressBrotli(body); ok {
			body = compressed
			hdrs = append(hdrs, [2]string{"content-encoding", "br"})
		}
	}
	if serverName != "" {
		hdrs = append(hdrs, [2]string{"server", serverName})
	}
	hdrs = append(hdrs, [2]string{"content-length", strconv.Itoa(len(body))})

	return Page{Status: status, Headers: hdrs, Body: body}
}

func compressBrotli(body []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
