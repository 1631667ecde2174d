package frame

import (
	"bytes"
	"testing"

	"golang.org/x/net/http2"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewHeaderEncoder()
	dec := NewHeaderDecoder(4096)

	in := [][2]string{
		{":status", "200"},
		{"content-type", "text/plain"},
	}
	block, err := enc.Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := dec.Decode(block)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("Decode returned %d fields, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("field %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestWriteWindowUpdateRejectsZero(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteWindowUpdate(1, 0); err == nil {
		t.Error("expected WriteWindowUpdate(0) to be rejected")
	}
}

func TestWritePushPromiseAlwaysFails(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WritePushPromise(1, 2, nil); err == nil {
		t.Error("expected WritePushPromise to always fail")
	}
}

func TestWriteDataSuppressesEmptyNonEndStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteData(1, false, nil); err != nil {
		t.Fatalf("WriteData failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no bytes written for empty non-end-stream DATA, got %d", buf.Len())
	}
}

func TestParserReadsFramesWrittenByWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteSettings(http2.Setting{ID: http2.SettingMaxConcurrentStreams, Val: 100}); err != nil {
		t.Fatalf("WriteSettings failed: %v", err)
	}
	if err := w.WriteData(1, true, []byte("hello")); err != nil {
		t.Fatalf("WriteData failed: %v", err)
	}

	p := NewParser()
	p.InitReader(&buf)

	f1, err := p.ReadNextFrame()
	if err != nil {
		t.Fatalf("ReadNextFrame (settings) failed: %v", err)
	}
	if _, ok := f1.(*http2.SettingsFrame); !ok {
		t.Errorf("first frame = %T, want *http2.SettingsFrame", f1)
	}

	f2, err := p.ReadNextFrame()
	if err != nil {
		t.Fatalf("ReadNextFrame (data) failed: %v", err)
	}
	df, ok := f2.(*http2.DataFrame)
	if !ok {
		t.Fatalf("second frame = %T, want *http2.DataFrame", f2)
	}
	if string(df.Data()) != "hello" {
		t.Errorf("DATA payload = %q, want %q", df.Data(), "hello")
	}
	if !df.StreamEnded() {
		t.Error("expected END_STREAM to be set")
	}
}

func TestWriteHeadersFragmentsOverMaxFrameSize(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	block := bytes.Repeat([]byte{'a'}, 100)
	if err := w.WriteHeaders(1, false, block, 30); err != nil {
		t.Fatalf("WriteHeaders failed: %v", err)
	}

	p := NewParser()
	p.InitReader(&buf)

	var reassembled []byte
	for {
		f, err := p.ReadNextFrame()
		if err != nil {
			t.Fatalf("ReadNextFrame failed: %v", err)
		}
		switch v := f.(type) {
		case *http2.HeadersFrame:
			reassembled = append(reassembled, v.HeaderBlockFragment()...)
			if v.HeadersEnded() {
				goto done
			}
		case *http2.ContinuationFrame:
			reassembled = append(reassembled, v.HeaderBlockFragment()...)
			if v.HeadersEnded() {
				goto done
			}
		default:
			t.Fatalf("unexpected frame type %T", f)
		}
	}
done:
	if !bytes.Equal(reassembled, block) {
		t.Errorf("reassembled header block does not match original")
	}
}
