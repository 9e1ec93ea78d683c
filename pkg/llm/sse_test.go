package llm

import (
	"reflect"
	"testing"
)

func TestFrameDecoder_SplitsAcrossReads(t *testing.T) {
	var d frameDecoder

	if got := d.feed([]byte("data: {\"a\"")); len(got) != 0 {
		t.Fatalf("feed(partial) = %v, want none", got)
	}
	got := d.feed([]byte(":1}\n\ndata: [DONE]\n"))
	want := []string{`{"a":1}`, doneFrame}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("feed() = %v, want %v", got, want)
	}
	if _, ok := d.flush(); ok {
		t.Fatalf("flush() returned a frame from an empty buffer")
	}
}

func TestFrameDecoder_IgnoresNonDataLines(t *testing.T) {
	var d frameDecoder
	got := d.feed([]byte(": keep-alive\r\nevent: message\r\ndata:{\"b\":2}\r\ndata: \n"))
	want := []string{`{"b":2}`}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("feed() = %v, want %v", got, want)
	}
}

func TestFrameDecoder_FlushUnterminated(t *testing.T) {
	var d frameDecoder
	d.feed([]byte("data: tail"))
	frame, ok := d.flush()
	if !ok || frame != "tail" {
		t.Fatalf("flush() = %q, %v; want tail, true", frame, ok)
	}
}
