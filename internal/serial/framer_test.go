package serial

import (
	"reflect"
	"testing"
)

func TestLineFramer_ChunkBoundariesDoNotMatter(t *testing.T) {
	full := "{\"type\":\"status\"}\n{\"sensor1\":512,\"sensor2\":498}\nrst:0x1 (POWERON_RESET)\n"

	// Whole input in one push
	var whole LineFramer
	want := whole.Push([]byte(full))
	if len(want) != 3 {
		t.Fatalf("expected 3 lines, got %v", want)
	}

	// Same input delivered one byte at a time
	var byByte LineFramer
	var got []string
	for i := 0; i < len(full); i++ {
		got = append(got, byByte.Push([]byte{full[i]})...)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("byte-at-a-time framing differs:\n got %v\nwant %v", got, want)
	}

	// And in awkward mid-line chunks
	var chunked LineFramer
	got = nil
	for _, chunk := range []string{full[:5], full[5:23], full[23:24], full[24:]} {
		got = append(got, chunked.Push([]byte(chunk))...)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("chunked framing differs:\n got %v\nwant %v", got, want)
	}
}

func TestLineFramer_HoldsPartialUntilNewline(t *testing.T) {
	var f LineFramer

	if lines := f.Push([]byte(`{"type":"race_res`)); len(lines) != 0 {
		t.Fatalf("partial line must not be emitted: %v", lines)
	}
	lines := f.Push([]byte("ult\"}\n"))
	if len(lines) != 1 || lines[0] != `{"type":"race_result"}` {
		t.Fatalf("got %v", lines)
	}
}

func TestLineFramer_TrimsAndSuppressesEmpty(t *testing.T) {
	var f LineFramer

	lines := f.Push([]byte("  {\"type\":\"status\"}  \r\n\r\n\n   \n"))
	if len(lines) != 1 || lines[0] != `{"type":"status"}` {
		t.Fatalf("got %v", lines)
	}
}

func TestLineFramer_DropsInvalidUTF8(t *testing.T) {
	var f LineFramer

	lines := f.Push([]byte{0xff, 0xfe, 'o', 'k', 0x80, '\n'})
	if len(lines) != 1 || lines[0] != "ok" {
		t.Fatalf("got %v", lines)
	}
}

func TestLineFramer_ResetDropsPartial(t *testing.T) {
	var f LineFramer

	f.Push([]byte("half a li"))
	f.Reset()
	lines := f.Push([]byte("ne\n"))
	if len(lines) != 1 || lines[0] != "ne" {
		t.Fatalf("stale partial survived reset: %v", lines)
	}
}
