package wire

import (
	"bytes"
	"errors"
	"testing"
)

func sampleFrames() []Frame {
	return []Frame{
		{Data: nil, ID: ID{0, 0}, Kind: KindInvoke, Done: true},
		{Data: []byte("hello"), ID: ID{1, 1}, Kind: KindMessage, Done: true},
		{Data: []byte("partial"), ID: ID{5, 9}, Kind: KindMessage, Done: false},
		{Data: bytes.Repeat([]byte{0xAB}, 70000), ID: ID{2, 3}, Kind: KindMessage, Done: true},
		{Data: []byte{1, 2, 3}, ID: ID{1 << 40, 1 << 50}, Kind: Kind(42), Done: true, Control: false},
	}
}

// TestFrameRoundTrip exercises spec property: parsing
// AppendFrame(f) || tail yields (f, len) with tail unchanged.
func TestFrameRoundTrip(t *testing.T) {
	for _, f := range sampleFrames() {
		tail := []byte("tail-marker")
		buf := AppendFrame(nil, f)
		withTail := append(append([]byte{}, buf...), tail...)

		got, n, err := ParseFrame(withTail)
		if err != nil {
			t.Fatalf("ParseFrame: unexpected error: %v", err)
		}
		if n != len(buf) {
			t.Errorf("consumed %d bytes, want %d", n, len(buf))
		}
		if got.ID != f.ID || got.Kind != f.Kind || got.Done != f.Done || got.Control != f.Control {
			t.Errorf("frame header mismatch: got %+v, want %+v", got, f)
		}
		if !bytes.Equal(got.Data, f.Data) {
			t.Errorf("payload mismatch: got %v, want %v", got.Data, f.Data)
		}
		if !bytes.Equal(withTail[n:], tail) {
			t.Errorf("tail was modified: got %v, want %v", withTail[n:], tail)
		}
	}
}

func TestFrameTruncated(t *testing.T) {
	f := Frame{Data: []byte("hello world"), ID: ID{3, 4}, Kind: KindMessage, Done: true}
	full := AppendFrame(nil, f)

	for i := 0; i < len(full); i++ {
		_, _, err := ParseFrame(full[:i])
		if !errors.Is(err, ErrNotEnoughData) {
			t.Errorf("truncated to %d/%d bytes: want ErrNotEnoughData, got %v", i, len(full), err)
		}
	}
}

func TestFrameControlBit(t *testing.T) {
	f := Frame{Data: []byte("x"), ID: ID{1, 1}, Kind: KindMessage, Done: true, Control: true}
	buf := AppendFrame(nil, f)
	got, _, err := ParseFrame(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Control {
		t.Error("expected control bit to round-trip as set")
	}
}

func TestFrameOversizedPayloadRejected(t *testing.T) {
	// Craft a header claiming a payload larger than MaxPacketSize.
	var buf []byte
	buf = append(buf, byte(KindMessage)<<1|0x01)
	buf = AppendVarint(buf, 1)
	buf = AppendVarint(buf, 1)
	buf = AppendVarint(buf, MaxPacketSize+1)

	_, _, err := ParseFrame(buf)
	if !errors.Is(err, ErrParseFrame) {
		t.Errorf("want ErrParseFrame, got %v", err)
	}
}
