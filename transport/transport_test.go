package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/coregx/drpc/wire"
)

// pipeConn is a minimal in-memory io.ReadWriteCloser backed by two
// byte buffers, enough to drive the Transport without real sockets.
type pipeConn struct {
	r      *bytes.Reader
	w      bytes.Buffer
	closed bool
}

func newPipeConn(data []byte) *pipeConn {
	return &pipeConn{r: bytes.NewReader(data)}
}

func (p *pipeConn) Read(b []byte) (int, error) {
	if p.r.Len() == 0 {
		return 0, io.EOF
	}
	return p.r.Read(b)
}

func (p *pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipeConn) Close() error                { p.closed = true; return nil }

func appendFrames(frames ...wire.Frame) []byte {
	var buf []byte
	for _, f := range frames {
		buf = wire.AppendFrame(buf, f)
	}
	return buf
}

func TestTransportReassembly(t *testing.T) {
	// Spec property: a byte stream that is the concatenation of
	// AppendFrame(f_i) for matching id/kind, only the last done,
	// reassembles into (id, kind, concatenated data).
	frames := []wire.Frame{
		{Data: []byte("hel"), ID: wire.ID{2, 5}, Kind: wire.KindMessage, Done: false},
		{Data: []byte("lo "), ID: wire.ID{2, 5}, Kind: wire.KindMessage, Done: false},
		{Data: []byte("world"), ID: wire.ID{2, 5}, Kind: wire.KindMessage, Done: true},
	}
	raw := appendFrames(frames...)

	tr := New(newPipeConn(raw))
	var out []byte
	id, kind, err := tr.ReadPacketInto(&out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != (wire.ID{2, 5}) || kind != wire.KindMessage {
		t.Errorf("got id=%v kind=%v, want id={2 5} kind=Message", id, kind)
	}
	if string(out) != "hello world" {
		t.Errorf("got %q, want %q", out, "hello world")
	}
}

func TestTransportControlFramesSkipped(t *testing.T) {
	frames := []wire.Frame{
		{Data: []byte("ignored"), ID: wire.ID{1, 1}, Kind: wire.KindMessage, Done: true, Control: true},
		{Data: []byte("payload"), ID: wire.ID{1, 2}, Kind: wire.KindMessage, Done: true},
	}
	tr := New(newPipeConn(appendFrames(frames...)))
	var out []byte
	id, _, err := tr.ReadPacketInto(&out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != (wire.ID{1, 2}) {
		t.Errorf("got id=%v, want {1 2}", id)
	}
	if string(out) != "payload" {
		t.Errorf("got %q, want %q", out, "payload")
	}
}

func TestTransportIDMonotonicity(t *testing.T) {
	frames := []wire.Frame{
		{Data: []byte("a"), ID: wire.ID{3, 5}, Kind: wire.KindMessage, Done: true},
		{Data: []byte("b"), ID: wire.ID{3, 2}, Kind: wire.KindMessage, Done: true},
	}
	tr := New(newPipeConn(appendFrames(frames...)))

	var out []byte
	if _, _, err := tr.ReadPacketInto(&out); err != nil {
		t.Fatalf("first packet: unexpected error: %v", err)
	}
	_, _, err := tr.ReadPacketInto(&out)
	if !errors.Is(err, ErrIDMonotonicity) {
		t.Fatalf("want ErrIDMonotonicity, got %v", err)
	}
	// sticky: a further call returns the same error without more I/O.
	_, _, err2 := tr.ReadPacketInto(&out)
	if !errors.Is(err2, ErrIDMonotonicity) {
		t.Errorf("sticky error not preserved: got %v", err2)
	}
}

func TestTransportKindStability(t *testing.T) {
	frames := []wire.Frame{
		{Data: []byte("a"), ID: wire.ID{1, 1}, Kind: wire.KindMessage, Done: false},
		{Data: []byte("b"), ID: wire.ID{1, 1}, Kind: wire.KindClose, Done: true},
	}
	tr := New(newPipeConn(appendFrames(frames...)))
	var out []byte
	_, _, err := tr.ReadPacketInto(&out)
	if !errors.Is(err, ErrPacketKindChange) {
		t.Fatalf("want ErrPacketKindChange, got %v", err)
	}
}

func TestTransportOverflow(t *testing.T) {
	big := bytes.Repeat([]byte{1}, 65536)
	var frames []wire.Frame
	// enough 64KiB frames to exceed the 4MiB packet cap.
	for i := 0; i < 70; i++ {
		frames = append(frames, wire.Frame{Data: big, ID: wire.ID{1, 1}, Kind: wire.KindMessage, Done: false})
	}
	frames = append(frames, wire.Frame{Data: nil, ID: wire.ID{1, 1}, Kind: wire.KindMessage, Done: true})

	tr := New(newPipeConn(appendFrames(frames...)))
	var out []byte
	_, _, err := tr.ReadPacketInto(&out)
	if !errors.Is(err, ErrDataOverflow) {
		t.Fatalf("want ErrDataOverflow, got %v", err)
	}
}

func TestTransportRemoteClosedMidRead(t *testing.T) {
	// Only a partial frame is available before EOF.
	full := appendFramesRaw(wire.ID{1, 1}, []byte("hello world"))
	tr := New(newPipeConn(full[:3]))

	var out []byte
	_, _, err := tr.ReadPacketInto(&out)
	if !errors.Is(err, ErrRemoteClosed) {
		t.Fatalf("want ErrRemoteClosed, got %v", err)
	}
}

func appendFramesRaw(id wire.ID, data []byte) []byte {
	return wire.AppendFrame(nil, wire.Frame{Data: data, ID: id, Kind: wire.KindMessage, Done: true})
}

func TestTransportWriteAndFlush(t *testing.T) {
	conn := newPipeConn(nil)
	tr := New(conn)

	f := wire.Frame{Data: []byte("payload"), ID: wire.ID{1, 1}, Kind: wire.KindMessage, Done: true}
	if err := tr.WriteFrame(f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if conn.w.Len() != 0 {
		t.Fatalf("expected nothing written before Flush, got %d bytes", conn.w.Len())
	}
	if err := tr.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, n, err := wire.ParseFrame(conn.w.Bytes())
	if err != nil {
		t.Fatalf("ParseFrame on written bytes: %v", err)
	}
	if n != conn.w.Len() {
		t.Errorf("wrote %d bytes, frame consumed %d", conn.w.Len(), n)
	}
	if string(got.Data) != "payload" {
		t.Errorf("got %q, want %q", got.Data, "payload")
	}
}

func TestTransportAutoFlushThreshold(t *testing.T) {
	conn := newPipeConn(nil)
	tr := New(conn)

	big := bytes.Repeat([]byte{7}, wire.WriteFlushThreshold)
	f := wire.Frame{Data: big, ID: wire.ID{1, 1}, Kind: wire.KindMessage, Done: true}
	if err := tr.WriteFrame(f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if conn.w.Len() == 0 {
		t.Error("expected auto-flush once write buffer crossed threshold")
	}
}

func TestTransportStickyWriteError(t *testing.T) {
	tr := New(&erroringConn{})
	err1 := tr.WriteFrame(wire.Frame{Data: []byte("x"), ID: wire.ID{1, 1}, Kind: wire.KindMessage, Done: true})
	if err1 != nil {
		t.Fatalf("buffering shouldn't fail before flush threshold: %v", err1)
	}
	err2 := tr.Flush()
	if err2 == nil {
		t.Fatal("expected flush to fail")
	}
	err3 := tr.Flush()
	if !errors.Is(err3, err2) {
		t.Errorf("sticky error not preserved: got %v, want %v", err3, err2)
	}
}

type erroringConn struct{}

func (e *erroringConn) Read([]byte) (int, error)  { return 0, errors.New("boom read") }
func (e *erroringConn) Write([]byte) (int, error) { return 0, errors.New("boom write") }
func (e *erroringConn) Close() error              { return nil }
