package drpc

import (
	"errors"
	"net"
	"testing"
)

// newConnPair connects two Conns over a loopback TCP socket. Its kernel
// buffers let a side flush its final Close packet after the peer has
// stopped reading; an unbuffered net.Pipe would block that write.
func newConnPair() (*Conn, *Conn) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		nc, _ := ln.Accept()
		accepted <- nc
	}()
	a, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		panic(err)
	}
	return NewConn(a), NewConn(<-accepted)
}

func TestStreamEchoRoundTrip(t *testing.T) {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var name []byte
		sid, kind, err := server.tr.ReadPacketInto(&server.sharedBuf)
		if err != nil {
			t.Errorf("server read invoke: %v", err)
			return
		}
		if kind != 1 {
			t.Errorf("got kind %v, want Invoke", kind)
		}
		name = append(name, server.sharedBuf...)
		if string(name) != "echo" {
			t.Errorf("got rpc name %q, want echo", name)
		}
		s := newStream(sid, server.tr, server.enc, &server.sharedBuf, server.log, server.metrics)

		var in []byte
		if err := s.RecvInto(&in); err != nil {
			t.Errorf("server recv: %v", err)
			return
		}
		if err := s.Send(in); err != nil {
			t.Errorf("server send: %v", err)
			return
		}
		if err := s.Close(); err != nil {
			t.Errorf("server close: %v", err)
		}
	}()

	var out []byte
	if err := client.InvokeInto([]byte("echo"), []byte("hello"), &out); err != nil {
		t.Fatalf("InvokeInto: %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("got %q, want %q", out, "hello")
	}
	<-done
}

func TestStreamRemoteErrorSurfaces(t *testing.T) {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sid, _, err := server.tr.ReadPacketInto(&server.sharedBuf)
		if err != nil {
			t.Errorf("server read invoke: %v", err)
			return
		}
		s := newStream(sid, server.tr, server.enc, &server.sharedBuf, server.log, server.metrics)
		if err := s.Error("boom", 42); err != nil {
			t.Errorf("server Error: %v", err)
		}
	}()

	s, err := client.NewStream([]byte("fail"))
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	// Flush the Invoke without CloseSend: sendState must still be unset
	// when the Error packet arrives.
	if err := s.tr.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var out []byte
	err = s.RecvInto(&out)
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("want RemoteError, got %v", err)
	}
	if remoteErr.Code != 42 || remoteErr.Msg != "boom" {
		t.Errorf("got code=%d msg=%q, want code=42 msg=boom", remoteErr.Code, remoteErr.Msg)
	}

	// Spec concrete scenario: a subsequent Send returns EOF, not the
	// RemoteError wrapped in termState, because Send checks its own
	// axis (sendState) before termState.
	err2 := s.Send([]byte("more"))
	if !errors.Is(err2, ErrEOF) {
		t.Errorf("want ErrEOF on subsequent send, got %v", err2)
	}
	<-done
}

func TestStreamCloseSendThenCloseIsIdempotent(t *testing.T) {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	go func() {
		sid, _, err := server.tr.ReadPacketInto(&server.sharedBuf)
		if err != nil {
			return
		}
		s := newStream(sid, server.tr, server.enc, &server.sharedBuf, server.log, server.metrics)
		var in []byte
		_ = s.RecvInto(&in)
		_ = s.Close()
	}()

	s, err := client.NewStream([]byte("noop"))
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("first CloseSend: %v", err)
	}
	if err := s.CloseSend(); err != nil {
		t.Errorf("second CloseSend should be a no-op returning nil, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close after CloseSend: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op returning nil, got %v", err)
	}
}

func TestStreamMultipleMessages(t *testing.T) {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	want := []string{"one", "two", "three"}
	done := make(chan struct{})
	go func() {
		defer close(done)
		sid, _, err := server.tr.ReadPacketInto(&server.sharedBuf)
		if err != nil {
			t.Errorf("server read invoke: %v", err)
			return
		}
		s := newStream(sid, server.tr, server.enc, &server.sharedBuf, server.log, server.metrics)
		for _, w := range want {
			var in []byte
			if err := s.RecvInto(&in); err != nil {
				t.Errorf("server recv %q: %v", w, err)
				return
			}
			if string(in) != w {
				t.Errorf("got %q, want %q", in, w)
			}
		}
		var trailing []byte
		if err := s.RecvInto(&trailing); !errors.Is(err, ErrEOF) {
			t.Errorf("want ErrEOF after last message, got %v", err)
		}
		_ = s.Close()
	}()

	s, err := client.NewStream([]byte("multi"))
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	for _, w := range want {
		if err := s.Send([]byte(w)); err != nil {
			t.Fatalf("Send(%q): %v", w, err)
		}
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}
	<-done
}

func TestStreamUnknownKindTerminates(t *testing.T) {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	go func() {
		sid, _, err := server.tr.ReadPacketInto(&server.sharedBuf)
		if err != nil {
			return
		}
		// Write a raw packet with an unrecognized kind directly.
		s := newStream(sid, server.tr, server.enc, &server.sharedBuf, server.log, server.metrics)
		_ = s.writePacket(42, []byte("x"))
		_ = s.tr.Flush()
	}()

	s, err := client.NewStream([]byte("bad"))
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}
	var out []byte
	err = s.RecvInto(&out)
	var unk *UnknownPacketKind
	if !errors.As(err, &unk) {
		t.Fatalf("want UnknownPacketKind, got %v", err)
	}
	if unk.Kind != 42 {
		t.Errorf("got kind %d, want 42", unk.Kind)
	}
}
