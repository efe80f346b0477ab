package drpc

import (
	"net"
	"testing"
)

func TestConnIDStable(t *testing.T) {
	a, _ := net.Pipe()
	c := NewConn(a)
	defer c.Close()
	if c.ID() != c.ID() {
		t.Error("Conn.ID() changed between calls")
	}
}

func TestConnNewStreamAllocatesIncreasingIDs(t *testing.T) {
	client, server := net.Pipe()
	c := NewConn(client)
	defer c.Close()

	go func() {
		sc := NewConn(server)
		defer sc.Close()
		// An Invoke and a CloseSend for each of the two streams.
		for i := 0; i < 4; i++ {
			if _, _, err := sc.tr.ReadPacketInto(&sc.sharedBuf); err != nil {
				return
			}
		}
	}()

	s1, err := c.NewStream([]byte("a"))
	if err != nil {
		t.Fatalf("NewStream 1: %v", err)
	}
	if err := s1.CloseSend(); err != nil {
		t.Fatalf("CloseSend 1: %v", err)
	}
	s2, err := c.NewStream([]byte("b"))
	if err != nil {
		t.Fatalf("NewStream 2: %v", err)
	}
	if err := s2.CloseSend(); err != nil {
		t.Fatalf("CloseSend 2: %v", err)
	}
	if s2.ID().Stream <= s1.ID().Stream {
		t.Errorf("stream ids did not increase: %d then %d", s1.ID().Stream, s2.ID().Stream)
	}
}
