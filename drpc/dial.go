package drpc

import (
	"context"
	"net"
)

// Dial opens a TCP connection to addr and wraps it in a Conn. This is
// the client-side entry point described by the original drpc-rs
// source (src/bin/client.rs) but absent from the distilled core spec;
// it is additive connective tissue, not a new protocol feature.
func Dial(ctx context.Context, network, addr string, opts ...ConnOption) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return NewConn(nc, opts...), nil
}
