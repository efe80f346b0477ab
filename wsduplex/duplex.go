package wsduplex

import (
	"errors"
	"io"
)

// Duplex adapts a message-oriented Conn into the plain byte-stream
// io.ReadWriteCloser drpc.NewConn and transport.New expect. Every
// Write call is sent as one BinaryMessage; every Read drains one
// message at a time into the caller's buffer, carrying any leftover
// bytes to the next call.
type Duplex struct {
	conn    *Conn
	pending []byte
}

// NewDuplex wraps conn for use as a drpc duplex channel.
func NewDuplex(conn *Conn) *Duplex {
	return &Duplex{conn: conn}
}

// Read implements io.Reader. It never returns (0, nil): if the
// pending buffer is empty it blocks on the next WebSocket message.
func (d *Duplex) Read(p []byte) (int, error) {
	for len(d.pending) == 0 {
		_, data, err := d.conn.Read()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return 0, io.EOF
			}
			return 0, err
		}
		d.pending = data
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// Write implements io.Writer, sending p as a single BinaryMessage.
// drpc's transport buffers writes on its own side and only calls
// Write at its configured flush points, so this does not fragment
// drpc frames across multiple WebSocket messages.
func (d *Duplex) Write(p []byte) (int, error) {
	if err := d.conn.Write(BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the underlying WebSocket connection.
func (d *Duplex) Close() error {
	return d.conn.Close()
}
