package drpc

// Message is the constraint drpc places on application values passed
// to Send/RecvInto/InvokeInto: an Encoding knows how to turn one into
// wire bytes and back. The core never inspects the value itself.
type Message = any

// Encoding is the external collaborator contract (spec §6) for
// turning application messages into payload bytes and back. Encoding
// errors never poison stream state — the caller may retry with a
// different value.
type Encoding interface {
	// Marshal appends the encoded form of msg to *buf.
	Marshal(msg Message, buf *[]byte) error
	// Unmarshal decodes data into msg.
	Unmarshal(data []byte, msg Message) error
}

// RawEncoding is the identity encoding required by spec §6: messages
// must be *[]byte (for Unmarshal's destination, a *[]byte) or []byte
// (for Marshal's source).
type RawEncoding struct{}

// Marshal appends msg's bytes to *buf. msg must be a []byte.
func (RawEncoding) Marshal(msg Message, buf *[]byte) error {
	b, ok := msg.([]byte)
	if !ok {
		return errUnsupportedRawMessage
	}
	*buf = append(*buf, b...)
	return nil
}

// Unmarshal copies data into *msg.(*[]byte). msg must be a *[]byte.
func (RawEncoding) Unmarshal(data []byte, msg Message) error {
	dst, ok := msg.(*[]byte)
	if !ok {
		return errUnsupportedRawMessage
	}
	*dst = append((*dst)[:0], data...)
	return nil
}

var errUnsupportedRawMessage = rawEncodingError("drpc: RawEncoding requires []byte / *[]byte messages")

type rawEncodingError string

func (e rawEncodingError) Error() string { return string(e) }
