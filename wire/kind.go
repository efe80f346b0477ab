package wire

import "fmt"

// Kind tags the purpose of a packet. It is an open enum: codes other
// than the ones named below pass through the frame codec unchanged,
// but receipt of one terminates the stream (see drpc.Stream.RecvInto).
type Kind uint8

const (
	// KindInvoke opens a stream; its payload is the opaque RPC method name.
	KindInvoke Kind = 1
	// KindMessage carries an application payload.
	KindMessage Kind = 2
	// KindError terminates the stream; payload is an 8-byte big-endian
	// code followed by a UTF-8 message.
	KindError Kind = 3
	// 4 is unused by the protocol.
	// KindClose terminates the stream in both directions.
	KindClose Kind = 5
	// KindCloseSend means the sender will issue no further Message
	// packets; the receive side may continue.
	KindCloseSend Kind = 6
	// KindInvokeMetadata is reserved. The core treats it as unknown.
	KindInvokeMetadata Kind = 7
)

// Known reports whether k is one of the kinds the stream engine
// assigns meaning to. Unknown kinds still round-trip through the
// frame codec (see Frame/Packet), they just terminate the stream on
// receipt.
func (k Kind) Known() bool {
	switch k {
	case KindInvoke, KindMessage, KindError, KindClose, KindCloseSend:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindInvoke:
		return "Invoke"
	case KindMessage:
		return "Message"
	case KindError:
		return "Error"
	case KindClose:
		return "Close"
	case KindCloseSend:
		return "CloseSend"
	case KindInvokeMetadata:
		return "InvokeMetadata"
	default:
		return fmt.Sprintf("Other(%d)", uint8(k))
	}
}
