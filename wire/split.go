package wire

// Packet is the logical unit reassembled from one or more consecutive
// frames sharing an ID and Kind, the last of which has Done set.
type Packet struct {
	Data []byte
	ID   ID
	Kind Kind
}

// Split fragments p into frames of at most maxFrameSize payload bytes
// each. If len(p.Data) <= maxFrameSize or maxFrameSize == 0, Split
// returns a single frame with Done set. Otherwise it returns
// consecutive frames of exactly maxFrameSize bytes, except the last,
// which holds the remainder and has Done set. Every frame shares p's
// ID and Kind; Control is always false.
func Split(p Packet, maxFrameSize int) []Frame {
	var frames []Frame
	SplitFunc(p, maxFrameSize, func(f Frame) {
		frames = append(frames, f)
	})
	return frames
}

// SplitFunc is the allocation-free counterpart of Split: it invokes
// yield once per frame instead of collecting them into a slice. Frame
// payloads alias p.Data; yield must not retain them past the call if
// p.Data may be reused.
func SplitFunc(p Packet, maxFrameSize int, yield func(Frame)) {
	if maxFrameSize <= 0 || len(p.Data) <= maxFrameSize {
		yield(Frame{Data: p.Data, ID: p.ID, Kind: p.Kind, Done: true})
		return
	}

	data := p.Data
	for len(data) > maxFrameSize {
		yield(Frame{Data: data[:maxFrameSize], ID: p.ID, Kind: p.Kind, Done: false})
		data = data[maxFrameSize:]
	}
	yield(Frame{Data: data, ID: p.ID, Kind: p.Kind, Done: true})
}
