// Package events streams drpc connection-lifecycle notifications to
// HTTP subscribers over Server-Sent Events, for dashboards and
// monitoring tools that want to watch connections and streams open
// and close in real time without scraping metrics.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind names the lifecycle transition a Record reports.
type Kind string

const (
	ConnOpened   Kind = "conn_opened"
	ConnClosed   Kind = "conn_closed"
	StreamOpened Kind = "stream_opened"
	StreamClosed Kind = "stream_closed"
)

// Record is one lifecycle notification. ConnID and StreamID are
// omitted (zero value) when not applicable to Kind.
type Record struct {
	Kind      Kind      `json:"kind"`
	ConnID    string    `json:"connId"`
	StreamID  uint64    `json:"streamId,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// sseEvent serializes a Record to the text/event-stream wire format
// (one "event:" line naming Kind, one JSON "data:" line, blank line
// terminator), mirroring the teacher's sse.Event.String layout.
func (r Record) sseEvent() string {
	data, err := json.Marshal(r)
	if err != nil {
		// Record's fields are all directly marshalable; this only
		// fires if that ever stops being true.
		data = []byte(fmt.Sprintf(`{"kind":%q}`, r.Kind))
	}
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(string(r.Kind))
	b.WriteByte('\n')
	b.WriteString("data: ")
	b.Write(data)
	b.WriteString("\n\n")
	return b.String()
}
