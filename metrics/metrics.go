// Package metrics provides optional Prometheus instrumentation for
// drpc transports, connections, and the server accept loop. A nil
// *Recorder is always safe to call methods on — metrics are never
// required to exercise the core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder holds the counters and gauges drpc components report to.
// Construct one with NewRecorder and register it with a
// prometheus.Registerer, or leave components with a nil *Recorder to
// disable metrics entirely.
type Recorder struct {
	framesWritten   prometheus.Counter
	framesRead      prometheus.Counter
	bytesWritten    prometheus.Counter
	bytesRead       prometheus.Counter
	streamsOpened   prometheus.Counter
	streamsClosed   *prometheus.CounterVec
	activeConns     prometheus.Gauge
	transportErrors prometheus.Counter
}

// NewRecorder builds a Recorder and registers its collectors with reg.
// Pass prometheus.NewRegistry() in tests to avoid polluting the
// default registry, or prometheus.DefaultRegisterer in production.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		framesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drpc_frames_written_total",
			Help: "Number of frames written to the wire.",
		}),
		framesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drpc_frames_read_total",
			Help: "Number of frames read from the wire.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drpc_bytes_written_total",
			Help: "Number of payload bytes written to the wire.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drpc_bytes_read_total",
			Help: "Number of payload bytes read from the wire.",
		}),
		streamsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drpc_streams_opened_total",
			Help: "Number of streams opened (client Invoke or server accept).",
		}),
		streamsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drpc_streams_closed_total",
			Help: "Number of streams terminated, labeled by termination reason.",
		}, []string{"reason"}),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drpc_active_connections",
			Help: "Number of connections currently open.",
		}),
		transportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drpc_transport_errors_total",
			Help: "Number of sticky transport errors recorded.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			r.framesWritten, r.framesRead,
			r.bytesWritten, r.bytesRead,
			r.streamsOpened, r.streamsClosed,
			r.activeConns, r.transportErrors,
		)
	}
	return r
}

func (r *Recorder) FrameWritten(n int) {
	if r == nil {
		return
	}
	r.framesWritten.Inc()
	r.bytesWritten.Add(float64(n))
}

func (r *Recorder) FrameRead(n int) {
	if r == nil {
		return
	}
	r.framesRead.Inc()
	r.bytesRead.Add(float64(n))
}

func (r *Recorder) StreamOpened() {
	if r == nil {
		return
	}
	r.streamsOpened.Inc()
}

func (r *Recorder) StreamClosed(reason string) {
	if r == nil {
		return
	}
	r.streamsClosed.WithLabelValues(reason).Inc()
}

func (r *Recorder) ConnOpened() {
	if r == nil {
		return
	}
	r.activeConns.Inc()
}

func (r *Recorder) ConnClosed() {
	if r == nil {
		return
	}
	r.activeConns.Dec()
}

func (r *Recorder) TransportError() {
	if r == nil {
		return
	}
	r.transportErrors.Inc()
}
