package events

import "net/http"

// Handler returns an http.Handler that upgrades each request to a
// subscriber connection on bus and blocks until the client
// disconnects. Mount it at whatever path a dashboard polls, e.g.
// mux.Handle("/events", events.Handler(bus)).
func Handler(bus *Bus) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := bus.Subscribe(conn); err != nil {
			_ = conn.Close()
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		<-conn.Done()
		_ = bus.Unsubscribe(conn)
	})
}
