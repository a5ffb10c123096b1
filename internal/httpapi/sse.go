package httpapi

import "net/http"

// setSSEHeaders marks the response as an event stream. Once these are
// written, failures must be reported in-band, never as an HTTP error.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// flusherFor returns the writer's Flush, or nil when the transport does
// not support flushing (buffered test recorders still work).
func flusherFor(w http.ResponseWriter) func() {
	if f, ok := w.(http.Flusher); ok {
		return f.Flush
	}
	return nil
}
