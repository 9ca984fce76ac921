// Package stream encodes pipeline events as Server-Sent Events. Each record
// is the wire projection of one event, written as `data: {json}` and flushed
// immediately so tokens render as they arrive.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/AgentWireHQ/agentwire/events"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush,
// e.g. behind a buffering proxy handler.
var ErrStreamingUnsupported = errors.New("stream: response writer does not support flushing")

// DefaultKeepAliveInterval matches the ping cadence proxies tolerate without
// closing an idle connection.
const DefaultKeepAliveInterval = 15 * time.Second

type Encoder struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// NewEncoder prepares w for event streaming and writes the SSE headers.
func NewEncoder(w http.ResponseWriter) (*Encoder, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &Encoder{w: w, flusher: flusher}, nil
}

// WriteEvent writes one event's wire projection as a flushed SSE record.
func (e *Encoder) WriteEvent(ev events.Event) error {
	payload, err := json.Marshal(ev.Wire())
	if err != nil {
		return fmt.Errorf("encode event %q: %w", ev.EventType(), err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("stream: encoder closed")
	}
	if _, err := e.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := e.w.Write(payload); err != nil {
		return err
	}
	if _, err := e.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// StartKeepAlive runs KeepAlive in its own goroutine. The returned stop
// function halts the pings and blocks until the goroutine has exited, so no
// tick can touch the ResponseWriter once stop has returned. Callers must
// invoke stop before releasing the writer back to the HTTP server.
func (e *Encoder) StartKeepAlive(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		e.KeepAlive(done, interval)
		close(finished)
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-finished
	}
}

// KeepAlive sends comment pings until done closes. Failed pings mark the
// encoder closed so in-flight writes stop instead of writing to a dead
// connection.
func (e *Encoder) KeepAlive(done <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.closed {
				e.mu.Unlock()
				return
			}
			if _, err := e.w.Write([]byte(": keepalive\n\n")); err != nil {
				e.closed = true
				e.mu.Unlock()
				return
			}
			e.flusher.Flush()
			e.mu.Unlock()
		}
	}
}
