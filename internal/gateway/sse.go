// ABOUTME: Server-Sent Events streaming of live subscriptions
// ABOUTME: Writes one event per update, a keepalive comment when idle and an error event on failure

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voyengo/voyengo/internal/apperr"
	"github.com/voyengo/voyengo/internal/live"
)

// sseKeepaliveInterval is how often an idle stream gets a comment line so
// proxies do not time it out.
var sseKeepaliveInterval = 15 * time.Second

// writeSSEEvent writes one event and flushes it to the client.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// streamSSE relays sub to the client until the client leaves, the server
// shuts down or the subscription fails. render converts each update into its
// wire shape. The subscription is closed on return.
func streamSSE[T any](g *Gateway, w http.ResponseWriter, r *http.Request, sub *live.Subscription[T], event string, render func(T) any) {
	defer func() { _ = sub.Close() }()

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendJSONError(w, http.StatusInternalServerError, "internal", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case update, ok := <-sub.Updates():
			if !ok {
				if err := sub.Err(); err != nil {
					g.logger.Warn("subscription ended with error", "event", event, "path", r.URL.Path, "error", err)
					_ = writeSSEEvent(w, flusher, "error", errorResponse{
						Error: apperr.MessageOf(err),
						Code:  apperr.CodeOf(err),
					})
				}
				return
			}
			if err := writeSSEEvent(w, flusher, event, render(update)); err != nil {
				logWriteError(g.logger, event+" event", err)
				return
			}
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				logWriteError(g.logger, "keepalive", err)
				return
			}
			flusher.Flush()
		}
	}
}
