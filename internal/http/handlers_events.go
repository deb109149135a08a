package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pricememory/internal/events"
	"pricememory/internal/log"
)

const (
	sseHeartbeat  = 25 * time.Second
	sseRetryMs    = 3000
	sseBufferSize = 16
)

type streamEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// handleEvents pushes store mutations to the browser as Server-Sent
// Events. Every message is named "purchase"; the page re-fetches the
// list partial on each one.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	sub := s.purchases.Broker().Subscribe(sseBufferSize)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "retry: %d\n\n", sseRetryMs)
	if err := rc.Flush(); err != nil {
		logger.WarnContext(r.Context(), "Event stream not supported", log.FieldError, err)
		return
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeEvent(w, evt); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, evt events.Event) error {
	name := EventPurchaseCreated
	if evt.Type == events.PurchaseDeleted {
		name = EventPurchaseDeleted
	}
	data, err := json.Marshal(streamEvent{Type: name, ID: evt.PurchaseID})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: purchase\ndata: %s\n\n", data)
	return err
}
