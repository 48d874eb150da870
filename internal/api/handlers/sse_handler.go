package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/scribeflow/scribeflow/backend/internal/domain/entities"
	"github.com/scribeflow/scribeflow/backend/internal/domain/providers"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/observability"
)

// SSEHandler streams job state transitions to clients over Server-Sent
// Events, so the UI can follow an enhancement without polling.
type SSEHandler struct {
	eventBus providers.EventBus
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(eventBus providers.EventBus) *SSEHandler {
	return &SSEHandler{
		eventBus: eventBus,
	}
}

// StreamJobUpdates handles GET /api/enhancements/stream. With a user_id
// query parameter the stream carries only that user's jobs; without it, every
// transition.
func (h *SSEHandler) StreamJobUpdates(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	channel := providers.EventChannelEnhancements
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		channel = providers.GetUserChannel(userID)
	}

	// Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventChan, err := h.eventBus.Subscribe(r.Context(), channel)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error().Err(err).
			Str("channel", channel).
			Msg("Failed to subscribe to job events")
		respondWithError(w, http.StatusInternalServerError, "failed to subscribe to updates")
		return
	}

	// Send initial connection event
	h.sendEvent(w, "connected", map[string]interface{}{
		"channel":   channel,
		"timestamp": time.Now().UTC(),
	})
	flusher.Flush()

	// Keep connection alive and send events
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// Send heartbeat
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now().UTC(),
			})
			flusher.Flush()
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			h.sendEvent(w, jobEventName(event), event)
			flusher.Flush()
		}
	}
}

func jobEventName(event *entities.JobEvent) string {
	if event.State == entities.JobStateErrored {
		return "job_failed"
	}
	if event.State == entities.JobStateDone {
		return "job_done"
	}
	return "job_update"
}

// sendEvent sends an SSE event to the client
func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}
