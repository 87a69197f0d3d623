package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/events"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// heartbeatInterval keeps idle proxies from closing the stream
const heartbeatInterval = 15 * time.Second

// EventHandler streams bus signals to browsers as Server-Sent Events
type EventHandler struct {
	bus       *events.Bus
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(bus *events.Bus, logger *zap.Logger) *EventHandler {
	return &EventHandler{bus: bus, heartbeat: heartbeatInterval, logger: logger}
}

// RegisterRoutes registers the event stream
func (h *EventHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/events", h.Stream)
}

// Stream subscribes to the signals named by ?signal= (repeatable or
// comma separated; all signals when absent). The latest event of each
// requested signal is replayed first.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	signals, err := parseSignals(r.URL.Query()["signal"])
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.RespondWithError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.bus.Subscribe(signals...)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("Failed to encode event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Signal, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseSignals(values []string) ([]events.Signal, error) {
	var signals []events.Signal
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			sig, ok := events.ParseSignal(name)
			if !ok {
				return nil, fmt.Errorf("unknown signal %q", name)
			}
			signals = append(signals, sig)
		}
	}
	return signals, nil
}
