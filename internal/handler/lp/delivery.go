// Package lp is the fallback push channel for clients that cannot hold a
// WebSocket. Each poll registers a short-lived connection, so the presence
// rules apply to it the same way they do to a socket.
package lp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/snappy-im/snappy-server/internal/domain/model"
	lpmarshaller "github.com/snappy-im/snappy-server/internal/handler/marshaller/lp"
	"github.com/snappy-im/snappy-server/internal/service"
)

const (
	pollTimeout = 30 * time.Second
	batchLimit  = 15
)

type LPHandler struct {
	deliverer service.Deliverer
}

func NewLPHandler(deliverer service.Deliverer) *LPHandler {
	return &LPHandler{
		deliverer: deliverer,
	}
}

// Poll holds the request open until an event arrives or the poll window
// closes. The subscription lives exactly as long as the request.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	conn, err := h.deliverer.Subscribe(r.Context(), userID)
	if err != nil {
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}
	defer h.deliverer.Unsubscribe(userID, conn.GetID())
	defer conn.Close()

	var events []model.Eventer

	select {
	case <-r.Context().Done():
		return

	case <-conn.Done():
		// Replaced by a newer registration mid-poll.
		w.WriteHeader(http.StatusConflict)
		return

	case <-time.After(pollTimeout):
		w.WriteHeader(http.StatusNoContent)
		return

	case ev, ok := <-conn.Recv():
		if !ok {
			return
		}
		events = append(events, ev)

		// Drain whatever else is buffered so one response carries the batch.
	drainLoop:
		for range batchLimit {
			select {
			case nextEv := <-conn.Recv():
				events = append(events, nextEv)
			default:
				break drainLoop
			}
		}
	}

	data, err := lpmarshaller.MarshallEvents(events)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
