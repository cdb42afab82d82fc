package rest

import (
	"net/http"
	"strconv"

	"github.com/snappy-im/snappy-server/internal/domain/model"
	"github.com/snappy-im/snappy-server/internal/domain/registry"
	"github.com/snappy-im/snappy-server/internal/storage"
)

type StatsHandler struct {
	hub        registry.Hubber
	activities storage.ActivityStore
}

func NewStatsHandler(hub registry.Hubber, activities storage.ActivityStore) *StatsHandler {
	return &StatsHandler{
		hub:        hub,
		activities: activities,
	}
}

// Stats reports live hub counters plus server identity. The dashboard
// command polls this endpoint.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.hub.Stats()
	respondJSON(w, http.StatusOK, map[string]any{
		"version":        model.ServerVersion,
		"online_users":   stats.OnlineUsers,
		"uptime_seconds": int64(stats.Uptime.Seconds()),
		"delivered":      stats.Delivered,
		"dropped_local":  stats.DroppedLocal,
	})
}

// Activity returns the newest audit records, most recent first.
func (h *StatsHandler) Activity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := h.activities.Recent(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load activity")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// Ping is the unauthenticated liveness probe.
func Ping(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": model.ServerVersion,
	})
}
