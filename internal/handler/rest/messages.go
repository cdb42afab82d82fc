package rest

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	pubsubadapter "github.com/snappy-im/snappy-server/internal/adapter/pubsub"
	"github.com/snappy-im/snappy-server/internal/domain/model"
	"github.com/snappy-im/snappy-server/internal/service"
)

type MessagesHandler struct {
	messenger  service.Messenger
	dispatcher pubsubadapter.EventDispatcher
	logger     *slog.Logger
}

func NewMessagesHandler(messenger service.Messenger, dispatcher pubsubadapter.EventDispatcher, logger *slog.Logger) *MessagesHandler {
	return &MessagesHandler{
		messenger:  messenger,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Add persists a message and relays it to the recipient's live session.
// Only the sender may author messages under their own id.
func (h *MessagesHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addMessageRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	from := uuid.MustParse(req.From)
	to := uuid.MustParse(req.To)

	authed, ok := authedUserID(r.Context())
	if !ok || authed != from {
		respondError(w, http.StatusForbidden, "token does not match sender")
		return
	}

	if _, err := h.messenger.Send(r.Context(), from, to, req.Message); err != nil {
		h.recordMessageActivity(r, from, model.ActivityFailure)
		respondError(w, http.StatusInternalServerError, "failed to add message to the database")
		return
	}

	h.recordMessageActivity(r, from, model.ActivitySuccess)
	respondJSON(w, http.StatusOK, map[string]any{"msg": "Message added successfully."})
}

// Get returns the conversation between two users, oldest first, with each
// entry flagged from the requester's point of view.
func (h *MessagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	var req getMessagesRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	from := uuid.MustParse(req.From)
	to := uuid.MustParse(req.To)

	authed, ok := authedUserID(r.Context())
	if !ok || authed != from {
		respondError(w, http.StatusForbidden, "token does not match requester")
		return
	}

	history, err := h.messenger.History(r.Context(), from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	type projected struct {
		ID       string `json:"id"`
		FromSelf bool   `json:"fromSelf"`
		Message  string `json:"message"`
		SentAt   int64  `json:"sent_at"`
	}

	out := make([]projected, 0, len(history))
	for _, m := range history {
		out = append(out, projected{
			ID:       m.ID.String(),
			FromSelf: m.From == from,
			Message:  m.Text,
			SentAt:   m.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *MessagesHandler) recordMessageActivity(r *http.Request, userID uuid.UUID, status model.ActivityStatus) {
	ev := model.NewActivityEvent(userID, "message_sent", status)
	ev.RemoteIP = clientIP(r)
	if err := h.dispatcher.Publish(r.Context(), ev); err != nil {
		h.logger.Warn("activity publish failed", slog.Any("error", err))
	}
}
