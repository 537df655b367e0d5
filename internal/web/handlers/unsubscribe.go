package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/store"
	"github.com/znz-systems/sortbox/internal/unsubscribe"
)

type Unsubscriber interface {
	AttemptUnsubscribe(ctx context.Context, messageID uuid.UUID) (unsubscribe.Result, error)
}

type UnsubscribeHandler struct {
	agent Unsubscriber
}

func NewUnsubscribeHandler(agent Unsubscriber) *UnsubscribeHandler {
	return &UnsubscribeHandler{agent: agent}
}

type unsubscribeResponse struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped"`
	Message string `json:"message"`
}

// HandleUnsubscribe runs the agent for one message. A skip is reported as a
// success; exhausting every link is a 400.
func (h *UnsubscribeHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	messageID, ok := uuidParam(w, r, "messageID")
	if !ok {
		return
	}

	res, err := h.agent.AttemptUnsubscribe(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		slog.Error("unsubscribe attempt failed", "message_id", messageID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, unsubscribeResponse{OK: res.Success, Skipped: res.Skipped, Message: res.Message})
}
