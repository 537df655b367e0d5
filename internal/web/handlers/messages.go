package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/message"
	"github.com/znz-systems/sortbox/internal/models"
)

type MessageService interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*message.Detail, error)
	ListByCategory(ctx context.Context, userID, categoryID uuid.UUID) ([]models.Message, error)
	Delete(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error)
}

type MessageHandler struct {
	messages MessageService
}

func NewMessageHandler(messages MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

type messageJSON struct {
	ID               uuid.UUID               `json:"id"`
	AccountID        uuid.UUID               `json:"account_id"`
	CategoryID       *uuid.UUID              `json:"category_id"`
	From             string                  `json:"from"`
	To               string                  `json:"to"`
	Subject          string                  `json:"subject"`
	Snippet          string                  `json:"snippet"`
	Summary          string                  `json:"summary"`
	Confidence       float64                 `json:"confidence"`
	Archived         bool                    `json:"archived"`
	UnsubscribeLinks []string                `json:"unsubscribe_links"`
	Unsubscribe      models.UnsubscribeState `json:"unsubscribe"`
	ImportedAt       time.Time               `json:"imported_at"`
}

type messageDetailJSON struct {
	messageJSON
	TextBody string `json:"text_body"`
	HTMLBody string `json:"html_body"`
}

func toMessageJSON(m models.Message) messageJSON {
	links := m.UnsubscribeLinks
	if links == nil {
		links = []string{}
	}
	return messageJSON{
		ID:               m.ID,
		AccountID:        m.AccountID,
		CategoryID:       m.CategoryID,
		From:             m.FromAddress,
		To:               m.ToAddress,
		Subject:          m.Subject,
		Snippet:          m.Snippet,
		Summary:          m.Summary,
		Confidence:       m.Confidence,
		Archived:         m.Archived,
		UnsubscribeLinks: links,
		Unsubscribe:      m.Unsubscribe,
		ImportedAt:       m.ImportedAt,
	}
}

// HandleGet returns one message with its text and stored HTML bodies.
func (h *MessageHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	messageID, ok := uuidParam(w, r, "messageID")
	if !ok {
		return
	}

	d, err := h.messages.Get(r.Context(), userID, messageID)
	if err != nil {
		if errors.Is(err, message.ErrMessageNotFound) || errors.Is(err, message.ErrNotOwner) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		slog.Error("failed to load message", "message_id", messageID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, messageDetailJSON{
		messageJSON: toMessageJSON(d.Message),
		TextBody:    d.TextBody,
		HTMLBody:    d.HTMLBody,
	})
}

func (h *MessageHandler) HandleListByCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	categoryID, ok := uuidParam(w, r, "categoryID")
	if !ok {
		return
	}

	msgs, err := h.messages.ListByCategory(r.Context(), userID, categoryID)
	if err != nil {
		if errors.Is(err, message.ErrCategoryUnknown) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		slog.Error("failed to list messages", "category_id", categoryID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageJSON(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleDelete removes a batch of messages.
//
// Expected JSON body:
//
//	user_id      (required, UUID)
//	message_ids  (required, list of UUIDs)
func (h *MessageHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID     uuid.UUID   `json:"user_id"`
		MessageIDs []uuid.UUID `json:"message_ids"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	n, err := h.messages.Delete(r.Context(), body.UserID, body.MessageIDs)
	if err != nil {
		switch {
		case errors.Is(err, message.ErrNoMessages):
			writeError(w, http.StatusBadRequest, "message_ids is required")
		case errors.Is(err, message.ErrMessageNotFound), errors.Is(err, message.ErrNotOwner):
			writeError(w, http.StatusNotFound, "message not found")
		default:
			slog.Error("failed to delete messages", "user_id", body.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "deleted": n})
}
