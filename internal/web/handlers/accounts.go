package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/auth"
	"github.com/znz-systems/sortbox/internal/models"
)

type AccountLinker interface {
	StartLink(userID uuid.UUID) (string, error)
	CompleteLink(ctx context.Context, state, code string) (*models.Account, error)
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]models.Account, error)
	Disconnect(ctx context.Context, userID, accountID uuid.UUID) error
}

// accountJSON never carries credentials.
type accountJSON struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Provider    string    `json:"provider"`
	ConnectedAt time.Time `json:"connected_at"`
}

type AccountHandler struct {
	linker AccountLinker
}

func NewAccountHandler(linker AccountLinker) *AccountHandler {
	return &AccountHandler{linker: linker}
}

// HandleStartLink redirects to the provider's consent page. user_id is
// optional; without it the user is resolved from the granting address.
func (h *AccountHandler) HandleStartLink(w http.ResponseWriter, r *http.Request) {
	userID := uuid.Nil
	if raw := strings.TrimSpace(r.URL.Query().Get("user_id")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "user_id must be a valid UUID")
			return
		}
		userID = parsed
	}

	consentURL, err := h.linker.StartLink(userID)
	if err != nil {
		slog.Error("failed to start account link", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	http.Redirect(w, r, consentURL, http.StatusFound)
}

func (h *AccountHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		writeError(w, http.StatusBadRequest, "authorization denied: "+errParam)
		return
	}
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		writeError(w, http.StatusBadRequest, "state and code are required")
		return
	}

	account, err := h.linker.CompleteLink(r.Context(), state, code)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidState) {
			writeError(w, http.StatusBadRequest, "link request expired; start again")
			return
		}
		slog.Error("failed to complete account link", "error", err)
		writeError(w, http.StatusBadGateway, "could not link account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"account_id": account.ID,
		"user_id":    account.UserID,
		"address":    account.ProviderAddress,
	})
}

func (h *AccountHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	accounts, err := h.linker.ListAccounts(r.Context(), userID)
	if err != nil {
		slog.Error("failed to list accounts", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]accountJSON, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountJSON{ID: a.ID, Email: a.ProviderAddress, Provider: "google", ConnectedAt: a.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AccountHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	accountID, ok := uuidParam(w, r, "accountID")
	if !ok {
		return
	}
	if err := h.linker.Disconnect(r.Context(), userID, accountID); err != nil {
		if errors.Is(err, auth.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		slog.Error("failed to disconnect account", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{OK: true})
}
