package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/category"
	"github.com/znz-systems/sortbox/internal/models"
)

type CategoryService interface {
	Create(ctx context.Context, userID uuid.UUID, name, description string) (*models.Category, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Category, error)
	Delete(ctx context.Context, userID, categoryID uuid.UUID) error
}

type CategoryHandler struct {
	categories CategoryService
}

func NewCategoryHandler(categories CategoryService) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

type categoryJSON struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

func toCategoryJSON(c models.Category) categoryJSON {
	return categoryJSON{ID: c.ID, Name: c.Name, Description: c.Description}
}

func (h *CategoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	cats, err := h.categories.List(r.Context(), userID)
	if err != nil {
		slog.Error("failed to list categories", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]categoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CategoryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	c, err := h.categories.Create(r.Context(), userID, body.Name, body.Description)
	if err != nil {
		switch {
		case errors.Is(err, category.ErrInvalidName), errors.Is(err, category.ErrInvalidDesc):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, category.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, category.ErrCategoryExists):
			writeError(w, http.StatusConflict, err.Error())
		default:
			slog.Error("failed to create category", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryJSON(*c))
}

func (h *CategoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	categoryID, ok := uuidParam(w, r, "categoryID")
	if !ok {
		return
	}
	if err := h.categories.Delete(r.Context(), userID, categoryID); err != nil {
		if errors.Is(err, category.ErrCategoryMissing) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		slog.Error("failed to delete category", "category_id", categoryID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{OK: true})
}
