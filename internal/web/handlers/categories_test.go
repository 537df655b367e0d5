package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/category"
	"github.com/znz-systems/sortbox/internal/models"
)

type mockCategoryService struct {
	cats      []models.Category
	createErr error
	deleteErr error
}

func (m *mockCategoryService) Create(_ context.Context, userID uuid.UUID, name, description string) (*models.Category, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	c := models.Category{ID: uuid.New(), UserID: userID, Name: name, Description: description}
	m.cats = append(m.cats, c)
	return &c, nil
}

func (m *mockCategoryService) List(_ context.Context, _ uuid.UUID) ([]models.Category, error) {
	return m.cats, nil
}

func (m *mockCategoryService) Delete(_ context.Context, _, _ uuid.UUID) error {
	return m.deleteErr
}

func TestCategoryHandler_CreateAndList(t *testing.T) {
	svc := &mockCategoryService{}
	h := NewCategoryHandler(svc)
	user := uuid.NewString()

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"Receipts","description":"order confirmations"}`))
	rr := httptest.NewRecorder()
	h.HandleCreate(rr, withURLParams(req, map[string]string{"userID": user}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rr = httptest.NewRecorder()
	h.HandleList(rr, withURLParams(req, map[string]string{"userID": user}))
	if rr.Code != http.StatusOK || !bytes.Contains(rr.Body.Bytes(), []byte(`"name":"Receipts"`)) {
		t.Fatalf("unexpected list response %d %s", rr.Code, rr.Body.String())
	}
}

func TestCategoryHandler_CreateErrors(t *testing.T) {
	cases := map[error]int{
		category.ErrInvalidName:    http.StatusBadRequest,
		category.ErrCategoryExists: http.StatusConflict,
		category.ErrUserNotFound:   http.StatusNotFound,
	}
	for err, code := range cases {
		h := NewCategoryHandler(&mockCategoryService{createErr: err})
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"x"}`))
		rr := httptest.NewRecorder()
		h.HandleCreate(rr, withURLParams(req, map[string]string{"userID": uuid.NewString()}))
		if rr.Code != code {
			t.Fatalf("%v: expected %d, got %d", err, code, rr.Code)
		}
	}
}

func TestCategoryHandler_DeleteMissing(t *testing.T) {
	h := NewCategoryHandler(&mockCategoryService{deleteErr: category.ErrCategoryMissing})
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rr := httptest.NewRecorder()
	h.HandleDelete(rr, withURLParams(req, map[string]string{"userID": uuid.NewString(), "categoryID": uuid.NewString()}))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
