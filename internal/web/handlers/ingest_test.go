package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/ingest"
	"github.com/znz-systems/sortbox/internal/mailbox"
	"github.com/znz-systems/sortbox/internal/store"
)

type mockRunner struct {
	report ingest.CycleReport
	err    error
}

func (m *mockRunner) RunIngestionCycle(_ context.Context, id uuid.UUID) (ingest.CycleReport, error) {
	r := m.report
	r.AccountID = id
	return r, m.err
}

func runCycle(h *IngestHandler, accountID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/"+accountID+"/ingest", nil)
	req = withURLParams(req, map[string]string{"accountID": accountID})
	rr := httptest.NewRecorder()
	h.HandleRunCycle(rr, req)
	return rr
}

func TestIngestHandler_ReturnsReport(t *testing.T) {
	h := NewIngestHandler(&mockRunner{report: ingest.CycleReport{Listed: 3, Ingested: 2, Skipped: 1}})

	rr := runCycle(h, uuid.NewString())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["ingested"] != float64(2) || body["skipped"] != float64(1) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestIngestHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ingest.ErrCycleInFlight, http.StatusConflict},
		{ingest.ErrAccountNotFound, http.StatusNotFound},
		{fmt.Errorf("mark message archived: %w", store.ErrNotFound), http.StatusInternalServerError},
		{mailbox.ErrCredential, http.StatusUnauthorized},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewIngestHandler(&mockRunner{err: tc.err})
		if rr := runCycle(h, uuid.NewString()); rr.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rr.Code)
		}
	}
}

func TestIngestHandler_BadAccountID(t *testing.T) {
	h := NewIngestHandler(&mockRunner{})
	if rr := runCycle(h, "not-a-uuid"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
