package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/ingest"
	"github.com/znz-systems/sortbox/internal/mailbox"
)

type CycleRunner interface {
	RunIngestionCycle(ctx context.Context, accountID uuid.UUID) (ingest.CycleReport, error)
}

// IngestHandler triggers an ingestion cycle outside the schedule.
type IngestHandler struct {
	runner CycleRunner
}

func NewIngestHandler(runner CycleRunner) *IngestHandler {
	return &IngestHandler{runner: runner}
}

// HandleRunCycle runs one cycle for the account in the URL and returns its
// report.
func (h *IngestHandler) HandleRunCycle(w http.ResponseWriter, r *http.Request) {
	accountID, ok := uuidParam(w, r, "accountID")
	if !ok {
		return
	}

	report, err := h.runner.RunIngestionCycle(r.Context(), accountID)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrCycleInFlight):
			writeError(w, http.StatusConflict, "ingestion already running for this account")
		case errors.Is(err, ingest.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, "account not found")
		case errors.Is(err, mailbox.ErrCredential):
			writeError(w, http.StatusUnauthorized, "mailbox credentials expired; link the account again")
		default:
			slog.Error("ingestion cycle failed", "account_id", accountID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}
