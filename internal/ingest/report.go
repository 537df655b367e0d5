package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/mailbox"
)

// CycleReport summarizes one ingestion cycle for one account.
type CycleReport struct {
	AccountID     uuid.UUID     `json:"account_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	NoCategories  bool          `json:"no_categories"`
	Listed        int           `json:"listed"`
	Ingested      int           `json:"ingested"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	ArchiveFailed int           `json:"archive_failed"`
}

func (r *CycleReport) record(o outcome) {
	switch o {
	case outcomeIngested:
		r.Ingested++
	case outcomeArchiveFailed:
		r.Ingested++
		r.ArchiveFailed++
	case outcomeSkipped:
		r.Skipped++
	case outcomeFailed:
		r.Failed++
	}
}

// Observer receives every finished cycle, including ones that ended in err.
type Observer interface {
	ObserveCycle(ctx context.Context, report CycleReport, err error)
}

type LogObserver struct{}

func (LogObserver) ObserveCycle(_ context.Context, r CycleReport, err error) {
	attrs := []any{
		"account_id", r.AccountID,
		"listed", r.Listed,
		"ingested", r.Ingested,
		"skipped", r.Skipped,
		"failed", r.Failed,
		"archive_failed", r.ArchiveFailed,
		"duration", r.Duration,
	}
	switch {
	case errors.Is(err, mailbox.ErrCredential):
		slog.Warn("ingestion cycle skipped: credential unavailable", append(attrs, "error", err)...)
	case err != nil:
		slog.Error("ingestion cycle failed", append(attrs, "error", err)...)
	case r.NoCategories:
		slog.Info("ingestion cycle skipped: no categories", "account_id", r.AccountID)
	case r.Failed > 0 || r.ArchiveFailed > 0:
		slog.Warn("ingestion cycle finished with failures", attrs...)
	default:
		slog.Info("ingestion cycle finished", attrs...)
	}
}

// MultiObserver fans a report out to several observers.
type MultiObserver []Observer

func (m MultiObserver) ObserveCycle(ctx context.Context, r CycleReport, err error) {
	for _, o := range m {
		o.ObserveCycle(ctx, r, err)
	}
}
