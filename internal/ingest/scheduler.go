package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/models"
)

// AccountLister yields the accounts a sweep should visit.
type AccountLister interface {
	ListAccountsWithCredentials(ctx context.Context) ([]models.Account, error)
}

// CycleRunner runs one ingestion cycle for one account.
type CycleRunner interface {
	RunIngestionCycle(ctx context.Context, accountID uuid.UUID) (CycleReport, error)
}

type SchedulerOptions struct {
	Interval time.Duration
}

// Scheduler runs a sweep over every connected account on a fixed interval.
// Accounts are visited one after another.
type Scheduler struct {
	accounts AccountLister
	runner   CycleRunner
	interval time.Duration
}

func NewScheduler(accounts AccountLister, runner CycleRunner, opts SchedulerOptions) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{accounts: accounts, runner: runner, interval: interval}
}

// Run sweeps once per interval until ctx is done. The first sweep starts
// after one interval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			slog.Error("ingestion sweep failed", "error", err)
		}
	}
}

// SweepSummary counts how accounts fared in one sweep.
type SweepSummary struct {
	Accounts int
	Failed   int
	Busy     int
}

// Sweep visits every eligible account once. A failing account does not stop
// the sweep; only failing to list accounts is returned.
func (s *Scheduler) Sweep(ctx context.Context) (SweepSummary, error) {
	accounts, err := s.accounts.ListAccountsWithCredentials(ctx)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("list accounts: %w", err)
	}

	var summary SweepSummary
	for _, account := range accounts {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Accounts++
		_, err := s.runner.RunIngestionCycle(ctx, account.ID)
		switch {
		case err == nil:
		case errors.Is(err, ErrCycleInFlight):
			summary.Busy++
			slog.Debug("skipping account with cycle in flight", "account_id", account.ID)
		default:
			// already reported through the cycle observer
			summary.Failed++
		}
	}
	return summary, nil
}
