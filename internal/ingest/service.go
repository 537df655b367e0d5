// Package ingest pulls new mail from connected accounts, classifies it and
// files it away.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/blob"
	"github.com/znz-systems/sortbox/internal/classifier"
	"github.com/znz-systems/sortbox/internal/extract"
	"github.com/znz-systems/sortbox/internal/mailbox"
	"github.com/znz-systems/sortbox/internal/models"
	"github.com/znz-systems/sortbox/internal/store"
)

var (
	ErrCycleInFlight   = errors.New("ingestion cycle already running for account")
	ErrAccountNotFound = errors.New("account not found")
)

// Classifier files extracted content into one of the given categories.
type Classifier interface {
	Classify(ctx context.Context, content *extract.Content, categories []models.Category) classifier.Result
}

type Options struct {
	// PageSize bounds how many candidates one cycle looks at per account.
	PageSize int64
	// Window is how far back candidates may have arrived.
	Window time.Duration
}

type Service struct {
	accounts   store.AccountStore
	categories store.CategoryStore
	messages   store.MessageStore
	connector  mailbox.Connector
	classifier Classifier
	blobs      blob.Store
	observer   Observer
	pageSize   int64
	window     time.Duration
	now        func() time.Time
	inflight   *inFlight
}

// NewService wires the sweep. blobs may be nil, in which case HTML bodies
// are not kept; observer may be nil to log reports only.
func NewService(
	accounts store.AccountStore,
	categories store.CategoryStore,
	messages store.MessageStore,
	connector mailbox.Connector,
	classifier Classifier,
	blobs blob.Store,
	observer Observer,
	opts Options,
) *Service {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 3
	}
	window := opts.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	if observer == nil {
		observer = LogObserver{}
	}
	return &Service{
		accounts:   accounts,
		categories: categories,
		messages:   messages,
		connector:  connector,
		classifier: classifier,
		blobs:      blobs,
		observer:   observer,
		pageSize:   pageSize,
		window:     window,
		now:        time.Now,
		inflight:   newInFlight(),
	}
}

// RunIngestionCycle ingests one page of new mail for an account. Running it
// again over the same upstream messages creates nothing new. Per-message
// failures are counted in the report; credential and persistence errors end
// the cycle and are returned.
func (s *Service) RunIngestionCycle(ctx context.Context, accountID uuid.UUID) (report CycleReport, err error) {
	if !s.inflight.acquire(accountID) {
		return CycleReport{AccountID: accountID}, ErrCycleInFlight
	}
	defer s.inflight.release(accountID)

	report = CycleReport{AccountID: accountID, StartedAt: s.now()}
	defer func() {
		report.Duration = s.now().Sub(report.StartedAt)
		s.observer.ObserveCycle(ctx, report, err)
	}()

	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return report, ErrAccountNotFound
	}
	if err != nil {
		return report, fmt.Errorf("load account: %w", err)
	}

	categories, err := s.categories.ListCategoriesByUserID(ctx, account.UserID)
	if err != nil {
		return report, fmt.Errorf("load categories: %w", err)
	}
	if len(categories) == 0 {
		report.NoCategories = true
		return report, nil
	}

	mb, err := s.connector.Open(ctx, account)
	if err != nil {
		return report, fmt.Errorf("open mailbox: %w", err)
	}

	ids, err := mb.ListCandidates(ctx, mailbox.Filter{
		Since:      report.StartedAt.Add(-s.window),
		UnreadOnly: true,
		InboxOnly:  true,
		MaxResults: s.pageSize,
	})
	if err != nil {
		return report, fmt.Errorf("list candidates: %w", err)
	}
	report.Listed = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out, err := s.ingestOne(ctx, mb, account, categories, id)
		if err != nil {
			return report, err
		}
		report.record(out)
	}
	return report, nil
}

type outcome int

const (
	outcomeIngested outcome = iota
	outcomeArchiveFailed
	outcomeSkipped
	outcomeFailed
)

// ingestOne returns an error only when the whole cycle must stop.
func (s *Service) ingestOne(ctx context.Context, mb mailbox.Mailbox, account *models.Account, categories []models.Category, providerID string) (outcome, error) {
	exists, err := s.messages.ExistsByProviderMessageID(ctx, providerID)
	if err != nil {
		return outcomeFailed, fmt.Errorf("check message %s: %w", providerID, err)
	}
	if exists {
		return outcomeSkipped, nil
	}

	payload, err := mb.FetchFull(ctx, providerID)
	if err != nil {
		if errors.Is(err, mailbox.ErrCredential) {
			return outcomeFailed, fmt.Errorf("fetch message %s: %w", providerID, err)
		}
		slog.Warn("failed to fetch message", "account_id", account.ID, "provider_message_id", providerID, "error", err)
		return outcomeFailed, nil
	}

	content, err := extract.Extract(payload)
	if err != nil {
		slog.Warn("failed to extract message", "account_id", account.ID, "provider_message_id", providerID, "error", err)
		return outcomeFailed, nil
	}

	result := s.classifier.Classify(ctx, content, categories)

	htmlKey, err := s.storeHTML(ctx, account.ID, content)
	if err != nil {
		slog.Warn("failed to store html body", "account_id", account.ID, "provider_message_id", providerID, "error", err)
		return outcomeFailed, nil
	}

	msg, err := s.messages.CreateMessage(ctx, models.MessageCreateParams{
		AccountID:         account.ID,
		ProviderMessageID: content.ID,
		ThreadID:          content.ThreadID,
		FromAddress:       content.From,
		ToAddress:         content.To,
		Subject:           content.Subject,
		Snippet:           content.Snippet,
		TextBody:          content.TextBody,
		HTMLBlobKey:       htmlKey,
		CategoryID:        result.CategoryID,
		Confidence:        result.Confidence,
		Summary:           result.Summary,
		UnsubscribeLinks:  content.UnsubscribeLinks,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// another cycle stored it between the existence check and now
			return outcomeSkipped, nil
		}
		return outcomeFailed, fmt.Errorf("store message %s: %w", providerID, err)
	}

	if err := mb.Archive(ctx, providerID); err != nil {
		slog.Warn("failed to archive message upstream", "account_id", account.ID, "provider_message_id", providerID, "error", err)
		return outcomeArchiveFailed, nil
	}
	if err := s.messages.MarkMessageArchived(ctx, msg.ID); err != nil {
		return outcomeFailed, fmt.Errorf("mark message %s archived: %w", msg.ID, err)
	}

	slog.Debug("message ingested", "account_id", account.ID, "message_id", msg.ID, "categorized", result.CategoryID != nil)
	return outcomeIngested, nil
}

func (s *Service) storeHTML(ctx context.Context, accountID uuid.UUID, content *extract.Content) (string, error) {
	if s.blobs == nil || content.HTMLBody == "" {
		return "", nil
	}
	key := blob.HTMLKey(accountID, content.ID)
	if err := s.blobs.Put(ctx, key, blob.HTMLContentType, []byte(content.HTMLBody)); err != nil {
		return "", err
	}
	return key, nil
}
