// Package message implements user-initiated operations on stored messages.
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/blob"
	"github.com/znz-systems/sortbox/internal/mailbox"
	"github.com/znz-systems/sortbox/internal/models"
	"github.com/znz-systems/sortbox/internal/store"
)

// Sentinel errors returned by Service methods.
var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotOwner        = errors.New("message belongs to another user")
	ErrNoMessages      = errors.New("no message ids given")
	ErrCategoryUnknown = errors.New("category not found")
)

// Detail is one message with its stored HTML body, when there is one.
type Detail struct {
	models.Message
	HTMLBody string
}

// Service provides message business logic.
type Service struct {
	messages   store.MessageStore
	accounts   store.AccountStore
	categories store.CategoryStore
	connector  mailbox.Connector
	blobs      blob.Store
}

// NewService creates a message Service. blobs may be nil when HTML bodies are
// not stored.
func NewService(messages store.MessageStore, accounts store.AccountStore, categories store.CategoryStore, connector mailbox.Connector, blobs blob.Store) *Service {
	return &Service{
		messages:   messages,
		accounts:   accounts,
		categories: categories,
		connector:  connector,
		blobs:      blobs,
	}
}

// Get returns a message owned by userID together with its stored HTML. A
// blob that has gone missing leaves HTMLBody empty.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Detail, error) {
	msg, err := s.messages.GetMessageByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("loading message: %w", err)
	}
	account, err := s.accounts.GetAccountByID(ctx, msg.AccountID)
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	if account.UserID != userID {
		return nil, ErrNotOwner
	}

	detail := &Detail{Message: *msg}
	if msg.HTMLBlobKey == "" || s.blobs == nil {
		return detail, nil
	}
	body, err := s.blobs.Get(ctx, msg.HTMLBlobKey)
	switch {
	case errors.Is(err, blob.ErrObjectNotFound):
		slog.Warn("stored html missing", "message_id", msg.ID, "key", msg.HTMLBlobKey)
	case err != nil:
		return nil, fmt.Errorf("loading stored html: %w", err)
	default:
		detail.HTMLBody = string(body)
	}
	return detail, nil
}

// ListByCategory returns the messages filed under one of userID's
// categories, newest first.
func (s *Service) ListByCategory(ctx context.Context, userID, categoryID uuid.UUID) ([]models.Message, error) {
	cats, err := s.categories.ListCategoriesByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}
	owned := false
	for _, c := range cats {
		if c.ID == categoryID {
			owned = true
			break
		}
	}
	if !owned {
		return nil, ErrCategoryUnknown
	}

	msgs, err := s.messages.ListMessagesByCategoryID(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

// Delete removes messages owned by userID. Upstream copies and stored HTML
// are removed best-effort and only logged on failure; the local delete is
// all-or-nothing and its error is returned.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, ErrNoMessages
	}

	msgs, err := s.messages.ListMessagesByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("loading messages: %w", err)
	}
	if len(msgs) != len(ids) {
		return 0, ErrMessageNotFound
	}

	byAccount := make(map[uuid.UUID][]models.Message)
	for _, msg := range msgs {
		byAccount[msg.AccountID] = append(byAccount[msg.AccountID], msg)
	}

	accounts := make(map[uuid.UUID]*models.Account, len(byAccount))
	for accountID := range byAccount {
		account, err := s.accounts.GetAccountByID(ctx, accountID)
		if err != nil {
			return 0, fmt.Errorf("loading account: %w", err)
		}
		if account.UserID != userID {
			return 0, ErrNotOwner
		}
		accounts[accountID] = account
	}

	for accountID, group := range byAccount {
		s.deleteUpstream(ctx, accounts[accountID], group)
	}
	s.deleteBlobs(ctx, msgs)

	if err := s.messages.DeleteMessages(ctx, ids); err != nil {
		return 0, fmt.Errorf("deleting messages: %w", err)
	}
	return len(ids), nil
}

func (s *Service) deleteUpstream(ctx context.Context, account *models.Account, msgs []models.Message) {
	if s.connector == nil {
		return
	}
	mb, err := s.connector.Open(ctx, account)
	if err != nil {
		slog.Warn("failed to open mailbox for delete", "account_id", account.ID, "error", err)
		return
	}
	for _, msg := range msgs {
		if err := mb.Delete(ctx, msg.ProviderMessageID); err != nil {
			slog.Warn("failed to delete message upstream",
				"account_id", account.ID,
				"message_id", msg.ID,
				"error", err,
			)
			if errors.Is(err, mailbox.ErrCredential) {
				return
			}
		}
	}
}

func (s *Service) deleteBlobs(ctx context.Context, msgs []models.Message) {
	if s.blobs == nil {
		return
	}
	for _, msg := range msgs {
		if msg.HTMLBlobKey == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, msg.HTMLBlobKey); err != nil && !errors.Is(err, blob.ErrObjectNotFound) {
			slog.Warn("failed to delete stored html", "message_id", msg.ID, "key", msg.HTMLBlobKey, "error", err)
		}
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
