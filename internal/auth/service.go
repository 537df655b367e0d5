// Package auth links mailbox accounts to users through the provider's OAuth
// consent flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/gmail"
	"github.com/znz-systems/sortbox/internal/models"
	"github.com/znz-systems/sortbox/internal/store"
	"golang.org/x/oauth2"
)

var (
	ErrInvalidState    = errors.New("unknown or expired oauth state")
	ErrAccountNotFound = errors.New("account not found")
	ErrNoAccessToken   = errors.New("provider returned no access token")
)

// Provider is the OAuth side of a mailbox provider.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, tok *oauth2.Token) (*gmail.Profile, error)
}

type pendingLink struct {
	userID    uuid.UUID
	expiresAt time.Time
}

// Service runs the link flow. Pending states live in memory, so a restart
// between start and callback means the user has to start over.
type Service struct {
	users    store.UserStore
	accounts store.AccountStore
	provider Provider
	stateTTL time.Duration
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]pendingLink
}

// NewService creates a new auth service. stateTTL bounds how long a consent
// round trip may take.
func NewService(users store.UserStore, accounts store.AccountStore, provider Provider, stateTTL time.Duration) *Service {
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &Service{
		users:    users,
		accounts: accounts,
		provider: provider,
		stateTTL: stateTTL,
		now:      time.Now,
		pending:  make(map[string]pendingLink),
	}
}

// StartLink returns the consent URL to send the user to. uuid.Nil means
// the user is looked up, or created, by the address that grants access.
func (s *Service) StartLink(userID uuid.UUID) (string, error) {
	state, err := GenerateToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	now := s.now()
	for k, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, k)
		}
	}
	s.pending[state] = pendingLink{userID: userID, expiresAt: now.Add(s.stateTTL)}
	s.mu.Unlock()

	return s.provider.AuthCodeURL(state), nil
}

// CompleteLink finishes the flow started by StartLink. Re-linking an address
// replaces its access token; the stored refresh token is kept when the
// provider does not send a new one.
func (s *Service) CompleteLink(ctx context.Context, state, code string) (*models.Account, error) {
	link, ok := s.takeState(state)
	if !ok {
		return nil, ErrInvalidState
	}

	tok, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	profile, err := s.provider.FetchProfile(ctx, tok)
	if err != nil {
		return nil, err
	}

	userID := link.userID
	if userID == uuid.Nil {
		user, err := s.users.UpsertUserByEmail(ctx, strings.ToLower(profile.Email), profile.Name)
		if err != nil {
			return nil, fmt.Errorf("upsert user: %w", err)
		}
		userID = user.ID
	}

	params := models.AccountUpsertParams{
		UserID:          userID,
		ProviderAddress: strings.ToLower(profile.Email),
		AccessToken:     tok.AccessToken,
		RefreshToken:    tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		params.TokenExpiresAt = &expiry
	}
	account, err := s.accounts.UpsertAccount(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}

	slog.Info("mailbox account linked", "user_id", userID, "account_id", account.ID)
	return account, nil
}

func (s *Service) ListAccounts(ctx context.Context, userID uuid.UUID) ([]models.Account, error) {
	accounts, err := s.accounts.ListAccountsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// Disconnect removes an account and, through the schema, everything ingested
// from it.
func (s *Service) Disconnect(ctx context.Context, userID, accountID uuid.UUID) error {
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("load account: %w", err)
	}
	if account.UserID != userID {
		return ErrAccountNotFound
	}
	if err := s.accounts.DeleteAccount(ctx, accountID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (s *Service) takeState(state string) (pendingLink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.pending[state]
	if !ok {
		return pendingLink{}, false
	}
	delete(s.pending, state)
	if s.now().After(link.expiresAt) {
		return pendingLink{}, false
	}
	return link, true
}
