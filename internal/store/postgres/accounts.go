package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/models"
)

// Sealer protects credentials at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}

type AccountStore struct {
	db     *sql.DB
	sealer Sealer
}

func NewAccountStore(db *sql.DB, sealer Sealer) *AccountStore {
	return &AccountStore{db: db, sealer: sealer}
}

const accountColumns = `id, user_id, provider_address, access_token, refresh_token, token_expires_at, created_at, updated_at`

// UpsertAccount links a mailbox to a user. An empty refresh token keeps the
// stored one since the provider only returns it on first consent.
func (s *AccountStore) UpsertAccount(ctx context.Context, params models.AccountUpsertParams) (*models.Account, error) {
	access, err := s.sealer.Seal(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.sealer.Seal(params.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO accounts (id, user_id, provider_address, access_token, refresh_token, token_expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (provider_address) DO UPDATE
		 SET user_id = EXCLUDED.user_id,
		     access_token = EXCLUDED.access_token,
		     refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), accounts.refresh_token),
		     token_expires_at = EXCLUDED.token_expires_at,
		     updated_at = NOW()
		 RETURNING `+accountColumns,
		uuid.New(), params.UserID, params.ProviderAddress, access, refresh, params.TokenExpiresAt,
	)
	return s.scanAccount(row)
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return s.scanAccount(row)
}

func (s *AccountStore) ListAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	return s.scanAccounts(rows)
}

func (s *AccountStore) ListAccountsWithCredentials(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 WHERE access_token <> ''
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	return s.scanAccounts(rows)
}

func (s *AccountStore) scanAccounts(rows *sql.Rows) ([]models.Account, error) {
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := s.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *AccountStore) UpdateAccountCredentials(ctx context.Context, id uuid.UUID, accessToken string, expiresAt time.Time) error {
	sealed, err := s.sealer.Seal(accessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET access_token = $2, token_expires_at = $3, updated_at = NOW() WHERE id = $1`,
		id, sealed, expiresAt.UTC(),
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *AccountStore) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *AccountStore) scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	var access, refresh string
	var expires sql.NullTime
	if err := row.Scan(&a.ID, &a.UserID, &a.ProviderAddress, &access, &refresh, &expires, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	var err error
	if a.AccessToken, err = s.sealer.Open(access); err != nil {
		return nil, fmt.Errorf("open access token for account %s: %w", a.ID, err)
	}
	if a.RefreshToken, err = s.sealer.Open(refresh); err != nil {
		return nil, fmt.Errorf("open refresh token for account %s: %w", a.ID, err)
	}
	if expires.Valid {
		t := expires.Time
		a.TokenExpiresAt = &t
	}
	return a, nil
}
