package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/models"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// UpsertUserByEmail returns the user owning email, creating it on first sight.
// A non-empty name replaces the stored one.
func (s *UserStore) UpsertUserByEmail(ctx context.Context, email, name string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (email) DO UPDATE
		 SET name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
		     updated_at = NOW()
		 RETURNING id, email, name, created_at, updated_at`,
		uuid.New(), email, name,
	).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

func (s *UserStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}
