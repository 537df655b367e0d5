package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/models"
)

type CategoryStore struct {
	db *sql.DB
}

func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

func (s *CategoryStore) CreateCategory(ctx context.Context, userID uuid.UUID, name, description string) (*models.Category, error) {
	c := &models.Category{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		Description: description,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO categories (id, user_id, name, description)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		c.ID, c.UserID, c.Name, c.Description,
	).Scan(&c.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

func (s *CategoryStore) ListCategoriesByUserID(ctx context.Context, userID uuid.UUID) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, description, created_at
		 FROM categories WHERE user_id = $1
		 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// DeleteCategory removes the category and, through the foreign key, every
// message classified into it.
func (s *CategoryStore) DeleteCategory(ctx context.Context, userID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
