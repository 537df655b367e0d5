package category

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/models"
	"github.com/znz-systems/sortbox/internal/store"
)

const (
	maxNameLen        = 100
	maxDescriptionLen = 1000
)

var (
	ErrInvalidName     = errors.New("category name must be 1-100 characters")
	ErrInvalidDesc     = errors.New("category description must be at most 1000 characters")
	ErrCategoryExists  = errors.New("category with this name already exists")
	ErrCategoryMissing = errors.New("category not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Service manages the categories a user's mail is sorted into. Descriptions
// are shown to the classifier, so they matter as much as the names.
type Service struct {
	users      store.UserStore
	categories store.CategoryStore
}

func NewService(users store.UserStore, categories store.CategoryStore) *Service {
	return &Service{users: users, categories: categories}
}

// Create validates and stores a new category for userID.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, name, description string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" || utf8.RuneCountInString(name) > maxNameLen {
		return nil, ErrInvalidName
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return nil, ErrInvalidDesc
	}

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	c, err := s.categories.CreateCategory(ctx, userID, name, description)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Category, error) {
	cats, err := s.categories.ListCategoriesByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// Delete removes a category owned by userID. Messages filed under it go with
// it.
func (s *Service) Delete(ctx context.Context, userID, categoryID uuid.UUID) error {
	if err := s.categories.DeleteCategory(ctx, userID, categoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCategoryMissing
		}
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}
