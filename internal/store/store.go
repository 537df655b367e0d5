package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type UserStore interface {
	UpsertUserByEmail(ctx context.Context, email, name string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type AccountStore interface {
	UpsertAccount(ctx context.Context, params models.AccountUpsertParams) (*models.Account, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	ListAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]models.Account, error)
	ListAccountsWithCredentials(ctx context.Context) ([]models.Account, error)
	UpdateAccountCredentials(ctx context.Context, id uuid.UUID, accessToken string, expiresAt time.Time) error
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

type CategoryStore interface {
	CreateCategory(ctx context.Context, userID uuid.UUID, name, description string) (*models.Category, error)
	ListCategoriesByUserID(ctx context.Context, userID uuid.UUID) ([]models.Category, error)
	DeleteCategory(ctx context.Context, userID, id uuid.UUID) error
}

type MessageStore interface {
	CreateMessage(ctx context.Context, params models.MessageCreateParams) (*models.Message, error)
	GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ExistsByProviderMessageID(ctx context.Context, providerMessageID string) (bool, error)
	ListMessagesByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Message, error)
	ListMessagesByCategoryID(ctx context.Context, categoryID uuid.UUID) ([]models.Message, error)
	MarkMessageArchived(ctx context.Context, id uuid.UUID) error
	UpdateUnsubscribeState(ctx context.Context, id uuid.UUID, state models.UnsubscribeState) error
	DeleteMessages(ctx context.Context, ids []uuid.UUID) error
}

type UnsubscribeJobStore interface {
	CreateUnsubscribeJob(ctx context.Context, messageID uuid.UUID, status string, result models.UnsubscribeOutcome) (*models.UnsubscribeJob, error)
	ListUnsubscribeJobsByMessageID(ctx context.Context, messageID uuid.UUID) ([]models.UnsubscribeJob, error)
}
