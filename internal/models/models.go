package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account is one connected mailbox. AccessToken and RefreshToken are held in
// plaintext in memory; the store seals them at rest.
type Account struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	ProviderAddress string
	AccessToken     string
	RefreshToken    string
	TokenExpiresAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CredentialExpired reports whether the access token must be refreshed before
// use. A missing expiry is treated as expired.
func (a *Account) CredentialExpired(now time.Time) bool {
	if a.AccessToken == "" || a.TokenExpiresAt == nil {
		return true
	}
	return !now.Before(*a.TokenExpiresAt)
}

type AccountUpsertParams struct {
	UserID          uuid.UUID
	ProviderAddress string
	AccessToken     string
	RefreshToken    string
	TokenExpiresAt  *time.Time
}

type Category struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}

type Message struct {
	ID                uuid.UUID
	AccountID         uuid.UUID
	ProviderMessageID string
	ThreadID          string
	FromAddress       string
	ToAddress         string
	Subject           string
	Snippet           string
	TextBody          string
	HTMLBlobKey       string
	ImportedAt        time.Time
	CategoryID        *uuid.UUID
	Confidence        float64
	Summary           string
	Archived          bool
	UnsubscribeLinks  []string
	Unsubscribe       UnsubscribeState
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type MessageCreateParams struct {
	AccountID         uuid.UUID
	ProviderMessageID string
	ThreadID          string
	FromAddress       string
	ToAddress         string
	Subject           string
	Snippet           string
	TextBody          string
	HTMLBlobKey       string
	CategoryID        *uuid.UUID
	Confidence        float64
	Summary           string
	UnsubscribeLinks  []string
}

const (
	UnsubscribeJobCompleted = "completed"
	UnsubscribeJobFailed    = "failed"
)

// UnsubscribeJob is an append-only audit record of one unsubscribe attempt.
type UnsubscribeJob struct {
	ID              uuid.UUID
	MessageID       uuid.UUID
	Status          string
	LastAttemptedAt time.Time
	Result          UnsubscribeOutcome
	CreatedAt       time.Time
}

type UnsubscribeOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
