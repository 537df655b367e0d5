package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/znz-systems/sortbox/internal/models"
)

type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

const messageColumns = `id, account_id, provider_message_id, thread_id, from_address, to_address,
	subject, snippet, text_body, html_blob_key, imported_at, category_id, confidence, summary,
	archived, unsubscribe_links, unsubscribe_state, created_at, updated_at`

// CreateMessage inserts an ingested message. A second insert for the same
// provider message id fails with store.ErrDuplicate.
func (s *MessageStore) CreateMessage(ctx context.Context, params models.MessageCreateParams) (*models.Message, error) {
	links := params.UnsubscribeLinks
	if links == nil {
		links = []string{}
	}
	var categoryID uuid.NullUUID
	if params.CategoryID != nil {
		categoryID = uuid.NullUUID{UUID: *params.CategoryID, Valid: true}
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (id, account_id, provider_message_id, thread_id, from_address, to_address,
			subject, snippet, text_body, html_blob_key, category_id, confidence, summary, unsubscribe_links, unsubscribe_state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING `+messageColumns,
		uuid.New(), params.AccountID, params.ProviderMessageID, params.ThreadID, params.FromAddress, params.ToAddress,
		params.Subject, params.Snippet, params.TextBody, params.HTMLBlobKey, categoryID, params.Confidence, params.Summary,
		pq.StringArray(links), models.NotAttempted(),
	)
	return scanMessage(row)
}

func (s *MessageStore) GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

func (s *MessageStore) ExistsByProviderMessageID(ctx context.Context, providerMessageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE provider_message_id = $1)`,
		providerMessageID,
	).Scan(&exists)
	return exists, err
}

func (s *MessageStore) ListMessagesByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ANY($1::uuid[]) ORDER BY imported_at ASC`,
		uuidArray(ids),
	)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// ListMessagesByCategoryID returns a category's messages, newest first.
func (s *MessageStore) ListMessagesByCategoryID(ctx context.Context, categoryID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE category_id = $1 ORDER BY imported_at DESC`,
		categoryID,
	)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

func (s *MessageStore) MarkMessageArchived(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET archived = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// UpdateUnsubscribeState overwrites the state; concurrent writers race with
// last write winning.
func (s *MessageStore) UpdateUnsubscribeState(ctx context.Context, id uuid.UUID, state models.UnsubscribeState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET unsubscribe_state = $2, updated_at = NOW() WHERE id = $1`, id, state)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *MessageStore) DeleteMessages(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ANY($1::uuid[])`, uuidArray(ids))
	return err
}

func scanMessage(row rowScanner) (*models.Message, error) {
	m := &models.Message{}
	var categoryID uuid.NullUUID
	var links pq.StringArray
	err := row.Scan(
		&m.ID, &m.AccountID, &m.ProviderMessageID, &m.ThreadID, &m.FromAddress, &m.ToAddress,
		&m.Subject, &m.Snippet, &m.TextBody, &m.HTMLBlobKey, &m.ImportedAt, &categoryID, &m.Confidence, &m.Summary,
		&m.Archived, &links, &m.Unsubscribe, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if categoryID.Valid {
		id := categoryID.UUID
		m.CategoryID = &id
	}
	m.UnsubscribeLinks = []string(links)
	return m, nil
}

func uuidArray(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
