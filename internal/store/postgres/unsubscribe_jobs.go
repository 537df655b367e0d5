package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/znz-systems/sortbox/internal/models"
)

type UnsubscribeJobStore struct {
	db *sql.DB
}

func NewUnsubscribeJobStore(db *sql.DB) *UnsubscribeJobStore {
	return &UnsubscribeJobStore{db: db}
}

// CreateUnsubscribeJob appends an audit record. Records are never merged, so
// repeated attempts on one message each get their own row.
func (s *UnsubscribeJobStore) CreateUnsubscribeJob(ctx context.Context, messageID uuid.UUID, status string, result models.UnsubscribeOutcome) (*models.UnsubscribeJob, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode unsubscribe result: %w", err)
	}
	job := &models.UnsubscribeJob{
		ID:        uuid.New(),
		MessageID: messageID,
		Status:    status,
		Result:    result,
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO unsubscribe_jobs (id, message_id, status, last_attempted_at, result)
		 VALUES ($1, $2, $3, NOW(), $4)
		 RETURNING last_attempted_at, created_at`,
		job.ID, job.MessageID, job.Status, payload,
	).Scan(&job.LastAttemptedAt, &job.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return job, nil
}

func (s *UnsubscribeJobStore) ListUnsubscribeJobsByMessageID(ctx context.Context, messageID uuid.UUID) ([]models.UnsubscribeJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, status, last_attempted_at, result, created_at
		 FROM unsubscribe_jobs WHERE message_id = $1
		 ORDER BY created_at ASC`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.UnsubscribeJob
	for rows.Next() {
		var j models.UnsubscribeJob
		var raw []byte
		if err := rows.Scan(&j.ID, &j.MessageID, &j.Status, &j.LastAttemptedAt, &raw, &j.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &j.Result); err != nil {
			return nil, fmt.Errorf("decode unsubscribe result %s: %w", j.ID, err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
