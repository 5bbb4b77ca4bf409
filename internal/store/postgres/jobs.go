package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"longjob/internal/job"
	"longjob/internal/store"

	"github.com/google/uuid"
)

const jobColumns = "id, user_id, job_type, status, owner, lease_expiry, retry_count, created_at, started_at, completed_at, payload"

// Add inserts a newly created job.
func (s *Store) Add(ctx context.Context, j *job.Job) error {
	payload, err := marshalPayload(j)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		j.ID, j.UserID, j.Type, j.Status,
		nullString(j.Owner), nullTime(j.LeaseExpiry), j.RetryCount,
		j.CreatedAt, nullTime(j.StartedAt), nullTime(j.CompletedAt), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", j.ID, err)
	}
	return nil
}

// Get returns the job with the given id, or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE id = $1"

	j, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return j, nil
}

// GetByStatus returns all jobs currently in the given status.
func (s *Store) GetByStatus(ctx context.Context, status job.Status) ([]*job.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE status = $1 ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs by status %s: %w", status, err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return jobs, nil
}

// Update persists the full record. The last writer wins; the state machine's
// ownership guard keeps concurrent heartbeat and cancel writes safe.
func (s *Store) Update(ctx context.Context, j *job.Job) error {
	payload, err := marshalPayload(j)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET status = $2, owner = $3, lease_expiry = $4, retry_count = $5,
		    started_at = $6, completed_at = $7, payload = $8
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		j.ID, j.Status, nullString(j.Owner), nullTime(j.LeaseExpiry), j.RetryCount,
		nullTime(j.StartedAt), nullTime(j.CompletedAt), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", j.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for job %s: %w", j.ID, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*job.Job, error) {
	var j job.Job
	var owner sql.NullString
	var leaseExpiry, startedAt, completedAt sql.NullTime
	var payload []byte

	err := row.Scan(
		&j.ID, &j.UserID, &j.Type, &j.Status,
		&owner, &leaseExpiry, &j.RetryCount,
		&j.CreatedAt, &startedAt, &completedAt, &payload,
	)
	if err != nil {
		return nil, err
	}

	if owner.Valid {
		j.Owner = owner.String
	}
	if leaseExpiry.Valid {
		t := leaseExpiry.Time
		j.LeaseExpiry = &t
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}

	if err := unmarshalPayload(&j, payload); err != nil {
		return nil, err
	}
	return &j, nil
}

func marshalPayload(j *job.Job) ([]byte, error) {
	switch j.Type {
	case job.TypeEncode:
		if j.Encode == nil {
			return nil, fmt.Errorf("job %s has type %s but no payload", j.ID, j.Type)
		}
		data, err := json.Marshal(j.Encode)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload for job %s: %w", j.ID, err)
		}
		return data, nil
	default:
		return nil, &job.UnknownTypeError{Type: j.Type}
	}
}

func unmarshalPayload(j *job.Job, data []byte) error {
	switch j.Type {
	case job.TypeEncode:
		var p job.EncodePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to unmarshal payload for job %s: %w", j.ID, err)
		}
		j.Encode = &p
		return nil
	default:
		return &job.UnknownTypeError{Type: j.Type}
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
