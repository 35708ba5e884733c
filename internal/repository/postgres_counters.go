package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"promptflows/backend/pkg/models"
)

// PostgresCounterStore writes denormalized counters through a pool that
// connects with elevated credentials.
type PostgresCounterStore struct {
	db *pgxpool.Pool
}

// NewPostgresCounterStore creates a new PostgresCounterStore.
func NewPostgresCounterStore(db *pgxpool.Pool) *PostgresCounterStore {
	return &PostgresCounterStore{db: db}
}

func counterColumn(field models.CounterField) (string, error) {
	switch field {
	case models.CounterStars, models.CounterForks, models.CounterComments:
		return string(field), nil
	default:
		return "", fmt.Errorf("unknown counter %q", field)
	}
}

// GetCounters reads the three counters of a project.
func (s *PostgresCounterStore) GetCounters(ctx context.Context, projectID string) (models.Counters, error) {
	var c models.Counters
	err := s.db.QueryRow(ctx, `SELECT star_count, fork_count, comment_count FROM projects WHERE id = $1`, projectID).
		Scan(&c.StarCount, &c.ForkCount, &c.CommentCount)
	return c, mapErr(err)
}

// SetCounter overwrites one counter.
func (s *PostgresCounterStore) SetCounter(ctx context.Context, projectID string, field models.CounterField, value int) error {
	col, err := counterColumn(field)
	if err != nil {
		return err
	}
	return requireAffected(s.db.Exec(ctx, `UPDATE projects SET `+col+` = $2 WHERE id = $1`, projectID, value))
}

// AddCounter adds delta to one counter in a single statement, never going
// below zero.
func (s *PostgresCounterStore) AddCounter(ctx context.Context, projectID string, field models.CounterField, delta int) (int, error) {
	col, err := counterColumn(field)
	if err != nil {
		return 0, err
	}
	var value int
	err = s.db.QueryRow(ctx, `UPDATE projects SET `+col+` = GREATEST(`+col+` + $2, 0) WHERE id = $1 RETURNING `+col,
		projectID, delta).Scan(&value)
	return value, mapErr(err)
}

// CountStars counts star rows of a project.
func (s *PostgresCounterStore) CountStars(ctx context.Context, projectID string) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM stars WHERE project_id = $1`, projectID)
}

// CountForks counts projects forked from projectID.
func (s *PostgresCounterStore) CountForks(ctx context.Context, projectID string) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM projects WHERE forked_from_id = $1`, projectID)
}

// CountComments counts comment rows of a project, replies included.
func (s *PostgresCounterStore) CountComments(ctx context.Context, projectID string) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM comments WHERE project_id = $1`, projectID)
}

func (s *PostgresCounterStore) count(ctx context.Context, query, projectID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, query, projectID).Scan(&n)
	return n, mapErr(err)
}
