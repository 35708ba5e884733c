package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"promptflows/backend/pkg/models"
)

// ListSteps returns the steps of a project ordered by step_order.
func (s *PostgresStore) ListSteps(ctx context.Context, projectID string) ([]models.PromptStep, error) {
	rows, err := s.db.Query(ctx, `SELECT id, project_id, step_order, title, prompt_text, context_mode,
		output_notes, tips, fork_note, created_at
		FROM prompt_steps WHERE project_id = $1 ORDER BY step_order, created_at`, projectID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var steps []models.PromptStep
	for rows.Next() {
		var st models.PromptStep
		if err := rows.Scan(&st.ID, &st.ProjectID, &st.StepOrder, &st.Title, &st.PromptText, &st.ContextMode,
			&st.OutputNotes, &st.Tips, &st.ForkNote, &st.CreatedAt); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, mapErr(rows.Err())
}

// InsertSteps inserts a batch of steps. The batch runs as one implicit
// transaction, so either every row lands or none does.
func (s *PostgresStore) InsertSteps(ctx context.Context, steps []models.PromptStep) error {
	if len(steps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, st := range steps {
		batch.Queue(`INSERT INTO prompt_steps (id, project_id, step_order, title, prompt_text, context_mode,
			output_notes, tips, fork_note, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			st.ID, st.ProjectID, st.StepOrder, st.Title, st.PromptText, st.ContextMode,
			st.OutputNotes, st.Tips, st.ForkNote, st.CreatedAt)
	}
	return mapErr(s.db.SendBatch(ctx, batch).Close())
}

// DeleteSteps removes every step of a project.
func (s *PostgresStore) DeleteSteps(ctx context.Context, projectID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM prompt_steps WHERE project_id = $1`, projectID)
	return mapErr(err)
}

// MaxStepOrder returns the highest step_order of a project, or 0.
func (s *PostgresStore) MaxStepOrder(ctx context.Context, projectID string) (int, error) {
	var highest int
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(step_order), 0) FROM prompt_steps WHERE project_id = $1`,
		projectID).Scan(&highest)
	return highest, mapErr(err)
}

// CountSteps returns the number of steps of a project.
func (s *PostgresStore) CountSteps(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM prompt_steps WHERE project_id = $1`, projectID).Scan(&n)
	return n, mapErr(err)
}

// ListTags returns the tag names of a project in alphabetical order.
func (s *PostgresStore) ListTags(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT tag_name FROM project_tags WHERE project_id = $1 ORDER BY tag_name`, projectID)
	if err != nil {
		return nil, mapErr(err)
	}
	tags, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return tags, mapErr(err)
}

// InsertTags inserts tags for a project as one statement.
func (s *PostgresStore) InsertTags(ctx context.Context, projectID string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `INSERT INTO project_tags (project_id, tag_name)
		SELECT $1, unnest($2::text[])`, projectID, tags)
	return mapErr(err)
}

// DeleteTags removes every tag of a project.
func (s *PostgresStore) DeleteTags(ctx context.Context, projectID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM project_tags WHERE project_id = $1`, projectID)
	return mapErr(err)
}
