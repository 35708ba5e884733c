package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"promptflows/backend/pkg/models"
)

const projectColumns = `id, author_id, title, slug, description, tool, category, difficulty, demo_url,
	is_published, is_approved, forked_from_id, inspired_by_id, import_method,
	star_count, fork_count, comment_count, created_at, updated_at`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.ID, &p.AuthorID, &p.Title, &p.Slug, &p.Description, &p.Tool, &p.Category, &p.Difficulty, &p.DemoURL,
		&p.IsPublished, &p.IsApproved, &p.ForkedFromID, &p.InspiredByID, &p.ImportMethod,
		&p.StarCount, &p.ForkCount, &p.CommentCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// CreateProject inserts a project row.
func (s *PostgresStore) CreateProject(ctx context.Context, p *models.Project) error {
	_, err := s.db.Exec(ctx, `INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		p.ID, p.AuthorID, p.Title, p.Slug, p.Description, p.Tool, p.Category, p.Difficulty, p.DemoURL,
		p.IsPublished, p.IsApproved, p.ForkedFromID, p.InspiredByID, p.ImportMethod,
		p.StarCount, p.ForkCount, p.CommentCount, p.CreatedAt, p.UpdatedAt,
	)
	return mapErr(err)
}

// GetProject retrieves a project by its ID.
func (s *PostgresStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return scanProject(s.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
}

// GetProjectBySlug retrieves a project by its unique slug.
func (s *PostgresStore) GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error) {
	return scanProject(s.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE slug = $1`, slug))
}

// ListProjectsByAuthor returns every project of authorID with its step count.
func (s *PostgresStore) ListProjectsByAuthor(ctx context.Context, authorID string) ([]models.ProjectSummary, error) {
	rows, err := s.db.Query(ctx, `SELECT p.id, p.title, p.slug, p.is_published, p.is_approved,
			(SELECT count(*) FROM prompt_steps s WHERE s.project_id = p.id)::int AS step_count,
			p.updated_at
		FROM projects p
		WHERE p.author_id = $1
		ORDER BY p.updated_at DESC, p.id`, authorID)
	if err != nil {
		return nil, mapErr(err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.ProjectSummary])
	return list, mapErr(err)
}

// UpdateProject writes the editable fields of a project. Counters, lineage
// and slug are never touched here.
func (s *PostgresStore) UpdateProject(ctx context.Context, p *models.Project) error {
	return requireAffected(s.db.Exec(ctx, `UPDATE projects SET
		title = $2, description = $3, tool = $4, category = $5, difficulty = $6, demo_url = $7,
		is_published = $8, is_approved = $9, updated_at = $10
		WHERE id = $1`,
		p.ID, p.Title, p.Description, p.Tool, p.Category, p.Difficulty, p.DemoURL,
		p.IsPublished, p.IsApproved, p.UpdatedAt,
	))
}

// SetPublished flips the publication flag.
func (s *PostgresStore) SetPublished(ctx context.Context, id string, published bool) error {
	return requireAffected(s.db.Exec(ctx,
		`UPDATE projects SET is_published = $2, updated_at = now() WHERE id = $1`, id, published))
}

// TouchProject bumps updated_at.
func (s *PostgresStore) TouchProject(ctx context.Context, id string, at time.Time) error {
	return requireAffected(s.db.Exec(ctx, `UPDATE projects SET updated_at = $2 WHERE id = $1`, id, at))
}

// DeleteProject removes a project; foreign keys cascade to its children.
func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	return requireAffected(s.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id))
}

// SlugExists reports whether any project already uses slug.
func (s *PostgresStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE slug = $1)`, slug).Scan(&exists)
	return exists, mapErr(err)
}

// ListProjectIDs returns every project id, oldest first.
func (s *PostgresStore) ListProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, mapErr(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, mapErr(err)
}
