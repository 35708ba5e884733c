package repository

import (
	"context"

	"promptflows/backend/pkg/models"
)

// HasStar reports whether userID has starred projectID.
func (s *PostgresStore) HasStar(ctx context.Context, userID, projectID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stars WHERE user_id = $1 AND project_id = $2)`,
		userID, projectID).Scan(&exists)
	return exists, mapErr(err)
}

// InsertStar records a star.
func (s *PostgresStore) InsertStar(ctx context.Context, star *models.Star) error {
	_, err := s.db.Exec(ctx, `INSERT INTO stars (user_id, project_id, created_at) VALUES ($1, $2, $3)`,
		star.UserID, star.ProjectID, star.CreatedAt)
	return mapErr(err)
}

// DeleteStar removes a star.
func (s *PostgresStore) DeleteStar(ctx context.Context, userID, projectID string) error {
	return requireAffected(s.db.Exec(ctx, `DELETE FROM stars WHERE user_id = $1 AND project_id = $2`,
		userID, projectID))
}

const commentColumns = `id, project_id, user_id, parent_comment_id, body, is_pinned, created_at`

// InsertComment inserts a comment.
func (s *PostgresStore) InsertComment(ctx context.Context, c *models.Comment) error {
	_, err := s.db.Exec(ctx, `INSERT INTO comments (`+commentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.ProjectID, c.UserID, c.ParentCommentID, c.Body, c.IsPinned, c.CreatedAt)
	return mapErr(err)
}

// GetComment retrieves a comment by its ID.
func (s *PostgresStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var c models.Comment
	err := s.db.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id).
		Scan(&c.ID, &c.ProjectID, &c.UserID, &c.ParentCommentID, &c.Body, &c.IsPinned, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// ListComments returns the flat comment set of a project, oldest first.
func (s *PostgresStore) ListComments(ctx context.Context, projectID string) ([]models.Comment, error) {
	rows, err := s.db.Query(ctx, `SELECT `+commentColumns+` FROM comments WHERE project_id = $1
		ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.UserID, &c.ParentCommentID, &c.Body, &c.IsPinned, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, mapErr(rows.Err())
}

// DeleteComment removes a comment; replies go with it via ON DELETE CASCADE.
func (s *PostgresStore) DeleteComment(ctx context.Context, id string) error {
	return requireAffected(s.db.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id))
}

// UnpinAll clears the pinned flag on every comment of a project.
func (s *PostgresStore) UnpinAll(ctx context.Context, projectID string) error {
	_, err := s.db.Exec(ctx, `UPDATE comments SET is_pinned = false WHERE project_id = $1 AND is_pinned`, projectID)
	return mapErr(err)
}

// SetPinned sets the pinned flag of one comment.
func (s *PostgresStore) SetPinned(ctx context.Context, id string, pinned bool) error {
	return requireAffected(s.db.Exec(ctx, `UPDATE comments SET is_pinned = $2 WHERE id = $1`, id, pinned))
}

// GetProfile retrieves a profile by actor id.
func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.QueryRow(ctx, `SELECT id, username, display_name, created_at FROM profiles WHERE id = $1`, id).
		Scan(&p.ID, &p.Username, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// CreateProfile inserts a profile.
func (s *PostgresStore) CreateProfile(ctx context.Context, p *models.Profile) error {
	_, err := s.db.Exec(ctx, `INSERT INTO profiles (id, username, display_name, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Username, p.DisplayName, p.CreatedAt)
	return mapErr(err)
}
