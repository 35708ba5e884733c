package services

import (
	"context"
	"errors"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/internal/repository"
	"promptflows/backend/pkg/models"
)

// ToggleStar stars the project for actorID, or removes the star if one
// exists, then syncs star_count. A counter failure does not fail the
// toggle; the returned count is then the last value read.
func (s *Service) ToggleStar(ctx context.Context, actorID, projectID string) (*models.StarResult, error) {
	const op = "services.toggle_star"
	project, err := s.loadVisible(ctx, op, projectID, actorID)
	if err != nil {
		return nil, err
	}

	starred, err := s.repo.HasStar(ctx, actorID, projectID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	delta := 1
	if starred {
		delta = -1
		err = s.repo.DeleteStar(ctx, actorID, projectID)
	} else {
		err = s.repo.InsertStar(ctx, &models.Star{UserID: actorID, ProjectID: projectID, CreatedAt: s.now()})
	}
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrConflict):
		// A concurrent toggle already reached the target state.
		delta = 0
	case err != nil:
		return nil, apperr.Internal(op, err)
	}

	result := &models.StarResult{Starred: !starred, Count: project.StarCount}
	if delta == 0 {
		return result, nil
	}
	if count, ok := s.adjustCounter(ctx, projectID, models.CounterStars, delta); ok {
		result.Count = count
	}
	return result, nil
}
