package services

import (
	"context"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/pkg/models"
)

// adjustCounter applies delta to one counter and returns the new value.
// With atomic counters it is a single storage statement; otherwise it is a
// read followed by a write, and concurrent callers can lose an update.
// Failures are logged and reported through ok=false, never returned.
func (s *Service) adjustCounter(ctx context.Context, projectID string, field models.CounterField, delta int) (value int, ok bool) {
	if s.cfg.AtomicCounters {
		v, err := s.counters.AddCounter(ctx, projectID, field, delta)
		if err != nil {
			s.counterFailed(ctx, projectID, field, err)
			return 0, false
		}
		return v, true
	}

	current, err := s.counters.GetCounters(ctx, projectID)
	if err != nil {
		s.counterFailed(ctx, projectID, field, err)
		return 0, false
	}
	next := max(counterValue(current, field)+delta, 0)
	if err := s.counters.SetCounter(ctx, projectID, field, next); err != nil {
		s.counterFailed(ctx, projectID, field, err)
		return counterValue(current, field), false
	}
	return next, true
}

// recountCounter overwrites one counter with the true child row count.
func (s *Service) recountCounter(ctx context.Context, projectID string, field models.CounterField) (int, error) {
	var (
		n   int
		err error
	)
	switch field {
	case models.CounterStars:
		n, err = s.counters.CountStars(ctx, projectID)
	case models.CounterForks:
		n, err = s.counters.CountForks(ctx, projectID)
	case models.CounterComments:
		n, err = s.counters.CountComments(ctx, projectID)
	default:
		return 0, apperr.Internalf("services.recount", "unknown counter %q", field)
	}
	if err != nil {
		return 0, err
	}
	if err := s.counters.SetCounter(ctx, projectID, field, n); err != nil {
		return 0, err
	}
	return n, nil
}

// syncRecount is recountCounter for side-effect call sites: failures are
// logged and dropped.
func (s *Service) syncRecount(ctx context.Context, projectID string, field models.CounterField) {
	if _, err := s.recountCounter(ctx, projectID, field); err != nil {
		s.counterFailed(ctx, projectID, field, err)
	}
}

func (s *Service) counterFailed(ctx context.Context, projectID string, field models.CounterField, err error) {
	s.metrics.counterFailed(ctx, string(field))
	s.log.Warn("counter sync failed", "project_id", projectID, "counter", string(field), "error", err)
}

// Recount recomputes all three counters of a project from child rows.
func (s *Service) Recount(ctx context.Context, projectID string) (models.Counters, error) {
	const op = "services.recount"
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return models.Counters{}, storeErr(op, "project", err)
	}

	var out models.Counters
	for _, field := range []models.CounterField{models.CounterStars, models.CounterForks, models.CounterComments} {
		n, err := s.recountCounter(ctx, projectID, field)
		if err != nil {
			return models.Counters{}, apperr.Internal(op, err)
		}
		switch field {
		case models.CounterStars:
			out.StarCount = n
		case models.CounterForks:
			out.ForkCount = n
		case models.CounterComments:
			out.CommentCount = n
		}
	}
	return out, nil
}

// RecountOwned is Recount restricted to the project's author.
func (s *Service) RecountOwned(ctx context.Context, actorID, projectID string) (models.Counters, error) {
	if _, err := s.loadOwned(ctx, "services.recount", projectID, actorID); err != nil {
		return models.Counters{}, err
	}
	return s.Recount(ctx, projectID)
}

// RecountAll recounts every project and returns how many were processed.
// It stops at the first failure.
func (s *Service) RecountAll(ctx context.Context) (int, error) {
	ids, err := s.repo.ListProjectIDs(ctx)
	if err != nil {
		return 0, apperr.Internal("services.recount_all", err)
	}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := s.Recount(ctx, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

func counterValue(c models.Counters, field models.CounterField) int {
	switch field {
	case models.CounterStars:
		return c.StarCount
	case models.CounterForks:
		return c.ForkCount
	case models.CounterComments:
		return c.CommentCount
	}
	return 0
}
