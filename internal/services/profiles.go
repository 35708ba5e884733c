package services

import (
	"context"
	"errors"
	"strings"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/internal/repository"
	"promptflows/backend/pkg/models"
)

const fallbackUsername = "user"

// EnsureProfile returns the profile of actorID, creating it from the
// preferred username on first sight. A taken username gets a random suffix.
func (s *Service) EnsureProfile(ctx context.Context, actorID, preferred, displayName string) (*models.Profile, error) {
	const op = "services.ensure_profile"
	profile, err := s.repo.GetProfile(ctx, actorID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal(op, err)
	}

	base := Slugify(preferred)
	if base == fallbackSlug && !strings.Contains(strings.ToLower(preferred), fallbackSlug) {
		base = fallbackUsername
	}
	profile = &models.Profile{ID: actorID, DisplayName: blankToNil(&displayName), CreatedAt: s.now()}
	for attempt := 0; attempt < s.cfg.SlugAttempts; attempt++ {
		profile.Username = base
		if attempt > 0 {
			profile.Username = base + "-" + s.suffix(s.cfg.SlugSuffixLen)
		}
		err = s.repo.CreateProfile(ctx, profile)
		if err == nil {
			s.log.Info("profile provisioned", "actor_id", actorID, "username", profile.Username)
			return profile, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Internal(op, err)
		}
		// The actor itself may have been provisioned concurrently.
		if existing, gerr := s.repo.GetProfile(ctx, actorID); gerr == nil {
			return existing, nil
		}
	}
	return nil, apperr.Conflict(op, apperr.CodeSlugExhausted, "could not allocate a unique username")
}
