package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/internal/repository"
)

const (
	maxSlugBase  = 60
	fallbackSlug = "project"
	suffixChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-safe slug base from a title.
func Slugify(title string) string {
	base := nonSlugChars.ReplaceAllString(strings.ToLower(title), "-")
	base = strings.Trim(base, "-")
	if len(base) > maxSlugBase {
		base = strings.TrimRight(base[:maxSlugBase], "-")
	}
	if base == "" {
		return fallbackSlug
	}
	return base
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixChars[rand.IntN(len(suffixChars))]
	}
	return string(b)
}

// insertWithSlug stores a new row under a free slug derived from base,
// within the configured attempt budget. With bareFirst the first candidate
// is base itself; every other candidate is base plus a fresh random suffix.
// A candidate counts as taken when the pre-check finds it or when insert
// reports a unique violation, so a concurrent writer claiming the same slug
// moves this call on to the next candidate.
func (s *Service) insertWithSlug(ctx context.Context, op, base string, bareFirst bool, insert func(ctx context.Context, slug string) error) error {
	var attempt int
	try := func() error {
		candidate := base
		if !bareFirst || attempt > 0 {
			candidate = base + "-" + s.suffix(s.cfg.SlugSuffixLen)
		}
		attempt++

		taken, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return backoff.Permanent(apperr.Internal(op, err))
		}
		if taken {
			return errSlugTaken
		}
		if err := insert(ctx, candidate); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				s.log.Debug("slug claimed concurrently, retrying", "op", op, "slug", candidate)
				return errSlugTaken
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(s.cfg.SlugAttempts-1)), ctx)
	if err := backoff.Retry(try, policy); err != nil {
		if errors.Is(err, errSlugTaken) {
			s.metrics.slugExhausted(ctx, op)
			return apperr.Conflict(op, apperr.CodeSlugExhausted, "could not generate a unique slug")
		}
		return err
	}
	return nil
}

var errSlugTaken = errors.New("slug taken")
