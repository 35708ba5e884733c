// Package services implements the content consistency engine: step
// sequencing, counter synchronization, forking, the comment graph and the
// project lifecycle built on top of them.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/internal/config"
	"promptflows/backend/internal/logging"
	"promptflows/backend/internal/repository"
	"promptflows/backend/pkg/models"
)

// IDGenerator returns unique identifiers for new rows.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// SuffixGenerator returns a random slug suffix of length n.
type SuffixGenerator func(n int) string

// Service coordinates every multi-row write against the repository.
type Service struct {
	repo     repository.Repository
	counters repository.CounterStore
	log      *logging.Logger
	cfg      config.EngineConfig
	idGen    IDGenerator
	clock    Clock
	suffix   SuffixGenerator
	meters   metric.MeterProvider
	metrics  *engineMetrics
}

// Option customizes a Service.
type Option func(*Service)

// WithIDGenerator overrides the uuid-based id generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Service) { s.idGen = gen }
}

// WithClock overrides time.Now.
func WithClock(clock Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithSuffixGenerator overrides the random slug suffix source.
func WithSuffixGenerator(gen SuffixGenerator) Option {
	return func(s *Service) { s.suffix = gen }
}

// WithMeterProvider records engine metrics on provider instead of the
// global one.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(s *Service) { s.meters = provider }
}

// NewService creates a new Service. counters is the elevated-privilege
// counter path; it may be the same object as repo.
func NewService(repo repository.Repository, counters repository.CounterStore, logger *logging.Logger, cfg config.EngineConfig, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	defaults := config.DefaultEngine()
	if cfg.SlugAttempts <= 0 {
		cfg.SlugAttempts = defaults.SlugAttempts
	}
	if cfg.SlugSuffixLen <= 0 {
		cfg.SlugSuffixLen = defaults.SlugSuffixLen
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = defaults.MaxTags
	}

	s := &Service{
		repo:     repo,
		counters: counters,
		log:      logger,
		cfg:      cfg,
		idGen:    func() string { return uuid.New().String() },
		clock:    time.Now,
		suffix:   randomSuffix,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newEngineMetrics(s.meters)
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// storeErr classifies a repository failure for op. what names the missing
// entity in NotFound messages.
func storeErr(op, what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(op, what+" not found")
	default:
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return err
		}
		return apperr.Internal(op, err)
	}
}

// classify passes classified errors through and wraps the rest as Internal.
func classify(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(op, err)
}

// loadOwned fetches a project and checks that actorID owns it.
func (s *Service) loadOwned(ctx context.Context, op, projectID, actorID string) (*models.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, storeErr(op, "project", err)
	}
	if project.AuthorID != actorID {
		return nil, apperr.Unauthorized(op, "only the project author can do this")
	}
	return project, nil
}

// loadVisible fetches a project that actorID may see: a published and
// approved project, or any project actorID authored. Anything else reads
// as missing.
func (s *Service) loadVisible(ctx context.Context, op, projectID, actorID string) (*models.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, storeErr(op, "project", err)
	}
	if !project.Visible() && (actorID == "" || project.AuthorID != actorID) {
		return nil, apperr.NotFound(op, "project not found")
	}
	return project, nil
}
