package services

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/internal/repository"
	"promptflows/backend/pkg/models"
)

// projectContent is a project with its ordered steps and tags.
type projectContent struct {
	project *models.Project
	steps   []models.PromptStep
	tags    []string
}

// loadContent reads a project, its steps and its tags concurrently.
func (s *Service) loadContent(ctx context.Context, projectID string) (*projectContent, error) {
	var out projectContent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.repo.GetProject(gctx, projectID)
		out.project = p
		return err
	})
	g.Go(func() error {
		steps, err := s.repo.ListSteps(gctx, projectID)
		out.steps = steps
		return err
	})
	g.Go(func() error {
		tags, err := s.repo.ListTags(gctx, projectID)
		out.tags = tags
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// resolveHandle returns the public username of actorID.
func (s *Service) resolveHandle(ctx context.Context, op, actorID string) (string, error) {
	profile, err := s.repo.GetProfile(ctx, actorID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperr.Internalf(op, "no profile for actor %s", actorID).WithCode(apperr.CodeActorProfileMissing)
	}
	if err != nil {
		return "", apperr.Internal(op, err)
	}
	return profile.Username, nil
}

// ForkProject copies a published and approved project, with its steps and
// tags, into a new draft owned by actorID. A failure while copying steps or
// tags deletes the new project before returning. The source's fork counter
// is bumped after a successful copy; failure there is only logged.
func (s *Service) ForkProject(ctx context.Context, sourceID, actorID string) (*models.ProjectRef, error) {
	const op = "services.fork"

	src, err := s.loadContent(ctx, sourceID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !src.project.Visible()) {
		return nil, apperr.NotFound(op, "project not found or not available for forking").WithCode(apperr.CodeSourceNotAvailable)
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	handle, err := s.resolveHandle(ctx, op, actorID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	manual := models.ImportMethodManual
	fork := &models.Project{
		ID:           s.idGen(),
		AuthorID:     actorID,
		Title:        src.project.Title,
		Description:  src.project.Description,
		Tool:         src.project.Tool,
		Category:     src.project.Category,
		Difficulty:   src.project.Difficulty,
		ForkedFromID: &src.project.ID,
		InspiredByID: &src.project.ID,
		ImportMethod: &manual,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	steps := make([]models.PromptStep, len(src.steps))
	for i, st := range src.steps {
		st.ID = s.idGen()
		st.ProjectID = fork.ID
		st.ForkNote = nil
		st.CreatedAt = now
		steps[i] = st
	}

	err = s.newSaga(op).
		add("insert project",
			func(ctx context.Context) error {
				return s.insertWithSlug(ctx, op, src.project.Slug, false, func(ctx context.Context, slug string) error {
					fork.Slug = slug
					return s.repo.CreateProject(ctx, fork)
				})
			},
			func(ctx context.Context) error { return s.repo.DeleteProject(ctx, fork.ID) }).
		add("copy steps",
			func(ctx context.Context) error { return s.repo.InsertSteps(ctx, steps) }, nil).
		add("copy tags",
			func(ctx context.Context) error { return s.repo.InsertTags(ctx, fork.ID, src.tags) }, nil).
		run(ctx)
	if err != nil {
		return nil, classify(op, err)
	}

	s.adjustCounter(ctx, src.project.ID, models.CounterForks, 1)
	s.metrics.forked(ctx)
	s.log.Info("project forked", "source_id", src.project.ID, "fork_id", fork.ID, "actor_id", actorID)

	return &models.ProjectRef{ID: fork.ID, Slug: fork.Slug, ActorHandle: handle}, nil
}
