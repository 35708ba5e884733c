package services

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/internal/repository"
	"promptflows/backend/pkg/models"
)

// GetProjectBySlug returns the detail view of the project username published
// under slug. A project actorID may not see, or one whose author is not
// username, reads as missing.
func (s *Service) GetProjectBySlug(ctx context.Context, actorID, username, slug string) (*models.ProjectDetail, error) {
	const op = "services.get_project_by_slug"
	project, err := s.repo.GetProjectBySlug(ctx, slug)
	if err != nil {
		return nil, storeErr(op, "project", err)
	}
	if !project.Visible() && (actorID == "" || project.AuthorID != actorID) {
		return nil, apperr.NotFound(op, "project not found")
	}
	author, err := s.repo.GetProfile(ctx, project.AuthorID)
	if err != nil {
		return nil, storeErr(op, "project", err)
	}
	if author.Username != username {
		return nil, apperr.NotFound(op, "project not found")
	}

	detail := &models.ProjectDetail{Project: *project, AuthorUsername: author.Username}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		steps, err := s.repo.ListSteps(gctx, project.ID)
		detail.Steps = steps
		return err
	})
	g.Go(func() error {
		tags, err := s.repo.ListTags(gctx, project.ID)
		detail.Tags = tags
		return err
	})
	g.Go(func() error {
		link, err := s.projectLink(gctx, actorID, project.ForkedFromID)
		detail.ForkedFrom = link
		return err
	})
	g.Go(func() error {
		link, err := s.projectLink(gctx, actorID, project.InspiredByID)
		detail.InspiredBy = link
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Internal(op, err)
	}
	if detail.Steps == nil {
		detail.Steps = []models.PromptStep{}
	}
	if detail.Tags == nil {
		detail.Tags = []string{}
	}
	return detail, nil
}

// projectLink resolves a lineage reference. Missing or hidden projects
// yield nil.
func (s *Service) projectLink(ctx context.Context, actorID string, id *string) (*models.ProjectLink, error) {
	if id == nil {
		return nil, nil
	}
	project, err := s.repo.GetProject(ctx, *id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !project.Visible() && project.AuthorID != actorID {
		return nil, nil
	}
	link := &models.ProjectLink{ID: project.ID, Title: project.Title, Slug: project.Slug, AuthorUsername: "unknown"}
	if author, err := s.repo.GetProfile(ctx, project.AuthorID); err == nil {
		link.AuthorUsername = author.Username
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return link, nil
}

// ListUserProjects lists authorID's projects with step counts, most recently
// updated first. Other actors only see the author's visible projects.
func (s *Service) ListUserProjects(ctx context.Context, actorID, authorID string) ([]models.ProjectSummary, error) {
	const op = "services.list_user_projects"
	all, err := s.repo.ListProjectsByAuthor(ctx, authorID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if actorID == authorID {
		return all, nil
	}
	visible := make([]models.ProjectSummary, 0, len(all))
	for _, p := range all {
		if p.IsPublished && p.IsApproved {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

// IsStarred reports whether actorID has starred the project.
func (s *Service) IsStarred(ctx context.Context, actorID, projectID string) (bool, error) {
	const op = "services.is_starred"
	if _, err := s.loadVisible(ctx, op, projectID, actorID); err != nil {
		return false, err
	}
	starred, err := s.repo.HasStar(ctx, actorID, projectID)
	if err != nil {
		return false, apperr.Internal(op, err)
	}
	return starred, nil
}

// StarCount counts the project's star rows rather than reading the cached
// star_count.
func (s *Service) StarCount(ctx context.Context, actorID, projectID string) (int, error) {
	const op = "services.star_count"
	if _, err := s.loadVisible(ctx, op, projectID, actorID); err != nil {
		return 0, err
	}
	n, err := s.counters.CountStars(ctx, projectID)
	if err != nil {
		return 0, apperr.Internal(op, err)
	}
	return n, nil
}
