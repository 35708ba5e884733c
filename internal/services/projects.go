package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/internal/ingest"
	"promptflows/backend/pkg/models"
)

const (
	defaultCategory    = "other"
	defaultImportTitle = "Imported session"
)

// normalizeTags trims, lowercases and de-duplicates tags in first-seen
// order, rejecting more than limit distinct tags.
func normalizeTags(op string, tags []string, limit int) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	if len(out) > limit {
		return nil, apperr.Validation(op, apperr.CodeTooManyTags, "tags", fmt.Sprintf("at most %d tags are allowed", limit))
	}
	return out, nil
}

func (s *Service) prepareInput(op string, in *models.ProjectInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return apperr.Validation(op, apperr.CodeSchemaViolation, "title", "title is required")
	}
	if in.Tool == "" {
		in.Tool = models.ToolOther
	}
	if !in.Tool.Valid() {
		return apperr.Validation(op, apperr.CodeSchemaViolation, "tool", fmt.Sprintf("unknown tool %q", in.Tool))
	}
	if in.Category == "" {
		in.Category = defaultCategory
	}
	if err := validateStepInputs(op, in.Steps); err != nil {
		return err
	}
	tags, err := normalizeTags(op, in.Tags, s.cfg.MaxTags)
	if err != nil {
		return err
	}
	in.Tags = tags
	return nil
}

// CreateProject creates a project with its steps and tags. Publishing
// approves the project as well. If the steps cannot be stored the project
// row is deleted again; a tag failure is logged and ignored.
func (s *Service) CreateProject(ctx context.Context, actorID string, in models.ProjectInput) (*models.ProjectRef, error) {
	return s.createProject(ctx, "services.create_project", actorID, in, models.ImportMethodManual)
}

func (s *Service) createProject(ctx context.Context, op, actorID string, in models.ProjectInput, method models.ImportMethod) (*models.ProjectRef, error) {
	if err := s.prepareInput(op, &in); err != nil {
		return nil, err
	}
	handle, err := s.resolveHandle(ctx, op, actorID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	project := &models.Project{
		ID:           s.idGen(),
		AuthorID:     actorID,
		Title:        in.Title,
		Description:  blankToNil(in.Description),
		Tool:         in.Tool,
		Category:     in.Category,
		Difficulty:   blankToNil(in.Difficulty),
		DemoURL:      blankToNil(in.DemoURL),
		IsPublished:  in.IsPublished,
		IsApproved:   in.IsPublished,
		ImportMethod: &method,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	steps := s.buildSteps(project.ID, in.Steps, 0)

	err = s.newSaga(op).
		add("insert project",
			func(ctx context.Context) error {
				return s.insertWithSlug(ctx, op, Slugify(in.Title), true, func(ctx context.Context, slug string) error {
					project.Slug = slug
					return s.repo.CreateProject(ctx, project)
				})
			},
			func(ctx context.Context) error { return s.repo.DeleteProject(ctx, project.ID) }).
		add("insert steps",
			func(ctx context.Context) error { return s.repo.InsertSteps(ctx, steps) }, nil).
		run(ctx)
	if err != nil {
		return nil, classify(op, err)
	}

	if err := s.repo.InsertTags(ctx, project.ID, in.Tags); err != nil {
		s.log.Warn("tag insert failed", "project_id", project.ID, "error", err)
	}

	s.log.Info("project created", "project_id", project.ID, "slug", project.Slug, "published", project.IsPublished)
	return &models.ProjectRef{ID: project.ID, Slug: project.Slug, ActorHandle: handle}, nil
}

// UpdateProject rewrites a project's fields, steps and tags. Only the
// author may update. Steps are replaced wholesale and renumbered 1..N.
func (s *Service) UpdateProject(ctx context.Context, actorID, projectID string, in models.ProjectInput) (*models.ProjectRef, error) {
	const op = "services.update_project"
	project, err := s.loadOwned(ctx, op, projectID, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.prepareInput(op, &in); err != nil {
		return nil, err
	}
	handle, err := s.resolveHandle(ctx, op, actorID)
	if err != nil {
		return nil, err
	}

	previous := *project
	project.Title = in.Title
	project.Description = blankToNil(in.Description)
	project.Tool = in.Tool
	project.Category = in.Category
	project.Difficulty = blankToNil(in.Difficulty)
	project.DemoURL = blankToNil(in.DemoURL)
	project.IsPublished = in.IsPublished
	project.IsApproved = in.IsPublished
	project.UpdatedAt = s.now()

	var stepsLost bool
	err = s.newSaga(op).
		add("update project",
			func(ctx context.Context) error {
				if err := s.repo.UpdateProject(ctx, project); err != nil {
					return storeErr(op, "project", err)
				}
				return nil
			},
			func(ctx context.Context) error {
				return s.restoreProject(ctx, previous, stepsLost)
			}).
		add("replace steps",
			func(ctx context.Context) error {
				err := s.replaceSteps(ctx, op, projectID, in.Steps)
				stepsLost = errors.Is(err, errStepsLost)
				return err
			}, nil).
		run(ctx)
	if err != nil {
		return nil, classify(op, err)
	}

	if err := s.repo.DeleteTags(ctx, projectID); err != nil {
		s.log.Warn("tag delete failed", "project_id", projectID, "error", err)
	} else if err := s.repo.InsertTags(ctx, projectID, in.Tags); err != nil {
		s.log.Warn("tag insert failed", "project_id", projectID, "error", err)
	}

	return &models.ProjectRef{ID: project.ID, Slug: project.Slug, ActorHandle: handle}, nil
}

// restoreProject puts back the row UpdateProject overwrote. A project whose
// steps were lost is restored unpublished so it never stays public without
// steps.
func (s *Service) restoreProject(ctx context.Context, previous models.Project, stepsLost bool) error {
	if stepsLost {
		previous.IsPublished = false
	}
	err := s.repo.UpdateProject(ctx, &previous)
	if err != nil && stepsLost {
		s.log.Error("project restore failed, unpublishing", "project_id", previous.ID, "error", err)
		if perr := s.repo.SetPublished(ctx, previous.ID, false); perr != nil {
			return errors.Join(err, perr)
		}
	}
	return err
}

// DeleteProject removes a project and everything under it. Only the author
// may delete. A deleted fork no longer counts toward its source.
func (s *Service) DeleteProject(ctx context.Context, actorID, projectID string) error {
	const op = "services.delete_project"
	project, err := s.loadOwned(ctx, op, projectID, actorID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProject(ctx, projectID); err != nil {
		return storeErr(op, "project", err)
	}
	if project.ForkedFromID != nil {
		s.syncRecount(ctx, *project.ForkedFromID, models.CounterForks)
	}
	s.log.Info("project deleted", "project_id", projectID)
	return nil
}

// ValidateExport runs the ingestion pipeline without touching storage.
func (s *Service) ValidateExport(raw string) ([]models.ExportedStep, error) {
	return ingest.Parse(raw)
}

// ImportSession validates a raw session export and either appends its steps
// to an owned project or creates a new draft from them.
func (s *Service) ImportSession(ctx context.Context, actorID string, in models.ImportInput) (*models.ImportResult, error) {
	const op = "services.import_session"
	exported, err := ingest.Parse(in.Raw)
	if err != nil {
		return nil, err
	}
	inputs := make([]models.StepInput, len(exported))
	for i, e := range exported {
		inputs[i] = e.StepInput()
	}

	if in.ProjectID != "" {
		project, err := s.loadOwned(ctx, op, in.ProjectID, actorID)
		if err != nil {
			return nil, err
		}
		handle, err := s.resolveHandle(ctx, op, actorID)
		if err != nil {
			return nil, err
		}
		total, err := s.appendSteps(ctx, op, project.ID, inputs)
		if err != nil {
			return nil, err
		}
		return &models.ImportResult{
			Project:    models.ProjectRef{ID: project.ID, Slug: project.Slug, ActorHandle: handle},
			Appended:   true,
			TotalSteps: total,
		}, nil
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = defaultImportTitle
	}
	ref, err := s.createProject(ctx, op, actorID, models.ProjectInput{
		Title:    title,
		Tool:     in.Tool,
		Category: in.Category,
		Steps:    inputs,
	}, models.ImportMethodSessionExport)
	if err != nil {
		return nil, err
	}
	return &models.ImportResult{Project: *ref, TotalSteps: len(inputs)}, nil
}
