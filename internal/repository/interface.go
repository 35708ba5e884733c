package repository

import (
	"context"
	"errors"
	"time"

	"promptflows/backend/pkg/models"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// ProjectStore persists project rows. DeleteProject cascades to steps, tags,
// stars and comments.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error)
	// ListProjectsByAuthor returns the author's projects, most recently
	// updated first, with their step counts.
	ListProjectsByAuthor(ctx context.Context, authorID string) ([]models.ProjectSummary, error)
	UpdateProject(ctx context.Context, project *models.Project) error
	SetPublished(ctx context.Context, id string, published bool) error
	TouchProject(ctx context.Context, id string, at time.Time) error
	DeleteProject(ctx context.Context, id string) error
	SlugExists(ctx context.Context, slug string) (bool, error)
	ListProjectIDs(ctx context.Context) ([]string, error)
}

// StepStore persists prompt steps. InsertSteps is all-or-nothing for the
// batch it is given.
type StepStore interface {
	ListSteps(ctx context.Context, projectID string) ([]models.PromptStep, error)
	InsertSteps(ctx context.Context, steps []models.PromptStep) error
	DeleteSteps(ctx context.Context, projectID string) error
	MaxStepOrder(ctx context.Context, projectID string) (int, error)
	CountSteps(ctx context.Context, projectID string) (int, error)
}

// TagStore persists project tags.
type TagStore interface {
	ListTags(ctx context.Context, projectID string) ([]string, error)
	InsertTags(ctx context.Context, projectID string, tags []string) error
	DeleteTags(ctx context.Context, projectID string) error
}

// StarStore persists (user, project) star pairs.
type StarStore interface {
	HasStar(ctx context.Context, userID, projectID string) (bool, error)
	InsertStar(ctx context.Context, star *models.Star) error
	DeleteStar(ctx context.Context, userID, projectID string) error
}

// CommentStore persists comments. DeleteComment cascades to replies.
type CommentStore interface {
	InsertComment(ctx context.Context, comment *models.Comment) error
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	ListComments(ctx context.Context, projectID string) ([]models.Comment, error)
	DeleteComment(ctx context.Context, id string) error
	UnpinAll(ctx context.Context, projectID string) error
	SetPinned(ctx context.Context, id string, pinned bool) error
}

// ProfileStore resolves actor handles.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	CreateProfile(ctx context.Context, profile *models.Profile) error
}

// CounterStore is the elevated-privilege path for denormalized counters. It
// writes project counters regardless of row ownership.
type CounterStore interface {
	GetCounters(ctx context.Context, projectID string) (models.Counters, error)
	SetCounter(ctx context.Context, projectID string, field models.CounterField, value int) error
	// AddCounter applies delta in one statement, flooring at zero, and
	// returns the new value.
	AddCounter(ctx context.Context, projectID string, field models.CounterField, delta int) (int, error)
	CountStars(ctx context.Context, projectID string) (int, error)
	CountForks(ctx context.Context, projectID string) (int, error)
	CountComments(ctx context.Context, projectID string) (int, error)
}

// Repository is the full storage collaborator used by the services.
type Repository interface {
	ProjectStore
	StepStore
	TagStore
	StarStore
	CommentStore
	ProfileStore
	Ping(ctx context.Context) error
}
