// Package api contains the HTTP handlers for the prompt workflow service
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/internal/auth"
	"promptflows/backend/internal/logging"
	"promptflows/backend/pkg/models"
)

const (
	serviceName    = "promptflows"
	serviceVersion = "1.0.0"
)

// Engine is the set of consistency-engine operations the REST surface
// exposes. *services.Service implements it.
type Engine interface {
	CreateProject(ctx context.Context, actorID string, in models.ProjectInput) (*models.ProjectRef, error)
	UpdateProject(ctx context.Context, actorID, projectID string, in models.ProjectInput) (*models.ProjectRef, error)
	DeleteProject(ctx context.Context, actorID, projectID string) error
	AppendSteps(ctx context.Context, actorID, projectID string, inputs []models.StepInput) (int, error)
	RecountOwned(ctx context.Context, actorID, projectID string) (models.Counters, error)
	ForkProject(ctx context.Context, sourceID, actorID string) (*models.ProjectRef, error)
	ImportSession(ctx context.Context, actorID string, in models.ImportInput) (*models.ImportResult, error)
	ValidateExport(raw string) ([]models.ExportedStep, error)
	ToggleStar(ctx context.Context, actorID, projectID string) (*models.StarResult, error)
	ListComments(ctx context.Context, actorID, projectID string) ([]models.CommentThread, error)
	GetProjectBySlug(ctx context.Context, actorID, username, slug string) (*models.ProjectDetail, error)
	ListUserProjects(ctx context.Context, actorID, authorID string) ([]models.ProjectSummary, error)
	IsStarred(ctx context.Context, actorID, projectID string) (bool, error)
	StarCount(ctx context.Context, actorID, projectID string) (int, error)
	AddComment(ctx context.Context, actorID, projectID, body string, parentID *string) (*models.Comment, error)
	DeleteComment(ctx context.Context, actorID, commentID string) error
	PinComment(ctx context.Context, actorID, commentID string) error
	UnpinComment(ctx context.Context, actorID, commentID string) error
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers for the REST API
type Handler struct {
	engine Engine
	db     Pinger
	log    *logging.Logger
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(engine Engine, db Pinger, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{engine: engine, db: db, log: logger}
}

// HandleHealth reports service and storage health. It answers 200 even when
// storage is down so load balancers can tell the process is alive.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   serviceName,
		Version:   serviceVersion,
		Checks:    map[string]string{"database": "ok"},
	}
	if h.db != nil {
		if err := h.db.Ping(c.Request().Context()); err != nil {
			status.Status = "degraded"
			status.Checks["database"] = err.Error()
		}
	}
	return c.JSON(http.StatusOK, status)
}

// actorID returns the authenticated actor of the request.
func actorID(c echo.Context) (string, error) {
	actor, ok := auth.ActorFrom(c.Request().Context())
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return actor.ID, nil
}

// optionalActorID returns the caller's id, or "" for anonymous reads.
func optionalActorID(c echo.Context) string {
	actor, _ := auth.ActorFrom(c.Request().Context())
	return actor.ID
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every handler error as RFC 7807 Problem Details.
func ErrorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		problem := models.ProblemDetails{
			Type:     "about:blank",
			Instance: c.Request().URL.Path,
		}
		var (
			httpErr *echo.HTTPError
			appErr  *apperr.Error
		)
		switch {
		case errors.As(err, &appErr):
			problem.Status = statusFor(appErr.Kind)
			problem.Code = appErr.Code
			problem.Field = appErr.Field
			problem.Detail = appErr.Error()
		case errors.As(err, &httpErr):
			problem.Status = httpErr.Code
			if msg, ok := httpErr.Message.(string); ok {
				problem.Detail = msg
			}
		default:
			problem.Status = http.StatusInternalServerError
		}
		problem.Title = http.StatusText(problem.Status)

		if problem.Status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", c.Request().URL.Path, "method", c.Request().Method, "error", err)
			// Storage details stay in the log.
			problem.Detail = "internal error"
			if problem.Code != "" {
				problem.Detail = problem.Code
			}
		}

		if writeErr := writeProblem(c, problem); writeErr != nil {
			logger.Error("failed to write problem response", "error", writeErr)
		}
	}
}

// writeProblem writes an RFC 7807 Problem Details JSON error response
func writeProblem(c echo.Context, problem models.ProblemDetails) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(problem.Status)
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	c.Response().WriteHeader(problem.Status)
	return json.NewEncoder(c.Response()).Encode(problem)
}
