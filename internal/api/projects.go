package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"promptflows/backend/pkg/models"
)

// ForkRequest is the body of POST /projects/fork.
type ForkRequest struct {
	ProjectID openapi_types.UUID `json:"project_id"`
}

// AppendStepsRequest is the body of POST /projects/{id}/append-steps.
type AppendStepsRequest struct {
	Steps []models.ExportedStep `json:"steps"`
}

// AppendStepsResponse reports the project's step count after an append.
type AppendStepsResponse struct {
	Success    bool `json:"success"`
	TotalSteps int  `json:"total_steps"`
}

// ValidateRequest is the body of POST /imports/validate.
type ValidateRequest struct {
	Raw string `json:"raw"`
}

// ValidateResponse lists the steps a raw export would produce.
type ValidateResponse struct {
	Steps []models.ExportedStep `json:"steps"`
}

// StarRequest is the body of POST /stars.
type StarRequest struct {
	ProjectID openapi_types.UUID `json:"project_id"`
}

func bindBody(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return nil
}

// CreateProject creates a project
// (POST /api/v1/projects)
func (h *Handler) CreateProject(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var in models.ProjectInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	ref, err := h.engine.CreateProject(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ref)
}

// UpdateProject replaces a project's content
// (PUT /api/v1/projects/{id})
func (h *Handler) UpdateProject(c echo.Context, id openapi_types.UUID) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var in models.ProjectInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	ref, err := h.engine.UpdateProject(c.Request().Context(), actor, id.String(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ref)
}

// DeleteProject deletes a project and its children
// (DELETE /api/v1/projects/{id})
func (h *Handler) DeleteProject(c echo.Context, id openapi_types.UUID) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	if err := h.engine.DeleteProject(c.Request().Context(), actor, id.String()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// AppendSteps appends already-validated exported steps
// (POST /api/v1/projects/{id}/append-steps)
func (h *Handler) AppendSteps(c echo.Context, id openapi_types.UUID) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var req AppendStepsRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	inputs := make([]models.StepInput, len(req.Steps))
	for i, st := range req.Steps {
		inputs[i] = st.StepInput()
	}
	total, err := h.engine.AppendSteps(c.Request().Context(), actor, id.String(), inputs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AppendStepsResponse{Success: true, TotalSteps: total})
}

// RecountProject recomputes a project's counters
// (POST /api/v1/projects/{id}/recount)
func (h *Handler) RecountProject(c echo.Context, id openapi_types.UUID) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	counters, err := h.engine.RecountOwned(c.Request().Context(), actor, id.String())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, counters)
}

// ForkProject forks a published project
// (POST /api/v1/projects/fork)
func (h *Handler) ForkProject(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var req ForkRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ref, err := h.engine.ForkProject(c.Request().Context(), req.ProjectID.String(), actor)
	if err != nil {
		return err
	}
	h.log.Info("fork created", "source_id", req.ProjectID.String(), "fork_id", ref.ID)
	return c.JSON(http.StatusCreated, ref)
}

// ImportSession imports a raw session export
// (POST /api/v1/imports)
func (h *Handler) ImportSession(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var in models.ImportInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	res, err := h.engine.ImportSession(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if res.Appended {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

// ValidateExport dry-runs the ingestion pipeline
// (POST /api/v1/imports/validate)
func (h *Handler) ValidateExport(c echo.Context) error {
	var req ValidateRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	steps, err := h.engine.ValidateExport(req.Raw)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ValidateResponse{Steps: steps})
}

// ToggleStar stars or unstars a project
// (POST /api/v1/stars)
func (h *Handler) ToggleStar(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var req StarRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	res, err := h.engine.ToggleStar(c.Request().Context(), actor, req.ProjectID.String())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// GetStarStatus reports whether the caller starred a project and its live
// star count
// (GET /api/v1/projects/{id}/stars)
func (h *Handler) GetStarStatus(c echo.Context, id openapi_types.UUID) error {
	ctx, actor := c.Request().Context(), optionalActorID(c)
	starred, err := h.engine.IsStarred(ctx, actor, id.String())
	if err != nil {
		return err
	}
	count, err := h.engine.StarCount(ctx, actor, id.String())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.StarStatus{Starred: starred, Count: count})
}

// ListMyProjects lists the caller's projects, drafts included
// (GET /api/v1/me/projects)
func (h *Handler) ListMyProjects(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	list, err := h.engine.ListUserProjects(c.Request().Context(), actor, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// GetProjectBySlug returns a project's detail view
// (GET /api/v1/users/{username}/projects/{slug})
func (h *Handler) GetProjectBySlug(c echo.Context, username, slug string) error {
	detail, err := h.engine.GetProjectBySlug(c.Request().Context(), optionalActorID(c), username, slug)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}
