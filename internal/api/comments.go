package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// CommentRequest is the body of POST /comments.
type CommentRequest struct {
	ProjectID       openapi_types.UUID  `json:"project_id"`
	Body            string              `json:"body"`
	ParentCommentID *openapi_types.UUID `json:"parent_comment_id,omitempty"`
}

// ListComments returns the comment tree of a project
// (GET /api/v1/projects/{id}/comments)
func (h *Handler) ListComments(c echo.Context, id openapi_types.UUID) error {
	threads, err := h.engine.ListComments(c.Request().Context(), optionalActorID(c), id.String())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, threads)
}

// AddComment posts a comment or reply
// (POST /api/v1/comments)
func (h *Handler) AddComment(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var req CommentRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	var parent *string
	if req.ParentCommentID != nil {
		p := req.ParentCommentID.String()
		parent = &p
	}
	comment, err := h.engine.AddComment(c.Request().Context(), actor, req.ProjectID.String(), req.Body, parent)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, comment)
}

// DeleteComment deletes a comment and its replies
// (DELETE /api/v1/comments/{id})
func (h *Handler) DeleteComment(c echo.Context, id openapi_types.UUID) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	if err := h.engine.DeleteComment(c.Request().Context(), actor, id.String()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// PinComment pins a comment on its project
// (POST /api/v1/comments/{id}/pin)
func (h *Handler) PinComment(c echo.Context, id openapi_types.UUID) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	if err := h.engine.PinComment(c.Request().Context(), actor, id.String()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// UnpinComment clears a comment's pin
// (POST /api/v1/comments/{id}/unpin)
func (h *Handler) UnpinComment(c echo.Context, id openapi_types.UUID) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	if err := h.engine.UnpinComment(c.Request().Context(), actor, id.String()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
