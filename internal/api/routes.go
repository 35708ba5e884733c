package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// ServerInterface represents all server handlers under /api/v1.
type ServerInterface interface {
	// (POST /projects)
	CreateProject(ctx echo.Context) error
	// (PUT /projects/{id})
	UpdateProject(ctx echo.Context, id openapi_types.UUID) error
	// (DELETE /projects/{id})
	DeleteProject(ctx echo.Context, id openapi_types.UUID) error
	// (POST /projects/{id}/append-steps)
	AppendSteps(ctx echo.Context, id openapi_types.UUID) error
	// (POST /projects/{id}/recount)
	RecountProject(ctx echo.Context, id openapi_types.UUID) error
	// (GET /projects/{id}/stars)
	GetStarStatus(ctx echo.Context, id openapi_types.UUID) error
	// (GET /me/projects)
	ListMyProjects(ctx echo.Context) error
	// (GET /users/{username}/projects/{slug})
	GetProjectBySlug(ctx echo.Context, username, slug string) error
	// (GET /projects/{id}/comments)
	ListComments(ctx echo.Context, id openapi_types.UUID) error
	// (POST /projects/fork)
	ForkProject(ctx echo.Context) error
	// (POST /imports)
	ImportSession(ctx echo.Context) error
	// (POST /imports/validate)
	ValidateExport(ctx echo.Context) error
	// (POST /stars)
	ToggleStar(ctx echo.Context) error
	// (POST /comments)
	AddComment(ctx echo.Context) error
	// (DELETE /comments/{id})
	DeleteComment(ctx echo.Context, id openapi_types.UUID) error
	// (POST /comments/{id}/pin)
	PinComment(ctx echo.Context, id openapi_types.UUID) error
	// (POST /comments/{id}/unpin)
	UnpinComment(ctx echo.Context, id openapi_types.UUID) error
}

// ServerInterfaceWrapper converts echo contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

// withID binds the {id} path parameter before calling next.
func (w *ServerInterfaceWrapper) withID(next func(echo.Context, openapi_types.UUID) error) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var id openapi_types.UUID
		err := runtime.BindStyledParameterWithOptions("simple", "id", ctx.Param("id"), &id,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter id: %s", err))
		}
		return next(ctx, id)
	}
}

// withUserSlug binds the {username} and {slug} path parameters before
// calling next.
func (w *ServerInterfaceWrapper) withUserSlug(next func(echo.Context, string, string) error) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		opts := runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true}
		var username, slug string
		if err := runtime.BindStyledParameterWithOptions("simple", "username", ctx.Param("username"), &username, opts); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter username: %s", err))
		}
		if err := runtime.BindStyledParameterWithOptions("simple", "slug", ctx.Param("slug"), &slug, opts); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter slug: %s", err))
		}
		return next(ctx, username, slug)
	}
}

// EchoRouter is the subset of echo routing used here; both *echo.Echo and
// *echo.Group satisfy it.
type EchoRouter interface {
	DELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	PUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// RegisterHandlers adds each server route to the EchoRouter.
func RegisterHandlers(router EchoRouter, si ServerInterface) {
	w := &ServerInterfaceWrapper{Handler: si}

	router.POST("/projects", si.CreateProject)
	router.POST("/projects/fork", si.ForkProject)
	router.PUT("/projects/:id", w.withID(si.UpdateProject))
	router.DELETE("/projects/:id", w.withID(si.DeleteProject))
	router.POST("/projects/:id/append-steps", w.withID(si.AppendSteps))
	router.POST("/projects/:id/recount", w.withID(si.RecountProject))
	router.GET("/projects/:id/stars", w.withID(si.GetStarStatus))
	router.GET("/projects/:id/comments", w.withID(si.ListComments))
	router.GET("/me/projects", si.ListMyProjects)
	router.GET("/users/:username/projects/:slug", w.withUserSlug(si.GetProjectBySlug))
	router.POST("/imports", si.ImportSession)
	router.POST("/imports/validate", si.ValidateExport)
	router.POST("/stars", si.ToggleStar)
	router.POST("/comments", si.AddComment)
	router.DELETE("/comments/:id", w.withID(si.DeleteComment))
	router.POST("/comments/:id/pin", w.withID(si.PinComment))
	router.POST("/comments/:id/unpin", w.withID(si.UnpinComment))
}
