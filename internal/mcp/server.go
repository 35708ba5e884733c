// Package mcp exposes the content engine as Model Context Protocol tools so
// AI assistants can validate and import their own session exports.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/internal/auth"
	"promptflows/backend/internal/logging"
	"promptflows/backend/pkg/models"
)

// Engine is the subset of engine operations offered as tools.
type Engine interface {
	ValidateExport(raw string) ([]models.ExportedStep, error)
	ImportSession(ctx context.Context, actorID string, in models.ImportInput) (*models.ImportResult, error)
	ForkProject(ctx context.Context, sourceID, actorID string) (*models.ProjectRef, error)
	ToggleStar(ctx context.Context, actorID, projectID string) (*models.StarResult, error)
	ListComments(ctx context.Context, actorID, projectID string) ([]models.CommentThread, error)
}

type Server struct {
	mcpServer *server.MCPServer
	engine    Engine
	log       *logging.Logger
}

func NewServer(engine Engine, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		mcpServer: server.NewMCPServer(
			"PromptFlows",
			"1.0.0",
			server.WithToolCapabilities(false),
		),
		engine: engine,
		log:    logger,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"validate_export",
			mcp.WithDescription("Check a session export and return the steps it would import"),
			mcp.WithString("raw", mcp.Required(), mcp.Description("The JSON step array, optionally fenced or wrapped in an object")),
		),
		s.handleValidateExport,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"import_session",
			mcp.WithDescription("Import a session export as a new draft, or append it to one of your projects"),
			mcp.WithString("raw", mcp.Required(), mcp.Description("The JSON step array")),
			mcp.WithString("project_id", mcp.Description("Existing project to append to")),
			mcp.WithString("title", mcp.Description("Title of the new draft")),
			mcp.WithString("tool", mcp.Description("AI tool the session came from"), mcp.Enum(toolNames()...)),
			mcp.WithString("category", mcp.Description("Project category")),
		),
		s.handleImportSession,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"fork_project",
			mcp.WithDescription("Fork a published project into your own draft"),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("The project to fork")),
		),
		s.handleForkProject,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"toggle_star",
			mcp.WithDescription("Star a project, or remove your star"),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("The project to star")),
		),
		s.handleToggleStar,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_comments",
			mcp.WithDescription("List a project's comment threads, pinned first"),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("The project")),
		),
		s.handleListComments,
	)
}

func toolNames() []string {
	tools := models.Tools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = string(t)
	}
	return names
}

// toolError turns an engine error into a tool result the model can act on.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.KindInternal {
		s.log.Error("mcp tool failed", "tool", tool, "error", err)
		return mcp.NewToolResultError(tool + " failed: internal error")
	}
	msg := appErr.Error()
	if appErr.Code != "" {
		msg = appErr.Code + ": " + msg
	}
	if appErr.Field != "" {
		msg += " (field " + appErr.Field + ")"
	}
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return result, nil
}

func actorFrom(ctx context.Context) (string, *mcp.CallToolResult) {
	actor, ok := auth.ActorFrom(ctx)
	if !ok {
		return "", mcp.NewToolResultError("authentication required")
	}
	return actor.ID, nil
}

func (s *Server) handleValidateExport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("raw")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	steps, err := s.engine.ValidateExport(raw)
	if err != nil {
		return s.toolError("validate_export", err), nil
	}
	return jsonResult(map[string]any{"steps": steps})
}

func (s *Server) handleImportSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, denied := actorFrom(ctx)
	if denied != nil {
		return denied, nil
	}
	raw, err := request.RequireString("raw")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.engine.ImportSession(ctx, actorID, models.ImportInput{
		Raw:       raw,
		ProjectID: strings.TrimSpace(request.GetString("project_id", "")),
		Title:     request.GetString("title", ""),
		Tool:      models.Tool(request.GetString("tool", "")),
		Category:  request.GetString("category", ""),
	})
	if err != nil {
		return s.toolError("import_session", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleForkProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, denied := actorFrom(ctx)
	if denied != nil {
		return denied, nil
	}
	projectID, err := request.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ref, err := s.engine.ForkProject(ctx, projectID, actorID)
	if err != nil {
		return s.toolError("fork_project", err), nil
	}
	return jsonResult(ref)
}

func (s *Server) handleToggleStar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, denied := actorFrom(ctx)
	if denied != nil {
		return denied, nil
	}
	projectID, err := request.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.engine.ToggleStar(ctx, actorID, projectID)
	if err != nil {
		return s.toolError("toggle_star", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleListComments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	actor, _ := auth.ActorFrom(ctx)
	threads, err := s.engine.ListComments(ctx, actor.ID, projectID)
	if err != nil {
		return s.toolError("list_comments", err), nil
	}
	return jsonResult(threads)
}

// Handler returns a stateless streamable HTTP transport for the tools,
// served at basePath.
func (s *Server) Handler(basePath string) http.Handler {
	return server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath(basePath),
		server.WithStateLess(true),
	)
}
