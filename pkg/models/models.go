// Package models defines the domain models for the prompt workflow service
package models

import (
	"slices"
	"time"
)

// Tool identifies the AI tool a workflow was built with
type Tool string

const (
	ToolCursor   Tool = "cursor"
	ToolWindsurf Tool = "windsurf"
	ToolBolt     Tool = "bolt"
	ToolLovable  Tool = "lovable"
	ToolClaude   Tool = "claude"
	ToolReplit   Tool = "replit"
	ToolOther    Tool = "other"
)

// Tools lists every known tool.
func Tools() []Tool {
	return []Tool{ToolCursor, ToolWindsurf, ToolBolt, ToolLovable, ToolClaude, ToolReplit, ToolOther}
}

// Valid reports whether t is a known tool.
func (t Tool) Valid() bool {
	return slices.Contains(Tools(), t)
}

// ImportMethod records how a project's steps were first produced
type ImportMethod string

const (
	ImportMethodManual        ImportMethod = "manual"
	ImportMethodSessionExport ImportMethod = "session_export"
)

// Project represents a published or draft prompt workflow
type Project struct {
	ID           string        `json:"id" db:"id"`
	AuthorID     string        `json:"author_id" db:"author_id"`
	Title        string        `json:"title" db:"title"`
	Slug         string        `json:"slug" db:"slug"`
	Description  *string       `json:"description,omitempty" db:"description"`
	Tool         Tool          `json:"tool" db:"tool"`
	Category     string        `json:"category" db:"category"`
	Difficulty   *string       `json:"difficulty,omitempty" db:"difficulty"`
	DemoURL      *string       `json:"demo_url,omitempty" db:"demo_url"`
	IsPublished  bool          `json:"is_published" db:"is_published"`
	IsApproved   bool          `json:"is_approved" db:"is_approved"`
	ForkedFromID *string       `json:"forked_from_id,omitempty" db:"forked_from_id"`
	InspiredByID *string       `json:"inspired_by_id,omitempty" db:"inspired_by_id"`
	ImportMethod *ImportMethod `json:"import_method,omitempty" db:"import_method"`

	// Denormalized counters
	StarCount    int `json:"star_count" db:"star_count"`
	ForkCount    int `json:"fork_count" db:"fork_count"`
	CommentCount int `json:"comment_count" db:"comment_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Visible reports whether the project is listed publicly and may be forked
func (p *Project) Visible() bool {
	return p.IsPublished && p.IsApproved
}

// ProjectInput is the editable content of a project, used by create and
// update. Steps are persisted in array order.
type ProjectInput struct {
	Title       string      `json:"title"`
	Description *string     `json:"description,omitempty"`
	Tool        Tool        `json:"tool"`
	Category    string      `json:"category"`
	Difficulty  *string     `json:"difficulty,omitempty"`
	DemoURL     *string     `json:"demo_url,omitempty"`
	Tags        []string    `json:"tags"`
	Steps       []StepInput `json:"steps"`
	IsPublished bool        `json:"is_published"`
}

// ImportInput carries a raw session export. With ProjectID set the steps are
// appended to that project; otherwise a new draft is created from the
// remaining fields.
type ImportInput struct {
	Raw       string `json:"raw"`
	ProjectID string `json:"project_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Tool      Tool   `json:"tool,omitempty"`
	Category  string `json:"category,omitempty"`
}

// ImportResult reports where imported steps landed.
type ImportResult struct {
	Project    ProjectRef `json:"project"`
	Appended   bool       `json:"appended"`
	TotalSteps int        `json:"total_steps"`
}

// StarResult is the outcome of a star toggle.
type StarResult struct {
	Starred bool `json:"starred"`
	Count   int  `json:"count"`
}

// Counters holds the three denormalized aggregates of a project
type Counters struct {
	StarCount    int `json:"star_count"`
	ForkCount    int `json:"fork_count"`
	CommentCount int `json:"comment_count"`
}

// CounterField names one denormalized counter column
type CounterField string

const (
	CounterStars    CounterField = "star_count"
	CounterForks    CounterField = "fork_count"
	CounterComments CounterField = "comment_count"
)

// Tag is a (project, tag_name) pair
type Tag struct {
	ProjectID string `json:"project_id" db:"project_id"`
	Name      string `json:"tag_name" db:"tag_name"`
}

// Star marks a user's star on a project
type Star struct {
	UserID    string    `json:"user_id" db:"user_id"`
	ProjectID string    `json:"project_id" db:"project_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Profile is the public identity of an actor
type Profile struct {
	ID          string    `json:"id" db:"id"`
	Username    string    `json:"username" db:"username"`
	DisplayName *string   `json:"display_name,omitempty" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ProjectRef is the result of create, update, import and fork operations
type ProjectRef struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	ActorHandle string `json:"actorHandle"`
}

// ProjectLink names a project another project descends from
type ProjectLink struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Slug           string `json:"slug"`
	AuthorUsername string `json:"author_username"`
}

// ProjectDetail is a project with its author, ordered steps, tags and
// lineage links
type ProjectDetail struct {
	Project
	AuthorUsername string       `json:"author_username"`
	Steps          []PromptStep `json:"steps"`
	Tags           []string     `json:"tags"`
	ForkedFrom     *ProjectLink `json:"forked_from"`
	InspiredBy     *ProjectLink `json:"inspired_by"`
}

// ProjectSummary is one row of an author's project list
type ProjectSummary struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Slug        string    `json:"slug" db:"slug"`
	IsPublished bool      `json:"is_published" db:"is_published"`
	IsApproved  bool      `json:"is_approved" db:"is_approved"`
	StepCount   int       `json:"step_count" db:"step_count"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// StarStatus is the caller's star state and the live star count
type StarStatus struct {
	Starred bool `json:"starred"`
	Count   int  `json:"count"`
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProblemDetails represents RFC 7807 Problem Details
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
	Field    string `json:"field,omitempty"`
}
