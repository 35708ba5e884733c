package models

import (
	"slices"
	"time"
)

// ContextMode tags how a prompt was delivered to the tool
type ContextMode string

const (
	ContextModeInline     ContextMode = "inline"
	ContextModeComposer   ContextMode = "composer"
	ContextModeCursorRule ContextMode = "cursor_rule"
	ContextModeTerminal   ContextMode = "terminal"
	ContextModeChat       ContextMode = "chat"
	ContextModeCascade    ContextMode = "cascade"
)

var contextModes = []ContextMode{
	ContextModeInline,
	ContextModeComposer,
	ContextModeCursorRule,
	ContextModeTerminal,
	ContextModeChat,
	ContextModeCascade,
}

// ParseContextMode returns the mode for s, or nil when s is not a known mode.
func ParseContextMode(s string) *ContextMode {
	m := ContextMode(s)
	if !slices.Contains(contextModes, m) {
		return nil
	}
	return &m
}

// PromptStep is one ordered unit of a project
type PromptStep struct {
	ID          string       `json:"id" db:"id"`
	ProjectID   string       `json:"project_id" db:"project_id"`
	StepOrder   int          `json:"step_order" db:"step_order"`
	Title       string       `json:"title" db:"title"`
	PromptText  string       `json:"prompt_text" db:"prompt_text"`
	ContextMode *ContextMode `json:"context_mode,omitempty" db:"context_mode"`
	OutputNotes *string      `json:"output_notes,omitempty" db:"output_notes"`
	Tips        *string      `json:"tips,omitempty" db:"tips"`
	ForkNote    *string      `json:"fork_note,omitempty" db:"fork_note"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// StepInput is a caller-supplied step payload. StepOrder is display-only and
// never used to order persisted rows.
type StepInput struct {
	StepOrder   int     `json:"step_order"`
	Title       string  `json:"title"`
	PromptText  string  `json:"prompt_text"`
	ContextMode *string `json:"context_mode,omitempty"`
	OutputNotes *string `json:"output_notes,omitempty"`
	Tips        *string `json:"tips,omitempty"`
	ForkNote    *string `json:"fork_note,omitempty"`
}

// ExportedStep is one validated step produced by an external AI tool export
type ExportedStep struct {
	StepOrder     int    `json:"step_order"`
	Title         string `json:"title"`
	PromptText    string `json:"prompt_text"`
	ContextMode   string `json:"context_mode"`
	OutputSummary string `json:"output_summary"`
	Tips          string `json:"tips"`
}

// StepInput converts an exported step into an editable step payload.
func (e ExportedStep) StepInput() StepInput {
	mode := e.ContextMode
	return StepInput{
		StepOrder:   e.StepOrder,
		Title:       e.Title,
		PromptText:  e.PromptText,
		ContextMode: &mode,
		OutputNotes: nonEmpty(e.OutputSummary),
		Tips:        nonEmpty(e.Tips),
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
