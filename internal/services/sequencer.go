package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/pkg/models"
)

// Normalize returns a copy of steps renumbered 1..N by array position.
func Normalize(steps []models.StepInput) []models.StepInput {
	out := slices.Clone(steps)
	for i := range out {
		out[i].StepOrder = i + 1
	}
	return out
}

// MoveUp swaps step i with its predecessor and renumbers.
func MoveUp(steps []models.StepInput, i int) []models.StepInput {
	out := slices.Clone(steps)
	if i > 0 && i < len(out) {
		out[i-1], out[i] = out[i], out[i-1]
	}
	return Normalize(out)
}

// MoveDown swaps step i with its successor and renumbers.
func MoveDown(steps []models.StepInput, i int) []models.StepInput {
	out := slices.Clone(steps)
	if i >= 0 && i < len(out)-1 {
		out[i], out[i+1] = out[i+1], out[i]
	}
	return Normalize(out)
}

// Remove drops step i and renumbers.
func Remove(steps []models.StepInput, i int) []models.StepInput {
	if i < 0 || i >= len(steps) {
		return Normalize(steps)
	}
	return Normalize(slices.Delete(slices.Clone(steps), i, i+1))
}

// validateStepInputs checks the per-row constraints the store enforces so
// a bad payload fails before any write.
func validateStepInputs(op string, steps []models.StepInput) error {
	if len(steps) == 0 {
		return apperr.Validation(op, apperr.CodeNoSteps, "steps", "at least one step is required")
	}
	for i, st := range steps {
		if strings.TrimSpace(st.Title) == "" {
			return apperr.Validation(op, apperr.CodeSchemaViolation, fieldPath(i, "title"), "step title is required")
		}
	}
	return nil
}

// buildSteps turns inputs into rows numbered from start+1 by array
// position. The inputs' own StepOrder is ignored.
func (s *Service) buildSteps(projectID string, inputs []models.StepInput, start int) []models.PromptStep {
	now := s.now()
	rows := make([]models.PromptStep, len(inputs))
	for i, in := range inputs {
		var mode *models.ContextMode
		if in.ContextMode != nil {
			mode = models.ParseContextMode(*in.ContextMode)
		}
		rows[i] = models.PromptStep{
			ID:          s.idGen(),
			ProjectID:   projectID,
			StepOrder:   start + i + 1,
			Title:       in.Title,
			PromptText:  in.PromptText,
			ContextMode: mode,
			OutputNotes: blankToNil(in.OutputNotes),
			Tips:        blankToNil(in.Tips),
			ForkNote:    blankToNil(in.ForkNote),
			CreatedAt:   now,
		}
	}
	return rows
}

// errStepsLost marks a replaceSteps failure that also failed to put the
// previous steps back.
var errStepsLost = errors.New("previous steps could not be restored")

// replaceSteps deletes the project's steps and inserts inputs as 1..N. If
// the insert fails the previous rows are put back; if that fails too the
// returned error wraps errStepsLost.
func (s *Service) replaceSteps(ctx context.Context, op, projectID string, inputs []models.StepInput) error {
	previous, err := s.repo.ListSteps(ctx, projectID)
	if err != nil {
		return apperr.Internal(op, err)
	}
	if err := s.repo.DeleteSteps(ctx, projectID); err != nil {
		return apperr.Internal(op, err)
	}
	if err := s.repo.InsertSteps(ctx, s.buildSteps(projectID, inputs, 0)); err != nil {
		s.log.Warn("step replace failed, restoring previous steps", "project_id", projectID, "error", err)
		if rerr := s.repo.InsertSteps(context.WithoutCancel(ctx), previous); rerr != nil {
			s.log.Error("step restore failed", "project_id", projectID, "error", rerr)
			return apperr.Internal(op, fmt.Errorf("%w: %w", err, errStepsLost))
		}
		return apperr.Internal(op, err)
	}
	return nil
}

// AppendSteps adds steps after the project's current last step and returns
// the new total. Two concurrent appends on one project can both read the
// same maximum and produce duplicate orders.
func (s *Service) AppendSteps(ctx context.Context, actorID, projectID string, inputs []models.StepInput) (int, error) {
	const op = "services.append_steps"
	if _, err := s.loadOwned(ctx, op, projectID, actorID); err != nil {
		return 0, err
	}
	return s.appendSteps(ctx, op, projectID, inputs)
}

func (s *Service) appendSteps(ctx context.Context, op, projectID string, inputs []models.StepInput) (int, error) {
	if err := validateStepInputs(op, inputs); err != nil {
		return 0, err
	}
	highest, err := s.repo.MaxStepOrder(ctx, projectID)
	if err != nil {
		return 0, apperr.Internal(op, err)
	}
	if err := s.repo.InsertSteps(ctx, s.buildSteps(projectID, inputs, highest)); err != nil {
		return 0, apperr.Internal(op, err)
	}
	if err := s.repo.TouchProject(ctx, projectID, s.now()); err != nil {
		s.log.Warn("touch project failed", "project_id", projectID, "error", err)
	}

	total, err := s.repo.CountSteps(ctx, projectID)
	if err != nil {
		s.log.Warn("step count failed after append", "project_id", projectID, "error", err)
		return highest + len(inputs), nil
	}
	return total, nil
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func fieldPath(i int, field string) string {
	return "steps." + strconv.Itoa(i) + "." + field
}
