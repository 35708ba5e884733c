package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/pkg/models"
)

// field describes one member of the exported step schema.
type field struct {
	name     string
	optional bool
	check    func(raw json.RawMessage, step *models.ExportedStep) string
}

// stepSchema is checked in declaration order; the first violation wins.
var stepSchema = []field{
	{name: "step_order", check: checkStepOrder},
	{name: "title", check: stringField(1, func(s *models.ExportedStep, v string) { s.Title = v })},
	{name: "prompt_text", check: stringField(0, func(s *models.ExportedStep, v string) { s.PromptText = v })},
	{name: "context_mode", check: stringField(0, func(s *models.ExportedStep, v string) { s.ContextMode = v })},
	{name: "output_summary", check: stringField(0, func(s *models.ExportedStep, v string) { s.OutputSummary = v })},
	{name: "tips", optional: true, check: stringField(0, func(s *models.ExportedStep, v string) { s.Tips = v })},
}

func validateSteps(elems []json.RawMessage) ([]models.ExportedStep, error) {
	steps := make([]models.ExportedStep, 0, len(elems))
	for i, elem := range elems {
		step, err := validateStep(i, elem)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func validateStep(index int, elem json.RawMessage) (models.ExportedStep, error) {
	var step models.ExportedStep

	if got := kindOf(elem); got != "object" {
		return step, violation(strconv.Itoa(index), fmt.Sprintf("expected object, received %s", got))
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(elem, &members); err != nil {
		return step, violation(strconv.Itoa(index), err.Error())
	}

	for _, f := range stepSchema {
		path := fmt.Sprintf("%d.%s", index, f.name)
		raw, ok := members[f.name]
		if !ok {
			if f.optional {
				continue
			}
			return step, violation(path, "required")
		}
		if msg := f.check(raw, &step); msg != "" {
			return step, violation(path, msg)
		}
	}
	return step, nil
}

func checkStepOrder(raw json.RawMessage, step *models.ExportedStep) string {
	if got := kindOf(raw); got != "number" {
		return fmt.Sprintf("expected number, received %s", got)
	}
	n, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsInf(n, 0) || n != math.Trunc(n) {
		return "expected integer, received float"
	}
	if n < 1 {
		return "number must be greater than or equal to 1"
	}
	// Exported orders only rank steps; storage renumbers them densely.
	step.StepOrder = math.MaxInt
	if n < math.MaxInt {
		step.StepOrder = int(n)
	}
	return ""
}

func stringField(minLen int, set func(*models.ExportedStep, string)) func(json.RawMessage, *models.ExportedStep) string {
	return func(raw json.RawMessage, step *models.ExportedStep) string {
		if got := kindOf(raw); got != "string" {
			return fmt.Sprintf("expected string, received %s", got)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err.Error()
		}
		if len([]rune(s)) < minLen {
			return fmt.Sprintf("string must contain at least %d character(s)", minLen)
		}
		set(step, s)
		return ""
	}
}

func violation(path, msg string) error {
	return apperr.Validation(op, apperr.CodeSchemaViolation, path, fmt.Sprintf("at %s: %s", path, msg))
}
