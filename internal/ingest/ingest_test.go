package ingest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/pkg/models"
)

const wellFormed = `[
  {"step_order": 1, "title": "Scaffold", "prompt_text": "create a next app", "context_mode": "composer", "output_summary": "a new app", "tips": ""},
  {"step_order": 2, "title": "Auth", "prompt_text": "add login", "context_mode": "inline", "output_summary": "login page", "tips": "had to retry once"}
]`

func TestParseConcreteScenario(t *testing.T) {
	input := "```json\n[{\"step_order\":1,\"title\":\"Init\",\"prompt_text\":\"do X\",\"context_mode\":\"chat\",\"output_summary\":\"did X\"}]\n```"

	steps, err := Parse(input)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.ExportedStep{
		StepOrder:     1,
		Title:         "Init",
		PromptText:    "do X",
		ContextMode:   "chat",
		OutputSummary: "did X",
		Tips:          "",
	}, steps[0])
}

func TestParseFailureCodes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
		field string
	}{
		{"empty", "", apperr.CodeEmptyInput, ""},
		{"whitespace only", " \n\t ", apperr.CodeEmptyInput, ""},
		{"not json", "not json", apperr.CodeMalformedJSON, ""},
		{"truncated", `[{"step_order": 1,`, apperr.CodeMalformedJSON, ""},
		{"prose after fence", "```json\n[]\n```\nHope this helps!", apperr.CodeMalformedJSON, ""},
		{"object without array", `{}`, apperr.CodeNotAnArray, ""},
		{"object with scalars only", `{"steps": "none", "count": 0}`, apperr.CodeNotAnArray, ""},
		{"bare string", `"steps"`, apperr.CodeNotAnArray, ""},
		{"empty array", `[]`, apperr.CodeEmptyArray, ""},
		{"wrapped empty array", `{"steps": []}`, apperr.CodeEmptyArray, ""},
		{"element not an object", `[1]`, apperr.CodeSchemaViolation, "0"},
		{"missing title", `[{"step_order":1,"prompt_text":"","context_mode":"","output_summary":""}]`, apperr.CodeSchemaViolation, "0.title"},
		{"empty title", `[{"step_order":1,"title":"","prompt_text":"","context_mode":"","output_summary":""}]`, apperr.CodeSchemaViolation, "0.title"},
		{"zero order", `[{"step_order":0,"title":"a","prompt_text":"","context_mode":"","output_summary":""}]`, apperr.CodeSchemaViolation, "0.step_order"},
		{"fractional order", `[{"step_order":1.5,"title":"a","prompt_text":"","context_mode":"","output_summary":""}]`, apperr.CodeSchemaViolation, "0.step_order"},
		{"string order", `[{"step_order":"1","title":"a","prompt_text":"","context_mode":"","output_summary":""}]`, apperr.CodeSchemaViolation, "0.step_order"},
		{"null tips", `[{"step_order":1,"title":"a","prompt_text":"","context_mode":"","output_summary":"","tips":null}]`, apperr.CodeSchemaViolation, "0.tips"},
		{"second element bad", `[{"step_order":1,"title":"a","prompt_text":"","context_mode":"","output_summary":""},{"step_order":2,"title":"b","prompt_text":"","context_mode":"","output_summary":5}]`, apperr.CodeSchemaViolation, "1.output_summary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := Parse(tt.input)
			require.Error(t, err)
			assert.Nil(t, steps)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tt.code, apperr.CodeOf(err))
			assert.Equal(t, tt.field, apperr.FieldOf(err))
		})
	}
}

func TestParseReportsFirstViolationOnly(t *testing.T) {
	_, err := Parse(`[{"title": "", "prompt_text": 3}]`)
	require.Error(t, err)
	assert.Equal(t, "0.step_order", apperr.FieldOf(err))
	assert.Contains(t, err.Error(), "required")
}

func TestParseEquivalentShapes(t *testing.T) {
	want, err := Parse(wellFormed)
	require.NoError(t, err)
	require.Len(t, want, 2)

	shapes := map[string]string{
		"object envelope":       `{"steps": ` + wellFormed + `}`,
		"arbitrary key":         `{"prompts_v2": ` + wellFormed + `}`,
		"envelope with scalars": `{"tool": "cursor", "count": 2, "items": ` + wellFormed + `, "other": []}`,
		"json fence":            "```json\n" + wellFormed + "\n```",
		"bare fence":            "```\n" + wellFormed + "\n```",
		"uppercase tag":         "```JSON\n" + wellFormed + "```",
		"padded":                "\n\n   " + wellFormed + "   \n",
	}
	for name, input := range shapes {
		t.Run(name, func(t *testing.T) {
			got, err := Parse(input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseUnwrapsInPropertyOrder(t *testing.T) {
	step := func(title string) string {
		return `[{"step_order":1,"title":"` + title + `","prompt_text":"","context_mode":"","output_summary":""}]`
	}
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"document order", `{"z": ` + step("first") + `, "a": ` + step("second") + `}`, "first"},
		{"index keys first", `{"steps": ` + step("named") + `, "1": ` + step("one") + `}`, "one"},
		{"index keys ascending", `{"10": ` + step("ten") + `, "2": ` + step("two") + `}`, "two"},
		{"leading zero is a name", `{"steps": ` + step("named") + `, "01": ` + step("padded") + `}`, "named"},
		{"negative is a name", `{"steps": ` + step("named") + `, "-1": ` + step("negative") + `}`, "named"},
		{"too large for an index", `{"steps": ` + step("named") + `, "4294967295": ` + step("big") + `}`, "named"},
		{"escaped index key", `{"steps": ` + step("named") + `, "\u0033": ` + step("three") + `}`, "three"},
		{"duplicate keeps first position", `{"a": 1, "b": ` + step("b") + `, "a": ` + step("last a") + `}`, "last a"},
		{"duplicate keeps last value", `{"a": ` + step("first a") + `, "b": ` + step("b") + `, "a": "gone"}`, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := Parse(tt.input)
			require.NoError(t, err)
			require.Len(t, steps, 1)
			assert.Equal(t, tt.want, steps[0].Title)
		})
	}

	_, err := Parse(`{"a": ` + step("a") + `, "a": 0}`)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotAnArray, apperr.CodeOf(err))
}

func TestParseAcceptsLargeStepOrder(t *testing.T) {
	input := `[
	  {"step_order": 4294967296, "title": "big", "prompt_text": "", "context_mode": "", "output_summary": ""},
	  {"step_order": 1e300, "title": "huge", "prompt_text": "", "context_mode": "", "output_summary": ""}
	]`

	steps, err := Parse(input)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 4294967296, steps[0].StepOrder)
	assert.Equal(t, math.MaxInt, steps[1].StepOrder)

	_, err = Parse(`[{"step_order": 1e400, "title": "inf", "prompt_text": "", "context_mode": "", "output_summary": ""}]`)
	require.Error(t, err)
	assert.Equal(t, "0.step_order", apperr.FieldOf(err))
}

func TestParsePreservesOrderAndIgnoresExtraKeys(t *testing.T) {
	input := `[
	  {"step_order": 3, "title": "c", "prompt_text": "", "context_mode": "x", "output_summary": "", "screenshot": "ignored"},
	  {"step_order": 1, "title": "a", "prompt_text": "", "context_mode": "x", "output_summary": ""}
	]`

	steps, err := Parse(input)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "c", steps[0].Title)
	assert.Equal(t, 3, steps[0].StepOrder)
	assert.Equal(t, "a", steps[1].Title)
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, "[1]", StripFence("```json\n[1]\n```"))
	assert.Equal(t, "[1]", StripFence("```[1]```"))
	assert.Equal(t, "[1]", StripFence("  [1]  "))
	assert.Equal(t, "x ```", StripFence("x ```"))
}

func FuzzParse(f *testing.F) {
	f.Add(wellFormed)
	f.Add("```json\n" + wellFormed + "\n```")
	f.Add(`{"steps": ` + wellFormed + `}`)
	f.Add(`{}`)
	f.Add(`[]`)
	f.Add(`not json`)
	f.Add(`[{"step_order": 1e2, "title": "x", "prompt_text": "", "context_mode": "", "output_summary": ""}]`)

	f.Fuzz(func(t *testing.T, input string) {
		steps, err := Parse(input)
		if err != nil {
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Fatalf("Parse(%q) returned non-validation error %v", input, err)
			}
			if steps != nil {
				t.Fatalf("Parse(%q) returned steps alongside error", input)
			}
			return
		}
		if len(steps) == 0 {
			t.Fatalf("Parse(%q) succeeded with no steps", input)
		}
		for i, s := range steps {
			if s.StepOrder < 1 {
				t.Fatalf("step %d has order %d", i, s.StepOrder)
			}
			if s.Title == "" {
				t.Fatalf("step %d has empty title", i)
			}
		}
		// deterministic
		again, err := Parse(input)
		if err != nil || len(again) != len(steps) {
			t.Fatalf("Parse(%q) not deterministic", input)
		}
	})
}
