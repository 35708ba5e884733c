package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain error is internal", errors.New("boom"), KindInternal},
		{"not found", NotFound("get", "missing"), KindNotFound},
		{"wrapped validation", fmt.Errorf("outer: %w", Validation("parse", CodeEmptyInput, "", "empty")), KindValidation},
		{"conflict", Conflict("slug", CodeSlugExhausted, "taken"), KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorIsMatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Validation("ingest", CodeEmptyArray, "", "no steps"))

	assert.True(t, errors.Is(err, &Error{Kind: KindValidation}))
	assert.True(t, errors.Is(err, &Error{Code: CodeEmptyArray}))
	assert.False(t, errors.Is(err, &Error{Code: CodeNotAnArray}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound}))
	assert.Equal(t, CodeEmptyArray, CodeOf(err))
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("fork.insert", cause)

	assert.Equal(t, "fork.insert: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "0.steps", FieldOf(Validation("x", CodeSchemaViolation, "0.steps", "bad")))
}
