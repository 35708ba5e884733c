// Package ingest turns the text an AI tool produces for a session export into
// a validated, ordered list of steps.
//
// The pipeline is pure: no I/O, no clock, no randomness. Each stage either
// hands a narrower value to the next one or fails with a validation error
// whose code tells the user what to fix:
//
//	trim -> strip fence -> parse JSON -> unwrap envelope -> require array -> validate steps
package ingest

import (
	"bytes"
	"cmp"
	"encoding/json"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"

	"promptflows/backend/internal/apperr"
	"promptflows/backend/pkg/models"
)

const op = "ingest.parse"

var (
	// openingFencePattern matches ``` with an optional language tag and the
	// whitespace that follows it.
	openingFencePattern = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*\\r?\\n?")
	// closingFencePattern matches the final ``` and any whitespace around it.
	closingFencePattern = regexp.MustCompile("\\s*```\\s*$")
)

// Parse runs the full pipeline over raw.
func Parse(raw string) ([]models.ExportedStep, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, apperr.Validation(op, apperr.CodeEmptyInput, "",
			"input is empty, paste the JSON output from your AI tool")
	}

	data := []byte(StripFence(text))
	if !json.Valid(data) {
		return nil, apperr.Validation(op, apperr.CodeMalformedJSON, "",
			"invalid JSON, make sure you copied the entire output from your AI tool")
	}

	working, err := unwrapEnvelope(data)
	if err != nil {
		return nil, err
	}

	var elems []json.RawMessage
	if kindOf(working) != "array" {
		return nil, apperr.Validation(op, apperr.CodeNotAnArray, "",
			"expected a JSON array of steps, make sure the output starts with [ and ends with ]")
	}
	if err := json.Unmarshal(working, &elems); err != nil {
		return nil, apperr.Validation(op, apperr.CodeMalformedJSON, "", err.Error())
	}
	if len(elems) == 0 {
		return nil, apperr.Validation(op, apperr.CodeEmptyArray, "",
			"the array is empty, no steps were found; try running the export prompt again")
	}

	return validateSteps(elems)
}

// StripFence removes a surrounding markdown code fence from text, if text
// starts with one, and trims the result.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = openingFencePattern.ReplaceAllString(text, "")
	text = closingFencePattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// unwrapEnvelope returns the first array-valued member of a top-level object.
// Members are visited in JavaScript property order: array-index keys in
// ascending numeric order, then the remaining keys in the order they first
// appear. A repeated key keeps its first position and its last value.
// Arrays and scalars pass through unchanged, as does an object with no array
// member.
func unwrapEnvelope(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	if kindOf(data) != "object" {
		return data, nil
	}

	var members []member
	seen := make(map[string]int)
	err := jsonparser.ObjectEach(data, func(rawKey []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		key, err := jsonparser.ParseString(rawKey)
		if err != nil {
			return err
		}
		if i, ok := seen[key]; ok {
			members[i].value, members[i].isArray = value, dataType == jsonparser.Array
			return nil
		}
		index, isIndex := arrayIndex(key)
		seen[key] = len(members)
		members = append(members, member{
			index:   index,
			isIndex: isIndex,
			value:   value,
			isArray: dataType == jsonparser.Array,
		})
		return nil
	})
	if err != nil {
		return nil, apperr.Validation(op, apperr.CodeMalformedJSON, "", err.Error())
	}

	slices.SortStableFunc(members, func(a, b member) int {
		switch {
		case a.isIndex && b.isIndex:
			return cmp.Compare(a.index, b.index)
		case a.isIndex:
			return -1
		case b.isIndex:
			return 1
		}
		return 0
	})
	for _, m := range members {
		if m.isArray {
			return m.value, nil
		}
	}
	return data, nil
}

type member struct {
	index   uint32
	isIndex bool
	value   []byte
	isArray bool
}

// arrayIndex reports whether key is a canonical array index: a decimal
// integer below 2^32-1 with no sign and no leading zero.
func arrayIndex(key string) (uint32, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(key, 10, 32)
	if err != nil || n == math.MaxUint32 {
		return 0, false
	}
	return uint32(n), true
}

// kindOf names the JSON type of an already-valid value by its first byte.
func kindOf(v []byte) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return "undefined"
	}
	switch v[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
