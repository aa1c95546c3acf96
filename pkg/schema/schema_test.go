package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateExecutionResultJSONSchema(t *testing.T) {
	data, err := GenerateExecutionResultJSONSchema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, executionResultID, doc["$id"])
	assert.Equal(t, "UzonCalc execution result", doc["title"])
	assert.Contains(t, string(data), `"executionId"`)
	assert.Contains(t, string(data), `"windows"`)
}

func TestValidate_Valid(t *testing.T) {
	v := NewValidator()
	payload := `{
		"executionId": "abc",
		"html": "<h1>Beam</h1>",
		"isCompleted": false,
		"windows": [{"title": "Inputs", "fields": [{"name": "width", "value": 10, "type": "number"}]}],
		"extra": "tolerated"
	}`
	assert.NoError(t, v.Validate([]byte(payload)))
}

func TestValidate_Invalid(t *testing.T) {
	v := NewValidator()
	payload := `{"executionId": 42, "html": "", "isCompleted": "no", "windows": []}`

	err := v.Validate([]byte(payload))
	require.Error(t, err)

	var errs Errors
	require.True(t, errors.As(err, &errs))
	assert.GreaterOrEqual(t, len(errs), 2)
	assert.Contains(t, err.Error(), "invalid execution result")
}

func TestValidate_MissingRequired(t *testing.T) {
	v := NewValidator()
	err := v.Validate([]byte(`{"html": ""}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executionId")
}

func TestValidate_NotJSON(t *testing.T) {
	v := NewValidator()
	err := v.Validate([]byte(`<html>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal document")
}
