// Package schema exports the JSON Schema of the execution wire format and
// validates engine responses against it.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/uyoufu/uzoncalc/pkg/calc"
)

const executionResultID = "https://github.com/uyoufu/uzoncalc/schemas/execution-result.json"

// GenerateExecutionResultJSONSchema produces a JSON Schema Draft 2020-12
// document from the calc.ExecutionResult Go types.
func GenerateExecutionResultJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	// The engine adds fields over time; unknown keys are tolerated.
	r.AllowAdditionalProperties = true
	s := r.Reflect(&calc.ExecutionResult{})
	s.ID = executionResultID
	s.Title = "UzonCalc execution result"
	s.Description = "Snapshot of one calculation session returned by start, resume and file execution"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal execution result schema: %w", err)
	}
	return data, nil
}

// ValidationError is a single schema violation.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Errors aggregates violations found in one document.
type Errors []*ValidationError

func (errs Errors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return "invalid execution result: " + strings.Join(msgs, "; ")
}

// Validator checks raw execution result payloads. The compiled schema is
// built lazily once.
type Validator struct {
	once   sync.Once
	schema *sjsonschema.Schema
	err    error
}

// NewValidator returns a validator for execution results.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) compile() {
	data, err := GenerateExecutionResultJSONSchema()
	if err != nil {
		v.err = err
		return
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		v.err = fmt.Errorf("unmarshal schema: %w", err)
		return
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("execution-result.json", doc); err != nil {
		v.err = fmt.Errorf("add schema resource: %w", err)
		return
	}
	v.schema, v.err = c.Compile("execution-result.json")
	if v.err != nil {
		v.err = fmt.Errorf("compile schema: %w", v.err)
	}
}

// Validate checks data against the execution result schema. It returns nil,
// an Errors value listing each violation, or a plain error when data is not
// JSON.
func (v *Validator) Validate(data []byte) error {
	v.once.Do(v.compile)
	if v.err != nil {
		return v.err
	}

	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return err
		}
		var errs Errors
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Path:    "/" + strings.Join(cause.InstanceLocation, "/"),
				Message: fmt.Sprintf("%v", cause.ErrorKind),
			})
		}
		return errs
	}
	return nil
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}
