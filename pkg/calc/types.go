// Package calc holds the wire types exchanged with the UzonCalc calculation
// engine and the pure helpers that operate on them.
package calc

// Field types the engine emits for interactive inputs.
const (
	FieldText       = "text"
	FieldNumber     = "number"
	FieldSelectOne  = "selectOne"
	FieldSelectMany = "selectMany"
	FieldCheckbox   = "checkbox"
	FieldTextarea   = "textarea"
)

// Field is a single input inside a calculation window.
type Field struct {
	Name        string   `json:"name"                  yaml:"name"`
	Label       string   `json:"label,omitempty"       yaml:"label,omitempty"`
	Type        string   `json:"type,omitempty"        yaml:"type,omitempty"`
	Placeholder string   `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Default     any      `json:"default,omitempty"     yaml:"default,omitempty"`
	Options     []string `json:"options,omitempty"     yaml:"options,omitempty"`
	VIf         string   `json:"vif,omitempty"         yaml:"vif,omitempty"`
	Value       any      `json:"value,omitempty"       yaml:"value,omitempty"`
}

// Window is a named group of input fields presented mid-calculation.
type Window struct {
	Title   string  `json:"title"             yaml:"title"`
	Caption string  `json:"caption,omitempty" yaml:"caption,omitempty"`
	Fields  []Field `json:"fields"            yaml:"fields"`
}

// ExecutionResult is a snapshot of one calculation session.
// An empty ExecutionID means no session has been started.
type ExecutionResult struct {
	ExecutionID string   `json:"executionId" yaml:"executionId"`
	HTML        string   `json:"html"        yaml:"html"`
	IsCompleted bool     `json:"isCompleted" yaml:"isCompleted"`
	Windows     []Window `json:"windows"     yaml:"windows"`
}

// Defaults maps window title to field name to value. It is the shape the
// engine expects for start and resume inputs.
type Defaults map[string]map[string]any

// Started reports whether a session exists.
func (r *ExecutionResult) Started() bool {
	return r.ExecutionID != ""
}

// Normalize fills each field's Value from its Default when the engine left
// Value unset, so a freshly received window carries its effective inputs.
func (r *ExecutionResult) Normalize() {
	for i := range r.Windows {
		for j := range r.Windows[i].Fields {
			f := &r.Windows[i].Fields[j]
			if f.Value == nil && f.Default != nil {
				f.Value = f.Default
			}
		}
	}
}

// Clone returns a deep copy of the result. Field values are copied
// shallowly; the engine only emits scalars and string slices.
func (r ExecutionResult) Clone() ExecutionResult {
	out := r
	out.Windows = CloneWindows(r.Windows)
	return out
}

// CloneWindows copies a window slice so callers cannot mutate shared state.
func CloneWindows(windows []Window) []Window {
	if windows == nil {
		return nil
	}
	out := make([]Window, len(windows))
	for i, w := range windows {
		out[i] = w
		if w.Fields != nil {
			out[i].Fields = make([]Field, len(w.Fields))
			for j, f := range w.Fields {
				out[i].Fields[j] = f
				if f.Options != nil {
					out[i].Fields[j].Options = append([]string(nil), f.Options...)
				}
			}
		}
	}
	return out
}
