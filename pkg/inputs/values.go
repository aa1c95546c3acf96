package inputs

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/uyoufu/uzoncalc/pkg/calc"
)

// Merge copies src maps over dst field by field and returns dst. A nil dst
// is allocated. Inner maps are never shared with src.
func Merge(dst calc.Defaults, srcs ...calc.Defaults) calc.Defaults {
	if dst == nil {
		dst = make(calc.Defaults)
	}
	for _, src := range srcs {
		for window, fields := range src {
			target, ok := dst[window]
			if !ok {
				target = make(map[string]any, len(fields))
				dst[window] = target
			}
			for name, v := range fields {
				target[name] = v
			}
		}
	}
	return dst
}

// Apply writes values into the matching fields of windows and returns the
// number of fields that were set. Unknown windows and fields are ignored.
// When several windows share a title, all of them receive the value.
func Apply(windows []calc.Window, d calc.Defaults) int {
	n := 0
	for i := range windows {
		values, ok := d[windows[i].Title]
		if !ok {
			continue
		}
		for j := range windows[i].Fields {
			f := &windows[i].Fields[j]
			if v, ok := values[f.Name]; ok {
				f.Value = v
				n++
			}
		}
	}
	return n
}

// Assignment is one parsed "Window.field=value" override.
type Assignment struct {
	Window string
	Field  string
	Source string
}

// ParseAssignment splits "Window.field=value". The window title may itself
// contain dots; the field name is taken after the last one.
func ParseAssignment(s string) (Assignment, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return Assignment{}, fmt.Errorf("invalid assignment %q: expected Window.field=value", s)
	}
	key = strings.TrimSpace(key)
	dot := strings.LastIndex(key, ".")
	if dot <= 0 || dot == len(key)-1 {
		return Assignment{}, fmt.Errorf("invalid assignment %q: expected Window.field=value", s)
	}
	return Assignment{
		Window: key[:dot],
		Field:  key[dot+1:],
		Source: strings.TrimSpace(value),
	}, nil
}

// Eval evaluates the assignment's value as an expression. Other fields of
// the same window are in scope by name, so "height=width*2" works. Text
// that does not compile is taken literally, so bare words need no quoting.
func (a Assignment) Eval(current calc.Defaults) any {
	if a.Source == "" {
		return ""
	}
	env := map[string]any{}
	for name, v := range current[a.Window] {
		if v != nil {
			env[name] = v
		}
	}
	program, err := expr.Compile(a.Source, expr.Env(env))
	if err != nil {
		return a.Source
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return a.Source
	}
	return out
}

// Assignments is a Provider backed by command-line overrides.
type Assignments []Assignment

// ParseAssignments parses every entry of list.
func ParseAssignments(list []string) (Assignments, error) {
	out := make(Assignments, 0, len(list))
	for _, s := range list {
		a, err := ParseAssignment(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (Assignments) Name() string { return "assignments" }

// Defaults evaluates the assignments in order. Each one sees the values set
// by the assignments before it.
func (as Assignments) Defaults(_ context.Context, current calc.Defaults) (calc.Defaults, error) {
	scope := Merge(nil, current)
	out := make(calc.Defaults)
	for _, a := range as {
		v := a.Eval(scope)
		set := calc.Defaults{a.Window: {a.Field: v}}
		Merge(scope, set)
		Merge(out, set)
	}
	return out, nil
}

// Visible evaluates a field's vif condition against the values of its
// window. A field without a condition is always visible.
func Visible(w calc.Window, f calc.Field) (bool, error) {
	if strings.TrimSpace(f.VIf) == "" {
		return true, nil
	}
	env := map[string]any{}
	for _, other := range w.Fields {
		if other.Value != nil {
			env[other.Name] = other.Value
		}
	}
	program, err := expr.Compile(f.VIf, expr.Env(env), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return true, fmt.Errorf("compile condition %q: %w", f.VIf, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return true, fmt.Errorf("eval condition %q: %w", f.VIf, err)
	}
	visible, ok := out.(bool)
	if !ok {
		return true, fmt.Errorf("condition %q did not return bool (got %T)", f.VIf, out)
	}
	return visible, nil
}
