package calc

import (
	"path/filepath"
	"strings"
)

// InputValues flattens the current field values of windows into Defaults.
// A later window with the same title replaces the earlier entry.
func InputValues(windows []Window) Defaults {
	defaults := make(Defaults, len(windows))
	for _, w := range windows {
		values := make(map[string]any, len(w.Fields))
		for _, f := range w.Fields {
			values[f.Name] = f.Value
		}
		defaults[w.Title] = values
	}
	return defaults
}

// DisplayName derives the name shown for a local report file: the final
// path segment, splitting on both forward and back slashes.
func DisplayName(path string) string {
	name := path
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		name = path[i+1:]
	}
	if name == "" {
		return path
	}
	return name
}

// Stem returns the display name without its extension.
func Stem(path string) string {
	name := DisplayName(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
