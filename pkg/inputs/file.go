package inputs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/uyoufu/uzoncalc/pkg/calc"
)

// LoadFile reads a defaults document. Files ending in .json are parsed as
// JSON, everything else as YAML. The document maps window title to field
// name to value.
func LoadFile(path string) (calc.Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inputs file: %w", err)
	}
	d, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, fmt.Errorf("parse inputs file %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes a defaults document from JSON or YAML.
func Parse(data []byte, isJSON bool) (calc.Defaults, error) {
	var d calc.Defaults
	if isJSON {
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if d == nil {
		d = make(calc.Defaults)
	}
	return d, nil
}

// WriteFile stores d as YAML, or JSON when path ends in .json.
func WriteFile(path string, d calc.Defaults) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(d, "", "  ")
	} else {
		data, err = yaml.Marshal(d)
	}
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create inputs dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write inputs file: %w", err)
	}
	return nil
}

// File is a Provider that reads a defaults document on every resolve, so
// edits between resumes are picked up.
type File struct {
	Path string
}

func (f File) Name() string { return "file:" + f.Path }

func (f File) Defaults(context.Context, calc.Defaults) (calc.Defaults, error) {
	return LoadFile(f.Path)
}
