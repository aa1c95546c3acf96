package execution

import (
	"context"
	"fmt"
)

// FileDialog asks the user for a local report file. An empty path means the
// user cancelled. *api.Client implements it against the desktop backend.
type FileDialog interface {
	SelectLocalFile(ctx context.Context) (string, error)
}

// DialogFunc adapts a function to FileDialog.
type DialogFunc func(ctx context.Context) (string, error)

// SelectLocalFile implements FileDialog.
func (f DialogFunc) SelectLocalFile(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticPath is a FileDialog that always answers with the same path. Used
// where the path is already known, e.g. a command-line argument.
func StaticPath(path string) FileDialog {
	return DialogFunc(func(context.Context) (string, error) { return path, nil })
}

// LocalFileSelector switches an Executor to a local file chosen through a
// dialog.
type LocalFileSelector struct {
	Dialog   FileDialog
	Executor *Executor
}

// Select opens the dialog and, when a path is returned, makes it the
// execution source. Returns the selected path ("" when cancelled) and
// whether the previous result was discarded.
func (s *LocalFileSelector) Select(ctx context.Context) (path string, reset bool, err error) {
	if s.Dialog == nil {
		return "", false, fmt.Errorf("local file selection is only available in desktop mode")
	}
	path, err = s.Dialog.SelectLocalFile(ctx)
	if err != nil {
		return "", false, fmt.Errorf("select local file: %w", err)
	}
	if path == "" {
		return "", false, nil
	}
	return path, s.Executor.UseLocalFile(path), nil
}
