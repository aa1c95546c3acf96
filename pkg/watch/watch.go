// Package watch re-runs a local report file whenever it is saved.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/execution"
	"github.com/uyoufu/uzoncalc/pkg/logging"
)

// DefaultDebounce collapses the burst of events an editor emits on save.
const DefaultDebounce = 300 * time.Millisecond

// Watcher restarts an execution each time its file changes.
type Watcher struct {
	Executor *execution.Executor
	Path     string
	Debounce time.Duration
	// Initial runs once before the first change is seen.
	Initial bool
	// Defaults seeds a Start. Restarts keep the previous run's values.
	Defaults calc.Defaults
	Logger   *zap.Logger
	// OnRun is called after every run with its outcome.
	OnRun func(err error)
}

// Run watches until ctx is done. The file's directory is watched rather
// than the file so editors that save by rename keep being observed.
func (w *Watcher) Run(ctx context.Context) error {
	logger := logging.OrNop(w.Logger)
	path, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.Path, err)
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	w.Executor.UseLocalFile(path)
	logger.Info("watching report file", zap.String("path", path))

	trigger := make(chan struct{}, 1)
	if w.Initial {
		trigger <- struct{}{}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var timer *time.Timer
		var fire <-chan time.Time
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-fw.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				logger.Debug("report file changed", zap.String("op", ev.Op.String()))
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case err, ok := <-fw.Errors:
				if !ok {
					return nil
				}
				logger.Warn("watcher error", zap.Error(err))
			case <-fire:
				fire = nil
				select {
				case trigger <- struct{}{}:
				default:
				}
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-trigger:
				err := w.run(ctx)
				if err != nil {
					logger.Debug("run failed", zap.Error(err))
				}
				if w.OnRun != nil {
					w.OnRun(err)
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Watcher) run(ctx context.Context) error {
	if w.Executor.CanRestart() {
		return w.Executor.Restart(ctx)
	}
	return w.Executor.Start(ctx, w.Defaults)
}
