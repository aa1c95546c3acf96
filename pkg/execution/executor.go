// Package execution drives a calculation session against the backend:
// start, resume with user inputs, and restart with carried-over inputs.
//
// Only one remote call may be in flight per Executor. A call that arrives
// while another is running is dropped, not queued. State is replaced only
// after a successful response, so a failure never leaves a partial update.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/inputs"
	"github.com/uyoufu/uzoncalc/pkg/logging"
	"github.com/uyoufu/uzoncalc/pkg/notify"
	"github.com/uyoufu/uzoncalc/pkg/signal"
)

var (
	// ErrMissingSource is returned by Start and Restart when neither a report
	// oid nor a local file path is set.
	ErrMissingSource = errors.New("missing report oid or file path")
	// ErrMissingExecutionID is returned by Resume when no session exists.
	ErrMissingExecutionID = errors.New("missing execution id")
	// ErrSessionExists is returned by Start when a session is already open.
	// Restart replaces a session.
	ErrSessionExists = errors.New("execution session already exists")
)

// Backend is the remote calculation engine. *api.Client implements it.
type Backend interface {
	StartExecution(ctx context.Context, reportOid string, isSilent bool, defaults calc.Defaults) (*calc.ExecutionResult, error)
	StartFileExecution(ctx context.Context, filePath string, defaults calc.Defaults) (*calc.ExecutionResult, error)
	ResumeExecution(ctx context.Context, executionID string, defaults calc.Defaults) (*calc.ExecutionResult, error)
}

// Source selects what is executed. ReportOid and FilePath are mutually
// exclusive; when both are somehow set the report wins.
type Source struct {
	ReportOid   string `json:"reportOid,omitempty"`
	FilePath    string `json:"filePath,omitempty"`
	IsSilent    bool   `json:"isSilent,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Empty reports whether nothing is selected for execution.
func (s Source) Empty() bool {
	return s.ReportOid == "" && s.FilePath == ""
}

// Snapshot is the persistable state of an Executor.
type Snapshot struct {
	Source Source               `json:"source"`
	Result calc.ExecutionResult `json:"result"`
}

// Executor is the client-side execution state machine.
type Executor struct {
	backend  Backend
	notifier notify.Notifier
	logger   *zap.Logger
	changed  *signal.Signal

	executing atomic.Bool

	mu     sync.Mutex
	source Source
	result calc.ExecutionResult
	// generation increments on every reset; a response that arrives for an
	// older generation is discarded.
	generation uint64
}

// Option configures an Executor.
type Option func(*Executor)

// WithNotifier sets the notification channel.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Executor) { e.notifier = notify.Or(n) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = logging.OrNop(l) }
}

// WithChangeSignal sets the signal notified after every state change.
func WithChangeSignal(s *signal.Signal) Option {
	return func(e *Executor) { e.changed = s }
}

// WithSource sets the initial execution source.
func WithSource(src Source) Option {
	return func(e *Executor) { e.source = src }
}

// WithSnapshot restores a previously saved state.
func WithSnapshot(s Snapshot) Option {
	return func(e *Executor) {
		e.source = s.Source
		e.result = s.Result.Clone()
	}
}

// New returns an Executor with empty state.
func New(backend Backend, opts ...Option) *Executor {
	e := &Executor{
		backend:  backend,
		notifier: notify.Nop{},
		logger:   zap.NewNop(),
		changed:  signal.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Changed returns the signal notified after every state change.
func (e *Executor) Changed() *signal.Signal {
	return e.changed
}

// IsExecuting reports whether a remote call is in flight.
func (e *Executor) IsExecuting() bool {
	return e.executing.Load()
}

// CanStart reports whether no session exists yet.
func (e *Executor) CanStart() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result.ExecutionID == ""
}

// CanResume reports whether a session exists and has not completed.
func (e *Executor) CanResume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result.ExecutionID != "" && !e.result.IsCompleted
}

// CanRestart reports whether a session exists, completed or not.
func (e *Executor) CanRestart() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result.ExecutionID != ""
}

// Result returns a copy of the current execution result.
func (e *Executor) Result() calc.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result.Clone()
}

// Source returns the current execution source.
func (e *Executor) Source() Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

// Snapshot returns the persistable state.
func (e *Executor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{Source: e.source, Result: e.result.Clone()}
}

// InputValues extracts the current field values of all windows.
func (e *Executor) InputValues() calc.Defaults {
	e.mu.Lock()
	defer e.mu.Unlock()
	return calc.InputValues(e.result.Windows)
}

// SetSilent toggles silent execution for report sources.
func (e *Executor) SetSilent(silent bool) {
	e.mu.Lock()
	e.source.IsSilent = silent
	e.mu.Unlock()
}

// SetReport selects a stored report and clears any local file. Selecting a
// different report discards the current result.
func (e *Executor) SetReport(reportOid, displayName string) {
	e.mu.Lock()
	if reportOid != e.source.ReportOid {
		e.resetLocked()
	}
	e.source.ReportOid = reportOid
	e.source.FilePath = ""
	e.source.DisplayName = displayName
	e.mu.Unlock()
	e.changed.Notify()
}

// UseLocalFile selects a local report file and clears the report oid. The
// result is discarded when the file's display name differs from the
// current one; re-selecting the same file keeps an in-progress session.
// Returns whether the result was reset.
func (e *Executor) UseLocalFile(path string) bool {
	name := calc.DisplayName(path)

	e.mu.Lock()
	reset := name != e.source.DisplayName
	if reset {
		e.resetLocked()
	}
	e.source.FilePath = path
	e.source.ReportOid = ""
	e.source.DisplayName = name
	e.mu.Unlock()

	e.logger.Debug("local file selected", zap.String("path", path), zap.Bool("reset", reset))
	e.changed.Notify()
	return reset
}

// SetFieldValue edits one field of the window at index. This is how user
// input reaches the next resume.
func (e *Executor) SetFieldValue(windowIndex int, field string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if windowIndex < 0 || windowIndex >= len(e.result.Windows) {
		return fmt.Errorf("window %d out of range (have %d)", windowIndex, len(e.result.Windows))
	}
	w := &e.result.Windows[windowIndex]
	for i := range w.Fields {
		if w.Fields[i].Name == field {
			w.Fields[i].Value = value
			return nil
		}
	}
	return fmt.Errorf("window %q has no field %q", w.Title, field)
}

// ApplyDefaults writes values into matching window fields and returns how
// many fields changed.
func (e *Executor) ApplyDefaults(d calc.Defaults) int {
	e.mu.Lock()
	n := inputs.Apply(e.result.Windows, d)
	e.mu.Unlock()
	if n > 0 {
		e.changed.Notify()
	}
	return n
}

// Reset returns the result to the empty initial state. The source is kept.
func (e *Executor) Reset() {
	e.mu.Lock()
	e.resetLocked()
	e.mu.Unlock()
	e.changed.Notify()
}

func (e *Executor) resetLocked() {
	e.result = calc.ExecutionResult{}
	e.generation++
}

// tryAcquire claims the busy flag. False means another call is in flight.
func (e *Executor) tryAcquire(op string) bool {
	if !e.executing.CompareAndSwap(false, true) {
		e.logger.Debug("execution busy, call dropped", zap.String("op", op))
		return false
	}
	e.changed.Notify()
	return true
}

func (e *Executor) release() {
	e.executing.Store(false)
	e.changed.Notify()
}

func (e *Executor) checkSource() error {
	if e.Source().Empty() {
		e.notifier.Error(notify.MissingReportOidOrPath)
		return ErrMissingSource
	}
	return nil
}

// Start begins a new session. When defaults is nil the current window
// values are used. On success the result is replaced wholesale. A call made
// while another is in flight is a no-op and returns nil; a call made while
// a session exists returns ErrSessionExists.
func (e *Executor) Start(ctx context.Context, defaults calc.Defaults) error {
	if err := e.checkSource(); err != nil {
		return err
	}
	if !e.tryAcquire("start") {
		return nil
	}
	defer e.release()
	if !e.CanStart() {
		e.logger.Debug("start rejected, session exists", zap.String("execution_id", e.Result().ExecutionID))
		return ErrSessionExists
	}

	if defaults == nil {
		defaults = e.InputValues()
	}
	return e.start(ctx, defaults)
}

// start runs with the busy flag held.
func (e *Executor) start(ctx context.Context, defaults calc.Defaults) error {
	e.mu.Lock()
	src := e.source
	gen := e.generation
	e.mu.Unlock()

	var (
		res *calc.ExecutionResult
		err error
	)
	if src.ReportOid != "" {
		e.logger.Debug("starting report execution", zap.String("report", src.ReportOid), zap.Bool("silent", src.IsSilent))
		res, err = e.backend.StartExecution(ctx, src.ReportOid, src.IsSilent, defaults)
	} else {
		e.logger.Debug("starting file execution", zap.String("path", src.FilePath))
		res, err = e.backend.StartFileExecution(ctx, src.FilePath, defaults)
	}
	if err != nil {
		// The transport has already raised the user notification.
		e.logger.Debug("start execution failed", zap.Error(err))
		return fmt.Errorf("start execution: %w", err)
	}

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		e.logger.Debug("discarding start result for a reset session", zap.String("execution_id", res.ExecutionID))
		return nil
	}
	e.result = res.Clone()
	e.mu.Unlock()

	e.logger.Debug("execution started",
		zap.String("execution_id", res.ExecutionID),
		zap.Int("windows", len(res.Windows)),
		zap.Bool("completed", res.IsCompleted))
	e.changed.Notify()
	if res.IsCompleted {
		e.notifier.Success(notify.CalculationCompleted)
	}
	return nil
}

// Resume continues the session with the current window values. Windows in
// the response are appended after the existing ones; html is replaced.
func (e *Executor) Resume(ctx context.Context) error {
	e.mu.Lock()
	id := e.result.ExecutionID
	e.mu.Unlock()
	if id == "" {
		e.notifier.Error(notify.MissingExecutionID)
		return ErrMissingExecutionID
	}
	if !e.tryAcquire("resume") {
		return nil
	}
	defer e.release()

	e.mu.Lock()
	defaults := calc.InputValues(e.result.Windows)
	gen := e.generation
	e.mu.Unlock()

	res, err := e.backend.ResumeExecution(ctx, id, defaults)
	if err != nil {
		e.notifier.Error(notify.ResumeExecutionFailed)
		e.logger.Debug("resume execution failed", zap.String("execution_id", id), zap.Error(err))
		return fmt.Errorf("resume execution: %w", err)
	}

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		e.logger.Debug("discarding resume result for a reset session", zap.String("execution_id", id))
		return nil
	}
	merged := res.Clone()
	merged.Windows = append(calc.CloneWindows(e.result.Windows), merged.Windows...)
	e.result = merged
	e.mu.Unlock()

	e.logger.Debug("execution resumed",
		zap.String("execution_id", merged.ExecutionID),
		zap.Int("windows", len(merged.Windows)),
		zap.Bool("completed", merged.IsCompleted))
	e.changed.Notify()
	if merged.IsCompleted {
		e.notifier.Success(notify.CalculationCompleted)
	}
	return nil
}

// Restart abandons the current session and starts a new one with the last
// known input values. The values are captured before the reset.
func (e *Executor) Restart(ctx context.Context) error {
	if err := e.checkSource(); err != nil {
		return err
	}
	if !e.tryAcquire("restart") {
		return nil
	}
	defer e.release()

	e.mu.Lock()
	defaults := calc.InputValues(e.result.Windows)
	e.resetLocked()
	e.mu.Unlock()
	e.changed.Notify()

	return e.start(ctx, defaults)
}
