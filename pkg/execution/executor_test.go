package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/notify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	Op       string
	ID       string
	Silent   bool
	Defaults calc.Defaults
}

// fakeBackend records calls and answers from a queue of responses.
type fakeBackend struct {
	mu        sync.Mutex
	calls     []call
	responses []*calc.ExecutionResult
	err       error
	// gate, when set, blocks every call until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeBackend) record(ctx context.Context, c call) (*calc.ExecutionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &calc.ExecutionResult{}, nil
	}
	res := f.responses[0]
	f.responses = f.responses[1:]
	return res, nil
}

func (f *fakeBackend) StartExecution(ctx context.Context, reportOid string, isSilent bool, defaults calc.Defaults) (*calc.ExecutionResult, error) {
	return f.record(ctx, call{Op: "start", ID: reportOid, Silent: isSilent, Defaults: defaults})
}

func (f *fakeBackend) StartFileExecution(ctx context.Context, filePath string, defaults calc.Defaults) (*calc.ExecutionResult, error) {
	return f.record(ctx, call{Op: "file", ID: filePath, Defaults: defaults})
}

func (f *fakeBackend) ResumeExecution(ctx context.Context, executionID string, defaults calc.Defaults) (*calc.ExecutionResult, error) {
	return f.record(ctx, call{Op: "resume", ID: executionID, Defaults: defaults})
}

func (f *fakeBackend) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func window(title string, fields ...calc.Field) calc.Window {
	return calc.Window{Title: title, Fields: fields}
}

func field(name string, value any) calc.Field {
	return calc.Field{Name: name, Value: value}
}

func newExecutor(fb *fakeBackend, rec *notify.Recorder, src Source) *Executor {
	if rec == nil {
		rec = &notify.Recorder{}
	}
	return New(fb, WithNotifier(rec), WithSource(src))
}

func TestStart_ReplacesWindows(t *testing.T) {
	fb := &fakeBackend{responses: []*calc.ExecutionResult{{
		ExecutionID: "e1",
		HTML:        "<p>1</p>",
		Windows:     []calc.Window{window("Section", field("width", 300))},
	}}}
	rec := &notify.Recorder{}
	e := New(fb, WithNotifier(rec), WithSnapshot(Snapshot{
		Source: Source{ReportOid: "r1", IsSilent: true},
		Result: calc.ExecutionResult{Windows: []calc.Window{window("Stale", field("x", 1))}},
	}))

	require.NoError(t, e.Start(context.Background(), nil))

	res := e.Result()
	assert.Equal(t, "e1", res.ExecutionID)
	require.Len(t, res.Windows, 1)
	assert.Equal(t, "Section", res.Windows[0].Title)

	calls := fb.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "start", calls[0].Op)
	assert.True(t, calls[0].Silent)
	assert.Equal(t, calc.Defaults{"Stale": {"x": 1}}, calls[0].Defaults, "defaults come from current windows when omitted")
	assert.False(t, e.IsExecuting())
	assert.Empty(t, rec.Entries())
}

func TestStart_ExplicitDefaults(t *testing.T) {
	fb := &fakeBackend{}
	e := newExecutor(fb, &notify.Recorder{}, Source{FilePath: "/calc/beam.py"})

	want := calc.Defaults{"A": {"x": 2}}
	require.NoError(t, e.Start(context.Background(), want))

	calls := fb.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "file", calls[0].Op)
	assert.Equal(t, "/calc/beam.py", calls[0].ID)
	assert.Equal(t, want, calls[0].Defaults)
}

func TestStart_EmptyWindowsYieldEmptyDefaults(t *testing.T) {
	fb := &fakeBackend{}
	e := newExecutor(fb, &notify.Recorder{}, Source{ReportOid: "r"})

	require.NoError(t, e.Start(context.Background(), nil))
	calls := fb.Calls()
	require.Len(t, calls, 1)
	assert.NotNil(t, calls[0].Defaults)
	assert.Empty(t, calls[0].Defaults)
}

func TestStart_ReportWinsOverFile(t *testing.T) {
	fb := &fakeBackend{}
	e := newExecutor(fb, nil, Source{ReportOid: "r", FilePath: "/x.py"})
	require.NoError(t, e.Start(context.Background(), nil))
	assert.Equal(t, "start", fb.Calls()[0].Op)
}

func TestStart_MissingSource(t *testing.T) {
	fb := &fakeBackend{}
	rec := &notify.Recorder{}
	e := newExecutor(fb, rec, Source{})

	err := e.Start(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingSource)
	assert.Empty(t, fb.Calls())
	assert.True(t, rec.Has("error", notify.MissingReportOidOrPath))
	assert.False(t, e.IsExecuting())

	err = e.Restart(context.Background())
	assert.ErrorIs(t, err, ErrMissingSource)
	assert.Empty(t, fb.Calls())
}

func TestStart_FailureKeepsStateAndDoesNotNotify(t *testing.T) {
	fb := &fakeBackend{err: errors.New("boom")}
	rec := &notify.Recorder{}
	prior := calc.ExecutionResult{Windows: []calc.Window{window("A", field("x", 1))}}
	e := New(fb, WithNotifier(rec), WithSnapshot(Snapshot{Source: Source{ReportOid: "r"}, Result: prior}))

	err := e.Start(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, prior, e.Result())
	assert.False(t, e.IsExecuting())
	assert.Empty(t, rec.Entries())
}

func TestStart_CompletedNotifiesSuccess(t *testing.T) {
	fb := &fakeBackend{responses: []*calc.ExecutionResult{{ExecutionID: "e1", IsCompleted: true}}}
	rec := &notify.Recorder{}
	e := newExecutor(fb, rec, Source{ReportOid: "r"})

	require.NoError(t, e.Start(context.Background(), nil))
	assert.True(t, rec.Has("success", notify.CalculationCompleted))
	assert.False(t, e.CanResume())
	assert.True(t, e.CanRestart())
	assert.False(t, e.CanStart())
}

func TestStart_RejectedWhileSessionExists(t *testing.T) {
	fb := &fakeBackend{responses: []*calc.ExecutionResult{
		{ExecutionID: "e1", Windows: []calc.Window{window("A", field("x", 1))}},
		{ExecutionID: "e2"},
	}}
	e := newExecutor(fb, nil, Source{ReportOid: "r"})
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, nil))
	assert.ErrorIs(t, e.Start(ctx, nil), ErrSessionExists)
	assert.Len(t, fb.Calls(), 1)
	assert.Equal(t, "e1", e.Result().ExecutionID)
	assert.False(t, e.IsExecuting())

	require.NoError(t, e.Restart(ctx))
	assert.Equal(t, "e2", e.Result().ExecutionID)
}

func TestResume_AppendsWindowsAndReplacesHTML(t *testing.T) {
	fb := &fakeBackend{responses: []*calc.ExecutionResult{
		{ExecutionID: "e1", HTML: "<p>1</p>", Windows: []calc.Window{window("A", field("x", 1))}},
		{ExecutionID: "e1", HTML: "<p>2</p>", Windows: []calc.Window{window("B", field("y", 2))}},
		{ExecutionID: "e1", HTML: "<p>3</p>", IsCompleted: true},
	}}
	rec := &notify.Recorder{}
	e := newExecutor(fb, rec, Source{ReportOid: "r"})
	ctx := context.Background()

	require.NoError(t, e.Start(ctx, nil))
	require.NoError(t, e.SetFieldValue(0, "x", 5))
	require.NoError(t, e.Resume(ctx))

	res := e.Result()
	require.Len(t, res.Windows, 2)
	assert.Equal(t, "A", res.Windows[0].Title)
	assert.Equal(t, 5, res.Windows[0].Fields[0].Value)
	assert.Equal(t, "B", res.Windows[1].Title)
	assert.Equal(t, "<p>2</p>", res.HTML)

	calls := fb.Calls()
	assert.Equal(t, "resume", calls[1].Op)
	assert.Equal(t, "e1", calls[1].ID)
	assert.Equal(t, calc.Defaults{"A": {"x": 5}}, calls[1].Defaults)
	assert.False(t, rec.Has("success", notify.CalculationCompleted))

	require.NoError(t, e.Resume(ctx))
	res = e.Result()
	assert.Len(t, res.Windows, 2, "an empty response appends nothing")
	assert.Equal(t, "<p>3</p>", res.HTML)
	assert.True(t, res.IsCompleted)
	assert.True(t, rec.Has("success", notify.CalculationCompleted))
	assert.False(t, e.CanResume())
}

func TestResume_MissingExecutionID(t *testing.T) {
	fb := &fakeBackend{}
	rec := &notify.Recorder{}
	e := newExecutor(fb, rec, Source{ReportOid: "r"})

	err := e.Resume(context.Background())
	assert.ErrorIs(t, err, ErrMissingExecutionID)
	assert.Empty(t, fb.Calls())
	assert.False(t, e.IsExecuting())
	assert.True(t, rec.Has("error", notify.MissingExecutionID))
}

func TestResume_FailureNotifiesAndKeepsState(t *testing.T) {
	fb := &fakeBackend{err: errors.New("gone")}
	rec := &notify.Recorder{}
	prior := calc.ExecutionResult{ExecutionID: "e1", HTML: "h", Windows: []calc.Window{window("A", field("x", 1))}}
	e := New(fb, WithNotifier(rec), WithSnapshot(Snapshot{Source: Source{ReportOid: "r"}, Result: prior}))

	err := e.Resume(context.Background())
	require.Error(t, err)
	assert.True(t, rec.Has("error", notify.ResumeExecutionFailed))
	assert.Equal(t, prior, e.Result())
	assert.False(t, e.IsExecuting())
}

func TestRestart_UsesDefaultsCapturedBeforeReset(t *testing.T) {
	fb := &fakeBackend{responses: []*calc.ExecutionResult{{
		ExecutionID: "e2",
		Windows:     []calc.Window{window("A", field("x", 0))},
	}}}
	prior := calc.ExecutionResult{
		ExecutionID: "e1",
		IsCompleted: true,
		Windows: []calc.Window{
			window("A", field("x", 7)),
			window("B", field("y", "z")),
		},
	}
	e := New(fb, WithSnapshot(Snapshot{Source: Source{ReportOid: "r"}, Result: prior}))

	require.NoError(t, e.Restart(context.Background()))

	calls := fb.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "start", calls[0].Op)
	assert.Equal(t, calc.Defaults{"A": {"x": 7}, "B": {"y": "z"}}, calls[0].Defaults)

	res := e.Result()
	assert.Equal(t, "e2", res.ExecutionID)
	assert.Len(t, res.Windows, 1)
	assert.False(t, e.IsExecuting())
}

func TestRestart_FailureLeavesEmptyState(t *testing.T) {
	fb := &fakeBackend{err: errors.New("down")}
	prior := calc.ExecutionResult{ExecutionID: "e1", Windows: []calc.Window{window("A", field("x", 7))}}
	e := New(fb, WithSnapshot(Snapshot{Source: Source{ReportOid: "r"}, Result: prior}))

	require.Error(t, e.Restart(context.Background()))
	assert.True(t, e.CanStart())
	assert.Empty(t, e.Result().Windows)
}

func TestCanStartTracksExecutionID(t *testing.T) {
	fb := &fakeBackend{responses: []*calc.ExecutionResult{
		{ExecutionID: "e1"},
		{ExecutionID: "e1"},
		{ExecutionID: "e2", IsCompleted: true},
	}}
	e := newExecutor(fb, nil, Source{ReportOid: "r"})
	ctx := context.Background()

	check := func() {
		t.Helper()
		assert.Equal(t, e.Result().ExecutionID == "", e.CanStart())
		assert.Equal(t, e.Result().ExecutionID != "", e.CanRestart())
	}
	check()
	require.NoError(t, e.Start(ctx, nil))
	check()
	require.NoError(t, e.Resume(ctx))
	check()
	require.NoError(t, e.Restart(ctx))
	check()
	e.Reset()
	check()
	assert.True(t, e.CanStart())
}

func TestBusyGuardDropsConcurrentCalls(t *testing.T) {
	fb := &fakeBackend{
		gate:      make(chan struct{}),
		entered:   make(chan struct{}, 4),
		responses: []*calc.ExecutionResult{{ExecutionID: "e1", Windows: []calc.Window{window("A")}}},
	}
	e := newExecutor(fb, nil, Source{ReportOid: "r"})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- e.Start(ctx, nil) }()

	select {
	case <-fb.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("backend never called")
	}
	assert.True(t, e.IsExecuting())

	before := e.Result()
	assert.NoError(t, e.Start(ctx, nil))
	assert.NoError(t, e.Restart(ctx))
	assert.Equal(t, before, e.Result())
	assert.Len(t, fb.Calls(), 1)

	close(fb.gate)
	require.NoError(t, <-done)
	assert.False(t, e.IsExecuting())
	assert.Equal(t, "e1", e.Result().ExecutionID)
	assert.Len(t, fb.Calls(), 1)
}

func TestBusyGuardDropsResumeDuringResume(t *testing.T) {
	fb := &fakeBackend{gate: make(chan struct{}), entered: make(chan struct{}, 4)}
	e := New(fb, WithSnapshot(Snapshot{
		Source: Source{ReportOid: "r"},
		Result: calc.ExecutionResult{ExecutionID: "e1"},
	}))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- e.Resume(ctx) }()
	<-fb.entered

	assert.NoError(t, e.Resume(ctx))
	assert.Len(t, fb.Calls(), 1)

	close(fb.gate)
	require.NoError(t, <-done)
}

func TestConcurrentStartsIssueOneCall(t *testing.T) {
	fb := &fakeBackend{gate: make(chan struct{}), entered: make(chan struct{}, 16)}
	e := newExecutor(fb, nil, Source{ReportOid: "r"})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Start(ctx, nil)
		}()
	}
	<-fb.entered
	close(fb.gate)
	wg.Wait()
	assert.Len(t, fb.Calls(), 1)
}

func TestResultDiscardedWhenResetMidFlight(t *testing.T) {
	fb := &fakeBackend{
		gate:      make(chan struct{}),
		entered:   make(chan struct{}, 1),
		responses: []*calc.ExecutionResult{{ExecutionID: "old"}},
	}
	e := newExecutor(fb, nil, Source{FilePath: "/a/one.py", DisplayName: "one.py"})

	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background(), nil) }()
	<-fb.entered

	assert.True(t, e.UseLocalFile("/a/two.py"))
	close(fb.gate)
	require.NoError(t, <-done)
	assert.True(t, e.CanStart(), "a result for the previous file must not land")
}

func TestCanceledContextReleasesGuard(t *testing.T) {
	fb := &fakeBackend{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	e := newExecutor(fb, nil, Source{ReportOid: "r"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Start(ctx, nil) }()
	<-fb.entered
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, e.IsExecuting())
}

func TestSetFieldValueAndApplyDefaults(t *testing.T) {
	e := New(&fakeBackend{}, WithSnapshot(Snapshot{Result: calc.ExecutionResult{
		ExecutionID: "e1",
		Windows:     []calc.Window{window("A", field("x", 1), field("y", 2))},
	}}))

	assert.Error(t, e.SetFieldValue(3, "x", 1))
	assert.Error(t, e.SetFieldValue(0, "nope", 1))
	require.NoError(t, e.SetFieldValue(0, "x", 10))

	n := e.ApplyDefaults(calc.Defaults{"A": {"y": 20}, "Missing": {"z": 1}})
	assert.Equal(t, 1, n)
	assert.Equal(t, calc.Defaults{"A": {"x": 10, "y": 20}}, e.InputValues())
}

func TestResultIsACopy(t *testing.T) {
	e := New(&fakeBackend{}, WithSnapshot(Snapshot{Result: calc.ExecutionResult{
		Windows: []calc.Window{window("A", field("x", 1))},
	}}))
	res := e.Result()
	res.Windows[0].Fields[0].Value = 99
	assert.Equal(t, 1, e.Result().Windows[0].Fields[0].Value)
}

func TestChangeSignalFires(t *testing.T) {
	fb := &fakeBackend{responses: []*calc.ExecutionResult{{ExecutionID: "e1"}}}
	e := newExecutor(fb, nil, Source{ReportOid: "r"})
	ch, cancel := e.Changed().Subscribe()
	defer cancel()

	require.NoError(t, e.Start(context.Background(), nil))
	select {
	case <-ch:
	default:
		t.Fatal("expected a change notification")
	}
	assert.GreaterOrEqual(t, e.Changed().Count(), uint64(3))
}

func TestSetReport(t *testing.T) {
	e := New(&fakeBackend{}, WithSnapshot(Snapshot{
		Source: Source{FilePath: "/x.py", DisplayName: "x.py"},
		Result: calc.ExecutionResult{ExecutionID: "e1"},
	}))

	e.SetReport("r1", "Beam")
	src := e.Source()
	assert.Equal(t, "r1", src.ReportOid)
	assert.Empty(t, src.FilePath)
	assert.True(t, e.CanStart())

	e.SetSilent(true)
	assert.True(t, e.Source().IsSilent)
}
