package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uyoufu/uzoncalc/pkg/calc"
)

func started(src Source) Snapshot {
	return Snapshot{
		Source: src,
		Result: calc.ExecutionResult{
			ExecutionID: "e1",
			Windows:     []calc.Window{window("A", field("x", 1))},
		},
	}
}

func TestSelect_DifferentNameResets(t *testing.T) {
	e := New(&fakeBackend{}, WithSnapshot(started(Source{FilePath: `C:\calc\one.py`, DisplayName: "one.py"})))
	s := &LocalFileSelector{Dialog: StaticPath("/home/u/two.py"), Executor: e}

	path, reset, err := s.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/home/u/two.py", path)
	assert.True(t, reset)
	assert.True(t, e.CanStart())

	src := e.Source()
	assert.Equal(t, "/home/u/two.py", src.FilePath)
	assert.Equal(t, "two.py", src.DisplayName)
	assert.Empty(t, src.ReportOid)
}

func TestSelect_SameNameKeepsSession(t *testing.T) {
	e := New(&fakeBackend{}, WithSnapshot(started(Source{FilePath: "/a/beam.py", DisplayName: "beam.py"})))
	s := &LocalFileSelector{Dialog: StaticPath(`D:\other\beam.py`), Executor: e}

	_, reset, err := s.Select(context.Background())
	require.NoError(t, err)
	assert.False(t, reset)
	assert.Equal(t, "e1", e.Result().ExecutionID)
	assert.Equal(t, `D:\other\beam.py`, e.Source().FilePath)
}

func TestSelect_ClearsReport(t *testing.T) {
	e := New(&fakeBackend{}, WithSnapshot(started(Source{ReportOid: "r1", DisplayName: "Beam"})))
	s := &LocalFileSelector{Dialog: StaticPath("/x/Beam.py"), Executor: e}

	_, reset, err := s.Select(context.Background())
	require.NoError(t, err)
	assert.True(t, reset)
	assert.Empty(t, e.Source().ReportOid)
}

func TestSelect_CancelledLeavesStateAlone(t *testing.T) {
	snap := started(Source{ReportOid: "r1"})
	e := New(&fakeBackend{}, WithSnapshot(snap))
	s := &LocalFileSelector{Dialog: StaticPath(""), Executor: e}

	path, reset, err := s.Select(context.Background())
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.False(t, reset)
	assert.Equal(t, snap, e.Snapshot())
}

func TestSelect_DialogError(t *testing.T) {
	e := New(&fakeBackend{})
	s := &LocalFileSelector{
		Dialog:   DialogFunc(func(context.Context) (string, error) { return "", errors.New("not desktop") }),
		Executor: e,
	}
	_, _, err := s.Select(context.Background())
	assert.ErrorContains(t, err, "not desktop")

	_, _, err = (&LocalFileSelector{Executor: e}).Select(context.Background())
	assert.Error(t, err)
}
