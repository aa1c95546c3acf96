package editor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uyoufu/uzoncalc/pkg/api"
	"github.com/uyoufu/uzoncalc/pkg/notify"
	"github.com/uyoufu/uzoncalc/pkg/signal"
)

type fakeStore struct {
	reqs []api.SaveReportRequest
	oid  string
	err  error
}

func (f *fakeStore) SaveReport(_ context.Context, req api.SaveReportRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.oid, f.err
}

func TestValidName(t *testing.T) {
	tests := map[string]bool{
		"beam":       true,
		"_private":   true,
		"Beam_2":     true,
		"2beam":      false,
		"beam-check": false,
		"beam check": false,
		"":           false,
		"梁":          false,
	}
	for name, want := range tests {
		assert.Equal(t, want, ValidName(name), name)
	}
}

func TestCheckNameNotifies(t *testing.T) {
	rec := &notify.Recorder{}
	assert.False(t, CheckName("1x", rec))
	assert.True(t, rec.Has("error", notify.InvalidReportName))
	assert.True(t, CheckName("x1", rec))
	assert.Len(t, rec.Entries(), 1)
	assert.False(t, CheckName("", nil))
}

func TestSave_NewReport(t *testing.T) {
	store := &fakeStore{oid: "r-new"}
	rec := &notify.Recorder{}
	list := signal.New()
	s := &Saver{API: store, Notifier: rec, ListChanged: list}
	d := &Draft{Name: "beam", Code: "x = 1", CategoryOid: "c1"}

	ok, err := s.Save(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "r-new", d.ReportOid)
	assert.Equal(t, api.SaveReportRequest{ReportName: "beam", Code: "x = 1", CategoryOid: "c1"}, store.reqs[0])
	assert.True(t, rec.Has("success", notify.SaveSucceeded))
	assert.Equal(t, uint64(1), list.Count())

	// Category is only sent on creation.
	_, err = s.Save(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "r-new", store.reqs[1].ReportOid)
	assert.Empty(t, store.reqs[1].CategoryOid)
}

func TestSave_SaveAsMintsFreshOid(t *testing.T) {
	store := &fakeStore{oid: "r1"}
	s := &Saver{API: store, SaveAs: true, NewID: func() string { return "fresh" }}
	d := &Draft{Name: "beam", ReportOid: "r1"}

	ok, err := s.Save(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh", d.ReportOid)

	s.NewID = nil
	_, err = s.Save(context.Background(), d)
	require.NoError(t, err)
	assert.Len(t, d.ReportOid, 26)
}

func TestSave_InvalidNameSkipsBackend(t *testing.T) {
	store := &fakeStore{}
	rec := &notify.Recorder{}
	s := &Saver{API: store, Notifier: rec}

	ok, err := s.Save(context.Background(), &Draft{Name: "bad name"})
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.False(t, ok)
	assert.Empty(t, store.reqs)
	assert.True(t, rec.Has("error", notify.InvalidReportName))
}

func TestSave_BackendFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	list := signal.New()
	s := &Saver{API: store, ListChanged: list}
	d := &Draft{Name: "beam", ReportOid: "keep"}

	ok, err := s.Save(context.Background(), d)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, "keep", d.ReportOid)
	assert.Zero(t, list.Count())
}

func TestRunner(t *testing.T) {
	store := &fakeStore{oid: "r1"}
	start := signal.New()
	executing := false
	r := &Runner{
		Saver:       &Saver{API: store},
		Executing:   func() bool { return executing },
		StartSignal: start,
	}
	ctx := context.Background()

	started, err := r.Run(ctx, &Draft{Name: "beam"})
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, uint64(1), start.Count())

	executing = true
	started, err = r.Run(ctx, &Draft{Name: "beam"})
	require.NoError(t, err)
	assert.False(t, started)
	assert.Len(t, store.reqs, 1, "no save while executing")

	executing = false
	started, err = r.Run(ctx, &Draft{Name: "9lives"})
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.False(t, started)

	store.err = errors.New("x")
	started, err = r.Run(ctx, &Draft{Name: "beam"})
	assert.Error(t, err)
	assert.False(t, started)
	assert.Equal(t, uint64(1), start.Count())
}
