package objectid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MonotonicWithinSameMillisecond(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := NewGenerator()
	g.now = func() time.Time { return fixed }

	prev := g.New()
	for i := 0; i < 1000; i++ {
		next := g.New()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := New()
		assert.Len(t, id, 26)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestTime_RoundTrip(t *testing.T) {
	fixed := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	g := NewGenerator()
	g.now = func() time.Time { return fixed }

	got, err := Time(g.New())
	require.NoError(t, err)
	assert.True(t, got.Equal(fixed))

	_, err = Time("not-an-id")
	assert.Error(t, err)
}
