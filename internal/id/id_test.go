package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Sortable(t *testing.T) {
	t.Parallel()

	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Len(t, next, 26)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestAt_RoundTripsTime(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 4, 8, 15, 0, 0, time.UTC)
	s := At(ts)

	got, err := Time(s)
	require.NoError(t, err)
	assert.True(t, ts.Equal(got), "got %v", got)

	_, err = Time("not-a-ulid")
	assert.Error(t, err)
}
