package idx_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signin/pkg/idx"
)

func TestNew(t *testing.T) {
	t.Parallel()

	id := idx.New()
	u, err := ulid.ParseStrict(id)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), ulid.Time(u.Time()), time.Minute)
	require.NotEqual(t, id, idx.New())
}

func TestNewAt(t *testing.T) {
	t.Parallel()

	tm := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	u, err := ulid.ParseStrict(idx.NewAt(tm))
	require.NoError(t, err)
	require.True(t, tm.Equal(ulid.Time(u.Time())))

	a := idx.NewAt(time.Unix(1, 0))
	b := idx.NewAt(time.Unix(2, 0))
	require.Less(t, a, b)
}

func TestGenerator_MonotonicWithinMillisecond(t *testing.T) {
	t.Parallel()

	g := idx.NewGenerator(rand.New(rand.NewSource(1))) // #nosec G404
	tm := time.Unix(1700000000, 0)

	prev := g.At(tm)
	for range 100 {
		next := g.At(tm)
		require.Less(t, prev, next)
		require.Equal(t, prev[:10], next[:10], "timestamp part is shared")
		prev = next
	}
}
