package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signin/pkg/slogx"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 1, p.err
}

func TestHousekeeping(t *testing.T) {
	t.Parallel()

	t.Run("cleans up on start", func(t *testing.T) {
		t.Parallel()
		resets := &countingPurger{}
		h := NewHousekeeping(slogx.Discard(), time.Hour, PurgeTask{Name: "password_resets", Purger: resets})

		h.Start()
		h.Stop()

		require.Equal(t, int32(1), resets.calls.Load())
	})

	t.Run("failing task does not stop the others", func(t *testing.T) {
		t.Parallel()
		broken := &countingPurger{err: errors.New("database is locked")}
		resets := &countingPurger{}
		h := NewHousekeeping(slogx.Discard(), time.Hour,
			PurgeTask{Name: "broken", Purger: broken},
			PurgeTask{Name: "password_resets", Purger: resets},
		)

		h.Start()
		h.Stop()

		require.Equal(t, int32(1), broken.calls.Load())
		require.Equal(t, int32(1), resets.calls.Load())
	})

	t.Run("runs on every tick", func(t *testing.T) {
		t.Parallel()
		resets := &countingPurger{}
		h := NewHousekeeping(slogx.Discard(), 10*time.Millisecond, PurgeTask{Name: "password_resets", Purger: resets})

		h.Start()
		require.Eventually(t, func() bool { return resets.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
		h.Stop()
	})

	t.Run("defaults the interval", func(t *testing.T) {
		t.Parallel()
		h := NewHousekeeping(slogx.Discard(), 0)
		require.Equal(t, time.Hour, h.Interval)
	})
}
