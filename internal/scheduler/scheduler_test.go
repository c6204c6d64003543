package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRunsRepeatedly(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	require.NoError(t, s.Every("evict", 20*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return errors.New("partial")
	}))
	assert.Equal(t, 1, s.Jobs())

	s.Start()
	defer s.Stop()
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestTagsAreUnique(t *testing.T) {
	s := New(nil)
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Every("evict", time.Minute, noop))
	assert.Error(t, s.Every("evict", time.Minute, noop))
}

func TestStopCancelsJobContext(t *testing.T) {
	s := New(nil)
	s.Stop()
	assert.ErrorIs(t, s.ctx.Err(), context.Canceled)
}
