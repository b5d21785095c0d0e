package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-pantheon/fabrica-stream/conf"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/go-pantheon/fabrica-util/xsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()

	e := New(conf.Default().Executor)

	t.Cleanup(func() {
		_ = e.Stop(context.Background())
	})

	return e
}

func TestExecutorRunsInSubmissionOrder(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t)

	const n = 100

	var got []int

	for i := 0; i < n; i++ {
		i := i

		require.NoError(t, e.Schedule(func() {
			got = append(got, i)
		}))
	}

	require.NoError(t, e.Dispatch(func() {}))

	require.Len(t, got, n)

	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestExecutorNeverOverlapsTasks(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t)

	var (
		running atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 20; j++ {
				_ = e.Schedule(func() {
					if running.Add(1) != 1 {
						overlap.Store(true)
					}

					time.Sleep(time.Microsecond * 50)
					running.Add(-1)
				})
			}
		}()
	}

	wg.Wait()
	require.NoError(t, e.Dispatch(func() {}))
	assert.False(t, overlap.Load())
}

func TestExecutorDispatchWaits(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t)

	done := false

	require.NoError(t, e.Dispatch(func() {
		time.Sleep(time.Millisecond * 20)

		done = true
	}))

	assert.True(t, done)
}

func TestExecutorScheduleAfterStop(t *testing.T) {
	t.Parallel()

	e := New(conf.Default().Executor)
	require.NoError(t, e.Stop(context.Background()))

	err := e.Schedule(func() {})
	assert.True(t, errors.Is(err, xsync.ErrIsStopped))
}

func TestExecutorRecoversPanickingTask(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t)

	require.NoError(t, e.Schedule(func() {
		panic("boom")
	}))

	// the executor keeps running after a panicking task
	ran := false

	require.NoError(t, e.Dispatch(func() {
		ran = true
	}))

	assert.True(t, ran)
}
