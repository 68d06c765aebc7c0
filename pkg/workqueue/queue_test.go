package workqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_BasicEnqueue(t *testing.T) {
	q := New()
	defer q.Close()

	executed := false
	task := func(ctx context.Context) (interface{}, error) {
		executed = true
		return "result", nil
	}

	result, err := q.Enqueue(LaneDisk, task)

	assert.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.True(t, executed)
}

func TestQueue_TaskError(t *testing.T) {
	q := New()
	defer q.Close()

	expectedErr := errors.New("task failed")
	task := func(ctx context.Context) (interface{}, error) {
		return nil, expectedErr
	}

	result, err := q.Enqueue(LaneDisk, task)

	assert.Error(t, err)
	assert.Equal(t, expectedErr, err)
	assert.Nil(t, result)
}

func TestQueue_ScanLaneIsSerial(t *testing.T) {
	q := New()
	defer q.Close()

	var running, peak int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				running++
				if running > peak {
					peak = running
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil, nil
			}
			_, _ = q.Enqueue(LaneScan, task)
		}()
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, peak, "scan lane must never run tasks concurrently")
}

func TestQueue_DiskLaneAllowsTwoInFlight(t *testing.T) {
	q := New()
	defer q.Close()

	var running, peak int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				running++
				if running > peak {
					peak = running
				}
				mu.Unlock()

				time.Sleep(20 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil, nil
			}
			_, _ = q.Enqueue(LaneDisk, task)
		}()
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2, "disk lane concurrency limit is two")
}

func TestQueue_LanesRunIndependently(t *testing.T) {
	q := New()
	defer q.Close()

	var diskDone, scanDone int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = q.Enqueue(LaneDisk, func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				diskDone++
				mu.Unlock()
				return nil, nil
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = q.Enqueue(LaneScan, func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				scanDone++
				mu.Unlock()
				return nil, nil
			})
		}()
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, diskDone)
	assert.Equal(t, 3, scanDone)
}

func TestQueue_UnknownLaneIsCreated(t *testing.T) {
	q := New()
	defer q.Close()

	result, err := q.Enqueue("adhoc", func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 0, q.QueueSize("adhoc"))
}

func TestQueue_Stats(t *testing.T) {
	q := New()
	defer q.Close()

	stats := q.Stats()

	require.Contains(t, stats, LaneDisk)
	require.Contains(t, stats, LaneScan)
	assert.Equal(t, 2, stats[LaneDisk]["concurrency"])
	assert.Equal(t, 1, stats[LaneScan]["concurrency"])
}

func TestQueue_WaitForActive(t *testing.T) {
	q := New()
	defer q.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = q.Enqueue(LaneDisk, func(ctx context.Context) (interface{}, error) {
			time.Sleep(50 * time.Millisecond)
			return nil, nil
		})
	}()

	// Give the task a moment to start.
	time.Sleep(10 * time.Millisecond)
	assert.True(t, q.WaitForActive(2*time.Second))
	wg.Wait()
}

func TestQueue_ContextCancellation(t *testing.T) {
	q := New()
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.EnqueueWithContext(ctx, LaneDisk, func(taskCtx context.Context) (interface{}, error) {
		return nil, taskCtx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
}
