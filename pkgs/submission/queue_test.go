package submission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	timeoutShort = 2 * time.Second
	tick         = 5 * time.Millisecond
)

func TestQueueRunsInArrivalOrder(t *testing.T) {
	q := NewQueue(16)

	var mu sync.Mutex
	var order []int
	results := make(chan error, 5)

	// Jobs are enqueued before the worker starts, so arrival order is fixed
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		ready := make(chan struct{})
		go func() {
			defer wg.Done()
			close(ready)
			results <- q.Do(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		<-ready
		require.Eventually(t, func() bool { return len(q.jobs) == i+1 }, timeoutShort, tick)
	}

	q.Start()
	wg.Wait()
	q.Stop()
	close(results)

	for err := range results {
		require.NoError(t, err)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueueDropsExpiredJob(t *testing.T) {
	q := NewQueue(4)
	ctx, cancel := context.WithCancel(context.Background())

	ran := false
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Do(ctx, func(ctx context.Context) error {
			ran = true
			return nil
		})
	}()
	require.Eventually(t, func() bool { return len(q.jobs) == 1 }, timeoutShort, tick)

	cancel()
	q.Start()

	require.ErrorIs(t, <-errCh, context.Canceled)
	require.False(t, ran)
	q.Stop()
}

func TestQueueRejectsAfterStop(t *testing.T) {
	q := NewQueue(1)
	q.Start()
	q.Stop()
	q.Stop()

	err := q.Do(context.Background(), func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrQueueClosed)
}
