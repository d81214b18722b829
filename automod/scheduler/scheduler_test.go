package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	key string
	seq int
}

func TestPerKeyOrdering(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var lk sync.Mutex
	seen := map[string][]int{}
	running := map[string]int{}
	overlap := false

	s := NewScheduler(4, 0, "test-order", func(ctx context.Context, it item) error {
		lk.Lock()
		running[it.key]++
		if running[it.key] > 1 {
			overlap = true
		}
		lk.Unlock()

		time.Sleep(time.Millisecond)

		lk.Lock()
		running[it.key]--
		seen[it.key] = append(seen[it.key], it.seq)
		lk.Unlock()
		return nil
	})

	for i := 0; i < 20; i++ {
		for _, k := range []string{"g1", "g2", "g3"} {
			require.NoError(t, s.AddWork(ctx, k, item{key: k, seq: i}))
		}
	}
	s.Shutdown()

	assert.False(overlap, "same-key items never run concurrently")
	for _, k := range []string{"g1", "g2", "g3"} {
		require.Len(t, seen[k], 20)
		for i, v := range seen[k] {
			assert.Equal(i, v)
		}
	}
}

func TestHandlerErrorsDoNotStop(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var lk sync.Mutex
	count := 0
	s := NewScheduler(2, 0, "test-errors", func(ctx context.Context, n int) error {
		lk.Lock()
		count++
		lk.Unlock()
		if n%2 == 0 {
			return fmt.Errorf("bad item %d", n)
		}
		return nil
	})
	for i := 0; i < 10; i++ {
		require.NoError(t, s.AddWork(ctx, "g1", i))
	}
	s.Shutdown()
	assert.Equal(10, count)
}

func TestQueueLimit(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var done atomic.Int32
	s := NewScheduler(1, 2, "test-limit", func(ctx context.Context, n int) error {
		if n == 0 {
			started <- struct{}{}
			<-release
		}
		done.Add(1)
		return nil
	})

	require.NoError(t, s.AddWork(ctx, "g1", 0))
	<-started
	assert.NoError(s.AddWork(ctx, "g1", 1))
	assert.NoError(s.AddWork(ctx, "g1", 2))
	assert.ErrorIs(s.AddWork(ctx, "g1", 3), ErrQueueFull)
	close(release)
	s.Shutdown()
	// queued items behind the blocked one still ran before shutdown returned
	assert.Equal(int32(3), done.Load())
}

func TestAddWorkAfterShutdown(t *testing.T) {
	s := NewScheduler(2, 0, "test-shutdown", func(ctx context.Context, n int) error {
		return nil
	})
	require.NoError(t, s.AddWork(context.Background(), "g1", 1))
	s.Shutdown()
	assert.ErrorIs(t, s.AddWork(context.Background(), "g2", 2), ErrShutdown)
	// idempotent
	s.Shutdown()
}
