package window

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemWindowStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	ws := NewMemWindowStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	c, err := ws.Count(ctx, "msgs", "user1", t0, 10*time.Second)
	assert.NoError(err)
	assert.Equal(0, c)

	for i := 0; i < 3; i++ {
		c, err = ws.Record(ctx, "msgs", "user1", Entry{At: t0.Add(time.Duration(i) * time.Second)}, 10*time.Second)
		assert.NoError(err)
		assert.Equal(i+1, c)
	}

	// different key is independent
	c, err = ws.Record(ctx, "msgs", "user2", Entry{At: t0}, 10*time.Second)
	assert.NoError(err)
	assert.Equal(1, c)

	// entries older than the window are pruned on insert
	c, err = ws.Record(ctx, "msgs", "user1", Entry{At: t0.Add(11500 * time.Millisecond)}, 10*time.Second)
	assert.NoError(err)
	assert.Equal(2, c)

	c, err = ws.Count(ctx, "msgs", "user1", t0.Add(30*time.Second), 10*time.Second)
	assert.NoError(err)
	assert.Equal(0, c)

	assert.NoError(ws.Reset(ctx, "msgs", "user2"))
	c, err = ws.Count(ctx, "msgs", "user2", t0, 10*time.Second)
	assert.NoError(err)
	assert.Equal(0, c)
}

func TestMemWindowStoreEntries(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	ws := NewMemWindowStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := ws.Record(ctx, "joins", "guild1", Entry{At: t0.Add(2 * time.Second), Member: "b"}, time.Minute)
	assert.NoError(err)
	// out of order arrival is kept sorted
	_, err = ws.Record(ctx, "joins", "guild1", Entry{At: t0, Member: "a"}, time.Minute)
	assert.NoError(err)

	l, err := ws.Entries(ctx, "joins", "guild1", t0.Add(3*time.Second), time.Minute)
	assert.NoError(err)
	assert.Equal(2, len(l))
	assert.Equal("a", l[0].Member)
	assert.Equal("b", l[1].Member)

	// returned slice is a copy
	l[0].Member = "mutated"
	l, err = ws.Entries(ctx, "joins", "guild1", t0.Add(3*time.Second), time.Minute)
	assert.NoError(err)
	assert.Equal("a", l[0].Member)

	l, err = ws.Entries(ctx, "joins", "nope", t0, time.Minute)
	assert.NoError(err)
	assert.Empty(l)
}

func TestMemWindowStoreDropIdle(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	ws := NewMemWindowStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := ws.Record(ctx, "msgs", "old", Entry{At: t0}, time.Minute)
	assert.NoError(err)
	_, err = ws.Record(ctx, "msgs", "fresh", Entry{At: t0.Add(time.Hour)}, time.Minute)
	assert.NoError(err)
	assert.Equal(2, ws.Size())

	assert.Equal(1, ws.DropIdle(t0.Add(30*time.Minute)))
	assert.Equal(1, ws.Size())
	c, err := ws.Count(ctx, "msgs", "fresh", t0.Add(time.Hour), time.Minute)
	assert.NoError(err)
	assert.Equal(1, c)
}

func TestMemWindowStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	ws := NewMemWindowStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// run with -race
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := ws.Record(ctx, "msgs", "user1", Entry{At: t0}, time.Hour)
				assert.NoError(err)
				_, err = ws.Count(ctx, "msgs", "user1", t0, time.Hour)
				assert.NoError(err)
			}
		}()
	}
	wg.Wait()

	c, err := ws.Count(ctx, "msgs", "user1", t0, time.Hour)
	assert.NoError(err)
	assert.Equal(100, c)
}

func TestRedisWindowStoreBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	ws, err := NewRedisWindowStore("redis://localhost:6379/0", time.Hour)
	if err != nil {
		t.Fail()
	}
	t0 := time.Now()
	assert.NoError(ws.Reset(ctx, "test", "user1"))
	for i := 0; i < 3; i++ {
		c, err := ws.Record(ctx, "test", "user1", Entry{At: t0, Member: "user1"}, time.Minute)
		assert.NoError(err)
		assert.Equal(i+1, c)
	}
	l, err := ws.Entries(ctx, "test", "user1", t0, time.Minute)
	assert.NoError(err)
	assert.Equal(3, len(l))
	assert.NoError(ws.Reset(ctx, "test", "user1"))
}
