// Keyed worker pool: work items sharing a key run one at a time, in arrival order, while different keys proceed in parallel.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrQueueFull = errors.New("scheduler queue full for key")
	ErrShutdown  = errors.New("scheduler is shut down")
)

// Scheduler runs work on a fixed number of workers. Events for the same community are routed to whichever worker is already handling that community.
type Scheduler[T any] struct {
	maxConcurrency int
	maxQueue       int

	do func(context.Context, T) error

	feeder   chan *task[T]
	quit     chan struct{}
	quitOnce sync.Once
	workers  sync.WaitGroup

	lk     sync.Mutex
	active map[string][]*task[T]

	ident string

	// metrics
	itemsAdded     prometheus.Counter
	itemsProcessed prometheus.Counter
	itemsDropped   prometheus.Counter
	workersActive  prometheus.Gauge

	log *slog.Logger
}

func NewScheduler[T any](maxC, maxQ int, ident string, do func(context.Context, T) error) *Scheduler[T] {
	p := &Scheduler[T]{
		maxConcurrency: maxC,
		maxQueue:       maxQ,

		do: do,

		feeder: make(chan *task[T]),
		quit:   make(chan struct{}),
		active: make(map[string][]*task[T]),

		ident: ident,

		itemsAdded:     workItemsAdded.WithLabelValues(ident),
		itemsProcessed: workItemsProcessed.WithLabelValues(ident),
		itemsDropped:   workItemsDropped.WithLabelValues(ident),
		workersActive:  workersActive.WithLabelValues(ident),

		log: slog.Default().With("system", "keyed-scheduler", "ident", ident),
	}

	p.workers.Add(maxC)
	for i := 0; i < maxC; i++ {
		go p.worker()
	}

	p.workersActive.Set(float64(maxC))

	return p
}

// Stops the workers once every item already queued behind a running key has been handled. Later AddWork calls fail with ErrShutdown.
func (p *Scheduler[T]) Shutdown() {
	p.log.Info("shutting down keyed scheduler")
	p.quitOnce.Do(func() { close(p.quit) })
	p.workers.Wait()
	p.workersActive.Set(0)
	p.log.Info("keyed scheduler shutdown complete")
}

type task[T any] struct {
	key string
	val T
}

// Queues val behind any in-flight work for key. Blocks until a worker is free when key is idle.
func (p *Scheduler[T]) AddWork(ctx context.Context, key string, val T) error {
	t := &task[T]{
		key: key,
		val: val,
	}
	p.lk.Lock()

	a, ok := p.active[key]
	if ok {
		if p.maxQueue > 0 && len(a) >= p.maxQueue {
			p.lk.Unlock()
			p.itemsDropped.Inc()
			return ErrQueueFull
		}
		p.active[key] = append(a, t)
		p.lk.Unlock()
		p.itemsAdded.Inc()
		return nil
	}

	p.active[key] = []*task[T]{}
	p.lk.Unlock()

	select {
	case p.feeder <- t:
		p.itemsAdded.Inc()
		return nil
	case <-ctx.Done():
		p.handOff(key)
		return ctx.Err()
	case <-p.quit:
		p.handOff(key)
		return ErrShutdown
	}
}

// Called when the item claiming an idle key never reached a worker: passes the key on to whatever queued behind it meanwhile.
func (p *Scheduler[T]) handOff(key string) {
	next := p.next(key)
	if next == nil {
		return
	}
	select {
	case p.feeder <- next:
	case <-p.quit:
		n := 1
		for p.next(key) != nil {
			n++
		}
		p.itemsDropped.Add(float64(n))
		p.log.Warn("dropped queued work at shutdown", "key", key, "count", n)
	}
}

func (p *Scheduler[T]) worker() {
	defer p.workers.Done()
	for {
		select {
		case t := <-p.feeder:
			p.runKey(t)
		case <-p.quit:
			return
		}
	}
}

// Runs t, then everything queued behind it for the same key, releasing the key once its queue is empty.
func (p *Scheduler[T]) runKey(t *task[T]) {
	for t != nil {
		if err := p.do(context.Background(), t.val); err != nil {
			p.log.Error("event handler failed", "key", t.key, "err", err)
		}
		p.itemsProcessed.Inc()
		t = p.next(t.key)
	}
}

func (p *Scheduler[T]) next(key string) *task[T] {
	p.lk.Lock()
	defer p.lk.Unlock()
	rem := p.active[key]
	if len(rem) == 0 {
		delete(p.active, key)
		return nil
	}
	p.active[key] = rem[1:]
	return rem[0]
}
