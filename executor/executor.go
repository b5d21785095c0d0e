// Package executor provides the serial execution context that streams
// schedule their completion handling on.
package executor

import (
	"context"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-stream/conf"
	"github.com/go-pantheon/fabrica-stream/xstream"
	"github.com/go-pantheon/fabrica-util/xsync"
)

var _ xstream.Executor = (*Executor)(nil)

// Executor runs scheduled tasks one at a time, in submission order, on a
// single goroutine. Schedule never blocks, so tasks may safely be scheduled
// from completion callbacks even while a previously scheduled task has the
// executor goroutine blocked.
type Executor struct {
	xsync.Stoppable

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
}

func New(conf conf.Executor) *Executor {
	e := &Executor{
		Stoppable: xsync.NewStopper(conf.StopTimeout),
		queue:     make([]func(), 0, conf.QueueCapacity),
	}

	e.cond = sync.NewCond(&e.mu)

	e.GoAndStop("executor.run", func() error {
		return xsync.Run(e.loop)
	}, func() error {
		return e.Stop(context.Background())
	})

	return e
}

func (e *Executor) loop() error {
	for {
		task, ok := e.next()
		if !ok {
			return xsync.ErrStopByTrigger
		}

		e.invoke(task)
	}
}

// next blocks until a task is available. It returns false once the executor
// has been stopped and the queue is drained.
func (e *Executor) next() (func(), bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for len(e.queue) == 0 && !e.closed {
		e.cond.Wait()
	}

	if len(e.queue) == 0 {
		return nil, false
	}

	task := e.queue[0]
	e.queue = e.queue[1:]

	return task, true
}

func (e *Executor) invoke(task func()) {
	if err := xsync.Run(func() error {
		task()
		return nil
	}); err != nil {
		log.Errorf("[executor] task failed. %+v", err)
	}
}

// Schedule appends the task to the queue. It never blocks.
func (e *Executor) Schedule(task func()) error {
	if e.OnStopping() {
		return xsync.ErrIsStopped
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return xsync.ErrIsStopped
	}

	e.queue = append(e.queue, task)
	e.cond.Signal()

	return nil
}

// Dispatch schedules the task and blocks until it has run. It must not be
// called from the executor goroutine itself.
func (e *Executor) Dispatch(task func()) error {
	done := make(chan struct{})

	if err := e.Schedule(func() {
		defer close(done)

		task()
	}); err != nil {
		return err
	}

	<-done

	return nil
}

// Stop lets already queued tasks drain, then stops the executor goroutine.
func (e *Executor) Stop(ctx context.Context) error {
	return e.TurnOff(func() error {
		e.mu.Lock()
		e.closed = true
		e.cond.Broadcast()
		e.mu.Unlock()

		return nil
	})
}
