// Package completion provides the per-call completion delivery queue shared
// by the transport implementations.
package completion

import (
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-stream/xstream"
	"github.com/go-pantheon/fabrica-util/xsync"
)

type task struct {
	done xstream.CompletionFunc
	c    xstream.Completion
}

// Queue serializes completion delivery for one call. Results are posted from
// operation goroutines and drained by a single background goroutine, so done
// callbacks for one call never overlap each other.
type Queue struct {
	tasks     chan task
	closeOnce sync.Once
}

func NewQueue(size int) *Queue {
	q := &Queue{
		tasks: make(chan task, size),
	}

	go func() {
		if err := xsync.Run(q.pump); err != nil {
			log.Errorf("[completion] pump failed. %+v", err)
		}
	}()

	return q
}

func (q *Queue) pump() error {
	for t := range q.tasks {
		t.done(t.c)
	}

	return nil
}

// Post hands the completion to the drain goroutine. Post must not be called
// after Close.
func (q *Queue) Post(done xstream.CompletionFunc, c xstream.Completion) {
	q.tasks <- task{done: done, c: c}
}

// Close lets already posted completions drain, then stops the drain
// goroutine.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.tasks)
	})
}
