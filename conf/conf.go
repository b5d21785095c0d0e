package conf

import (
	"time"
)

type Config struct {
	Stream   Stream
	Executor Executor
}

type Stream struct {
	// WriteQueueCapacity is the initial capacity of the buffered write queue.
	WriteQueueCapacity int
	// FinalWriteTimeout bounds how long WriteAndFinish waits for the final
	// write to come back before giving up on it.
	FinalWriteTimeout time.Duration
}

type Executor struct {
	// QueueCapacity is the initial capacity of the task queue.
	QueueCapacity int
	// StopTimeout is the grace period for draining queued tasks on stop.
	StopTimeout time.Duration
}

func Default() Config {
	stream := Stream{
		WriteQueueCapacity: 16,
		FinalWriteTimeout:  time.Millisecond * 500,
	}

	executor := Executor{
		QueueCapacity: 64,
		StopTimeout:   time.Second * 3,
	}

	return Config{
		Stream:   stream,
		Executor: executor,
	}
}
