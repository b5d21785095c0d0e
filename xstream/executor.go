package xstream

// Executor is a serial execution context: scheduled tasks run one at a time,
// in submission order, on the executor's own goroutine. Schedule never blocks
// the caller and is safe to call from any goroutine.
type Executor interface {
	Schedule(task func()) error
}
