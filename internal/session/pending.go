package session

import "context"

// outcome is the single value a completion resolves to.
type outcome[T any] struct {
	value T
	err   error
}

// completion is a single-resolution handle for one pending native operation.
//
// The channel is buffered so the resolving side never blocks. Exactly-once
// resolution is guaranteed by the pending tables: a completion is resolved
// only by whoever removed it from its table under the session lock.
type completion[T any] struct {
	ch chan outcome[T]
}

func newCompletion[T any]() *completion[T] {
	return &completion[T]{ch: make(chan outcome[T], 1)}
}

func (c *completion[T]) resolve(v T) {
	c.ch <- outcome[T]{value: v}
}

func (c *completion[T]) fail(err error) {
	var zero T
	c.ch <- outcome[T]{value: zero, err: err}
}

// await blocks until the completion resolves or ctx is done. The caller is
// responsible for withdrawing the pending entry when ctx wins.
func (c *completion[T]) await(ctx context.Context) (T, error) {
	select {
	case out := <-c.ch:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
