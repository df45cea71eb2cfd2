package bridge

import (
	"context"
	"encoding/json"
	"sync"
)

// Future is the eventual outcome of a content call
type Future struct {
	id     int64
	done   chan struct{}
	once   sync.Once
	result json.RawMessage
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result json.RawMessage, err error) {
	f.once.Do(func() {
		f.result, f.err = result, err
		close(f.done)
	})
}

// Done is closed once the call has an outcome
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome. It blocks until Done is closed.
func (f *Future) Result() (json.RawMessage, error) {
	<-f.done
	return f.result, f.err
}

// Wait blocks until the call completes or ctx is done
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
