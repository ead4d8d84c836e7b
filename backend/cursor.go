package backend

import (
	"errors"
	"iter"
	"sync"
)

// ErrCursorConsumed is yielded when a cursor is iterated a second time.
var ErrCursorConsumed = errors.New("backend: cursor already consumed")

// Cursor is a forward-only, one-shot sequence of rows bound to an open
// backend read. Per-row failures are items; iteration may continue past them.
type Cursor[T any] struct {
	seq       iter.Seq2[T, error]
	closeFn   func() error
	closeOnce sync.Once
	closeErr  error

	mu       sync.Mutex
	consumed bool
}

// NewCursor wraps seq. closeFn releases the underlying read and may be nil.
func NewCursor[T any](seq iter.Seq2[T, error], closeFn func() error) *Cursor[T] {
	return &Cursor[T]{seq: seq, closeFn: closeFn}
}

// SliceCursor yields rows from memory.
func SliceCursor[T any](rows []T) *Cursor[T] {
	return NewCursor(func(yield func(T, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	}, nil)
}

// ErrorCursor yields a single error.
func ErrorCursor[T any](err error) *Cursor[T] {
	return NewCursor(func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}, nil)
}

// All returns the one-shot iterator. The cursor is closed when iteration ends,
// whether exhausted or abandoned.
func (c *Cursor[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		c.mu.Lock()
		if c.consumed {
			c.mu.Unlock()
			var zero T
			yield(zero, ErrCursorConsumed)
			return
		}
		c.consumed = true
		c.mu.Unlock()

		defer c.Close()
		c.seq(yield)
	}
}

// Close releases the underlying read. It is safe to call more than once.
func (c *Cursor[T]) Close() error {
	c.closeOnce.Do(func() {
		if c.closeFn != nil {
			c.closeErr = c.closeFn()
		}
	})
	return c.closeErr
}

// Collect drains the cursor, stopping at the first error.
func (c *Cursor[T]) Collect() ([]T, error) {
	var out []T
	for v, err := range c.All() {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, c.Close()
}

// MapCursor converts every item of c with fn. Conversion failures become items.
func MapCursor[T, U any](c *Cursor[T], fn func(T) (U, error)) *Cursor[U] {
	return NewCursor(func(yield func(U, error) bool) {
		for v, err := range c.All() {
			var out U
			if err == nil {
				out, err = fn(v)
			}
			if !yield(out, err) {
				return
			}
		}
	}, c.Close)
}
