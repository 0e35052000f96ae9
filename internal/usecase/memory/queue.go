package memory

import (
	"context"
	"log/slog"
	"sync"

	"jomra/internal/domain"
)

type writeOp struct {
	name string
	fn   func(ctx context.Context) error
	done chan error
}

// writeQueue serialises every persistent mutation on one goroutine.
type writeQueue struct {
	ops    chan writeOp
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newWriteQueue(size int, logger *slog.Logger) *writeQueue {
	if size <= 0 {
		size = 64
	}
	q := &writeQueue{ops: make(chan writeOp, size), logger: logger}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *writeQueue) run() {
	defer q.wg.Done()
	// Writes outlive the request that queued them.
	ctx := context.Background()
	for op := range q.ops {
		err := op.fn(ctx)
		if err != nil {
			q.logger.Warn("memory write failed", "op", op.name, "error", err)
		}
		if op.done != nil {
			op.done <- err
		}
	}
}

// enqueue schedules fn without waiting for it.
func (q *writeQueue) enqueue(name string, fn func(ctx context.Context) error) error {
	return q.send(writeOp{name: name, fn: fn})
}

// do schedules fn and waits for it to run or ctx to end.
func (q *writeQueue) do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	if err := q.send(writeOp{name: name, fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *writeQueue) send(op writeOp) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return domain.ErrMemoryClosed
	}
	q.ops <- op
	return nil
}

// close stops intake and waits until queued writes have run or ctx ends.
func (q *writeQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ops)
	}
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
