package tasks

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Recycler ends a worker process after a bounded number of completed runs.
// The worker stops polling and exits; the process supervisor starts a fresh
// one with a new browser.
type Recycler struct {
	max  int64
	done chan struct{}
	n    atomic.Int64
	once sync.Once
}

// NewRecycler returns a recycler that fires after max completions. A max of
// zero or less never fires.
func NewRecycler(max int) *Recycler {
	return &Recycler{max: int64(max), done: make(chan struct{})}
}

// Complete records one finished run.
func (r *Recycler) Complete() {
	n := r.n.Add(1)
	if r.max > 0 && n >= r.max {
		r.once.Do(func() {
			zap.L().Info("worker reached its task limit, recycling",
				zap.String("component", "tasks"),
				zap.Int64("completed", n),
			)
			close(r.done)
		})
	}
}

// Done is closed when the worker should stop.
func (r *Recycler) Done() <-chan struct{} {
	return r.done
}

// Completed returns the number of finished runs.
func (r *Recycler) Completed() int64 {
	return r.n.Load()
}

// Recycled reports whether the task limit has been reached.
func (r *Recycler) Recycled() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
