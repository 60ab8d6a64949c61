package num

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// A Queue runs a batch of independent operations on a fixed pool of worker goroutines.
type Queue struct {
	threads int
}

// NewQueue creates a queue with the given number of worker threads, or GOMAXPROCS if threads <= 0.
func NewQueue(threads int) *Queue {
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	return &Queue{threads: threads}
}

// Threads returns the number of workers.
func (q *Queue) Threads() int {
	if q == nil {
		return 1
	}
	return q.threads
}

// Call runs fn for each index in [0,n) and waits for completion. The thread argument is the
// worker id in [0,Threads()) so that callers can keep per worker state such as random sources.
// The first error returned by any call is returned.
func (q *Queue) Call(n int, fn func(thread, i int) error) error {
	threads := min(q.Threads(), n)
	if threads <= 1 {
		for i := 0; i < n; i++ {
			if err := fn(0, i); err != nil {
				return err
			}
		}
		return nil
	}
	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	var g errgroup.Group
	for thread := 0; thread < threads; thread++ {
		thread := thread
		g.Go(func() error {
			for i := range jobs {
				if err := fn(thread, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Run is like Call for operations which cannot fail.
func (q *Queue) Run(n int, fn func(thread, i int)) {
	q.Call(n, func(thread, i int) error {
		fn(thread, i)
		return nil
	})
}
