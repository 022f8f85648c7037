// Package jobqueue bounds how many goroutines run at once.
package jobqueue

import (
	"errors"
	"sync"
)

var ErrQueueFull = errors.New("job queue full")
var ErrQueueEmpty = errors.New("job queue empty")

// SimpleQueue admits up to concurrent+queued jobs and lets concurrent of them run.
type SimpleQueue struct {
	sync.Mutex
	jobs    chan struct{}
	maxJobs int
	qsize   int
	err     error
}

func NewSimpleQueue(concurrent int, queued int) *SimpleQueue {
	if concurrent < 1 {
		concurrent = 1
	}
	return &SimpleQueue{
		jobs:    make(chan struct{}, concurrent),
		maxJobs: concurrent + queued,
	}
}

// Add reserves a place in the queue.
func (q *SimpleQueue) Add() error {
	q.Lock()
	defer q.Unlock()
	if q.err != nil {
		return q.err
	}
	if q.qsize >= q.maxJobs {
		return ErrQueueFull
	}
	q.qsize++
	return nil
}

// SetNoAccept makes further Add calls fail with err.
func (q *SimpleQueue) SetNoAccept(err error) {
	q.Lock()
	q.err = err
	q.Unlock()
}

// Start blocks until a run slot is free.
func (q *SimpleQueue) Start() {
	q.jobs <- struct{}{}
}

// End frees a run slot.
func (q *SimpleQueue) End() error {
	select {
	case <-q.jobs:
		return nil
	default:
		return ErrQueueEmpty
	}
}

// Remove gives back the place reserved by Add.
func (q *SimpleQueue) Remove() error {
	q.Lock()
	defer q.Unlock()
	if q.qsize == 0 {
		return ErrQueueEmpty
	}
	q.qsize--
	return nil
}

func (q *SimpleQueue) GetSize() (concurrent int, queued int) {
	q.Lock()
	concurrent = len(q.jobs)
	queued = q.qsize - concurrent
	q.Unlock()
	return
}

// Map runs fn over keys with at most concurrent calls in flight and returns
// the results by key.
func Map[K comparable, V any](keys []K, concurrent int, fn func(K) V) map[K]V {
	q := NewSimpleQueue(concurrent, len(keys))
	out := make(map[K]V, len(keys))
	var lock sync.Mutex
	var wg sync.WaitGroup
	for _, k := range keys {
		if err := q.Add(); err != nil {
			continue
		}
		wg.Add(1)
		go func(k K) {
			defer wg.Done()
			defer q.Remove()
			q.Start()
			defer q.End()
			v := fn(k)
			lock.Lock()
			out[k] = v
			lock.Unlock()
		}(k)
	}
	wg.Wait()
	return out
}
