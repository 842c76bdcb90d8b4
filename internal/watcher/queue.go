package watcher

import (
	"sync"
	"time"
)

// fileQueue debounces file paths and hands each settled path to a single consumer.
// A path already waiting in the queue is not queued again.
type fileQueue struct {
	debounce time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	waiting map[string]struct{}
	closed  bool

	ready chan string
	done  chan struct{}
}

func newFileQueue(debounce time.Duration, size int) *fileQueue {
	return &fileQueue{
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
		waiting:  make(map[string]struct{}),
		ready:    make(chan string, size),
		done:     make(chan struct{}),
	}
}

// touch (re)starts the quiet period for path.
func (q *fileQueue) touch(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if t, ok := q.timers[path]; ok {
		t.Stop()
	}
	q.timers[path] = time.AfterFunc(q.debounce, func() {
		q.mu.Lock()
		delete(q.timers, path)
		q.mu.Unlock()
		q.push(path)
	})
}

// forget drops a pending quiet period for path.
func (q *fileQueue) forget(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.timers[path]; ok {
		t.Stop()
		delete(q.timers, path)
	}
}

// push queues path without debouncing. It blocks while the queue is full.
func (q *fileQueue) push(path string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if _, ok := q.waiting[path]; ok {
		q.mu.Unlock()
		return
	}
	q.waiting[path] = struct{}{}
	q.mu.Unlock()

	select {
	case q.ready <- path:
	case <-q.done:
	}
}

// next returns the next settled path, or false once the queue is closed.
func (q *fileQueue) next() (string, bool) {
	select {
	case path := <-q.ready:
		q.mu.Lock()
		delete(q.waiting, path)
		q.mu.Unlock()
		return path, true
	case <-q.done:
		return "", false
	}
}

func (q *fileQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for path, t := range q.timers {
		t.Stop()
		delete(q.timers, path)
	}
	close(q.done)
}
