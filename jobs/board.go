// Package jobs is the work queue shared by the worker pool and the tick
// scheduler that runs between worker pauses.
package jobs

import (
	"sync"
)

// Worker is the execution context a job runs on.
type Worker interface {
	ID() int
	// LockWorld takes this worker's share of the world barrier. The tick
	// loop cannot advance while any worker holds it.
	LockWorld()
	UnlockWorld()
}

// Job is one unit of work.
type Job interface {
	Run(w Worker)
}

// Func adapts a function to Job.
type Func func(w Worker)

func (f Func) Run(w Worker) { f(w) }

type noop struct{}

func (noop) Run(Worker) {}

// Noop does nothing. Shutdown queues one per worker so each blocked worker
// wakes and sees the stopping status.
var Noop Job = noop{}

// WithWorld runs fn while holding w's world lock.
func WithWorld(w Worker, fn func()) {
	w.LockWorld()
	defer w.UnlockWorld()
	fn()
}

// Board is an unbounded FIFO of jobs. Take blocks while it is empty.
type Board struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []Job
	head  int
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	b := &Board{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Add queues j and wakes one waiting worker.
func (b *Board) Add(j Job) {
	b.mu.Lock()
	b.queue = append(b.queue, j)
	b.mu.Unlock()
	b.cond.Signal()
}

// Take removes the oldest job, waiting for one if needed.
func (b *Board) Take() Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.head == len(b.queue) {
		b.cond.Wait()
	}
	j := b.queue[b.head]
	b.queue[b.head] = nil
	b.head++
	if b.head == len(b.queue) {
		b.queue = b.queue[:0]
		b.head = 0
	}
	return j
}

// Work takes one job and runs it on w.
func (b *Board) Work(w Worker) {
	b.Take().Run(w)
}

// Len returns the number of queued jobs.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) - b.head
}
