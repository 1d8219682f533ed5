package motor

import (
	"github.com/sasha-s/go-deadlock"
)

// Worker is one member of the fixed pool. Its world lock is held while a
// job touches world state and is taken by the tick barrier to pause it.
type Worker struct {
	id   int
	mu   deadlock.Mutex
	done chan struct{}
}

func newWorker(id int) *Worker {
	return &Worker{id: id, done: make(chan struct{})}
}

func (w *Worker) ID() int      { return w.id }
func (w *Worker) LockWorld()   { w.mu.Lock() }
func (w *Worker) UnlockWorld() { w.mu.Unlock() }

func (rt *Runtime) runWorker(w *Worker) {
	defer close(w.done)
	for !rt.stopping() {
		rt.work(w)
	}
}

func (rt *Runtime) work(w *Worker) {
	defer func() {
		if p := recover(); p != nil {
			rt.metrics.jobPanics.Inc()
			rt.log.WithField("worker", w.id).Errorf("job panic: %v", p)
		}
	}()
	rt.board.Work(w)
}
