package jobs

import (
	"container/heap"
	"sync"
)

// TickHook is called once per tick while every worker is paused.
type TickHook interface {
	Tick()
}

// Scheduler is a TickHook that runs tasks at a given tick. Tasks run on
// the tick goroutine with the world barrier held.
type Scheduler struct {
	mu    sync.Mutex
	tick  uint64
	seq   uint64
	tasks taskHeap
}

type task struct {
	at     uint64
	seq    uint64
	period uint64
	fn     func(tick uint64)
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*task)) }
func (h *taskHeap) Pop() any {
	old := *h
	t := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return t
}

// NewScheduler returns a scheduler at tick zero.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// After runs fn once, delay ticks from now. A delay of zero runs on the
// next tick.
func (s *Scheduler) After(delay uint64, fn func(tick uint64)) {
	s.add(delay, 0, fn)
}

// Every runs fn each period ticks, starting period ticks from now.
func (s *Scheduler) Every(period uint64, fn func(tick uint64)) {
	if period == 0 {
		period = 1
	}
	s.add(period, period, fn)
}

func (s *Scheduler) add(delay, period uint64, fn func(uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delay == 0 {
		delay = 1
	}
	s.seq++
	heap.Push(&s.tasks, &task{at: s.tick + delay, seq: s.seq, period: period, fn: fn})
}

// Current returns the number of completed ticks.
func (s *Scheduler) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Tick advances one tick and runs every task due. Tasks may schedule
// more tasks; those never run in the tick that created them.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	s.tick++
	now := s.tick
	var due []*task
	for s.tasks.Len() > 0 && s.tasks[0].at <= now {
		due = append(due, heap.Pop(&s.tasks).(*task))
	}
	s.mu.Unlock()

	for _, t := range due {
		t.fn(now)
		if t.period > 0 {
			s.mu.Lock()
			t.at = now + t.period
			heap.Push(&s.tasks, t)
			s.mu.Unlock()
		}
	}
}
