package jobs

import (
	"sync"
	"testing"
	"time"
)

type testWorker struct {
	id     int
	mu     sync.Mutex
	locked int
}

func (w *testWorker) ID() int { return w.id }
func (w *testWorker) LockWorld() {
	w.mu.Lock()
	w.locked++
}
func (w *testWorker) UnlockWorld() { w.mu.Unlock() }

func TestBoardFIFO(t *testing.T) {
	b := NewBoard()
	var got []int
	for i := range 5 {
		b.Add(Func(func(Worker) { got = append(got, i) }))
	}
	if b.Len() != 5 {
		t.Fatalf("Len = %d", b.Len())
	}
	w := &testWorker{}
	for range 5 {
		b.Work(w)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v", got)
		}
	}
	if b.Len() != 0 {
		t.Fatalf("Len after drain = %d", b.Len())
	}
}

func TestBoardTakeBlocks(t *testing.T) {
	b := NewBoard()
	done := make(chan Job)
	go func() { done <- b.Take() }()

	select {
	case <-done:
		t.Fatal("Take returned on empty board")
	case <-time.After(20 * time.Millisecond):
	}

	b.Add(Noop)
	select {
	case j := <-done:
		if j != Noop {
			t.Fatalf("got %v", j)
		}
	case <-time.After(time.Second):
		t.Fatal("Take did not wake")
	}
}

func TestBoardConcurrentWorkers(t *testing.T) {
	b := NewBoard()
	const n = 200
	var (
		mu    sync.Mutex
		count int
		wg    sync.WaitGroup
	)
	wg.Add(n)
	for range n {
		b.Add(Func(func(Worker) {
			mu.Lock()
			count++
			mu.Unlock()
			wg.Done()
		}))
	}
	for i := range 4 {
		go func() {
			w := &testWorker{id: i}
			for {
				j := b.Take()
				if j == Noop {
					return
				}
				j.Run(w)
			}
		}()
	}
	wg.Wait()
	for range 4 {
		b.Add(Noop)
	}
	if count != n {
		t.Fatalf("ran %d jobs, want %d", count, n)
	}
}

func TestWithWorld(t *testing.T) {
	w := &testWorker{}
	WithWorld(w, func() {
		if w.mu.TryLock() {
			t.Fatal("world lock not held inside WithWorld")
		}
	})
	if !w.mu.TryLock() {
		t.Fatal("world lock still held after WithWorld")
	}
	w.mu.Unlock()
}

func TestSchedulerAfter(t *testing.T) {
	s := NewScheduler()
	var ran []uint64
	s.After(0, func(tick uint64) { ran = append(ran, tick) })
	s.After(3, func(tick uint64) { ran = append(ran, tick) })
	for range 5 {
		s.Tick()
	}
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 3 {
		t.Fatalf("ran at %v", ran)
	}
	if s.Current() != 5 {
		t.Fatalf("Current = %d", s.Current())
	}
}

func TestSchedulerEvery(t *testing.T) {
	s := NewScheduler()
	var ran []uint64
	s.Every(2, func(tick uint64) { ran = append(ran, tick) })
	for range 7 {
		s.Tick()
	}
	want := []uint64{2, 4, 6}
	if len(ran) != len(want) {
		t.Fatalf("ran at %v, want %v", ran, want)
	}
	for i := range want {
		if ran[i] != want[i] {
			t.Fatalf("ran at %v, want %v", ran, want)
		}
	}
}

func TestSchedulerNestedSchedule(t *testing.T) {
	s := NewScheduler()
	var inner uint64
	s.After(1, func(tick uint64) {
		s.After(0, func(tick uint64) { inner = tick })
	})
	s.Tick()
	if inner != 0 {
		t.Fatal("task scheduled during a tick ran in that tick")
	}
	s.Tick()
	if inner != 2 {
		t.Fatalf("inner ran at %d, want 2", inner)
	}
}
