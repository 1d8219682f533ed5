package motor

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shykaruu/motor/jobs"
)

type tickFunc func()

func (f tickFunc) Tick() { f() }

func newTestTicker(clk Clock, hook jobs.TickHook, l log.Interface, workers int) *ticker {
	t := &ticker{
		clock:    clk,
		interval: 50 * time.Millisecond,
		skip:     DefaultSkipTicks,
		hook:     hook,
		log:      l,
		metrics:  newMetrics(prometheus.NewRegistry()),
	}
	for i := range workers {
		t.workers = append(t.workers, newWorker(i))
	}
	return t
}

func TestTickerFallsBehindOnce(t *testing.T) {
	t0 := time.Unix(1_000_000, 0)
	clk := NewManualClock(t0)
	lg, h := testLogger()

	var times []time.Time
	hook := tickFunc(func() {
		times = append(times, clk.Now())
		if len(times) == 3 {
			clk.Advance(2 * time.Second)
		}
	})
	tk := newTestTicker(clk, hook, lg, 2)
	tk.run(func() bool { return len(times) < 8 })

	var warns []*log.Entry
	for _, e := range h.Entries {
		if e.Level == log.WarnLevel {
			warns = append(warns, e)
		}
	}
	if len(warns) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warns))
	}
	if got := warns[0].Fields["ticks"]; got != int64(39) {
		t.Errorf("ticks behind = %v", got)
	}
	if got := testutil.ToFloat64(tk.metrics.behind); got != 1 {
		t.Errorf("behind metric = %v", got)
	}
	if got := testutil.ToFloat64(tk.metrics.ticks); got != 8 {
		t.Errorf("ticks metric = %v", got)
	}

	want := []time.Duration{0, 50, 100, 2100, 2150, 2200, 2250, 2300}
	for i, d := range want {
		if got := times[i].Sub(t0); got != d*time.Millisecond {
			t.Errorf("tick %d at %v, want %v", i, got, d*time.Millisecond)
		}
	}
}

func TestTickerCatchesUpInsideSkipWindow(t *testing.T) {
	t0 := time.Unix(1_000_000, 0)
	clk := NewManualClock(t0)
	lg, h := testLogger()

	var times []time.Time
	hook := tickFunc(func() {
		times = append(times, clk.Now())
		if len(times) == 1 {
			clk.Advance(500 * time.Millisecond)
		}
	})
	tk := newTestTicker(clk, hook, lg, 1)
	tk.run(func() bool { return len(times) < 14 })

	for _, e := range h.Entries {
		if e.Level == log.WarnLevel {
			t.Fatalf("unexpected warning: %s", e.Message)
		}
	}
	// Ten ticks are owed after the jump; they run back to back, then the
	// loop returns to its original schedule.
	for i := 1; i <= 10; i++ {
		if got := times[i].Sub(t0); got != 500*time.Millisecond {
			t.Errorf("catch-up tick %d at %v", i, got)
		}
	}
	if got := times[11].Sub(t0); got != 550*time.Millisecond {
		t.Errorf("tick 11 at %v, want 550ms", got)
	}
}

func TestBarrierExcludesWorldJobs(t *testing.T) {
	var inWorld atomic.Int32
	var violations, ticks atomic.Int32
	hook := tickFunc(func() {
		if inWorld.Load() != 0 {
			violations.Add(1)
		}
		ticks.Add(1)
	})
	rt, _ := startRuntime(t, Options{Workers: 4, TickInterval: time.Millisecond, Tick: hook})

	var wg sync.WaitGroup
	for i := range 200 {
		wg.Add(1)
		pause := time.Duration(rand.IntN(200)) * time.Microsecond
		world := i%3 != 0
		rt.Board().Add(jobs.Func(func(w jobs.Worker) {
			defer wg.Done()
			if !world {
				time.Sleep(pause)
				return
			}
			jobs.WithWorld(w, func() {
				inWorld.Add(1)
				time.Sleep(pause)
				inWorld.Add(-1)
			})
		}))
	}
	wg.Wait()
	waitFor(t, "ticks", func() bool { return ticks.Load() >= 20 })

	if v := violations.Load(); v != 0 {
		t.Fatalf("tick ran %d times while a job held the world", v)
	}
}

func TestJobPanicKeepsWorker(t *testing.T) {
	rt, _ := startRuntime(t, Options{Workers: 1})

	rt.Board().Add(jobs.Func(func(jobs.Worker) { panic("boom") }))
	done := make(chan struct{})
	rt.Board().Add(jobs.Func(func(jobs.Worker) { close(done) }))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
	if got := testutil.ToFloat64(rt.metrics.jobPanics); got != 1 {
		t.Errorf("panics = %v", got)
	}
}
