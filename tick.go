package motor

import (
	"time"

	"github.com/apex/log"

	"github.com/shykaruu/motor/jobs"
)

// ticker drives the fixed rate loop. Each iteration waits for the next
// deadline, pauses every worker and calls the hook once.
type ticker struct {
	clock    Clock
	interval time.Duration
	skip     int64
	workers  []*Worker
	hook     jobs.TickHook
	log      log.Interface
	metrics  *metrics
}

// run loops while running reports true. A loop that falls more than skip
// ticks behind warns and moves its deadline to now instead of bursting.
func (t *ticker) run(running func() bool) {
	next := t.clock.Now()
	for running() {
		now := t.clock.Now()
		var sleep time.Duration
		if now.Before(next) {
			sleep = next.Sub(now)
		} else if behind := now.Sub(next); int64(behind/t.interval) > t.skip {
			t.log.WithFields(log.Fields{
				"behind_ms": behind.Milliseconds(),
				"ticks":     int64(behind / t.interval),
			}).Warnf("can't keep up! is the server overloaded? running %dms or %d ticks behind",
				behind.Milliseconds(), int64(behind/t.interval))
			t.metrics.behind.Inc()
			next = t.clock.Now()
		}
		next = next.Add(t.interval)

		t.clock.Sleep(sleep)
		t.barrier()
	}
}

// barrier locks every worker in order, ticks, and unlocks in reverse.
func (t *ticker) barrier() {
	for _, w := range t.workers {
		w.LockWorld()
	}
	start := time.Now()
	t.hook.Tick()
	t.metrics.tickDuration.Observe(time.Since(start).Seconds())
	t.metrics.ticks.Inc()
	for i := len(t.workers) - 1; i >= 0; i-- {
		t.workers[i].UnlockWorld()
	}
}
