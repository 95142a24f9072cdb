package clock

import (
	"sync"
	"time"
)

// Countdown runs a per-tick callback on a fixed granularity and a terminal
// callback when the duration elapses. Both timers live and die together: one
// Stop clears the ticker and the deadline, so a cancelled round can never
// leave a stray tick firing into the next one.
type Countdown struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Start launches the countdown. onTick receives the seconds remaining after
// each granularity step, onDone fires once at zero. Neither callback runs
// after Stop returns the countdown to rest. Callbacks are invoked from a
// single goroutine, in order.
func Start(d, granularity time.Duration, onTick func(remaining int), onDone func()) *Countdown {
	c := &Countdown{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(c.done)

		ticker := time.NewTicker(granularity)
		defer ticker.Stop()
		deadline := time.NewTimer(d)
		defer deadline.Stop()

		remaining := int(d / granularity)
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				remaining--
				if remaining < 0 {
					remaining = 0
				}
				if onTick != nil {
					onTick(remaining)
				}
			case <-deadline.C:
				if onDone != nil {
					onDone()
				}
				return
			}
		}
	}()

	return c
}

// Stop cancels the countdown. Safe to call more than once and after the
// countdown has completed. Does not wait for an in-flight callback.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// Done reports completion or cancellation; used by tests and shutdown paths.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}
