package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer holds back source events until the tree has been quiet for a
// while and then hands on the most recent one. A save that touches many
// files therefore reaches the rebuild trigger once.
type Debouncer struct {
	quiet   time.Duration
	deliver func(Event)

	mu      sync.Mutex
	timer   *time.Timer
	latest  Event
	stopped bool
}

// NewDebouncer returns a debouncer that calls deliver after quiet has
// passed without a new event.
func NewDebouncer(quiet time.Duration, deliver func(Event)) *Debouncer {
	return &Debouncer{quiet: quiet, deliver: deliver}
}

// Trigger records ev as the latest event and restarts the quiet period.
// Events after Stop are ignored.
func (d *Debouncer) Trigger(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.latest = ev

	if d.timer == nil {
		d.timer = time.AfterFunc(d.quiet, d.fire)
		return
	}

	d.timer.Reset(d.quiet)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	ev := d.latest
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("delivering debounced event",
				slog.String("event", ev.String()),
				slog.Any("panic", r),
			)
		}
	}()

	d.deliver(ev)
}

// Stop drops the pending event, if any. A delivery already running is not
// interrupted.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true

	if d.timer != nil {
		d.timer.Stop()
	}
}
