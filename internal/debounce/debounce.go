// Package debounce implements a trailing-edge debounce timer whose callback
// runs on a loop.Loop.
package debounce

import (
	"time"

	"go-live-preview/internal/loop"
)

// Debouncer collapses bursts of Schedule calls into a single fn invocation
// that happens once delay has elapsed without another Schedule.
//
// Schedule and Cancel must be called on the loop goroutine.
type Debouncer struct {
	loop  *loop.Loop
	delay time.Duration
	fn    func()

	timer *time.Timer
	gen   uint64
}

func New(l *loop.Loop, delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{loop: l, delay: delay, fn: fn}
}

// Schedule (re)starts the window.
func (d *Debouncer) Schedule() {
	d.stop()
	d.gen++
	gen := d.gen

	d.timer = time.AfterFunc(d.delay, func() {
		d.loop.Post(func() {
			// A timer that fired before it could be stopped posts a stale gen.
			if gen != d.gen {
				return
			}
			d.timer = nil
			d.fn()
		})
	})
}

// Cancel drops a pending invocation, if any.
func (d *Debouncer) Cancel() {
	d.stop()
	d.gen++
}

// Pending reports whether an invocation is scheduled.
func (d *Debouncer) Pending() bool {
	return d.timer != nil
}

func (d *Debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
