// Package detect decides when form edits warrant a new preview push.
package detect

import (
	"log/slog"
	"time"

	"github.com/google/go-cmp/cmp"

	"go-live-preview/internal/debounce"
	"go-live-preview/internal/document"
	"go-live-preview/internal/form"
	"go-live-preview/internal/loop"
)

// DefaultDelay is the debounce window between the last activity and an
// evaluation.
const DefaultDelay = 500 * time.Millisecond

// PushFunc receives values that should be turned into build data.
// forced marks a full refresh request.
type PushFunc func(values map[string]any, forced bool)

// Detector debounces user activity and filters out pushes that would not
// change the preview. All methods must run on the loop goroutine.
type Detector struct {
	mode   document.PreviewMode
	source form.Source
	push   PushFunc
	log    *slog.Logger

	debouncer *debounce.Debouncer

	lastSnapshot map[string]any
	forceUpdate  bool
}

func New(l *loop.Loop, delay time.Duration, mode document.PreviewMode, source form.Source, push PushFunc, logger *slog.Logger) *Detector {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Detector{
		mode:   mode,
		source: source,
		push:   push,
		log:    logger,
	}
	d.debouncer = debounce.New(l, delay, d.Evaluate)
	return d
}

// Activity records a keystroke, change or focus event.
func (d *Detector) Activity() {
	d.debouncer.Schedule()
}

// Force requests an evaluation that bypasses the unchanged-values check.
func (d *Detector) Force() {
	d.forceUpdate = true
	d.debouncer.Schedule()
}

// Cancel drops a pending evaluation. The snapshot and force flag are kept.
func (d *Detector) Cancel() {
	d.debouncer.Cancel()
}

// Forced reports whether a force flag is waiting to be consumed.
func (d *Detector) Forced() bool {
	return d.forceUpdate
}

// Snapshot returns the last pushed values, nil before the first push.
func (d *Detector) Snapshot() map[string]any {
	return d.lastSnapshot
}

// Evaluate runs the push decision immediately.
func (d *Detector) Evaluate() {
	if d.mode != document.PreviewLive {
		return
	}

	values, err := d.source.Value()
	if err != nil {
		d.log.Debug("form values unavailable", "source", d.source.Kind(), "error", err)
		return
	}

	forced := false
	if d.forceUpdate {
		forced = true
		d.forceUpdate = false
	} else if d.lastSnapshot != nil && cmp.Equal(d.lastSnapshot, values) {
		return
	}

	// Inline errors are shown by the form itself.
	if !d.source.Validate() {
		d.log.Debug("form invalid, preview push skipped", "source", d.source.Kind())
		return
	}

	d.log.Debug("preview push", "forced", forced)
	d.lastSnapshot = deepCopy(values).(map[string]any)
	d.push(values, forced)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
