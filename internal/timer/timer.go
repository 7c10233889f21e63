// Package timer implements the rest countdown between sets. Remaining time
// is always derived from a fixed wall-clock end time, never from counting
// ticks, so a process suspension of any length yields a correct value the
// moment the timer is re-evaluated.
package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Clock abstracts wall-clock time for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// DefaultThresholds are the remaining-second marks that emit a signal, used
// for haptic/visual countdown cues. Each fires exactly once.
var DefaultThresholds = []int{10, 5, 3, 2, 1}

// Timer is a single rest countdown. All decisions (remaining time,
// threshold firing, completion) happen in Tick by comparing against the
// clock; the tick cadence only controls latency, not correctness.
type Timer struct {
	mu sync.Mutex

	id         string
	clock      Clock
	notifier   Notifier
	log        *slog.Logger
	thresholds []int

	onThreshold func(secondsLeft int)
	onComplete  func()

	total    time.Duration
	endTime  time.Time
	running  bool
	finished bool // completion callback already delivered
	fired    map[int]bool
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock substitutes the wall clock, for tests.
func WithClock(c Clock) Option { return func(t *Timer) { t.clock = c } }

// WithNotifier attaches a local-notification scheduler for the completion
// instant.
func WithNotifier(n Notifier) Option { return func(t *Timer) { t.notifier = n } }

// WithThresholds overrides the countdown signal marks.
func WithThresholds(marks []int) Option { return func(t *Timer) { t.thresholds = marks } }

// WithCallbacks sets the threshold and completion callbacks. Both are
// invoked from Tick without the timer lock held.
func WithCallbacks(onThreshold func(secondsLeft int), onComplete func()) Option {
	return func(t *Timer) {
		t.onThreshold = onThreshold
		t.onComplete = onComplete
	}
}

// New creates a timer identified by id (used to cancel its scheduled
// notification).
func New(id string, log *slog.Logger, opts ...Option) *Timer {
	t := &Timer{
		id:         id,
		clock:      realClock{},
		log:        log,
		thresholds: DefaultThresholds,
		fired:      make(map[int]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins a countdown of the given duration. The end time is fixed
// now; everything else derives from it.
func (t *Timer) Start(duration time.Duration) {
	t.mu.Lock()
	now := t.clock.Now()
	t.total = duration
	t.endTime = now.Add(duration)
	t.running = true
	t.finished = false
	t.fired = make(map[int]bool)
	end := t.endTime
	t.mu.Unlock()

	t.scheduleNotification(end)
}

// AddTime extends the end time in place. The timer is not restarted:
// thresholds already fired below the new remaining time stay fired, while
// thresholds now above the remaining time become eligible to fire again.
// The completion notification is cancelled and rescheduled.
func (t *Timer) AddTime(d time.Duration) {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.endTime = t.endTime.Add(d)
	t.total += d
	remaining := t.endTime.Sub(t.clock.Now())
	for _, mark := range t.thresholds {
		if time.Duration(mark)*time.Second < remaining {
			delete(t.fired, mark)
		}
	}
	end := t.endTime
	t.mu.Unlock()

	t.cancelNotification()
	t.scheduleNotification(end)
}

// Skip terminates the countdown early. The completion callback fires at
// most once even if the timer completes naturally at the same moment.
func (t *Timer) Skip() {
	t.mu.Lock()
	if !t.running || t.finished {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.finished = true
	cb := t.onComplete
	t.mu.Unlock()

	t.cancelNotification()
	if cb != nil {
		cb()
	}
}

// Remaining returns the time left, clamped at zero.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked(t.clock.Now())
}

// Progress returns the completed fraction in [0,1] for rendering.
func (t *Timer) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total <= 0 {
		return 1
	}
	p := 1 - float64(t.remainingLocked(t.clock.Now()))/float64(t.total)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Running reports whether the countdown is active.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Tick evaluates the timer against the wall clock: it fires any crossed
// threshold signals (each exactly once, even when the same remaining second
// is recomputed twice after a resume from background) and delivers the
// completion callback when the end time has passed. Returns the remaining
// time and whether the timer is done.
func (t *Timer) Tick() (time.Duration, bool) {
	t.mu.Lock()
	if !t.running {
		done := t.finished
		t.mu.Unlock()
		return 0, done
	}

	now := t.clock.Now()
	remaining := t.remainingLocked(now)

	var signals []int
	if remaining > 0 {
		secondsLeft := int(remaining.Round(time.Second) / time.Second)
		for _, mark := range t.thresholds {
			if secondsLeft <= mark && !t.fired[mark] {
				t.fired[mark] = true
				signals = append(signals, mark)
			}
		}
	}

	var complete bool
	if remaining <= 0 && !t.finished {
		t.running = false
		t.finished = true
		complete = true
	}
	onThreshold, onComplete := t.onThreshold, t.onComplete
	t.mu.Unlock()

	if onThreshold != nil {
		for _, mark := range signals {
			onThreshold(mark)
		}
	}
	if complete && onComplete != nil {
		onComplete()
	}
	return remaining, remaining <= 0
}

// Run drives Tick on the given cadence until completion, skip, or context
// cancellation. Host environments with their own frame callback can ignore
// Run and call Tick directly.
func (t *Timer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, done := t.Tick(); done {
				return
			}
		}
	}
}

func (t *Timer) remainingLocked(now time.Time) time.Duration {
	r := t.endTime.Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

func (t *Timer) scheduleNotification(at time.Time) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.ScheduleAt(t.id, at); err != nil {
		t.log.Warn("scheduling rest notification failed", "timer_id", t.id, "error", err)
	}
}

func (t *Timer) cancelNotification() {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.Cancel(t.id); err != nil {
		t.log.Warn("cancelling rest notification failed", "timer_id", t.id, "error", err)
	}
}
