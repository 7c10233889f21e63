package timer

import (
	"log/slog"
	"time"
)

// Notifier schedules a single local notification for a timer's completion
// instant. The host platform supplies the real implementation; the timer
// only ever asks for "notify at absolute time X" and "cancel by timer id".
type Notifier interface {
	ScheduleAt(timerID string, at time.Time) error
	Cancel(timerID string) error
}

// NopNotifier discards all requests, used when the user preference for
// rest notifications is off.
type NopNotifier struct{}

func (NopNotifier) ScheduleAt(string, time.Time) error { return nil }
func (NopNotifier) Cancel(string) error                { return nil }

// LogNotifier records requests in the log. Stands in for a platform
// notification bridge in headless deployments.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) ScheduleAt(timerID string, at time.Time) error {
	n.Log.Info("rest notification scheduled", "timer_id", timerID, "at", at)
	return nil
}

func (n LogNotifier) Cancel(timerID string) error {
	n.Log.Info("rest notification cancelled", "timer_id", timerID)
	return nil
}
