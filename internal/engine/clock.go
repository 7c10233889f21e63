package engine

import "time"

// Clock abstracts wall-clock time so tests can simulate suspensions and
// arbitrary advances. All time-derived values in the engine come from a
// Clock, never from counting ticks.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the system clock.
func RealClock() Clock { return realClock{} }
