package engine

import "time"

// Clock supplies "now" to playback calculations so offset arithmetic is
// testable without real-time sleeps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
