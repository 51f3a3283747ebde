package clock

import "time"

// Clock abstracts wall time so workers can be driven by a fake in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns the real UTC clock.
func NewSystemClock() Clock { return systemClock{} }
