package clock

import "time"

// Clock abstracts time so transitions can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Provide returns the wall clock for fx wiring.
func Provide() Clock {
	return SystemClock{}
}
