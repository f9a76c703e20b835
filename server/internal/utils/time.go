package utils

import "time"

// TickInterval converts a ticks-per-second rate into the duration of one tick.
// Non-positive rates fall back to 60 ticks per second.
func TickInterval(ticksPerSecond int) time.Duration {
	if ticksPerSecond <= 0 {
		ticksPerSecond = 60
	}
	return time.Second / time.Duration(ticksPerSecond)
}

// Milliseconds converts a millisecond count from config into a duration.
func Milliseconds(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
