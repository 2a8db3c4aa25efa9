package pad

import "time"

// Clock produces monotonic read timestamps with a process-local origin.
// Snapshots are timestamped for duration math between reads, so wall
// time (and its skew) never enters the model.
type Clock struct {
	origin time.Time
}

func NewClock() *Clock {
	return &Clock{origin: time.Now()}
}

// Micros returns microseconds elapsed since the clock was created.
func (c *Clock) Micros() uint64 {
	return uint64(time.Since(c.origin).Microseconds())
}
