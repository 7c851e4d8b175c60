package runner

import "time"

// Clock is the run's elapsed-time source. It reads zero at run start and,
// being based on the monotonic clock, never goes backwards.
type Clock struct {
	start time.Time
}

func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

func (c *Clock) Start() time.Time {
	return c.start
}

func (c *Clock) Elapsed() time.Duration {
	return time.Since(c.start)
}

// At converts a wall-clock instant taken during the run to run time.
func (c *Clock) At(t time.Time) time.Duration {
	return t.Sub(c.start)
}
