package core

import "time"

// Clock measures elapsed wall time in seconds between Start and Update.
type Clock struct {
	now     func() time.Time
	start   time.Time
	running bool
	elapsed float64
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.running {
		c.elapsed = c.now().Sub(c.start).Seconds()
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.start = c.now()
	c.running = true
	c.elapsed = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.running = false
}

func (c *Clock) Elapsed() float64 {
	return c.elapsed
}
