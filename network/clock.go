package network

import (
	"time"

	"github.com/automoto/physrep/shared/messages"
)

// DefaultClockWindow is the number of samples averaged by default.
const DefaultClockWindow = 30

type receivedSample struct {
	sample     messages.TimeSample
	receivedAt time.Duration
}

// ClockEstimator estimates the origin's current simulation time from a FIFO
// window of time samples, each aged by the local time elapsed since it was
// received. It is owned by the observer's frame loop and is not safe for
// concurrent use.
type ClockEstimator struct {
	window   int
	samples  []receivedSample
	estimate time.Duration
}

// NewClockEstimator creates an estimator averaging at most window samples.
// A window below one is raised to one.
func NewClockEstimator(window int) *ClockEstimator {
	if window < 1 {
		window = 1
	}
	return &ClockEstimator{
		window:  window,
		samples: make([]receivedSample, 0, window+1),
	}
}

// Add records a sample received at local time receivedAt, evicting the
// oldest sample when the window is full.
func (c *ClockEstimator) Add(sample messages.TimeSample, receivedAt time.Duration) {
	c.samples = append(c.samples, receivedSample{sample: sample, receivedAt: receivedAt})
	if len(c.samples) > c.window {
		n := copy(c.samples, c.samples[len(c.samples)-c.window:])
		c.samples = c.samples[:n]
	}
}

// Update recomputes the estimate at local time now and returns it. With no
// samples the previous estimate is kept.
func (c *ClockEstimator) Update(now time.Duration) time.Duration {
	if len(c.samples) == 0 {
		return c.estimate
	}

	var sum time.Duration
	for _, s := range c.samples {
		sum += s.sample.Time() + (now - s.receivedAt)
	}
	c.estimate = sum / time.Duration(len(c.samples))
	return c.estimate
}

// Estimate returns the last computed estimate (zero before any samples).
func (c *ClockEstimator) Estimate() time.Duration {
	return c.estimate
}

// Len returns the number of samples in the window.
func (c *ClockEstimator) Len() int {
	return len(c.samples)
}

// Window returns the maximum number of samples kept.
func (c *ClockEstimator) Window() int {
	return c.window
}
