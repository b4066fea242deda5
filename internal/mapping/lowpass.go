package mapping

import "math"

// lowPassCascade implements a cascade of first-order low-pass sections,
// one per filter order, each with the same cutoff. Coefficients are
// recomputed and internal state reset on any parameter change (bits,
// cutoff, order): open question (a) in spec.md §9 resolves this as
// reset-on-change.
type lowPassCascade struct {
	alpha    float32
	state    []float32
	bypass   bool
}

// newLowPassCascade builds a cascade for the given order (clamped 1..8)
// and cutoff relative to sampleRate. A non-positive cutoff or sample rate
// disables filtering (bypass), since a pin with no configured cutoff
// should pass its normalized value through unchanged.
func newLowPassCascade(order int, cutoffHz, sampleRate float32) *lowPassCascade {
	if order < 1 {
		order = 1
	}
	if order > 8 {
		order = 8
	}
	c := &lowPassCascade{state: make([]float32, order)}
	if cutoffHz <= 0 || sampleRate <= 0 {
		c.bypass = true
		return c
	}
	dt := 1.0 / float64(sampleRate)
	rc := 1.0 / (2 * math.Pi * float64(cutoffHz))
	c.alpha = float32(dt / (rc + dt))
	return c
}

// step feeds one sample through every section in sequence and returns the
// final section's output.
func (c *lowPassCascade) step(x float32) float32 {
	if c.bypass {
		return x
	}
	in := x
	for i := range c.state {
		c.state[i] += c.alpha * (in - c.state[i])
		in = c.state[i]
	}
	return in
}
