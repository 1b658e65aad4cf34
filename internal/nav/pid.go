package nav

// PID is a discrete proportional-integral-derivative controller updated once
// per tick.
type PID struct {
	P, I, D float64

	integral float64
	prevErr  float64
	primed   bool
}

// DefaultThrottlePID returns the throttle gains tuned on the vehicle.
func DefaultThrottlePID() PID {
	return PID{P: 2, I: 0.25, D: 2}
}

// Update feeds one measurement and returns the control output. The derivative
// term is zero on the first update.
func (c *PID) Update(target, measured float64) float64 {
	err := target - measured
	c.integral += err

	var deriv float64
	if c.primed {
		deriv = err - c.prevErr
	}
	c.prevErr = err
	c.primed = true

	return c.P*err + c.I*c.integral + c.D*deriv
}

// Reset clears the accumulated state and keeps the gains.
func (c *PID) Reset() {
	c.integral, c.prevErr, c.primed = 0, 0, false
}
