package timeutil

import "time"

// TimeGate paces a loop to at most one pass per Interval. Call Open at the
// top of the pass and Close at the bottom; Close sleeps off whatever is left
// of the interval. A zero Interval never sleeps.
type TimeGate struct {
	Interval time.Duration
	Clock    Clock

	start time.Time
}

// NewTimeGate returns a gate on the real clock.
func NewTimeGate(interval time.Duration) *TimeGate {
	return &TimeGate{Interval: interval, Clock: RealClock{}}
}

// Open marks the start of a pass.
func (g *TimeGate) Open() {
	g.start = g.clock().Now()
}

// Close sleeps until Interval has passed since Open and returns the time
// slept.
func (g *TimeGate) Close() time.Duration {
	residual := g.Interval - g.clock().Since(g.start)
	if residual <= 0 {
		return 0
	}
	g.clock().Sleep(residual)
	return residual
}

func (g *TimeGate) clock() Clock {
	if g.Clock == nil {
		return RealClock{}
	}
	return g.Clock
}
