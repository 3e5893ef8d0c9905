package actuator

import (
	"math"
	"math/rand"
	"time"
)

// Strategy computes the delay before the next attempt of a task that has
// just failed, given the attempt number just completed (1-indexed). A
// task's own RecallInterval, when set, always takes precedence over the
// actuator's strategy.
type Strategy interface {
	NextDelay(attempt int) time.Duration
}

// FixedStrategy always waits the same interval between attempts.
type FixedStrategy struct {
	Delay time.Duration
}

func NewFixedStrategy(delay time.Duration) FixedStrategy { return FixedStrategy{Delay: delay} }

func (s FixedStrategy) NextDelay(attempt int) time.Duration { return s.Delay }

// LinearStrategy grows the delay by a constant step per attempt.
type LinearStrategy struct {
	Initial time.Duration
	Step    time.Duration
	Max     time.Duration
}

func NewLinearStrategy(initial, step, max time.Duration) LinearStrategy {
	return LinearStrategy{Initial: initial, Step: step, Max: max}
}

func (s LinearStrategy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := s.Initial + s.Step*time.Duration(attempt-1)
	if s.Max > 0 && delay > s.Max {
		return s.Max
	}
	return delay
}

// ExponentialStrategy doubles (or scales by Multiplier) the delay on every
// attempt, capped at Max.
type ExponentialStrategy struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

func NewExponentialStrategy(initial, max time.Duration) ExponentialStrategy {
	return ExponentialStrategy{Initial: initial, Multiplier: 2.0, Max: max}
}

func (s ExponentialStrategy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := s.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := float64(s.Initial) * math.Pow(mult, float64(attempt-1))
	if s.Max > 0 && delay > float64(s.Max) {
		delay = float64(s.Max)
	}
	return time.Duration(delay)
}

// JitteredStrategy wraps another strategy and randomizes its output within
// +/-Jitter (0.0-1.0) of the underlying delay, to avoid synchronized
// retries across many orders hitting the same callee.
type JitteredStrategy struct {
	Base   Strategy
	Jitter float64
}

func NewJitteredStrategy(base Strategy, jitter float64) JitteredStrategy {
	return JitteredStrategy{Base: base, Jitter: jitter}
}

func (s JitteredStrategy) NextDelay(attempt int) time.Duration {
	delay := float64(s.Base.NextDelay(attempt))
	if s.Jitter <= 0 {
		return time.Duration(delay)
	}
	span := delay * s.Jitter
	return time.Duration(delay - span + rand.Float64()*2*span)
}
