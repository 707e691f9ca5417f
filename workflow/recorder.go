package workflow

import "time"

// Recorder observes workflow outcomes, e.g. for metrics.
type Recorder interface {
	ObserveStep(step Step, outcome string, elapsed time.Duration)
	ObserveEscalation(outcome string)
}

// NoOpRecorder implements Recorder with no-op operations
type NoOpRecorder struct{}

func (NoOpRecorder) ObserveStep(Step, string, time.Duration) {}
func (NoOpRecorder) ObserveEscalation(string)                {}
