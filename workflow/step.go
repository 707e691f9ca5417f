package workflow

import "fmt"

// Step is a phase of the support workflow. Callers send the step they were told to
// run next; the engine decides the step after that.
type Step int

const (
	StepIdentify Step = 1
	StepAnnounce Step = 2
	StepSimilar  Step = 3
	StepResolve  Step = 4
)

// linear successor when the model neither switches tickets nor escalates
var nextStep = map[Step]Step{
	StepIdentify: StepAnnounce,
	StepAnnounce: StepSimilar,
	StepSimilar:  StepResolve,
	StepResolve:  StepResolve,
}

func (s Step) String() string {
	switch s {
	case StepIdentify:
		return "identify"
	case StepAnnounce:
		return "announce"
	case StepSimilar:
		return "similar"
	case StepResolve:
		return "resolve"
	default:
		return fmt.Sprintf("step_%d", int(s))
	}
}
