package wizard

import (
	"strings"
)

// Step is a position in the wizard. Steps are strictly ordered.
type Step int

const (
	StepAccount Step = iota
	StepSubscription
	StepServices
)

// StepParam is the query parameter that carries the step.
const StepParam = "step"

var stepNames = [...]string{
	StepAccount:      "account",
	StepSubscription: "subscription",
	StepServices:     "services",
}

func (s Step) String() string {
	if s < StepAccount || s > StepServices {
		return stepNames[StepAccount]
	}
	return stepNames[s]
}

// Title is the heading shown above the step's form.
func (s Step) Title() string {
	switch s {
	case StepSubscription:
		return "Choose your plan"
	case StepServices:
		return "Connect your services"
	default:
		return "Create your account"
	}
}

// Number is the 1-based position shown in the progress bar.
func (s Step) Number() int { return int(s) + 1 }

// Next returns the following step and false when s is the last one.
func (s Step) Next() (Step, bool) {
	if s >= StepServices {
		return s, false
	}
	return s + 1, true
}

// Prev returns the preceding step and false when s is the first one.
func (s Step) Prev() (Step, bool) {
	if s <= StepAccount {
		return StepAccount, false
	}
	return s - 1, true
}

// ParseStep maps a query value to a step. Anything unrecognised, including
// the empty string, is the first step.
func ParseStep(v string) Step {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "subscription":
		return StepSubscription
	case "services":
		return StepServices
	default:
		return StepAccount
	}
}

func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Step) UnmarshalText(b []byte) error {
	*s = ParseStep(string(b))
	return nil
}
