package chat

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTarget = errors.New("unknown assistant target")
	ErrUnknownMode   = errors.New("unknown chat mode")
)

// Target names a preconfigured assistant persona. Course targets bind to a
// specific course's materials, the rest are fixed agents.
type Target string

const (
	TargetTypeX              Target = "typeX"
	TargetReferences         Target = "references"
	TargetAcademicReferences Target = "academicReferences"
	TargetTherapyGPT         Target = "therapyGPT"
	TargetWhatsTrendy        Target = "whatsTrendy"
	TargetCourse             Target = "course"
)

var allTargets = []Target{
	TargetTypeX,
	TargetReferences,
	TargetAcademicReferences,
	TargetTherapyGPT,
	TargetWhatsTrendy,
	TargetCourse,
}

func ParseTarget(s string) (Target, error) {
	for _, t := range allTargets {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTarget, s)
}

func (t Target) IsCourse() bool {
	return t == TargetCourse
}

// TargetNames lists every valid target, used for prompt loading.
func TargetNames() []string {
	out := make([]string, len(allTargets))
	for i, t := range allTargets {
		out[i] = string(t)
	}
	return out
}

// Mode selects the stateless model and the source label attached to the
// reply.
type Mode string

const (
	ModeGPT        Mode = "gpt"
	ModePerplexity Mode = "perplexity"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeGPT, ModePerplexity:
		return Mode(s), nil
	case "":
		return ModeGPT, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

func (m Mode) Source() string {
	if m == ModePerplexity {
		return "web"
	}
	return "internal"
}
