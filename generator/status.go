package generator

import (
	"fmt"
	"strings"

	"diffuser/pipeline"
)

// Status is the generator state machine. The set of implementations is
// closed; consumers switch over all six.
type Status interface {
	isStatus()
}

type (
	Uninitialized    struct{}
	ModelsDiscovered struct{ Models []string }
	ModelLoading     struct{ Model string }
	Ready            struct{ Model string }
	Generating       struct{ Progress *GenerationProgress }
	Failed           struct{ Err error }
)

func (Uninitialized) isStatus()    {}
func (ModelsDiscovered) isStatus() {}
func (ModelLoading) isStatus()     {}
func (Ready) isStatus()            {}
func (Generating) isStatus()       {}
func (Failed) isStatus()           {}

// Message is the human readable failure reason.
func (f Failed) Message() string {
	if f.Err == nil {
		return "unknown error"
	}
	return f.Err.Error()
}

// GenerationProgress is the latest position of a running generation.
// Step is nil until the pipeline reports its first step for Index.
type GenerationProgress struct {
	Index int
	Total int
	Step  *pipeline.StepProgress
}

// Describe renders a status for logs and terminals.
func Describe(s Status) string {
	switch s := s.(type) {
	case Uninitialized:
		return "uninitialized"
	case ModelsDiscovered:
		return fmt.Sprintf("found %d model(s): %s", len(s.Models), strings.Join(s.Models, ", "))
	case ModelLoading:
		return fmt.Sprintf("loading %s", s.Model)
	case Ready:
		return fmt.Sprintf("ready (%s)", s.Model)
	case Generating:
		if s.Progress == nil {
			return "generating"
		}
		if s.Progress.Step == nil {
			return fmt.Sprintf("generating image %d/%d", s.Progress.Index+1, s.Progress.Total)
		}
		return fmt.Sprintf("generating image %d/%d, step %d/%d",
			s.Progress.Index+1, s.Progress.Total, s.Progress.Step.Step, s.Progress.Step.StepCount)
	case Failed:
		return "error: " + s.Message()
	default:
		panic(fmt.Sprintf("generator: unknown status %T", s))
	}
}
