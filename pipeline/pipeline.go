// Package pipeline declares the inference capabilities the generator drives.
// Implementations are black boxes: the generator only constructs them,
// calls Generate per image and observes step progress.
package pipeline

import (
	"image"

	"diffuser/shared/meta"
)

// Options are the construction inputs for a pipeline.
type Options struct {
	ResourcePath  string
	ComputeUnit   meta.ComputeUnit
	DisableSafety bool
	ReduceMemory  bool
}

// Params describe a single synthesis call.
type Params struct {
	Prompt         string
	NegativePrompt string
	ImageCount     int
	StepCount      int
	Seed           uint32
	GuidanceScale  float64
	Scheduler      meta.Scheduler
}

// StepProgress is reported once per denoising step.
type StepProgress struct {
	Step      int
	StepCount int
	Preview   image.Image // optional
}

// StepCallback is invoked synchronously from inside Generate. Returning false
// asks the pipeline to stop early.
type StepCallback func(StepProgress) bool

// Pipeline synthesises images. The returned slice may contain nil entries
// for images the pipeline could not produce.
type Pipeline interface {
	Generate(params Params, onStep StepCallback) ([]image.Image, error)
}

// Factory constructs a pipeline from the model resources at opts.ResourcePath.
type Factory func(opts Options) (Pipeline, error)

// Closer is implemented by pipelines that hold resources which must be
// released when another model replaces them.
type Closer interface {
	Close() error
}

// Upscaler increases the resolution of one image, returning nil on failure.
type Upscaler interface {
	Upscale(img image.Image) image.Image
}
