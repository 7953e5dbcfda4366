package generator

import (
	"fmt"

	"diffuser/collection"
	"diffuser/settings"
	"diffuser/shared/meta"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Request is one submission to Generate. A zero Seed asks for a random one.
type Request struct {
	Prompt         string
	NegativePrompt string
	Steps          int            `validate:"gte=2,lte=100"`
	Seed           uint32
	GuidanceScale  float64        `validate:"gte=1,lte=20"`
	NumberOfImages int            `validate:"gte=1,lte=100"`
	Scheduler      meta.Scheduler `validate:"required"`
	Upscale        bool
}

func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if _, err := meta.ParseScheduler(string(r.Scheduler)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// RequestFromConfig builds a request from the configured generation defaults.
func RequestFromConfig(c settings.GenerationConfig) Request {
	return Request{
		Prompt:         c.Prompt,
		NegativePrompt: c.NegativePrompt,
		Steps:          c.Steps,
		Seed:           c.Seed,
		GuidanceScale:  c.GuidanceScale,
		NumberOfImages: c.NumberOfImages,
		Scheduler:      c.Scheduler,
		Upscale:        c.Upscale,
	}
}

// FromImage copies the recorded options of img into r, so the image can be
// reproduced or varied.
func (r Request) FromImage(img collection.ProducedImage) Request {
	r.Prompt = img.Prompt
	r.NegativePrompt = img.NegativePrompt
	r.Steps = img.Steps
	r.GuidanceScale = img.GuidanceScale
	r.Seed = img.Seed
	r.Scheduler = img.Scheduler
	return r
}
