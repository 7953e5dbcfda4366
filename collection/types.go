package collection

import (
	"image"
	"sync"
	"time"

	"diffuser/shared/meta"

	"github.com/google/uuid"
)

// ProducedImage is one finished generation result together with the
// parameters that produced it. Published images are never mutated; upscaling
// creates a new ProducedImage.
type ProducedImage struct {
	ID             uuid.UUID
	Image          image.Image
	Prompt         string
	NegativePrompt string
	Model          string
	Scheduler      meta.Scheduler
	Seed           uint32
	Steps          int
	GuidanceScale  float64
	Width          int
	Height         int
	AspectRatio    float64
	GeneratedAt    time.Time
	Upscaled       bool
}

// Collection is an insertion-ordered store of produced images.
type Collection struct {
	mutex  sync.RWMutex
	images []ProducedImage
	index  map[uuid.UUID]int
}

// Gallery holds the browsing state over a collection: the selected image and
// the active search text.
type Gallery struct {
	SearchText string
	Selected   uuid.UUID // uuid.Nil when nothing is selected
}
