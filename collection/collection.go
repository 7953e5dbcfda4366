package collection

import (
	"image"

	"github.com/google/uuid"
)

func New() *Collection {
	return &Collection{index: make(map[uuid.UUID]int)}
}

// NewProducedImage fills the dimension fields of p from img and assigns a
// fresh identifier.
func NewProducedImage(img image.Image, p ProducedImage) ProducedImage {
	p.ID = uuid.New()
	p.Image = img
	p.Width, p.Height = 0, 0
	p.AspectRatio = 0
	if img != nil {
		b := img.Bounds()
		p.Width, p.Height = b.Dx(), b.Dy()
		if p.Height > 0 {
			p.AspectRatio = float64(p.Width) / float64(p.Height)
		}
	}
	return p
}

// Add appends img and returns its identifier. An image without an identifier,
// or with one already in use, is given a new one.
func (c *Collection) Add(img ProducedImage) uuid.UUID {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.addUnsafe(img)
}

// AddBatch appends images in order and returns their identifiers.
func (c *Collection) AddBatch(imgs []ProducedImage) []uuid.UUID {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	ids := make([]uuid.UUID, 0, len(imgs))
	for _, img := range imgs {
		ids = append(ids, c.addUnsafe(img))
	}
	return ids
}

func (c *Collection) addUnsafe(img ProducedImage) uuid.UUID {
	if _, taken := c.index[img.ID]; img.ID == uuid.Nil || taken {
		img.ID = uuid.New()
	}
	c.index[img.ID] = len(c.images)
	c.images = append(c.images, img)
	return img.ID
}

// Remove deletes the image with id, reporting whether it was present.
func (c *Collection) Remove(id uuid.UUID) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.images = append(c.images[:i], c.images[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.images); j++ {
		c.index[c.images[j].ID] = j
	}
	return true
}

func (c *Collection) ImageWithID(id uuid.UUID) (ProducedImage, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	i, ok := c.index[id]
	if !ok {
		return ProducedImage{}, false
	}
	return c.images[i], true
}

func (c *Collection) IndexOf(id uuid.UUID) (int, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	i, ok := c.index[id]
	return i, ok
}

// Images returns a snapshot of the collection in insertion order.
func (c *Collection) Images() []ProducedImage {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	out := make([]ProducedImage, len(c.images))
	copy(out, c.images)
	return out
}

func (c *Collection) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.images)
}

// At returns the image at position i.
func (c *Collection) At(i int) (ProducedImage, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if i < 0 || i >= len(c.images) {
		return ProducedImage{}, false
	}
	return c.images[i], true
}
