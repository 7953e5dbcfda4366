package collection

import (
	"strings"

	"github.com/google/uuid"
)

// Select makes id the current selection if it exists in c.
func (g *Gallery) Select(id uuid.UUID, c *Collection) bool {
	if _, ok := c.IndexOf(id); !ok {
		return false
	}
	g.Selected = id
	return true
}

// SelectNext moves the selection one image forward, staying on the last one.
func (g *Gallery) SelectNext(c *Collection) (uuid.UUID, bool) {
	return g.step(c, 1)
}

// SelectPrevious moves the selection one image back, staying on the first one.
func (g *Gallery) SelectPrevious(c *Collection) (uuid.UUID, bool) {
	return g.step(c, -1)
}

func (g *Gallery) step(c *Collection, delta int) (uuid.UUID, bool) {
	i, ok := c.IndexOf(g.Selected)
	if !ok {
		return uuid.Nil, false
	}
	next, ok := c.At(i + delta)
	if !ok {
		return g.Selected, true
	}
	g.Selected = next.ID
	return g.Selected, true
}

// Clear drops the selection, e.g. after the selected image was removed.
func (g *Gallery) Clear() {
	g.Selected = uuid.Nil
}

// Filtered returns the images whose prompt contains the search text,
// case-insensitively. An empty search returns everything.
func (g *Gallery) Filtered(c *Collection) []ProducedImage {
	images := c.Images()
	if g.SearchText == "" {
		return images
	}

	needle := strings.ToLower(g.SearchText)
	var out []ProducedImage
	for _, img := range images {
		if strings.Contains(strings.ToLower(img.Prompt), needle) {
			out = append(out, img)
		}
	}
	return out
}
