package collection

import (
	"image"
	"reflect"
	"testing"
	"time"

	"diffuser/shared/meta"

	"github.com/google/uuid"
)

func sample(prompt string, seed uint32) ProducedImage {
	return NewProducedImage(image.NewRGBA(image.Rect(0, 0, 64, 32)), ProducedImage{
		Prompt:        prompt,
		Model:         "sd-2.1",
		Scheduler:     meta.SchedulerEuler,
		Seed:          seed,
		Steps:         20,
		GuidanceScale: 7.5,
		GeneratedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
}

func TestNewProducedImageDimensions(t *testing.T) {
	img := sample("cat", 1)
	if img.ID == uuid.Nil {
		t.Error("NewProducedImage() did not assign an ID")
	}
	if img.Width != 64 || img.Height != 32 || img.AspectRatio != 2 {
		t.Errorf("dimensions = %dx%d ratio %v", img.Width, img.Height, img.AspectRatio)
	}
}

func TestAddRoundTrip(t *testing.T) {
	c := New()
	img := sample("a red fox", 42)

	id := c.Add(img)
	if id != img.ID {
		t.Fatalf("Add() = %v, want the image's own ID %v", id, img.ID)
	}

	got, ok := c.ImageWithID(id)
	if !ok {
		t.Fatal("ImageWithID() did not find the added image")
	}
	if !reflect.DeepEqual(got, img) {
		t.Errorf("ImageWithID() = %+v, want %+v", got, img)
	}
}

func TestAddAssignsUniqueIDs(t *testing.T) {
	c := New()
	img := sample("dup", 1)

	first := c.Add(img)
	second := c.Add(img)
	third := c.Add(ProducedImage{Prompt: "no id"})

	if first == second {
		t.Error("Add() reused an identifier already in the collection")
	}
	if third == uuid.Nil {
		t.Error("Add() left a nil identifier")
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestAddBatchPreservesOrder(t *testing.T) {
	c := New()
	batch := []ProducedImage{sample("one", 1), sample("two", 2), sample("three", 3)}

	ids := c.AddBatch(batch)
	if len(ids) != 3 {
		t.Fatalf("AddBatch() returned %d ids", len(ids))
	}
	for i, id := range ids {
		idx, ok := c.IndexOf(id)
		if !ok || idx != i {
			t.Errorf("IndexOf(%v) = %d, %v; want %d", id, idx, ok, i)
		}
	}

	var prompts []string
	for _, img := range c.Images() {
		prompts = append(prompts, img.Prompt)
	}
	if !reflect.DeepEqual(prompts, []string{"one", "two", "three"}) {
		t.Errorf("Images() order = %v", prompts)
	}
}

func TestRemoveReindexes(t *testing.T) {
	c := New()
	ids := c.AddBatch([]ProducedImage{sample("a", 1), sample("b", 2), sample("c", 3)})

	if !c.Remove(ids[1]) {
		t.Fatal("Remove() reported missing image")
	}
	if c.Remove(ids[1]) {
		t.Error("Remove() succeeded twice")
	}
	if _, ok := c.ImageWithID(ids[1]); ok {
		t.Error("removed image still found")
	}
	if idx, ok := c.IndexOf(ids[2]); !ok || idx != 1 {
		t.Errorf("IndexOf(c) = %d, %v; want 1", idx, ok)
	}
}

func TestGalleryNavigation(t *testing.T) {
	c := New()
	ids := c.AddBatch([]ProducedImage{sample("a", 1), sample("b", 2), sample("c", 3)})

	var g Gallery
	if _, ok := g.SelectNext(c); ok {
		t.Error("SelectNext() with no selection should fail")
	}
	if !g.Select(ids[0], c) {
		t.Fatal("Select() failed")
	}

	if id, _ := g.SelectPrevious(c); id != ids[0] {
		t.Error("SelectPrevious() should stay on the first image")
	}
	if id, _ := g.SelectNext(c); id != ids[1] {
		t.Error("SelectNext() should move to the second image")
	}
	g.SelectNext(c)
	if id, _ := g.SelectNext(c); id != ids[2] {
		t.Error("SelectNext() should stay on the last image")
	}

	if g.Select(uuid.New(), c) {
		t.Error("Select() accepted an unknown id")
	}
	g.Clear()
	if g.Selected != uuid.Nil {
		t.Error("Clear() kept the selection")
	}
}

func TestGalleryFiltered(t *testing.T) {
	c := New()
	c.AddBatch([]ProducedImage{sample("A Lighthouse at dusk", 1), sample("forest", 2), sample("lighthouse storm", 3)})

	g := Gallery{SearchText: "LIGHTHOUSE"}
	if got := len(g.Filtered(c)); got != 2 {
		t.Errorf("Filtered() = %d images, want 2", got)
	}
	g.SearchText = ""
	if got := len(g.Filtered(c)); got != 3 {
		t.Errorf("Filtered() with empty search = %d, want 3", got)
	}
}
