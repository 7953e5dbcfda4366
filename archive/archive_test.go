package archive

import (
	"errors"
	stdimage "image"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"diffuser/collection"
	"diffuser/settings"
	"diffuser/shared/meta"

	"github.com/google/uuid"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(settings.ArchiveConfig{
		Enabled:      true,
		Path:         filepath.Join(t.TempDir(), "archive.db"),
		MaxValueSize: 4 << 20,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func produced(seed uint32) collection.ProducedImage {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 8, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	return collection.NewProducedImage(img, collection.ProducedImage{
		Prompt:        "a bird on a wire",
		Model:         "sd-2.1",
		Scheduler:     meta.SchedulerEuler,
		Seed:          seed,
		Steps:         28,
		GuidanceScale: 7.5,
		GeneratedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})
}

func TestSaveAndLoad(t *testing.T) {
	s := openStore(t)
	img := produced(42)

	if err := s.Save(img); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !s.Has(img.ID) {
		t.Fatal("Has() = false after Save")
	}

	got, err := s.Load(img.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.ID != img.ID || got.Seed != 42 || got.Prompt != img.Prompt || got.Scheduler != meta.SchedulerEuler {
		t.Errorf("Load() = %+v", got)
	}
	if got.Width != 8 || got.Height != 4 || got.AspectRatio != 2 {
		t.Errorf("dimensions = %dx%d (%v)", got.Width, got.Height, got.AspectRatio)
	}
	if r, _, _, _ := got.Image.At(1, 1).RGBA(); r>>8 != 200 {
		t.Errorf("pixel red = %d", r>>8)
	}
	if !got.GeneratedAt.Equal(img.GeneratedAt) {
		t.Errorf("GeneratedAt = %v", got.GeneratedAt)
	}
}

func TestLoadMissing(t *testing.T) {
	s := openStore(t)
	if _, err := s.Load(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestSaveAllDeleteAndAll(t *testing.T) {
	s := openStore(t)
	images := []collection.ProducedImage{produced(1), produced(2), produced(3)}

	n, err := s.SaveAll(images)
	if err != nil || n != 3 {
		t.Fatalf("SaveAll() = %d, %v", n, err)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d", s.Len())
	}

	if err := s.Delete(images[1].ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	s.Merge()

	all, err := s.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	seeds := map[uint32]bool{}
	for _, img := range all {
		seeds[img.Seed] = true
	}
	if len(all) != 2 || !seeds[1] || !seeds[3] {
		t.Errorf("All() seeds = %v", seeds)
	}
}

func TestSaveAllStopsOnEmptyImage(t *testing.T) {
	s := openStore(t)
	images := []collection.ProducedImage{produced(1), {ID: uuid.New()}, produced(3)}

	n, err := s.SaveAll(images)
	if err == nil || n != 1 {
		t.Errorf("SaveAll() = %d, %v; want 1 and an error", n, err)
	}
}

func TestCloseTwice(t *testing.T) {
	s, err := Open(settings.ArchiveConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "archive.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Save(produced(7)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	first := s.Close()
	if first != nil {
		t.Fatalf("Close() error = %v", first)
	}
	if second := s.Close(); second != first {
		t.Errorf("second Close() = %v, want %v", second, first)
	}
}

func TestKeyIsStable(t *testing.T) {
	id := uuid.MustParse("6f1c0a34-6a6e-4b71-9b4a-5d8b0d1c2e3f")
	if string(Key(id)) != string(Key(id)) || len(Key(id)) != 56 {
		t.Errorf("Key() = %s", Key(id))
	}
	if string(Key(id)) == string(Key(uuid.New())) {
		t.Error("distinct ids share a key")
	}
}
