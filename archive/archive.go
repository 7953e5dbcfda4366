// Package archive persists produced images in a bitcask database so they
// survive the process.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"diffuser/collection"
	"diffuser/image"
	"diffuser/logger"
	"diffuser/settings"
	"diffuser/shared/meta"

	"git.mills.io/prologic/bitcask"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("image not found in archive")

// MergeInterval is how often an open store compacts its data files.
var MergeInterval = 24 * time.Hour

// Store is an image archive backed by bitcask.
type Store struct {
	db   *bitcask.Bitcask
	log  *slog.Logger
	done chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

type record struct {
	ID             uuid.UUID      `json:"id"`
	Prompt         string         `json:"prompt"`
	NegativePrompt string         `json:"negativePrompt"`
	Model          string         `json:"model"`
	Scheduler      meta.Scheduler `json:"scheduler"`
	Seed           uint32         `json:"seed"`
	Steps          int            `json:"steps"`
	GuidanceScale  float64        `json:"guidanceScale"`
	GeneratedAt    time.Time      `json:"generatedAt"`
	Upscaled       bool           `json:"upscaled"`
	PNG            []byte         `json:"png"`
}

// Open opens or creates the database at config.Path.
func Open(config settings.ArchiveConfig) (*Store, error) {
	var opts []bitcask.Option
	if config.MaxValueSize > 0 {
		opts = append(opts, bitcask.WithMaxValueSize(uint64(config.MaxValueSize)))
	}
	db, err := bitcask.Open(config.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", config.Path, err)
	}

	s := &Store{db: db, log: logger.Service("archive"), done: make(chan struct{})}
	s.wg.Add(1)
	go s.mergeLoop()
	return s, nil
}

func (s *Store) mergeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(MergeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Merge()
		}
	}
}

// Merge compacts the database to reclaim space from deleted records.
func (s *Store) Merge() {
	s.log.Info("Merging archive to reclaim space...")
	if err := s.db.Merge(); err != nil {
		s.log.Error("Error merging archive", "error", err)
		return
	}
	s.log.Info("Archive merge complete.")
}

// Close stops background compaction and closes the database. Later calls
// return the result of the first.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// Save stores img under its id, replacing any previous record.
func (s *Store) Save(img collection.ProducedImage) error {
	if img.Image == nil {
		return fmt.Errorf("image %s has no pixels", img.ID)
	}
	pixels, err := image.EncodePNG(img.Image)
	if err != nil {
		return err
	}

	data, err := json.Marshal(record{
		ID:             img.ID,
		Prompt:         img.Prompt,
		NegativePrompt: img.NegativePrompt,
		Model:          img.Model,
		Scheduler:      img.Scheduler,
		Seed:           img.Seed,
		Steps:          img.Steps,
		GuidanceScale:  img.GuidanceScale,
		GeneratedAt:    img.GeneratedAt,
		Upscaled:       img.Upscaled,
		PNG:            pixels,
	})
	if err != nil {
		return err
	}
	compressed, err := compress(data)
	if err != nil {
		return err
	}
	return s.db.Put(Key(img.ID), compressed)
}

// SaveAll stores every image, stopping at the first failure.
func (s *Store) SaveAll(images []collection.ProducedImage) (int, error) {
	for i, img := range images {
		if err := s.Save(img); err != nil {
			return i, fmt.Errorf("failed to archive image %s: %w", img.ID, err)
		}
	}
	return len(images), nil
}

// Load returns the archived image with the given id.
func (s *Store) Load(id uuid.UUID) (collection.ProducedImage, error) {
	compressed, err := s.db.Get(Key(id))
	if errors.Is(err, bitcask.ErrKeyNotFound) {
		return collection.ProducedImage{}, ErrNotFound
	}
	if err != nil {
		return collection.ProducedImage{}, err
	}
	return decodeRecord(compressed)
}

// All returns every archived image, in no particular order.
func (s *Store) All() ([]collection.ProducedImage, error) {
	var keys [][]byte
	if err := s.db.Fold(func(key []byte) error {
		keys = append(keys, append([]byte(nil), key...))
		return nil
	}); err != nil {
		return nil, err
	}

	images := make([]collection.ProducedImage, 0, len(keys))
	for _, key := range keys {
		compressed, err := s.db.Get(key)
		if err != nil {
			return nil, err
		}
		img, err := decodeRecord(compressed)
		if err != nil {
			s.log.Warn("Skipping unreadable archive record", "key", string(key), "error", err)
			continue
		}
		images = append(images, img)
	}
	return images, nil
}

func (s *Store) Has(id uuid.UUID) bool {
	return s.db.Has(Key(id))
}

func (s *Store) Delete(id uuid.UUID) error {
	return s.db.Delete(Key(id))
}

func (s *Store) Len() int {
	return s.db.Len()
}

func decodeRecord(compressed []byte) (collection.ProducedImage, error) {
	data, err := decompress(compressed)
	if err != nil {
		return collection.ProducedImage{}, err
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return collection.ProducedImage{}, err
	}
	pixels, err := image.Decode(r.PNG)
	if err != nil {
		return collection.ProducedImage{}, err
	}

	img := collection.NewProducedImage(pixels, collection.ProducedImage{
		Prompt:         r.Prompt,
		NegativePrompt: r.NegativePrompt,
		Model:          r.Model,
		Scheduler:      r.Scheduler,
		Seed:           r.Seed,
		Steps:          r.Steps,
		GuidanceScale:  r.GuidanceScale,
		GeneratedAt:    r.GeneratedAt,
		Upscaled:       r.Upscaled,
	})
	img.ID = r.ID
	return img, nil
}
