// Package generator owns the inference pipeline and runs generations.
//
// A Generator serializes all model loads and generations on one background
// worker. Status and progress changes are applied on a Dispatcher, the single
// context presentation code observes them from. Errors from asynchronous work
// never reach the caller directly; they surface as a Failed status.
package generator

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"diffuser/catalog"
	"diffuser/collection"
	"diffuser/logger"
	"diffuser/pipeline"
	"diffuser/queue"
	"diffuser/shared/meta"

	"github.com/google/uuid"
	"github.com/hako/durafmt"
)

// Dispatcher runs posted functions in order on one execution context.
type Dispatcher interface {
	Post(fn func())
}

// Sink receives finished images. *collection.Collection implements it.
type Sink interface {
	AddBatch(images []collection.ProducedImage) []uuid.UUID
}

type Option func(*Generator)

// WithDispatcher delivers observable changes on d instead of the generator's
// own dispatcher goroutine.
func WithDispatcher(d Dispatcher) Option {
	return func(g *Generator) {
		g.ui = d
		g.ownUI = nil
	}
}

// WithSeedSource replaces the crypto-backed random seed source.
func WithSeedSource(src SeedSource) Option {
	return func(g *Generator) { g.seeds = src }
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

type Generator struct {
	factory  pipeline.Factory
	upscaler pipeline.Upscaler
	seeds    SeedSource
	now      func() time.Time

	worker *queue.Queue
	ui     Dispatcher
	ownUI  *queue.Dispatcher

	status   *Cell[Status]
	progress *Cell[*GenerationProgress]

	mutex    sync.Mutex
	model    string
	pipeline pipeline.Pipeline

	inflight        atomic.Bool
	stopped         atomic.Bool
	pendingProgress atomic.Pointer[GenerationProgress]
}

// New creates a generator that builds pipelines with factory and upscales
// with upscaler. Call Run to start processing.
func New(factory pipeline.Factory, upscaler pipeline.Upscaler, opts ...Option) *Generator {
	d := queue.NewDispatcher()
	g := &Generator{
		factory:  factory,
		upscaler: upscaler,
		seeds:    cryptoSeeds{},
		now:      time.Now,
		worker:   queue.New(1),
		ui:       d,
		ownUI:    d,
		status:   NewCell[Status](Uninitialized{}),
		progress: NewCell[*GenerationProgress](nil),
	}
	for _, opt := range opts {
		opt(g)
	}
	logger.Debug("Generator init")
	return g
}

// Run processes load and generation jobs until ctx is done.
func (g *Generator) Run(ctx context.Context) {
	if g.ownUI != nil {
		go g.ownUI.Run(ctx)
	}
	g.worker.ProcessQueue(ctx)
}

// Sync waits until every observable change posted so far has been applied.
// It only works with the generator's own dispatcher.
func (g *Generator) Sync(ctx context.Context) error {
	if g.ownUI == nil {
		return nil
	}
	return g.ownUI.Sync(ctx)
}

func (g *Generator) Status() Status {
	return g.status.Get()
}

func (g *Generator) Progress() *GenerationProgress {
	return g.progress.Get()
}

func (g *Generator) WatchStatus() (<-chan Status, func()) {
	return g.status.Subscribe()
}

func (g *Generator) WatchProgress() (<-chan *GenerationProgress, func()) {
	return g.progress.Subscribe()
}

// Model returns the loaded model name, or "" when none is loaded.
func (g *Generator) Model() string {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.model
}

// IsGenerationStopped reports whether a stop was requested for the current run.
func (g *Generator) IsGenerationStopped() bool {
	return g.stopped.Load()
}

func (g *Generator) setStatus(s Status) {
	g.ui.Post(func() { g.status.Set(s) })
}

// release applies the final status of a job and frees the worker slot on the
// dispatcher, so a caller that sees the slot free also sees the status.
func (g *Generator) release(s Status) {
	g.ui.Post(func() {
		g.status.Set(s)
		g.inflight.Store(false)
	})
}

// LoadModels discovers the models under modelDir and publishes them.
func (g *Generator) LoadModels(modelDir string) ([]string, error) {
	if !g.inflight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	models, err := catalog.Discover(modelDir)
	if err != nil {
		g.release(Failed{Err: err})
		return nil, err
	}
	g.release(ModelsDiscovered{Models: models})
	return models, nil
}

// LoadModel loads the named model from modelDir on the worker. The outcome is
// observable through Status: Ready on success, Failed otherwise.
func (g *Generator) LoadModel(modelDir, name string, unit meta.ComputeUnit, reduceMemory bool) error {
	if !g.inflight.CompareAndSwap(false, true) {
		return ErrBusy
	}

	g.setStatus(ModelLoading{Model: name})
	_, err := g.worker.Enqueue(queue.Job{
		Name: "load " + name,
		Run:  func() { g.loadModel(modelDir, name, unit, reduceMemory) },
	})
	if err != nil {
		g.release(Failed{Err: err})
		return err
	}
	return nil
}

func (g *Generator) loadModel(modelDir, name string, unit meta.ComputeUnit, reduceMemory bool) {
	log := logger.Model(name)
	log.Info("Started loading model", "compute_unit", unit, "reduce_memory", reduceMemory)

	dir, err := catalog.Resolve(modelDir)
	if err != nil || !catalog.Exists(dir, name) {
		log.Info("Couldn't find model", "dir", dir)
		g.clearModel()
		g.release(Failed{Err: fmt.Errorf("%w: couldn't load %s because it doesn't exist", ErrModelNotFound, name)})
		return
	}

	begin := g.now()
	p, err := g.factory(pipeline.Options{
		ResourcePath:  filepath.Join(dir, name),
		ComputeUnit:   unit,
		DisableSafety: true,
		ReduceMemory:  reduceMemory,
	})
	if err != nil {
		log.Error("Pipeline construction failed", "error", err)
		g.clearModel()
		g.release(Failed{Err: fmt.Errorf("%w: %s: %v", ErrPipelineConstruction, name, err)})
		return
	}

	g.mutex.Lock()
	previous := g.pipeline
	g.model = name
	g.pipeline = p
	g.mutex.Unlock()
	closePipeline(previous)

	log.Info("Pipeline successfully loaded", "took", durafmt.Parse(g.now().Sub(begin)).LimitFirstN(2).String())
	g.release(Ready{Model: name})
}

func (g *Generator) clearModel() {
	g.mutex.Lock()
	previous := g.pipeline
	g.model = ""
	g.pipeline = nil
	g.mutex.Unlock()
	closePipeline(previous)
}

func closePipeline(p pipeline.Pipeline) {
	if c, ok := p.(pipeline.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to release pipeline", "error", err)
		}
	}
}

// Generate starts a generation job for req and returns immediately. Finished
// images are handed to sink on the dispatcher. It fails eagerly when the
// request is invalid, the worker is busy or no pipeline is ready.
func (g *Generator) Generate(req Request, sink Sink) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Upscale && g.upscaler == nil {
		return fmt.Errorf("%w: upscaling requested without an upscaler", ErrInvalidRequest)
	}
	if !g.inflight.CompareAndSwap(false, true) {
		return ErrBusy
	}

	g.mutex.Lock()
	p, model := g.pipeline, g.model
	g.mutex.Unlock()
	if _, ready := g.status.Get().(Ready); !ready || p == nil {
		g.inflight.Store(false)
		return ErrNotReady
	}

	g.stopped.Store(false)
	g.setStatus(Generating{})

	_, err := g.worker.Enqueue(queue.Job{
		Name: "generate",
		Run:  func() { g.generate(req, sink, p, model) },
	})
	if err != nil {
		g.release(Failed{Err: fmt.Errorf("%w: %v", ErrGeneration, err)})
		return err
	}
	return nil
}

func (g *Generator) generate(req Request, sink Sink, p pipeline.Pipeline, model string) {
	log := logger.Job("generate", uuid.NewString()[:8])

	base := req.Seed
	if base == 0 {
		base = randomSeed(g.seeds)
	}
	log.Info("Generating", "model", model, "images", req.NumberOfImages, "seed", base)

	final := Status(Ready{Model: model})
	defer func() {
		g.stopped.Store(false)
		g.ui.Post(func() {
			g.pendingProgress.Store(nil)
			g.progress.Set(nil)
		})
		g.release(final)
	}()

	for index := range req.NumberOfImages {
		if g.stopped.Load() {
			break
		}
		seed := seedAt(base, index)
		total := req.NumberOfImages
		g.publishProgress(GenerationProgress{Index: index, Total: total})

		begin := g.now()
		results, err := p.Generate(pipeline.Params{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			ImageCount:     1,
			StepCount:      req.Steps,
			Seed:           seed,
			GuidanceScale:  req.GuidanceScale,
			Scheduler:      req.Scheduler,
		}, func(step pipeline.StepProgress) bool {
			g.publishProgress(GenerationProgress{Index: index, Total: total, Step: &step})
			return !g.stopped.Load()
		})
		if err != nil {
			log.Error("There was a problem generating images", "error", err)
			final = Failed{Err: fmt.Errorf("%w: %v", ErrGeneration, err)}
			return
		}
		if g.stopped.Load() {
			log.Info("Generation stopped", "index", index)
			break
		}
		log.Info("Generation took", "index", index, "seed", seed, "duration", durafmt.Parse(g.now().Sub(begin)).LimitFirstN(2).String())

		images := g.wrap(results, req, model, seed)
		if req.Upscale {
			images = g.upscaleAll(images)
		}
		if len(images) > 0 {
			g.ui.Post(func() { sink.AddBatch(images) })
		}
	}
}

// wrap turns raw pipeline output into produced images, skipping nil results.
func (g *Generator) wrap(results []image.Image, req Request, model string, seed uint32) []collection.ProducedImage {
	images := make([]collection.ProducedImage, 0, len(results))
	for _, raw := range results {
		if raw == nil {
			continue
		}
		images = append(images, collection.NewProducedImage(raw, collection.ProducedImage{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			Model:          model,
			Scheduler:      req.Scheduler,
			Seed:           seed,
			Steps:          req.Steps,
			GuidanceScale:  req.GuidanceScale,
			GeneratedAt:    g.now(),
		}))
	}
	return images
}

func (g *Generator) upscaleAll(images []collection.ProducedImage) []collection.ProducedImage {
	out := make([]collection.ProducedImage, 0, len(images))
	for _, img := range images {
		up, ok := g.UpscaleImage(img)
		if !ok {
			logger.Warn("Upscale failed, dropping image", "image", img.ID)
			continue
		}
		out = append(out, up)
	}
	return out
}

// UpscaleImage returns a new, upscaled copy of img with its own identifier.
// img itself is left untouched.
func (g *Generator) UpscaleImage(img collection.ProducedImage) (collection.ProducedImage, bool) {
	if g.upscaler == nil || img.Image == nil {
		return collection.ProducedImage{}, false
	}
	up := g.upscaler.Upscale(img.Image)
	if up == nil {
		return collection.ProducedImage{}, false
	}
	img.Upscaled = true
	return collection.NewProducedImage(up, img), true
}

// StopGeneration asks the running generation to stop at the next step. It
// does not wait.
func (g *Generator) StopGeneration() {
	g.stopped.Store(true)
}

// publishProgress keeps only the newest progress and schedules at most one
// pending flush on the dispatcher, so the worker never blocks on it.
func (g *Generator) publishProgress(p GenerationProgress) {
	if g.pendingProgress.Swap(&p) == nil {
		g.ui.Post(g.flushProgress)
	}
}

func (g *Generator) flushProgress() {
	p := g.pendingProgress.Swap(nil)
	if p == nil {
		return
	}
	g.progress.Set(p)
	if _, ok := g.status.Get().(Generating); ok {
		g.status.Set(Generating{Progress: p})
	}
}
