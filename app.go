package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"diffuser/archive"
	"diffuser/collection"
	"diffuser/generator"
	"diffuser/image"
	"diffuser/image/comfyui"
	"diffuser/logger"
	"diffuser/pipeline"
	"diffuser/settings"
	"diffuser/status"

	"github.com/hako/durafmt"
	"github.com/schollz/progressbar/v3"
)

type app struct {
	config     *settings.Config
	flags      flags
	generator  *generator.Generator
	collection *collection.Collection
	stopped    atomic.Bool
}

func newApp(config *settings.Config, f flags) *app {
	return &app{
		config: config,
		flags:  f,
		generator: generator.New(
			comfyui.NewFactory(config.ComfyUi),
			pipeline.NewResampler(config.Generation.UpscaleFactor),
		),
		collection: collection.New(),
	}
}

func (a *app) run(ctx context.Context) error {
	if a.flags.status {
		a.printStatus()
		return nil
	}

	models, err := a.generator.LoadModels(a.config.Models.Dir)
	if err != nil {
		return err
	}
	if a.flags.list {
		for _, m := range models {
			fmt.Println(m)
		}
		return nil
	}
	if err := a.generator.Sync(ctx); err != nil {
		return err
	}

	model := a.config.Models.Default
	if model == "" {
		model = models[0]
	}
	loaded, err := a.waitFor(ctx, func() error {
		return a.generator.LoadModel(a.config.Models.Dir, model, a.config.Models.ComputeUnit, a.config.Models.ReduceMemory)
	})
	if err != nil {
		return err
	}
	if failed, ok := loaded.(generator.Failed); ok {
		return failed.Err
	}
	// the worker slot is freed right after the status is applied
	if err := a.generator.Sync(ctx); err != nil {
		return err
	}

	req := generator.RequestFromConfig(a.config.Generation)
	if req.Prompt == "" {
		return errors.New("no prompt given, set generation.prompt or pass -prompt")
	}

	begin := time.Now()
	stopProgress := a.renderProgress()
	final, err := a.waitFor(ctx, func() error {
		return a.generator.Generate(req, a.collection)
	})
	stopProgress()
	if err != nil {
		return err
	}
	if failed, ok := final.(generator.Failed); ok {
		logger.Error("Generation failed", "error", failed.Message())
	}
	if a.endedEarly(req.NumberOfImages) {
		logger.Info("Generation ended early", "images", a.collection.Len(), "requested", req.NumberOfImages)
	}

	if a.flags.hires {
		a.addHighResolution()
	}
	return a.save(begin)
}

// stop asks the running generation to stop and remembers that it did, since
// the generator clears its own flag once the run has wound down.
func (a *app) stop() {
	a.stopped.Store(true)
	a.generator.StopGeneration()
}

// endedEarly reports whether the run was stopped or produced fewer images
// than requested.
func (a *app) endedEarly(requested int) bool {
	return a.stopped.Load() || a.collection.Len() < requested
}

// waitFor starts an asynchronous generator operation and blocks until it
// settles in Ready or Failed.
func (a *app) waitFor(ctx context.Context, start func() error) (generator.Status, error) {
	statuses, cancel := a.generator.WatchStatus()
	defer cancel()
	<-statuses

	if err := start(); err != nil {
		return nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case s := <-statuses:
			logger.Debug("Status", "status", generator.Describe(s))
			switch s.(type) {
			case generator.Ready, generator.Failed:
				return s, nil
			}
		}
	}
}

// renderProgress draws one progress bar per image until the returned stop
// function is called.
func (a *app) renderProgress() func() {
	progress, cancel := a.generator.WatchProgress()
	done := make(chan struct{})
	go func() {
		defer close(done)
		var bar *progressbar.ProgressBar
		current := -1
		for p := range progress {
			if p == nil || p.Step == nil {
				continue
			}
			if bar == nil || p.Index != current {
				if bar != nil {
					bar.Finish()
				}
				current = p.Index
				bar = progressbar.Default(int64(p.Step.StepCount), fmt.Sprintf("image %d/%d", p.Index+1, p.Total))
			}
			bar.Set(p.Step.Step)
		}
		if bar != nil {
			bar.Finish()
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (a *app) addHighResolution() {
	for _, img := range a.collection.Images() {
		if img.Upscaled {
			continue
		}
		up, ok := a.generator.UpscaleImage(img)
		if !ok {
			logger.Warn("Could not upscale image", "image", img.ID)
			continue
		}
		a.collection.Add(up)
	}
}

func (a *app) save(begin time.Time) error {
	images := a.collection.Images()
	if len(images) == 0 {
		logger.Info("No images produced")
		return nil
	}

	paths, err := image.ExportAll(a.config.Generation.OutputDir, images, a.flags.jpg)
	for _, path := range paths {
		fmt.Println(path)
	}
	if err != nil {
		return fmt.Errorf("failed to export images: %w", err)
	}

	if a.config.Archive.Enabled {
		store, err := archive.Open(a.config.Archive)
		if err != nil {
			return err
		}
		defer store.Close()
		if _, err := store.SaveAll(images); err != nil {
			return err
		}
		logger.Info("Archived images", "count", len(images), "total", store.Len())
	}

	logger.Info("Done", "images", len(images), "took", durafmt.Parse(time.Since(begin)).LimitFirstN(2).String())
	return nil
}

func (a *app) printStatus() {
	port, ok := a.config.ComfyUi.Port(a.config.Models.ComputeUnit)
	if !ok {
		fmt.Println("No ComfyUI ports configured")
		return
	}
	client := status.NewClient(a.config.ComfyUi.Url, port, time.Duration(a.config.ComfyUi.TimeoutSeconds)*time.Second)
	fmt.Printf("ComfyUI %s (%s)\n", client.BaseURL, a.config.Models.ComputeUnit)
	fmt.Println(client.GetFormattedStatus())
}
