package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"diffuser/logger"
	"diffuser/settings"
	"diffuser/shared/meta"
)

type flags struct {
	configPath string
	model      string
	compute    string
	list       bool
	status     bool
	jpg        bool

	prompt    string
	negative  string
	steps     int
	seed      uint
	count     int
	guidance  float64
	scheduler string
	upscale   bool
	hires     bool
}

func parseFlags() (flags, map[string]bool) {
	var f flags
	flag.StringVar(&f.configPath, "config", "config.toml", "path to the configuration file")
	flag.StringVar(&f.model, "model", "", "model to load (defaults to models.default, then the first model found)")
	flag.StringVar(&f.compute, "compute", "", "compute unit, one of cpuOnly, cpuAndGPU, all, cpuAndNeuralEngine")
	flag.BoolVar(&f.list, "list", false, "list the available models and exit")
	flag.BoolVar(&f.status, "status", false, "print the ComfyUI device status and exit")
	flag.BoolVar(&f.jpg, "jpg", false, "export JPEG instead of PNG")

	flag.StringVar(&f.prompt, "prompt", "", "prompt")
	flag.StringVar(&f.negative, "negative", "", "negative prompt")
	flag.IntVar(&f.steps, "steps", 0, "step count")
	flag.UintVar(&f.seed, "seed", 0, "seed, 0 for random")
	flag.IntVar(&f.count, "n", 0, "number of images")
	flag.Float64Var(&f.guidance, "guidance", 0, "guidance scale")
	flag.StringVar(&f.scheduler, "scheduler", "", "scheduler, one of pndm, dpm-solver-multistep, euler, euler-ancestral, ddim")
	flag.BoolVar(&f.upscale, "upscale", false, "upscale every image as it is produced")
	flag.BoolVar(&f.hires, "hires", false, "also add a high resolution copy of every image after the run")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set
}

// applyOverrides copies explicitly set command line values over the config.
func applyOverrides(f flags, set map[string]bool, config *settings.Config) error {
	g := &config.Generation
	if set["prompt"] {
		g.Prompt = f.prompt
	}
	if set["negative"] {
		g.NegativePrompt = f.negative
	}
	if set["steps"] {
		g.Steps = f.steps
	}
	if set["seed"] {
		if f.seed > uint(^uint32(0)) {
			return fmt.Errorf("seed %d does not fit in 32 bits", f.seed)
		}
		g.Seed = uint32(f.seed)
	}
	if set["n"] {
		g.NumberOfImages = f.count
	}
	if set["guidance"] {
		g.GuidanceScale = f.guidance
	}
	if set["scheduler"] {
		s, err := meta.ParseScheduler(f.scheduler)
		if err != nil {
			return err
		}
		g.Scheduler = s
	}
	if set["upscale"] {
		g.Upscale = f.upscale
	}
	if set["model"] {
		config.Models.Default = f.model
	}
	if set["compute"] {
		unit, err := meta.ParseComputeUnit(f.compute)
		if err != nil {
			return err
		}
		config.Models.ComputeUnit = unit
	}
	return nil
}

func main() {
	f, set := parseFlags()

	config, err := settings.LoadConfig(f.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error in", f.configPath)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := applyOverrides(f, set, config); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger.Init(config.Logging)
	logger.With("config", f.configPath).Info("Diffuser starting", "compute_unit", config.Models.ComputeUnit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := newApp(config, f)
	go app.generator.Run(ctx)

	// First interrupt stops the running generation, the second one quits.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		logger.Info("Stopping generation, interrupt again to quit")
		app.stop()
		<-signals
		cancel()
		os.Exit(130)
	}()

	if err := app.run(ctx); err != nil {
		logger.Fatal("Diffuser failed", "error", err)
	}
}
