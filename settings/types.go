package settings

import (
	"diffuser/logger"
	"diffuser/shared/meta"
)

type (
	Config struct {
		Models     ModelsConfig     `toml:"models" validate:"required"`
		Generation GenerationConfig `toml:"generation" validate:"required"`
		ComfyUi    ComfyUiConfig    `toml:"comfyui" validate:"required"`
		Archive    ArchiveConfig    `toml:"archive"`
		Logging    logger.Config    `toml:"logging" validate:"required"`
	}

	ModelsConfig struct {
		Dir          string           `toml:"dir"` // empty means the default application-data directory
		Default      string           `toml:"default"`
		ComputeUnit  meta.ComputeUnit `toml:"computeUnit" validate:"required,oneof=cpuOnly cpuAndGPU all cpuAndNeuralEngine"`
		ReduceMemory bool             `toml:"reduceMemory"`
	}

	GenerationConfig struct {
		Prompt         string         `toml:"prompt"`
		NegativePrompt string         `toml:"negativePrompt"`
		Steps          int            `toml:"steps" validate:"gte=2,lte=100"`
		GuidanceScale  float64        `toml:"guidanceScale" validate:"gte=1,lte=20"`
		NumberOfImages int            `toml:"numberOfImages" validate:"gte=1,lte=100"`
		Seed           uint32         `toml:"seed"`
		Scheduler      meta.Scheduler `toml:"scheduler" validate:"required"`
		Upscale        bool           `toml:"upscale"`
		UpscaleFactor  int            `toml:"upscaleFactor" validate:"gte=2,lte=8"`
		OutputDir      string         `toml:"outputDir"`
	}

	ComfyUiConfig struct {
		Url            string        `toml:"url" validate:"required"`
		Ports          []ComfyUiPort `toml:"ports" validate:"required,min=1,dive"`
		TimeoutSeconds int           `toml:"timeoutSeconds" validate:"gte=0"`
	}

	// ComfyUiPort maps a compute unit name to the ComfyUI instance serving it.
	ComfyUiPort struct {
		Name string `toml:"name" validate:"required"`
		Port int    `toml:"port" validate:"required"`
	}

	ArchiveConfig struct {
		Enabled      bool   `toml:"enabled"`
		Path         string `toml:"path" validate:"required_if=Enabled true"`
		MaxValueSize int    `toml:"maxValueSize" validate:"gte=0"`
	}
)
