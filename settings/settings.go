package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"diffuser/logger"
	"diffuser/shared/meta"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(c)
}

// Defaults returns a configuration with the generation defaults filled in.
func Defaults() Config {
	return Config{
		Models: ModelsConfig{
			ComputeUnit: meta.ComputeCPUAndGPU,
		},
		Generation: GenerationConfig{
			Steps:          28,
			GuidanceScale:  11.0,
			NumberOfImages: 1,
			Scheduler:      meta.SchedulerDPMSolverMultistep,
			UpscaleFactor:  4,
			OutputDir:      "output",
		},
		ComfyUi: ComfyUiConfig{
			Url:            "127.0.0.1",
			Ports:          []ComfyUiPort{{Name: string(meta.ComputeCPUAndGPU), Port: 8188}},
			TimeoutSeconds: 10,
		},
		Archive: ArchiveConfig{
			Path:         "diffuser.db",
			MaxValueSize: 32 * 1024 * 1024,
		},
		Logging: logger.Config{
			Level:  logger.LevelInfo,
			Format: "text",
		},
	}
}

// LoadConfig loads the configuration from configPath and the optional service
// configs next to it. It returns a pointer to the Config struct or an error if loading fails.
func LoadConfig(configPath string) (*Config, error) {
	config := Defaults()

	// Check if main config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	// Get absolute path for better error messages
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		absPath = configPath // fallback to relative path
	}

	_, err = toml.DecodeFile(configPath, &config)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", absPath, err)
	}

	// Load service-specific configs
	if err := loadServiceConfigs(filepath.Dir(configPath), &config); err != nil {
		return nil, fmt.Errorf("error loading service configs: %w", err)
	}

	// Validate the configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// loadServiceConfigs loads all individual service configuration files
func loadServiceConfigs(baseDir string, config *Config) error {
	serviceConfigs := map[string]interface{}{
		"settings/comfyui.toml": &config.ComfyUi,
		"settings/archive.toml": &config.Archive,
		"settings/logging.toml": &config.Logging,
	}

	for name, configStruct := range serviceConfigs {
		configPath := filepath.Join(baseDir, name)
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			// This is not a fatal error, just a warning
			continue
		}

		_, err := toml.DecodeFile(configPath, configStruct)
		if err != nil {
			return fmt.Errorf("error parsing service config file %s: %w", configPath, err)
		}
	}

	return nil
}

// Port returns the ComfyUI port serving the given compute unit, falling back
// to the first configured port.
func (c ComfyUiConfig) Port(unit meta.ComputeUnit) (int, bool) {
	for _, p := range c.Ports {
		if p.Name == string(unit) {
			return p.Port, true
		}
	}
	if len(c.Ports) > 0 {
		return c.Ports[0].Port, true
	}
	return 0, false
}
