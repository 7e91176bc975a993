// Package config provides configuration loading and management for tomoalign.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
// Every pipeline stage receives the parameters it needs from here; nothing
// reads ambient state.
type Config struct {
	// Dataset parameters
	Dataset struct {
		// Resolution is the edge size of the phantom and of each projection image
		Resolution int `yaml:"resolution"`

		// AnglesGenerated is the number of projection angles simulated per sample
		AnglesGenerated int `yaml:"anglesGenerated"`

		// AnglesRetained is the fixed number of leading angles whose shifts
		// make up the ground-truth vector (vector length = 2 x this value)
		AnglesRetained int `yaml:"anglesRetained"`

		// SampleCount is the number of samples to synthesize
		SampleCount int `yaml:"sampleCount"`

		// DataDir is the root directory for persisted sample files
		DataDir string `yaml:"dataDir"`

		// Seed feeds every random draw in the synthesis pipeline
		Seed uint64 `yaml:"seed"`
	} `yaml:"dataset"`

	// Misalignment synthesis parameters
	Misalign struct {
		// ShiftSigma is the row/column shift sigma in pixels
		ShiftSigma float64 `yaml:"shiftSigma"`

		// RotationSigma is the rotation sigma in degrees
		RotationSigma float64 `yaml:"rotationSigma"`

		// EnableRotation applies drawn rotations when true
		EnableRotation bool `yaml:"enableRotation"`

		// NoiseSigma is the per-pixel Gaussian noise sigma (0 disables)
		NoiseSigma float64 `yaml:"noiseSigma"`

		// BackgroundMax is the per-image additive background bound (0 disables)
		BackgroundMax float64 `yaml:"backgroundMax"`
	} `yaml:"misalign"`

	// Reconstruction parameters for the cross-correlation experiment
	Reconstruction struct {
		// SIRTIterations is the fixed number of SIRT sweeps
		SIRTIterations int `yaml:"sirtIterations"`

		// SIRTInitValue is the small positive initial voxel value
		SIRTInitValue float64 `yaml:"sirtInitValue"`
	} `yaml:"reconstruction"`

	// Training parameters
	Training struct {
		// Epochs is the fixed epoch budget
		Epochs int `yaml:"epochs"`

		// LearningRate for the momentum SGD solver
		LearningRate float64 `yaml:"learningRate"`

		// Momentum coefficient for the solver
		Momentum float64 `yaml:"momentum"`

		// TrainFraction is the ordered train/test split ratio
		TrainFraction float64 `yaml:"trainFraction"`

		// DropoutRate is applied between the fully-connected stages,
		// in training mode only
		DropoutRate float64 `yaml:"dropoutRate"`

		// OutputScale multiplies the standardized raw output
		OutputScale float64 `yaml:"outputScale"`

		// RunLogDir receives the per-epoch loss log and the loss curve plot
		RunLogDir string `yaml:"runLogDir"`
	} `yaml:"training"`

	// Processing parameters
	Processing struct {
		// NumCores bounds worker fan-out in projection and generation
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// SavePreviews writes projection/correlation images as JPEG sequences
		SavePreviews bool `yaml:"savePreviews"`

		// PreviewDir is where preview images are written
		PreviewDir string `yaml:"previewDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Dataset.Resolution = 64
	cfg.Dataset.AnglesGenerated = 200
	cfg.Dataset.AnglesRetained = 180
	cfg.Dataset.SampleCount = 100
	cfg.Dataset.DataDir = "data"
	cfg.Dataset.Seed = 1

	// Shift sigma is four times the rotation sigma; see pkg/misalign.
	cfg.Misalign.ShiftSigma = 4.0
	cfg.Misalign.RotationSigma = 1.0
	cfg.Misalign.EnableRotation = false
	cfg.Misalign.NoiseSigma = 0.0
	cfg.Misalign.BackgroundMax = 0.0

	cfg.Reconstruction.SIRTIterations = 10
	cfg.Reconstruction.SIRTInitValue = 0.001

	cfg.Training.Epochs = 30
	cfg.Training.LearningRate = 1e-4
	cfg.Training.Momentum = 0.9
	cfg.Training.TrainFraction = 0.8
	cfg.Training.DropoutRate = 0.5
	cfg.Training.OutputScale = 10.0
	cfg.Training.RunLogDir = "runs"

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Output.SavePreviews = false
	cfg.Output.PreviewDir = "previews"

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
