package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig spot-checks the defaults that downstream invariants
// depend on.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Dataset.AnglesGenerated != 200 {
		t.Errorf("expected 200 generated angles, got %d", cfg.Dataset.AnglesGenerated)
	}
	if cfg.Dataset.AnglesRetained != 180 {
		t.Errorf("expected 180 retained angles, got %d", cfg.Dataset.AnglesRetained)
	}
	if cfg.Dataset.AnglesRetained > cfg.Dataset.AnglesGenerated {
		t.Error("retained angle cap exceeds generated angle count")
	}
	if cfg.Misalign.ShiftSigma != 4*cfg.Misalign.RotationSigma {
		t.Errorf("expected shift sigma biased x4 over rotation sigma, got %f vs %f",
			cfg.Misalign.ShiftSigma, cfg.Misalign.RotationSigma)
	}
	if cfg.Training.TrainFraction != 0.8 {
		t.Errorf("expected a 0.8 train fraction, got %f", cfg.Training.TrainFraction)
	}
}

// TestLoadConfigMissingFile returns defaults when no file exists.
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error for missing config: %v", err)
	}
	if cfg.Dataset.Resolution != DefaultConfig().Dataset.Resolution {
		t.Error("missing config did not fall back to defaults")
	}
}

// TestSaveLoadRoundTrip verifies YAML persistence of overridden fields.
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "tomoalign.yaml")

	cfg := DefaultConfig()
	cfg.Dataset.Resolution = 32
	cfg.Dataset.SampleCount = 7
	cfg.Training.Epochs = 3
	cfg.Misalign.EnableRotation = true

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded.Dataset.Resolution != 32 || loaded.Dataset.SampleCount != 7 {
		t.Errorf("dataset fields not round-tripped: %+v", loaded.Dataset)
	}
	if loaded.Training.Epochs != 3 {
		t.Errorf("expected 3 epochs after reload, got %d", loaded.Training.Epochs)
	}
	if !loaded.Misalign.EnableRotation {
		t.Error("rotation flag lost in round trip")
	}
}

// TestLoadConfigMalformed reports a parse error for invalid YAML.
func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("dataset: [notamap"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for malformed config")
	}
}
