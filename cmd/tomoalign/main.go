package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"tomoalign/internal/models"
	"tomoalign/pkg/config"
	"tomoalign/pkg/dataset"
	"tomoalign/pkg/misalign"
	"tomoalign/pkg/regress"
	"tomoalign/pkg/tomo"
	"tomoalign/pkg/visualization"
	"tomoalign/pkg/xcorr"
)

func main() {
	// Parse command line arguments
	mode := flag.String("mode", "", "Pipeline mode: generate, train or xcorr")
	configPath := flag.String("config", "tomoalign.yaml", "Path to YAML configuration file")
	samples := flag.Int("samples", 0, "Override the configured sample count")
	epochs := flag.Int("epochs", 0, "Override the configured epoch budget")
	cores := flag.Int("cores", 0, "Override the configured number of CPU cores")
	flag.Parse()

	if *mode == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *samples > 0 {
		cfg.Dataset.SampleCount = *samples
	}
	if *epochs > 0 {
		cfg.Training.Epochs = *epochs
	}
	if *cores > 0 {
		cfg.Processing.NumCores = *cores
	}

	fmt.Println("================================")
	fmt.Println("TOMOALIGN: PROJECTION MISALIGNMENT SIMULATION AND CNN REGRESSION")
	fmt.Println("================================")
	fmt.Printf("Mode: %s | Resolution: %d | Angles: %d (retaining %d) | Samples: %d\n",
		*mode, cfg.Dataset.Resolution, cfg.Dataset.AnglesGenerated,
		cfg.Dataset.AnglesRetained, cfg.Dataset.SampleCount)

	startTime := time.Now()

	switch *mode {
	case "generate":
		err = runGenerate(cfg)
	case "train":
		err = runTrain(cfg, cfg.Training.RunLogDir, loadOrGenerate)
	case "xcorr":
		err = runXCorr(cfg)
	default:
		log.Fatalf("Unknown mode %q (must be generate, train or xcorr)", *mode)
	}
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}

	fmt.Printf("\nCompleted successfully in %.2f seconds\n", time.Since(startTime).Seconds())
}

// runGenerate synthesizes the misaligned dataset and persists it.
func runGenerate(cfg *config.Config) error {
	ds, err := generate(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Step 4: Persisting %d samples to %s...\n",
		len(ds), dataset.Dir(cfg.Dataset.DataDir, cfg.Dataset.Resolution, len(ds)))
	if err := dataset.Save(ds, cfg.Dataset.DataDir, cfg.Dataset.Resolution); err != nil {
		return fmt.Errorf("failed to persist dataset: %v", err)
	}

	if cfg.Output.SavePreviews && len(ds) > 0 {
		dir := filepath.Join(cfg.Output.PreviewDir, "misaligned")
		fmt.Printf("Saving projection previews to %s...\n", dir)
		if err := visualization.NewViewer(ds[0].Stack).SaveSequence(dir, "proj"); err != nil {
			log.Printf("Warning: failed to save previews: %v", err)
		}
	}
	return nil
}

// runTrain trains the regressor on a dataset produced by the given source
// and writes the loss log and loss-curve plot under runDir.
func runTrain(cfg *config.Config, runDir string, source func(*config.Config) (models.Dataset, error)) error {
	ds, err := source(cfg)
	if err != nil {
		return err
	}
	if len(ds) == 0 {
		return fmt.Errorf("dataset is empty")
	}

	train, test := dataset.Split(ds, cfg.Training.TrainFraction)
	fmt.Printf("Split: %d training samples, %d testing samples\n", len(train), len(test))

	spec := regress.Spec{
		Angles:      ds[0].Stack.Angles,
		Height:      ds[0].Stack.Height,
		Width:       ds[0].Stack.Width,
		Outputs:     ds[0].Labels.Cols,
		DropoutRate: cfg.Training.DropoutRate,
		OutputScale: cfg.Training.OutputScale,
	}

	model, err := regress.New(spec, true)
	if err != nil {
		return fmt.Errorf("failed to build model: %v", err)
	}
	fmt.Println(model.Summary())

	stats, err := regress.Train(model, train, regress.TrainConfig{
		Epochs:       cfg.Training.Epochs,
		LearningRate: cfg.Training.LearningRate,
		Momentum:     cfg.Training.Momentum,
		RunLogDir:    runDir,
	})
	if err != nil {
		return fmt.Errorf("training failed: %v", err)
	}

	plotPath := filepath.Join(runDir, "loss.png")
	if err := visualization.PlotLossCurve(stats, plotPath); err != nil {
		log.Printf("Warning: failed to plot loss curve: %v", err)
	} else {
		fmt.Printf("Loss curve saved to %s\n", plotPath)
	}

	if len(test) > 0 {
		eval, err := regress.New(spec, false)
		if err != nil {
			return fmt.Errorf("failed to build eval model: %v", err)
		}
		if err := eval.CopyWeightsFrom(model); err != nil {
			return fmt.Errorf("failed to transfer weights: %v", err)
		}
		mse, err := regress.Evaluate(eval, test)
		if err != nil {
			return fmt.Errorf("evaluation failed: %v", err)
		}
		fmt.Printf("Test MSE over %d held-out samples: %.6f\n", len(test), mse)
	}
	return nil
}

// runXCorr applies the cross-correlation reprojection transform and trains
// the regressor on the transformed dataset.
func runXCorr(cfg *config.Config) error {
	source := func(cfg *config.Config) (models.Dataset, error) {
		ds, err := loadOrGenerate(cfg)
		if err != nil {
			return nil, err
		}

		transform := xcorr.NewTransform(
			tomo.Angles(cfg.Dataset.AnglesGenerated),
			tomo.SIRTParams{
				Iterations: cfg.Reconstruction.SIRTIterations,
				InitValue:  cfg.Reconstruction.SIRTInitValue,
				NumCores:   cfg.Processing.NumCores,
			},
			cfg.Processing.NumCores)

		transformed, err := transform.Apply(ds)
		if err != nil {
			return nil, fmt.Errorf("cross-correlation transform failed: %v", err)
		}

		if cfg.Output.SavePreviews && len(transformed) > 0 {
			dir := filepath.Join(cfg.Output.PreviewDir, "xcorr")
			fmt.Printf("Saving correlation previews to %s...\n", dir)
			if err := visualization.NewViewer(transformed[0].Stack).SaveSequence(dir, "corr"); err != nil {
				log.Printf("Warning: failed to save previews: %v", err)
			}
		}
		return transformed, nil
	}

	return runTrain(cfg, filepath.Join(cfg.Training.RunLogDir, "xcorr"), source)
}

// generate synthesizes a fresh dataset from the configuration.
func generate(cfg *config.Config) (models.Dataset, error) {
	asm, err := dataset.NewAssembler(dataset.Params{
		Resolution:      cfg.Dataset.Resolution,
		AnglesGenerated: cfg.Dataset.AnglesGenerated,
		AnglesRetained:  cfg.Dataset.AnglesRetained,
		SampleCount:     cfg.Dataset.SampleCount,
		Seed:            cfg.Dataset.Seed,
		NumCores:        cfg.Processing.NumCores,
		Misalign: misalign.Params{
			ShiftSigma:     cfg.Misalign.ShiftSigma,
			RotationSigma:  cfg.Misalign.RotationSigma,
			EnableRotation: cfg.Misalign.EnableRotation,
			NoiseSigma:     cfg.Misalign.NoiseSigma,
			BackgroundMax:  cfg.Misalign.BackgroundMax,
		},
	})
	if err != nil {
		return nil, err
	}
	return asm.Generate()
}

// loadOrGenerate loads the persisted dataset, falling back to a fresh
// synthesis (persisted for the next run) when no samples are on disk.
func loadOrGenerate(cfg *config.Config) (models.Dataset, error) {
	ds, err := dataset.Load(cfg.Dataset.DataDir, cfg.Dataset.Resolution, cfg.Dataset.SampleCount)
	if err == nil {
		fmt.Printf("Loaded %d persisted samples from %s\n",
			len(ds), dataset.Dir(cfg.Dataset.DataDir, cfg.Dataset.Resolution, cfg.Dataset.SampleCount))
		return ds, nil
	}

	fmt.Println("No persisted dataset found, synthesizing...")
	ds, err = generate(cfg)
	if err != nil {
		return nil, err
	}
	if err := dataset.Save(ds, cfg.Dataset.DataDir, cfg.Dataset.Resolution); err != nil {
		return nil, fmt.Errorf("failed to persist dataset: %v", err)
	}
	return ds, nil
}
