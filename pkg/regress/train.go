package regress

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"tomoalign/internal/models"
)

// TrainConfig holds the fixed-budget training parameters.
type TrainConfig struct {
	// Epochs is the number of passes over the training subset.
	Epochs int

	// LearningRate and Momentum configure the SGD solver. One
	// optimization step is applied per sample.
	LearningRate float64
	Momentum     float64

	// RunLogDir, when non-empty, receives an append-only loss.csv keyed
	// by epoch. The log is write-only from here; plotting reads it later.
	RunLogDir string
}

// EpochStat is the running average loss over one epoch's iterations.
type EpochStat struct {
	Epoch   int
	AvgLoss float64
}

// Train iterates the training subset once per epoch, computing the
// mean-squared error between predicted and ground-truth vectors and
// applying one momentum-SGD step per sample. The only observable side
// effects are parameter mutation and the scalar loss log. There is no
// early stopping, no checkpointing, and no validation-driven adaptation.
func Train(m *Model, train models.Dataset, cfg TrainConfig) ([]EpochStat, error) {
	if !m.training {
		return nil, fmt.Errorf("model was built in eval mode")
	}
	if len(train) == 0 {
		return nil, fmt.Errorf("empty training set")
	}

	learnables := m.Learnables()
	vm := gorgonia.NewTapeMachine(m.g, gorgonia.BindDualValues(learnables...))
	defer vm.Close()

	solver := gorgonia.NewMomentum(
		gorgonia.WithLearnRate(cfg.LearningRate),
		gorgonia.WithMomentum(cfg.Momentum))

	var logFile *os.File
	if cfg.RunLogDir != "" {
		var err error
		logFile, err = openLossLog(cfg.RunLogDir)
		if err != nil {
			return nil, err
		}
		defer logFile.Close()
	}

	stats := make([]EpochStat, 0, cfg.Epochs)
	losses := make([]float64, 0, len(train))
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		losses = losses[:0]

		for _, sample := range train {
			if err := gorgonia.Let(m.x, m.InputTensor(sample.Stack)); err != nil {
				return nil, err
			}
			if err := gorgonia.Let(m.y, labelTensor(sample.Labels)); err != nil {
				return nil, err
			}

			if err := vm.RunAll(); err != nil {
				return nil, fmt.Errorf("epoch %d: training step failed: %v", epoch, err)
			}

			losses = append(losses, m.cost.Value().Data().(float64))

			if err := solver.Step(gorgonia.NodesToValueGrads(learnables)); err != nil {
				return nil, fmt.Errorf("epoch %d: solver step failed: %v", epoch, err)
			}
			vm.Reset()
		}

		avg := stat.Mean(losses, nil)
		stats = append(stats, EpochStat{Epoch: epoch, AvgLoss: avg})
		fmt.Printf("Epoch %d/%d: avg loss %.6f\n", epoch+1, cfg.Epochs, avg)

		if logFile != nil {
			if _, err := fmt.Fprintf(logFile, "%d,%.8f\n", epoch, avg); err != nil {
				return nil, fmt.Errorf("failed to append loss log: %v", err)
			}
		}
	}

	return stats, nil
}

// Evaluate returns the average MSE of an eval-mode model over a dataset.
func Evaluate(m *Model, ds models.Dataset) (float64, error) {
	if len(ds) == 0 {
		return 0, fmt.Errorf("empty evaluation set")
	}

	var total float64
	for _, sample := range ds {
		pred, err := m.Predict(sample.Stack)
		if err != nil {
			return 0, err
		}
		var mse float64
		for i, p := range pred {
			d := p - sample.Labels.Data[i]
			mse += d * d
		}
		total += mse / float64(len(pred))
	}
	return total / float64(len(ds)), nil
}

// labelTensor wraps a ground-truth vector as a 1 x n tensor.
func labelTensor(v *models.Vector) tensor.Tensor {
	data := make([]float64, len(v.Data))
	copy(data, v.Data)
	return tensor.New(tensor.WithShape(v.Rows, v.Cols), tensor.WithBacking(data))
}

// openLossLog opens the append-only epoch loss log, writing the header
// only when the file is new.
func openLossLog(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %v", err)
	}
	path := filepath.Join(dir, "loss.csv")

	info, err := os.Stat(path)
	fresh := os.IsNotExist(err) || (err == nil && info.Size() == 0)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open loss log: %v", err)
	}
	if fresh {
		if _, err := f.WriteString("epoch,avg_loss\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write loss log header: %v", err)
		}
	}
	return f, nil
}
