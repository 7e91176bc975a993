package regress

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tomoalign/internal/models"
)

func tinySpec() Spec {
	return Spec{
		Angles:      2,
		Height:      8,
		Width:       8,
		Outputs:     4,
		DropoutRate: 0.5,
		OutputScale: 10.0,
	}
}

func tinySample(seed float64) *models.Sample {
	stack := models.NewStack(2, 8, 8)
	for i := range stack.Data {
		stack.Data[i] = math.Sin(seed + float64(i)/3)
	}
	labels := models.NewVector(1, 4)
	for i := range labels.Data {
		labels.Data[i] = float64(i) - 1.5
	}
	return &models.Sample{Stack: stack, Labels: labels}
}

// TestModelTopology verifies the six-stage cascade and the learnable set.
func TestModelTopology(t *testing.T) {
	m, err := New(tinySpec(), false)
	require.NoError(t, err)

	summary := m.Summary()
	require.Equal(t, 6, strings.Count(summary, "conv3x3"), "expected six convolutional stages")
	require.Contains(t, summary, "standardize + scale(10.0)")
	require.NotContains(t, summary, "dropout", "eval mode must not carry dropout")

	// Six conv kernels plus two weight/bias pairs.
	require.Len(t, m.Learnables(), 10)
}

// TestTrainingModelCarriesDropout checks that dropout appears only in
// training mode.
func TestTrainingModelCarriesDropout(t *testing.T) {
	m, err := New(tinySpec(), true)
	require.NoError(t, err)
	require.Contains(t, m.Summary(), "dropout(0.50")
}

// TestPredictShapeAndDeterminism verifies the output vector length and
// that an eval-mode forward pass is deterministic.
func TestPredictShapeAndDeterminism(t *testing.T) {
	m, err := New(tinySpec(), false)
	require.NoError(t, err)

	sample := tinySample(1)
	p1, err := m.Predict(sample.Stack)
	require.NoError(t, err)
	require.Len(t, p1, 4)

	p2, err := m.Predict(sample.Stack)
	require.NoError(t, err)
	require.Equal(t, p1, p2, "eval-mode prediction must be deterministic")
}

// TestPredictStandardizedOutput checks the output standardization
// contract: zero mean, standard deviation equal to the configured scale.
func TestPredictStandardizedOutput(t *testing.T) {
	m, err := New(tinySpec(), false)
	require.NoError(t, err)

	pred, err := m.Predict(tinySample(2).Stack)
	require.NoError(t, err)

	var mean float64
	for _, v := range pred {
		mean += v
	}
	mean /= float64(len(pred))
	require.InDelta(t, 0, mean, 1e-6, "standardized output mean must be zero")

	var variance float64
	for _, v := range pred {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(pred))
	require.InDelta(t, 10.0, math.Sqrt(variance), 0.1, "output sd must match the configured scale")
}

// TestTrainFixedBudget runs a tiny fixed-budget training session and
// checks the per-epoch stats and the append-only loss log.
func TestTrainFixedBudget(t *testing.T) {
	m, err := New(tinySpec(), true)
	require.NoError(t, err)

	train := models.Dataset{tinySample(1), tinySample(2)}
	dir := t.TempDir()

	stats, err := Train(m, train, TrainConfig{
		Epochs:       2,
		LearningRate: 1e-4,
		Momentum:     0.9,
		RunLogDir:    dir,
	})
	require.NoError(t, err)
	require.Len(t, stats, 2, "one stat per epoch")

	for _, s := range stats {
		require.False(t, math.IsNaN(s.AvgLoss) || math.IsInf(s.AvgLoss, 0),
			"epoch %d loss not finite: %f", s.Epoch, s.AvgLoss)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "loss.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3, "header plus one row per epoch")
	require.Equal(t, "epoch,avg_loss", lines[0])
}

// TestTrainRejectsEvalModel ensures training demands a training-mode graph.
func TestTrainRejectsEvalModel(t *testing.T) {
	m, err := New(tinySpec(), false)
	require.NoError(t, err)

	_, err = Train(m, models.Dataset{tinySample(1)}, TrainConfig{Epochs: 1, LearningRate: 1e-4, Momentum: 0.9})
	require.Error(t, err)
}

// TestCopyWeights transfers parameters into an eval model.
func TestCopyWeights(t *testing.T) {
	src, err := New(tinySpec(), true)
	require.NoError(t, err)
	dst, err := New(tinySpec(), false)
	require.NoError(t, err)

	require.NoError(t, dst.CopyWeightsFrom(src))

	for i, n := range dst.Learnables() {
		require.Equal(t, src.Learnables()[i].Value().Data(), n.Value().Data(),
			"parameter %s not transferred", n.Name())
	}
}
