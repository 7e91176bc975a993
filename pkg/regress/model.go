// Package regress defines the misalignment regressor: a fixed-topology
// convolutional network mapping a projection stack to a flattened vector of
// per-angle offsets, together with its stochastic-gradient training loop.
// All tensor math is delegated to Gorgonia's expression graph.
package regress

import (
	"fmt"
	"strings"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"tomoalign/internal/models"
)

// Spec fixes the regressor topology for a given input shape.
type Spec struct {
	// Angles, Height, Width describe the input stack. The angle axis is
	// mapped onto the channel axis of the 2D convolution cascade.
	Angles int
	Height int
	Width  int

	// Outputs is the length of the predicted offset vector
	// (2 x retained angles).
	Outputs int

	// DropoutRate is applied between the fully-connected stages while
	// training. Ignored in eval mode.
	DropoutRate float64

	// OutputScale multiplies the standardized raw output.
	OutputScale float64
}

// stageChannels fixes the width of the six feature-extraction stages.
// Stages 2, 4 and 6 halve the spatial dimensions with max-pooling.
var stageChannels = [6]int{64, 64, 128, 128, 256, 256}

// Model is the compiled expression graph of the regressor. A model is
// built either in training mode (dropout active, gradients wired) or in
// eval mode (deterministic given fixed parameters).
type Model struct {
	spec     Spec
	training bool

	g    *gorgonia.ExprGraph
	x    *gorgonia.Node
	y    *gorgonia.Node
	out  *gorgonia.Node
	cost *gorgonia.Node

	convW      []*gorgonia.Node
	fc1W, fc1B *gorgonia.Node
	fc2W, fc2B *gorgonia.Node

	stages []string
}

// New builds the regressor graph for the given spec.
func New(spec Spec, training bool) (*Model, error) {
	m := &Model{spec: spec, training: training, g: gorgonia.NewGraph()}

	m.x = gorgonia.NewTensor(m.g, tensor.Float64, 4,
		gorgonia.WithShape(1, spec.Angles, spec.Height, spec.Width),
		gorgonia.WithName("x"))
	m.y = gorgonia.NewMatrix(m.g, tensor.Float64,
		gorgonia.WithShape(1, spec.Outputs),
		gorgonia.WithName("y"))

	if err := m.build(); err != nil {
		return nil, fmt.Errorf("failed to build regressor graph: %v", err)
	}

	if training {
		if _, err := gorgonia.Grad(m.cost, m.Learnables()...); err != nil {
			return nil, fmt.Errorf("failed to wire gradients: %v", err)
		}
	}

	return m, nil
}

// build assembles the six convolutional stages, the two fully-connected
// stages and the output standardization.
func (m *Model) build() error {
	h, w := m.spec.Height, m.spec.Width
	inChans := m.spec.Angles

	out := m.x
	for i, outChans := range stageChannels {
		wName := fmt.Sprintf("conv%d_w", i)
		convW := gorgonia.NewTensor(m.g, tensor.Float64, 4,
			gorgonia.WithShape(outChans, inChans, 3, 3),
			gorgonia.WithName(wName),
			gorgonia.WithInit(gorgonia.GlorotN(1.0)))
		m.convW = append(m.convW, convW)

		conv, err := gorgonia.Conv2d(out, convW, tensor.Shape{3, 3}, []int{1, 1}, []int{1, 1}, []int{1, 1})
		if err != nil {
			return fmt.Errorf("stage %d convolution: %v", i, err)
		}

		normed, err := standardize(conv)
		if err != nil {
			return fmt.Errorf("stage %d normalization: %v", i, err)
		}

		out = gorgonia.Must(gorgonia.Rectify(normed))

		pooled := ""
		if i%2 == 1 {
			out, err = gorgonia.MaxPool2D(out, tensor.Shape{2, 2}, []int{0, 0}, []int{2, 2})
			if err != nil {
				return fmt.Errorf("stage %d pooling: %v", i, err)
			}
			h, w = h/2, w/2
			pooled = " + pool/2"
		}

		m.stages = append(m.stages, fmt.Sprintf("conv3x3(%d->%d) + norm + relu%s -> (1,%d,%d,%d)",
			inChans, outChans, pooled, outChans, h, w))
		inChans = outChans
	}

	flatSize := inChans * h * w
	flat := gorgonia.Must(gorgonia.Reshape(out, tensor.Shape{1, flatSize}))

	const hidden = 1024
	m.fc1W = gorgonia.NewMatrix(m.g, tensor.Float64,
		gorgonia.WithShape(flatSize, hidden), gorgonia.WithName("fc1_w"),
		gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	m.fc1B = gorgonia.NewMatrix(m.g, tensor.Float64,
		gorgonia.WithShape(1, hidden), gorgonia.WithName("fc1_b"),
		gorgonia.WithInit(gorgonia.Zeroes()))

	fc1 := gorgonia.Must(gorgonia.Rectify(
		gorgonia.Must(gorgonia.Add(gorgonia.Must(gorgonia.Mul(flat, m.fc1W)), m.fc1B))))
	m.stages = append(m.stages, fmt.Sprintf("fc(%d->%d) + relu", flatSize, hidden))

	if m.training && m.spec.DropoutRate > 0 {
		var err error
		fc1, err = gorgonia.Dropout(fc1, m.spec.DropoutRate)
		if err != nil {
			return fmt.Errorf("dropout: %v", err)
		}
		m.stages = append(m.stages, fmt.Sprintf("dropout(%.2f, training only)", m.spec.DropoutRate))
	}

	m.fc2W = gorgonia.NewMatrix(m.g, tensor.Float64,
		gorgonia.WithShape(hidden, m.spec.Outputs), gorgonia.WithName("fc2_w"),
		gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	m.fc2B = gorgonia.NewMatrix(m.g, tensor.Float64,
		gorgonia.WithShape(1, m.spec.Outputs), gorgonia.WithName("fc2_b"),
		gorgonia.WithInit(gorgonia.Zeroes()))

	raw := gorgonia.Must(gorgonia.Add(gorgonia.Must(gorgonia.Mul(fc1, m.fc2W)), m.fc2B))
	m.stages = append(m.stages, fmt.Sprintf("fc(%d->%d)", hidden, m.spec.Outputs))

	// The raw linear output is standardized to zero mean and unit
	// variance, then scaled by a constant factor.
	standardized, err := standardize(raw)
	if err != nil {
		return fmt.Errorf("output standardization: %v", err)
	}
	scale := gorgonia.NewConstant(m.spec.OutputScale)
	m.out = gorgonia.Must(gorgonia.Mul(standardized, scale))
	m.stages = append(m.stages, fmt.Sprintf("standardize + scale(%.1f)", m.spec.OutputScale))

	mse := gorgonia.Must(gorgonia.Mean(
		gorgonia.Must(gorgonia.Square(
			gorgonia.Must(gorgonia.Sub(m.out, m.y))))))
	m.cost = mse

	return nil
}

// standardize centers an activation to zero mean and unit variance over
// all of its elements, with an epsilon guard against flat activations.
func standardize(n *gorgonia.Node) (*gorgonia.Node, error) {
	mu, err := gorgonia.Mean(n)
	if err != nil {
		return nil, err
	}
	centered, err := gorgonia.Sub(n, mu)
	if err != nil {
		return nil, err
	}
	variance, err := gorgonia.Mean(gorgonia.Must(gorgonia.Square(centered)))
	if err != nil {
		return nil, err
	}
	eps := gorgonia.NewConstant(1e-8)
	sd, err := gorgonia.Sqrt(gorgonia.Must(gorgonia.Add(variance, eps)))
	if err != nil {
		return nil, err
	}
	return gorgonia.Div(centered, sd)
}

// Learnables returns the trainable parameters of the model.
func (m *Model) Learnables() gorgonia.Nodes {
	out := make(gorgonia.Nodes, 0, len(m.convW)+4)
	out = append(out, m.convW...)
	return append(out, m.fc1W, m.fc1B, m.fc2W, m.fc2B)
}

// CopyWeightsFrom transfers parameter values from another model with the
// same spec, for running a trained model in eval mode.
func (m *Model) CopyWeightsFrom(src *Model) error {
	from := src.Learnables()
	to := m.Learnables()
	if len(from) != len(to) {
		return fmt.Errorf("parameter count mismatch: %d vs %d", len(from), len(to))
	}
	for i := range to {
		if err := gorgonia.Let(to[i], from[i].Value()); err != nil {
			return fmt.Errorf("copying %s: %v", from[i].Name(), err)
		}
	}
	return nil
}

// InputTensor converts a stack into the model's input tensor, min-max
// normalized to [0, 1].
func (m *Model) InputTensor(stack *models.Stack) tensor.Tensor {
	data := make([]float64, len(stack.Data))
	copy(data, stack.Data)
	minMaxNormalize(data)
	return tensor.New(
		tensor.WithShape(1, stack.Angles, stack.Height, stack.Width),
		tensor.WithBacking(data))
}

// minMaxNormalize rescales values into [0, 1] in place. A flat input maps
// to all zeros.
func minMaxNormalize(data []float64) {
	if len(data) == 0 {
		return
	}
	min, max := data[0], data[0]
	for _, v := range data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max <= min {
		for i := range data {
			data[i] = 0
		}
		return
	}
	span := max - min
	for i := range data {
		data[i] = (data[i] - min) / span
	}
}

// Predict runs a single stack through the network and returns the
// predicted offset vector. Only valid on eval-mode models; training-mode
// graphs carry dropout and gradient state.
func (m *Model) Predict(stack *models.Stack) ([]float64, error) {
	vm := gorgonia.NewTapeMachine(m.g)
	defer vm.Close()

	if err := gorgonia.Let(m.x, m.InputTensor(stack)); err != nil {
		return nil, err
	}
	if err := gorgonia.Let(m.y, tensor.New(
		tensor.WithShape(1, m.spec.Outputs),
		tensor.WithBacking(make([]float64, m.spec.Outputs)))); err != nil {
		return nil, err
	}

	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("forward pass failed: %v", err)
	}

	raw := m.out.Value().Data().([]float64)
	out := make([]float64, len(raw))
	copy(out, raw)
	return out, nil
}

// Summary returns a human-readable description of the cascade, in the
// spirit of the usual model-summary introspection utilities.
func (m *Model) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Input: (1, %d, %d, %d), min-max normalized to [0,1]\n",
		m.spec.Angles, m.spec.Height, m.spec.Width)
	for i, s := range m.stages {
		fmt.Fprintf(&b, "  %2d: %s\n", i+1, s)
	}
	var params int
	for _, n := range m.Learnables() {
		params += n.Shape().TotalSize()
	}
	fmt.Fprintf(&b, "Trainable parameters: %d\n", params)
	return b.String()
}
