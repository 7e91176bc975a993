// Package dataset assembles, persists and reshapes misalignment samples.
// A sample pairs a misaligned projection stack with the ground-truth shift
// vector that produced it; the dataset is the ordered collection of samples
// addressed by generation index.
package dataset

import (
	"fmt"
	"math"

	"tomoalign/internal/models"
	"tomoalign/pkg/misalign"
	"tomoalign/pkg/phantom"
	"tomoalign/pkg/tomo"
)

// Params holds the dataset synthesis configuration.
type Params struct {
	// Resolution is the phantom edge size and projection image size.
	Resolution int

	// AnglesGenerated is the number of simulated projection angles.
	AnglesGenerated int

	// AnglesRetained caps how many leading angles contribute to the
	// ground-truth vector. The label length is 2 x AnglesRetained no
	// matter how many angles were generated.
	AnglesRetained int

	// SampleCount is the number of samples to synthesize.
	SampleCount int

	// Seed drives all perturbation draws. Sample i uses Seed+i, so the
	// dataset is reproducible and samples are independent of the order
	// in which workers complete.
	Seed uint64

	// NumCores bounds the per-sample worker fan-out.
	NumCores int

	// Misalign configures the perturbation synthesis.
	Misalign misalign.Params
}

// Assembler synthesizes datasets from a shared clean projection stack.
type Assembler struct {
	params Params
	clean  *models.Stack
}

// NewAssembler builds the ground-truth phantom and its clean projection
// stack once; every generated sample perturbs a copy of that stack.
func NewAssembler(params Params) (*Assembler, error) {
	fmt.Println("Step 1: Generating phantom volume...")
	vol := phantom.SheppLogan(params.Resolution)

	fmt.Printf("Step 2: Projecting %d angles...\n", params.AnglesGenerated)
	proj := tomo.NewProjector(tomo.Angles(params.AnglesGenerated), params.NumCores)
	clean, err := proj.Project(vol)
	if err != nil {
		return nil, fmt.Errorf("failed to project phantom: %v", err)
	}

	return &Assembler{params: params, clean: clean}, nil
}

// Clean returns the shared clean projection stack.
func (a *Assembler) Clean() *models.Stack {
	return a.clean
}

// Generate synthesizes the configured number of samples. Samples are
// produced by a bounded worker pool and written into pre-indexed slots, so
// the returned dataset is in generation order and numerically identical to
// a sequential run.
func (a *Assembler) Generate() (models.Dataset, error) {
	fmt.Printf("Step 3: Synthesizing %d misaligned samples...\n", a.params.SampleCount)

	ds := make(models.Dataset, a.params.SampleCount)

	done := make(chan struct{})
	sem := make(chan struct{}, maxInt(a.params.NumCores, 1))

	for i := 0; i < a.params.SampleCount; i++ {
		go func(idx int) {
			sem <- struct{}{}
			defer func() { <-sem }()

			ds[idx] = a.generateSample(idx)
			done <- struct{}{}
		}(i)
	}

	for completed := 0; completed < a.params.SampleCount; completed++ {
		<-done
		progress := float64(completed+1) / float64(a.params.SampleCount) * 100
		fmt.Printf("\rSynthesizing samples: %.1f%% complete", progress)
	}
	fmt.Println()

	return ds, nil
}

// generateSample draws fresh perturbations and packs the misaligned stack
// with its capped label vector.
func (a *Assembler) generateSample(idx int) *models.Sample {
	synth := misalign.NewSynthesizer(a.params.Misalign, a.params.Seed+uint64(idx))

	perts := synth.Draw(a.params.AnglesGenerated)
	stack := synth.Apply(a.clean, perts)

	return &models.Sample{
		Stack:  stack,
		Labels: labelsFromPerturbations(perts, a.params.AnglesRetained),
	}
}

// labelsFromPerturbations packs the first `retained` perturbations into a
// 1 x (2*retained) vector: all row shifts first, then all column shifts.
// Rotation is used to produce the stack but is not retained in the label.
func labelsFromPerturbations(perts []models.Perturbation, retained int) *models.Vector {
	v := models.NewVector(1, 2*retained)
	for j := 0; j < retained; j++ {
		v.Set(0, j, float64(perts[j].RowShift))
		v.Set(0, retained+j, float64(perts[j].ColShift))
	}
	return v
}

// Split divides a dataset into ordered training and testing subsets. The
// first round(N*frac) samples train, the remainder test; original ordering
// is preserved within each subset.
func Split(ds models.Dataset, frac float64) (train, test models.Dataset) {
	n := int(math.Round(frac * float64(len(ds))))
	if n > len(ds) {
		n = len(ds)
	}
	return ds[:n], ds[n:]
}

// FlattenProjections applies the projection-extraction transform: it
// un-batches each sample's angle stack into one record per retained angle.
// Record i*A+j corresponds to sample i, angle j, where A is the retained
// angle count, so angle order within a sample and sample order across
// samples are both preserved.
func FlattenProjections(ds models.Dataset) []models.Projection {
	if len(ds) == 0 {
		return nil
	}

	retained := ds[0].Labels.Cols / 2
	out := make([]models.Projection, 0, len(ds)*retained)

	for _, sample := range ds {
		for j := 0; j < retained; j++ {
			img := sample.Stack.Image(j)
			pixels := make([]float64, len(img))
			copy(pixels, img)

			out = append(out, models.Projection{
				Height:   sample.Stack.Height,
				Width:    sample.Stack.Width,
				Pixels:   pixels,
				RowShift: sample.Labels.At(0, j),
				ColShift: sample.Labels.At(0, retained+j),
			})
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
