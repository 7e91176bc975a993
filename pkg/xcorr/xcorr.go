// Package xcorr implements the cross-correlation reprojection transform:
// an alternative input representation for the regressor in which each
// projection image is replaced by its full frequency-domain
// cross-correlation against a reprojection of the sample's own
// reconstruction. A well-aligned angle produces a correlation peak at the
// center; a shifted angle moves the peak by the shift.
package xcorr

import (
	"fmt"

	"tomoalign/internal/models"
	"tomoalign/pkg/tomo"
	"tomoalign/pkg/warp"
)

// Transform reconstructs, reprojects and correlates datasets. It is a pure
// function of its input dataset: no state survives between applications.
type Transform struct {
	projector     *tomo.Projector
	reconstructor *tomo.Reconstructor
}

// NewTransform creates the transform for the given projection angles and
// SIRT configuration.
func NewTransform(angles []float64, sirt tomo.SIRTParams, numCores int) *Transform {
	return &Transform{
		projector:     tomo.NewProjector(angles, numCores),
		reconstructor: tomo.NewReconstructor(angles, sirt),
	}
}

// Apply maps every sample of the dataset to its correlation representation.
// Per angle the output image grows to (2H-1) x (2W-1) because the
// correlation is full, not circular. Ground-truth vectors pass through
// unchanged. Reconstruction is iterative and dominates the cost; samples
// are processed one at a time, one angle at a time.
func (t *Transform) Apply(ds models.Dataset) (models.Dataset, error) {
	out := make(models.Dataset, len(ds))

	for i, sample := range ds {
		corr, err := t.applySample(sample)
		if err != nil {
			return nil, fmt.Errorf("cross-correlation failed for sample %d: %v", i, err)
		}
		out[i] = corr
		fmt.Printf("\rCross-correlating samples: %d/%d", i+1, len(ds))
	}
	fmt.Println()

	return out, nil
}

func (t *Transform) applySample(sample *models.Sample) (*models.Sample, error) {
	vol, err := t.reconstructor.Reconstruct(sample.Stack)
	if err != nil {
		return nil, fmt.Errorf("reconstruction: %v", err)
	}

	reproj, err := t.projector.Project(vol)
	if err != nil {
		return nil, fmt.Errorf("reprojection: %v", err)
	}

	h, w := sample.Stack.Height, sample.Stack.Width
	corrStack := models.NewStack(sample.Stack.Angles, 2*h-1, 2*w-1)
	for a := 0; a < sample.Stack.Angles; a++ {
		corr := CrossCorrelate(sample.Stack.Image(a), reproj.Image(a), h, w)
		copy(corrStack.Image(a), corr)
	}

	return &models.Sample{Stack: corrStack, Labels: sample.Labels}, nil
}

// CrossCorrelate computes the full (non-circular) cross-correlation of two
// images of identical dimensions via the frequency domain. The result has
// spatial dimensions (2H-1) x (2W-1); the zero-lag term sits at the center
// (H-1, W-1).
func CrossCorrelate(a, b []float64, height, width int) []float64 {
	// Full linear correlation needs a grid of at least (2H-1) x (2W-1);
	// embedding both operands at that size makes the circular product
	// equal the linear one.
	ph, pw := 2*height-1, 2*width-1

	specA := make([]complex128, ph*pw)
	specB := make([]complex128, ph*pw)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			specA[y*pw+x] = complex(a[y*width+x], 0)
			// Correlation is convolution against the flipped kernel.
			specB[y*pw+x] = complex(b[(height-1-y)*width+(width-1-x)], 0)
		}
	}

	warp.FFT2(specA, ph, pw)
	warp.FFT2(specB, ph, pw)
	for i := range specA {
		specA[i] *= specB[i]
	}
	warp.IFFT2(specA, ph, pw)

	scale := float64(ph * pw)
	out := make([]float64, ph*pw)
	for i, v := range specA {
		out[i] = real(v) / scale
	}
	return out
}
