package tomo

import (
	"fmt"
	"runtime"

	"gonum.org/v1/gonum/floats"

	"tomoalign/internal/models"
)

// SIRTParams configures the iterative reconstruction.
type SIRTParams struct {
	// Iterations is the fixed number of SIRT sweeps.
	Iterations int

	// InitValue is the small positive value the volume estimate starts
	// from. Starting strictly above zero keeps multiplicative-style
	// normalization well behaved on empty regions.
	InitValue float64

	// NumCores bounds the per-slice worker fan-out. Zero means all
	// available cores.
	NumCores int
}

// Reconstructor recovers an approximate volume from a projection stack
// using the simultaneous iterative reconstruction technique. Each axial
// slice is reconstructed independently from its sinogram rows.
type Reconstructor struct {
	angles []float64
	params SIRTParams
}

// NewReconstructor creates a SIRT reconstructor for the given angles.
func NewReconstructor(angles []float64, params SIRTParams) *Reconstructor {
	if params.NumCores <= 0 {
		params.NumCores = runtime.NumCPU()
	}
	return &Reconstructor{angles: angles, params: params}
}

// Reconstruct runs SIRT on every axial slice of the stack. The stack must
// have one image per reconstructor angle; image rows index axial slices and
// image columns index detector bins.
func (r *Reconstructor) Reconstruct(stack *models.Stack) (*models.Volume, error) {
	if stack.Angles != len(r.angles) {
		return nil, fmt.Errorf("stack has %d angles, reconstructor configured for %d", stack.Angles, len(r.angles))
	}
	if stack.Width != stack.Height {
		return nil, fmt.Errorf("reconstruction requires square projections, got %dx%d", stack.Height, stack.Width)
	}

	size := stack.Width
	depth := stack.Height
	vol := models.NewVolume(size, size, depth, r.params.InitValue)

	// Normalization image: backprojection of the forward projection of a
	// uniform slice. Shared by all slices.
	ones := make([]float64, size*size)
	for i := range ones {
		ones[i] = 1
	}
	norm := backprojectSlice2D(projectSlice2D(ones, size, r.angles), size, r.angles)

	done := make(chan struct{})
	sem := make(chan struct{}, r.params.NumCores)

	for z := 0; z < depth; z++ {
		go func(z int) {
			sem <- struct{}{}
			defer func() { <-sem }()

			r.reconstructSlice(stack, vol, norm, z)
			done <- struct{}{}
		}(z)
	}

	for completed := 0; completed < depth; completed++ {
		<-done
	}

	return vol, nil
}

// reconstructSlice runs the SIRT iteration for axial slice z in place.
func (r *Reconstructor) reconstructSlice(stack *models.Stack, vol *models.Volume, norm []float64, z int) {
	size := stack.Width

	// Gather the sinogram for this slice: row z of every angle image.
	sino := make([]float64, len(r.angles)*size)
	for a := 0; a < stack.Angles; a++ {
		copy(sino[a*size:(a+1)*size], stack.Image(a)[z*size:(z+1)*size])
	}

	estimate := vol.Slice(z)
	residual := make([]float64, len(sino))
	for it := 0; it < r.params.Iterations; it++ {
		fwd := projectSlice2D(estimate, size, r.angles)
		floats.SubTo(residual, sino, fwd)

		update := backprojectSlice2D(residual, size, r.angles)
		for i := range estimate {
			if norm[i] > 1e-12 {
				estimate[i] += update[i] / norm[i]
			}
		}
	}
}
