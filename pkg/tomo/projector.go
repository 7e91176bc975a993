// Package tomo implements a parallel-beam projector and an iterative SIRT
// reconstructor for volumes stored as stacks of axial slices. Projection and
// backprojection are both expressed through in-plane image rotation, so the
// geometry is exactly consistent between the forward and inverse operators.
package tomo

import (
	"fmt"
	"runtime"

	"gonum.org/v1/gonum/floats"

	"tomoalign/internal/models"
	"tomoalign/pkg/warp"
)

// Angles returns n projection angles in degrees, evenly spaced over the
// half circle [0, 180).
func Angles(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 180 * float64(i) / float64(n)
	}
	return out
}

// Projector computes parallel-beam projections of a volume.
type Projector struct {
	// Angles holds the projection angles in degrees.
	Angles []float64

	// NumCores bounds the number of worker goroutines used for the
	// per-angle fan-out. Zero means all available cores.
	NumCores int
}

// NewProjector creates a projector for the given angles.
func NewProjector(angles []float64, numCores int) *Projector {
	if numCores <= 0 {
		numCores = runtime.NumCPU()
	}
	return &Projector{Angles: angles, NumCores: numCores}
}

// Project computes the projection stack of the volume. For each angle every
// axial slice is rotated in-plane and summed along its rows, producing one
// detector row per slice; the projection image for an angle is therefore
// (volume depth) x (volume width).
func (p *Projector) Project(vol *models.Volume) (*models.Stack, error) {
	if vol.Width != vol.Height {
		return nil, fmt.Errorf("projector requires square axial slices, got %dx%d", vol.Width, vol.Height)
	}

	numAngles := len(p.Angles)
	stack := models.NewStack(numAngles, vol.Depth, vol.Width)

	done := make(chan struct{})
	sem := make(chan struct{}, p.NumCores)

	// Each angle writes only its own pre-indexed region of the stack, so
	// the fan-out does not change the numeric result.
	for a := range p.Angles {
		go func(angleIdx int) {
			sem <- struct{}{}
			defer func() { <-sem }()

			p.projectAngle(vol, stack, angleIdx)
			done <- struct{}{}
		}(a)
	}

	for completed := 0; completed < numAngles; completed++ {
		<-done
	}

	return stack, nil
}

// projectAngle fills the projection image for a single angle.
func (p *Projector) projectAngle(vol *models.Volume, stack *models.Stack, angleIdx int) {
	img := stack.Image(angleIdx)
	w := vol.Width
	for z := 0; z < vol.Depth; z++ {
		rotated := warp.Rotate(vol.Slice(z), vol.Height, w, p.Angles[angleIdx])
		// Integrate along rows: one detector bin per column.
		row := img[z*w : (z+1)*w]
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < w; x++ {
				row[x] += rotated[y*w+x]
			}
		}
	}
}

// projectSlice2D computes the sinogram of a single axial slice: one row of
// length width per angle. Used by the reconstructor.
func projectSlice2D(slice []float64, size int, angles []float64) []float64 {
	sino := make([]float64, len(angles)*size)
	for a, angle := range angles {
		rotated := warp.Rotate(slice, size, size, angle)
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				sino[a*size+x] += rotated[y*size+x]
			}
		}
	}
	return sino
}

// backprojectSlice2D smears sinogram rows back across the image plane,
// rotating each smear to the angle it came from. This is the transpose of
// projectSlice2D up to interpolation error.
func backprojectSlice2D(sino []float64, size int, angles []float64) []float64 {
	out := make([]float64, size*size)
	smear := make([]float64, size*size)
	for a, angle := range angles {
		for y := 0; y < size; y++ {
			copy(smear[y*size:(y+1)*size], sino[a*size:(a+1)*size])
		}
		rotated := warp.Rotate(smear, size, size, -angle)
		floats.Add(out, rotated)
	}
	return out
}
