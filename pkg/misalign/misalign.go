// Package misalign synthesizes geometric misalignment for projection
// stacks. For each angle it draws a perturbation (row shift, column shift,
// rotation) from a biased normal distribution and applies it to a copy of
// the clean stack, yielding a misaligned stack together with the
// ground-truth offsets that produced it.
package misalign

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"tomoalign/internal/models"
	"tomoalign/pkg/warp"
)

// Params configures the synthesizer. Shift draws are biased: their sigma is
// conventionally four times the rotation sigma, so shifts dominate the
// perturbation while rotations stay small.
type Params struct {
	// ShiftSigma is the standard deviation, in pixels, of row and column
	// shift draws.
	ShiftSigma float64

	// RotationSigma is the standard deviation, in degrees, of rotation
	// draws.
	RotationSigma float64

	// EnableRotation controls whether drawn rotations are applied. When
	// disabled each image is copied unchanged rather than rotated by zero
	// degrees.
	EnableRotation bool

	// NoiseSigma is the standard deviation of per-pixel additive Gaussian
	// noise. Zero disables noise.
	NoiseSigma float64

	// BackgroundMax is the upper bound of the per-image additive random
	// background level. Zero disables the background.
	BackgroundMax float64
}

// Synthesizer draws perturbations and applies them to projection stacks.
// All randomness flows from a single seeded source, so a synthesizer
// constructed with the same seed reproduces its output bit for bit.
type Synthesizer struct {
	params     Params
	shiftDist  distuv.Normal
	rotDist    distuv.Normal
	noiseDist  distuv.Normal
	background distuv.Uniform
}

// NewSynthesizer creates a synthesizer with the given parameters and seed.
func NewSynthesizer(params Params, seed uint64) *Synthesizer {
	src := rand.NewSource(seed)
	return &Synthesizer{
		params:     params,
		shiftDist:  distuv.Normal{Mu: 0, Sigma: params.ShiftSigma, Src: src},
		rotDist:    distuv.Normal{Mu: 0, Sigma: params.RotationSigma, Src: src},
		noiseDist:  distuv.Normal{Mu: 0, Sigma: params.NoiseSigma, Src: src},
		background: distuv.Uniform{Min: 0, Max: params.BackgroundMax, Src: src},
	}
}

// Draw produces one perturbation per angle, each component drawn
// independently and rounded to the nearest integer.
func (s *Synthesizer) Draw(angles int) []models.Perturbation {
	perts := make([]models.Perturbation, angles)
	for i := range perts {
		perts[i] = models.Perturbation{
			RowShift:    int(math.Round(s.shiftDist.Rand())),
			ColShift:    int(math.Round(s.shiftDist.Rand())),
			RotationDeg: int(math.Round(s.rotDist.Rand())),
		}
	}
	return perts
}

// Apply produces a misaligned copy of the stack. Shifting is applied to the
// whole stack in one batched call; rotation, noise and background need
// per-image parameters and are applied image by image. The output stack has
// exactly the shape of the input.
func (s *Synthesizer) Apply(stack *models.Stack, perts []models.Perturbation) *models.Stack {
	dy := make([]float64, stack.Angles)
	dx := make([]float64, stack.Angles)
	for a := 0; a < stack.Angles; a++ {
		dy[a] = float64(perts[a].RowShift)
		dx[a] = float64(perts[a].ColShift)
	}

	out := stack.Clone()
	out.Data = warp.ShiftStack(stack.Data, stack.Angles, stack.Height, stack.Width, dy, dx)

	for a := 0; a < stack.Angles; a++ {
		img := out.Image(a)

		if s.params.EnableRotation {
			rotated := warp.Rotate(img, stack.Height, stack.Width, float64(perts[a].RotationDeg))
			copy(img, rotated)
		}

		if s.params.NoiseSigma > 0 {
			for i := range img {
				img[i] += s.noiseDist.Rand()
			}
		}

		if s.params.BackgroundMax > 0 {
			level := s.background.Rand()
			for i := range img {
				img[i] += level
			}
		}
	}

	return out
}
