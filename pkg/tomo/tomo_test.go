package tomo

import (
	"math"
	"testing"

	"tomoalign/internal/models"
	"tomoalign/pkg/phantom"
)

// TestAngles verifies the angle spacing over the half circle.
func TestAngles(t *testing.T) {
	angles := Angles(4)
	expected := []float64{0, 45, 90, 135}

	if len(angles) != len(expected) {
		t.Fatalf("expected %d angles, got %d", len(expected), len(angles))
	}
	for i, a := range angles {
		if math.Abs(a-expected[i]) > 1e-12 {
			t.Errorf("angle[%d]: expected %f, got %f", i, expected[i], a)
		}
	}
}

// TestProjectShape verifies that projecting a volume yields one image per
// angle with rows matching the volume depth.
func TestProjectShape(t *testing.T) {
	vol := phantom.SheppLogan(16)
	proj := NewProjector(Angles(8), 2)

	stack, err := proj.Project(vol)
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}

	if stack.Angles != 8 || stack.Height != 16 || stack.Width != 16 {
		t.Errorf("unexpected stack shape: %d angles, %dx%d", stack.Angles, stack.Height, stack.Width)
	}
	if stack.Batch != 1 || stack.Channels != 1 {
		t.Errorf("expected singleton batch and channel dims, got %d and %d", stack.Batch, stack.Channels)
	}
}

// TestProjectMassConservation checks that each projection of a compact
// object preserves its total mass, a basic property of parallel-beam
// integration.
func TestProjectMassConservation(t *testing.T) {
	size := 16
	vol := models.NewVolume(size, size, size, 0)
	// Centered blob, well away from the border so rotation loses nothing.
	slice := vol.Slice(size / 2)
	for y := size/2 - 2; y <= size/2+2; y++ {
		for x := size/2 - 2; x <= size/2+2; x++ {
			slice[y*size+x] = 1
		}
	}
	mass := 25.0

	proj := NewProjector(Angles(6), 1)
	stack, err := proj.Project(vol)
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}

	for a := 0; a < stack.Angles; a++ {
		var sum float64
		for _, v := range stack.Image(a) {
			sum += v
		}
		if math.Abs(sum-mass) > 0.5 {
			t.Errorf("angle %d: projected mass %f, expected about %f", a, sum, mass)
		}
	}
}

// TestProjectDeterministic verifies that the parallel fan-out does not
// perturb the result: two projections of the same volume are identical.
func TestProjectDeterministic(t *testing.T) {
	vol := phantom.SheppLogan(16)
	proj := NewProjector(Angles(8), 4)

	s1, err := proj.Project(vol)
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}
	s2, err := proj.Project(vol)
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}

	for i := range s1.Data {
		if s1.Data[i] != s2.Data[i] {
			t.Fatalf("projection not deterministic at index %d: %f vs %f", i, s1.Data[i], s2.Data[i])
		}
	}
}

// TestReconstructReducesResidual checks that SIRT iterations move the
// reprojection of the estimate toward the measured projections.
func TestReconstructReducesResidual(t *testing.T) {
	size := 16
	vol := phantom.SheppLogan(size)
	angles := Angles(12)
	proj := NewProjector(angles, 2)

	stack, err := proj.Project(vol)
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}

	zeroIter := NewReconstructor(angles, SIRTParams{Iterations: 0, InitValue: 0.001, NumCores: 2})
	someIter := NewReconstructor(angles, SIRTParams{Iterations: 5, InitValue: 0.001, NumCores: 2})

	v0, err := zeroIter.Reconstruct(stack)
	if err != nil {
		t.Fatalf("reconstruction failed: %v", err)
	}
	v5, err := someIter.Reconstruct(stack)
	if err != nil {
		t.Fatalf("reconstruction failed: %v", err)
	}

	r0 := reprojectionResidual(proj, v0, stack)
	r5 := reprojectionResidual(proj, v5, stack)

	if r5 >= r0 {
		t.Errorf("SIRT did not reduce residual: %f after 5 iterations vs %f initially", r5, r0)
	}
}

// TestReconstructAngleMismatch verifies the shape check on the stack.
func TestReconstructAngleMismatch(t *testing.T) {
	stack := models.NewStack(4, 8, 8)
	rec := NewReconstructor(Angles(6), SIRTParams{Iterations: 1, InitValue: 0.001})

	if _, err := rec.Reconstruct(stack); err == nil {
		t.Error("expected error for mismatched angle count")
	}
}

func reprojectionResidual(p *Projector, vol *models.Volume, measured *models.Stack) float64 {
	reproj, err := p.Project(vol)
	if err != nil {
		return math.Inf(1)
	}
	var sum float64
	for i := range measured.Data {
		d := measured.Data[i] - reproj.Data[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(measured.Data)))
}
