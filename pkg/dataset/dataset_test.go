package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tomoalign/internal/models"
	"tomoalign/pkg/misalign"
)

func testParams(samples int) Params {
	return Params{
		Resolution:      16,
		AnglesGenerated: 10,
		AnglesRetained:  8,
		SampleCount:     samples,
		Seed:            5,
		NumCores:        2,
		Misalign: misalign.Params{
			ShiftSigma:    4,
			RotationSigma: 1,
		},
	}
}

func generate(t *testing.T, samples int) models.Dataset {
	t.Helper()
	asm, err := NewAssembler(testParams(samples))
	require.NoError(t, err)
	ds, err := asm.Generate()
	require.NoError(t, err)
	return ds
}

// TestGenerateShapes verifies the core shape invariants: misaligned stacks
// carry the clean stack's shape and label vectors are capped at the
// retained angle count even though more angles were generated.
func TestGenerateShapes(t *testing.T) {
	asm, err := NewAssembler(testParams(2))
	require.NoError(t, err)
	ds, err := asm.Generate()
	require.NoError(t, err)

	require.Len(t, ds, 2)
	for _, sample := range ds {
		require.True(t, sample.Stack.SameShape(asm.Clean()), "misalignment altered stack dimensionality")
		require.Equal(t, 1, sample.Labels.Rows)
		require.Equal(t, 2*8, sample.Labels.Cols, "vector length must be 2 x retained angles")
	}
}

// TestGenerateDeterministic verifies that two runs with the same seed
// produce bit-identical samples, regardless of worker scheduling.
func TestGenerateDeterministic(t *testing.T) {
	d1 := generate(t, 3)
	d2 := generate(t, 3)

	for i := range d1 {
		require.Equal(t, d1[i].Labels.Data, d2[i].Labels.Data, "labels differ for sample %d", i)
		require.Equal(t, d1[i].Stack.Data, d2[i].Stack.Data, "stacks differ for sample %d", i)
	}
}

// TestSaveLoadRoundTrip verifies exact persistence: the reloaded dataset is
// shape-identical and numerically equal to the in-memory original.
func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	ds := generate(t, 3)

	require.NoError(t, Save(ds, root, 16))

	loaded, err := Load(root, 16, 3)
	require.NoError(t, err)
	require.Len(t, loaded, len(ds))

	for i := range ds {
		require.True(t, loaded[i].Stack.SameShape(ds[i].Stack))
		require.Equal(t, ds[i].Stack.Data, loaded[i].Stack.Data, "stack data must round-trip exactly")
		require.Equal(t, ds[i].Labels.Cols, loaded[i].Labels.Cols)
		require.Equal(t, ds[i].Labels.Data, loaded[i].Labels.Data, "label data must round-trip exactly")
	}
}

// TestLoadMissingSample propagates the missing-file error untouched.
func TestLoadMissingSample(t *testing.T) {
	_, err := Load(t.TempDir(), 16, 2)
	require.Error(t, err)
}

// TestSplitRatio checks the ordered 80/20 split of ten samples.
func TestSplitRatio(t *testing.T) {
	ds := make(models.Dataset, 10)
	for i := range ds {
		ds[i] = &models.Sample{
			Stack:  models.NewStack(1, 2, 2),
			Labels: models.NewVector(1, 2),
		}
		ds[i].Labels.Set(0, 0, float64(i))
	}

	train, test := Split(ds, 0.8)

	require.Len(t, train, 8)
	require.Len(t, test, 2)
	for i, s := range train {
		require.Equal(t, float64(i), s.Labels.At(0, 0), "training order not preserved")
	}
	for i, s := range test {
		require.Equal(t, float64(8+i), s.Labels.At(0, 0), "testing order not preserved")
	}
}

// TestFlattenProjections verifies the i*A+j ordering invariant of the
// projection-extraction transform.
func TestFlattenProjections(t *testing.T) {
	ds := generate(t, 2)
	retained := ds[0].Labels.Cols / 2

	flat := FlattenProjections(ds)
	require.Len(t, flat, len(ds)*retained, "expected N x A flattened records")

	for i, sample := range ds {
		for j := 0; j < retained; j++ {
			rec := flat[i*retained+j]
			require.Equal(t, sample.Labels.At(0, j), rec.RowShift, "row shift mismatch at sample %d angle %d", i, j)
			require.Equal(t, sample.Labels.At(0, retained+j), rec.ColShift, "col shift mismatch at sample %d angle %d", i, j)
			require.Equal(t, sample.Stack.Image(j), rec.Pixels, "pixel mismatch at sample %d angle %d", i, j)
		}
	}
}
