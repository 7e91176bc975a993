package models

// Stack represents a projection stack as an explicit 5D record.
// The layout mirrors the tensor fed into the regressor: batch and channel
// come first and are always 1 in this pipeline, but they are kept so a
// persisted stack is self-describing without external metadata.
type Stack struct {
	// Batch is the leading batch dimension (always 1).
	Batch int

	// Channels is the channel dimension (always 1).
	Channels int

	// Angles is the number of projection angles in the stack.
	Angles int

	// Height and Width are the spatial dimensions of each projection image.
	Height int
	Width  int

	// Data holds the projection intensities in row-major order:
	// Data[((a*Height)+y)*Width+x] is pixel (y, x) of angle a.
	Data []float64
}

// NewStack allocates a zeroed stack for the given number of angles and
// projection image dimensions.
func NewStack(angles, height, width int) *Stack {
	return &Stack{
		Batch:    1,
		Channels: 1,
		Angles:   angles,
		Height:   height,
		Width:    width,
		Data:     make([]float64, angles*height*width),
	}
}

// Clone returns a deep copy of the stack.
func (s *Stack) Clone() *Stack {
	out := *s
	out.Data = make([]float64, len(s.Data))
	copy(out.Data, s.Data)
	return &out
}

// Image returns the projection image for the given angle as a view into the
// stack's backing array. Mutating the returned slice mutates the stack.
func (s *Stack) Image(angle int) []float64 {
	size := s.Height * s.Width
	return s.Data[angle*size : (angle+1)*size]
}

// SameShape reports whether two stacks have identical dimensions.
func (s *Stack) SameShape(o *Stack) bool {
	return s.Batch == o.Batch && s.Channels == o.Channels &&
		s.Angles == o.Angles && s.Height == o.Height && s.Width == o.Width
}

// Vector is a dense 2D numeric array. Ground-truth labels are stored as a
// 1 x (2*retainedAngles) vector: all row shifts for the retained angles
// followed by all column shifts.
type Vector struct {
	Rows int
	Cols int
	Data []float64
}

// NewVector allocates a zeroed rows x cols vector.
func NewVector(rows, cols int) *Vector {
	return &Vector{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// At returns the element at (row, col).
func (v *Vector) At(row, col int) float64 {
	return v.Data[row*v.Cols+col]
}

// Set assigns the element at (row, col).
func (v *Vector) Set(row, col int, val float64) {
	v.Data[row*v.Cols+col] = val
}

// Perturbation describes how a single projection image was displaced from
// its ideal position. Shifts are in pixels, rotation in degrees; all three
// are drawn from a normal distribution and rounded to integers.
type Perturbation struct {
	RowShift    int
	ColShift    int
	RotationDeg int
}

// Sample pairs a misaligned projection stack with the ground-truth
// misalignment vector that produced it. Samples are immutable after
// creation: they are written once and read back verbatim for training.
type Sample struct {
	Stack  *Stack
	Labels *Vector
}

// Dataset is an ordered collection of samples, addressable by index.
// Order is the generation order and is preserved on reload.
type Dataset []*Sample

// Projection is one flattened record of the projection-extraction
// transform: a single 2D image paired with its own (row, col) shift.
type Projection struct {
	Height int
	Width  int
	Pixels []float64

	RowShift float64
	ColShift float64
}
