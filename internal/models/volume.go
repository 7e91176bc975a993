package models

// Volume represents a reconstructed 3D volume.
type Volume struct {
	// Data is the volume in row-major order:
	// Data[((z*Height)+y)*Width+x] is voxel (z, y, x).
	// z indexes the axis shared with the projection image rows.
	Data []float64

	// Width and Height are the in-plane dimensions of each axial slice.
	Width  int
	Height int

	// Depth is the number of axial slices.
	Depth int
}

// NewVolume allocates a volume filled with the given initial value.
func NewVolume(width, height, depth int, init float64) *Volume {
	v := &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
	if init != 0 {
		for i := range v.Data {
			v.Data[i] = init
		}
	}
	return v
}

// Slice returns axial slice z as a view into the backing array.
func (v *Volume) Slice(z int) []float64 {
	size := v.Width * v.Height
	return v.Data[z*size : (z+1)*size]
}
