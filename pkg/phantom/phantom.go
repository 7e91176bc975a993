// Package phantom generates synthetic 3D test volumes with known structure,
// used as ground truth for projection simulation. The default phantom is the
// classic Shepp-Logan head model extended to three dimensions: a sum of
// ellipsoids with fixed intensities, semi-axes and in-plane rotations.
package phantom

import (
	"math"

	"tomoalign/internal/models"
)

// ellipsoid describes one component of the phantom in the normalized
// [-1, 1] coordinate cube.
type ellipsoid struct {
	intensity  float64
	a, b, c    float64 // semi-axes along x, y, z
	x0, y0, z0 float64 // center
	phiDeg     float64 // rotation about the z axis
}

// sheppLogan3D is the standard ten-ellipsoid Shepp-Logan parameter table.
var sheppLogan3D = []ellipsoid{
	{2.0, 0.6900, 0.920, 0.810, 0, 0, 0, 0},
	{-0.8, 0.6624, 0.874, 0.780, 0, -0.0184, 0, 0},
	{-0.2, 0.1100, 0.310, 0.220, 0.22, 0, 0, -18},
	{-0.2, 0.1600, 0.410, 0.280, -0.22, 0, 0, 18},
	{0.1, 0.2100, 0.250, 0.410, 0, 0.35, -0.15, 0},
	{0.1, 0.0460, 0.046, 0.050, 0, 0.1, 0.25, 0},
	{0.1, 0.0460, 0.046, 0.050, 0, -0.1, 0.25, 0},
	{0.1, 0.0460, 0.023, 0.050, -0.08, -0.605, 0, 0},
	{0.1, 0.0230, 0.023, 0.020, 0, -0.606, 0, 0},
	{0.1, 0.0230, 0.046, 0.020, 0.06, -0.605, 0, 0},
}

// SheppLogan generates a cubic Shepp-Logan phantom volume of the given edge
// size. The volume is deterministic: two calls with the same size produce
// identical voxel data.
func SheppLogan(size int) *models.Volume {
	vol := models.NewVolume(size, size, size, 0)

	for z := 0; z < size; z++ {
		// Normalized coordinate of this axial slice.
		nz := 2*float64(z)/float64(size-1) - 1
		slice := vol.Slice(z)
		for y := 0; y < size; y++ {
			ny := 2*float64(y)/float64(size-1) - 1
			for x := 0; x < size; x++ {
				nx := 2*float64(x)/float64(size-1) - 1
				slice[y*size+x] = sampleAt(nx, ny, nz)
			}
		}
	}
	return vol
}

// sampleAt sums the intensities of all ellipsoids containing the normalized
// point (x, y, z).
func sampleAt(x, y, z float64) float64 {
	var v float64
	for _, e := range sheppLogan3D {
		phi := e.phiDeg * math.Pi / 180
		sin, cos := math.Sin(phi), math.Cos(phi)

		// Translate to the ellipsoid frame and undo its rotation.
		dx := x - e.x0
		dy := y - e.y0
		dz := z - e.z0
		rx := cos*dx + sin*dy
		ry := -sin*dx + cos*dy

		q := (rx*rx)/(e.a*e.a) + (ry*ry)/(e.b*e.b) + (dz*dz)/(e.c*e.c)
		if q <= 1 {
			v += e.intensity
		}
	}
	return v
}
