package warp

import (
	"math"
	"math/cmplx"
)

// Shift translates an image by (dy, dx) pixels using a phase ramp in the
// frequency domain. Sub-pixel shifts are supported; for integer shifts the
// result agrees with a circular roll of the image up to floating-point
// rounding.
//
// Parameters:
//   - img: input image as a flat row-major array
//   - height, width: image dimensions
//   - dy, dx: shift in pixels along rows and columns
//
// Returns the shifted image as a new array of the same size.
func Shift(img []float64, height, width int, dy, dx float64) []float64 {
	spec := make([]complex128, height*width)
	for i, v := range img {
		spec[i] = complex(v, 0)
	}
	FFT2(spec, height, width)

	applyPhaseRamp(spec, height, width, dy, dx)

	IFFT2(spec, height, width)
	scale := float64(height * width)
	out := make([]float64, height*width)
	for i, v := range spec {
		out[i] = real(v) / scale
	}
	return out
}

// ShiftStack translates every image of a stack in a single batched call.
// The stack is stored angle-major: stack[a*height*width : (a+1)*height*width]
// is the image for angle a, shifted by (dy[a], dx[a]). The scratch spectrum
// buffer is shared across all angles.
func ShiftStack(stack []float64, angles, height, width int, dy, dx []float64) []float64 {
	out := make([]float64, len(stack))
	size := height * width
	spec := make([]complex128, size)
	scale := float64(size)

	for a := 0; a < angles; a++ {
		img := stack[a*size : (a+1)*size]
		for i, v := range img {
			spec[i] = complex(v, 0)
		}
		FFT2(spec, height, width)
		applyPhaseRamp(spec, height, width, dy[a], dx[a])
		IFFT2(spec, height, width)
		for i, v := range spec {
			out[a*size+i] = real(v) / scale
		}
	}
	return out
}

func applyPhaseRamp(spec []complex128, height, width int, dy, dx float64) {
	for ky := 0; ky < height; ky++ {
		fy := freq(ky, height) / float64(height)
		for kx := 0; kx < width; kx++ {
			fx := freq(kx, width) / float64(width)
			phase := -2 * math.Pi * (fy*dy + fx*dx)
			spec[ky*width+kx] *= cmplx.Exp(complex(0, phase))
		}
	}
}
