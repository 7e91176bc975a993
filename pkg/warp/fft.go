package warp

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// FFT2 performs an in-place 2D Fast Fourier Transform on flat row-major
// complex data of the given dimensions. Rows are transformed first, then
// columns, using Gonum's complex FFT.
func FFT2(data []complex128, height, width int) {
	fft2(data, height, width, true)
}

// IFFT2 performs the unnormalized in-place inverse 2D FFT. Callers must
// divide by height*width to recover the original scale, since Gonum's
// transforms are unnormalized.
func IFFT2(data []complex128, height, width int) {
	fft2(data, height, width, false)
}

func fft2(data []complex128, height, width int, forward bool) {
	rowFFT := fourier.NewCmplxFFT(width)
	colFFT := fourier.NewCmplxFFT(height)

	// Row pass.
	row := make([]complex128, width)
	for y := 0; y < height; y++ {
		copy(row, data[y*width:(y+1)*width])
		if forward {
			rowFFT.Coefficients(row, row)
		} else {
			rowFFT.Sequence(row, row)
		}
		copy(data[y*width:(y+1)*width], row)
	}

	// Column pass.
	col := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = data[y*width+x]
		}
		if forward {
			colFFT.Coefficients(col, col)
		} else {
			colFFT.Sequence(col, col)
		}
		for y := 0; y < height; y++ {
			data[y*width+x] = col[y]
		}
	}
}

// freq returns the signed sample frequency for bin k of an n-point FFT,
// following the usual wrap-around convention. Only even lengths have a
// Nyquist bin at -n/2; odd lengths run 0, 1, ..., (n-1)/2, -(n-1)/2, ..., -1.
func freq(k, n int) float64 {
	if n%2 == 0 && k == n/2 {
		return float64(-n / 2)
	}
	if k <= n/2 {
		return float64(k)
	}
	return float64(k - n)
}
