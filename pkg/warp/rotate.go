package warp

import "math"

// Rotate rotates an image about its center by the given angle in degrees,
// using bilinear interpolation. The output has the same dimensions as the
// input; samples falling outside the source image are zero.
func Rotate(img []float64, height, width int, degrees float64) []float64 {
	theta := degrees * math.Pi / 180
	sin, cos := math.Sin(theta), math.Cos(theta)
	cy := float64(height-1) / 2
	cx := float64(width-1) / 2

	out := make([]float64, height*width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Inverse mapping: rotate the output coordinate back into
			// the source image and sample there.
			ry := float64(y) - cy
			rx := float64(x) - cx
			sy := cos*ry + sin*rx + cy
			sx := -sin*ry + cos*rx + cx
			out[y*width+x] = sampleBilinear(img, height, width, sy, sx)
		}
	}
	return out
}

// sampleBilinear samples the image at fractional coordinates (y, x) with
// bilinear interpolation, treating everything outside the image as zero.
func sampleBilinear(img []float64, height, width int, y, x float64) float64 {
	y0 := int(math.Floor(y))
	x0 := int(math.Floor(x))
	fy := y - float64(y0)
	fx := x - float64(x0)

	var acc float64
	for _, c := range [4]struct {
		yi, xi int
		w      float64
	}{
		{y0, x0, (1 - fy) * (1 - fx)},
		{y0, x0 + 1, (1 - fy) * fx},
		{y0 + 1, x0, fy * (1 - fx)},
		{y0 + 1, x0 + 1, fy * fx},
	} {
		if c.yi < 0 || c.yi >= height || c.xi < 0 || c.xi >= width {
			continue
		}
		acc += c.w * img[c.yi*width+c.xi]
	}
	return acc
}
