package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"tomoalign/internal/models"
	"tomoalign/pkg/regress"
)

// Viewer renders the images of a projection stack as grayscale previews.
// It works equally on raw projection stacks and on the correlation-map
// stacks produced by the cross-correlation transform; intensities are
// rescaled per stack so the previews stay comparable across angles.
type Viewer struct {
	stack *models.Stack

	// lo and hi are the intensity bounds used for rescaling.
	lo, hi float64
}

// NewViewer creates a viewer over the given stack.
func NewViewer(stack *models.Stack) *Viewer {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range stack.Data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return &Viewer{stack: stack, lo: lo, hi: hi}
}

// RenderImage converts the projection at the given angle index into a
// grayscale image.
func (v *Viewer) RenderImage(angle int) (image.Image, error) {
	if angle < 0 || angle >= v.stack.Angles {
		return nil, fmt.Errorf("angle index %d out of range [0, %d)", angle, v.stack.Angles)
	}

	pixels := v.stack.Image(angle)
	span := v.hi - v.lo

	img := image.NewGray16(image.Rect(0, 0, v.stack.Width, v.stack.Height))
	for y := 0; y < v.stack.Height; y++ {
		for x := 0; x < v.stack.Width; x++ {
			val := pixels[y*v.stack.Width+x]
			var norm float64
			if span > 0 {
				norm = (val - v.lo) / span
			}
			value := uint16(math.Max(0, math.Min(65535, norm*65535)))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// SaveImage renders one angle and writes it as a JPEG file.
func (v *Viewer) SaveImage(angle int, filename string) error {
	img, err := v.RenderImage(angle)
	if err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSequence renders every angle of the stack into outputDir, naming
// the files <prefix>_NNN.jpg in angle order.
func (v *Viewer) SaveSequence(outputDir, prefix string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for angle := 0; angle < v.stack.Angles; angle++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%03d.jpg", prefix, angle))
		if err := v.SaveImage(angle, filename); err != nil {
			return err
		}
	}
	return nil
}

// PlotLossCurve writes the per-epoch average training loss as a PNG
// line chart.
func PlotLossCurve(stats []regress.EpochStat, filename string) error {
	if len(stats) == 0 {
		return fmt.Errorf("no epoch statistics to plot")
	}

	p := plot.New()
	p.Title.Text = "Training Loss"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Average MSE"

	pts := make(plotter.XYs, 0, len(stats))
	for _, s := range stats {
		pts = append(pts, plotter.XY{X: float64(s.Epoch), Y: s.AvgLoss})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(8*vg.Inch, 6*vg.Inch, filename); err != nil {
		return fmt.Errorf("failed to save loss curve: %v", err)
	}
	return nil
}
