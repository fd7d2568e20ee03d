// Package report renders scan matching results as PNG plots and HTML
// charts for offline inspection.
package report

import (
	"fmt"
	"image/color"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/scanmatch/internal/dataset"
	"github.com/banshee-data/scanmatch/internal/lidar"
)

// Trajectory is a named pose sequence to plot.
type Trajectory struct {
	Name  string
	Poses []dataset.Stamped
}

// PlotTrajectory writes a top-down (x, y) plot of the trajectories to
// path. The image format follows the extension: .png, .svg or .pdf.
func PlotTrajectory(path string, trajectories ...Trajectory) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".svg", ".pdf":
	default:
		return fmt.Errorf("plot %s: unsupported extension: %w", path, lidar.ErrInvalidConfig)
	}

	p := plot.New()
	p.Title.Text = "Trajectory (top view)"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	colors := generateColors(len(trajectories))
	for i, tr := range trajectories {
		if len(tr.Poses) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(tr.Poses))
		for j, s := range tr.Poses {
			t := s.Transform.Translation()
			pts[j] = plotter.XY{X: t.X, Y: t.Y}
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return fmt.Errorf("trajectory %q: %w", tr.Name, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		points.Color = colors[i]
		points.Radius = vg.Points(1.5)
		p.Add(line, points)
		p.Legend.Add(tr.Name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	lidar.Diagf("wrote trajectory plot %s", path)
	return nil
}

// generateColors returns n evenly spaced hues.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := range colors {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL in [0,1] to 8-bit RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}
