package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/cave.view/internal/fsutil"
	"github.com/banshee-data/cave.view/internal/monitoring"
	"github.com/banshee-data/cave.view/internal/security"
	"github.com/banshee-data/cave.view/internal/viewpoint"
)

// ErrNoSamples is returned when there is nothing to plot.
var ErrNoSamples = errors.New("monitor: no eye samples")

var (
	rawColor      = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	filteredColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
)

// TracePlotter writes PNG plots of raw against filtered eye position, one
// file per axis.
type TracePlotter struct {
	fsys   fsutil.FileSystem
	dir    string
	width  vg.Length
	height vg.Length
}

// NewTracePlotter returns a plotter writing into dir on fsys.
func NewTracePlotter(fsys fsutil.FileSystem, dir string) *TracePlotter {
	return &TracePlotter{fsys: fsys, dir: filepath.Clean(dir), width: 14 * vg.Inch, height: 6 * vg.Inch}
}

// Dir returns the output directory.
func (tp *TracePlotter) Dir() string { return tp.dir }

// Plot writes <prefix>_eye_x.png, _eye_y.png and _eye_z.png and returns
// their paths.
func (tp *TracePlotter) Plot(samples []viewpoint.Sample, prefix string) ([]string, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	if err := tp.fsys.MkdirAll(tp.dir, 0o755); err != nil {
		return nil, fmt.Errorf("monitor: create plot dir: %w", err)
	}

	start := samples[0].Time
	var files []string
	for axis, name := range []string{"x", "y", "z"} {
		raw := make(plotter.XYs, len(samples))
		filtered := make(plotter.XYs, len(samples))
		for i, s := range samples {
			t := s.Time.Sub(start).Seconds()
			raw[i] = plotter.XY{X: t, Y: s.Raw.Position[axis]}
			filtered[i] = plotter.XY{X: t, Y: s.Filtered.Position[axis]}
		}

		p := plot.New()
		p.Title.Text = fmt.Sprintf("Eye %s (%d samples)", name, len(samples))
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = "Position (m)"
		for _, series := range []struct {
			label string
			pts   plotter.XYs
			color color.Color
		}{
			{"raw", raw, rawColor},
			{"filtered", filtered, filteredColor},
		} {
			line, err := plotter.NewLine(series.pts)
			if err != nil {
				return files, err
			}
			line.Color = series.color
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(series.label, line)
		}
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10

		path, err := tp.write(p, security.SanitizeFilename(fmt.Sprintf("%s_eye_%s.png", prefix, name)))
		if err != nil {
			return files, err
		}
		files = append(files, path)
	}
	monitoring.Diagf("monitor: wrote %d eye plots to %s", len(files), tp.dir)
	return files, nil
}

func (tp *TracePlotter) write(p *plot.Plot, name string) (string, error) {
	path := filepath.Join(tp.dir, name)
	if err := security.ValidatePathWithinDirectory(path, tp.dir); err != nil {
		return "", err
	}
	wt, err := p.WriterTo(tp.width, tp.height, "png")
	if err != nil {
		return "", fmt.Errorf("monitor: render %s: %w", name, err)
	}
	f, err := tp.fsys.Create(path)
	if err != nil {
		return "", fmt.Errorf("monitor: create %s: %w", path, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return "", fmt.Errorf("monitor: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("monitor: close %s: %w", path, err)
	}
	return path, nil
}
