// Package visualization renders the QA figures: time-series line plots, the
// log power spectrum of the mean signal, the slice-by-time spike map and
// slice mosaics of voxelwise summaries. All figures are written as PNG.
package visualization

import (
	"fmt"
	"image/color"
	"math"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"fmriqa/pkg/metrics"
	"fmriqa/pkg/spectrum"
)

const (
	lineWidth    = 10 * vg.Inch
	lineHeight   = 3 * vg.Inch
	spikeWidth   = 8 * vg.Inch
	spikeHeight  = 4 * vg.Inch
	defaultXAxis = "timepoints"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	black = color.RGBA{A: 255}
	blue  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	green = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// TimeseriesOptions controls PlotTimeseries
type TimeseriesOptions struct {
	Title  string
	XLabel string // "timepoints" when empty
	YLabel string

	// Markers are drawn as vertical red lines sharing one legend entry
	Markers    []int
	MarkerName string

	// Trend overlays the fitted quadratic trend in black
	Trend bool

	// RefLine draws a horizontal line at this value when non-zero
	RefLine float64

	// YLimits fixes the y axis when it holds two values
	YLimits []float64
}

// finiteXYs returns the finite points of data indexed by position
func finiteXYs(data []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(data))
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: v})
	}
	return pts
}

// addLine adds a polyline through pts to p
func addLine(p *plot.Plot, pts plotter.XYs, c color.Color, width vg.Length) (*plotter.Line, error) {
	l, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	l.Color = c
	l.Width = width
	p.Add(l)
	return l, nil
}

// PlotTimeseries draws data against its index and saves it as a 10×3 inch
// PNG. Without YLimits the x axis spans [0, n+1] and the y axis pads the data
// range by 10% on each side; with YLimits the x axis spans [0, n-1].
//
// When opts.Trend is set the quadratic trend fit is returned, otherwise nil.
func PlotTimeseries(data []float64, path string, opts TimeseriesOptions) (*metrics.TrendFit, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("cannot plot an empty series to %s", path)
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = opts.XLabel
	if p.X.Label.Text == "" {
		p.X.Label.Text = defaultXAxis
	}
	p.Y.Label.Text = opts.YLabel

	var xmin, xmax, ymin, ymax float64
	if len(opts.YLimits) == 2 {
		xmin, xmax = 0, float64(n-1)
		ymin, ymax = opts.YLimits[0], opts.YLimits[1]
	} else {
		lo, hi := finiteRange(data)
		pad := 0.1 * (hi - lo)
		xmin, xmax = 0, float64(n+1)
		ymin, ymax = lo-pad, hi+pad
	}

	if pts := finiteXYs(data); len(pts) > 0 {
		if _, err := addLine(p, pts, blue, vg.Points(1)); err != nil {
			return nil, err
		}
	}

	var markerLine *plotter.Line
	for _, s := range opts.Markers {
		l, err := addLine(p, plotter.XYs{{X: float64(s), Y: ymin}, {X: float64(s), Y: ymax}}, red, vg.Points(2))
		if err != nil {
			return nil, err
		}
		markerLine = l
	}
	if markerLine != nil {
		p.Legend.Add(opts.MarkerName, markerLine)
		p.Legend.Top = true
	}

	var fit *metrics.TrendFit
	if opts.Trend {
		var err error
		fit, err = metrics.FitTrend(data)
		if err != nil {
			return nil, fmt.Errorf("failed to fit trend: %w", err)
		}
		if pts := finiteXYs(fit.Fitted); len(pts) > 0 {
			if _, err := addLine(p, pts, black, vg.Points(1)); err != nil {
				return nil, err
			}
		}
	}

	if opts.RefLine != 0 {
		ref := plotter.XYs{{X: 0, Y: opts.RefLine}, {X: float64(n), Y: opts.RefLine}}
		if _, err := addLine(p, ref, green, vg.Points(1)); err != nil {
			return nil, err
		}
	}

	// Add widens the axes to the data, so the limits go in last
	p.X.Min, p.X.Max = xmin, xmax
	p.Y.Min, p.Y.Max = ymin, ymax

	if err := p.Save(lineWidth, lineHeight, path); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", path, err)
	}
	log.WithField("file", path).Debug("saved plot")
	return fit, nil
}

// PlotPowerSpectrum estimates the Welch spectrum of signal sampled every tr
// seconds and plots the natural log of the power against frequency, skipping
// the DC bin and its neighbour
func PlotPowerSpectrum(signal []float64, tr float64, nfft, overlap int, path string) error {
	if tr <= 0 {
		return fmt.Errorf("repetition time must be positive, got %g", tr)
	}
	freqs, power, err := spectrum.Welch(signal, 1/tr, nfft, overlap)
	if err != nil {
		return fmt.Errorf("failed to estimate spectrum: %w", err)
	}

	pts := make(plotter.XYs, 0, len(power))
	for k := 2; k < len(power); k++ {
		lp := math.Log(power[k])
		if math.IsNaN(lp) || math.IsInf(lp, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: freqs[k], Y: lp})
	}

	p := plot.New()
	p.Title.Text = "Log power spectrum of mean signal across mask"
	p.X.Label.Text = "frequency (Hz)"
	p.Y.Label.Text = "log power"
	if len(pts) > 0 {
		if _, err := addLine(p, pts, blue, vg.Points(1)); err != nil {
			return err
		}
	}

	if err := p.Save(lineWidth, lineHeight, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	log.WithField("file", path).Debug("saved plot")
	return nil
}

// matrixGrid shows a slices×timepoints matrix with timepoints along x
type matrixGrid struct {
	m mat.Matrix
}

func (g matrixGrid) Dims() (c, r int) {
	rows, cols := g.m.Dims()
	return cols, rows
}

func (g matrixGrid) Z(c, r int) float64 { return g.m.At(r, c) }

func (g matrixGrid) X(c int) float64 { return float64(c) }
func (g matrixGrid) Y(r int) float64 { return float64(r) }

// PlotSpikeMatrix draws the jackknife Z of every slice and timepoint, with the
// colour scale clipped to [0, threshold]
func PlotSpikeMatrix(ajkz mat.Matrix, threshold float64, path string) error {
	if threshold <= 0 {
		return fmt.Errorf("spike threshold must be positive, got %g", threshold)
	}
	if r, c := ajkz.Dims(); r == 0 || c == 0 {
		return fmt.Errorf("cannot plot an empty spike matrix to %s", path)
	}

	cm := moreland.ExtendedBlackBody()
	cm.SetMin(0)
	cm.SetMax(threshold)

	p := plot.New()
	p.Title.Text = "Spike measure (absolute jackknife Z)"
	p.X.Label.Text = defaultXAxis
	p.Y.Label.Text = "slices"
	p.Add(newHeatMap(matrixGrid{ajkz}, cm, 0, threshold))

	if err := p.Save(spikeWidth, spikeHeight, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	log.WithField("file", path).Debug("saved plot")
	return nil
}
