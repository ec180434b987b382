package visualization

import (
	"fmt"
	"image/color"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"fmriqa/internal/models"
)

// DefaultColumns is the number of tiles per mosaic row
const DefaultColumns = 6

const (
	mosaicSize    = 8 * vg.Inch
	colorBarWidth = 1.2 * vg.Inch
	paletteColors = 256
	contourLevel  = 0.5
)

// sliceGrid adapts a Slice to plotter.GridXYZ. Plot rows run upward, so grid
// row 0 is the bottom row of the slice.
type sliceGrid struct {
	s *Slice
}

func (g sliceGrid) Dims() (c, r int) { return g.s.Width, g.s.Height }
func (g sliceGrid) Z(c, r int) float64 { return g.s.At(c, g.s.Height-1-r) }
func (g sliceGrid) X(c int) float64 { return float64(c) }
func (g sliceGrid) Y(r int) float64 { return float64(r) }

// solidPalette draws every level in the same colour
type solidPalette []color.Color

func (p solidPalette) Colors() []color.Color { return p }

// finiteRange returns the extent of the finite values in data, widened so
// that min < max always holds
func finiteRange(data []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	switch {
	case lo > hi:
		return 0, 1
	case lo == hi:
		pad := math.Max(math.Abs(lo)*0.05, 0.5)
		return lo - pad, hi + pad
	}
	return lo, hi
}

// grayMap returns a black to white colour map spanning [lo, hi]
func grayMap(lo, hi float64) (palette.ColorMap, error) {
	cm, err := moreland.NewLuminance([]color.Color{color.Black, color.White})
	if err != nil {
		return nil, err
	}
	cm.SetMin(lo)
	cm.SetMax(hi)
	return cm, nil
}

// newHeatMap builds a heat map over g whose colours saturate outside [lo, hi]
func newHeatMap(g plotter.GridXYZ, cm palette.ColorMap, lo, hi float64) *plotter.HeatMap {
	pal := cm.Palette(paletteColors)
	colors := pal.Colors()

	hm := plotter.NewHeatMap(g, pal)
	hm.Min = lo
	hm.Max = hi
	hm.Underflow = colors[0]
	hm.Overflow = colors[len(colors)-1]
	hm.NaN = color.Transparent
	hm.Rasterized = true
	return hm
}

// PlotSliceMosaic renders vol as a grey mosaic of slices with a colour bar.
// When contour is non-nil it must share the grid of vol and is outlined in
// red at level 0.5.
func PlotSliceMosaic(vol *models.Volume3D, path, title string, contour *models.Volume3D, ncols int) error {
	if contour != nil && contour.Shape() != vol.Shape() {
		return fmt.Errorf("%w: contour %v, image %v", models.ErrDimensionMismatch, contour.Shape(), vol.Shape())
	}

	mosaic, err := NewViewer(vol).Mosaic(ncols)
	if err != nil {
		return fmt.Errorf("failed to build mosaic: %w", err)
	}

	lo, hi := finiteRange(mosaic.Data)
	cm, err := grayMap(lo, hi)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.Add(newHeatMap(sliceGrid{mosaic}, cm, lo, hi))

	if contour != nil {
		overlay, err := NewViewer(contour).Mosaic(ncols)
		if err != nil {
			return fmt.Errorf("failed to build contour mosaic: %w", err)
		}
		c := plotter.NewContour(sliceGrid{overlay}, []float64{contourLevel}, solidPalette{color.RGBA{R: 255, A: 255}})
		p.Add(c)
	}

	bar := plot.New()
	bar.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true})
	bar.HideX()
	bar.Y.Padding = 0

	img := vgimg.New(mosaicSize+colorBarWidth, mosaicSize)
	dc := draw.New(img)

	left := dc
	left.Max.X = dc.Min.X + mosaicSize
	right := dc
	right.Min.X = left.Max.X

	p.Draw(left)
	bar.Draw(right)

	return savePNG(img, path)
}

// savePNG writes a rendered canvas to path
func savePNG(img *vgimg.Canvas, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
