package visualization

import (
	"fmt"

	"fmriqa/internal/models"
)

// Axis identifies a spatial axis of a volume
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// Slice is a 2D image in display order: row 0 is the top row
type Slice struct {
	Data   []float64
	Width  int
	Height int
}

// NewSlice allocates a zero-filled slice
func NewSlice(width, height int) *Slice {
	return &Slice{
		Data:   make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the value at column c, row r
func (s *Slice) At(c, r int) float64 {
	return s.Data[r*s.Width+c]
}

// Set assigns the value at column c, row r
func (s *Slice) Set(c, r int, value float64) {
	s.Data[r*s.Width+c] = value
}

// Viewer cuts 2D views out of a 3D volume
type Viewer struct {
	volume *models.Volume3D
}

// NewViewer creates a viewer over vol
func NewViewer(vol *models.Volume3D) *Viewer {
	return &Viewer{volume: vol}
}

// inPlane returns the two axes orthogonal to axis, in ascending order
func inPlane(axis Axis) (first, second Axis) {
	switch axis {
	case AxisX:
		return AxisY, AxisZ
	case AxisY:
		return AxisX, AxisZ
	default:
		return AxisX, AxisY
	}
}

// TilingAxis returns the axis with the fewest entries, the lowest index on a
// tie. A cube is tiled along z.
func (v *Viewer) TilingAxis() Axis {
	shape := v.volume.Shape()
	if shape[0] == shape[1] && shape[1] == shape[2] {
		return AxisZ
	}
	best := AxisX
	for a := AxisY; a <= AxisZ; a++ {
		if shape[a] < shape[best] {
			best = a
		}
	}
	return best
}

// ExtractSlice extracts the plane at position along axis. Columns run along
// the lower of the two remaining axes; rows run along the other one, flipped
// so that its highest index is the top row.
func (v *Viewer) ExtractSlice(axis Axis, position int) (*Slice, error) {
	if axis < AxisX || axis > AxisZ {
		return nil, fmt.Errorf("invalid axis: %v (must be x, y, or z)", axis)
	}
	shape := v.volume.Shape()
	if position < 0 || position >= shape[axis] {
		return nil, fmt.Errorf("position %d outside [0, %d) along %v", position, shape[axis], axis)
	}

	first, second := inPlane(axis)
	s := NewSlice(shape[first], shape[second])

	var coord [3]int
	coord[axis] = position
	for r := 0; r < s.Height; r++ {
		coord[second] = s.Height - 1 - r
		for c := 0; c < s.Width; c++ {
			coord[first] = c
			s.Set(c, r, v.volume.At(coord[0], coord[1], coord[2]))
		}
	}
	return s, nil
}

// Mosaic tiles every slice along the tiling axis into a grid ncols tiles
// wide, filling row by row. Unused tiles are zero.
func (v *Viewer) Mosaic(ncols int) (*Slice, error) {
	if ncols < 1 {
		return nil, fmt.Errorf("mosaic needs at least one column, got %d", ncols)
	}
	axis := v.TilingAxis()
	n := v.volume.Shape()[axis]
	if n == 0 {
		return nil, fmt.Errorf("volume has no slices along %v", axis)
	}

	nrows := (n + ncols - 1) / ncols
	var mosaic *Slice
	for i := 0; i < n; i++ {
		tile, err := v.ExtractSlice(axis, i)
		if err != nil {
			return nil, err
		}
		if mosaic == nil {
			mosaic = NewSlice(ncols*tile.Width, nrows*tile.Height)
		}

		col0 := (i % ncols) * tile.Width
		row0 := (i / ncols) * tile.Height
		for r := 0; r < tile.Height; r++ {
			copy(mosaic.Data[(row0+r)*mosaic.Width+col0:], tile.Data[r*tile.Width:(r+1)*tile.Width])
		}
	}
	return mosaic, nil
}
