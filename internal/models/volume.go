package models

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when two inputs that must share a grid
// (volume and mask, volume and motion table) disagree on their extent.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Volume4D represents a functional MRI time series
type Volume4D struct {
	// Data holds the voxel intensities with x varying fastest, then y, z and t
	// (the on-disk NIfTI order). A single frame is therefore contiguous.
	Data []float64

	// Nx, Ny, Nz are the spatial dimensions in voxels, Nt the number of timepoints
	Nx, Ny, Nz, Nt int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}
}

// NewVolume4D allocates a zero-filled series of the given shape
func NewVolume4D(nx, ny, nz, nt int) *Volume4D {
	return &Volume4D{
		Data: make([]float64, nx*ny*nz*nt),
		Nx:   nx,
		Ny:   ny,
		Nz:   nz,
		Nt:   nt,
	}
}

// NumVoxels returns the number of voxels in one frame
func (v *Volume4D) NumVoxels() int {
	return v.Nx * v.Ny * v.Nz
}

// SpatialIndex returns the offset of voxel (x,y,z) within a frame
func (v *Volume4D) SpatialIndex(x, y, z int) int {
	return x + v.Nx*(y+v.Ny*z)
}

// At returns the intensity at (x,y,z,t)
func (v *Volume4D) At(x, y, z, t int) float64 {
	return v.Data[v.SpatialIndex(x, y, z)+t*v.NumVoxels()]
}

// Set stores an intensity at (x,y,z,t)
func (v *Volume4D) Set(x, y, z, t int, value float64) {
	v.Data[v.SpatialIndex(x, y, z)+t*v.NumVoxels()] = value
}

// Frame returns the t-th volume as a view into Data. Callers must not modify it.
func (v *Volume4D) Frame(t int) []float64 {
	n := v.NumVoxels()
	return v.Data[t*n : (t+1)*n]
}

// Series copies the time series of the voxel at spatial offset idx into dst,
// allocating when dst is too short.
func (v *Volume4D) Series(idx int, dst []float64) []float64 {
	if cap(dst) < v.Nt {
		dst = make([]float64, v.Nt)
	}
	dst = dst[:v.Nt]
	n := v.NumVoxels()
	for t := 0; t < v.Nt; t++ {
		dst[t] = v.Data[idx+t*n]
	}
	return dst
}

// Shape returns the spatial extent (Nx, Ny, Nz)
func (v *Volume4D) Shape() [3]int {
	return [3]int{v.Nx, v.Ny, v.Nz}
}

// Volume3D is a single spatial grid, used for masks and voxel-wise summaries
type Volume3D struct {
	// Data is stored x fastest, as in Volume4D
	Data []float64

	Nx, Ny, Nz int
}

// NewVolume3D allocates a zero-filled grid
func NewVolume3D(nx, ny, nz int) *Volume3D {
	return &Volume3D{
		Data: make([]float64, nx*ny*nz),
		Nx:   nx,
		Ny:   ny,
		Nz:   nz,
	}
}

// At returns the value at (x,y,z)
func (v *Volume3D) At(x, y, z int) float64 {
	return v.Data[x+v.Nx*(y+v.Ny*z)]
}

// Set stores a value at (x,y,z)
func (v *Volume3D) Set(x, y, z int, value float64) {
	v.Data[x+v.Nx*(y+v.Ny*z)] = value
}

// Shape returns (Nx, Ny, Nz)
func (v *Volume3D) Shape() [3]int {
	return [3]int{v.Nx, v.Ny, v.Nz}
}

// Mask partitions the voxels of a grid into brain (in-mask) and background
type Mask struct {
	In []bool

	Nx, Ny, Nz int
}

// NewMask builds a mask from a 3-D grid: voxels with a value > 0 are in-mask
func NewMask(v *Volume3D) *Mask {
	m := &Mask{
		In: make([]bool, len(v.Data)),
		Nx: v.Nx,
		Ny: v.Ny,
		Nz: v.Nz,
	}
	for i, val := range v.Data {
		m.In[i] = val > 0
	}
	return m
}

// FullMask returns a mask with every voxel in-mask
func FullMask(nx, ny, nz int) *Mask {
	m := &Mask{In: make([]bool, nx*ny*nz), Nx: nx, Ny: ny, Nz: nz}
	for i := range m.In {
		m.In[i] = true
	}
	return m
}

// Count returns the number of in-mask voxels
func (m *Mask) Count() int {
	n := 0
	for _, in := range m.In {
		if in {
			n++
		}
	}
	return n
}

// Contains reports whether voxel (x,y,z) is in-mask
func (m *Mask) Contains(x, y, z int) bool {
	return m.In[x+m.Nx*(y+m.Ny*z)]
}

// CheckExtent verifies that the mask covers exactly the spatial grid of v
func (m *Mask) CheckExtent(v *Volume4D) error {
	if m.Nx != v.Nx || m.Ny != v.Ny || m.Nz != v.Nz {
		return fmt.Errorf("%w: mask is %dx%dx%d, volume is %dx%dx%d",
			ErrDimensionMismatch, m.Nx, m.Ny, m.Nz, v.Nx, v.Ny, v.Nz)
	}
	return nil
}

// AsVolume converts the mask back into a 0/1 grid, e.g. for contour overlays
func (m *Mask) AsVolume() *Volume3D {
	v := NewVolume3D(m.Nx, m.Ny, m.Nz)
	for i, in := range m.In {
		if in {
			v.Data[i] = 1
		}
	}
	return v
}
