package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"fmriqa/internal/models"
)

// VoxelwiseSummary holds temporal statistics for every voxel
type VoxelwiseSummary struct {
	Mean *models.Volume3D
	SD   *models.Volume3D

	// CV is SD/|mean| clamped to [0, 1], with NaN replaced by 0
	CV *models.Volume3D

	// SFNR is mean/SD; voxels with zero SD hold NaN or Inf
	SFNR *models.Volume3D
}

// ComputeVoxelwiseSummary computes per-voxel temporal mean, SD, CV and SFNR
func ComputeVoxelwiseSummary(v *models.Volume4D) *VoxelwiseSummary {
	s := &VoxelwiseSummary{
		Mean: models.NewVolume3D(v.Nx, v.Ny, v.Nz),
		SD:   models.NewVolume3D(v.Nx, v.Ny, v.Nz),
		CV:   models.NewVolume3D(v.Nx, v.Ny, v.Nz),
		SFNR: models.NewVolume3D(v.Nx, v.Ny, v.Nz),
	}
	if v.Nt == 0 {
		return s
	}

	series := make([]float64, v.Nt)
	for i := 0; i < v.NumVoxels(); i++ {
		series = v.Series(i, series)
		m, sd := stat.PopMeanStdDev(series, nil)

		s.Mean.Data[i] = m
		s.SD.Data[i] = sd
		s.CV.Data[i] = clampCV(sd / math.Abs(m))
		s.SFNR.Data[i] = m / sd
	}
	return s
}

func clampCV(cv float64) float64 {
	switch {
	case math.IsNaN(cv):
		return 0
	case cv > 1:
		return 1
	}
	return cv
}

// MeanInMask averages the in-mask values of a voxel-wise map. Non-finite
// voxels propagate into the result as they would in a plain average.
func MeanInMask(v *models.Volume3D, mask *models.Mask) float64 {
	var sum float64
	n := 0
	for i, in := range mask.In {
		if in {
			sum += v.Data[i]
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
