package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"fmriqa/internal/models"
)

// DefaultSpikeThreshold is the AJKZ value above which a timepoint is reported as a spike
const DefaultSpikeThreshold = 25.0

// flatTolerance is the residual SD, relative to the largest magnitude of a
// series, below which the series is treated as exactly explained by its trend.
const flatTolerance = 1e-12

// SpikeResult is the outcome of slice-wise jackknife spike detection
type SpikeResult struct {
	// AAZ is the average absolute temporal Z score, slices × timepoints
	AAZ *mat.Dense

	// AJKZ is the absolute jackknife Z score of each slice against the others,
	// slices × timepoints
	AJKZ *mat.Dense

	// Spikes lists the timepoints whose maximum AJKZ exceeds the threshold
	Spikes []int

	// MaxAJKZ is the largest finite AJKZ value, or NaN if there is none
	MaxAJKZ float64
}

// DetectSpikes runs the fBIRN / Greve spike measure on v.
//
// Every in-mask voxel series is detrended against TrendBasis and converted to
// Z scores. Absolute Z is averaged per slice and timepoint (AAZ), and each
// slice is then scored against the mean and SD of the remaining slices at the
// same timepoint. Signal shared by all slices, such as bulk motion, cancels in
// the jackknife; slice-specific artefacts do not.
func DetectSpikes(v *models.Volume4D, mask *models.Mask, threshold float64) (*SpikeResult, error) {
	if err := mask.CheckExtent(v); err != nil {
		return nil, err
	}
	if v.Nz == 0 || v.Nt == 0 {
		return nil, fmt.Errorf("cannot detect spikes in an empty series (%d slices, %d timepoints)", v.Nz, v.Nt)
	}

	aaz, err := averageAbsZ(v, mask)
	if err != nil {
		return nil, err
	}
	ajkz := jackknifeZ(aaz)

	res := &SpikeResult{
		AAZ:     aaz,
		AJKZ:    ajkz,
		MaxAJKZ: math.NaN(),
	}

	nslices, ntp := ajkz.Dims()
	for t := 0; t < ntp; t++ {
		colMax := math.NaN()
		for s := 0; s < nslices; s++ {
			val := ajkz.At(s, t)
			if math.IsNaN(val) {
				continue
			}
			if math.IsNaN(colMax) || val > colMax {
				colMax = val
			}
		}
		if math.IsNaN(colMax) {
			continue
		}
		if math.IsNaN(res.MaxAJKZ) || colMax > res.MaxAJKZ {
			res.MaxAJKZ = colMax
		}
		if colMax > threshold {
			res.Spikes = append(res.Spikes, t)
		}
	}

	return res, nil
}

// averageAbsZ detrends and Z-scores the in-mask series one slice at a time and
// averages |Z| within each slice and timepoint. Slices without in-mask voxels
// get 0.
func averageAbsZ(v *models.Volume4D, mask *models.Mask) (*mat.Dense, error) {
	aaz := mat.NewDense(v.Nz, v.Nt, nil)
	series := make([]float64, v.Nt)
	col := make([]float64, v.Nt)

	for z := 0; z < v.Nz; z++ {
		// collect in-mask voxels of this slice in x-fastest order
		var voxels []int
		for y := 0; y < v.Ny; y++ {
			for x := 0; x < v.Nx; x++ {
				if mask.Contains(x, y, z) {
					voxels = append(voxels, v.SpatialIndex(x, y, z))
				}
			}
		}
		if len(voxels) == 0 {
			continue
		}

		series2d := mat.NewDense(v.Nt, len(voxels), nil)
		scale := make([]float64, len(voxels))
		for j, idx := range voxels {
			series = v.Series(idx, series)
			series2d.SetCol(j, series)
			for _, val := range series {
				scale[j] = math.Max(scale[j], math.Abs(val))
			}
		}

		resid, err := Detrend(series2d)
		if err != nil {
			return nil, fmt.Errorf("slice %d: %w", z, err)
		}

		sums := make([]float64, v.Nt)
		for j := range voxels {
			col = mat.Col(col, j, resid)
			m, sd := stat.PopMeanStdDev(col, nil)
			if !(sd > flatTolerance*scale[j]) {
				// a flat series carries no spike information
				continue
			}
			for t, r := range col {
				sums[t] += math.Abs((r - m) / sd)
			}
		}
		for t := range sums {
			aaz.Set(z, t, sums[t]/float64(len(voxels)))
		}
	}

	return aaz, nil
}

// jackknifeZ scores each slice of aaz against the other slices at the same
// timepoint and returns |Z|. Cells whose reference SD is zero are NaN.
func jackknifeZ(aaz *mat.Dense) *mat.Dense {
	nslices, ntp := aaz.Dims()
	ajkz := mat.NewDense(nslices, ntp, nil)

	others := make([]float64, 0, nslices)
	for t := 0; t < ntp; t++ {
		for s := 0; s < nslices; s++ {
			others = others[:0]
			for o := 0; o < nslices; o++ {
				if o != s {
					others = append(others, aaz.At(o, t))
				}
			}
			if len(others) == 0 {
				ajkz.Set(s, t, math.NaN())
				continue
			}
			m, sd := stat.PopMeanStdDev(others, nil)
			if sd == 0 {
				ajkz.Set(s, t, math.NaN())
				continue
			}
			ajkz.Set(s, t, math.Abs((aaz.At(s, t)-m)/sd))
		}
	}
	return ajkz
}
