// Package metrics computes the per-scan QA measures of a functional series:
// motion and signal-change summaries, robust mask statistics, voxel-wise
// stability maps, slice-wise spike detection, scrubbing and confound
// regressors.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"fmriqa/pkg/motion"
)

// DefaultHeadRadius is the sphere radius in mm used to convert rotations to displacement
const DefaultHeadRadius = 50.0

// FramewiseDisplacement sums the absolute frame-to-frame change of the six
// motion parameters. Rotations are converted to the arc length they cause on a
// sphere of headRadius mm. FD[0] is 0.
func FramewiseDisplacement(m mat.Matrix, headRadius float64) []float64 {
	rows, cols := m.Dims()
	fd := make([]float64, rows)

	isRotation := make([]bool, cols)
	for _, c := range motion.RotationColumns {
		if c < cols {
			isRotation[c] = true
		}
	}

	for t := 1; t < rows; t++ {
		var sum float64
		for c := 0; c < cols; c++ {
			d := math.Abs(m.At(t, c) - m.At(t-1, c))
			if isRotation[c] {
				d *= headRadius
			}
			sum += d
		}
		fd[t] = sum
	}
	return fd
}

// DVARS returns the percent signal change between consecutive timepoints of
// the in-mask mean, relative to the average of the two. DVARS[0] is 0.
func DVARS(mean []float64) []float64 {
	dvars := make([]float64, len(mean))
	for t := 1; t < len(mean); t++ {
		diff := (mean[t] - mean[t-1]) / ((mean[t] + mean[t-1]) / 2)
		dvars[t] = math.Abs(diff) * 100
	}
	return dvars
}
