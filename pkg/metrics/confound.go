package metrics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Confounds holds the nuisance regressors derived from a run
type Confounds struct {
	// Full is motion (6), motion differences (6), FD, DVARS and one indicator
	// column per scrubbed timepoint
	Full *mat.Dense

	// Motion12 is the first 12 columns of Full
	Motion12 *mat.Dense

	// Motion24 is Motion12 followed by its element-wise square
	Motion24 *mat.Dense

	// ScrubDesign is the indicator block on its own, nil when nothing was scrubbed
	ScrubDesign *mat.Dense
}

// BaseConfoundColumns is the number of columns in Full before scrub indicators
const BaseConfoundColumns = 14

// ScrubDesign returns an n×len(scrub) matrix with a single 1 per column at the
// scrubbed timepoint, or nil for an empty scrub set
func ScrubDesign(n int, scrub []int) (*mat.Dense, error) {
	if len(scrub) == 0 || n == 0 {
		return nil, nil
	}
	d := mat.NewDense(n, len(scrub), nil)
	for j, t := range scrub {
		if t < 0 || t >= n {
			return nil, fmt.Errorf("scrub index %d outside series of %d timepoints", t, n)
		}
		d.Set(t, j, 1)
	}
	return d, nil
}

// AssembleConfounds concatenates the motion table, its backward differences
// (previous row minus current row, zero for the first row), FD, DVARS and the
// scrub indicators.
func AssembleConfounds(m mat.Matrix, fd, dvars []float64, scrub []int) (*Confounds, error) {
	n, cols := m.Dims()
	if n == 0 {
		return nil, fmt.Errorf("motion table is empty")
	}
	if cols != 6 {
		return nil, fmt.Errorf("motion table has %d columns, want 6", cols)
	}
	if len(fd) != n || len(dvars) != n {
		return nil, fmt.Errorf("series lengths differ: motion %d, fd %d, dvars %d", n, len(fd), len(dvars))
	}

	base := mat.NewDense(n, BaseConfoundColumns, nil)
	for t := 0; t < n; t++ {
		for c := 0; c < 6; c++ {
			base.Set(t, c, m.At(t, c))
			if t > 0 {
				base.Set(t, 6+c, m.At(t-1, c)-m.At(t, c))
			}
		}
		base.Set(t, 12, fd[t])
		base.Set(t, 13, dvars[t])
	}

	design, err := ScrubDesign(n, scrub)
	if err != nil {
		return nil, err
	}

	full := base
	if design != nil {
		full = &mat.Dense{}
		full.Augment(base, design)
	}

	motion12 := mat.DenseCopyOf(base.Slice(0, n, 0, 12))

	var squared mat.Dense
	squared.MulElem(motion12, motion12)
	motion24 := &mat.Dense{}
	motion24.Augment(motion12, &squared)

	return &Confounds{
		Full:        full,
		Motion12:    motion12,
		Motion24:    motion24,
		ScrubDesign: design,
	}, nil
}
