package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestScrubCandidatesRequireBothThresholds(t *testing.T) {
	fd := []float64{0, 0.6, 0.6, 0.1, 0.9}
	dvars := []float64{0, 0.6, 0.1, 0.9, 0.7}
	assert.Equal(t, []int{1, 4}, ScrubCandidates(fd, dvars, 0.5, 0.5))
	assert.Empty(t, ScrubCandidates(fd, dvars, 1, 1))
}

func TestSelectScrubVolumesDilatesAndClips(t *testing.T) {
	fd := make([]float64, 10)
	dvars := make([]float64, 10)
	fd[0], dvars[0] = 1, 1
	fd[5], dvars[5] = 1, 1
	fd[9], dvars[9] = 1, 1

	got := SelectScrubVolumes(fd, dvars, DefaultScrubParams())
	// 0 -> [0, 2], 5 -> [4, 7], 9 -> [8, 9]
	assert.Equal(t, []int{0, 1, 2, 4, 5, 6, 7, 8, 9}, got)
}

func TestSelectScrubVolumesEmpty(t *testing.T) {
	fd := []float64{0, 0.1, 0.2}
	assert.Nil(t, SelectScrubVolumes(fd, fd, DefaultScrubParams()))
	assert.Nil(t, SelectScrubVolumes(nil, nil, DefaultScrubParams()))
}

func TestSelectScrubVolumesContainsCandidates(t *testing.T) {
	v := noisyVolume(40, 2, 1, 1, 0.5, 0.3, 13)
	fd := v.Data[:40]
	dvars := v.Data[40:]

	scrub := SelectScrubVolumes(fd, dvars, DefaultScrubParams())
	set := make(map[int]bool, len(scrub))
	for _, i := range scrub {
		set[i] = true
	}
	for _, c := range ScrubCandidates(fd, dvars, 0.5, 0.5) {
		assert.True(t, set[c], "candidate %d not scrubbed", c)
	}
}

func TestSelectScrubVolumesMonotonicInThresholds(t *testing.T) {
	v := noisyVolume(60, 2, 1, 1, 0.5, 0.4, 21)
	fd := v.Data[:60]
	dvars := v.Data[60:]

	prev := len(fd) + 1
	for _, thresh := range []float64{0, 0.25, 0.5, 0.75, 1, 2} {
		p := DefaultScrubParams()
		p.FDThreshold = thresh
		p.DVARSThreshold = thresh
		n := len(SelectScrubVolumes(fd, dvars, p))
		assert.LessOrEqual(t, n, prev, "threshold %g", thresh)
		prev = n
	}
}

func TestAssembleConfounds(t *testing.T) {
	m := mat.NewDense(4, 6, []float64{
		0, 0, 0, 0, 0, 0,
		1, 2, 3, 4, 5, 6,
		1, 2, 3, 4, 5, 6,
		0, 0, 0, 1, 1, 1,
	})
	fd := []float64{0, 1, 2, 3}
	dvars := []float64{0, 4, 5, 6}

	c, err := AssembleConfounds(m, fd, dvars, []int{1, 3})
	require.NoError(t, err)

	r, cols := c.Full.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, BaseConfoundColumns+2, cols)

	// differences are previous minus current
	for col := 0; col < 6; col++ {
		assert.Zero(t, c.Full.At(0, 6+col))
		assert.Equal(t, -m.At(1, col), c.Full.At(1, 6+col))
		assert.Zero(t, c.Full.At(2, 6+col))
	}
	assert.Equal(t, 1.0, c.Full.At(3, 6))
	assert.Equal(t, 5.0, c.Full.At(3, 11))

	assert.Equal(t, fd, mat.Col(nil, 12, c.Full))
	assert.Equal(t, dvars, mat.Col(nil, 13, c.Full))

	// one indicator per scrubbed timepoint
	assert.Equal(t, []float64{0, 1, 0, 0}, mat.Col(nil, 14, c.Full))
	assert.Equal(t, []float64{0, 0, 0, 1}, mat.Col(nil, 15, c.Full))
	assert.True(t, mat.Equal(c.ScrubDesign, c.Full.Slice(0, 4, 14, 16)))

	_, c12 := c.Motion12.Dims()
	assert.Equal(t, 12, c12)
	_, c24 := c.Motion24.Dims()
	assert.Equal(t, 24, c24)
	for row := 0; row < 4; row++ {
		for col := 0; col < 12; col++ {
			x := c.Motion12.At(row, col)
			assert.Equal(t, x, c.Motion24.At(row, col))
			assert.Equal(t, x*x, c.Motion24.At(row, 12+col))
		}
	}
}

func TestAssembleConfoundsWithoutScrub(t *testing.T) {
	c, err := AssembleConfounds(mat.NewDense(5, 6, nil), make([]float64, 5), make([]float64, 5), nil)
	require.NoError(t, err)
	r, cols := c.Full.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, BaseConfoundColumns, cols)
	assert.Nil(t, c.ScrubDesign)
}

func TestAssembleConfoundsRejectsBadInput(t *testing.T) {
	_, err := AssembleConfounds(mat.NewDense(3, 5, nil), make([]float64, 3), make([]float64, 3), nil)
	assert.Error(t, err)

	_, err = AssembleConfounds(mat.NewDense(3, 6, nil), make([]float64, 2), make([]float64, 3), nil)
	assert.Error(t, err)

	_, err = AssembleConfounds(mat.NewDense(3, 6, nil), make([]float64, 3), make([]float64, 3), []int{3})
	assert.Error(t, err)
}
