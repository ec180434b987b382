package metrics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"fmriqa/internal/models"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

// noisyVolume fills a volume with base + N(0, sd) noise from a fixed seed
func noisyVolume(nx, ny, nz, nt int, base, sd float64, seed int64) *models.Volume4D {
	rng := rand.New(rand.NewSource(seed))
	v := models.NewVolume4D(nx, ny, nz, nt)
	for i := range v.Data {
		v.Data[i] = base + sd*rng.NormFloat64()
	}
	return v
}

func TestFramewiseDisplacementZeroMotion(t *testing.T) {
	fd := FramewiseDisplacement(mat.NewDense(8, 6, nil), DefaultHeadRadius)
	assert.Equal(t, make([]float64, 8), fd)
}

func TestFramewiseDisplacement(t *testing.T) {
	m := mat.NewDense(4, 6, []float64{
		0, 0, 0, 0, 0, 0,
		0.01, 0, 0, 0.1, 0.2, 0,
		0.01, 0, 0, 0.1, 0.2, 0,
		0, -0.002, 0.004, 0.1, 0.2, -0.5,
	})
	fd := FramewiseDisplacement(m, DefaultHeadRadius)

	want := []float64{0, 0.01*50 + 0.3, 0, (0.01+0.002+0.004)*50 + 0.5}
	if diff := cmp.Diff(want, fd, approx); diff != "" {
		t.Errorf("FD mismatch (-want +got):\n%s", diff)
	}
}

func TestDVARS(t *testing.T) {
	d := DVARS([]float64{100, 102, 100, 100})
	want := []float64{0, 200.0 / 101, 200.0 / 101, 0}
	if diff := cmp.Diff(want, d, approx); diff != "" {
		t.Errorf("DVARS mismatch (-want +got):\n%s", diff)
	}
}

func TestFirstFrameIsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := mat.NewDense(6, 6, nil)
	mean := make([]float64, 6)
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			m.Set(r, c, rng.Float64())
		}
		mean[r] = 100 + rng.Float64()*10
	}
	assert.Zero(t, FramewiseDisplacement(m, DefaultHeadRadius)[0])
	assert.Zero(t, DVARS(mean)[0])
}

func TestMedianAndMAD(t *testing.T) {
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 3.0, Median([]float64{1, 2, 3, 4, 100}))
	assert.InDelta(t, 1/0.6745, MAD([]float64{1, 2, 3, 4, 100}), 1e-12)
	assert.True(t, math.IsNaN(MAD(nil)))
	assert.True(t, math.IsNaN(Median(nil)))
}

func TestComputeTimepointStatistics(t *testing.T) {
	v := models.NewVolume4D(2, 2, 1, 2)
	// frame 0: brain 10, 20; background 1, 3
	v.Set(0, 0, 0, 0, 10)
	v.Set(1, 0, 0, 0, 20)
	v.Set(0, 1, 0, 0, 1)
	v.Set(1, 1, 0, 0, 3)
	// frame 1: flat background
	v.Set(0, 0, 0, 1, 10)
	v.Set(1, 0, 0, 1, 10)
	v.Set(0, 1, 0, 1, 2)
	v.Set(1, 1, 0, 1, 2)

	mask := &models.Mask{In: []bool{true, true, false, false}, Nx: 2, Ny: 2, Nz: 1}

	s, err := ComputeTimepointStatistics(v, mask)
	require.NoError(t, err)

	assert.Equal(t, []float64{15, 10}, s.Mean)
	assert.Equal(t, []float64{15, 10}, s.Median)
	assert.InDelta(t, 5/0.6745, s.MAD[0], 1e-12)
	assert.InDelta(t, (5/0.6745)/15, s.CV[0], 1e-12)
	assert.InDelta(t, 15.0, s.SNR[0], 1e-12)

	// zero background SD is tolerated, not an error
	assert.True(t, math.IsInf(s.SNR[1], 1))
	assert.Zero(t, s.MAD[1])
}

func TestComputeTimepointStatisticsMaskMismatch(t *testing.T) {
	v := models.NewVolume4D(2, 2, 2, 3)
	_, err := ComputeTimepointStatistics(v, models.FullMask(2, 2, 3))
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestVoxelwiseMeanSDMatchDirectComputation(t *testing.T) {
	v := noisyVolume(4, 4, 4, 10, 500, 3, 7)
	s := ComputeVoxelwiseSummary(v)

	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				var sum float64
				for tp := 0; tp < 10; tp++ {
					sum += v.At(x, y, z, tp)
				}
				m := sum / 10
				var ss float64
				for tp := 0; tp < 10; tp++ {
					d := v.At(x, y, z, tp) - m
					ss += d * d
				}
				sd := math.Sqrt(ss / 10)

				assert.InDelta(t, m, s.Mean.At(x, y, z), 1e-9)
				assert.InDelta(t, sd, s.SD.At(x, y, z), 1e-9)
				assert.InDelta(t, m/sd, s.SFNR.At(x, y, z), 1e-9)
			}
		}
	}
}

func TestVoxelwiseCVIsClamped(t *testing.T) {
	v := models.NewVolume4D(3, 1, 1, 4)
	// voxel 0: all zeros, 0/0
	// voxel 1: zero mean, non-zero SD
	for tp, val := range []float64{-1, 1, -1, 1} {
		v.Set(1, 0, 0, tp, val)
	}
	// voxel 2: ordinary
	for tp, val := range []float64{9, 11, 9, 11} {
		v.Set(2, 0, 0, tp, val)
	}

	s := ComputeVoxelwiseSummary(v)
	for i, cv := range s.CV.Data {
		assert.False(t, math.IsNaN(cv), "voxel %d", i)
		assert.GreaterOrEqual(t, cv, 0.0, "voxel %d", i)
		assert.LessOrEqual(t, cv, 1.0, "voxel %d", i)
	}
	assert.Equal(t, 0.0, s.CV.Data[0])
	assert.Equal(t, 1.0, s.CV.Data[1])
	assert.InDelta(t, 0.1, s.CV.Data[2], 1e-12)
	assert.True(t, math.IsNaN(s.SFNR.Data[0]))
}

func TestMeanInMask(t *testing.T) {
	v := &models.Volume3D{Data: []float64{1, 2, 3, 100}, Nx: 4, Ny: 1, Nz: 1}
	mask := &models.Mask{In: []bool{true, true, true, false}, Nx: 4, Ny: 1, Nz: 1}
	assert.Equal(t, 2.0, MeanInMask(v, mask))

	empty := &models.Mask{In: make([]bool, 4), Nx: 4, Ny: 1, Nz: 1}
	assert.True(t, math.IsNaN(MeanInMask(v, empty)))
}
