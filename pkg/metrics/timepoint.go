package metrics

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"fmriqa/internal/models"
)

// madScale converts a median absolute deviation into a robust SD estimate
const madScale = 0.6745

// TimepointStatistics holds one value per timepoint for each measure
type TimepointStatistics struct {
	// Mean, Median, MAD and CV are computed over in-mask voxels
	Mean   []float64
	Median []float64
	MAD    []float64
	CV     []float64

	// SNR is the in-mask mean divided by the SD of the out-of-mask voxels
	SNR []float64
}

// MeanSNR averages the per-timepoint SNR
func (s *TimepointStatistics) MeanSNR() float64 {
	if len(s.SNR) == 0 {
		return math.NaN()
	}
	return stat.Mean(s.SNR, nil)
}

// MAD returns median(|x - median(x)|) / 0.6745, or NaN for empty input
func MAD(x []float64) float64 {
	mad, err := stats.MedianAbsoluteDeviation(x)
	if err != nil {
		return math.NaN()
	}
	return mad / madScale
}

// Median returns the median of x, averaging the two middle values for even
// lengths, or NaN for empty input
func Median(x []float64) float64 {
	m, err := stats.Median(x)
	if err != nil {
		return math.NaN()
	}
	return m
}

// ComputeTimepointStatistics summarises every frame of v over the mask.
// Ratios with a zero denominator are left as NaN or Inf.
func ComputeTimepointStatistics(v *models.Volume4D, mask *models.Mask) (*TimepointStatistics, error) {
	if err := mask.CheckExtent(v); err != nil {
		return nil, err
	}

	s := &TimepointStatistics{
		Mean:   make([]float64, v.Nt),
		Median: make([]float64, v.Nt),
		MAD:    make([]float64, v.Nt),
		CV:     make([]float64, v.Nt),
		SNR:    make([]float64, v.Nt),
	}

	nIn := mask.Count()
	brain := make([]float64, 0, nIn)
	background := make([]float64, 0, v.NumVoxels()-nIn)

	for t := 0; t < v.Nt; t++ {
		brain, background = brain[:0], background[:0]
		for i, val := range v.Frame(t) {
			if mask.In[i] {
				brain = append(brain, val)
			} else {
				background = append(background, val)
			}
		}

		s.MAD[t] = MAD(brain)
		s.Median[t] = Median(brain)
		s.Mean[t] = mean(brain)
		s.CV[t] = s.MAD[t] / s.Median[t]
		s.SNR[t] = s.Mean[t] / popStdDev(background)
	}

	return s, nil
}

// mean is stat.Mean with NaN for empty input
func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// popStdDev is the population (ddof=0) standard deviation, NaN for empty input
func popStdDev(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	_, sd := stat.PopMeanStdDev(x, nil)
	return sd
}
