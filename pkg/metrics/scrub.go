package metrics

// ScrubParams controls which timepoints are marked for exclusion
type ScrubParams struct {
	FDThreshold    float64
	DVARSThreshold float64

	// NBack and NForward widen each candidate to [i-NBack, i+NForward]
	NBack    int
	NForward int
}

// DefaultScrubParams returns the Power et al. defaults
func DefaultScrubParams() ScrubParams {
	return ScrubParams{
		FDThreshold:    0.5,
		DVARSThreshold: 0.5,
		NBack:          1,
		NForward:       2,
	}
}

// ScrubCandidates returns the timepoints where both FD and DVARS exceed their
// thresholds. Only the common prefix of fd and dvars is considered.
func ScrubCandidates(fd, dvars []float64, fdThresh, dvarsThresh float64) []int {
	n := min(len(fd), len(dvars))
	var idx []int
	for t := 0; t < n; t++ {
		if fd[t] > fdThresh && dvars[t] > dvarsThresh {
			idx = append(idx, t)
		}
	}
	return idx
}

// SelectScrubVolumes dilates the scrub candidates by the configured window,
// clipped to the series, and returns the sorted indices. The result is nil
// when nothing needs scrubbing.
func SelectScrubVolumes(fd, dvars []float64, p ScrubParams) []int {
	n := min(len(fd), len(dvars))
	flagged := make([]bool, n)
	for _, i := range ScrubCandidates(fd, dvars, p.FDThreshold, p.DVARSThreshold) {
		start := max(0, i-p.NBack)
		end := min(n-1, i+p.NForward)
		for t := start; t <= end; t++ {
			flagged[t] = true
		}
	}

	var scrub []int
	for t, f := range flagged {
		if f {
			scrub = append(scrub, t)
		}
	}
	return scrub
}
