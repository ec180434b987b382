// Package qa runs the per-scan quality assessment of a motion-corrected fMRI
// series and writes its artifacts to a QA directory.
package qa

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"fmriqa/internal/models"
	"fmriqa/pkg/artifacts"
	"fmriqa/pkg/config"
	"fmriqa/pkg/metrics"
	"fmriqa/pkg/motion"
	"fmriqa/pkg/nifti"
	"fmriqa/pkg/visualization"
)

// Image file names written when plotting is enabled
const (
	MaskMeanImage = "maskmean.png"
	MADImage      = "mad.png"
	DVARSImage    = "DVARS.png"
	FDImage       = "fd.png"
	PSDImage      = "meanpsd.png"
	SpikeImage    = "spike.png"
	VoxMeanImage  = "voxmean.png"
	VoxCVImage    = "voxcv.png"
	VoxSFNRImage  = "voxsfnr.png"
)

// Params holds the inputs of a QA run
type Params struct {
	// Infile is the motion-corrected 4-D series, named XXX_mcf.nii.gz
	Infile string

	// TR is the repetition time in seconds
	TR float64

	// Outdir, MaskFile and MotionFile override the locations derived from
	// Infile when non-empty
	Outdir     string
	MaskFile   string
	MotionFile string

	// Config supplies thresholds and output options; nil selects the defaults
	Config *config.Config
}

// Result collects everything a run computed
type Result struct {
	RunID string
	Paths Paths

	FD    []float64
	DVARS []float64

	Timepoints *metrics.TimepointStatistics
	Voxelwise  *metrics.VoxelwiseSummary
	Spikes     *metrics.SpikeResult
	ScrubVols  []int
	Confounds  *metrics.Confounds
	Trend      *metrics.TrendFit

	MeanSNR  float64
	MeanSFNR float64

	// Images lists the figures written, relative to the QA directory
	Images []string
}

// Summary returns the scalar record written to qadata.csv
func (r *Result) Summary() artifacts.Summary {
	return artifacts.Summary{
		SNR:     r.MeanSNR,
		SFNR:    r.MeanSFNR,
		NSpikes: len(r.Spikes.Spikes),
		NScrub:  len(r.ScrubVols),
	}
}

// Runner drives a single QA run. The steps are:
// 1. Resolving and checking input paths
// 2. Creating the QA directory
// 3. Loading the series, mask and motion table
// 4. Computing the metrics
// 5. Writing the numeric artifacts
// 6. Rendering the figures and the report header
type Runner struct {
	params *Params
	cfg    *config.Config
	log    *log.Entry

	paths  *Paths
	image  *nifti.Image
	volume *models.Volume4D
	mask   *models.Mask
	motion *mat.Dense

	result *Result
}

// NewRunner creates a runner for params
func NewRunner(params *Params) *Runner {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	runID := uuid.NewString()
	return &Runner{
		params: params,
		cfg:    cfg,
		log:    log.WithField("run", runID),
		result: &Result{RunID: runID},
	}
}

// Process runs the complete QA pipeline
func (r *Runner) Process() error {
	if r.params.TR <= 0 {
		return fmt.Errorf("%w: TR must be positive, got %g", ErrMalformedInput, r.params.TR)
	}
	if err := r.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Step 1: Resolve inputs
	paths, err := DerivePaths(r.params.Infile, r.params.Outdir, r.params.MaskFile, r.params.MotionFile)
	if err != nil {
		return err
	}
	if err := paths.Check(); err != nil {
		return err
	}
	r.paths = paths
	r.result.Paths = *paths

	// Step 2: Output directory
	if err := r.prepareQADir(); err != nil {
		return err
	}

	r.log.WithFields(log.Fields{
		"infile": paths.Infile,
		"mask":   paths.Mask,
		"motion": paths.Motion,
		"outdir": paths.Outdir,
	}).Info("starting QA")

	// Step 3: Inputs
	r.log.Debug("loading inputs")
	if err := r.loadInputs(); err != nil {
		return err
	}

	// Step 4: Metrics
	r.log.Debug("computing metrics")
	if err := r.computeMetrics(); err != nil {
		return fmt.Errorf("failed to compute metrics: %w", err)
	}

	// Step 5: Artifacts
	r.log.Debug("writing artifacts")
	w := artifacts.NewWriter(paths.QADir)
	if err := r.writeArtifacts(w); err != nil {
		return err
	}

	// Step 6: Figures and report
	if r.cfg.Output.Plot {
		r.log.Debug("plotting")
		if err := r.renderPlots(); err != nil {
			return fmt.Errorf("failed to render plots: %w", err)
		}
	}
	if err := w.WriteReportHeader(r.reportHeader()); err != nil {
		return err
	}

	r.log.WithFields(log.Fields{
		"snr":     r.result.MeanSNR,
		"sfnr":    r.result.MeanSFNR,
		"nspikes": len(r.result.Spikes.Spikes),
		"nscrub":  len(r.result.ScrubVols),
	}).Info("QA complete")
	return nil
}

// GetResult returns what the last Process call computed
func (r *Runner) GetResult() *Result {
	return r.result
}

// prepareQADir creates the QA directory; an existing one is reused
func (r *Runner) prepareQADir() error {
	if _, err := os.Stat(r.paths.QADir); err == nil {
		r.log.WithField("dir", r.paths.QADir).Warn("QA dir already exists - overwriting")
		return nil
	}
	if err := os.MkdirAll(r.paths.QADir, 0755); err != nil {
		return fmt.Errorf("failed to create QA directory: %w", err)
	}
	return nil
}

// malformed tags decode and shape errors of an input as ErrMalformedInput
func malformed(what, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrMalformedInput, what, path, err)
}

// loadInputs reads the series, mask and motion table and checks that their
// shapes agree
func (r *Runner) loadInputs() error {
	img, err := nifti.Load(r.paths.Infile)
	if err != nil {
		return malformed("series", r.paths.Infile, err)
	}
	r.image = img
	r.volume = img.Volume4D()
	if r.volume.NumVoxels() == 0 || r.volume.Nt == 0 {
		return malformed("series", r.paths.Infile, fmt.Errorf("image is empty: %v", img.Dims))
	}

	maskImg, err := nifti.Load(r.paths.Mask)
	if err != nil {
		return malformed("mask", r.paths.Mask, err)
	}
	maskVol, err := maskImg.Volume3D()
	if err != nil {
		return malformed("mask", r.paths.Mask, err)
	}
	r.mask = models.NewMask(maskVol)
	if err := r.mask.CheckExtent(r.volume); err != nil {
		return malformed("mask", r.paths.Mask, err)
	}

	r.motion, err = motion.Load(r.paths.Motion)
	if err != nil {
		return malformed("motion table", r.paths.Motion, err)
	}
	if err := motion.CheckLength(r.motion, r.volume.Nt); err != nil {
		return malformed("motion table", r.paths.Motion, err)
	}

	r.log.WithFields(log.Fields{
		"dims":     img.Dims,
		"nmaskvox": r.mask.Count(),
	}).Debug("inputs loaded")
	return nil
}

// computeMetrics fills the result from the loaded inputs
func (r *Runner) computeMetrics() error {
	res := r.result

	res.FD = metrics.FramewiseDisplacement(r.motion, r.cfg.Motion.HeadRadius)

	ts, err := metrics.ComputeTimepointStatistics(r.volume, r.mask)
	if err != nil {
		return err
	}
	res.Timepoints = ts
	res.MeanSNR = ts.MeanSNR()
	res.DVARS = metrics.DVARS(ts.Mean)

	res.Voxelwise = metrics.ComputeVoxelwiseSummary(r.volume)
	res.MeanSFNR = metrics.MeanInMask(res.Voxelwise.SFNR, r.mask)

	r.log.Debug("computing spike stats")
	res.Spikes, err = metrics.DetectSpikes(r.volume, r.mask, r.cfg.Spike.AJKZThreshold)
	if err != nil {
		return err
	}
	if len(res.Spikes.Spikes) > 0 {
		r.log.WithField("maxAJKZ", res.Spikes.MaxAJKZ).Warn("possible spike")
	}

	res.ScrubVols = metrics.SelectScrubVolumes(res.FD, res.DVARS, metrics.ScrubParams{
		FDThreshold:    r.cfg.Scrub.FDThreshold,
		DVARSThreshold: r.cfg.Scrub.DVARSThreshold,
		NBack:          r.cfg.Scrub.NBack,
		NForward:       r.cfg.Scrub.NForward,
	})

	res.Confounds, err = metrics.AssembleConfounds(r.motion, res.FD, res.DVARS, res.ScrubVols)
	if err != nil {
		return err
	}

	res.Trend, err = metrics.FitTrend(ts.Mean)
	return err
}

// writeArtifacts persists the numeric outputs. Scrub and spike files are only
// written when non-empty.
func (r *Runner) writeArtifacts(w *artifacts.Writer) error {
	res := r.result

	if err := w.WriteVector(artifacts.FDFile, res.FD); err != nil {
		return err
	}
	if err := w.WriteVector(artifacts.DVARSFile, res.DVARS); err != nil {
		return err
	}

	if n := len(res.Spikes.Spikes); n > 0 {
		spikes := make([]float64, n)
		for i, s := range res.Spikes.Spikes {
			spikes[i] = float64(s)
		}
		if err := w.WriteVector(artifacts.SpikesFile, spikes); err != nil {
			return err
		}
	}

	if len(res.ScrubVols) > 0 {
		r.log.WithField("count", len(res.ScrubVols)).Debug("writing scrub volumes")
		if err := w.WriteIndices(artifacts.ScrubVolsFile, res.ScrubVols); err != nil {
			return err
		}
		if err := w.WriteMatrix(artifacts.ScrubDesFile, res.Confounds.ScrubDesign, artifacts.IntFormat); err != nil {
			return err
		}
	}

	if err := w.WriteMatrix(artifacts.ConfoundFile, res.Confounds.Full, artifacts.FloatFormat); err != nil {
		return err
	}
	if err := w.WriteMatrix(artifacts.Confound12File, res.Confounds.Motion12, artifacts.FloatFormat); err != nil {
		return err
	}
	if err := w.WriteMatrix(artifacts.Confound24File, res.Confounds.Motion24, artifacts.FloatFormat); err != nil {
		return err
	}

	if err := w.WriteSummary(res.Summary()); err != nil {
		return err
	}

	if r.cfg.Output.SaveSFNR {
		sfnr, err := r.image.Derive3D(res.Voxelwise.SFNR)
		if err != nil {
			return err
		}
		if err := w.WriteVolume(artifacts.SFNRVolumeFile, sfnr); err != nil {
			return err
		}
	}
	return nil
}

// renderPlots writes every figure into the QA directory
func (r *Runner) renderPlots() error {
	res := r.result
	dir := r.paths.QADir
	path := func(name string) string {
		res.Images = append(res.Images, name)
		return filepath.Join(dir, name)
	}

	ts := res.Timepoints
	if _, err := visualization.PlotTimeseries(ts.Mean, path(MaskMeanImage), visualization.TimeseriesOptions{
		Title:  "Mean signal (unfiltered)",
		YLabel: "Mean MR signal",
		Trend:  true,
	}); err != nil {
		return err
	}
	if _, err := visualization.PlotTimeseries(ts.MAD, path(MADImage), visualization.TimeseriesOptions{
		Title:  "Median absolute deviation (robust SD)",
		YLabel: "MAD",
	}); err != nil {
		return err
	}
	if _, err := visualization.PlotTimeseries(res.DVARS, path(DVARSImage), visualization.TimeseriesOptions{
		Title:   "DVARS (root mean squared signal derivative over brain mask)",
		YLabel:  "DVARS",
		RefLine: r.cfg.Scrub.DVARSThreshold,
	}); err != nil {
		return err
	}
	if _, err := visualization.PlotTimeseries(res.FD, path(FDImage), visualization.TimeseriesOptions{
		Title:      "Framewise displacement",
		YLabel:     "FD",
		Markers:    res.ScrubVols,
		MarkerName: fmt.Sprintf("Timepoints to scrub (%d total)", len(res.ScrubVols)),
		RefLine:    r.cfg.Scrub.FDThreshold,
		YLimits:    []float64{0, 1},
	}); err != nil {
		return err
	}

	if err := visualization.PlotPowerSpectrum(ts.Mean, r.params.TR, r.cfg.Spectrum.NFFT, r.cfg.Spectrum.Overlap, path(PSDImage)); err != nil {
		return err
	}
	if err := visualization.PlotSpikeMatrix(res.Spikes.AJKZ, r.cfg.Spike.AJKZThreshold, path(SpikeImage)); err != nil {
		return err
	}

	r.log.Debug("plotting volume data")
	ncols := r.cfg.Output.MosaicColumns
	vw := res.Voxelwise
	if err := visualization.PlotSliceMosaic(vw.Mean, path(VoxMeanImage), "Image mean (with mask)", r.mask.AsVolume(), ncols); err != nil {
		return err
	}
	if err := visualization.PlotSliceMosaic(vw.CV, path(VoxCVImage), "Image CV", nil, ncols); err != nil {
		return err
	}
	return visualization.PlotSliceMosaic(vw.SFNR, path(VoxSFNRImage), "Image SFNR", nil, ncols)
}

// reportHeader assembles the record read by the report renderer
func (r *Runner) reportHeader() artifacts.ReportHeader {
	res := r.result
	drift, driftP := res.Trend.Drift()
	return artifacts.ReportHeader{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Infile:    r.paths.Infile,
		MeanSNR:   res.MeanSNR,
		MeanSFNR:  res.MeanSFNR,
		Drift:     drift,
		DriftP:    driftP,
		MaxAJKZ:   res.Spikes.MaxAJKZ,
		NSpikes:   len(res.Spikes.Spikes),
		NScrub:    len(res.ScrubVols),
		Spikes:    res.Spikes.Spikes,
		ScrubVols: res.ScrubVols,
		Images:    res.Images,
	}
}

// IsInputError reports whether err is one of the fatal input errors
func IsInputError(err error) bool {
	return errors.Is(err, ErrMissingInput) || errors.Is(err, ErrMalformedInput)
}
