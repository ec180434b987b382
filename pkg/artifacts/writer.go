// Package artifacts persists the numeric outputs of a QA run: per-timepoint
// series, scrub indices, confound matrices, the scalar summary and derived
// volumes. Text files follow the layout of numpy.savetxt so existing
// downstream scripts can read them.
package artifacts

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"fmriqa/pkg/nifti"
)

// File names written to the QA directory
const (
	FDFile         = "fd.txt"
	DVARSFile      = "dvars.txt"
	SpikesFile     = "spikes.txt"
	ScrubVolsFile  = "scrubvols.txt"
	ScrubDesFile   = "scrubdes.txt"
	ConfoundFile   = "confound.txt"
	Confound12File = "confound12.txt"
	Confound24File = "confound24.txt"
	SummaryFile    = "qadata.csv"
	ReportFile     = "qasummary.yaml"
	SFNRVolumeFile = "voxsfnr.nii.gz"
)

// Number formats
const (
	FloatFormat = "%.18e"
	IntFormat   = "%d"
)

// Summary is the flat key/value record written to qadata.csv
type Summary struct {
	SNR     float64
	SFNR    float64
	NSpikes int
	NScrub  int
}

// ReportHeader collects the values an external report renderer prints above
// the figures
type ReportHeader struct {
	Timestamp string   `yaml:"timestamp"`
	Infile    string   `yaml:"infile"`
	MeanSNR   float64  `yaml:"meanSNR"`
	MeanSFNR  float64  `yaml:"meanSFNR"`
	Drift     float64  `yaml:"drift"`
	DriftP    float64  `yaml:"driftP"`
	MaxAJKZ   float64  `yaml:"maxAJKZ"`
	NSpikes   int      `yaml:"nSpikes"`
	NScrub    int      `yaml:"nScrub"`
	Spikes    []int    `yaml:"spikes,flow"`
	ScrubVols []int    `yaml:"scrubVols,flow"`
	Images    []string `yaml:"images,omitempty"`
}

// Writer writes artifacts into a single directory
type Writer struct {
	dir string
}

// NewWriter creates a writer for dir, which must already exist
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Path returns the full path of an artifact
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// create opens name for writing and runs fn against a buffered writer
func (w *Writer) create(name string, fn func(io.Writer) error) error {
	path := w.Path(name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}

	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	log.WithField("file", path).Debug("wrote artifact")
	return nil
}

// WriteVector writes one value per line
func (w *Writer) WriteVector(name string, v []float64) error {
	return w.create(name, func(out io.Writer) error {
		for _, x := range v {
			if _, err := fmt.Fprintf(out, FloatFormat+"\n", x); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteIndices writes one integer per line
func (w *Writer) WriteIndices(name string, idx []int) error {
	return w.create(name, func(out io.Writer) error {
		for _, i := range idx {
			if _, err := fmt.Fprintf(out, IntFormat+"\n", i); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteMatrix writes m row by row, space-delimited, formatting each value
// with FloatFormat or IntFormat
func (w *Writer) WriteMatrix(name string, m mat.Matrix, format string) error {
	return w.create(name, func(out io.Writer) error {
		return FormatMatrix(out, m, format)
	})
}

// FormatMatrix renders m in savetxt layout
func FormatMatrix(out io.Writer, m mat.Matrix, format string) error {
	rows, cols := m.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c > 0 {
				if _, err := io.WriteString(out, " "); err != nil {
					return err
				}
			}
			var err error
			if format == IntFormat {
				_, err = fmt.Fprintf(out, format, int(m.At(r, c)))
			} else {
				_, err = fmt.Fprintf(out, format, m.At(r, c))
			}
			if err != nil {
				return err
			}
		}
		if _, err := io.WriteString(out, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary writes the four-line qadata.csv
func (w *Writer) WriteSummary(s Summary) error {
	return w.create(SummaryFile, func(out io.Writer) error {
		_, err := fmt.Fprintf(out, "SNR,%f\nSFNR,%f\nnspikes,%d\nnscrub,%d\n",
			s.SNR, s.SFNR, s.NSpikes, s.NScrub)
		return err
	})
}

// WriteReportHeader writes the report record as YAML
func (w *Writer) WriteReportHeader(h ReportHeader) error {
	return w.create(ReportFile, func(out io.Writer) error {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(h); err != nil {
			return err
		}
		return enc.Close()
	})
}

// WriteVolume saves a derived image
func (w *Writer) WriteVolume(name string, img *nifti.Image) error {
	path := w.Path(name)
	if err := nifti.Save(path, img); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	log.WithField("file", path).Debug("wrote volume")
	return nil
}
