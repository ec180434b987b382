package qa

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors for the two classes of fatal input problems
var (
	// ErrMissingInput means a required input file does not exist
	ErrMissingInput = errors.New("missing input")

	// ErrMalformedInput means an input exists but cannot drive a run: a bad
	// file name, an unreadable image or motion table, or mismatched grids
	ErrMalformedInput = errors.New("malformed input")
)

// QADirName is the directory created under the output directory
const QADirName = "QA"

const (
	seriesSuffix = "mcf.nii.gz"
	maskFrom     = "mcf.nii"
	maskTo       = "mcf_brain_mask.nii"
	motionTo     = "mcf.par"
)

// Paths are the resolved input and output locations of a run
type Paths struct {
	Infile string
	Mask   string
	Motion string
	Outdir string
	QADir  string
}

// DerivePaths resolves infile against the working directory and fills in the
// companion files of a motion-corrected series named XXX_mcf.nii.gz: the
// brain mask XXX_mcf_brain_mask.nii.gz and the realignment table XXX_mcf.par.
// Empty outdir, mask or motion select the defaults; outdir defaults to the
// directory of infile.
func DerivePaths(infile, outdir, mask, motion string) (*Paths, error) {
	if !strings.Contains(filepath.Base(infile), seriesSuffix) {
		return nil, fmt.Errorf("%w: infile must be of form XXX_%s, got %s", ErrMalformedInput, seriesSuffix, infile)
	}

	abs, err := filepath.Abs(infile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", infile, err)
	}

	p := &Paths{
		Infile: abs,
		Mask:   mask,
		Motion: motion,
		Outdir: outdir,
	}
	if p.Mask == "" {
		p.Mask = strings.ReplaceAll(abs, maskFrom, maskTo)
	}
	if p.Motion == "" {
		p.Motion = strings.ReplaceAll(abs, seriesSuffix, motionTo)
	}
	if p.Outdir == "" {
		p.Outdir = filepath.Dir(abs)
	}
	p.QADir = filepath.Join(p.Outdir, QADirName)
	return p, nil
}

// Check verifies that every input file exists
func (p *Paths) Check() error {
	for _, path := range []string{p.Infile, p.Mask, p.Motion} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s does not exist", ErrMissingInput, path)
			}
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	return nil
}
