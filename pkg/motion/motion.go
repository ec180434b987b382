// Package motion loads rigid-body realignment parameters.
//
// Tables follow the FSL MCFLIRT .par layout: one row per timepoint, three
// rotations in radians followed by three translations in mm, separated by
// whitespace.
package motion

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"fmriqa/internal/models"
)

// NumColumns is the number of parameters per timepoint
const NumColumns = 6

// RotationColumns indexes the rotation parameters of a row
var RotationColumns = [3]int{0, 1, 2}

// Parse reads a whitespace-delimited T×6 table. Blank lines and lines starting
// with '#' are skipped.
func Parse(r io.Reader) (*mat.Dense, error) {
	var values []float64
	rows := 0

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != NumColumns {
			return nil, fmt.Errorf("%w: line %d has %d columns, want %d",
				models.ErrDimensionMismatch, line, len(fields), NumColumns)
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			values = append(values, v)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("motion table is empty")
	}

	return mat.NewDense(rows, NumColumns, values), nil
}

// Load reads a motion table from disk
func Load(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return m, nil
}

// CheckLength verifies there is one row per timepoint of the series
func CheckLength(m mat.Matrix, nt int) error {
	rows, cols := m.Dims()
	if rows != nt || cols != NumColumns {
		return fmt.Errorf("%w: motion table is %dx%d, series has %d timepoints",
			models.ErrDimensionMismatch, rows, cols, nt)
	}
	return nil
}
