package artifacts

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"fmriqa/internal/models"
	"fmriqa/pkg/nifti"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestWriteVector(t *testing.T) {
	w := NewWriter(t.TempDir())
	require.NoError(t, w.WriteVector(FDFile, []float64{0, 0.25, -1.5}))

	lines := readLines(t, w.Path(FDFile))
	assert.Equal(t, []string{
		"0.000000000000000000e+00",
		"2.500000000000000000e-01",
		"-1.500000000000000000e+00",
	}, lines)
}

func TestWriteIndices(t *testing.T) {
	w := NewWriter(t.TempDir())
	require.NoError(t, w.WriteIndices(ScrubVolsFile, []int{3, 4, 5}))
	assert.Equal(t, []string{"3", "4", "5"}, readLines(t, w.Path(ScrubVolsFile)))
}

func TestFormatMatrix(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 0, 0, 1})

	var buf bytes.Buffer
	require.NoError(t, FormatMatrix(&buf, m, IntFormat))
	assert.Equal(t, "1 0\n0 1\n", buf.String())

	buf.Reset()
	require.NoError(t, FormatMatrix(&buf, mat.NewDense(1, 2, []float64{0.5, 2}), FloatFormat))
	assert.Equal(t, "5.000000000000000000e-01 2.000000000000000000e+00\n", buf.String())
}

func TestWriteMatrixShape(t *testing.T) {
	w := NewWriter(t.TempDir())
	require.NoError(t, w.WriteMatrix(ConfoundFile, mat.NewDense(5, 14, nil), FloatFormat))

	lines := readLines(t, w.Path(ConfoundFile))
	require.Len(t, lines, 5)
	for _, l := range lines {
		assert.Len(t, strings.Fields(l), 14)
	}
}

func TestWriteSummary(t *testing.T) {
	w := NewWriter(t.TempDir())
	require.NoError(t, w.WriteSummary(Summary{SNR: 12.5, SFNR: 80.25, NSpikes: 2, NScrub: 0}))

	assert.Equal(t, []string{
		"SNR,12.500000",
		"SFNR,80.250000",
		"nspikes,2",
		"nscrub,0",
	}, readLines(t, w.Path(SummaryFile)))
}

func TestWriteReportHeader(t *testing.T) {
	w := NewWriter(t.TempDir())
	h := ReportHeader{
		Timestamp: "2024-01-01T00:00:00Z",
		Infile:    "/data/run_mcf.nii.gz",
		MeanSNR:   10,
		MeanSFNR:  55.5,
		NSpikes:   1,
		Spikes:    []int{7},
		ScrubVols: []int{},
		Images:    []string{"fd.png"},
	}
	require.NoError(t, w.WriteReportHeader(h))

	b, err := os.ReadFile(w.Path(ReportFile))
	require.NoError(t, err)
	assert.Contains(t, string(b), "spikes: [7]")

	var back ReportHeader
	require.NoError(t, yaml.Unmarshal(b, &back))
	assert.Equal(t, h, back)
}

func TestWriteVolume(t *testing.T) {
	w := NewWriter(t.TempDir())
	v := models.NewVolume3D(2, 2, 2)
	for i := range v.Data {
		v.Data[i] = float64(i) / 2
	}
	require.NoError(t, w.WriteVolume(SFNRVolumeFile, nifti.FromVolume3D(v)))

	img, err := nifti.Load(w.Path(SFNRVolumeFile))
	require.NoError(t, err)
	back, err := img.Volume3D()
	require.NoError(t, err)
	assert.Equal(t, v.Data, back.Data)
}

func TestWriterMissingDirectory(t *testing.T) {
	w := NewWriter("/nonexistent/qa")
	assert.Error(t, w.WriteVector(FDFile, []float64{1}))
}
