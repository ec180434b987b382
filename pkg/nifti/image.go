package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"

	"fmriqa/internal/models"
)

// Image is a decoded NIfTI-1 image with intensities converted to float64
type Image struct {
	Header    Header
	ByteOrder binary.ByteOrder

	// Dims is (nx, ny, nz, nt); absent dimensions are 1
	Dims [4]int

	// Data holds Dims[0]*Dims[1]*Dims[2]*Dims[3] values, x fastest,
	// with scl_slope/scl_inter already applied
	Data []float64
}

// New creates an image with a default header around data
func New(dims [4]int, data []float64) *Image {
	return &Image{
		Header:    DefaultHeader(),
		ByteOrder: binary.LittleEndian,
		Dims:      dims,
		Data:      data,
	}
}

// FromVolume4D wraps a time series in a new image with the given voxel size
func FromVolume4D(v *models.Volume4D, tr float64) *Image {
	img := New([4]int{v.Nx, v.Ny, v.Nz, v.Nt}, v.Data)
	if v.VoxelSize.X > 0 {
		img.Header.PixDim[1] = float32(v.VoxelSize.X)
		img.Header.PixDim[2] = float32(v.VoxelSize.Y)
		img.Header.PixDim[3] = float32(v.VoxelSize.Z)
	}
	if tr > 0 {
		img.Header.PixDim[4] = float32(tr)
	}
	return img
}

// FromVolume3D wraps a spatial grid in a new image with a default header
func FromVolume3D(v *models.Volume3D) *Image {
	return New([4]int{v.Nx, v.Ny, v.Nz, 1}, v.Data)
}

// Derive3D builds a 3-D image on the same grid and transform as img.
// The grid of v must match the spatial extent of img.
func (img *Image) Derive3D(v *models.Volume3D) (*Image, error) {
	if v.Nx != img.Dims[0] || v.Ny != img.Dims[1] || v.Nz != img.Dims[2] {
		return nil, fmt.Errorf("%w: derived grid %dx%dx%d, source %dx%dx%d",
			models.ErrDimensionMismatch, v.Nx, v.Ny, v.Nz, img.Dims[0], img.Dims[1], img.Dims[2])
	}
	return &Image{
		Header:    img.Header,
		ByteOrder: binary.LittleEndian,
		Dims:      [4]int{v.Nx, v.Ny, v.Nz, 1},
		Data:      v.Data,
	}, nil
}

// Volume4D returns the image as a time series. Data is shared, not copied.
func (img *Image) Volume4D() *models.Volume4D {
	v := &models.Volume4D{
		Data: img.Data,
		Nx:   img.Dims[0],
		Ny:   img.Dims[1],
		Nz:   img.Dims[2],
		Nt:   img.Dims[3],
	}
	v.VoxelSize.X = float64(img.Header.PixDim[1])
	v.VoxelSize.Y = float64(img.Header.PixDim[2])
	v.VoxelSize.Z = float64(img.Header.PixDim[3])
	return v
}

// Volume3D returns the image as a spatial grid. A 4-D image is only accepted
// when it holds a single frame.
func (img *Image) Volume3D() (*models.Volume3D, error) {
	if img.Dims[3] != 1 {
		return nil, fmt.Errorf("%w: expected a 3-D image, got %d frames",
			models.ErrDimensionMismatch, img.Dims[3])
	}
	return &models.Volume3D{
		Data: img.Data,
		Nx:   img.Dims[0],
		Ny:   img.Dims[1],
		Nz:   img.Dims[2],
	}, nil
}

// TR returns the repetition time stored in pixdim[4]
func (img *Image) TR() float64 {
	return float64(img.Header.PixDim[4])
}

// Load reads a .nii or .nii.gz file
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	img, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	log.WithFields(log.Fields{
		"path":     path,
		"dims":     img.Dims,
		"datatype": img.Header.DataType,
	}).Debug("loaded nifti image")

	return img, nil
}

// Decode parses an uncompressed single-file NIfTI-1 image
func Decode(b []byte) (*Image, error) {
	order, err := detectByteOrder(b)
	if err != nil {
		return nil, err
	}

	var h Header
	if err := binary.Read(bytes.NewReader(b[:minHeaderSize]), order, &h); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	if h.extraDims() != 1 {
		return nil, fmt.Errorf("images with more than 4 dimensions are not supported (dim=%v)", h.Dim)
	}

	dims := h.dims()
	nvox := dims[0] * dims[1] * dims[2] * dims[3]
	nbyper, _ := bytesPerVoxel(h.DataType)

	offset := int(h.VoxOffset)
	if offset < headerSize {
		offset = headerSize
	}
	end := offset + nvox*nbyper
	if end > len(b) {
		return nil, fmt.Errorf("truncated image data: need %d bytes, have %d", end, len(b))
	}

	data := make([]float64, nvox)
	raw := b[offset:end]
	for i := range data {
		data[i] = decodeValue(raw[i*nbyper:(i+1)*nbyper], h.DataType, order)
	}

	slope, inter := float64(h.SclSlope), float64(h.SclInter)
	if slope != 0 && !(slope == 1 && inter == 0) && !math.IsNaN(slope) {
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	return &Image{Header: h, ByteOrder: order, Dims: dims, Data: data}, nil
}

func decodeValue(b []byte, dataType int16, order binary.ByteOrder) float64 {
	switch dataType {
	case DTUint8:
		return float64(b[0])
	case DTInt8:
		return float64(int8(b[0]))
	case DTInt16:
		return float64(int16(order.Uint16(b)))
	case DTUint16:
		return float64(order.Uint16(b))
	case DTInt32:
		return float64(int32(order.Uint32(b)))
	case DTUint32:
		return float64(order.Uint32(b))
	case DTFloat32:
		return float64(math.Float32frombits(order.Uint32(b)))
	case DTFloat64:
		return math.Float64frombits(order.Uint64(b))
	case DTInt64:
		return float64(int64(order.Uint64(b)))
	case DTUint64:
		return float64(order.Uint64(b))
	}
	return math.NaN()
}

// Encode serialises img as a little-endian float32 single-file image.
// Geometry fields of the header are preserved; datatype and scaling are reset.
func Encode(img *Image) ([]byte, error) {
	nvox := img.Dims[0] * img.Dims[1] * img.Dims[2] * img.Dims[3]
	if len(img.Data) != nvox {
		return nil, fmt.Errorf("data has %d values, dims %v need %d", len(img.Data), img.Dims, nvox)
	}

	h := img.Header
	h.SizeOfHdr = minHeaderSize
	h.Magic = singleFileMagic
	h.DataType = DTFloat32
	h.BitPix = 32
	h.VoxOffset = headerSize
	h.SclSlope = 1
	h.SclInter = 0
	h.CalMin = 0
	h.CalMax = 0

	h.Dim = [8]int16{3, 1, 1, 1, 1, 1, 1, 1}
	if img.Dims[3] > 1 {
		h.Dim[0] = 4
	}
	for i := 0; i < 4; i++ {
		h.Dim[i+1] = int16(img.Dims[i])
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + 4*nvox)
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	// no extensions
	buf.Write([]byte{0, 0, 0, 0})

	word := make([]byte, 4)
	for _, v := range img.Data {
		binary.LittleEndian.PutUint32(word, math.Float32bits(float32(v)))
		buf.Write(word)
	}
	return buf.Bytes(), nil
}

// Save writes img to path, gzip-compressed when the name ends in .gz
func Save(path string, img *Image) error {
	b, err := Encode(img)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if _, err := w.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return fmt.Errorf("failed to finish gzip stream %s: %w", path, err)
		}
	}
	return f.Close()
}
