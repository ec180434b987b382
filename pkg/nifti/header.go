// Package nifti reads and writes single-file NIfTI-1 images (.nii and .nii.gz).
//
// Only the parts of the format a QA run needs are supported: the 348-byte
// header, the common scalar datatypes, and intensity scaling. The spatial
// transform (qform/sform, pixdim) is carried through untouched so derived
// images keep the orientation of their source.
package nifti

import (
	"encoding/binary"
	"fmt"
)

// Header mirrors the on-disk nifti1 header.
//
// Type translation from the nifti1 C header:
//
//	C     Go
//	-------------
//	int   int32
//	float float32
//	short int16
//	char  int8
type Header struct {
	SizeOfHdr          int32    // Must be 348
	UnusedDataType     [10]int8 // Unused
	UnusedDbName       [18]int8 // Unused
	UnusedExtents      int32    // Unused
	UnusedSessionError int16    // Unused
	UnusedRegular      int8     // Unused
	DimInfo            int8     // MRI slice ordering

	Dim           [8]int16   // Data array dimensions
	IntentP1      float32    // 1st intent parameter
	IntentP2      float32    // 2nd intent parameter
	IntentP3      float32    // 3rd intent parameter
	IntentCode    int16      // NIFTI_INTENT_* code
	DataType      int16      // Defines data type
	BitPix        int16      // Number bits/voxel
	SliceStart    int16      // First slice index
	PixDim        [8]float32 // Grid spacing
	VoxOffset     float32    // Offset into .nii file
	SclSlope      float32    // Data scaling: slope
	SclInter      float32    // Data scaling: offset
	SliceEnd      int16      // Last slice index
	SliceCode     int8       // Slice timing order
	XYZTUnits     int8       // Units of pixdim[1..4]
	CalMax        float32    // Max display intensity
	CalMin        float32    // Min display intensity
	SliceDuration float32    // Time for 1 slice
	TOffset       float32    // Time axis shift
	UnusedGlmax   int32      // Unused
	UnusedGlmin   int32      // Unused

	Descrip [80]int8 // Any text you like
	AuxFile [24]int8 // Auxiliary filename

	QFormCode int16 // NIFTI_XFORM_* code
	SFormCode int16 // NIFTI_XFORM_* code

	QuaternB float32 // Quaternion b params
	QuaternC float32 // Quaternion c params
	QuaternD float32 // Quaternion d params
	QOffsetX float32 // Quaternion x shift
	QOffsetY float32 // Quaternion y shift
	QOffsetZ float32 // Quaternion z shift

	SRowX [4]float32 // 1st row affine transform
	SRowY [4]float32 // 2nd row affine transform
	SRowZ [4]float32 // 3rd row affine transform

	IntentName [16]int8 // 'name' or meaning of data

	Magic [4]int8 // "n+1\0" for single-file images
}

const (
	minHeaderSize = 348
	headerSize    = 352 // header plus the 4-byte extension flag
)

// Datatype codes from nifti1.h
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
	DTInt8    = 256
	DTUint16  = 512
	DTUint32  = 768
	DTInt64   = 1024
	DTUint64  = 1280
)

var singleFileMagic = [4]int8{'n', '+', '1', 0}

// bytesPerVoxel returns the storage size of a datatype code
func bytesPerVoxel(dataType int16) (int, error) {
	switch dataType {
	case DTUint8, DTInt8:
		return 1, nil
	case DTInt16, DTUint16:
		return 2, nil
	case DTInt32, DTUint32, DTFloat32:
		return 4, nil
	case DTFloat64, DTInt64, DTUint64:
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported nifti datatype %d", dataType)
	}
}

// validate checks the fields the reader relies on
func (h *Header) validate() error {
	if h.SizeOfHdr != minHeaderSize {
		return fmt.Errorf("invalid header size %d", h.SizeOfHdr)
	}
	if h.Magic != singleFileMagic {
		return fmt.Errorf("invalid magic %v: only single-file n+1 images are supported", h.Magic)
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return fmt.Errorf("invalid dim[0]=%d, must be in [1, 7]", h.Dim[0])
	}
	for i := 1; i <= int(h.Dim[0]); i++ {
		if h.Dim[i] < 1 {
			return fmt.Errorf("invalid dim[%d]=%d", i, h.Dim[i])
		}
	}
	if _, err := bytesPerVoxel(h.DataType); err != nil {
		return err
	}
	return nil
}

// dims returns (nx, ny, nz, nt), treating absent dimensions as 1
func (h *Header) dims() [4]int {
	var d [4]int
	for i := 0; i < 4; i++ {
		d[i] = 1
		if i+1 <= int(h.Dim[0]) && h.Dim[i+1] > 0 {
			d[i] = int(h.Dim[i+1])
		}
	}
	return d
}

// extraDims returns the product of dim[5..7], which the QA tools do not support
func (h *Header) extraDims() int {
	n := 1
	for i := 5; i <= int(h.Dim[0]); i++ {
		n *= int(h.Dim[i])
	}
	return n
}

// detectByteOrder determines the file endianness from sizeof_hdr
func detectByteOrder(b []byte) (binary.ByteOrder, error) {
	if len(b) < minHeaderSize {
		return nil, fmt.Errorf("file too short for a nifti1 header: %d bytes", len(b))
	}
	if int32(binary.LittleEndian.Uint32(b[:4])) == minHeaderSize {
		return binary.LittleEndian, nil
	}
	if int32(binary.BigEndian.Uint32(b[:4])) == minHeaderSize {
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("cannot infer byte order: sizeof_hdr is not %d in either order", minHeaderSize)
}

// DefaultHeader returns a header for a new image with unit voxels and no transform
func DefaultHeader() Header {
	h := Header{
		SizeOfHdr: minHeaderSize,
		DataType:  DTFloat32,
		BitPix:    32,
		VoxOffset: headerSize,
		SclSlope:  1,
		Magic:     singleFileMagic,
	}
	for i := range h.PixDim {
		h.PixDim[i] = 1
	}
	return h
}
