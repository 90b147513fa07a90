package codec

import (
	"encoding/binary"
	"fmt"
)

// TypeSparse tags tensors encoded in a compressed-row layout. It trades CPU
// for bandwidth on arrays dominated by zero entries.
const TypeSparse = "flock.sparse.v1"

const (
	sparseMagic = "FST1"

	// maxDecodedBytes caps the dense expansion of a decoded sparse tensor.
	// A compressed payload may legitimately be far smaller than the array
	// it describes, so the bound is on the output, not the input.
	maxDecodedBytes = 1 << 30
)

// SparseCodec flattens the array into a rows x cols view (rows is the
// leading dimension) and stores only the elements whose bytes are not all
// zero, together with their column indices and row pointers:
//
//	magic(4) | dtype(1) | rank(1) | dims(rank x uint32 LE) |
//	rows(uint32) | cols(uint32) | nnz(uint32) |
//	rowptr((rows+1) x uint32) | colind(nnz x uint32) | values(nnz x itemsize)
//
// Comparing bytes rather than values keeps negative zero and NaN payloads
// intact across a round trip.
type SparseCodec struct{}

func (SparseCodec) Type() string { return TypeSparse }

func sparseDims(shape []int) (rows, cols int) {
	if len(shape) == 0 {
		return 1, 1
	}
	rows = shape[0]
	cols = 1
	for _, d := range shape[1:] {
		cols *= d
	}

	return rows, cols
}

func (SparseCodec) Encode(a NumericArray) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if len(a.Shape) > maxRank {
		return nil, fmt.Errorf("%w: rank %d exceeds %d", ErrShapeMismatch, len(a.Shape), maxRank)
	}

	rows, cols := sparseDims(a.Shape)
	itemSize := a.DType.Size()

	rowptr := make([]uint32, rows+1)
	var colind []uint32
	var values []byte

	isZero := func(elem []byte) bool {
		for _, b := range elem {
			if b != 0 {
				return false
			}
		}

		return true
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			off := (r*cols + c) * itemSize
			elem := a.Data[off : off+itemSize]
			if isZero(elem) {
				continue
			}
			colind = append(colind, uint32(c))
			values = append(values, elem...)
		}
		rowptr[r+1] = uint32(len(colind))
	}

	nnz := len(colind)
	buf := make([]byte, 0, 6+4*len(a.Shape)+12+4*(rows+1)+4*nnz+len(values))
	buf = append(buf, sparseMagic...)
	buf = append(buf, byte(a.DType), byte(len(a.Shape)))
	for _, d := range a.Shape {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(d))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(rows))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(cols))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(nnz))
	for _, p := range rowptr {
		buf = binary.LittleEndian.AppendUint32(buf, p)
	}
	for _, c := range colind {
		buf = binary.LittleEndian.AppendUint32(buf, c)
	}
	buf = append(buf, values...)

	return buf, nil
}

func (SparseCodec) Decode(data []byte) (NumericArray, error) {
	if len(data) < 6 || string(data[:4]) != sparseMagic {
		return NumericArray{}, fmt.Errorf("%w: bad sparse header", ErrCorruptTensor)
	}

	dtype := DType(data[4])
	if dtype.Size() == 0 {
		return NumericArray{}, fmt.Errorf("%w: %w %d", ErrCorruptTensor, ErrUnknownDType, data[4])
	}
	itemSize := dtype.Size()

	rank := int(data[5])
	rest := data[6:]
	if len(rest) < 4*rank+12 {
		return NumericArray{}, fmt.Errorf("%w: truncated sparse metadata", ErrCorruptTensor)
	}

	shape := make([]int, rank)
	for i := range shape {
		shape[i] = int(binary.LittleEndian.Uint32(rest[i*4:]))
	}
	rest = rest[4*rank:]

	rows := int(binary.LittleEndian.Uint32(rest[0:]))
	cols := int(binary.LittleEndian.Uint32(rest[4:]))
	nnz := int(binary.LittleEndian.Uint32(rest[8:]))
	rest = rest[12:]

	// The column product saturates one past the header field's uint32 range,
	// so oversized dims cannot wrap it into a match.
	wantRows, wantCols := 1, uint64(1)
	if rank > 0 {
		wantRows = shape[0]
		for _, d := range shape[1:] {
			wantCols *= uint64(d)
			if wantCols > 1<<32 {
				wantCols = 1 << 32
			}
		}
	}
	if rows != wantRows || uint64(cols) != wantCols {
		return NumericArray{}, fmt.Errorf("%w: shape %v does not match %dx%d layout", ErrCorruptTensor, shape, rows, cols)
	}
	if cols != 0 && rows > maxDecodedBytes/(cols*itemSize) {
		return NumericArray{}, fmt.Errorf("%w: decoded %dx%d tensor exceeds %d bytes", ErrCorruptTensor, rows, cols, maxDecodedBytes)
	}
	if len(rest) != 4*(rows+1)+4*nnz+nnz*itemSize {
		return NumericArray{}, fmt.Errorf("%w: sparse payload does not match metadata", ErrCorruptTensor)
	}

	rowptr := make([]uint32, rows+1)
	for i := range rowptr {
		rowptr[i] = binary.LittleEndian.Uint32(rest[i*4:])
	}
	rest = rest[4*(rows+1):]
	if rowptr[0] != 0 || int(rowptr[rows]) != nnz {
		return NumericArray{}, fmt.Errorf("%w: inconsistent row pointers", ErrCorruptTensor)
	}

	colind := make([]uint32, nnz)
	for i := range colind {
		colind[i] = binary.LittleEndian.Uint32(rest[i*4:])
	}
	values := rest[4*nnz:]

	out := NumericArray{DType: dtype, Shape: shape, Data: make([]byte, rows*cols*itemSize)}
	for r := 0; r < rows; r++ {
		lo, hi := rowptr[r], rowptr[r+1]
		if lo > hi || int(hi) > nnz {
			return NumericArray{}, fmt.Errorf("%w: inconsistent row pointers", ErrCorruptTensor)
		}
		for i := lo; i < hi; i++ {
			c := int(colind[i])
			if c >= cols {
				return NumericArray{}, fmt.Errorf("%w: column index %d out of range", ErrCorruptTensor, c)
			}
			off := (r*cols + c) * itemSize
			copy(out.Data[off:off+itemSize], values[int(i)*itemSize:])
		}
	}

	return out, nil
}
