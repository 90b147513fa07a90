// Package codec converts between in-memory numeric arrays and opaque byte
// tensors. It is the only package that touches raw tensor bytes; everything
// above it exchanges encoded tensors through wire.Parameters.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrCorruptTensor is returned when an encoded tensor's metadata does
	// not account for the bytes that follow it.
	ErrCorruptTensor = errors.New("corrupt tensor encoding")

	ErrUnknownDType      = errors.New("unknown element type")
	ErrUnknownTensorType = errors.New("unknown tensor type")
	ErrShapeMismatch     = errors.New("data does not match shape")
)

// DType identifies the element type of a NumericArray. Element bytes are
// stored little-endian.
type DType uint8

const (
	Float32 DType = iota + 1
	Float64
	Int32
	Int64
	Uint8
)

func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8:
		return 1
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// NumericArray is an n-dimensional array of a fixed element type. Data holds
// the elements in row-major order, little-endian. A nil Shape denotes a
// scalar holding exactly one element.
type NumericArray struct {
	DType DType
	Shape []int
	Data  []byte
}

// NumElems returns the number of elements the shape accounts for. A shape
// with a zero dimension yields zero.
func (a NumericArray) NumElems() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}

	return n
}

func (a NumericArray) Validate() error {
	if a.DType.Size() == 0 {
		return ErrUnknownDType
	}
	for _, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension %d", ErrShapeMismatch, d)
		}
	}
	if len(a.Data) != a.NumElems()*a.DType.Size() {
		return fmt.Errorf("%w: %d bytes for shape %v of %s", ErrShapeMismatch, len(a.Data), a.Shape, a.DType)
	}

	return nil
}

// Equal reports bit-for-bit equality, including shape and element type.
func (a NumericArray) Equal(b NumericArray) bool {
	if a.DType != b.DType || len(a.Shape) != len(b.Shape) || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}

	return true
}

func NewFloat32Array(shape []int, values []float32) NumericArray {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}

	return NumericArray{DType: Float32, Shape: shape, Data: data}
}

func NewFloat64Array(shape []int, values []float64) NumericArray {
	data := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
	}

	return NumericArray{DType: Float64, Shape: shape, Data: data}
}

// Float64Values widens the array's elements to float64, the working type of
// aggregation.
func (a NumericArray) Float64Values() ([]float64, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	n := a.NumElems()
	out := make([]float64, n)
	switch a.DType {
	case Float32:
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(a.Data[i*4:])))
		}
	case Float64:
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(a.Data[i*8:]))
		}
	case Int32:
		for i := range out {
			out[i] = float64(int32(binary.LittleEndian.Uint32(a.Data[i*4:])))
		}
	case Int64:
		for i := range out {
			out[i] = float64(int64(binary.LittleEndian.Uint64(a.Data[i*8:])))
		}
	case Uint8:
		for i := range out {
			out[i] = float64(a.Data[i])
		}
	default:
		return nil, ErrUnknownDType
	}

	return out, nil
}

// FromFloat64Values narrows float64 values back into an array of the given
// element type and shape.
func FromFloat64Values(dtype DType, shape []int, values []float64) (NumericArray, error) {
	a := NumericArray{DType: dtype, Shape: shape}
	n := a.NumElems()
	if n != len(values) {
		return NumericArray{}, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(values), shape)
	}

	a.Data = make([]byte, n*dtype.Size())
	switch dtype {
	case Float32:
		for i, v := range values {
			binary.LittleEndian.PutUint32(a.Data[i*4:], math.Float32bits(float32(v)))
		}
	case Float64:
		for i, v := range values {
			binary.LittleEndian.PutUint64(a.Data[i*8:], math.Float64bits(v))
		}
	case Int32:
		for i, v := range values {
			binary.LittleEndian.PutUint32(a.Data[i*4:], uint32(int32(v)))
		}
	case Int64:
		for i, v := range values {
			binary.LittleEndian.PutUint64(a.Data[i*8:], uint64(int64(v)))
		}
	case Uint8:
		for i, v := range values {
			a.Data[i] = byte(v)
		}
	default:
		return NumericArray{}, ErrUnknownDType
	}

	return a, nil
}

// Codec encodes numeric arrays into self-describing byte tensors and back.
// Encode and Decode are mutual inverses for every supported element type,
// including arrays with a zero dimension. Decode performs a pure binary
// parse; encoded content is never executed.
type Codec interface {
	Encode(a NumericArray) ([]byte, error)
	Decode(data []byte) (NumericArray, error)
	Type() string
}

// Lookup resolves a tensor-type tag to its codec.
func Lookup(tensorType string) (Codec, error) {
	switch tensorType {
	case TypeDense:
		return DenseCodec{}, nil
	case TypeSparse:
		return SparseCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTensorType, tensorType)
	}
}
