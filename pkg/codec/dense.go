package codec

import (
	"encoding/binary"
	"fmt"
)

// TypeDense tags tensors encoded as a byte-exact copy of the array behind a
// shape/dtype header.
const TypeDense = "flock.dense.v1"

const (
	denseMagic = "FDT1"
	maxRank    = 255
)

// DenseCodec lays a tensor out as:
//
//	magic(4) | dtype(1) | rank(1) | dims(rank x uint32 LE) | payload
type DenseCodec struct{}

func (DenseCodec) Type() string { return TypeDense }

func (DenseCodec) Encode(a NumericArray) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if len(a.Shape) > maxRank {
		return nil, fmt.Errorf("%w: rank %d exceeds %d", ErrShapeMismatch, len(a.Shape), maxRank)
	}

	buf := make([]byte, 0, 6+4*len(a.Shape)+len(a.Data))
	buf = append(buf, denseMagic...)
	buf = append(buf, byte(a.DType), byte(len(a.Shape)))
	for _, d := range a.Shape {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(d))
	}
	buf = append(buf, a.Data...)

	return buf, nil
}

func (DenseCodec) Decode(data []byte) (NumericArray, error) {
	if len(data) < 6 || string(data[:4]) != denseMagic {
		return NumericArray{}, fmt.Errorf("%w: bad dense header", ErrCorruptTensor)
	}

	dtype := DType(data[4])
	if dtype.Size() == 0 {
		return NumericArray{}, fmt.Errorf("%w: %w %d", ErrCorruptTensor, ErrUnknownDType, data[4])
	}

	rank := int(data[5])
	rest := data[6:]
	if len(rest) < 4*rank {
		return NumericArray{}, fmt.Errorf("%w: truncated shape", ErrCorruptTensor)
	}

	payload := rest[4*rank:]

	// The element product saturates just past the payload's capacity, so
	// oversized dims cannot wrap it while a zero dim later in the shape
	// still zeroes it.
	limit := uint64(len(payload) / dtype.Size())
	elems := uint64(1)
	shape := make([]int, rank)
	for i := range shape {
		shape[i] = int(binary.LittleEndian.Uint32(rest[i*4:]))
		elems *= uint64(shape[i])
		if elems > limit {
			elems = limit + 1
		}
	}
	if uint64(len(payload)) != elems*uint64(dtype.Size()) {
		return NumericArray{}, fmt.Errorf("%w: shape %v does not account for %d payload bytes",
			ErrCorruptTensor, shape, len(payload))
	}

	out := NumericArray{DType: dtype, Shape: shape, Data: make([]byte, len(payload))}
	copy(out.Data, payload)

	return out, nil
}
