package wire_test

import (
	"testing"

	"github.com/absmach/flock/pkg/codec"
	"github.com/absmach/flock/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		desc   string
		config wire.Config
		err    error
	}{
		{
			desc:   "empty config",
			config: wire.Config{},
			err:    nil,
		},
		{
			desc: "all scalar kinds",
			config: wire.Config{
				"bool":    true,
				"string":  "value",
				"int":     3,
				"int64":   int64(-9),
				"uint32":  uint32(7),
				"float32": float32(1.5),
				"float64": 2.5,
			},
			err: nil,
		},
		{
			desc:   "slice value",
			config: wire.Config{"values": []float64{1, 2}},
			err:    wire.ErrNonScalarValue,
		},
		{
			desc:   "nested map",
			config: wire.Config{"nested": map[string]any{"a": 1}},
			err:    wire.ErrNonScalarValue,
		},
		{
			desc:   "nil value",
			config: wire.Config{"absent": nil},
			err:    wire.ErrNonScalarValue,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.err == nil {
				assert.NoError(t, err)

				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestConfigAccessors(t *testing.T) {
	c := wire.Config{
		"float":  2.5,
		"int":    uint16(9),
		"string": "hello",
		"bool":   true,
	}

	f, ok := c.Float64("float")
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)

	f, ok = c.Float64("int")
	assert.True(t, ok)
	assert.Equal(t, 9.0, f)

	i, ok := c.Int64("int")
	assert.True(t, ok)
	assert.Equal(t, int64(9), i)

	s, ok := c.String("string")
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	b, ok := c.Bool("bool")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = c.Float64("missing")
	assert.False(t, ok)
	_, ok = c.Int64("string")
	assert.False(t, ok)
}

func TestFitResRoundTrip(t *testing.T) {
	in := wire.FitRes{
		Status: wire.StatusOK(),
		Parameters: wire.Parameters{
			Tensors:    [][]byte{{1, 2, 3}, {4}, {}},
			TensorType: codec.TypeDense,
		},
		NumExamples: 42,
		Metrics:     wire.Config{"loss": 0.5},
	}

	data, err := wire.Marshal(in)
	require.NoError(t, err)

	var out wire.FitRes
	require.NoError(t, wire.Unmarshal(data, &out))

	assert.Equal(t, in.Status, out.Status)
	assert.Equal(t, in.NumExamples, out.NumExamples)
	assert.Equal(t, in.Parameters.TensorType, out.Parameters.TensorType)
	require.Len(t, out.Parameters.Tensors, len(in.Parameters.Tensors))
	for i := range in.Parameters.Tensors {
		assert.Equal(t, in.Parameters.Tensors[i], out.Parameters.Tensors[i])
	}
	loss, ok := out.Metrics.Float64("loss")
	assert.True(t, ok)
	assert.Equal(t, 0.5, loss)
}

func TestParametersPreserveTensorOrder(t *testing.T) {
	dense, err := codec.Lookup(codec.TypeDense)
	require.NoError(t, err)

	arrays := []codec.NumericArray{
		codec.NewFloat32Array([]int{2}, []float32{1, 2}),
		codec.NewFloat32Array([]int{1}, []float32{3}),
		codec.NewFloat32Array([]int{3}, []float32{4, 5, 6}),
	}

	params, err := wire.FromArrays(arrays, dense)
	require.NoError(t, err)

	data, err := wire.Marshal(params)
	require.NoError(t, err)
	var decoded wire.Parameters
	require.NoError(t, wire.Unmarshal(data, &decoded))

	got, err := wire.ToArrays(decoded)
	require.NoError(t, err)
	require.Len(t, got, len(arrays))
	for i := range arrays {
		assert.True(t, arrays[i].Equal(got[i]), "tensor %d out of order or altered", i)
	}
}

func TestToArraysCorruptTensor(t *testing.T) {
	params := wire.Parameters{
		Tensors:    [][]byte{{0xde, 0xad}},
		TensorType: codec.TypeDense,
	}

	_, err := wire.ToArrays(params)
	assert.ErrorIs(t, err, codec.ErrCorruptTensor)
}

func TestRequestEnvelopeRoundTrip(t *testing.T) {
	payload, err := wire.Marshal(wire.FitIns{Config: wire.Config{"epochs": 3}})
	require.NoError(t, err)

	req := wire.Request{
		ID:      "req-1",
		Round:   7,
		Op:      wire.OpFit,
		Payload: payload,
	}
	data, err := wire.Marshal(req)
	require.NoError(t, err)

	var out wire.Request
	require.NoError(t, wire.Unmarshal(data, &out))
	assert.Equal(t, req.ID, out.ID)
	assert.Equal(t, req.Round, out.Round)
	assert.Equal(t, req.Op, out.Op)

	var ins wire.FitIns
	require.NoError(t, wire.Unmarshal(out.Payload, &ins))
	epochs, ok := ins.Config.Int64("epochs")
	assert.True(t, ok)
	assert.Equal(t, int64(3), epochs)
}
