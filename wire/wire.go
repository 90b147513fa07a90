// Package wire defines the messages exchanged between the coordinator and
// training participants. Every message survives a byte-oriented transport:
// tensors travel as opaque byte slices and the envelope is CBOR.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Code classifies a client-facing response.
type Code string

const (
	CodeOK                          Code = "ok"
	CodeGetParametersNotImplemented Code = "get_parameters_not_implemented"
	CodeFitNotImplemented           Code = "fit_not_implemented"
	CodeEvaluateNotImplemented      Code = "evaluate_not_implemented"
	CodeClientError                 Code = "client_error"
)

// Status accompanies every client-facing response.
type Status struct {
	Code    Code   `json:"code"    cbor:"1,keyasint"`
	Message string `json:"message" cbor:"2,keyasint"`
}

func (s Status) OK() bool { return s.Code == CodeOK }

func StatusOK() Status { return Status{Code: CodeOK} }

func ClientError(msg string) Status {
	return Status{Code: CodeClientError, Message: msg}
}

// Parameters is the wire-level representation of model state: an ordered
// sequence of encoded tensors plus the tag of the encoding that produced
// them. Order is significant, it carries the positional correspondence to
// named model weights and must be preserved symmetrically on both ends.
type Parameters struct {
	Tensors    [][]byte `json:"tensors"     cbor:"1,keyasint"`
	TensorType string   `json:"tensor_type" cbor:"2,keyasint"`
}

type GetParametersIns struct {
	Config Config `json:"config" cbor:"1,keyasint"`
}

type GetParametersRes struct {
	Status     Status     `json:"status"     cbor:"1,keyasint"`
	Parameters Parameters `json:"parameters" cbor:"2,keyasint"`
}

type FitIns struct {
	Parameters Parameters `json:"parameters" cbor:"1,keyasint"`
	Config     Config     `json:"config"     cbor:"2,keyasint"`
}

type FitRes struct {
	Status      Status     `json:"status"       cbor:"1,keyasint"`
	Parameters  Parameters `json:"parameters"   cbor:"2,keyasint"`
	NumExamples uint64     `json:"num_examples" cbor:"3,keyasint"`
	Metrics     Config     `json:"metrics"      cbor:"4,keyasint"`
}

type EvaluateIns struct {
	Parameters Parameters `json:"parameters" cbor:"1,keyasint"`
	Config     Config     `json:"config"     cbor:"2,keyasint"`
}

type EvaluateRes struct {
	Status      Status  `json:"status"       cbor:"1,keyasint"`
	Loss        float64 `json:"loss"         cbor:"2,keyasint"`
	NumExamples uint64  `json:"num_examples" cbor:"3,keyasint"`
	Metrics     Config  `json:"metrics"      cbor:"4,keyasint"`
}

// Marshal encodes a wire message with CBOR.
func Marshal(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

// Unmarshal decodes a wire message. CBOR decoding is a pure data parse; no
// embedded content is ever executed.
func Unmarshal(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode wire message: %w", err)
	}

	return nil
}
