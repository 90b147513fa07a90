package client

import (
	"context"

	"github.com/absmach/flock/pkg/codec"
	"github.com/absmach/flock/wire"
)

var _ Client = (*arrayClientAdapter)(nil)

type arrayClientAdapter struct {
	inner ArrayClient
	codec codec.Codec
}

// FromArrayClient wraps an ArrayClient into the strict capability set. The
// adapter is pure glue: it converts parameter sets to arrays and back with
// the given codec and wraps results in a Status envelope. A failing inner
// call becomes a ClientError status, never an error past the adapter.
func FromArrayClient(inner ArrayClient, c codec.Codec) Client {
	return &arrayClientAdapter{inner: inner, codec: c}
}

func (a *arrayClientAdapter) GetParameters(ctx context.Context, _ wire.GetParametersIns) (wire.GetParametersRes, error) {
	arrays, err := a.inner.Parameters(ctx)
	if err != nil {
		return wire.GetParametersRes{Status: wire.ClientError(err.Error())}, nil
	}

	params, err := wire.FromArrays(arrays, a.codec)
	if err != nil {
		return wire.GetParametersRes{Status: wire.ClientError(err.Error())}, nil
	}

	return wire.GetParametersRes{Status: wire.StatusOK(), Parameters: params}, nil
}

func (a *arrayClientAdapter) Fit(ctx context.Context, ins wire.FitIns) (wire.FitRes, error) {
	arrays, err := wire.ToArrays(ins.Parameters)
	if err != nil {
		return wire.FitRes{Status: wire.ClientError(err.Error())}, nil
	}

	updated, numExamples, metrics, err := a.inner.Fit(ctx, arrays, ins.Config)
	if err != nil {
		return wire.FitRes{Status: wire.ClientError(err.Error())}, nil
	}

	params, err := wire.FromArrays(updated, a.codec)
	if err != nil {
		return wire.FitRes{Status: wire.ClientError(err.Error())}, nil
	}

	return wire.FitRes{
		Status:      wire.StatusOK(),
		Parameters:  params,
		NumExamples: numExamples,
		Metrics:     metrics,
	}, nil
}

func (a *arrayClientAdapter) Evaluate(ctx context.Context, ins wire.EvaluateIns) (wire.EvaluateRes, error) {
	arrays, err := wire.ToArrays(ins.Parameters)
	if err != nil {
		return wire.EvaluateRes{Status: wire.ClientError(err.Error())}, nil
	}

	loss, numExamples, metrics, err := a.inner.Evaluate(ctx, arrays, ins.Config)
	if err != nil {
		return wire.EvaluateRes{Status: wire.ClientError(err.Error())}, nil
	}

	return wire.EvaluateRes{
		Status:      wire.StatusOK(),
		Loss:        loss,
		NumExamples: numExamples,
		Metrics:     metrics,
	}, nil
}
