package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/flock/client"
	"github.com/absmach/flock/wire"
)

var _ ClientProxy = (*InProcess)(nil)

// InProcess serves a client living in the same process, the transport used
// by simulations and tests. Calls run in their own goroutine so a client
// that ignores its context still cannot hold a round past its deadline.
type InProcess struct {
	id     string
	client client.Client
	logger *slog.Logger
}

func NewInProcess(id string, c client.Client, logger *slog.Logger) *InProcess {
	return &InProcess{id: id, client: c, logger: logger}
}

func (p *InProcess) ID() string { return p.id }

func (p *InProcess) GetParameters(ctx context.Context, round uint64, ins wire.GetParametersIns, timeout time.Duration) (wire.GetParametersRes, error) {
	return call(ctx, p, round, wire.OpGetParameters, timeout, func(ctx context.Context) (wire.GetParametersRes, error) {
		return p.client.GetParameters(ctx, ins)
	})
}

func (p *InProcess) Fit(ctx context.Context, round uint64, ins wire.FitIns, timeout time.Duration) (wire.FitRes, error) {
	return call(ctx, p, round, wire.OpFit, timeout, func(ctx context.Context) (wire.FitRes, error) {
		return p.client.Fit(ctx, ins)
	})
}

func (p *InProcess) Evaluate(ctx context.Context, round uint64, ins wire.EvaluateIns, timeout time.Duration) (wire.EvaluateRes, error) {
	return call(ctx, p, round, wire.OpEvaluate, timeout, func(ctx context.Context) (wire.EvaluateRes, error) {
		return p.client.Evaluate(ctx, ins)
	})
}

func call[T any](ctx context.Context, p *InProcess, round uint64, op wire.Op, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p.logger.Debug("dispatching client call",
		slog.String("client_id", p.id),
		slog.Uint64("round", round),
		slog.String("op", string(op)),
	)

	type outcome struct {
		res T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := fn(ctx)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: client %s %s in round %d: %s", ErrTransport, p.id, op, round, ctx.Err())
	case o := <-ch:
		if o.err != nil {
			return zero, errors.Join(ErrTransport, o.err)
		}

		return o.res, nil
	}
}
