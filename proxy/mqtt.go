package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/absmach/flock/pkg/mqtt"
	"github.com/absmach/flock/wire"
	"github.com/google/uuid"
)

var (
	RequestTopicTemplate  = "flock/clients/%s/requests"
	ResponseTopicTemplate = "flock/clients/%s/responses"
)

var _ ClientProxy = (*MQTT)(nil)

// MQTT serves a participant connected over an MQTT broker. Instructions are
// published as CBOR request envelopes and results are matched back by
// correlation ID.
type MQTT struct {
	id     string
	pubsub mqtt.PubSub

	mu      sync.Mutex
	pending map[string]chan wire.Response
}

func NewMQTT(id string, pubsub mqtt.PubSub) *MQTT {
	return &MQTT{
		id:      id,
		pubsub:  pubsub,
		pending: make(map[string]chan wire.Response),
	}
}

func (p *MQTT) ID() string { return p.id }

// Listen subscribes to the participant's response topic. It must be called
// once before any client call is dispatched through this proxy.
func (p *MQTT) Listen(ctx context.Context) error {
	topic := fmt.Sprintf(ResponseTopicTemplate, p.id)

	return p.pubsub.Subscribe(ctx, topic, func(_ string, payload []byte) error {
		var resp wire.Response
		if err := wire.Unmarshal(payload, &resp); err != nil {
			return err
		}

		p.mu.Lock()
		ch, ok := p.pending[resp.ID]
		if ok {
			delete(p.pending, resp.ID)
		}
		p.mu.Unlock()

		if ok {
			ch <- resp
		}

		return nil
	})
}

func (p *MQTT) Close(ctx context.Context) error {
	return p.pubsub.Unsubscribe(ctx, fmt.Sprintf(ResponseTopicTemplate, p.id))
}

func (p *MQTT) GetParameters(ctx context.Context, round uint64, ins wire.GetParametersIns, timeout time.Duration) (wire.GetParametersRes, error) {
	return roundTrip[wire.GetParametersRes](ctx, p, round, wire.OpGetParameters, ins, timeout)
}

func (p *MQTT) Fit(ctx context.Context, round uint64, ins wire.FitIns, timeout time.Duration) (wire.FitRes, error) {
	return roundTrip[wire.FitRes](ctx, p, round, wire.OpFit, ins, timeout)
}

func (p *MQTT) Evaluate(ctx context.Context, round uint64, ins wire.EvaluateIns, timeout time.Duration) (wire.EvaluateRes, error) {
	return roundTrip[wire.EvaluateRes](ctx, p, round, wire.OpEvaluate, ins, timeout)
}

func roundTrip[T any](ctx context.Context, p *MQTT, round uint64, op wire.Op, ins any, timeout time.Duration) (T, error) {
	var zero T

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload, err := wire.Marshal(ins)
	if err != nil {
		return zero, err
	}

	req := wire.Request{
		ID:      uuid.NewString(),
		Round:   round,
		Op:      op,
		Payload: payload,
	}
	data, err := wire.Marshal(req)
	if err != nil {
		return zero, err
	}

	ch := make(chan wire.Response, 1)
	p.mu.Lock()
	p.pending[req.ID] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, req.ID)
		p.mu.Unlock()
	}()

	topic := fmt.Sprintf(RequestTopicTemplate, p.id)
	if err := p.pubsub.Publish(ctx, topic, data); err != nil {
		return zero, fmt.Errorf("%w: publish to %s: %s", ErrTransport, p.id, err)
	}

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: client %s %s in round %d: %s", ErrTransport, p.id, op, round, ctx.Err())
	case resp := <-ch:
		if resp.Error != "" {
			return zero, fmt.Errorf("%w: client %s %s: %s", ErrTransport, p.id, op, resp.Error)
		}

		var res T
		if err := wire.Unmarshal(resp.Payload, &res); err != nil {
			return zero, fmt.Errorf("%w: client %s %s: %s", ErrTransport, p.id, op, err)
		}

		return res, nil
	}
}
