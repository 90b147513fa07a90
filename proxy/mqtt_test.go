package proxy_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	pkgmqtt "github.com/absmach/flock/pkg/mqtt"
	"github.com/absmach/flock/proxy"
	"github.com/absmach/flock/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoPubSub answers every request envelope on a client's request topic
// with a canned result on its response topic.
type echoPubSub struct {
	mu       sync.Mutex
	handlers map[string]pkgmqtt.Handler
	respond  func(req wire.Request) wire.Response
}

func newEchoPubSub(respond func(req wire.Request) wire.Response) *echoPubSub {
	return &echoPubSub{
		handlers: make(map[string]pkgmqtt.Handler),
		respond:  respond,
	}
}

func (e *echoPubSub) Publish(_ context.Context, topic string, payload []byte) error {
	var req wire.Request
	if err := wire.Unmarshal(payload, &req); err != nil {
		return err
	}

	resp := e.respond(req)
	data, err := wire.Marshal(resp)
	if err != nil {
		return err
	}

	responseTopic := topic[:len(topic)-len("requests")] + "responses"
	e.mu.Lock()
	handler := e.handlers[responseTopic]
	e.mu.Unlock()
	if handler == nil {
		return nil
	}

	go func() { _ = handler(responseTopic, data) }()

	return nil
}

func (e *echoPubSub) Subscribe(_ context.Context, topic string, handler pkgmqtt.Handler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[topic] = handler

	return nil
}

func (e *echoPubSub) Unsubscribe(_ context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, topic)

	return nil
}

func (e *echoPubSub) Disconnect(_ context.Context) error { return nil }

func TestMQTTProxyRoundTrip(t *testing.T) {
	ps := newEchoPubSub(func(req wire.Request) wire.Response {
		payload, err := wire.Marshal(wire.FitRes{Status: wire.StatusOK(), NumExamples: 9})
		require.NoError(t, err)

		return wire.Response{ID: req.ID, Op: req.Op, Payload: payload}
	})

	p := proxy.NewMQTT("edge-1", ps)
	require.NoError(t, p.Listen(context.Background()))

	res, err := p.Fit(context.Background(), 2, wire.FitIns{}, time.Second)
	require.NoError(t, err)
	assert.True(t, res.Status.OK())
	assert.Equal(t, uint64(9), res.NumExamples)
}

func TestMQTTProxyEnvelopeError(t *testing.T) {
	ps := newEchoPubSub(func(req wire.Request) wire.Response {
		return wire.Response{ID: req.ID, Op: req.Op, Error: "handler exploded"}
	})

	p := proxy.NewMQTT("edge-2", ps)
	require.NoError(t, p.Listen(context.Background()))

	_, err := p.Fit(context.Background(), 1, wire.FitIns{}, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, proxy.ErrTransport)
	assert.Contains(t, err.Error(), "handler exploded")
}

func TestMQTTProxyTimeout(t *testing.T) {
	// A responder that answers under a different correlation ID never
	// completes the pending call.
	ps := newEchoPubSub(func(req wire.Request) wire.Response {
		return wire.Response{ID: fmt.Sprintf("not-%s", req.ID), Op: req.Op}
	})

	p := proxy.NewMQTT("edge-3", ps)
	require.NoError(t, p.Listen(context.Background()))

	_, err := p.Fit(context.Background(), 1, wire.FitIns{}, 30*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, proxy.ErrTransport)
}
