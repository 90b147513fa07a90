// Package participant runs a federated client at the network edge: it
// announces itself to the coordinator over MQTT, answers instruction
// envelopes with the local client's results, and beacons liveness.
package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/flock/client"
	pkgmqtt "github.com/absmach/flock/pkg/mqtt"
	"github.com/absmach/flock/wire"
)

const announceTopic = "flock/clients/announce"

var ErrUnknownOp = errors.New("unknown operation")

type Service struct {
	id               string
	client           client.Client
	pubsub           pkgmqtt.PubSub
	livenessInterval time.Duration
	logger           *slog.Logger
}

func NewService(ctx context.Context, id string, c client.Client, livenessInterval time.Duration, pubsub pkgmqtt.PubSub, logger *slog.Logger) (*Service, error) {
	s := &Service{
		id:               id,
		client:           c,
		pubsub:           pubsub,
		livenessInterval: livenessInterval,
		logger:           logger,
	}

	if err := s.announce(ctx, wire.AnnounceJoin); err != nil {
		return nil, errors.Join(errors.New("failed to publish join announcement"), err)
	}

	go s.startLivenessUpdates(ctx)

	return s, nil
}

func (s *Service) announce(ctx context.Context, status string) error {
	payload, err := wire.Marshal(wire.Announcement{ClientID: s.id, Status: status})
	if err != nil {
		return err
	}

	return s.pubsub.Publish(ctx, announceTopic, payload)
}

func (s *Service) startLivenessUpdates(ctx context.Context) {
	ticker := time.NewTicker(s.livenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping liveness updates")

			return
		case <-ticker.C:
			if err := s.announce(ctx, wire.AnnounceAlive); err != nil {
				s.logger.Error("failed to publish liveness message", slog.Any("error", err))
			}

			s.logger.Debug("Published liveness message", slog.String("topic", announceTopic))
		}
	}
}

// Run subscribes to this participant's request topic and serves
// instructions until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	topic := fmt.Sprintf("flock/clients/%s/requests", s.id)
	if err := s.pubsub.Subscribe(ctx, topic, s.handleRequest(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to request topic: %w", err)
	}

	s.logger.Info("participant service is running", slog.String("client_id", s.id))
	<-ctx.Done()

	return s.pubsub.Unsubscribe(context.WithoutCancel(ctx), topic)
}

func (s *Service) handleRequest(ctx context.Context) pkgmqtt.Handler {
	return func(_ string, payload []byte) error {
		var req wire.Request
		if err := wire.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("malformed request envelope: %w", err)
		}

		s.logger.Debug("handling instruction",
			slog.String("op", string(req.Op)),
			slog.Uint64("round", req.Round),
			slog.String("request_id", req.ID),
		)

		resp := wire.Response{ID: req.ID, Op: req.Op}
		result, err := s.dispatch(ctx, req)
		switch {
		case err != nil:
			resp.Error = err.Error()
		default:
			resp.Payload = result
		}

		data, err := wire.Marshal(resp)
		if err != nil {
			return fmt.Errorf("failed to serialize response envelope: %w", err)
		}

		topic := fmt.Sprintf("flock/clients/%s/responses", s.id)

		return s.pubsub.Publish(ctx, topic, data)
	}
}

func (s *Service) dispatch(ctx context.Context, req wire.Request) ([]byte, error) {
	switch req.Op {
	case wire.OpGetParameters:
		var ins wire.GetParametersIns
		if err := wire.Unmarshal(req.Payload, &ins); err != nil {
			return nil, err
		}
		res, err := s.client.GetParameters(ctx, ins)
		if err != nil {
			return nil, err
		}

		return wire.Marshal(res)
	case wire.OpFit:
		var ins wire.FitIns
		if err := wire.Unmarshal(req.Payload, &ins); err != nil {
			return nil, err
		}
		res, err := s.client.Fit(ctx, ins)
		if err != nil {
			return nil, err
		}

		return wire.Marshal(res)
	case wire.OpEvaluate:
		var ins wire.EvaluateIns
		if err := wire.Unmarshal(req.Payload, &ins); err != nil {
			return nil, err
		}
		res, err := s.client.Evaluate(ctx, ins)
		if err != nil {
			return nil, err
		}

		return wire.Marshal(res)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOp, req.Op)
	}
}
