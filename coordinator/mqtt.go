package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/absmach/flock/pkg/mqtt"
	"github.com/absmach/flock/proxy"
	"github.com/absmach/flock/wire"
)

// MembershipTopic receives join and liveness announcements from
// participants.
const MembershipTopic = "flock/clients/announce"

// Membership wires broker-side participant lifecycle into the registry: a
// join announcement creates an MQTT client proxy and starts its response
// listener, an offline last-will tears it down.
type Membership struct {
	pubsub   mqtt.PubSub
	registry *Registry
	logger   *slog.Logger
}

func NewMembership(pubsub mqtt.PubSub, registry *Registry, logger *slog.Logger) *Membership {
	return &Membership{
		pubsub:   pubsub,
		registry: registry,
		logger:   logger,
	}
}

func (m *Membership) Start(ctx context.Context) error {
	if err := m.pubsub.Subscribe(ctx, MembershipTopic, m.handleAnnouncement(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to membership topic: %w", err)
	}
	if err := m.pubsub.Subscribe(ctx, mqtt.OfflineTopic, m.handleOffline(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to offline topic: %w", err)
	}

	return nil
}

func (m *Membership) Stop(ctx context.Context) error {
	if err := m.pubsub.Unsubscribe(ctx, MembershipTopic); err != nil {
		return err
	}

	return m.pubsub.Unsubscribe(ctx, mqtt.OfflineTopic)
}

func (m *Membership) handleAnnouncement(ctx context.Context) mqtt.Handler {
	return func(_ string, payload []byte) error {
		var ann wire.Announcement
		if err := wire.Unmarshal(payload, &ann); err != nil {
			return fmt.Errorf("malformed announcement: %w", err)
		}
		if ann.ClientID == "" {
			return fmt.Errorf("announcement without client id")
		}

		if _, err := m.registry.Get(ctx, ann.ClientID); err == nil {
			// Liveness beacons from known participants need no action.
			return nil
		}

		p := proxy.NewMQTT(ann.ClientID, m.pubsub)
		if err := p.Listen(ctx); err != nil {
			return fmt.Errorf("failed to listen for %s responses: %w", ann.ClientID, err)
		}
		if err := m.registry.Register(ctx, p); err != nil {
			return err
		}
		m.logger.Info("participant registered",
			slog.String("client_id", ann.ClientID),
			slog.String("status", ann.Status),
		)

		return nil
	}
}

func (m *Membership) handleOffline(ctx context.Context) mqtt.Handler {
	return func(_ string, payload []byte) error {
		id := string(payload)
		p, err := m.registry.Get(ctx, id)
		if err != nil {
			return nil
		}

		if mp, ok := p.(*proxy.MQTT); ok {
			if err := mp.Close(ctx); err != nil {
				m.logger.Warn("failed to close proxy subscription",
					slog.String("client_id", id), slog.Any("error", err))
			}
		}
		if err := m.registry.Unregister(ctx, id); err != nil {
			return err
		}
		m.logger.Info("participant unregistered", slog.String("client_id", id))

		return nil
	}
}
