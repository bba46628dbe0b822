package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HubMetrics carries the realtime hub's metric instruments. A nil *HubMetrics
// is valid and records nothing, so the hub can run without telemetry.
type HubMetrics struct {
	connectionsActive    metric.Int64UpDownCounter
	usersOnline          metric.Int64UpDownCounter
	subscriptionsActive  metric.Int64UpDownCounter
	messagesTotal        metric.Int64Counter
	broadcastsTotal      metric.Int64Counter
	broadcastFanout      metric.Int64Histogram
	callRelaysTotal      metric.Int64Counter
	presenceUpdatesTotal metric.Int64Counter
	droppedSendsTotal    metric.Int64Counter
	handshakeFailures    metric.Int64Counter
}

// NewHubMetrics creates the hub instrument set on the given meter
func NewHubMetrics(meter metric.Meter) (*HubMetrics, error) {
	m := &HubMetrics{}
	var err error

	m.connectionsActive, err = meter.Int64UpDownCounter(
		"realtime_connections_active",
		metric.WithDescription("Number of active WebSocket connections"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connections counter: %w", err)
	}

	m.usersOnline, err = meter.Int64UpDownCounter(
		"realtime_users_online",
		metric.WithDescription("Number of users with at least one live connection"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create users counter: %w", err)
	}

	m.subscriptionsActive, err = meter.Int64UpDownCounter(
		"realtime_subscriptions_active",
		metric.WithDescription("Number of live workspace subscriptions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions counter: %w", err)
	}

	m.messagesTotal, err = meter.Int64Counter(
		"realtime_messages_total",
		metric.WithDescription("Total inbound WebSocket messages by type"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messages counter: %w", err)
	}

	m.broadcastsTotal, err = meter.Int64Counter(
		"realtime_broadcasts_total",
		metric.WithDescription("Total workspace broadcasts by event type"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcasts counter: %w", err)
	}

	m.broadcastFanout, err = meter.Int64Histogram(
		"realtime_broadcast_fanout",
		metric.WithDescription("Connections reached per broadcast"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fanout histogram: %w", err)
	}

	m.callRelaysTotal, err = meter.Int64Counter(
		"realtime_call_relays_total",
		metric.WithDescription("Total relayed call signaling messages by kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create call relays counter: %w", err)
	}

	m.presenceUpdatesTotal, err = meter.Int64Counter(
		"realtime_presence_updates_total",
		metric.WithDescription("Total presence transitions by resulting status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create presence counter: %w", err)
	}

	m.droppedSendsTotal, err = meter.Int64Counter(
		"realtime_dropped_sends_total",
		metric.WithDescription("Connections dropped because their send buffer was full"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dropped sends counter: %w", err)
	}

	m.handshakeFailures, err = meter.Int64Counter(
		"realtime_handshake_failures_total",
		metric.WithDescription("Rejected WebSocket handshakes by reason"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake failures counter: %w", err)
	}

	return m, nil
}

// ConnectionOpened records a new WebSocket connection
func (m *HubMetrics) ConnectionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.connectionsActive.Add(ctx, 1)
}

// ConnectionClosed records a closed WebSocket connection
func (m *HubMetrics) ConnectionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.connectionsActive.Add(ctx, -1)
}

// UserOnline records a user gaining their first live connection
func (m *HubMetrics) UserOnline(ctx context.Context) {
	if m == nil {
		return
	}
	m.usersOnline.Add(ctx, 1)
}

// UserOffline records a user losing their last live connection
func (m *HubMetrics) UserOffline(ctx context.Context) {
	if m == nil {
		return
	}
	m.usersOnline.Add(ctx, -1)
}

// SubscriptionAdded records a new workspace subscription
func (m *HubMetrics) SubscriptionAdded(ctx context.Context) {
	if m == nil {
		return
	}
	m.subscriptionsActive.Add(ctx, 1)
}

// SubscriptionRemoved records a removed workspace subscription
func (m *HubMetrics) SubscriptionRemoved(ctx context.Context) {
	if m == nil {
		return
	}
	m.subscriptionsActive.Add(ctx, -1)
}

// MessageReceived records an inbound client message
func (m *HubMetrics) MessageReceived(ctx context.Context, messageType string) {
	if m == nil {
		return
	}
	m.messagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("message_type", messageType)))
}

// BroadcastSent records one broadcast and its fanout
func (m *HubMetrics) BroadcastSent(ctx context.Context, eventType string, fanout int) {
	if m == nil {
		return
	}
	m.broadcastsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
	m.broadcastFanout.Record(ctx, int64(fanout))
}

// CallRelayed records one relayed call signaling message
func (m *HubMetrics) CallRelayed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.callRelaysTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// PresenceUpdated records a presence transition
func (m *HubMetrics) PresenceUpdated(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.presenceUpdatesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// SendDropped records a connection dropped for having a full send buffer
func (m *HubMetrics) SendDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.droppedSendsTotal.Add(ctx, 1)
}

// HandshakeFailed records a rejected WebSocket handshake
func (m *HubMetrics) HandshakeFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.handshakeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
