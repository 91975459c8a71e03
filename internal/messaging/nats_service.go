package messaging

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/config"
	"github.com/loqalabs/loqa-voicechat/internal/events"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
)

// ErrNotConnected is returned when publishing before Connect
var ErrNotConnected = errors.New("NATS connection not established")

// Subject suffixes appended to the configured base subject
const (
	SuffixCompleted = "completed"
	SuffixFailed    = "failed"
)

// EventPublisher delivers finished turn events to interested listeners
type EventPublisher interface {
	PublishTurnEvent(event *events.TurnEvent) error
	Close()
}

// conn is the subset of *nats.Conn the service relies on
type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	IsConnected() bool
	Stats() nats.Statistics
	Close()
}

// NATSService publishes turn events over NATS
type NATSService struct {
	conn conn
	cfg  config.NATSConfig
}

// NewNATSService creates a new NATS service instance
func NewNATSService(cfg config.NATSConfig) *NATSService {
	return &NATSService{cfg: cfg}
}

// Connect establishes connection to NATS server
func (ns *NATSService) Connect() error {
	logging.LogNATSEvent(ns.cfg.URL, "connecting")

	opts := []nats.Option{
		nats.Name("loqa-voicechat"),
		nats.ReconnectWait(ns.cfg.ReconnectWait),
		nats.MaxReconnects(ns.cfg.MaxReconnect),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.LogWarn("⚠️  NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.LogNATSEvent(nc.ConnectedUrl(), "reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.LogNATSEvent(ns.cfg.URL, "closed")
		}),
	}

	nc, err := nats.Connect(ns.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	ns.conn = nc
	logging.LogNATSEvent(nc.ConnectedUrl(), "connected")
	return nil
}

// SubjectFor returns the subject a turn event is published on
func (ns *NATSService) SubjectFor(event *events.TurnEvent) string {
	suffix := SuffixCompleted
	if !event.Success {
		suffix = SuffixFailed
	}
	return ns.cfg.Subject + "." + suffix
}

// PublishTurnEvent publishes a finished turn event as JSON
func (ns *NATSService) PublishTurnEvent(event *events.TurnEvent) error {
	if ns.conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal turn event: %w", err)
	}

	subject := ns.SubjectFor(event)
	if err := ns.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	logging.LogNATSEvent(subject, "published",
		zap.String("event_uuid", event.UUID),
		zap.String("session_id", event.SessionID),
		zap.Bool("success", event.Success),
	)
	return nil
}

// SubscribeToTurnEvents delivers every turn event published under the base subject
func (ns *NATSService) SubscribeToTurnEvents(handler func(*events.TurnEvent)) (*nats.Subscription, error) {
	if ns.conn == nil {
		return nil, ErrNotConnected
	}

	return ns.conn.Subscribe(ns.cfg.Subject+".>", func(msg *nats.Msg) {
		var event events.TurnEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logging.LogError(err, "❌ Error unmarshaling turn event", zap.String("subject", msg.Subject))
			return
		}

		logging.LogNATSEvent(msg.Subject, "received", zap.String("event_uuid", event.UUID))
		handler(&event)
	})
}

// Close closes the NATS connection
func (ns *NATSService) Close() {
	if ns.conn != nil {
		ns.conn.Close()
	}
}

// IsConnected returns true if connected to NATS
func (ns *NATSService) IsConnected() bool {
	return ns.conn != nil && ns.conn.IsConnected()
}

// GetStats returns connection statistics
func (ns *NATSService) GetStats() nats.Statistics {
	if ns.conn != nil {
		return ns.conn.Stats()
	}
	return nats.Statistics{}
}

// NoopPublisher drops events; used when NATS_URL is empty
type NoopPublisher struct{}

// PublishTurnEvent implements EventPublisher
func (NoopPublisher) PublishTurnEvent(*events.TurnEvent) error { return nil }

// Close implements EventPublisher
func (NoopPublisher) Close() {}
