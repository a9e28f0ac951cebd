package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/marba/synapse/internal/logger"
	"github.com/marba/synapse/internal/metrics"
	"github.com/marba/synapse/internal/models"
)

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL     string
	Subject string
}

// OpportunityMessage is the payload published for every detected opportunity.
type OpportunityMessage struct {
	Opportunity models.Opportunity `json:"opportunity"`
	Timestamp   time.Time          `json:"timestamp"`
	Source      string             `json:"source"`
	Version     string             `json:"version"`
}

// NATSPublisher publishes detected opportunities to NATS.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to NATS.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("synapse-detector"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNATSPublisherWithConn(nc, cfg.Subject), nil
}

// NewNATSPublisherWithConn wraps an existing connection.
func NewNATSPublisherWithConn(nc *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: nc, subject: subject}
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
		p.conn.Close()
	}
}

// PublishOpportunity publishes one opportunity.
func (p *NATSPublisher) PublishOpportunity(opp models.Opportunity) error {
	data, err := Encode(opp, time.Now())
	if err != nil {
		return err
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		metrics.NatsMessagesPublished.WithLabelValues(p.subject, "error").Inc()
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}

	metrics.NatsMessagesPublished.WithLabelValues(p.subject, "success").Inc()
	logger.Get().Debug().
		Str("subject", p.subject).
		Str("opportunity_id", opp.ID).
		Msg("Published opportunity")
	return nil
}

// Encode builds the wire form of an opportunity message.
func Encode(opp models.Opportunity, now time.Time) ([]byte, error) {
	data, err := json.Marshal(OpportunityMessage{
		Opportunity: opp,
		Timestamp:   now.UTC(),
		Source:      "opportunity-detector",
		Version:     "1.0",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal opportunity message: %w", err)
	}
	return data, nil
}
