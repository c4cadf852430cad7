package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/workflow"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// publisher the part of *nats.Conn the publisher needs
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes workflow notifications for the notification service.
//
// Subject convention: <prefix>.notifications.<type>, e.g. mes.notifications.task_assigned
type NATSPublisher struct {
	conn   publisher
	prefix string
	logger *zap.Logger
}

// NotificationEvent the JSON published to NATS
type NotificationEvent struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewNATSPublisher(conn publisher, prefix string, logger *zap.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "mes"
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Connect dials NATS with reconnects enabled.
func Connect(url, name string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

func (p *NATSPublisher) Notify(ctx context.Context, to workflow.Recipient, message, notificationType, link string) error {
	data, err := json.Marshal(NotificationEvent{
		Type:      notificationType,
		UserID:    to.UserID,
		Role:      to.Role,
		Message:   message,
		Link:      link,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	subject := fmt.Sprintf("%s.notifications.%s", p.prefix, notificationType)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("Notification published", zap.String("subject", subject), zap.String("recipient", to.String()))
	return nil
}
