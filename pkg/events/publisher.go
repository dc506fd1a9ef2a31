package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// OrderPlacedEvent is the payload published for every acknowledged order.
type OrderPlacedEvent struct {
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id"`
	Total         int64  `json:"total"`
	OrderType     string `json:"order_type"`
	PaymentStatus string `json:"payment_status"`
	CreatedAt     string `json:"created_at"`
}

func NewOrderPlacedEvent(order models.Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Total:         order.Total,
		OrderType:     order.OrderType.String(),
		PaymentStatus: order.PaymentStatus.String(),
		CreatedAt:     order.Date.UTC().Format(time.RFC3339),
	}
}

type Publisher interface {
	PublishOrderPlaced(ctx context.Context, order models.Order) error
	Close()
}

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

type NatsPublisher struct {
	nc      Conn
	subject string
	logger  *zap.Logger
}

// NewPublisher connects to NATS, or returns a no-op publisher when no URL is
// configured.
func NewPublisher(cfg config.NATSConfig, logger *zap.Logger) (Publisher, error) {
	if cfg.URL == "" {
		return NoopPublisher{}, nil
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("storefront"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS", zap.String("url", cfg.URL))
	return NewNatsPublisher(nc, cfg.Subject, logger), nil
}

func NewNatsPublisher(nc Conn, subject string, logger *zap.Logger) *NatsPublisher {
	return &NatsPublisher{nc: nc, subject: subject, logger: logger}
}

func (p *NatsPublisher) PublishOrderPlaced(ctx context.Context, order models.Order) error {
	data, err := json.Marshal(NewOrderPlacedEvent(order))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	if err := p.nc.FlushTimeout(2 * time.Second); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}

	p.logger.Debug("Published order event",
		zap.String("subject", p.subject),
		zap.String("order_id", order.ID))
	return nil
}

func (p *NatsPublisher) Close() {
	p.nc.Close()
	p.logger.Info("NATS connection closed")
}

type NoopPublisher struct{}

func (NoopPublisher) PublishOrderPlaced(context.Context, models.Order) error { return nil }
func (NoopPublisher) Close()                                                 {}
