// Package event publishes settlement notifications to NATS.
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/logger"
)

// Envelope wraps every payload so consumers can dedupe on ID.
type Envelope struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

type NatsPublisher struct {
	nc     *nats.Conn
	prefix string
	now    func() time.Time
}

var _ domain.Publisher = (*NatsPublisher)(nil)

// NewNatsPublisher connects to url; subjects are published as prefix.subject.
func NewNatsPublisher(url, prefix string, opts ...nats.Option) (*NatsPublisher, error) {
	opts = append([]nats.Option{
		nats.Name("bullrush-payment-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectHandler(func(*nats.Conn) {
			logger.Warn(context.Background(), "nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(context.Background(), "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsPublisher{nc: nc, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, subject string, payload any) error {
	b, err := encode(subject, payload, p.now())
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject(subject), b)
}

func (p *NatsPublisher) subject(s string) string {
	if p.prefix == "" {
		return s
	}
	return p.prefix + "." + s
}

func (p *NatsPublisher) Close() error {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
	return nil
}

func encode(subject string, payload any, at time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Subject:    subject,
		OccurredAt: at,
		Data:       data,
	})
}

// Nop drops events; used when no broker is configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, subject string, _ any) error {
	logger.Debug(ctx, "event dropped, no broker configured", zap.String("subject", subject))
	return nil
}
