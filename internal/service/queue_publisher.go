package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/igotyouboo-api/internal/metrics"
	"github.com/iliyamo/igotyouboo-api/internal/queue"
)

// Publisher delivers account events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev queue.AccountEvent) error
}

// NopPublisher drops every event.  It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.AccountEvent) error { return nil }

// publishTimeout bounds a whole publish, broker handshake included.
const publishTimeout = 3 * time.Second

// defaultDialTimeout bounds the broker handshake when ctx has no deadline.
const defaultDialTimeout = 30 * time.Second

// AMQPPublisher publishes events to the account.events queue on RabbitMQ.
// A connection is opened per publish.
type AMQPPublisher struct {
	URL string
}

func NewAMQPPublisher(url string) *AMQPPublisher { return &AMQPPublisher{URL: url} }

// Publish sends ev as a persistent JSON message.  Errors are logged and
// returned so the caller can choose to ignore them.
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.AccountEvent) error {
	logger := log.Ctx(ctx).With().Str("event_type", ev.Type).Str("event_id", ev.ID).Logger()

	conn, err := dialContext(ctx, p.URL)
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()
	// Channel and QueueDeclare take no context; closing the connection
	// unblocks them once ctx is done.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	ch, err := conn.Channel()
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queue.AccountEventsQueue, // name
		true,                     // durable
		false,                    // autoDelete
		false,                    // exclusive
		false,                    // noWait
		nil,                      // args
	); err != nil {
		logger.Warn().Err(err).Msg("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",                       // default exchange
		queue.AccountEventsQueue, // routing key = queue name
		false,                    // mandatory
		false,                    // immediate
		pub,
	); err != nil {
		logger.Warn().Err(err).Msg("rabbitmq: publish failed")
		return err
	}
	return nil
}

// dialContext connects to url with the TCP connect and AMQP handshake
// bounded by ctx's deadline.
func dialContext(ctx context.Context, url string) (*amqp.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// publishEvent sends ev without letting broker trouble fail the request that
// caused it.
func publishEvent(ctx context.Context, p Publisher, ev queue.AccountEvent) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil {
		metrics.RecordAccountEvent(ev.Type, "failed")
		return
	}
	metrics.RecordAccountEvent(ev.Type, "published")
}
