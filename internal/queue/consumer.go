package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/recruiting-portal/internal/logger"
)

// Consumer reads meeting notifications from RabbitMQ and hands one
// Notification per recipient to its Notifier.
type Consumer struct {
	url      string
	notifier Notifier
	log      logger.Logger
	now      func() time.Time
	// OnDelivered, when set, is called once per notification written.
	OnDelivered func(event string)
}

// DialTimeout bounds the TCP connect to the broker.
const DialTimeout = 5 * time.Second

// Dial connects to the broker with a bounded connect time.
func Dial(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(DialTimeout),
	})
}

func NewConsumer(url string, n Notifier) *Consumer {
	return &Consumer{url: url, notifier: n, log: logger.Named("notify-consumer"), now: time.Now}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := Dial(c.url)
		if err != nil {
			c.log.Warn(ctx, "dial broker failed", logger.Err(err), logger.String("retry_in", backoff.String()))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn(ctx, "consume loop ended, reconnecting", logger.Err(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		c.log.Warn(ctx, "set QoS failed", logger.Err(err))
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info(ctx, "consuming", logger.String("queue", QueueName))

	for d := range msgs {
		if err := c.Handle(ctx, d.Type, d.MessageId, d.Body); err != nil {
			c.log.Error(ctx, "handle message failed", logger.String("message_id", d.MessageId), logger.Err(err))
			// no requeue: a malformed message would otherwise loop forever
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle processes one message body of the given event type.
func (c *Consumer) Handle(ctx context.Context, eventType, messageID string, body []byte) error {
	ns, err := Notifications(eventType, messageID, body, c.now())
	if err != nil {
		return err
	}
	for _, n := range ns {
		if err := c.notifier.Notify(ctx, n); err != nil {
			return err
		}
		if c.OnDelivered != nil {
			c.OnDelivered(eventType)
		}
	}
	c.log.Info(ctx, "notifications written", logger.String("event", eventType), logger.Int("count", len(ns)))
	return nil
}
