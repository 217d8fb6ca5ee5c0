// Package service publishes meeting notifications to RabbitMQ.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/recruiting-portal/internal/logger"
	"github.com/iliyamo/recruiting-portal/internal/queue"
)

// ErrPublisherClosed is returned after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// Publisher sends persistent JSON messages to the durable notification
// queue. The connection is dialled lazily and re-dialled after a failure,
// so a broker outage never blocks startup.
type Publisher struct {
	url string
	log logger.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewPublisher(url string) *Publisher {
	return &Publisher{url: url, log: logger.Named("notify-publisher")}
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.closed {
		return nil, ErrPublisherClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := queue.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(queue.QueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Publish marshals payload and sends it with the given event type. It
// returns the generated message id.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", eventType, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		p.log.Warn(ctx, "broker unavailable", logger.String("event", eventType), logger.Err(err))
		return "", err
	}
	if err := ch.PublishWithContext(ctx, "", queue.QueueName, false, false, msg); err != nil {
		p.reset()
		p.log.Warn(ctx, "publish failed", logger.String("event", eventType), logger.Err(err))
		return "", err
	}
	p.log.Debug(ctx, "published", logger.String("event", eventType), logger.String("message_id", msg.MessageId))
	return msg.MessageId, nil
}

// PublishSlotCancelled announces a deleted slot and everyone who held a seat.
func (p *Publisher) PublishSlotCancelled(ctx context.Context, ev queue.SlotCancelledEvent) error {
	_, err := p.Publish(ctx, queue.EventSlotCancelled, ev)
	return err
}

// PublishSignupCreated announces a new signup.
func (p *Publisher) PublishSignupCreated(ctx context.Context, ev queue.SignupCreatedEvent) error {
	_, err := p.Publish(ctx, queue.EventSignupCreated, ev)
	return err
}

// Close releases the broker connection. Later publishes fail.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reset()
	return nil
}
