package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// publisher is the part of *amqp.Channel used by AMQPSender.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// emailJob is the payload consumed by the out-of-process mailer.
type emailJob struct {
	Message
	QueuedAt time.Time `json:"queued_at"`
}

// AMQPSender hands messages to a mailer through a durable RabbitMQ queue.
// A send succeeds once the broker accepts the publish.
type AMQPSender struct {
	mu    sync.Mutex
	ch    publisher
	queue string
	close func() error
	now   func() time.Time
}

// DialAMQP connects to url and declares queue as durable.
func DialAMQP(url, queue string) (*AMQPSender, error) {
	if url == "" || queue == "" {
		return nil, fmt.Errorf("%w: amqp url and queue are required", ErrConfig)
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}

	s := newAMQPSender(ch, queue)
	s.close = func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return s, nil
}

func newAMQPSender(ch publisher, queue string) *AMQPSender {
	return &AMQPSender{ch: ch, queue: queue, now: time.Now}
}

func (s *AMQPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	body, err := json.Marshal(emailJob{Message: msg, QueuedAt: s.now().UTC()})
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing.
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Close releases the channel and connection opened by DialAMQP.
func (s *AMQPSender) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
