package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	_ Publisher = (*RabbitMQPublisher)(nil)
	_ Reciever  = (*RabbitMQReceiver)(nil)
)

// amqpSession is a connection with one channel on which the durable memory
// queue has been declared.
type amqpSession struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func openSession(url string) (*amqpSession, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error opening rabbitmq channel: %w", err)
	}
	if _, err := channel.QueueDeclare(MemoryQueue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error declaring rabbitmq queue %s: %w", MemoryQueue, err)
	}
	return &amqpSession{conn: conn, channel: channel}, nil
}

func dialSession(url string) (*amqpSession, error) {
	var err error
	for attempt := 1; attempt <= MaxConnectRetry; attempt++ {
		var s *amqpSession
		if s, err = openSession(url); err == nil {
			slog.Info("connected to rabbitmq", "queue", MemoryQueue)
			return s, nil
		}
		slog.Warn("failed to connect to rabbitmq", "attempt", attempt, "max_attempts", MaxConnectRetry, "error", err)
		if attempt < MaxConnectRetry {
			time.Sleep(RetryDelay)
		}
	}
	return nil, fmt.Errorf("could not connect to rabbitmq after %d attempts: %w", MaxConnectRetry, err)
}

// consume limits the session to one unacked delivery and starts consuming
// the memory queue.
func (s *amqpSession) consume() (<-chan amqp.Delivery, error) {
	if err := s.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("error setting channel qos: %w", err)
	}
	deliveries, err := s.channel.Consume(MemoryQueue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("error consuming rabbitmq queue %s: %w", MemoryQueue, err)
	}
	return deliveries, nil
}

func (s *amqpSession) close() {
	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		slog.Warn("error closing rabbitmq connection", "error", err)
	}
}

// RabbitMQPublisher sends memory writes as persistent JSON messages. A
// session dropped by the broker is replaced on the next publish.
type RabbitMQPublisher struct {
	url string

	mu      sync.Mutex
	session *amqpSession
	closed  bool
}

func NewRabbitMQPublisher(url string) (*RabbitMQPublisher, error) {
	session, err := dialSession(url)
	if err != nil {
		return nil, err
	}
	return &RabbitMQPublisher{url: url, session: session}, nil
}

func (p *RabbitMQPublisher) PublishMemoryWrite(ctx context.Context, payload MemoryWritePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding memory write: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("rabbitmq publisher is closed")
	}
	if p.session.channel.IsClosed() {
		p.session.close()
		session, err := openSession(p.url)
		if err != nil {
			return fmt.Errorf("error reconnecting to rabbitmq: %w", err)
		}
		slog.Info("reconnected rabbitmq publisher")
		p.session = session
	}

	err = p.session.channel.PublishWithContext(ctx, "", MemoryQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		slog.Error("failed to publish memory write", "user_id", payload.UserID, "error", err)
		return fmt.Errorf("error publishing memory write: %w", err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.session.close()
	}
}

type RabbitMQTask struct {
	d amqp.Delivery
}

func (t *RabbitMQTask) Type() string {
	return t.d.RoutingKey
}

func (t *RabbitMQTask) Payload() []byte {
	return t.d.Body
}

func (t *RabbitMQTask) Ack() error {
	return t.d.Ack(false)
}

// Nack drops the message. Memory writes are best effort so failed writes
// are not redelivered.
func (t *RabbitMQTask) Nack() error {
	return t.d.Nack(false, false)
}

func (t *RabbitMQTask) Reject() error {
	return t.d.Reject(false)
}

// RabbitMQReceiver hands out deliveries from the memory queue one at a time
// and redials when the broker drops its session.
type RabbitMQReceiver struct {
	url       string
	tasks     chan Task
	stop      chan struct{}
	closeOnce sync.Once
}

func NewRabbitMQReceiver(url string) (*RabbitMQReceiver, error) {
	session, err := dialSession(url)
	if err != nil {
		return nil, err
	}
	deliveries, err := session.consume()
	if err != nil {
		session.close()
		return nil, err
	}

	r := &RabbitMQReceiver{url: url, tasks: make(chan Task), stop: make(chan struct{})}
	go r.run(session, deliveries)
	return r, nil
}

func (r *RabbitMQReceiver) run(session *amqpSession, deliveries <-chan amqp.Delivery) {
	for {
		stopped := !r.forward(deliveries)
		session.close()
		if stopped {
			slog.Info("stopped rabbitmq consumer")
			return
		}

		slog.Warn("rabbitmq consumer lost its session, reconnecting")
		var ok bool
		if session, deliveries, ok = r.reconnect(); !ok {
			return
		}
		slog.Info("restarted rabbitmq consumer")
	}
}

// forward passes deliveries on until they run dry. It returns false once the
// receiver is closed.
func (r *RabbitMQReceiver) forward(deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return true
			}
			select {
			case r.tasks <- &RabbitMQTask{d: d}:
			case <-r.stop:
				return false
			}
		case <-r.stop:
			return false
		}
	}
}

func (r *RabbitMQReceiver) reconnect() (*amqpSession, <-chan amqp.Delivery, bool) {
	for {
		select {
		case <-r.stop:
			return nil, nil, false
		case <-time.After(RetryDelay):
		}

		session, err := openSession(r.url)
		if err != nil {
			slog.Warn("failed to reconnect rabbitmq consumer", "error", err)
			continue
		}
		deliveries, err := session.consume()
		if err != nil {
			slog.Warn("failed to restart rabbitmq consumer", "error", err)
			session.close()
			continue
		}
		return session, deliveries, true
	}
}

func (r *RabbitMQReceiver) Tasks() <-chan Task {
	return r.tasks
}

func (r *RabbitMQReceiver) Close() {
	r.closeOnce.Do(func() {
		close(r.stop)
	})
}
