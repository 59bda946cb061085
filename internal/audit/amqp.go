package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout = 3 * time.Second
	defaultBuffer  = 256
)

// ErrBufferFull is returned by AMQPSink.Record when the publisher is too far
// behind to accept another entry. The entry is dropped.
var ErrBufferFull = errors.New("audit buffer full")

// ErrSinkClosed is returned by AMQPSink.Record after Close.
var ErrSinkClosed = errors.New("audit sink closed")

type message struct {
	event string
	at    time.Time
	body  []byte
}

// AMQPSink publishes entries as persistent JSON messages to a durable
// RabbitMQ queue through the default exchange.
//
// Record only enqueues. A single background goroutine owns the connection,
// publishes in order and re-dials after the broker drops it. Dial, handshake
// and publish are each bounded by the dial timeout.
type AMQPSink struct {
	url     string
	queue   string
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	pending chan message
	quit    chan struct{}
	done    chan struct{}

	// owned by run
	conn *amqp.Connection
	ch   *amqp.Channel
}

// AMQPOption customises an AMQPSink.
type AMQPOption func(*AMQPSink)

// WithDialTimeout bounds the TCP dial, the AMQP handshake and each publish.
func WithDialTimeout(d time.Duration) AMQPOption {
	return func(s *AMQPSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithBuffer sets how many entries may wait for the publisher.
func WithBuffer(n int) AMQPOption {
	return func(s *AMQPSink) {
		if n > 0 {
			s.pending = make(chan message, n)
		}
	}
}

// NewAMQPSink dials the broker, declares the queue and starts the publisher.
// The first dial is synchronous so a misconfigured broker surfaces at startup.
func NewAMQPSink(url, queue string, opts ...AMQPOption) (*AMQPSink, error) {
	s := newAMQPSink(url, queue, opts...)
	if err := s.connect(); err != nil {
		return nil, err
	}
	go s.run()
	return s, nil
}

func newAMQPSink(url, queue string, opts ...AMQPOption) *AMQPSink {
	s := &AMQPSink{
		url:     url,
		queue:   queue,
		timeout: publishTimeout,
		pending: make(chan message, defaultBuffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AMQPSink) connect() error {
	conn, err := amqp.DialConfig(s.url, amqp.Config{
		Locale: "en_US",
		Dial:   amqp.DefaultDial(s.timeout),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		s.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	s.conn, s.ch = conn, ch
	return nil
}

// disconnect closes whatever is left of the current connection.
func (s *AMQPSink) disconnect() {
	if s.ch != nil {
		if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			log.Printf("[audit] rabbitmq channel close: %v", err)
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			log.Printf("[audit] rabbitmq connection close: %v", err)
		}
	}
	s.conn, s.ch = nil, nil
}

// Record marshals e and queues it for publishing. It never waits on the
// broker: when the queue is full the entry is dropped with ErrBufferFull.
func (s *AMQPSink) Record(_ context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.pending <- message{event: e.Event, at: e.OccurredAt, body: body}:
		return nil
	default:
		return ErrBufferFull
	}
}

func (s *AMQPSink) run() {
	defer close(s.done)
	dropped := 0
	for m := range s.pending {
		select {
		case <-s.quit:
			dropped++
			continue
		default:
		}
		if err := s.publish(m); err != nil {
			log.Printf("[audit] warning: %s not published: %v", m.event, err)
		}
	}
	if dropped > 0 {
		log.Printf("[audit] warning: %d queued entries dropped on close", dropped)
	}
	s.disconnect()
}

func (s *AMQPSink) publish(m message) error {
	if s.conn == nil || s.conn.IsClosed() || s.ch == nil || s.ch.IsClosed() {
		s.disconnect()
		if err := s.connect(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.ch.PublishWithContext(ctx,
		"",      // default exchange
		s.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    m.at,
			Type:         m.event,
			Body:         m.body,
		},
	)
	if err != nil {
		if errors.Is(err, amqp.ErrClosed) {
			s.disconnect()
		}
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Close stops accepting entries and gives the publisher one dial timeout to
// flush what is queued. Entries still waiting after that are dropped.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.pending)
	s.mu.Unlock()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return nil
	case <-timer.C:
		close(s.quit)
		<-s.done
		return errors.New("rabbitmq: audit queue not flushed before close")
	}
}
