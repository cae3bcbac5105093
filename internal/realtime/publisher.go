package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	publishTimeout   = 2 * time.Second
	reconnectBackoff = 5 * time.Second
	queueSize        = 256
)

type PublisherConfig struct {
	URL      string
	Exchange string
}

type message struct {
	routingKey string
	body       []byte
}

// Publisher mirrors events onto a durable fanout exchange, using the event
// name as routing key. Broadcast only enqueues; a single goroutine owns the
// connection, publishes and reconnects. A full queue drops the event.
// Nothing is retried.
type Publisher struct {
	Log     *zap.Logger
	Metrics *Metrics

	cfg         PublisherConfig
	dialTimeout time.Duration

	qmu    sync.RWMutex
	queue  chan message
	closed bool
	done   chan struct{}

	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	nextDial time.Time
}

// NewPublisher dials once so a bad URL fails at startup, then starts the
// background sender.
func NewPublisher(cfg PublisherConfig, log *zap.Logger, m *Metrics) (*Publisher, error) {
	p := newPublisher(cfg, log, m, queueSize)

	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	go p.run()
	return p, nil
}

func newPublisher(cfg PublisherConfig, log *zap.Logger, m *Metrics, size int) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		Log:         log,
		Metrics:     m,
		cfg:         cfg,
		dialTimeout: publishTimeout,
		queue:       make(chan message, size),
		done:        make(chan struct{}),
	}
}

// connect dials with a deadline covering TCP and the AMQP handshake; caller
// holds mu or owns p exclusively.
func (p *Publisher) connect() error {
	conn, err := amqp.DialConfig(p.cfg.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.cfg.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.cfg.Exchange, err)
	}

	p.conn = conn
	p.channel = ch
	return nil
}

// reset tears down whatever is left of the connection; caller holds mu.
func (p *Publisher) reset() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) Broadcast(ctx context.Context, event string, payload any) {
	body, err := encode(event, payload)
	if err != nil {
		p.Log.Error("amqp encode failed", zap.Error(err))
		p.Metrics.event(sinkAMQP, resultFailed)
		return
	}

	p.qmu.RLock()
	defer p.qmu.RUnlock()

	if p.closed {
		p.Metrics.event(sinkAMQP, resultDropped)
		return
	}

	select {
	case p.queue <- message{routingKey: event, body: body}:
	default:
		p.Metrics.event(sinkAMQP, resultDropped)
		p.Log.Warn("amqp queue full, event dropped", zap.String("event", event))
	}
}

func (p *Publisher) run() {
	defer close(p.done)

	for msg := range p.queue {
		if err := p.send(msg); err != nil {
			p.Log.Warn("amqp publish failed",
				zap.Error(err),
				zap.String("event", msg.routingKey),
				zap.String("exchange", p.cfg.Exchange))
			p.Metrics.event(sinkAMQP, resultFailed)
			continue
		}
		p.Metrics.event(sinkAMQP, resultSent)
	}
}

func (p *Publisher) send(msg message) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		if time.Now().Before(p.nextDial) {
			return errors.New("broker unavailable, waiting to reconnect")
		}
		p.reset()
		if err := p.connect(); err != nil {
			p.nextDial = time.Now().Add(reconnectBackoff)
			return fmt.Errorf("reconnect: %w", err)
		}
	}

	err := p.channel.PublishWithContext(ctx, p.cfg.Exchange, msg.routingKey, false, false, newPublishing(msg.body))
	if err != nil {
		p.reset()
		return err
	}
	return nil
}

func newPublishing(body []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	}
}

// Close stops accepting events, drains the queue until ctx expires, then
// closes the connection.
func (p *Publisher) Close(ctx context.Context) error {
	p.qmu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.qmu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}
