package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/robotics-4-all/goalee/internal/glog"
	"github.com/robotics-4-all/goalee/internal/tracing"
)

// amqpConn adapts an AMQP channel to Conn. One topic exchange (fanout) is
// declared per topic string the first time it is used, generalizing the
// fixed order-lifecycle exchanges of the teacher's common/broker/broker.go
// into arbitrary entity/monitor topics.
type amqpConn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.SugaredLogger

	mu        sync.Mutex
	exchanges map[string]bool
}

func dialAMQP(ctx context.Context, d Descriptor) (Conn, error) {
	address := fmt.Sprintf("amqp://%s:%s@%s:%d%s", d.Username(), d.Password(), d.Host(), d.Port(), d.Vhost())

	conn, err := amqp.Dial(address)
	if err != nil {
		return nil, fmt.Errorf("broker: failed to connect to amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broker: failed to open amqp channel: %w", err)
	}

	return &amqpConn{
		conn:      conn,
		ch:        ch,
		log:       glog.New("broker.amqp"),
		exchanges: make(map[string]bool),
	}, nil
}

func (c *amqpConn) declareExchange(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exchanges[topic] {
		return nil
	}
	err := c.ch.ExchangeDeclare(
		topic,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("broker: failed to declare exchange %q: %w", topic, err)
	}
	c.exchanges[topic] = true
	return nil
}

func (c *amqpConn) Subscribe(ctx context.Context, topic string, onMessage func(map[string]any)) (Subscription, error) {
	if err := c.declareExchange(topic); err != nil {
		return nil, err
	}

	q, err := c.ch.QueueDeclare("", true, false, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("broker: failed to declare queue for topic %q: %w", topic, err)
	}
	if err := c.ch.QueueBind(q.Name, "", topic, false, nil); err != nil {
		return nil, fmt.Errorf("broker: failed to bind queue to exchange %q: %w", topic, err)
	}

	consumerTag := uuid.NewString()
	deliveries, err := c.ch.Consume(q.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("broker: failed to consume queue %q: %w", q.Name, err)
	}

	tr := tracing.Tracer("goalee/broker/amqp")
	done := make(chan struct{})
	go func() {
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				spanCtx := tracing.Extract(ctx, headersToStrings(d.Headers))
				_, span := tr.Start(spanCtx, "amqp.consume "+topic)
				obj, ok := decodeJSON(d.Body)
				if !ok {
					c.log.Warnw("dropping malformed amqp payload", "topic", topic)
					d.Nack(false, false)
					span.End()
					continue
				}
				onMessage(obj)
				d.Ack(false)
				span.End()
			case <-done:
				return
			}
		}
	}()

	return &amqpSubscription{ch: c.ch, consumerTag: consumerTag, done: done}, nil
}

func (c *amqpConn) Publish(ctx context.Context, topic string, payload any) error {
	if err := c.declareExchange(topic); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("broker: failed to marshal payload for topic %q: %w", topic, err)
	}

	headers := amqp.Table{}
	for k, v := range tracing.Inject(ctx) {
		headers[k] = v
	}

	return c.ch.PublishWithContext(ctx, topic, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Headers:     headers,
		Body:        body,
	})
}

func (c *amqpConn) Close() error {
	if err := c.ch.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

type amqpSubscription struct {
	ch          *amqp.Channel
	consumerTag string
	done        chan struct{}
	once        sync.Once
}

func (s *amqpSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ch.Cancel(s.consumerTag, false)
	})
	return err
}

func headersToStrings(h amqp.Table) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
