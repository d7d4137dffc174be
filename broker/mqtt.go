package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robotics-4-all/goalee/internal/glog"
)

// mqttConn adapts an autopaho connection manager to Conn. autopaho
// re-establishes a lost connection on its own; this adapter does not
// turn that off.
type mqttConn struct {
	cm      *autopaho.ConnectionManager
	log     *zap.SugaredLogger
	mu      sync.Mutex
	handler map[string][]func(map[string]any)
}

func dialMQTT(ctx context.Context, d Descriptor) (Conn, error) {
	brokerURL, err := url.Parse(fmt.Sprintf("mqtt://%s:%d", d.Host(), d.Port()))
	if err != nil {
		return nil, fmt.Errorf("broker: invalid mqtt broker url: %w", err)
	}

	conn := &mqttConn{
		log:     glog.New("broker.mqtt"),
		handler: make(map[string][]func(map[string]any)),
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:        []*url.URL{brokerURL},
		KeepAlive:         30,
		ConnectRetryDelay: 0, // does not disable autopaho's reconnection
		ConnectUsername:   d.Username(),
		ConnectPassword:   []byte(d.Password()),
		OnConnectError: func(err error) {
			conn.log.Warnw("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "goalee-" + uuid.NewString()[:8],
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				conn.dispatch,
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("broker: failed to connect to mqtt broker: %w", err)
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		return nil, fmt.Errorf("broker: mqtt broker did not become ready: %w", err)
	}

	conn.cm = cm
	return conn, nil
}

func (c *mqttConn) dispatch(pr paho.PublishReceived) (bool, error) {
	c.mu.Lock()
	handlers := append([]func(map[string]any){}, c.handler[pr.Packet.Topic]...)
	c.mu.Unlock()
	if len(handlers) == 0 {
		return false, nil
	}
	obj, ok := decodeJSON(pr.Packet.Payload)
	if !ok {
		c.log.Warnw("dropping malformed mqtt payload", "topic", pr.Packet.Topic)
		return true, nil
	}
	for _, h := range handlers {
		h(obj)
	}
	return true, nil
}

func (c *mqttConn) Subscribe(ctx context.Context, topic string, onMessage func(map[string]any)) (Subscription, error) {
	c.mu.Lock()
	_, existed := c.handler[topic]
	c.handler[topic] = append(c.handler[topic], onMessage)
	c.mu.Unlock()

	if !existed {
		if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 0}},
		}); err != nil {
			return nil, fmt.Errorf("broker: failed to subscribe to %q: %w", topic, err)
		}
	}

	return &mqttSubscription{conn: c, topic: topic}, nil
}

func (c *mqttConn) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("broker: failed to marshal payload for topic %q: %w", topic, err)
	}
	_, err = c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: body,
		QoS:     0,
	})
	return err
}

func (c *mqttConn) Close() error {
	return c.cm.Disconnect(context.Background())
}

type mqttSubscription struct {
	conn  *mqttConn
	topic string
}

// Unsubscribe drops every handler registered for the topic. Function
// values aren't comparable in Go, so a single-handler-per-topic
// subscription (the only shape Entity ever creates) is removed wholesale
// rather than by identity.
func (s *mqttSubscription) Unsubscribe() error {
	s.conn.mu.Lock()
	delete(s.conn.handler, s.topic)
	s.conn.mu.Unlock()

	_, err := s.conn.cm.Unsubscribe(context.Background(), &paho.Unsubscribe{
		Topics: []string{s.topic},
	})
	return err
}
