// Package broker abstracts over the three message-broker wire protocols
// the engine can be fed from (MQTT, Redis pub/sub, AMQP). Reconnection is
// not disabled uniformly: the AMQP adapter does not reconnect, while the
// MQTT (autopaho) and Redis (go-redis) clients re-establish lost
// connections on their own.
package broker

import (
	"context"
	"encoding/json"
)

// Kind tags which wire protocol a Descriptor describes.
type Kind int

const (
	KindMQTT Kind = iota
	KindRedis
	KindAMQP
)

func (k Kind) String() string {
	switch k {
	case KindMQTT:
		return "mqtt"
	case KindRedis:
		return "redis"
	case KindAMQP:
		return "amqp"
	default:
		return "unknown"
	}
}

// Descriptor is an immutable, tagged-variant connection descriptor. Use
// NewMQTT / NewRedis / NewAMQP to build one with the documented defaults
// rather than constructing it directly.
type Descriptor struct {
	kind     Kind
	host     string
	port     int
	username string
	password string

	// Redis-only
	db int

	// AMQP-only
	vhost         string
	topicExchange string
}

// Defaults per SPEC_FULL.md §4.1 / spec.md §4.1.
const (
	DefaultMQTTPort  = 1883
	DefaultRedisPort = 6379
	DefaultRedisDB   = 0
	DefaultAMQPPort  = 5672
	DefaultAMQPVhost = "/"
	DefaultAMQPUser  = "guest"
	DefaultAMQPPass  = "guest"
	DefaultAMQPTopicExchange = "amq.topic"
)

// MQTTOption customizes an MQTT Descriptor.
type MQTTOption func(*Descriptor)

func WithMQTTCredentials(username, password string) MQTTOption {
	return func(d *Descriptor) { d.username = username; d.password = password }
}

func WithMQTTPort(port int) MQTTOption {
	return func(d *Descriptor) { d.port = port }
}

// NewMQTT builds an MQTT broker descriptor. Defaults: port 1883, no creds.
func NewMQTT(host string, opts ...MQTTOption) Descriptor {
	d := Descriptor{kind: KindMQTT, host: host, port: DefaultMQTTPort}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// RedisOption customizes a Redis Descriptor.
type RedisOption func(*Descriptor)

func WithRedisDB(db int) RedisOption {
	return func(d *Descriptor) { d.db = db }
}

func WithRedisCredentials(username, password string) RedisOption {
	return func(d *Descriptor) { d.username = username; d.password = password }
}

func WithRedisPort(port int) RedisOption {
	return func(d *Descriptor) { d.port = port }
}

// NewRedis builds a Redis broker descriptor. Defaults: port 6379, db 0.
func NewRedis(host string, opts ...RedisOption) Descriptor {
	d := Descriptor{kind: KindRedis, host: host, port: DefaultRedisPort, db: DefaultRedisDB}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// AMQPOption customizes an AMQP Descriptor.
type AMQPOption func(*Descriptor)

func WithAMQPVhost(vhost string) AMQPOption {
	return func(d *Descriptor) { d.vhost = vhost }
}

func WithAMQPCredentials(username, password string) AMQPOption {
	return func(d *Descriptor) { d.username = username; d.password = password }
}

func WithAMQPPort(port int) AMQPOption {
	return func(d *Descriptor) { d.port = port }
}

func WithAMQPTopicExchange(exchange string) AMQPOption {
	return func(d *Descriptor) { d.topicExchange = exchange }
}

// NewAMQP builds an AMQP broker descriptor. Defaults: port 5672, vhost "/",
// user/pass "guest"/"guest".
func NewAMQP(host string, opts ...AMQPOption) Descriptor {
	d := Descriptor{
		kind:          KindAMQP,
		host:          host,
		port:          DefaultAMQPPort,
		vhost:         DefaultAMQPVhost,
		username:      DefaultAMQPUser,
		password:      DefaultAMQPPass,
		topicExchange: DefaultAMQPTopicExchange,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d Descriptor) Kind() Kind         { return d.kind }
func (d Descriptor) Host() string       { return d.host }
func (d Descriptor) Port() int          { return d.port }
func (d Descriptor) Username() string   { return d.username }
func (d Descriptor) Password() string   { return d.password }
func (d Descriptor) DB() int            { return d.db }
func (d Descriptor) Vhost() string      { return d.vhost }
func (d Descriptor) TopicExchange() string { return d.topicExchange }

// Subscription is a handle to an active topic subscription.
type Subscription interface {
	// Unsubscribe stops delivery to the callback. Idempotent.
	Unsubscribe() error
}

// Conn is the Broker Port contract (spec.md §4.1, C1): given a topic and a
// callback, deliver decoded JSON objects until Unsubscribe/Close. A single
// Conn is shared by every Entity of one Scenario, mirroring "a scenario
// shares one broker connection" (spec.md §5).
type Conn interface {
	// Subscribe starts delivering every well-formed JSON object published
	// to topic to onMessage. Malformed payloads are dropped with a logged
	// warning rather than propagated.
	Subscribe(ctx context.Context, topic string, onMessage func(map[string]any)) (Subscription, error)
	// Publish serializes payload to JSON and publishes it to topic.
	Publish(ctx context.Context, topic string, payload any) error
	// Close tears down the underlying connection. Idempotent.
	Close() error
}

// Dial opens a Conn for d. The concrete adapter (mqtt/redis/amqp) is
// chosen from d.Kind().
func Dial(ctx context.Context, d Descriptor) (Conn, error) {
	switch d.Kind() {
	case KindMQTT:
		return dialMQTT(ctx, d)
	case KindRedis:
		return dialRedis(ctx, d)
	case KindAMQP:
		return dialAMQP(ctx, d)
	default:
		return nil, errUnknownKind(d.Kind())
	}
}

type unknownKindError struct{ kind Kind }

func (e unknownKindError) Error() string { return "broker: unknown descriptor kind: " + e.kind.String() }

func errUnknownKind(k Kind) error { return unknownKindError{kind: k} }

// decodeJSON is the shared malformed-payload-tolerant decoder used by every
// adapter: UTF-8 JSON -> object; anything else returns ok=false so the
// caller can log a warning and drop the message.
func decodeJSON(raw []byte) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}
