// Package entity implements the Entity Subscriber (spec.md §4.2, C2): a
// named telemetry source bound to one broker topic, a declared attribute
// set, and optional per-attribute ring buffers.
package entity

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robotics-4-all/goalee/broker"
	"github.com/robotics-4-all/goalee/internal/glog"
)

// Mode controls how update_state handles keys absent from the declared
// attribute set (spec.md §4.2).
type Mode int

const (
	// Lax drops unknown keys but keeps the rest of the message (default).
	Lax Mode = iota
	// Strict drops the whole message if it carries a single unknown key.
	Strict
)

// Entity subscribes to one topic and decodes JSON objects into a known
// attribute set, mirroring original_source/goalee/entity.py's Entity class
// generalized from a single commlib Node to the broker.Conn port.
type Entity struct {
	Name  string
	Etype string
	Topic string
	Mode  Mode

	source broker.Descriptor
	conn   broker.Conn
	log    *zap.SugaredLogger

	mu          sync.RWMutex
	attributes  map[string]any
	buffers     map[string]*ringBuffer
	initialized bool

	sub broker.Subscription
}

// ringBuffer is a fixed-capacity FIFO. Until it has seen `cap` values it is
// considered "not yet warm" and reads return zeros (spec.md §4.2 invariant).
type ringBuffer struct {
	cap    int
	values []float64
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{cap: capacity, values: make([]float64, 0, capacity)}
}

func (b *ringBuffer) push(v float64) {
	if len(b.values) == b.cap {
		copy(b.values, b.values[1:])
		b.values[len(b.values)-1] = v
		return
	}
	b.values = append(b.values, v)
}

func (b *ringBuffer) warm() bool { return len(b.values) == b.cap }

// snapshot always returns exactly m values. Until the buffer is warm they
// are all zeros; once warm they are the most recent min(m, len(values))
// samples, zero-padded at the front if m exceeds the buffer's capacity.
func (b *ringBuffer) snapshot(m int) []float64 {
	if !b.warm() {
		return make([]float64, m)
	}
	out := make([]float64, m)
	n := len(b.values)
	if m <= n {
		copy(out, b.values[n-m:])
		return out
	}
	copy(out[m-n:], b.values)
	return out
}

// New constructs an inert Entity. attrs is the closed declared-attribute
// set; bufferedAttrs is the subset that also gets a ring buffer of
// bufferLen (opt-in, per spec.md §4.2).
func New(name, etype, topic string, source broker.Descriptor, attrs []string, bufferedAttrs []string, bufferLen int) *Entity {
	if name == "" {
		name = uuid.NewString()
	}
	e := &Entity{
		Name:       name,
		Etype:      etype,
		Topic:      topic,
		Mode:       Lax,
		source:     source,
		log:        glog.New("entity." + name),
		attributes: make(map[string]any, len(attrs)),
		buffers:    make(map[string]*ringBuffer),
	}
	for _, a := range attrs {
		e.attributes[a] = nil
	}
	for _, a := range bufferedAttrs {
		e.buffers[a] = newRingBuffer(bufferLen)
	}
	return e
}

// Start opens a subscription on conn, the broker connection shared by the
// owning Scenario (spec.md §5: "a scenario shares one broker connection;
// each entity is a subscription on that connection"). Idempotent.
func (e *Entity) Start(ctx context.Context, conn broker.Conn) error {
	e.mu.Lock()
	if e.sub != nil {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	sub, err := conn.Subscribe(ctx, e.Topic, e.UpdateState)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.conn = conn
	e.sub = sub
	e.mu.Unlock()
	return nil
}

// Stop tears down the subscription. Idempotent. It does not close the
// shared broker connection, which outlives any single entity.
func (e *Entity) Stop() error {
	e.mu.Lock()
	sub := e.sub
	e.sub, e.conn = nil, nil
	e.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			e.log.Warnw("failed to unsubscribe", "error", err)
		}
	}
	return nil
}

// UpdateState is the subscriber callback: it validates msg against the
// declared attribute set and updates attributes + buffers atomically with
// respect to readers.
func (e *Entity) UpdateState(msg map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Mode == Strict {
		for key := range msg {
			if _, known := e.attributes[key]; !known {
				e.log.Warnw("dropping message with unknown key (strict mode)", "key", key)
				return
			}
		}
	}

	for key, value := range msg {
		if _, known := e.attributes[key]; !known {
			continue
		}
		e.attributes[key] = value
		if buf, ok := e.buffers[key]; ok {
			if f, ok := toFloat(value); ok {
				buf.push(f)
			}
		}
	}
	e.initialized = true
}

// GetAttr returns the latest value for k, or nil if never observed.
func (e *Entity) GetAttr(k string) any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attributes[k]
}

// GetBuffer returns a snapshot of attr's buffer. m zeros are returned if
// the buffer has not yet warmed up (fewer than its capacity values seen).
func (e *Entity) GetBuffer(attr string, m int) []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	buf, ok := e.buffers[attr]
	if !ok {
		return make([]float64, m)
	}
	return buf.snapshot(m)
}

// Initialized reports whether at least one accepted message updated state.
func (e *Entity) Initialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// Snapshot returns a shallow copy of the current attribute map, used by
// predicates that need a consistent multi-key read.
func (e *Entity) Snapshot() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.attributes))
	for k, v := range e.attributes {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
