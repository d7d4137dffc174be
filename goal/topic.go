package goal

import (
	"context"
	"sync/atomic"

	"github.com/robotics-4-all/goalee/broker"
)

// TopicMessageReceivedGoal completes on the first message received on
// topic, with no entity indirection — the simplest goal variant,
// grounded on original_source/goalee/topic_goals.py's
// TopicMessageReceivedGoal (dropped from the distilled spec, recovered
// here as C12).
type TopicMessageReceivedGoal struct {
	*base
	conn     broker.Conn
	topic    string
	ctx      context.Context
	sub      broker.Subscription
	received atomic.Bool
}

func NewTopicMessageReceivedGoal(name string, conn broker.Conn, topic string, opts ...Option) *TopicMessageReceivedGoal {
	return &TopicMessageReceivedGoal{
		base:  newBase(name, "topic_message_received_goal", nil, opts...),
		conn:  conn,
		topic: topic,
	}
}

func (g *TopicMessageReceivedGoal) onEnter() {
	sub, err := g.conn.Subscribe(g.ctx, g.topic, func(map[string]any) {
		g.received.Store(true)
	})
	if err != nil {
		g.log.Warnw("failed to subscribe", "topic", g.topic, "error", err)
		return
	}
	g.sub = sub
}

func (g *TopicMessageReceivedGoal) onExit() {
	if g.sub != nil {
		g.sub.Unsubscribe()
	}
}

func (g *TopicMessageReceivedGoal) tick() {
	if g.received.Load() {
		g.complete()
	}
}

func (g *TopicMessageReceivedGoal) Enter(ctx context.Context) State {
	g.ctx = ctx
	return g.enter(ctx, g)
}

// TopicCondition is a native predicate over a raw decoded message, the
// topic-goal analogue of Condition.
type TopicCondition func(msg map[string]any) bool

// TopicMessageParamGoal completes the first time a message on topic
// satisfies condition.
type TopicMessageParamGoal struct {
	*base
	conn      broker.Conn
	topic     string
	condition TopicCondition
	ctx       context.Context
	sub       broker.Subscription
	matched   atomic.Bool
}

func NewTopicMessageParamGoal(name string, conn broker.Conn, topic string, condition TopicCondition, opts ...Option) *TopicMessageParamGoal {
	return &TopicMessageParamGoal{
		base:      newBase(name, "topic_message_param_goal", nil, opts...),
		conn:      conn,
		topic:     topic,
		condition: condition,
	}
}

func (g *TopicMessageParamGoal) onEnter() {
	sub, err := g.conn.Subscribe(g.ctx, g.topic, func(msg map[string]any) {
		if g.condition(msg) {
			g.matched.Store(true)
		}
	})
	if err != nil {
		g.log.Warnw("failed to subscribe", "topic", g.topic, "error", err)
		return
	}
	g.sub = sub
}

func (g *TopicMessageParamGoal) onExit() {
	if g.sub != nil {
		g.sub.Unsubscribe()
	}
}

func (g *TopicMessageParamGoal) tick() {
	if g.matched.Load() {
		g.complete()
	}
}

func (g *TopicMessageParamGoal) Enter(ctx context.Context) State {
	g.ctx = ctx
	return g.enter(ctx, g)
}
