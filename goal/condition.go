package goal

import (
	"context"
	"reflect"

	"github.com/robotics-4-all/goalee/entity"
	"github.com/robotics-4-all/goalee/exprlang"
)

// EntityStateChange completes when entity.attributes differs from the
// snapshot observed on the previous tick, honouring the hold window.
type EntityStateChange struct {
	*base
	ent      *entity.Entity
	previous map[string]any
}

func NewEntityStateChange(name string, ent *entity.Entity, opts ...Option) *EntityStateChange {
	return &EntityStateChange{
		base: newBase(name, "entity_state_change", []*entity.Entity{ent}, opts...),
		ent:  ent,
	}
}

func (g *EntityStateChange) onEnter() { g.previous = g.ent.Snapshot() }
func (g *EntityStateChange) onExit()  {}

func (g *EntityStateChange) tick() {
	current := g.ent.Snapshot()
	changed := !reflect.DeepEqual(current, g.previous)
	if g.observeHold(changed) {
		g.complete()
	}
	g.previous = current
}

func (g *EntityStateChange) Enter(ctx context.Context) State { return g.enter(ctx, g) }

// Condition is a native predicate over named entities, the alternative to
// a string exprlang expression (spec.md §9).
type Condition func(entities map[string]*entity.Entity) (bool, error)

// EntityStateCondition completes once condition holds continuously for
// for_duration (or one tick if unset). Evaluation errors over an
// uninitialised attribute are swallowed as "not satisfied"; any other
// error is logged once and the tick treated the same way.
type EntityStateCondition struct {
	*base
	entityMap map[string]*entity.Entity
	cond      Condition
	expr      *exprVars
}

type exprVars struct {
	node     exprlang.Node
	entities map[string]exprlang.EntityView
}

// NewEntityStateCondition builds a condition goal from a native closure.
func NewEntityStateCondition(name string, entities map[string]*entity.Entity, cond Condition, opts ...Option) *EntityStateCondition {
	return &EntityStateCondition{
		base:      newBase(name, "entity_state_condition", flatten(entities), opts...),
		entityMap: entities,
		cond:      cond,
	}
}

// NewEntityStateConditionExpr builds a condition goal from an exprlang
// string expression, e.g. "front_sonar.range > 5".
func NewEntityStateConditionExpr(name string, entities map[string]*entity.Entity, src string, opts ...Option) (*EntityStateCondition, error) {
	node, err := exprlang.Parse(src)
	if err != nil {
		return nil, err
	}
	views := make(map[string]exprlang.EntityView, len(entities))
	for k, v := range entities {
		views[k] = v
	}
	g := &EntityStateCondition{
		base:      newBase(name, "entity_state_condition", flatten(entities), opts...),
		entityMap: entities,
		expr:      &exprVars{node: node, entities: views},
	}
	return g, nil
}

func flatten(entities map[string]*entity.Entity) []*entity.Entity {
	out := make([]*entity.Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, e)
	}
	return out
}

func (g *EntityStateCondition) onEnter() {}
func (g *EntityStateCondition) onExit()  {}

func (g *EntityStateCondition) evaluate() (bool, error) {
	if g.expr != nil {
		return exprlang.Eval(g.expr.node, g.expr.entities)
	}
	return g.cond(g.entityMap)
}

func (g *EntityStateCondition) tick() {
	ok, err := g.evaluate()
	if err != nil {
		if err != exprlang.ErrNilAttribute {
			g.log.Warnw("condition evaluation error", "goal", g.name, "error", err)
		}
		ok = false
	}
	if g.observeHold(ok) {
		g.complete()
	}
}

func (g *EntityStateCondition) Enter(ctx context.Context) State { return g.enter(ctx, g) }
