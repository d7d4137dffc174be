package goal

import (
	"context"

	"github.com/robotics-4-all/goalee/entity"
	"github.com/robotics-4-all/goalee/types"
)

// PositionGoal completes when entity.position is within deviation of
// target on every axis (spec.md §4.3).
type PositionGoal struct {
	*base
	ent       *entity.Entity
	target    types.Point
	deviation float64
}

func NewPositionGoal(name string, ent *entity.Entity, target types.Point, deviation float64, opts ...Option) *PositionGoal {
	return &PositionGoal{
		base:      newBase(name, "position_goal", []*entity.Entity{ent}, opts...),
		ent:       ent,
		target:    target,
		deviation: deviation,
	}
}

func (g *PositionGoal) onEnter() {}
func (g *PositionGoal) onExit()  {}

func (g *PositionGoal) tick() {
	p, ok := positionOf(g.ent)
	if !ok {
		g.observeHold(false)
		return
	}
	if g.observeHold(p.Within(g.target, g.deviation)) {
		g.complete()
	}
}

func (g *PositionGoal) Enter(ctx context.Context) State { return g.enter(ctx, g) }

// OrientationGoal completes when entity.orientation is within deviation
// of target on every axis.
type OrientationGoal struct {
	*base
	ent       *entity.Entity
	target    types.Orientation
	deviation float64
}

func NewOrientationGoal(name string, ent *entity.Entity, target types.Orientation, deviation float64, opts ...Option) *OrientationGoal {
	return &OrientationGoal{
		base:      newBase(name, "orientation_goal", []*entity.Entity{ent}, opts...),
		ent:       ent,
		target:    target,
		deviation: deviation,
	}
}

func (g *OrientationGoal) onEnter() {}
func (g *OrientationGoal) onExit()  {}

func orientationOf(e *entity.Entity) (types.Orientation, bool) {
	v := e.GetAttr("orientation")
	m, ok := v.(map[string]any)
	if !ok {
		return types.Orientation{}, false
	}
	return types.OrientationFromMap(m), true
}

func (g *OrientationGoal) tick() {
	o, ok := orientationOf(g.ent)
	if !ok {
		g.observeHold(false)
		return
	}
	if g.observeHold(o.Within(g.target, g.deviation)) {
		g.complete()
	}
}

func (g *OrientationGoal) Enter(ctx context.Context) State { return g.enter(ctx, g) }

// PoseGoal combines PositionGoal and OrientationGoal: both must be within
// deviation simultaneously.
type PoseGoal struct {
	*base
	ent             *entity.Entity
	targetPos       types.Point
	targetOrient    types.Orientation
	deviation       float64
}

func NewPoseGoal(name string, ent *entity.Entity, target types.Pose, deviation float64, opts ...Option) *PoseGoal {
	return &PoseGoal{
		base:         newBase(name, "pose_goal", []*entity.Entity{ent}, opts...),
		ent:          ent,
		targetPos:    target.Translation,
		targetOrient: target.Orientation,
		deviation:    deviation,
	}
}

func (g *PoseGoal) onEnter() {}
func (g *PoseGoal) onExit()  {}

func (g *PoseGoal) tick() {
	p, okP := positionOf(g.ent)
	o, okO := orientationOf(g.ent)
	satisfied := okP && okO && p.Within(g.targetPos, g.deviation) && o.Within(g.targetOrient, g.deviation)
	if g.observeHold(satisfied) {
		g.complete()
	}
}

func (g *PoseGoal) Enter(ctx context.Context) State { return g.enter(ctx, g) }
