package goal

import (
	"context"

	"github.com/robotics-4-all/goalee/entity"
	"github.com/robotics-4-all/goalee/types"
)

// WaypointTrajectoryGoal marks waypoint i reached once the entity comes
// within deviation of it; COMPLETED once every flag is set. Reaching
// order is not enforced (spec.md §4.3 design intent).
type WaypointTrajectoryGoal struct {
	*base
	ent       *entity.Entity
	waypoints []types.Point
	deviation float64
	reached   []bool
}

func NewWaypointTrajectoryGoal(name string, ent *entity.Entity, waypoints []types.Point, deviation float64, opts ...Option) *WaypointTrajectoryGoal {
	return &WaypointTrajectoryGoal{
		base:      newBase(name, "waypoint_trajectory_goal", []*entity.Entity{ent}, opts...),
		ent:       ent,
		waypoints: waypoints,
		deviation: deviation,
		reached:   make([]bool, len(waypoints)),
	}
}

func (g *WaypointTrajectoryGoal) onEnter() {}
func (g *WaypointTrajectoryGoal) onExit()  {}

func (g *WaypointTrajectoryGoal) tick() {
	p, ok := positionOf(g.ent)
	if !ok {
		return
	}
	allReached := true
	for i, wp := range g.waypoints {
		if !g.reached[i] && p.Within(wp, g.deviation) {
			g.reached[i] = true
		}
		if !g.reached[i] {
			allReached = false
		}
	}
	if allReached {
		g.complete()
	}
}

func (g *WaypointTrajectoryGoal) Enter(ctx context.Context) State { return g.enter(ctx, g) }
