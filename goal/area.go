package goal

import (
	"context"
	"time"

	"github.com/robotics-4-all/goalee/entity"
	"github.com/robotics-4-all/goalee/types"
)

// AreaTag selects an area goal's polarity (spec.md §4.3).
type AreaTag int

const (
	AreaEnter AreaTag = iota
	AreaExit
	AreaAvoid
	AreaStep
)

// Rectangle is an axis-aligned 2D region defined by its bottom-left
// corner and (width, height), matching RectangleAreaGoal's geometry.
type Rectangle struct {
	BottomLeft types.Point
	Width      float64
	Height     float64
}

func (r Rectangle) Contains(p types.Point) bool {
	return p.X >= r.BottomLeft.X && p.X <= r.BottomLeft.X+r.Width &&
		p.Y >= r.BottomLeft.Y && p.Y <= r.BottomLeft.Y+r.Height
}

// Circle is a 2D region defined by centre and radius.
type Circle struct {
	Center types.Point
	Radius float64
}

func (c Circle) Contains(p types.Point) bool {
	return c.Center.Distance(p) <= c.Radius
}

// region is implemented by Rectangle and Circle.
type region interface {
	Contains(p types.Point) bool
}

// positionOf reads entity.state.position as a types.Point, per spec.md §6
// ("positional payloads use nested objects {"position":{"x":…}}").
func positionOf(e *entity.Entity) (types.Point, bool) {
	v := e.GetAttr("position")
	m, ok := v.(map[string]any)
	if !ok {
		return types.Point{}, false
	}
	return types.PointFromMap(m), true
}

// areaGoal is the shared tick logic for RectangleAreaGoal, CircularAreaGoal
// and MovingAreaGoal, which differ only in how their region is computed
// each tick.
type areaGoal struct {
	*base
	entities []*entity.Entity
	tag      AreaTag
	window   time.Duration // self-managed deadline for AreaAvoid
	regionOf func() region
}

func (g *areaGoal) onEnter() {}
func (g *areaGoal) onExit()  {}

func (g *areaGoal) tick() {
	reg := g.regionOf()

	switch g.tag {
	case AreaEnter:
		anyInside := false
		for _, e := range g.entities {
			if p, ok := positionOf(e); ok && reg.Contains(p) {
				anyInside = true
				break
			}
		}
		if g.observeHold(anyInside) {
			g.complete()
		}

	case AreaStep:
		for _, e := range g.entities {
			if p, ok := positionOf(e); ok && reg.Contains(p) {
				g.complete()
				return
			}
		}

	case AreaExit:
		anyOutside := false
		for _, e := range g.entities {
			if p, ok := positionOf(e); ok && !reg.Contains(p) {
				anyOutside = true
				break
			}
		}
		if g.observeHold(anyOutside) {
			g.complete()
		}

	case AreaAvoid:
		anyInside := false
		for _, e := range g.entities {
			if p, ok := positionOf(e); ok && reg.Contains(p) {
				anyInside = true
				break
			}
		}
		if g.observeHold(anyInside) {
			g.fail()
			return
		}
		if time.Since(g.tsStartUnsafeArea()) >= g.window {
			g.complete()
		}
	}
}

func (g *areaGoal) tsStartUnsafeArea() time.Time {
	g.base.mu.Lock()
	defer g.base.mu.Unlock()
	return g.base.tsStart
}

func (g *areaGoal) Enter(ctx context.Context) State { return g.enter(ctx, g) }

// RectangleAreaGoal monitors entities against a fixed rectangle.
type RectangleAreaGoal struct {
	*areaGoal
	rect Rectangle
}

func NewRectangleAreaGoal(name string, entities []*entity.Entity, rect Rectangle, tag AreaTag, window time.Duration, opts ...Option) *RectangleAreaGoal {
	g := &RectangleAreaGoal{rect: rect}
	g.areaGoal = &areaGoal{
		base:     newBase(name, "rectangle_area_goal", entities, opts...),
		entities: entities,
		tag:      tag,
		window:   window,
	}
	g.areaGoal.regionOf = func() region { return g.rect }
	return g
}

// CircularAreaGoal monitors entities against a fixed circle.
type CircularAreaGoal struct {
	*areaGoal
	circle Circle
}

func NewCircularAreaGoal(name string, entities []*entity.Entity, circle Circle, tag AreaTag, window time.Duration, opts ...Option) *CircularAreaGoal {
	g := &CircularAreaGoal{circle: circle}
	g.areaGoal = &areaGoal{
		base:     newBase(name, "circular_area_goal", entities, opts...),
		entities: entities,
		tag:      tag,
		window:   window,
	}
	g.areaGoal.regionOf = func() region { return g.circle }
	return g
}

// MovingAreaGoal centres a circle of fixed radius on a live motion
// entity's position, excluding that entity from the monitored set
// (spec.md §4.3).
type MovingAreaGoal struct {
	*areaGoal
	motionEntity *entity.Entity
	radius       float64
}

func NewMovingAreaGoal(name string, motionEntity *entity.Entity, monitored []*entity.Entity, radius float64, tag AreaTag, window time.Duration, opts ...Option) *MovingAreaGoal {
	all := append([]*entity.Entity{motionEntity}, monitored...)
	g := &MovingAreaGoal{motionEntity: motionEntity, radius: radius}
	g.areaGoal = &areaGoal{
		base:     newBase(name, "moving_area_goal", all, opts...),
		entities: monitored,
		tag:      tag,
		window:   window,
	}
	g.areaGoal.regionOf = func() region {
		center, _ := positionOf(g.motionEntity)
		return Circle{Center: center, Radius: g.radius}
	}
	return g
}
