package goal

import (
	"context"
	"fmt"
	"time"

	"github.com/robotics-4-all/goalee/entity"
)

// StreamStrategy selects how EntityAttrStream matches the observed
// sequence of distinct attr values against the expected set.
type StreamStrategy int

const (
	StreamAll StreamStrategy = iota
	StreamNone
	StreamAtLeastOne
	StreamJustOne
	StreamExactlyX
	StreamAllOrdered
	StreamExactlyXOrdered
)

// EntityAttrStream observes the sequence of distinct values taken by one
// attribute over time and matches it against an expected multiset
// (spec.md §4.3). Ordered variants reset partial progress when a value
// arrives out of order (invariant 7, spec.md §8).
type EntityAttrStream struct {
	*base
	ent      *entity.Entity
	attr     string
	expected []any
	strategy StreamStrategy
	x        int
	// window is used instead of base.maxDuration for StreamNone, whose
	// timeout means success rather than FAILED.
	window time.Duration

	hasLast  bool
	lastVal  any
	seen     map[string]bool
	matched  int
	orderIdx int
	marks    []bool
}

// NewEntityAttrStream builds a stream goal. For StreamExactlyX /
// StreamExactlyXOrdered, x is the required count; it is ignored otherwise.
// For StreamNone, window is the observation period after which "nothing
// prohibited appeared" becomes COMPLETED; only StreamNone reads it
// (max_duration is left to the caller for other strategies).
func NewEntityAttrStream(name string, ent *entity.Entity, attr string, expected []any, strategy StreamStrategy, x int, window time.Duration, opts ...Option) *EntityAttrStream {
	g := &EntityAttrStream{
		base:     newBase(name, "entity_attr_stream", []*entity.Entity{ent}, opts...),
		ent:      ent,
		attr:     attr,
		expected: expected,
		strategy: strategy,
		x:        x,
		window:   window,
		seen:     make(map[string]bool),
		marks:    make([]bool, len(expected)),
	}
	return g
}

func valueKey(v any) string { return fmt.Sprintf("%v", v) }

func valuesEqual(a, b any) bool { return valueKey(a) == valueKey(b) }

func (g *EntityAttrStream) onEnter() {}
func (g *EntityAttrStream) onExit()  {}

func (g *EntityAttrStream) expectedIndex(v any) int {
	for i, e := range g.expected {
		if valuesEqual(e, v) {
			return i
		}
	}
	return -1
}

func (g *EntityAttrStream) tick() {
	cur := g.ent.GetAttr(g.attr)
	if cur == nil {
		if g.strategy == StreamNone && time.Since(g.tsStartUnsafe()) >= g.window {
			g.complete()
		}
		return
	}
	changed := !g.hasLast || !valuesEqual(cur, g.lastVal)
	g.hasLast = true
	g.lastVal = cur

	switch g.strategy {
	case StreamNone:
		if changed && g.expectedIndex(cur) >= 0 {
			g.fail()
			return
		}
		if time.Since(g.tsStartUnsafe()) >= g.window {
			g.complete()
		}
		return
	case StreamAllOrdered, StreamExactlyXOrdered:
		if changed {
			g.tickOrdered(cur)
		}
		return
	}

	if !changed {
		return
	}
	if idx := g.expectedIndex(cur); idx >= 0 {
		k := valueKey(cur)
		if !g.seen[k] {
			g.seen[k] = true
			g.matched++
		}
	}

	switch g.strategy {
	case StreamAll:
		if g.matched == len(g.expected) {
			g.complete()
		}
	case StreamAtLeastOne:
		if g.matched >= 1 {
			g.complete()
		}
	case StreamJustOne:
		if g.matched == 1 {
			g.complete()
		}
	case StreamExactlyX:
		if g.matched == g.x {
			g.complete()
		}
	}
}

// tickOrdered implements the ordered-stream matching rule: value v
// advances the mark at the next unmarked position only if it equals that
// position's expected value; a value matching an earlier, already-marked
// position, or a later position out of turn, clears that position's mark
// (invariant 7, spec.md §8).
func (g *EntityAttrStream) tickOrdered(v any) {
	idx := g.expectedIndex(v)
	if idx < 0 {
		return
	}
	if idx == g.orderIdx {
		g.marks[idx] = true
		g.orderIdx++
	} else {
		g.marks[idx] = false
	}

	target := len(g.expected)
	if g.strategy == StreamExactlyXOrdered {
		target = g.x
	}
	if g.orderIdx >= target {
		g.complete()
	}
}

// tsStartUnsafe exposes the goal's start time for the StreamNone manual
// deadline; base does not otherwise leak tsStart to variants.
func (g *EntityAttrStream) tsStartUnsafe() time.Time {
	g.base.mu.Lock()
	defer g.base.mu.Unlock()
	return g.base.tsStart
}

func (g *EntityAttrStream) Enter(ctx context.Context) State { return g.enter(ctx, g) }
