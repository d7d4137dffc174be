// Package goal implements the Goal lifecycle state machine (spec.md §4.3,
// C3) and every concrete goal variant. Per the design note in spec.md §9,
// variants are one algebraic Kind behind a common Goal interface rather
// than a class hierarchy: each embeds *base and supplies onEnter/tick/
// onExit hooks.
package goal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robotics-4-all/goalee/entity"
	"github.com/robotics-4-all/goalee/internal/config"
	"github.com/robotics-4-all/goalee/internal/glog"
	"github.com/robotics-4-all/goalee/internal/metrics"
)

// State is one node of the IDLE -> RUNNING -> {COMPLETED,FAILED,TERMINATED}
// machine described in spec.md §4.3.
type State int

const (
	IDLE State = iota
	RUNNING
	COMPLETED
	FAILED
	TERMINATED
)

func (s State) String() string {
	switch s {
	case IDLE:
		return "IDLE"
	case RUNNING:
		return "RUNNING"
	case COMPLETED:
		return "COMPLETED"
	case FAILED:
		return "FAILED"
	case TERMINATED:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s is one the state machine only leaves via reset().
func (s State) Terminal() bool {
	return s == COMPLETED || s == FAILED || s == TERMINATED
}

// EventSink receives goal_state transitions. RTMonitor implements this;
// kept as a narrow interface here to avoid an import cycle between goal
// and rtmonitor.
type EventSink interface {
	Emit(eventType string, data map[string]any)
}

// Hooks is implemented by each concrete goal variant embedding *base.
type Hooks interface {
	// onEnter runs once, immediately after the state flips to RUNNING.
	onEnter()
	// tick runs once per tick_freq_hz period; implementations call
	// b.complete() or b.fail() when their predicate is satisfied.
	tick()
	// onExit runs once, right before Enter returns.
	onExit()
}

// Goal is the uniform interface every variant satisfies.
type Goal interface {
	Name() string
	Type() string
	State() State
	Status() bool
	Duration() time.Duration
	Entities() []*entity.Entity
	Enter(ctx context.Context) State
	Terminate()
	Reset()
	Serialize() map[string]any
}

// Option configures a base at construction.
type Option func(*base)

func WithMaxDuration(d time.Duration) Option { return func(b *base) { b.maxDuration = d } }
func WithMinDuration(d time.Duration) Option { return func(b *base) { b.minDuration = d } }
func WithForDuration(d time.Duration) Option { return func(b *base) { b.forDuration = d } }
func WithTickFreqHz(hz float64) Option       { return func(b *base) { b.tickFreqHz = hz } }
func WithMonitor(sink EventSink) Option      { return func(b *base) { b.monitor = sink } }
func WithMetrics(m *metrics.GoalMetrics) Option {
	return func(b *base) { b.metrics = m }
}

type base struct {
	name    string
	typeTag string

	mu          sync.Mutex
	state       State
	maxDuration time.Duration
	minDuration time.Duration
	forDuration time.Duration
	tickFreqHz  float64
	tsStart     time.Time
	duration    time.Duration
	holding     bool
	holdStart   time.Time
	terminateCh chan struct{}

	entities []*entity.Entity
	monitor  EventSink
	metrics  *metrics.GoalMetrics
	log      *zap.SugaredLogger
}

func newBase(name, typeTag string, entities []*entity.Entity, opts ...Option) *base {
	if name == "" {
		name = uuid.NewString()
	}
	b := &base{
		name:        name,
		typeTag:     typeTag,
		state:       IDLE,
		tickFreqHz:  float64(config.Load().TickFreqHz),
		entities:    entities,
		terminateCh: make(chan struct{}),
		log:         glog.New("goal." + typeTag),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// goalBase exposes the concrete *base to package-internal callers (e.g.
// ComplexGoal.AddGoal, which needs to clamp a child's duration fields)
// without widening the public Goal interface.
func (b *base) goalBase() *base { return b }

// childGoals is implemented by composite goal types (ComplexGoal,
// GoalRepeater) so AttachMonitor/AttachMetrics can cascade into nested
// children without widening the public Goal interface.
type childGoals interface {
	childGoals() []Goal
}

// AttachMonitor wires sink into g and, if g wraps other goals
// (ComplexGoal, GoalRepeater), into every nested child too, so emitState
// reaches the RT monitor throughout the tree regardless of when the
// caller attaches it relative to construction (spec.md §4.3, §4.7).
func AttachMonitor(g Goal, sink EventSink) {
	if hb, ok := g.(interface{ goalBase() *base }); ok {
		b := hb.goalBase()
		b.mu.Lock()
		b.monitor = sink
		b.mu.Unlock()
	}
	if hc, ok := g.(childGoals); ok {
		for _, child := range hc.childGoals() {
			AttachMonitor(child, sink)
		}
	}
}

// AttachMetrics wires m into g and, if g wraps other goals, into every
// nested child too.
func AttachMetrics(g Goal, m *metrics.GoalMetrics) {
	if hb, ok := g.(interface{ goalBase() *base }); ok {
		b := hb.goalBase()
		b.mu.Lock()
		b.metrics = m
		b.mu.Unlock()
	}
	if hc, ok := g.(childGoals); ok {
		for _, child := range hc.childGoals() {
			AttachMetrics(child, m)
		}
	}
}

func (b *base) Name() string                  { return b.name }
func (b *base) Type() string                  { return b.typeTag }
func (b *base) Entities() []*entity.Entity    { return b.entities }

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) Status() bool {
	return b.State() == COMPLETED
}

func (b *base) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duration
}

// complete transitions RUNNING -> COMPLETED. A no-op outside RUNNING, so
// goals can call it freely from tick() without re-checking state.
func (b *base) complete() {
	b.mu.Lock()
	if b.state == RUNNING {
		b.state = COMPLETED
	}
	b.mu.Unlock()
}

func (b *base) fail() {
	b.mu.Lock()
	if b.state == RUNNING {
		b.state = FAILED
	}
	b.mu.Unlock()
}

// observeHold implements the for_duration hold-window rule (spec.md §4.3):
// a false reading resets the hold; a true reading must persist
// continuously for forDuration before observeHold reports satisfaction.
// With forDuration unset, a single true tick satisfies it.
func (b *base) observeHold(predicateTrue bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !predicateTrue {
		b.holding = false
		return false
	}
	if b.forDuration <= 0 {
		return true
	}
	if !b.holding {
		b.holding = true
		b.holdStart = time.Now()
		return false
	}
	return time.Since(b.holdStart) >= b.forDuration
}

// Terminate requests external cancellation. The running Enter loop (if
// any) observes this at its next check and exits with TERMINATED.
func (b *base) Terminate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.terminateCh:
	default:
		close(b.terminateCh)
	}
}

// Reset returns a terminal goal to IDLE, required for GoalRepeater.
func (b *base) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = IDLE
	b.tsStart = time.Time{}
	b.duration = 0
	b.holding = false
	b.terminateCh = make(chan struct{})
}

func (b *base) Serialize() map[string]any {
	names := make([]string, 0, len(b.entities))
	for _, e := range b.entities {
		names = append(names, e.Name)
	}
	return map[string]any{
		"name":     b.name,
		"type":     b.typeTag,
		"state":    b.State().String(),
		"entities": names,
	}
}

func (b *base) emitState() {
	if b.monitor == nil {
		return
	}
	b.monitor.Emit("goal_state", b.Serialize())
}

func (b *base) recordMetrics(freq float64) {
	if b.metrics == nil {
		return
	}
	b.metrics.RecordTerminal(b.typeTag, b.State().String(), b.Duration())
}

// enter runs the full state-machine loop described in spec.md §4.3: flip
// to RUNNING, call onEnter, then tick at tickFreqHz until a terminal
// state is reached (predicate success, max_duration timeout, or external
// Terminate/ctx cancellation), applying the min_duration-on-early-exit
// rule before returning.
func (b *base) enter(ctx context.Context, h Hooks) State {
	b.mu.Lock()
	b.tsStart = time.Now()
	b.state = RUNNING
	b.mu.Unlock()
	b.emitState()

	h.onEnter()

	freq := b.tickFreqHz
	if freq <= 0 {
		freq = 10
	}
	interval := time.Duration(float64(time.Second) / freq)

	finish := func(st State) State {
		b.mu.Lock()
		b.state = st
		b.duration = time.Since(b.tsStart)
		b.mu.Unlock()
		h.onExit()
		b.emitState()
		b.recordMetrics(freq)
		return st
	}

	for {
		select {
		case <-b.terminateCh:
			return finish(TERMINATED)
		case <-ctx.Done():
			return finish(TERMINATED)
		default:
		}

		if b.maxDuration > 0 && time.Since(b.tsStart) > b.maxDuration {
			return finish(FAILED)
		}

		h.tick()

		if st := b.State(); st.Terminal() {
			if st == COMPLETED && b.minDuration > 0 && time.Since(b.tsStart) < b.minDuration {
				st = FAILED
			}
			return finish(st)
		}

		select {
		case <-time.After(interval):
		case <-b.terminateCh:
			return finish(TERMINATED)
		case <-ctx.Done():
			return finish(TERMINATED)
		}
	}
}
