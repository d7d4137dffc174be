// Package scenario implements the Scenario Executor (spec.md §4.6, C6):
// wiring, execution strategy, supervision, scoring, and event emission
// for a set of goals, anti-goals, and fatal goals sharing one broker
// connection. Grounded on original_source/goalee/scenario.py, extended
// with the anti-goal/fatal-goal semantics spec.md adds on top of it.
package scenario

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/robotics-4-all/goalee/broker"
	"github.com/robotics-4-all/goalee/entity"
	"github.com/robotics-4-all/goalee/goal"
	"github.com/robotics-4-all/goalee/internal/glog"
	"github.com/robotics-4-all/goalee/internal/metrics"
	"github.com/robotics-4-all/goalee/rtmonitor"
)

// Execution selects run_seq vs run_concurrent.
type Execution int

const (
	Sequential Execution = iota
	Concurrent
)

func (e Execution) String() string {
	if e == Concurrent {
		return "concurrent"
	}
	return "sequential"
}

// shutdownGrace is the pause between the last goal exiting and closing
// the broker connection, giving outbound monitor events time to flush
// (spec.md §4.6).
const shutdownGrace = 500 * time.Millisecond

// Scenario wires entities, goals, anti-goals, and fatal goals against one
// shared broker connection and runs them to completion.
type Scenario struct {
	Name string

	descriptor broker.Descriptor
	conn       broker.Conn

	goals       []goal.Goal
	antiGoals   []goal.Goal
	fatalGoals  []goal.Goal
	goalWeights []float64
	antiWeights []float64

	monitor     *rtmonitor.RTMonitor
	metrics     *metrics.ScenarioMetrics
	goalMetrics *metrics.GoalMetrics
	log         *zap.SugaredLogger

	entities []*entity.Entity
	started  bool
}

// New constructs an inert scenario bound to d. d may be the zero
// broker.Descriptor for offline tests; call WithConn to inject a
// pre-dialed connection (e.g. broker.NewInMemory()) instead of dialing d.
func New(name string, d broker.Descriptor, reg prometheus.Registerer) *Scenario {
	if name == "" {
		name = uuid.NewString()
	}
	return &Scenario{
		Name:        name,
		descriptor:  d,
		metrics:     metrics.NewScenarioMetrics(name, reg),
		goalMetrics: metrics.NewGoalMetrics(name, reg),
		log:         glog.New("scenario." + name),
	}
}

// AddGoal registers a regular goal with weight w. Weights are taken as
// given; normalizeWeights only substitutes a uniform vector if the
// internal weight and goal slices ever end up mismatched in length,
// which AddGoal itself never causes.
func (s *Scenario) AddGoal(g goal.Goal, weight float64) {
	s.goals = append(s.goals, g)
	s.goalWeights = append(s.goalWeights, weight)
}

// AddAntiGoal registers an anti-goal: runs alongside main goals, never
// causes early termination, and subtracts from the final score.
func (s *Scenario) AddAntiGoal(g goal.Goal, weight float64) {
	s.antiGoals = append(s.antiGoals, g)
	s.antiWeights = append(s.antiWeights, weight)
}

// AddFatalGoal registers a fatal goal: reaching COMPLETED means a
// prohibited condition occurred and terminates every non-terminal main
// and anti goal.
func (s *Scenario) AddFatalGoal(g goal.Goal) {
	s.fatalGoals = append(s.fatalGoals, g)
}

// InitRTMonitor attaches a monitor publishing on etopic/ltopic over the
// scenario's broker connection, and rewires the scenario logger to mirror
// through it (spec.md §4.7, matching RemoteLogHandler).
func (s *Scenario) InitRTMonitor(ctx context.Context, etopic, ltopic string) error {
	conn, err := s.ensureConn(ctx)
	if err != nil {
		return err
	}
	s.monitor = rtmonitor.New(conn, etopic, ltopic)
	s.log = glog.WithSink(s.log, s.monitor)
	s.attachObservability()
	return nil
}

// attachObservability propagates the scenario's monitor and goal metrics
// into every main, anti, and fatal goal (cascading into ComplexGoal/
// GoalRepeater children via goal.AttachMonitor/AttachMetrics), regardless
// of whether InitRTMonitor was called before or after the goals were
// added (spec.md §4.3 "state-change callbacks publish ... when an RT
// monitor is attached", §4.7, §6). Safe to call repeatedly.
func (s *Scenario) attachObservability() {
	all := make([]goal.Goal, 0, len(s.goals)+len(s.antiGoals)+len(s.fatalGoals))
	all = append(all, s.goals...)
	all = append(all, s.antiGoals...)
	all = append(all, s.fatalGoals...)
	for _, g := range all {
		if s.monitor != nil {
			goal.AttachMonitor(g, s.monitor)
		}
		if s.goalMetrics != nil {
			goal.AttachMetrics(g, s.goalMetrics)
		}
	}
}

func (s *Scenario) ensureConn(ctx context.Context) (broker.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := broker.Dial(ctx, s.descriptor)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

// WithConn injects a pre-dialed connection (typically broker.NewInMemory()
// for offline tests) instead of dialing the descriptor.
func (s *Scenario) WithConn(conn broker.Conn) *Scenario {
	s.conn = conn
	return s
}

// buildEntityList walks every goal category, including nested composites
// and repeaters (whose Entities() already flattens their children), and
// returns the deduplicated union (spec.md §4.6).
func (s *Scenario) buildEntityList() []*entity.Entity {
	seen := make(map[string]bool)
	var out []*entity.Entity
	collect := func(goals []goal.Goal) {
		for _, g := range goals {
			for _, e := range g.Entities() {
				if e == nil || seen[e.Name] {
					continue
				}
				seen[e.Name] = true
				out = append(out, e)
			}
		}
	}
	collect(s.goals)
	collect(s.antiGoals)
	collect(s.fatalGoals)
	return out
}

// startEntities opens a subscription per entity on the shared connection.
// Idempotent, and the entity list is stable after this is first called
// (spec.md §3 invariant).
func (s *Scenario) startEntities(ctx context.Context) error {
	if s.started {
		return nil
	}
	conn, err := s.ensureConn(ctx)
	if err != nil {
		return err
	}
	s.entities = s.buildEntityList()
	for _, e := range s.entities {
		if err := e.Start(ctx, conn); err != nil {
			return err
		}
	}
	s.started = true
	return nil
}

func normalizeWeights(weights []float64, n int, label string, log *zap.SugaredLogger) []float64 {
	if len(weights) == n {
		return weights
	}
	if n == 0 {
		return nil
	}
	log.Warnw("weight vector length mismatch, falling back to uniform weights", "vector", label, "want", n, "got", len(weights))
	uniform := make([]float64, n)
	for i := range uniform {
		uniform[i] = 1.0 / float64(n)
	}
	return uniform
}

// Run executes the scenario per exec and returns the final score.
func (s *Scenario) Run(ctx context.Context, exec Execution) (float64, error) {
	if err := s.startEntities(ctx); err != nil {
		return 0, err
	}
	s.attachObservability()

	s.goalWeights = normalizeWeights(s.goalWeights, len(s.goals), "goal_weights", s.log)
	s.antiWeights = normalizeWeights(s.antiWeights, len(s.antiGoals), "antigoal_weights", s.log)

	s.emit("scenario_started", s.lifecycleData(exec, nil))

	runCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	var wg sync.WaitGroup
	s.runBackground(runCtx, &wg, s.antiGoals)
	s.runFatalWatch(runCtx, cancelAll, &wg)

	switch exec {
	case Sequential:
		s.runSeq(runCtx, cancelAll)
	default:
		s.runConcurrentMain(runCtx, cancelAll)
	}

	cancelAll()
	wg.Wait()

	time.Sleep(shutdownGrace)

	score := s.calcScore()
	data := s.lifecycleData(exec, &score)
	data["results"] = s.makeResultList()
	s.emit("scenario_finished", data)
	s.log.Infow("scenario finished", "execution", exec.String(), "score", score)

	if s.metrics != nil {
		s.metrics.Score.WithLabelValues(s.Name).Set(score)
		s.metrics.Runs.WithLabelValues(s.Name, exec.String()).Inc()
		if s.fatalTriggered() {
			s.metrics.FatalTriggered.WithLabelValues(s.Name).Inc()
		}
	}
	return score, nil
}

func (s *Scenario) runSeq(ctx context.Context, cancelAll context.CancelFunc) {
	for _, g := range s.goals {
		select {
		case <-ctx.Done():
			return
		default:
		}
		g.Enter(ctx)
		s.emit("scenario_update", s.lifecycleData(Sequential, nil))
		if s.fatalTriggered() {
			cancelAll()
			return
		}
	}
}

func (s *Scenario) runConcurrentMain(ctx context.Context, cancelAll context.CancelFunc) {
	var wg sync.WaitGroup
	for _, g := range s.goals {
		wg.Add(1)
		go func(g goal.Goal) {
			defer wg.Done()
			g.Enter(ctx)
		}(g)
	}
	wg.Wait()
}

// runBackground starts a set of goals as background tasks tracked by wg,
// used for anti-goals which run in parallel with the main strategy and
// never gate its completion.
func (s *Scenario) runBackground(ctx context.Context, wg *sync.WaitGroup, goals []goal.Goal) {
	for _, g := range goals {
		wg.Add(1)
		go func(g goal.Goal) {
			defer wg.Done()
			g.Enter(ctx)
		}(g)
	}
}

// runFatalWatch starts every fatal goal as a background task and, the
// instant one reaches COMPLETED, terminates every non-terminal main and
// anti-goal by cancelling the shared context (spec.md §4.6, invariant 6).
// Fatal goals that merely time out are not fatal to the scenario.
func (s *Scenario) runFatalWatch(ctx context.Context, cancelAll context.CancelFunc, wg *sync.WaitGroup) {
	for _, g := range s.fatalGoals {
		wg.Add(1)
		go func(g goal.Goal) {
			defer wg.Done()
			if g.Enter(ctx) == goal.COMPLETED {
				s.log.Warnw("fatal goal completed, terminating scenario", "goal", g.Name())
				cancelAll()
			}
		}(g)
	}
}

func (s *Scenario) fatalTriggered() bool {
	for _, g := range s.fatalGoals {
		if g.State() == goal.COMPLETED {
			return true
		}
	}
	return false
}

func (s *Scenario) calcScore() float64 {
	var score float64
	for i, g := range s.goals {
		if g.Status() {
			score += s.goalWeights[i]
		}
	}
	for i, g := range s.antiGoals {
		if g.Status() {
			score -= s.antiWeights[i]
		}
	}
	return score
}

func (s *Scenario) makeResultList() [][2]any {
	out := make([][2]any, 0, len(s.goals))
	for _, g := range s.goals {
		out = append(out, [2]any{g.Name(), g.Status()})
	}
	return out
}

func serializeGoals(goals []goal.Goal) []map[string]any {
	out := make([]map[string]any, 0, len(goals))
	for _, g := range goals {
		out = append(out, g.Serialize())
	}
	return out
}

func (s *Scenario) lifecycleData(exec Execution, score *float64) map[string]any {
	data := map[string]any{
		"name":             s.Name,
		"goals":            serializeGoals(s.goals),
		"anti_goals":       serializeGoals(s.antiGoals),
		"fatal_goals":      serializeGoals(s.fatalGoals),
		"goal_weights":     s.goalWeights,
		"antigoal_weights": s.antiWeights,
		"execution":        exec.String(),
	}
	if score != nil {
		data["score"] = *score
	}
	return data
}

func (s *Scenario) emit(eventType string, data map[string]any) {
	if s.monitor != nil {
		s.monitor.Emit(eventType, data)
	}
}

// Close tears down the shared broker connection.
func (s *Scenario) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
