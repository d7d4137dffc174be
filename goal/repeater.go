package goal

import (
	"context"
	"time"
)

// GoalRepeater runs its wrapped goal up to n times, resetting it between
// runs, until either n completions or the repeater's own max_duration
// elapses (spec.md §4.5). Success requires every one of the n runs to
// have COMPLETED and the total elapsed time to lie within
// [min_duration, max_duration]. The child keeps the tick_freq_hz it was
// constructed with; the repeater does not pass its own tick frequency on.
type GoalRepeater struct {
	*base
	child Goal
	n     int
}

func NewGoalRepeater(name string, child Goal, n int, opts ...Option) *GoalRepeater {
	return &GoalRepeater{
		base:  newBase(name, "goal_repeater", child.Entities(), opts...),
		child: child,
		n:     n,
	}
}

// Enter, like ComplexGoal, bypasses base.enter's tick loop: progress is
// driven by the child's own run-reset-rerun cycle.
func (r *GoalRepeater) Enter(ctx context.Context) State {
	r.mu.Lock()
	r.tsStart = time.Now()
	r.state = RUNNING
	r.mu.Unlock()
	r.emitState()

	var cctx context.Context
	var cancel context.CancelFunc
	if r.maxDuration > 0 {
		cctx, cancel = context.WithTimeout(ctx, r.maxDuration)
	} else {
		cctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	go func() {
		select {
		case <-r.terminateCh:
			cancel()
		case <-cctx.Done():
		}
	}()

	completedAll := true
	ran := 0
	for i := 0; i < r.n; i++ {
		if cctx.Err() != nil {
			completedAll = false
			break
		}
		st := r.child.Enter(cctx)
		ran++
		if st != COMPLETED {
			completedAll = false
			break
		}
		if i < r.n-1 {
			r.child.Reset()
		}
	}
	if ran < r.n {
		completedAll = false
	}

	elapsed := time.Since(r.tsStart)
	final := FAILED
	if completedAll {
		withinMin := r.minDuration <= 0 || elapsed >= r.minDuration
		withinMax := r.maxDuration <= 0 || elapsed <= r.maxDuration
		if withinMin && withinMax {
			final = COMPLETED
		}
	}
	if ctx.Err() != nil && final != COMPLETED {
		final = TERMINATED
	}

	r.mu.Lock()
	r.state = final
	r.duration = elapsed
	r.mu.Unlock()
	r.emitState()
	r.recordMetrics(0)
	return final
}

// childGoals exposes the wrapped goal to AttachMonitor/AttachMetrics.
func (r *GoalRepeater) childGoals() []Goal { return []Goal{r.child} }

func (r *GoalRepeater) Terminate() {
	r.base.Terminate()
	if !r.child.State().Terminal() {
		r.child.Terminate()
	}
}
