// Package scheduler implements the Cost Model / Scheduler (§4.C): it
// orders a batch of files into a priority-ordered plan using the Adaptive
// Predictor, with a shortest-job-first fallback for small batches.
package scheduler

import (
	"sort"
	"time"

	"github.com/ironveil/cryptgrid/internal/model"
	"github.com/ironveil/cryptgrid/internal/predictor"
)

// sjfGateBytes is the total-batch-size threshold below which prediction
// overhead is assumed to dominate, so the scheduler falls back to plain
// shortest-job-first ordering (§4.C, invariant 9).
const sjfGateBytes = 10 * 1024 * 1024

// Policy selects how Plan orders a batch once the SJF gate does not apply.
type Policy string

const (
	// PolicyPriority orders by the predictor's ascending predicted cost.
	PolicyPriority Policy = "priority"
	// PolicyFIFO preserves input order unconditionally (§6 configuration
	// table, supplemented from original_source/cli_plus.py).
	PolicyFIFO Policy = "fifo"
)

// Scheduler owns a Predictor and turns file listings into ordered Tasks.
// Stateful across Plan/Observe calls within a process lifetime; state is
// not persisted (§4.C).
type Scheduler struct {
	predictor *predictor.Predictor
	policy    Policy
}

// New constructs a Scheduler with the given ordering policy, backed by a
// fresh Predictor.
func New(policy Policy) *Scheduler {
	return &Scheduler{
		predictor: predictor.New(),
		policy:    policy,
	}
}

// Plan returns files as a priority-ordered sequence of Tasks (§4.C):
//
//  1. If the batch's total size is under the SJF gate, sort by ascending
//     size regardless of policy — prediction overhead would dominate.
//  2. Otherwise, under PolicyFIFO preserve input order; under
//     PolicyPriority compute predicted cost per file and sort ascending.
//
// Ties are broken by input order in both branches (stable sort).
func (s *Scheduler) Plan(files []model.Task) []model.Task {
	plan := make([]model.Task, len(files))
	copy(plan, files)

	var total int64
	for _, f := range plan {
		total += f.Size
	}

	if total < sjfGateBytes {
		sort.SliceStable(plan, func(i, j int) bool {
			return plan[i].Size < plan[j].Size
		})
		return plan
	}

	if s.policy == PolicyFIFO {
		return plan
	}

	for i := range plan {
		plan[i].Priority = s.predictor.Predict(plan[i].Size, plan[i].Suffix)
	}
	sort.SliceStable(plan, func(i, j int) bool {
		return plan[i].Priority < plan[j].Priority
	})
	return plan
}

// Observe forwards a completed task's elapsed time to the predictor
// (§4.C), feeding back into future predictions for that file's suffix.
func (s *Scheduler) Observe(task model.Task, elapsed time.Duration) {
	s.predictor.Observe(task.Size, task.Suffix, elapsed.Seconds())
}
