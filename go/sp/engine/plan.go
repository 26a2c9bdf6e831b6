/*
Copyright 2026 The Shardplan Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package engine holds the plan values the planner produces and the
// execution layer consumes. The planner builds them; this package does not
// execute anything itself.
package engine

import (
	"encoding/json"
	"math"

	"shardplan.io/shardplan/go/sp/querytree"
	"shardplan.io/shardplan/go/sp/sperrors"
)

// ForcedReplanCost is an arbitrarily high plan cost, low enough to be
// added up without overflowing. A plan carrying it signals the caching
// layer to discard it and re-plan once concrete parameter values are
// available.
const ForcedReplanCost = math.MaxFloat32 / 1e8

// SubPlan is an independently compiled query fragment whose output is
// materialized to an intermediate result and read back through a
// placeholder scan.
type SubPlan struct {
	PlanID    uint64 `json:"plan_id"`
	SubPlanID int    `json:"sub_plan_id"`
	// ResultPath is the symbolic location of the materialized result,
	// derived deterministically from the plan identifiers and the
	// session identity.
	ResultPath string                `json:"result_path"`
	Columns    []querytree.ColumnDef `json:"columns,omitempty"`
	Plan       *FinalPlan            `json:"plan,omitempty"`
}

// LocalPlan is the output of a baseline (non-distributed) planning pass.
type LocalPlan struct {
	Tree      *querytree.Tree       `json:"tree,omitempty"`
	Targets   []querytree.ColumnDef `json:"targets,omitempty"`
	Relations []string              `json:"relations,omitempty"`
	TotalCost float64               `json:"total_cost,omitempty"`
}

// DistributedPlan is the worker-side part of a plan: the ordered sub-plan
// list, the optional coordinator-merge scope, and either a usable plan
// shape or a deferred planning error.
type DistributedPlan struct {
	Operation querytree.CommandType `json:"operation"`
	PlanID    uint64                `json:"plan_id"`
	// Router plans execute entirely on worker shards; non-router plans
	// need a coordinator merge stage described by MergeScope.
	Router     bool            `json:"router,omitempty"`
	MergeScope *querytree.Tree `json:"merge_scope,omitempty"`
	SubPlans   []*SubPlan      `json:"sub_plans,omitempty"`
	Relations  []string        `json:"relations,omitempty"`
	TaskCount  int             `json:"task_count,omitempty"`
	// PlanningError is a deferred error: another strategy may still
	// succeed. It is never set on a plan that is also usable.
	PlanningError *sperrors.PlanningError `json:"planning_error,omitempty"`
}

// MultiTask reports whether the plan spans more than one task.
func (p *DistributedPlan) MultiTask() bool {
	return p.TaskCount > 1
}

// IsUpdateOrDelete reports whether the plan performs an update or delete.
func (p *DistributedPlan) IsUpdateOrDelete() bool {
	return p.Operation == querytree.Update || p.Operation == querytree.Delete
}

// IsMultiShardModify reports whether the plan is a modify spanning
// multiple shards.
func (p *DistributedPlan) IsMultiShardModify() bool {
	return p.IsUpdateOrDelete() && p.MultiTask()
}

// FinalPlan is the executable plan handed to the execution layer: the
// distributed fragment plus, for non-router shapes, a coordinator-merge
// stage, with relation-access bookkeeping for permission checks.
type FinalPlan struct {
	Command querytree.CommandType `json:"command"`
	Router  bool                  `json:"router,omitempty"`
	// Distributed is carried as an opaque, round-trippable payload.
	Distributed *DistributedPlan      `json:"distributed,omitempty"`
	Merge       *querytree.Tree       `json:"merge,omitempty"`
	Columns     []querytree.ColumnDef `json:"columns,omitempty"`
	Relations   []string              `json:"relations,omitempty"`
	TotalCost   float64               `json:"total_cost,omitempty"`
}

// NeedsReplan reports whether the plan carries the forced-replan marker.
func (p *FinalPlan) NeedsReplan() bool {
	return p.TotalCost >= ForcedReplanCost
}

// MarshalPayload encodes the plan for the execution layer.
func (p *FinalPlan) MarshalPayload() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, sperrors.Wrap(err, "encoding plan payload")
	}
	return data, nil
}

// UnmarshalPayload decodes a plan previously encoded with MarshalPayload.
func UnmarshalPayload(data []byte) (*FinalPlan, error) {
	var p FinalPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, sperrors.Wrap(err, "decoding plan payload")
	}
	return &p, nil
}
