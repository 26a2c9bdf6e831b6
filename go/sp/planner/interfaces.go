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

package planner

import (
	"context"

	"shardplan.io/shardplan/go/sp/engine"
	"shardplan.io/shardplan/go/sp/querytree"
	"shardplan.io/shardplan/go/sp/sperrors"
)

// BoundParams holds the bound statement parameters by ordinal. A nil entry,
// or an ordinal past the end, is an unresolved parameter.
type BoundParams []*querytree.Literal

// Resolved reports whether the 1-based ordinal has a bound value.
func (p BoundParams) Resolved(ordinal int) bool {
	return ordinal >= 1 && ordinal <= len(p) && p[ordinal-1] != nil
}

// RestrictionRecorder receives the facts a baseline planning pass discovers
// while it plans. The planner passes its current restriction frame here.
type RestrictionRecorder interface {
	RecordRelation(ref *querytree.TableRef, distributed bool, predicates []querytree.Expr)
	RecordJoin(join querytree.JoinType, predicates []querytree.Expr, leftIdentities, rightIdentities []int)
}

// BaselinePlanner plans a query tree as if every relation were local. It may
// clone and transform the tree it is given, and it must report every
// relation and join it visits to the recorder.
type BaselinePlanner interface {
	Plan(ctx context.Context, tree *querytree.Tree, params BoundParams, rec RestrictionRecorder) (*engine.LocalPlan, error)
}

// Oracle answers distribution questions about recorded restrictions and
// scopes. Its answers drive every decomposition decision; the decomposer
// itself holds no distribution theory.
type Oracle interface {
	// RestrictionEquivalence reports whether the relations in the context
	// are joined on their distribution keys such that the whole fragment
	// can execute shard-locally.
	RestrictionEquivalence(rc *RestrictionContext) bool

	// SafeToPushdownUnion reports whether a union over the relations in the
	// context can run per-shard without changing results.
	SafeToPushdownUnion(rc *RestrictionContext) bool

	// CanPushdown returns nil when the scope can be pushed down to workers
	// as part of its enclosing query, or a deferred error naming what
	// prevents it.
	CanPushdown(t *querytree.Tree, id querytree.ScopeID) *sperrors.PlanningError

	// SupportedForDistributedPlanning returns nil when the scope can be
	// compiled standalone as a distributed query, or a deferred error.
	SupportedForDistributedPlanning(t *querytree.Tree, id querytree.ScopeID) *sperrors.PlanningError

	// DistributionKeyJoin reports whether the join restriction equates the
	// distribution keys of colocated relations.
	DistributionKeyJoin(rc *RestrictionContext, join *JoinRestriction) bool
}

// RouterPlanner attempts the fast path: a plan that targets a single shard
// group and runs without decomposition. A nil return means the strategy is
// inapplicable outright; a plan carrying a PlanningError is a recoverable
// failure another strategy may fix.
type RouterPlanner interface {
	PlanRouter(ctx context.Context, original, working *querytree.Tree, rc *RestrictionContext) *engine.DistributedPlan
}

// DistributedPlanner is the general multi-task strategy, tried after
// decomposition has rewritten whatever could not be pushed down.
type DistributedPlanner interface {
	PlanDistributed(ctx context.Context, original, working *querytree.Tree, rc *RestrictionContext, params BoundParams) (*engine.DistributedPlan, error)
}

// ModifyPlanner plans INSERT, UPDATE and DELETE statements, with a separate
// entry point for INSERT ... SELECT reading from distributed relations.
type ModifyPlanner interface {
	PlanModify(ctx context.Context, original, working *querytree.Tree, rc *RestrictionContext) (*engine.DistributedPlan, error)
	PlanInsertSelect(ctx context.Context, original, working *querytree.Tree, rc *RestrictionContext) (*engine.DistributedPlan, error)
}
