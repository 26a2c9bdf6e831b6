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

// Package planner turns query trees over distributed relations into
// executable plans.
//
// Planning is layered over a baseline planner that knows nothing about
// distribution. Every pass first stamps relation references with durable
// identities, keeps a pristine copy of the tree, runs the baseline planner
// under a fresh restriction frame, and then tries distributed strategies in
// order: router fast path, recursive decomposition of whatever cannot be
// pushed down, and finally the general multi-task strategy. Fragments split
// out during decomposition are compiled through the same entry point and
// their results read back through placeholder scans.
package planner

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"

	"shardplan.io/shardplan/go/sp/catalog"
	"shardplan.io/shardplan/go/sp/engine"
	"shardplan.io/shardplan/go/sp/log"
	"shardplan.io/shardplan/go/sp/querytree"
	"shardplan.io/shardplan/go/sp/sperrors"
	"shardplan.io/shardplan/go/sp/trace"
)

// DefaultMaxDepth bounds recursive sub-plan compilation.
const DefaultMaxDepth = 64

// Options control planning behavior.
type Options struct {
	// EnableRouterExecution allows the single-shard fast path and, with it,
	// intermediate-result scans. Decomposition requires it.
	EnableRouterExecution bool
	// SubqueryPushdown asserts that every subquery is safe to push down
	// unchanged, disabling decomposition entirely.
	SubqueryPushdown bool
	// MultiTaskLogLevel, when positive, logs a diagnostic at that verbosity
	// whenever a plan spans multiple tasks.
	MultiTaskLogLevel log.Level
	// MaxDepth bounds recursive sub-plan compilation. Zero means
	// DefaultMaxDepth.
	MaxDepth int
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		EnableRouterExecution: true,
		MaxDepth:              DefaultMaxDepth,
	}
}

// Planner plans queries against a distribution catalog. A Planner is not
// safe for concurrent use; create one per planning session.
type Planner struct {
	catalog     catalog.Catalog
	baseline    BaselinePlanner
	oracle      Oracle
	router      RouterPlanner
	distributed DistributedPlanner
	modify      ModifyPlanner
	opts        Options

	// session namespaces intermediate result paths.
	session      uuid.UUID
	restrictions restrictionStack
	nextPlanID   uint64
}

// New creates a planner. The router and modify planners may be nil when the
// corresponding strategies are unavailable.
func New(cat catalog.Catalog, baseline BaselinePlanner, oracle Oracle, router RouterPlanner, distributed DistributedPlanner, modify ModifyPlanner, opts Options) *Planner {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Planner{
		catalog:     cat,
		baseline:    baseline,
		oracle:      oracle,
		router:      router,
		distributed: distributed,
		modify:      modify,
		opts:        opts,
		session:     uuid.New(),
		nextPlanID:  1,
	}
}

// Session returns the session identity namespacing intermediate results.
func (p *Planner) Session() uuid.UUID {
	return p.session
}

func (p *Planner) isDistributed(relation string) bool {
	return catalog.IsDistributed(p.catalog, relation)
}

// partitionMeta adapts the catalog to the partition-view interface of the
// query tree package.
type partitionMeta struct {
	c catalog.Catalog
}

func (m partitionMeta) IsDistributedPartitioned(relation string) bool {
	tbl, ok := m.c.Table(relation)
	return ok && tbl.Distributed && tbl.Partitioned
}

// PlanQuery plans one query tree. The tree is consumed: the planner stamps
// and rewrites it in place. Plans that depend on unresolved parameters come
// back carrying the forced-replan cost; callers should bind values and plan
// again before executing them.
func (p *Planner) PlanQuery(ctx context.Context, tree *querytree.Tree, params BoundParams) (*engine.FinalPlan, error) {
	span, ctx := trace.StartSpan(ctx, "planner.PlanQuery")
	defer span.Finish()
	return p.planQuery(ctx, tree, params, 0)
}

func (p *Planner) planQuery(ctx context.Context, tree *querytree.Tree, params BoundParams, depth int) (*engine.FinalPlan, error) {
	if depth > p.opts.MaxDepth {
		return nil, sperrors.Errorf(codes.ResourceExhausted,
			"query exceeds the maximum planning depth (%d)", p.opts.MaxDepth)
	}

	needsDistributed, err := p.needsDistributedPlanning(tree)
	if err != nil {
		return nil, err
	}

	var original *querytree.Tree
	if needsDistributed {
		// Sub-plan fragments arrive pre-stamped; identities are assigned
		// exactly once per original tree and preserved by every copy.
		if !tree.Stamped() {
			if err := querytree.AssignIdentities(tree); err != nil {
				return nil, err
			}
		}
		original = tree.Copy()
		// The baseline planner must not expand partitioned distributed
		// tables into their partitions; shards handle partitioning. The
		// flag is restored right after the pass.
		querytree.SetPartitionViews(tree, partitionMeta{p.catalog}, false)
	}

	// Every baseline pass gets its own restriction frame, popped on all
	// exits so a failed pass cannot leak facts into its parent.
	rc := p.restrictions.Push()
	defer p.restrictions.Pop()

	local, err := p.baseline.Plan(ctx, tree, params, rc)
	if needsDistributed {
		querytree.SetPartitionViews(tree, partitionMeta{p.catalog}, true)
	}
	if err != nil {
		return nil, err
	}

	if !needsDistributed {
		again, err := p.needsDistributedPlanning(tree)
		if err != nil {
			return nil, err
		}
		if again {
			return nil, sperrors.New(codes.Unimplemented,
				"baseline planning introduced distributed relations into a query that was planned as local")
		}
		return localOnlyPlan(local, tree.Scope(tree.Root()).Command), nil
	}

	planID := p.nextPlanID
	p.nextPlanID++
	return p.createDistributedPlan(ctx, planID, local, original, tree, params, rc, depth)
}

// needsDistributedPlanning reports whether any scope references a
// distributed relation. A scope mixing local and distributed relations is
// rejected outright; reference tables (known to the catalog but not
// distributed) may appear anywhere because every worker holds them.
func (p *Planner) needsDistributedPlanning(t *querytree.Tree) (bool, error) {
	needs := false
	var mixErr error
	querytree.ForEachScope(t, t.Root(), func(_ querytree.ScopeID, q *querytree.QueryNode) {
		hasDistributed, hasLocal := false, false
		for _, ref := range q.Tables {
			if ref.Kind != querytree.RelationRef {
				continue
			}
			tbl, known := p.catalog.Table(ref.Relation)
			switch {
			case known && tbl.Distributed:
				hasDistributed = true
			case !known:
				hasLocal = true
			}
		}
		if hasDistributed && hasLocal && mixErr == nil {
			mixErr = sperrors.New(codes.FailedPrecondition,
				"cannot plan queries that join local and distributed relations in the same scope")
		}
		if hasDistributed {
			needs = true
		}
	})
	return needs, mixErr
}

func localOnlyPlan(local *engine.LocalPlan, command querytree.CommandType) *engine.FinalPlan {
	return &engine.FinalPlan{
		Command:   command,
		Columns:   local.Targets,
		Relations: local.Relations,
		TotalCost: local.TotalCost,
	}
}

// createDistributedPlan dispatches to the modify or select strategies and
// turns the winning distributed plan into a final plan. Strategy failures
// stay deferred only while unresolved parameters leave room for a later
// pass to succeed; once parameters are bound they escalate to hard errors.
func (p *Planner) createDistributedPlan(ctx context.Context, planID uint64, local *engine.LocalPlan, original, working *querytree.Tree, params BoundParams, rc *RestrictionContext, depth int) (*engine.FinalPlan, error) {
	root := original.Scope(original.Root())
	hasUnresolved := querytree.HasUnresolvedParams(original, original.Root(), params.Resolved)

	var dp *engine.DistributedPlan
	var err error
	switch {
	case root.Command == querytree.Insert && p.insertSelectsFromDistributed(original):
		if p.modify == nil {
			return nil, sperrors.New(codes.Unimplemented, "INSERT ... SELECT on distributed relations is not supported")
		}
		dp, err = p.modify.PlanInsertSelect(ctx, original, working, rc)
	case root.Command.IsModify():
		if p.modify == nil {
			return nil, sperrors.New(codes.Unimplemented, "modifications of distributed relations are not supported")
		}
		dp, err = p.modify.PlanModify(ctx, original, working, rc)
	default:
		dp, err = p.createDistributedSelectPlan(ctx, planID, original, working, params, hasUnresolved, rc, depth)
	}
	if err != nil {
		planningFailures.Inc()
		return nil, err
	}

	if dp == nil {
		// No strategy applied. Legitimate only when unresolved parameters
		// blocked them; record a deferred error so execution cannot start
		// before a re-plan.
		dp = &engine.DistributedPlan{
			Operation: root.Command,
			PlanningError: sperrors.Deferred(codes.Unimplemented,
				"could not create a distributed plan",
				"planning this query requires parameter values that are not yet bound",
				"bind the parameters and plan again"),
		}
	} else {
		dp.Operation = root.Command
	}

	if dp.PlanningError != nil && !hasUnresolved {
		planningFailures.Inc()
		return nil, dp.PlanningError
	}

	dp.PlanID = planID
	final := p.finalizePlan(local, dp)

	// Plans that could not be fully planned, or that would modify multiple
	// shards, must be replanned with bound values before execution.
	if hasUnresolved && (dp.PlanningError != nil || dp.IsMultiShardModify()) {
		final.TotalCost = engine.ForcedReplanCost
	}
	return final, nil
}

// createDistributedSelectPlan tries the router fast path, then recursive
// decomposition, then the general distributed strategy. When decomposition
// produced sub-plans the rewritten tree is baseline-planned again under a
// fresh restriction frame and planning restarts against the new facts.
func (p *Planner) createDistributedSelectPlan(ctx context.Context, planID uint64, original, working *querytree.Tree, params BoundParams, hasUnresolved bool, rc *RestrictionContext, depth int) (*engine.DistributedPlan, error) {
	if p.opts.EnableRouterExecution && p.router != nil {
		if dp := p.router.PlanRouter(ctx, original, working, rc); dp != nil {
			if dp.PlanningError == nil {
				routerPlans.Inc()
				return dp, nil
			}
			log.V(1).Infof("query is not router plannable: %v", dp.PlanningError)
		}
	}

	if hasUnresolved {
		// The remaining strategies cannot cope with unresolved parameters;
		// give the caller a chance to bind values and re-plan.
		return nil, nil
	}

	st := &pullPushState{planner: p, planID: planID, restrictions: rc, depth: depth}
	if err := st.decomposeScope(ctx, original, original.Root()); err != nil {
		return nil, err
	}

	if len(st.subPlans) > 0 {
		decomposedSubPlans.Add(float64(len(st.subPlans)))

		// The rewritten tree has different shape and restrictions than the
		// one the enclosing pass planned. Re-run the baseline planner under
		// a fresh frame and restart against the new facts.
		fresh := original.Copy()
		querytree.SetPartitionViews(fresh, partitionMeta{p.catalog}, false)
		p.restrictions.Pop()
		rc = p.restrictions.Push()
		_, err := p.baseline.Plan(ctx, fresh, params, rc)
		querytree.SetPartitionViews(fresh, partitionMeta{p.catalog}, true)
		if err != nil {
			return nil, err
		}
		working.Overwrite(fresh)

		dp, err := p.createDistributedSelectPlan(ctx, planID, original, working, params, false, rc, depth)
		if err != nil {
			return nil, err
		}
		if dp == nil {
			return nil, nil
		}
		dp.SubPlans = append(st.subPlans, dp.SubPlans...)
		return dp, nil
	}

	return p.distributed.PlanDistributed(ctx, original, working, rc, params)
}

// insertSelectsFromDistributed reports whether an INSERT reads its rows
// from a distributed relation.
func (p *Planner) insertSelectsFromDistributed(t *querytree.Tree) bool {
	for _, nested := range querytree.NestedScopes(t, t.Root()) {
		if querytree.ContainsDistributedRef(t, nested, p.isDistributed) {
			return true
		}
	}
	return false
}
