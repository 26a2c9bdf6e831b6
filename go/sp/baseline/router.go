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

package baseline

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"

	"shardplan.io/shardplan/go/sp/catalog"
	"shardplan.io/shardplan/go/sp/engine"
	"shardplan.io/shardplan/go/sp/planner"
	"shardplan.io/shardplan/go/sp/querytree"
	"shardplan.io/shardplan/go/sp/sperrors"
)

// Router is the single-shard fast path: it plans queries whose distributed
// relations are mutually colocated and pinned to one distribution key
// value, so the whole query runs on one shard group.
type Router struct {
	catalog catalog.Catalog
}

// NewRouter creates a router planner over the given catalog.
func NewRouter(c catalog.Catalog) *Router {
	return &Router{catalog: c}
}

// PlanRouter implements planner.RouterPlanner. A nil return means the query
// has no distributed relations and the strategy does not apply; a plan
// carrying a PlanningError means another strategy has to take over.
func (r *Router) PlanRouter(ctx context.Context, original, working *querytree.Tree, rc *planner.RestrictionContext) *engine.DistributedPlan {
	var pinned *querytree.Literal
	var first string
	for _, rel := range rc.Relations {
		if !rel.Distributed {
			continue
		}
		tbl, ok := r.catalog.Table(rel.Relation)
		if !ok || tbl.DistributionColumn == "" {
			return r.notRouterPlannable("relation %s has no distribution column", rel.Relation)
		}
		if first == "" {
			first = rel.Relation
		} else if !catalog.Colocated(r.catalog, first, rel.Relation) {
			return r.notRouterPlannable("relations %s and %s are not colocated", first, rel.Relation)
		}
		lit := distributionKeyValue(rel.Predicates, tbl.DistributionColumn)
		if lit == nil {
			return r.notRouterPlannable("relation %s is not filtered to a single distribution key value", rel.Relation)
		}
		if pinned == nil {
			pinned = lit
		} else if pinned.Val != lit.Val {
			return r.notRouterPlannable("distribution key filters disagree across relations")
		}
	}
	if pinned == nil {
		return nil
	}
	return &engine.DistributedPlan{
		Router:    true,
		TaskCount: 1,
		Relations: relationNames(working),
	}
}

func (r *Router) notRouterPlannable(format string, args ...any) *engine.DistributedPlan {
	return &engine.DistributedPlan{
		PlanningError: sperrors.Deferred(codes.FailedPrecondition,
			"the query is not router plannable", fmt.Sprintf(format, args...), ""),
	}
}

// distributionKeyValue returns the literal the predicates pin the
// distribution column to, or nil.
func distributionKeyValue(predicates []querytree.Expr, distColumn string) *querytree.Literal {
	for _, e := range predicates {
		col, lit, ok := columnLiteralEquality(e)
		if ok && col.Name == distColumn {
			return lit
		}
	}
	return nil
}

func relationNames(t *querytree.Tree) []string {
	var names []string
	querytree.ForEachScope(t, t.Root(), func(_ querytree.ScopeID, q *querytree.QueryNode) {
		for _, ref := range q.Tables {
			if ref.Kind == querytree.RelationRef {
				names = append(names, ref.Relation)
			}
		}
	})
	return dedupe(names)
}
