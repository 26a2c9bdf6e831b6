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

// Package baseline provides catalog-driven implementations of the planner's
// collaborator interfaces: a baseline planning pass that records
// restrictions, a distribution oracle, the router fast path, the general
// distributed strategy, and the modify strategies.
package baseline

import (
	"context"

	"shardplan.io/shardplan/go/sp/catalog"
	"shardplan.io/shardplan/go/sp/engine"
	"shardplan.io/shardplan/go/sp/planner"
	"shardplan.io/shardplan/go/sp/querytree"
)

// Planner is a baseline planner: it treats every relation as local, costs
// the tree with simple heuristics, and reports every relation and join it
// visits to the restriction recorder.
type Planner struct {
	catalog catalog.Catalog
}

// NewPlanner creates a baseline planner over the given catalog.
func NewPlanner(c catalog.Catalog) *Planner {
	return &Planner{catalog: c}
}

// Plan implements planner.BaselinePlanner.
func (p *Planner) Plan(ctx context.Context, tree *querytree.Tree, params planner.BoundParams, rec planner.RestrictionRecorder) (*engine.LocalPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var relations []string
	cost := 0.0
	querytree.ForEachScope(tree, tree.Root(), func(id querytree.ScopeID, q *querytree.QueryNode) {
		cost++
		p.recordScope(q, rec)
		for _, ref := range q.Tables {
			if ref.Kind != querytree.RelationRef {
				continue
			}
			relations = append(relations, ref.Relation)
			if tbl, ok := p.catalog.Table(ref.Relation); ok && tbl.ShardCount > 0 {
				cost += float64(tbl.ShardCount)
			} else {
				cost++
			}
		}
	})

	return &engine.LocalPlan{
		Tree:      tree,
		Targets:   tree.Scope(tree.Root()).OutputColumns(),
		Relations: dedupe(relations),
		TotalCost: cost,
	}, nil
}

// recordScope reports the scope's relations and joins. Joins written in
// JOIN syntax come from the join tree; equality predicates in WHERE that
// link two tables are reported as implicit inner joins.
func (p *Planner) recordScope(q *querytree.QueryNode, rec planner.RestrictionRecorder) {
	for i, ref := range q.Tables {
		if ref.Kind != querytree.RelationRef {
			continue
		}
		rec.RecordRelation(ref, catalog.IsDistributed(p.catalog, ref.Relation), tablePredicates(q, i))
	}

	for _, jt := range q.From {
		recordJoinTree(q, jt, rec)
	}
	for _, e := range q.Where {
		left, right, ok := columnEquality(e)
		if !ok || left.Table == right.Table {
			continue
		}
		li, ri := q.Table(left.Table).Identity, q.Table(right.Table).Identity
		if li > 0 && ri > 0 {
			rec.RecordJoin(querytree.InnerJoin, []querytree.Expr{e}, []int{li}, []int{ri})
		}
	}
}

func recordJoinTree(q *querytree.QueryNode, jt querytree.JoinTree, rec planner.RestrictionRecorder) {
	join, ok := jt.(*querytree.JoinNode)
	if !ok {
		return
	}
	recordJoinTree(q, join.Left, rec)
	recordJoinTree(q, join.Right, rec)
	left := leafIdentities(q, join.Left)
	right := leafIdentities(q, join.Right)
	if len(left) > 0 && len(right) > 0 {
		rec.RecordJoin(join.Join, join.On, left, right)
	}
}

func leafIdentities(q *querytree.QueryNode, jt querytree.JoinTree) []int {
	switch jt := jt.(type) {
	case *querytree.JoinNode:
		return append(leafIdentities(q, jt.Left), leafIdentities(q, jt.Right)...)
	case *querytree.TableNode:
		ref := q.Table(jt.Ref)
		if ref.Kind == querytree.RelationRef && ref.Identity > 0 {
			return []int{ref.Identity}
		}
	}
	return nil
}

// tablePredicates returns the WHERE predicates that reference only the
// given table of the scope.
func tablePredicates(q *querytree.QueryNode, table int) []querytree.Expr {
	var preds []querytree.Expr
	for _, e := range q.Where {
		only, any := true, false
		walkColumnRefs(e, func(c *querytree.ColumnRef) {
			if c.LevelsUp != 0 {
				return
			}
			any = true
			if c.Table != table {
				only = false
			}
		})
		if any && only {
			preds = append(preds, e)
		}
	}
	return preds
}

func walkColumnRefs(e querytree.Expr, fn func(*querytree.ColumnRef)) {
	switch e := e.(type) {
	case *querytree.ColumnRef:
		fn(e)
	case *querytree.Call:
		for _, arg := range e.Args {
			walkColumnRefs(arg, fn)
		}
	}
}

// columnEquality matches `a = b` between two column references.
func columnEquality(e querytree.Expr) (left, right *querytree.ColumnRef, ok bool) {
	call, isCall := e.(*querytree.Call)
	if !isCall || call.Func != "=" || len(call.Args) != 2 {
		return nil, nil, false
	}
	left, lok := call.Args[0].(*querytree.ColumnRef)
	right, rok := call.Args[1].(*querytree.ColumnRef)
	if !lok || !rok || left.LevelsUp != 0 || right.LevelsUp != 0 {
		return nil, nil, false
	}
	return left, right, true
}

// columnLiteralEquality matches `col = const` in either argument order.
func columnLiteralEquality(e querytree.Expr) (*querytree.ColumnRef, *querytree.Literal, bool) {
	call, isCall := e.(*querytree.Call)
	if !isCall || call.Func != "=" || len(call.Args) != 2 {
		return nil, nil, false
	}
	if col, ok := call.Args[0].(*querytree.ColumnRef); ok {
		if lit, ok := call.Args[1].(*querytree.Literal); ok && col.LevelsUp == 0 {
			return col, lit, true
		}
	}
	if col, ok := call.Args[1].(*querytree.ColumnRef); ok {
		if lit, ok := call.Args[0].(*querytree.Literal); ok && col.LevelsUp == 0 {
			return col, lit, true
		}
	}
	return nil, nil, false
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
