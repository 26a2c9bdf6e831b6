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
	"google.golang.org/grpc/codes"

	"shardplan.io/shardplan/go/sp/catalog"
	"shardplan.io/shardplan/go/sp/planner"
	"shardplan.io/shardplan/go/sp/querytree"
	"shardplan.io/shardplan/go/sp/sperrors"
)

// Oracle answers the planner's distribution questions from the catalog.
type Oracle struct {
	catalog catalog.Catalog
}

// NewOracle creates an oracle over the given catalog.
func NewOracle(c catalog.Catalog) *Oracle {
	return &Oracle{catalog: c}
}

// DistributionKeyJoin implements planner.Oracle. A join counts as a
// distribution-key join when it is an inner join between mutually colocated
// distributed relations and one of its predicates equates their
// distribution columns.
func (o *Oracle) DistributionKeyJoin(rc *planner.RestrictionContext, join *planner.JoinRestriction) bool {
	if join.Join != querytree.InnerJoin {
		return false
	}
	left := distributedRestrictions(rc, join.LeftIdentities)
	right := distributedRestrictions(rc, join.RightIdentities)
	if left == nil || right == nil {
		return false
	}
	all := append(append([]*planner.RelationRestriction{}, left...), right...)
	for _, rel := range all[1:] {
		if !catalog.Colocated(o.catalog, all[0].Relation, rel.Relation) {
			return false
		}
	}
	for _, e := range join.Predicates {
		l, r, ok := columnEquality(e)
		if !ok {
			continue
		}
		if (o.distColumn(left, l.Name) && o.distColumn(right, r.Name)) ||
			(o.distColumn(left, r.Name) && o.distColumn(right, l.Name)) {
			return true
		}
	}
	return false
}

// distributedRestrictions resolves identities to restrictions, or nil when
// any identity is unknown or not distributed.
func distributedRestrictions(rc *planner.RestrictionContext, identities []int) []*planner.RelationRestriction {
	var out []*planner.RelationRestriction
	for _, id := range identities {
		rel := rc.Relation(id)
		if rel == nil || !rel.Distributed {
			return nil
		}
		out = append(out, rel)
	}
	return out
}

// distColumn reports whether name is the distribution column of one of the
// given relations.
func (o *Oracle) distColumn(rels []*planner.RelationRestriction, name string) bool {
	for _, rel := range rels {
		tbl, ok := o.catalog.Table(rel.Relation)
		if ok && tbl.DistributionColumn == name {
			return true
		}
	}
	return false
}

// RestrictionEquivalence implements planner.Oracle. The fragment executes
// shard-locally when its distributed relations form one component under
// distribution-key joins.
func (o *Oracle) RestrictionEquivalence(rc *planner.RestrictionContext) bool {
	var distributed []int
	for _, rel := range rc.Relations {
		if rel.Distributed {
			distributed = append(distributed, rel.Identity)
		}
	}
	if len(distributed) <= 1 {
		return true
	}
	for _, a := range distributed[1:] {
		if !catalog.Colocated(o.catalog, rc.Relation(distributed[0]).Relation, rc.Relation(a).Relation) {
			return false
		}
	}

	// Union-find over identities connected by distribution-key joins.
	parent := make(map[int]int, len(distributed))
	for _, id := range distributed {
		parent[id] = id
	}
	var find func(int) int
	find = func(id int) int {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}
	for _, join := range rc.Joins {
		if !o.DistributionKeyJoin(rc, join) {
			continue
		}
		ids := append(append([]int{}, join.LeftIdentities...), join.RightIdentities...)
		for _, id := range ids[1:] {
			if _, ok := parent[id]; ok {
				if _, ok := parent[ids[0]]; ok {
					parent[find(id)] = find(ids[0])
				}
			}
		}
	}
	root := find(distributed[0])
	for _, id := range distributed[1:] {
		if find(id) != root {
			return false
		}
	}
	return true
}

// ColocatedRestrictions reports whether every distributed relation in the
// view shares one colocation group. Unlike RestrictionEquivalence it does
// not ask for join connectivity: relations joined on non-distribution
// columns were already split out by the decomposer, and union branches are
// never joined at all.
func (o *Oracle) ColocatedRestrictions(rc *planner.RestrictionContext) bool {
	var first string
	for _, rel := range rc.Relations {
		if !rel.Distributed {
			continue
		}
		if first == "" {
			first = rel.Relation
			continue
		}
		if !catalog.Colocated(o.catalog, first, rel.Relation) {
			return false
		}
	}
	return true
}

// SafeToPushdownUnion implements planner.Oracle: a union runs per-shard
// when every relation under it is distributed and all of them are mutually
// colocated.
func (o *Oracle) SafeToPushdownUnion(rc *planner.RestrictionContext) bool {
	if rc.HasLocalRelation || !rc.HasDistributedRelation {
		return false
	}
	var first string
	for _, rel := range rc.Relations {
		if first == "" {
			first = rel.Relation
			continue
		}
		if !catalog.Colocated(o.catalog, first, rel.Relation) {
			return false
		}
	}
	return true
}

// CanPushdown implements planner.Oracle.
func (o *Oracle) CanPushdown(t *querytree.Tree, id querytree.ScopeID) *sperrors.PlanningError {
	q := t.Scope(id)
	if q.Limit != nil {
		return sperrors.Deferred(codes.FailedPrecondition,
			"cannot push down this subquery",
			"a LIMIT inside a subquery has to be applied after merging shard results",
			"")
	}
	if q.SetOp != nil {
		if node, ok := q.SetOp.(*querytree.SetOpNode); ok && node.Op != querytree.Union {
			return sperrors.Deferred(codes.FailedPrecondition,
				"cannot push down this subquery",
				"INTERSECT and EXCEPT have to be applied after merging shard results",
				"")
		}
	}
	return nil
}

// SupportedForDistributedPlanning implements planner.Oracle.
func (o *Oracle) SupportedForDistributedPlanning(t *querytree.Tree, id querytree.ScopeID) *sperrors.PlanningError {
	if t.Scope(id).Command.IsModify() {
		return sperrors.Deferred(codes.Unimplemented,
			"cannot compile a data modification as a standalone fragment",
			"", "")
	}
	return nil
}
