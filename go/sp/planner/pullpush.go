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

	"google.golang.org/grpc/codes"

	"shardplan.io/shardplan/go/sp/engine"
	"shardplan.io/shardplan/go/sp/intermediate"
	"shardplan.io/shardplan/go/sp/log"
	"shardplan.io/shardplan/go/sp/querytree"
	"shardplan.io/shardplan/go/sp/sperrors"
	"shardplan.io/shardplan/go/sp/trace"
)

// pullPushState tracks one decomposition pass: the sub-plans split out so
// far and the nesting level of the scope being visited. Sub-plan IDs are
// ordinal positions in subPlans, so results are produced in dependency
// order before the scopes that read them.
type pullPushState struct {
	planner      *Planner
	planID       uint64
	restrictions *RestrictionContext
	subPlans     []*engine.SubPlan
	level        int
	depth        int
}

// decomposeScope rewrites everything under the scope that cannot be pushed
// down into intermediate-result scans: CTEs first, then nested scopes
// bottom-up, then set operation branches or non-colocated join members,
// then the inner sides of outer joins with recurring outer sides.
func (s *pullPushState) decomposeScope(ctx context.Context, t *querytree.Tree, id querytree.ScopeID) error {
	p := s.planner
	if p.opts.SubqueryPushdown {
		// The caller asserts all subqueries are pushdown-safe.
		return nil
	}
	if s.level > p.opts.MaxDepth {
		return sperrors.Errorf(codes.ResourceExhausted,
			"query exceeds the maximum planning depth (%d)", p.opts.MaxDepth)
	}

	if err := s.decomposeCTEs(ctx, t, id); err != nil {
		return err
	}
	for _, nested := range querytree.NestedScopes(t, id) {
		if err := s.decomposeNestedScope(ctx, t, nested); err != nil {
			return err
		}
	}

	q := t.Scope(id)
	if q.SetOp != nil {
		filtered := FilterForScopeTree(s.restrictions, t, id)
		if !topLevelUnion(q.SetOp) || s.level == 0 || !p.oracle.SafeToPushdownUnion(filtered) {
			if err := s.decomposeSetOpBranches(ctx, t, id, q.SetOp); err != nil {
				return err
			}
		}
	} else {
		// Split non-colocated members out of the join one at a time. The
		// view spans the whole subtree so a distributed relation hiding
		// inside a nested subquery is still a candidate. Each replacement
		// removes identities from the subtree, so the view shrinks and the
		// loop must terminate.
		for {
			filtered := FilterForScopeTree(s.restrictions, t, id)
			if querytree.ContainsSetOpScope(t, id) || p.oracle.RestrictionEquivalence(filtered) {
				break
			}
			replaced, err := s.replaceNonColocatedJoinMember(ctx, t, id, filtered)
			if err != nil {
				return err
			}
			if !replaced {
				break
			}
		}
	}

	for _, jt := range t.Scope(id).From {
		if err := s.decomposeRecurringOuterJoins(ctx, t, id, jt); err != nil {
			return err
		}
	}
	return nil
}

// decomposeNestedScope recurses into a nested scope and then decides
// whether the scope as a whole must be split out.
func (s *pullPushState) decomposeNestedScope(ctx context.Context, t *querytree.Tree, id querytree.ScopeID) error {
	s.level++
	err := s.decomposeScope(ctx, t, id)
	s.level--
	if err != nil {
		return err
	}
	if s.shouldDecomposeScope(t, id) {
		return s.recursivelyPlanScope(ctx, t, id)
	}
	return nil
}

// shouldDecomposeScope decides whether a nested scope must become a
// sub-plan. A scope referencing its enclosing scope never can; a scope the
// oracle cannot push down must, provided it can be compiled standalone; and
// a pushdownable scope is still split out when its join facts do not prove
// shard-local execution.
func (s *pullPushState) shouldDecomposeScope(t *querytree.Tree, id querytree.ScopeID) bool {
	p := s.planner
	if querytree.ContainsOuterRefs(t, id) {
		log.V(1).Infof("not decomposing %s: it references its enclosing scope", querytree.DescribeScope(t, id))
		return false
	}
	if perr := p.oracle.CanPushdown(t, id); perr != nil {
		if !querytree.ContainsDistributedRef(t, id, p.isDistributed) {
			// A fully local fragment compiles under the baseline planner
			// no matter how complex it is.
			return true
		}
		if p.oracle.SupportedForDistributedPlanning(t, id) == nil {
			return true
		}
		log.V(1).Infof("not decomposing %s: %v", querytree.DescribeScope(t, id), perr)
		return false
	}
	filtered := FilterForScope(s.restrictions, t, id)
	return !querytree.ContainsSetOpScope(t, id) &&
		p.oracle.SupportedForDistributedPlanning(t, id) == nil &&
		!querytree.HasSubqueryTables(t.Scope(id)) &&
		!p.oracle.RestrictionEquivalence(filtered)
}

// decomposeCTEs splits every CTE of the scope into a sub-plan and rewrites
// all references to it, at any depth, into scans of that one result. CTEs
// that cannot be decomposed at all are hard errors raised before any
// sub-plan is created.
func (s *pullPushState) decomposeCTEs(ctx context.Context, t *querytree.Tree, id querytree.ScopeID) error {
	q := t.Scope(id)
	if len(q.CTEs) == 0 {
		return nil
	}

	for _, cte := range q.CTEs {
		if t.Scope(cte.Scope).Command.IsModify() {
			return sperrors.Errorf(codes.Unimplemented,
				"data-modifying statements are not supported in the WITH clauses of distributed queries (%s)", cte.Name)
		}
		if cte.Recursive {
			return sperrors.Errorf(codes.Unimplemented,
				"recursive common table expressions are not supported in distributed queries (%s)", cte.Name)
		}
		if querytree.ContainsOuterRefs(t, cte.Scope) {
			return sperrors.Errorf(codes.Unimplemented,
				"common table expressions that refer to the outer query are not supported in distributed queries (%s)", cte.Name)
		}
	}

	refs := collectCTERefs(t, id)
	for _, cte := range q.CTEs {
		sub, err := s.compileSubPlan(ctx, t, cte.Scope)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			// Refs rewritten for an earlier CTE are no longer CTE refs.
			if ref.Kind != querytree.CTERef || ref.CTEName != cte.Name {
				continue
			}
			alias := ref.Alias
			if alias == "" {
				alias = cte.Name
			}
			log.V(1).Infof("replacing CTE %s with intermediate result %s", cte.Name, sub.ResultPath)
			*ref = resultRef(alias, sub)
		}
	}
	q.CTEs = nil
	return nil
}

// collectCTERefs gathers the table references that could resolve to a CTE
// defined in the given scope, tracking nesting so only references to this
// scope's CTEs match.
func collectCTERefs(t *querytree.Tree, id querytree.ScopeID) []*querytree.TableRef {
	var out []*querytree.TableRef
	var walk func(id querytree.ScopeID, level int)
	walk = func(id querytree.ScopeID, level int) {
		q := t.Scope(id)
		for _, cte := range q.CTEs {
			walk(cte.Scope, level+1)
		}
		for _, ref := range q.Tables {
			if ref.Kind == querytree.CTERef && ref.LevelsUp == level {
				out = append(out, ref)
			}
		}
		for _, nested := range querytree.NestedScopes(t, id) {
			walk(nested, level+1)
		}
	}
	walk(id, 0)
	return out
}

// decomposeSetOpBranches splits every set operation branch that touches a
// distributed relation into its own sub-plan.
func (s *pullPushState) decomposeSetOpBranches(ctx context.Context, t *querytree.Tree, id querytree.ScopeID, so querytree.SetOpTree) error {
	switch so := so.(type) {
	case *querytree.SetOpNode:
		if err := s.decomposeSetOpBranches(ctx, t, id, so.Left); err != nil {
			return err
		}
		return s.decomposeSetOpBranches(ctx, t, id, so.Right)
	case *querytree.SetOpLeaf:
		ref := t.Scope(id).Table(so.Ref)
		if ref.Kind == querytree.SubqueryRef && querytree.ContainsDistributedRef(t, ref.Scope, s.planner.isDistributed) {
			return s.recursivelyPlanScope(ctx, t, ref.Scope)
		}
	}
	return nil
}

// replaceNonColocatedJoinMember picks the distributed relation with the
// fewest distribution-key joins and splits out the smallest scope
// containing it, or wraps the bare relation itself when it sits directly in
// this scope's table list.
func (s *pullPushState) replaceNonColocatedJoinMember(ctx context.Context, t *querytree.Tree, id querytree.ScopeID, filtered *RestrictionContext) (bool, error) {
	p := s.planner
	if !querytree.ContainsDistributedRef(t, id, p.isDistributed) || querytree.ContainsOuterRefs(t, id) {
		return false, nil
	}
	victim := filtered.IdentityWithFewestColocatedJoins(func(join *JoinRestriction) bool {
		return p.oracle.DistributionKeyJoin(filtered, join)
	})
	if victim == 0 {
		return false, nil
	}
	return s.replaceByIdentity(ctx, t, id, victim)
}

func (s *pullPushState) replaceByIdentity(ctx context.Context, t *querytree.Tree, id querytree.ScopeID, identity int) (bool, error) {
	if target, ok := deepestScopeWithIdentity(t, id, identity); ok {
		if querytree.ContainsOuterRefs(t, target) {
			return false, nil
		}
		if err := s.recursivelyPlanScope(ctx, t, target); err != nil {
			return false, err
		}
		return true, nil
	}
	for i, ref := range t.Scope(id).Tables {
		if ref.Kind == querytree.RelationRef && ref.Identity == identity {
			if err := s.recursivelyPlanRelation(ctx, t, id, i); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// deepestScopeWithIdentity finds the deepest scope strictly below id whose
// subtree contains the identity.
func deepestScopeWithIdentity(t *querytree.Tree, id querytree.ScopeID, identity int) (querytree.ScopeID, bool) {
	for _, nested := range querytree.NestedScopes(t, id) {
		if !querytree.ScopeIdentities(t, nested)[identity] {
			continue
		}
		if deeper, ok := deepestScopeWithIdentity(t, nested, identity); ok {
			return deeper, true
		}
		return nested, true
	}
	return querytree.InvalidScope, false
}

// decomposeRecurringOuterJoins handles outer joins whose outer side
// produces the same rows on every shard (no distributed relation under it):
// joining it per-shard against a distributed inner side would duplicate
// unmatched outer rows, so the distributed side is materialized instead.
// The inner side of an outer join is never touched.
func (s *pullPushState) decomposeRecurringOuterJoins(ctx context.Context, t *querytree.Tree, id querytree.ScopeID, node querytree.JoinTree) error {
	join, ok := node.(*querytree.JoinNode)
	if !ok {
		return nil
	}
	q := t.Scope(id)
	isDist := s.planner.isDistributed
	leftRecurs := !querytree.JoinTreeContainsDistributedRef(t, q, join.Left, isDist)
	rightRecurs := !querytree.JoinTreeContainsDistributedRef(t, q, join.Right, isDist)

	switch join.Join {
	case querytree.LeftJoin:
		if leftRecurs && !rightRecurs {
			if err := s.planJoinTreeLeaves(ctx, t, id, join.Right); err != nil {
				return err
			}
			rightRecurs = true
		}
	case querytree.RightJoin:
		if rightRecurs && !leftRecurs {
			if err := s.planJoinTreeLeaves(ctx, t, id, join.Left); err != nil {
				return err
			}
			leftRecurs = true
		}
	case querytree.FullJoin:
		if leftRecurs && !rightRecurs {
			if err := s.planJoinTreeLeaves(ctx, t, id, join.Right); err != nil {
				return err
			}
			rightRecurs = true
		}
		if rightRecurs && !leftRecurs {
			if err := s.planJoinTreeLeaves(ctx, t, id, join.Left); err != nil {
				return err
			}
			leftRecurs = true
		}
	case querytree.InnerJoin:
		// Inner joins against recurring sides are shard-safe.
	}

	if leftRecurs && rightRecurs {
		return nil
	}
	if err := s.decomposeRecurringOuterJoins(ctx, t, id, join.Left); err != nil {
		return err
	}
	return s.decomposeRecurringOuterJoins(ctx, t, id, join.Right)
}

// planJoinTreeLeaves materializes every distributed leaf under the join
// tree node, right side first.
func (s *pullPushState) planJoinTreeLeaves(ctx context.Context, t *querytree.Tree, id querytree.ScopeID, node querytree.JoinTree) error {
	switch node := node.(type) {
	case *querytree.JoinNode:
		if err := s.planJoinTreeLeaves(ctx, t, id, node.Right); err != nil {
			return err
		}
		return s.planJoinTreeLeaves(ctx, t, id, node.Left)
	case *querytree.TableNode:
		ref := t.Scope(id).Table(node.Ref)
		switch ref.Kind {
		case querytree.SubqueryRef:
			if querytree.ContainsDistributedRef(t, ref.Scope, s.planner.isDistributed) {
				return s.recursivelyPlanScope(ctx, t, ref.Scope)
			}
		case querytree.RelationRef:
			if s.planner.isDistributed(ref.Relation) {
				return s.recursivelyPlanRelation(ctx, t, id, node.Ref)
			}
		}
	}
	return nil
}

// recursivelyPlanScope compiles the scope as an independent sub-plan and
// overwrites the scope slot with a placeholder that scans the materialized
// result. Holders of the scope ID observe the replacement.
func (s *pullPushState) recursivelyPlanScope(ctx context.Context, t *querytree.Tree, id querytree.ScopeID) error {
	sub, err := s.compileSubPlan(ctx, t, id)
	if err != nil {
		return err
	}
	t.Replace(id, resultScanScope(sub))
	return nil
}

// recursivelyPlanRelation wraps a bare relation reference into a
// synthesized scope selecting all its columns, compiles that as a sub-plan,
// and rewrites the reference into a result scan.
func (s *pullPushState) recursivelyPlanRelation(ctx context.Context, t *querytree.Tree, id querytree.ScopeID, refIdx int) error {
	p := s.planner
	ref := t.Scope(id).Table(refIdx)
	tbl, ok := p.catalog.Table(ref.Relation)
	if !ok || len(tbl.Columns) == 0 {
		return sperrors.Errorf(codes.Internal,
			"no column metadata for relation %s; cannot materialize it", ref.Relation)
	}

	wrapped := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{{
			Kind:     querytree.RelationRef,
			Alias:    ref.Alias,
			Relation: ref.Relation,
			Identity: ref.Identity,
		}},
		From: []querytree.JoinTree{&querytree.TableNode{Ref: 0}},
	}
	for _, col := range tbl.Columns {
		wrapped.Targets = append(wrapped.Targets, querytree.TargetColumn{
			Name: col.Name,
			Type: col.Type,
			Expr: &querytree.ColumnRef{Table: 0, Name: col.Name},
		})
	}
	scope := t.AddScope(wrapped)

	sub, err := s.compileSubPlan(ctx, t, scope)
	if err != nil {
		return err
	}
	alias := ref.Alias
	if alias == "" {
		alias = ref.Relation
	}
	*ref = resultRef(alias, sub)
	return nil
}

// compileSubPlan extracts the scope into a fresh tree, compiles it through
// the full planner, and records the sub-plan. The caller rewrites the
// original reference.
func (s *pullPushState) compileSubPlan(ctx context.Context, t *querytree.Tree, id querytree.ScopeID) (*engine.SubPlan, error) {
	p := s.planner
	if !p.opts.EnableRouterExecution {
		return nil, sperrors.New(codes.FailedPrecondition,
			"cannot decompose the query when router execution is disabled")
	}

	span, ctx := trace.StartSpan(ctx, "planner.compileSubPlan")
	defer span.Finish()

	subPlanID := len(s.subPlans)
	cols := t.Scope(id).OutputColumns()
	if log.V(1) {
		log.Infof("building sub-plan %d_%d for %s", s.planID, subPlanID, querytree.DescribeScope(t, id))
	}

	fragment := t.ExtractScope(id)
	compiled, err := p.planQuery(ctx, fragment, nil, s.depth+1)
	if err != nil {
		return nil, sperrors.Wrapf(err, "compiling sub-plan %d_%d", s.planID, subPlanID)
	}

	sub := &engine.SubPlan{
		PlanID:     s.planID,
		SubPlanID:  subPlanID,
		ResultPath: intermediate.ResultPath(p.session, s.planID, subPlanID),
		Columns:    cols,
		Plan:       compiled,
	}
	s.subPlans = append(s.subPlans, sub)
	return sub, nil
}

// resultRef builds a table reference scanning a sub-plan's result.
func resultRef(alias string, sub *engine.SubPlan) querytree.TableRef {
	return querytree.TableRef{
		Kind:  querytree.ResultRef,
		Alias: alias,
		Result: &querytree.ResultScan{
			PlanID:    sub.PlanID,
			SubPlanID: sub.SubPlanID,
			Path:      sub.ResultPath,
			Columns:   sub.Columns,
		},
	}
}

// resultScanScope builds the placeholder scope that replaces a decomposed
// scope: a select over the materialized result whose target list mirrors
// the replaced scope's non-junk output exactly, so enclosing references
// resolve unchanged.
func resultScanScope(sub *engine.SubPlan) *querytree.QueryNode {
	ref := resultRef("intermediate_result", sub)
	q := &querytree.QueryNode{
		Command: querytree.Select,
		Tables:  []*querytree.TableRef{&ref},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}},
	}
	for _, col := range sub.Columns {
		q.Targets = append(q.Targets, querytree.TargetColumn{
			Name: col.Name,
			Type: col.Type,
			Expr: &querytree.ColumnRef{Table: 0, Name: col.Name},
		})
	}
	return q
}

func topLevelUnion(so querytree.SetOpTree) bool {
	node, ok := so.(*querytree.SetOpNode)
	return ok && node.Op == querytree.Union
}
