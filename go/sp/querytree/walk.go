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

package querytree

// walkExpr visits e and its children in pre-order. fn returns false to
// abort the walk; walkExpr returns false when the walk was aborted.
func walkExpr(e Expr, fn func(Expr) bool) bool {
	if e == nil {
		return true
	}
	if !fn(e) {
		return false
	}
	if call, ok := e.(*Call); ok {
		for _, arg := range call.Args {
			if !walkExpr(arg, fn) {
				return false
			}
		}
	}
	return true
}

// walkExprs visits a list of expressions in order.
func walkExprs(exprs []Expr, fn func(Expr) bool) bool {
	for _, e := range exprs {
		if !walkExpr(e, fn) {
			return false
		}
	}
	return true
}

// scopeExprs returns every top-level expression slot of a scope in a fixed
// order: target list, WHERE, join conditions, GROUP BY, LIMIT.
func scopeExprs(q *QueryNode) []Expr {
	var exprs []Expr
	for _, tc := range q.Targets {
		exprs = append(exprs, tc.Expr)
	}
	exprs = append(exprs, q.Where...)
	for _, jt := range q.From {
		exprs = append(exprs, joinTreeExprs(jt)...)
	}
	exprs = append(exprs, q.GroupBy...)
	if q.Limit != nil {
		exprs = append(exprs, q.Limit)
	}
	return exprs
}

func joinTreeExprs(jt JoinTree) []Expr {
	join, ok := jt.(*JoinNode)
	if !ok {
		return nil
	}
	var exprs []Expr
	exprs = append(exprs, joinTreeExprs(join.Left)...)
	exprs = append(exprs, joinTreeExprs(join.Right)...)
	exprs = append(exprs, join.On...)
	return exprs
}

// forEachTableRef visits every table reference reachable from the scope in
// a deterministic order: CTE definitions first, then the scope's own table
// list (descending into subquery references inline), then subqueries in
// expression position. This order defines identity assignment.
func forEachTableRef(t *Tree, id ScopeID, fn func(*TableRef)) {
	q := t.Scope(id)
	for _, cte := range q.CTEs {
		forEachTableRef(t, cte.Scope, fn)
	}
	for _, ref := range q.Tables {
		fn(ref)
		if ref.Kind == SubqueryRef {
			forEachTableRef(t, ref.Scope, fn)
		}
	}
	walkExprs(scopeExprs(q), func(e Expr) bool {
		if sub, ok := e.(*SubqueryExpr); ok {
			forEachTableRef(t, sub.Scope, fn)
		}
		return true
	})
}

// NestedScopes returns the scopes directly nested in the given scope:
// subquery table references followed by subqueries in expression position.
// CTE definitions are not included; they have their own resolution path.
func NestedScopes(t *Tree, id ScopeID) []ScopeID {
	q := t.Scope(id)
	var nested []ScopeID
	for _, ref := range q.Tables {
		if ref.Kind == SubqueryRef {
			nested = append(nested, ref.Scope)
		}
	}
	walkExprs(scopeExprs(q), func(e Expr) bool {
		if sub, ok := e.(*SubqueryExpr); ok {
			nested = append(nested, sub.Scope)
		}
		return true
	})
	return nested
}

// ForEachScope visits the scope and all scopes nested beneath it,
// including CTE definitions, in depth-first order.
func ForEachScope(t *Tree, id ScopeID, fn func(ScopeID, *QueryNode)) {
	fn(id, t.Scope(id))
	for _, cte := range t.Scope(id).CTEs {
		ForEachScope(t, cte.Scope, fn)
	}
	for _, nested := range NestedScopes(t, id) {
		ForEachScope(t, nested, fn)
	}
}

// ContainsOuterRefs reports whether the scope contains a column or CTE
// reference into an enclosing scope. Such a scope cannot be planned
// standalone.
func ContainsOuterRefs(t *Tree, id ScopeID) bool {
	return containsOuterRefs(t, id, 0)
}

func containsOuterRefs(t *Tree, id ScopeID, level int) bool {
	q := t.Scope(id)
	for _, ref := range q.Tables {
		switch ref.Kind {
		case CTERef:
			if ref.LevelsUp > level {
				return true
			}
		case SubqueryRef:
			if containsOuterRefs(t, ref.Scope, level+1) {
				return true
			}
		}
	}
	for _, cte := range q.CTEs {
		if containsOuterRefs(t, cte.Scope, level+1) {
			return true
		}
	}
	found := false
	walkExprs(scopeExprs(q), func(e Expr) bool {
		switch e := e.(type) {
		case *ColumnRef:
			if e.LevelsUp > level {
				found = true
				return false
			}
		case *SubqueryExpr:
			if containsOuterRefs(t, e.Scope, level+1) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// HasUnresolvedParams reports whether the scope or any nested scope uses a
// parameter for which resolved returns false.
func HasUnresolvedParams(t *Tree, id ScopeID, resolved func(ordinal int) bool) bool {
	unresolved := false
	ForEachScope(t, id, func(_ ScopeID, q *QueryNode) {
		if unresolved {
			return
		}
		walkExprs(scopeExprs(q), func(e Expr) bool {
			if p, ok := e.(*Param); ok && !resolved(p.Ordinal) {
				unresolved = true
				return false
			}
			return true
		})
	})
	return unresolved
}

// DirectIdentities returns the identities of the relation references in
// the scope's own table list, excluding nested scopes.
func DirectIdentities(t *Tree, id ScopeID) map[int]bool {
	ids := make(map[int]bool)
	for _, ref := range t.Scope(id).Tables {
		if ref.Kind == RelationRef && ref.Identity > 0 {
			ids[ref.Identity] = true
		}
	}
	return ids
}

// ScopeIdentities returns the identities of all relation references in
// the scope and every scope nested beneath it.
func ScopeIdentities(t *Tree, id ScopeID) map[int]bool {
	ids := make(map[int]bool)
	ForEachScope(t, id, func(_ ScopeID, q *QueryNode) {
		for _, ref := range q.Tables {
			if ref.Kind == RelationRef && ref.Identity > 0 {
				ids[ref.Identity] = true
			}
		}
	})
	return ids
}

// ContainsDistributedRef reports whether the scope or any scope nested
// beneath it references a relation for which isDistributed returns true.
func ContainsDistributedRef(t *Tree, id ScopeID, isDistributed func(relation string) bool) bool {
	found := false
	ForEachScope(t, id, func(_ ScopeID, q *QueryNode) {
		if found {
			return
		}
		for _, ref := range q.Tables {
			if ref.Kind == RelationRef && isDistributed(ref.Relation) {
				found = true
				return
			}
		}
	})
	return found
}

// JoinTreeContainsDistributedRef reports whether a distributed relation
// reference appears under the given join tree node of scope q. A subtree
// without one "recurs": its result is identical regardless of which shard
// it is joined against.
func JoinTreeContainsDistributedRef(t *Tree, q *QueryNode, node JoinTree, isDistributed func(relation string) bool) bool {
	switch node := node.(type) {
	case *JoinNode:
		return JoinTreeContainsDistributedRef(t, q, node.Left, isDistributed) ||
			JoinTreeContainsDistributedRef(t, q, node.Right, isDistributed)
	case *TableNode:
		ref := q.Table(node.Ref)
		switch ref.Kind {
		case RelationRef:
			return isDistributed(ref.Relation)
		case SubqueryRef:
			return ContainsDistributedRef(t, ref.Scope, isDistributed)
		}
	}
	return false
}

// ContainsSetOpScope reports whether the scope or any scope nested beneath
// it is a set operation.
func ContainsSetOpScope(t *Tree, id ScopeID) bool {
	found := false
	ForEachScope(t, id, func(_ ScopeID, q *QueryNode) {
		if q.SetOp != nil {
			found = true
		}
	})
	return found
}

// HasSubqueryTables reports whether the scope has subquery entries in its
// own table list.
func HasSubqueryTables(q *QueryNode) bool {
	for _, ref := range q.Tables {
		if ref.Kind == SubqueryRef {
			return true
		}
	}
	return false
}
