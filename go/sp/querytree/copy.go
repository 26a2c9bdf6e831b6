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

// Copy returns a deep copy of the tree. Scope IDs and relation identities
// are preserved, so facts recorded against the original remain valid for
// the copy.
func (t *Tree) Copy() *Tree {
	nt := &Tree{scopes: make([]*QueryNode, len(t.scopes)), stamped: t.stamped}
	keep := func(id ScopeID) ScopeID { return id }
	for i, q := range t.scopes {
		nt.scopes[i] = copyScope(q, keep)
	}
	return nt
}

// ExtractScope copies the given scope and everything nested beneath it
// into a fresh tree rooted at that scope. Relation identities are
// preserved; scope IDs are remapped into the new arena.
func (t *Tree) ExtractScope(id ScopeID) *Tree {
	nt := &Tree{stamped: t.stamped}
	idMap := make(map[ScopeID]ScopeID)
	var extract func(old ScopeID) ScopeID
	extract = func(old ScopeID) ScopeID {
		if nid, ok := idMap[old]; ok {
			return nid
		}
		nid := nt.AddScope(&QueryNode{})
		idMap[old] = nid
		copied := copyScope(t.Scope(old), extract)
		*nt.scopes[nid] = *copied
		return nid
	}
	extract(id)
	return nt
}

func copyScope(q *QueryNode, remap func(ScopeID) ScopeID) *QueryNode {
	nq := &QueryNode{
		Command: q.Command,
		Limit:   copyExpr(q.Limit, remap),
		SetOp:   copySetOp(q.SetOp, remap),
	}
	for _, ref := range q.Tables {
		nq.Tables = append(nq.Tables, copyTableRef(ref, remap))
	}
	for _, jt := range q.From {
		nq.From = append(nq.From, copyJoinTree(jt, remap))
	}
	nq.Where = copyExprs(q.Where, remap)
	nq.GroupBy = copyExprs(q.GroupBy, remap)
	for _, tc := range q.Targets {
		nq.Targets = append(nq.Targets, TargetColumn{
			Name: tc.Name,
			Type: tc.Type,
			Expr: copyExpr(tc.Expr, remap),
			Junk: tc.Junk,
		})
	}
	for _, cte := range q.CTEs {
		nq.CTEs = append(nq.CTEs, CTEDef{
			Name:      cte.Name,
			Scope:     remap(cte.Scope),
			Recursive: cte.Recursive,
		})
	}
	return nq
}

func copyTableRef(ref *TableRef, remap func(ScopeID) ScopeID) *TableRef {
	nref := &TableRef{
		Kind:     ref.Kind,
		Alias:    ref.Alias,
		Relation: ref.Relation,
		Identity: ref.Identity,
		NoExpand: ref.NoExpand,
		CTEName:  ref.CTEName,
		LevelsUp: ref.LevelsUp,
	}
	if ref.Kind == SubqueryRef {
		nref.Scope = remap(ref.Scope)
	}
	if ref.Result != nil {
		rs := *ref.Result
		rs.Columns = append([]ColumnDef(nil), ref.Result.Columns...)
		nref.Result = &rs
	}
	return nref
}

func copyJoinTree(jt JoinTree, remap func(ScopeID) ScopeID) JoinTree {
	switch jt := jt.(type) {
	case *TableNode:
		return &TableNode{Ref: jt.Ref}
	case *JoinNode:
		return &JoinNode{
			Join:  jt.Join,
			Left:  copyJoinTree(jt.Left, remap),
			Right: copyJoinTree(jt.Right, remap),
			On:    copyExprs(jt.On, remap),
		}
	}
	return nil
}

func copySetOp(so SetOpTree, remap func(ScopeID) ScopeID) SetOpTree {
	switch so := so.(type) {
	case nil:
		return nil
	case *SetOpLeaf:
		return &SetOpLeaf{Ref: so.Ref}
	case *SetOpNode:
		return &SetOpNode{
			Op:    so.Op,
			All:   so.All,
			Left:  copySetOp(so.Left, remap),
			Right: copySetOp(so.Right, remap),
		}
	}
	return nil
}

func copyExprs(exprs []Expr, remap func(ScopeID) ScopeID) []Expr {
	if exprs == nil {
		return nil
	}
	out := make([]Expr, len(exprs))
	for i, e := range exprs {
		out[i] = copyExpr(e, remap)
	}
	return out
}

func copyExpr(e Expr, remap func(ScopeID) ScopeID) Expr {
	switch e := e.(type) {
	case nil:
		return nil
	case *ColumnRef:
		ne := *e
		return &ne
	case *Param:
		ne := *e
		return &ne
	case *Literal:
		ne := *e
		return &ne
	case *Call:
		return &Call{Func: e.Func, Args: copyExprs(e.Args, remap)}
	case *SubqueryExpr:
		return &SubqueryExpr{Scope: remap(e.Scope)}
	}
	return nil
}
