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

import (
	"encoding/json"
	"fmt"
)

// JSON encoding of a tree. The closed node enumerations are encoded as
// tagged objects so the tree round-trips: plans carry query scopes as an
// opaque payload for the execution layer, and the CLI accepts trees as
// input in the same encoding.

type jsonTree struct {
	Scopes  []*jsonScope `json:"scopes"`
	Stamped bool         `json:"stamped,omitempty"`
}

type jsonScope struct {
	Command string        `json:"command"`
	Tables  []*jsonTable  `json:"tables,omitempty"`
	From    []*jsonJoin   `json:"from,omitempty"`
	Where   []*jsonExpr   `json:"where,omitempty"`
	GroupBy []*jsonExpr   `json:"group_by,omitempty"`
	Limit   *jsonExpr     `json:"limit,omitempty"`
	Targets []*jsonTarget `json:"targets,omitempty"`
	CTEs    []*jsonCTE    `json:"ctes,omitempty"`
	SetOp   *jsonSetOp    `json:"set_op,omitempty"`
}

type jsonTable struct {
	Kind     string      `json:"kind"`
	Alias    string      `json:"alias,omitempty"`
	Relation string      `json:"relation,omitempty"`
	Identity int         `json:"identity,omitempty"`
	NoExpand bool        `json:"no_expand,omitempty"`
	Scope    ScopeID     `json:"scope,omitempty"`
	CTEName  string      `json:"cte_name,omitempty"`
	LevelsUp int         `json:"levels_up,omitempty"`
	Result   *ResultScan `json:"result,omitempty"`
}

type jsonJoin struct {
	Kind  string      `json:"kind"` // "table" or "join"
	Ref   int         `json:"ref,omitempty"`
	Join  string      `json:"join,omitempty"`
	Left  *jsonJoin   `json:"left,omitempty"`
	Right *jsonJoin   `json:"right,omitempty"`
	On    []*jsonExpr `json:"on,omitempty"`
}

type jsonExpr struct {
	Kind     string      `json:"kind"`
	Table    int         `json:"table,omitempty"`
	Name     string      `json:"name,omitempty"`
	LevelsUp int         `json:"levels_up,omitempty"`
	Ordinal  int         `json:"ordinal,omitempty"`
	Val      string      `json:"val,omitempty"`
	Type     string      `json:"type,omitempty"`
	Func     string      `json:"func,omitempty"`
	Args     []*jsonExpr `json:"args,omitempty"`
	Scope    ScopeID     `json:"scope,omitempty"`
}

type jsonTarget struct {
	Name string    `json:"name"`
	Type string    `json:"type,omitempty"`
	Expr *jsonExpr `json:"expr,omitempty"`
	Junk bool      `json:"junk,omitempty"`
}

type jsonCTE struct {
	Name      string  `json:"name"`
	Scope     ScopeID `json:"scope"`
	Recursive bool    `json:"recursive,omitempty"`
}

type jsonSetOp struct {
	Kind  string     `json:"kind"` // "leaf" or "op"
	Ref   int        `json:"ref,omitempty"`
	Op    string     `json:"op,omitempty"`
	All   bool       `json:"all,omitempty"`
	Left  *jsonSetOp `json:"left,omitempty"`
	Right *jsonSetOp `json:"right,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (t *Tree) MarshalJSON() ([]byte, error) {
	jt := &jsonTree{Stamped: t.stamped}
	for _, q := range t.scopes {
		jt.Scopes = append(jt.Scopes, encodeScope(q))
	}
	return json.Marshal(jt)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var jt jsonTree
	if err := json.Unmarshal(data, &jt); err != nil {
		return err
	}
	t.scopes = nil
	t.stamped = jt.Stamped
	for _, js := range jt.Scopes {
		q, err := decodeScope(js)
		if err != nil {
			return err
		}
		t.scopes = append(t.scopes, q)
	}
	if len(t.scopes) == 0 {
		return fmt.Errorf("query tree has no scopes")
	}
	return nil
}

func encodeScope(q *QueryNode) *jsonScope {
	js := &jsonScope{
		Command: q.Command.String(),
		Limit:   encodeExpr(q.Limit),
		SetOp:   encodeSetOp(q.SetOp),
	}
	for _, ref := range q.Tables {
		js.Tables = append(js.Tables, encodeTable(ref))
	}
	for _, jt := range q.From {
		js.From = append(js.From, encodeJoin(jt))
	}
	js.Where = encodeExprs(q.Where)
	js.GroupBy = encodeExprs(q.GroupBy)
	for _, tc := range q.Targets {
		js.Targets = append(js.Targets, &jsonTarget{
			Name: tc.Name, Type: tc.Type, Expr: encodeExpr(tc.Expr), Junk: tc.Junk,
		})
	}
	for _, cte := range q.CTEs {
		js.CTEs = append(js.CTEs, &jsonCTE{Name: cte.Name, Scope: cte.Scope, Recursive: cte.Recursive})
	}
	return js
}

func decodeScope(js *jsonScope) (*QueryNode, error) {
	cmd, err := decodeCommand(js.Command)
	if err != nil {
		return nil, err
	}
	q := &QueryNode{Command: cmd}
	for _, jt := range js.Tables {
		ref, err := decodeTable(jt)
		if err != nil {
			return nil, err
		}
		q.Tables = append(q.Tables, ref)
	}
	for _, jj := range js.From {
		jt, err := decodeJoin(jj)
		if err != nil {
			return nil, err
		}
		q.From = append(q.From, jt)
	}
	if q.Where, err = decodeExprs(js.Where); err != nil {
		return nil, err
	}
	if q.GroupBy, err = decodeExprs(js.GroupBy); err != nil {
		return nil, err
	}
	if q.Limit, err = decodeExpr(js.Limit); err != nil {
		return nil, err
	}
	for _, tgt := range js.Targets {
		expr, err := decodeExpr(tgt.Expr)
		if err != nil {
			return nil, err
		}
		q.Targets = append(q.Targets, TargetColumn{Name: tgt.Name, Type: tgt.Type, Expr: expr, Junk: tgt.Junk})
	}
	for _, cte := range js.CTEs {
		q.CTEs = append(q.CTEs, CTEDef{Name: cte.Name, Scope: cte.Scope, Recursive: cte.Recursive})
	}
	if q.SetOp, err = decodeSetOp(js.SetOp); err != nil {
		return nil, err
	}
	return q, nil
}

func decodeCommand(s string) (CommandType, error) {
	switch s {
	case "select":
		return Select, nil
	case "insert":
		return Insert, nil
	case "update":
		return Update, nil
	case "delete":
		return Delete, nil
	}
	return Select, fmt.Errorf("unknown command type %q", s)
}

func encodeTable(ref *TableRef) *jsonTable {
	jt := &jsonTable{
		Alias:    ref.Alias,
		Relation: ref.Relation,
		Identity: ref.Identity,
		NoExpand: ref.NoExpand,
		Scope:    ref.Scope,
		CTEName:  ref.CTEName,
		LevelsUp: ref.LevelsUp,
		Result:   ref.Result,
	}
	switch ref.Kind {
	case RelationRef:
		jt.Kind = "relation"
	case SubqueryRef:
		jt.Kind = "subquery"
	case CTERef:
		jt.Kind = "cte"
	case ResultRef:
		jt.Kind = "result"
	}
	return jt
}

func decodeTable(jt *jsonTable) (*TableRef, error) {
	ref := &TableRef{
		Alias:    jt.Alias,
		Relation: jt.Relation,
		Identity: jt.Identity,
		NoExpand: jt.NoExpand,
		Scope:    jt.Scope,
		CTEName:  jt.CTEName,
		LevelsUp: jt.LevelsUp,
		Result:   jt.Result,
	}
	switch jt.Kind {
	case "relation":
		ref.Kind = RelationRef
	case "subquery":
		ref.Kind = SubqueryRef
	case "cte":
		ref.Kind = CTERef
	case "result":
		ref.Kind = ResultRef
	default:
		return nil, fmt.Errorf("unknown table reference kind %q", jt.Kind)
	}
	return ref, nil
}

func encodeJoin(jt JoinTree) *jsonJoin {
	switch jt := jt.(type) {
	case *TableNode:
		return &jsonJoin{Kind: "table", Ref: jt.Ref}
	case *JoinNode:
		return &jsonJoin{
			Kind:  "join",
			Join:  jt.Join.String(),
			Left:  encodeJoin(jt.Left),
			Right: encodeJoin(jt.Right),
			On:    encodeExprs(jt.On),
		}
	}
	return nil
}

func decodeJoin(jj *jsonJoin) (JoinTree, error) {
	if jj == nil {
		return nil, nil
	}
	switch jj.Kind {
	case "table":
		return &TableNode{Ref: jj.Ref}, nil
	case "join":
		var join JoinType
		switch jj.Join {
		case "inner":
			join = InnerJoin
		case "left":
			join = LeftJoin
		case "right":
			join = RightJoin
		case "full":
			join = FullJoin
		default:
			return nil, fmt.Errorf("unknown join type %q", jj.Join)
		}
		left, err := decodeJoin(jj.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeJoin(jj.Right)
		if err != nil {
			return nil, err
		}
		on, err := decodeExprs(jj.On)
		if err != nil {
			return nil, err
		}
		return &JoinNode{Join: join, Left: left, Right: right, On: on}, nil
	}
	return nil, fmt.Errorf("unknown join tree kind %q", jj.Kind)
}

func encodeExprs(exprs []Expr) []*jsonExpr {
	var out []*jsonExpr
	for _, e := range exprs {
		out = append(out, encodeExpr(e))
	}
	return out
}

func decodeExprs(jes []*jsonExpr) ([]Expr, error) {
	var out []Expr
	for _, je := range jes {
		e, err := decodeExpr(je)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func encodeExpr(e Expr) *jsonExpr {
	switch e := e.(type) {
	case nil:
		return nil
	case *ColumnRef:
		return &jsonExpr{Kind: "column", Table: e.Table, Name: e.Name, LevelsUp: e.LevelsUp}
	case *Param:
		return &jsonExpr{Kind: "param", Ordinal: e.Ordinal}
	case *Literal:
		return &jsonExpr{Kind: "literal", Val: e.Val, Type: e.Type}
	case *Call:
		return &jsonExpr{Kind: "call", Func: e.Func, Args: encodeExprs(e.Args)}
	case *SubqueryExpr:
		return &jsonExpr{Kind: "subquery", Scope: e.Scope}
	}
	return nil
}

func decodeExpr(je *jsonExpr) (Expr, error) {
	if je == nil {
		return nil, nil
	}
	switch je.Kind {
	case "column":
		return &ColumnRef{Table: je.Table, Name: je.Name, LevelsUp: je.LevelsUp}, nil
	case "param":
		return &Param{Ordinal: je.Ordinal}, nil
	case "literal":
		return &Literal{Val: je.Val, Type: je.Type}, nil
	case "call":
		args, err := decodeExprs(je.Args)
		if err != nil {
			return nil, err
		}
		return &Call{Func: je.Func, Args: args}, nil
	case "subquery":
		return &SubqueryExpr{Scope: je.Scope}, nil
	}
	return nil, fmt.Errorf("unknown expression kind %q", je.Kind)
}

func encodeSetOp(so SetOpTree) *jsonSetOp {
	switch so := so.(type) {
	case nil:
		return nil
	case *SetOpLeaf:
		return &jsonSetOp{Kind: "leaf", Ref: so.Ref}
	case *SetOpNode:
		return &jsonSetOp{
			Kind:  "op",
			Op:    so.Op.String(),
			All:   so.All,
			Left:  encodeSetOp(so.Left),
			Right: encodeSetOp(so.Right),
		}
	}
	return nil
}

func decodeSetOp(js *jsonSetOp) (SetOpTree, error) {
	if js == nil {
		return nil, nil
	}
	switch js.Kind {
	case "leaf":
		return &SetOpLeaf{Ref: js.Ref}, nil
	case "op":
		var op SetOpType
		switch js.Op {
		case "union":
			op = Union
		case "intersect":
			op = Intersect
		case "except":
			op = Except
		default:
			return nil, fmt.Errorf("unknown set operation %q", js.Op)
		}
		left, err := decodeSetOp(js.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeSetOp(js.Right)
		if err != nil {
			return nil, err
		}
		return &SetOpNode{Op: op, All: js.All, Left: left, Right: right}, nil
	}
	return nil, fmt.Errorf("unknown set operation kind %q", js.Kind)
}
