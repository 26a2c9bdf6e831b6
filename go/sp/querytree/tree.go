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

// Package querytree holds the query tree model the planner works on.
//
// A Tree is an arena of query scopes addressed by stable ScopeIDs. Parents
// refer to nested scopes by ScopeID, never by pointer, so replacing a scope
// is an overwrite of the arena slot: every holder of the ScopeID observes
// the replacement. The planner relies on this to rewrite subqueries into
// intermediate-result scans in place.
//
// Node kinds (expressions, join trees, set operations) are closed tagged
// enumerations. Walkers switch over them exhaustively instead of using
// per-kind callbacks.
package querytree

import (
	"fmt"

	"google.golang.org/grpc/codes"

	"shardplan.io/shardplan/go/sp/sperrors"
)

// ScopeID addresses one query scope within a Tree.
type ScopeID int

// InvalidScope is the zero value for optional scope references.
const InvalidScope ScopeID = -1

// CommandType is the kind of statement a scope represents.
type CommandType int8

// All command types.
const (
	Select CommandType = iota
	Insert
	Update
	Delete
)

func (c CommandType) String() string {
	switch c {
	case Select:
		return "select"
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("unknown(%d)", int8(c))
}

// IsModify reports whether the command writes data.
func (c CommandType) IsModify() bool {
	return c == Insert || c == Update || c == Delete
}

// JoinType is the kind of a join tree node.
type JoinType int8

// All join types.
const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullJoin
)

func (j JoinType) String() string {
	switch j {
	case InnerJoin:
		return "inner"
	case LeftJoin:
		return "left"
	case RightJoin:
		return "right"
	case FullJoin:
		return "full"
	}
	return fmt.Sprintf("unknown(%d)", int8(j))
}

// SetOpType is the kind of a set operation.
type SetOpType int8

// All set operation types.
const (
	Union SetOpType = iota
	Intersect
	Except
)

func (s SetOpType) String() string {
	switch s {
	case Union:
		return "union"
	case Intersect:
		return "intersect"
	case Except:
		return "except"
	}
	return fmt.Sprintf("unknown(%d)", int8(s))
}

// RefKind is the kind of a table reference.
type RefKind int8

// All table reference kinds.
const (
	// RelationRef references a base table.
	RelationRef RefKind = iota
	// SubqueryRef references a nested scope.
	SubqueryRef
	// CTERef references a common table expression by name.
	CTERef
	// ResultRef scans a materialized intermediate result. It only appears
	// after decomposition has replaced a subtree.
	ResultRef
)

// ColumnDef describes one output column by name and type.
type ColumnDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TargetColumn is one entry of a scope's target list. Junk columns exist
// for internal bookkeeping (ordering, row marks) and are excluded from the
// visible output shape.
type TargetColumn struct {
	Name string
	Type string
	Expr Expr
	Junk bool
}

// Expr is a closed expression node enumeration.
type Expr interface {
	isExpr()
}

// ColumnRef references a column of a table in the current scope, or in an
// enclosing scope when LevelsUp is positive.
type ColumnRef struct {
	Table    int // index into the owning scope's Tables
	Name     string
	LevelsUp int
}

// Param is a statement parameter, 1-based.
type Param struct {
	Ordinal int
}

// Literal is a constant value.
type Literal struct {
	Val  string
	Type string
}

// Call applies a function or operator to its arguments.
type Call struct {
	Func string
	Args []Expr
}

// SubqueryExpr embeds a nested scope in expression position.
type SubqueryExpr struct {
	Scope ScopeID
}

func (*ColumnRef) isExpr()    {}
func (*Param) isExpr()        {}
func (*Literal) isExpr()      {}
func (*Call) isExpr()         {}
func (*SubqueryExpr) isExpr() {}

// JoinTree is a closed join tree node enumeration.
type JoinTree interface {
	isJoinTree()
}

// TableNode is a join tree leaf referencing a table of the scope.
type TableNode struct {
	Ref int // index into the owning scope's Tables
}

// JoinNode joins two join trees.
type JoinNode struct {
	Join  JoinType
	Left  JoinTree
	Right JoinTree
	On    []Expr
}

func (*TableNode) isJoinTree() {}
func (*JoinNode) isJoinTree()  {}

// SetOpTree is a closed set operation tree enumeration.
type SetOpTree interface {
	isSetOpTree()
}

// SetOpNode combines two set operation branches.
type SetOpNode struct {
	Op    SetOpType
	All   bool
	Left  SetOpTree
	Right SetOpTree
}

// SetOpLeaf is a set operation leaf referencing a table of the scope,
// normally a subquery reference.
type SetOpLeaf struct {
	Ref int // index into the owning scope's Tables
}

func (*SetOpNode) isSetOpTree() {}
func (*SetOpLeaf) isSetOpTree() {}

// ResultScan describes an intermediate-result scan: the materialized
// output of a sub-plan, read back through a symbolic path.
type ResultScan struct {
	PlanID    uint64      `json:"plan_id"`
	SubPlanID int         `json:"sub_plan_id"`
	Path      string      `json:"path"`
	Columns   []ColumnDef `json:"columns"`
}

// TableRef is a reference to a base table, subquery, CTE or intermediate
// result. Which fields are meaningful depends on Kind.
//
// Relation references carry an Identity once AssignIdentities has run: an
// integer unique within one top-level plan, preserved across copies, and
// the only durable way to recognize the same logical reference after the
// baseline planner has cloned and transformed the tree. Placeholder
// references created by decomposition have no identity.
type TableRef struct {
	Kind  RefKind
	Alias string

	// Relation references.
	Relation string
	Identity int
	// NoExpand suppresses expansion of a partitioned table into its
	// partitions during baseline planning; partitioning is handled at
	// shard level.
	NoExpand bool

	// Subquery references.
	Scope ScopeID

	// CTE references.
	CTEName  string
	LevelsUp int

	// Intermediate result references.
	Result *ResultScan
}

// CTEDef is one common table expression definition of a scope.
type CTEDef struct {
	Name      string
	Scope     ScopeID
	Recursive bool
}

// QueryNode is one (sub)query scope. It is mutated in place during
// decomposition; a caller holding the scope's ID (or the *QueryNode
// itself) observes any later replacement of its contents.
type QueryNode struct {
	Command CommandType
	Tables  []*TableRef
	From    []JoinTree
	Where   []Expr
	GroupBy []Expr
	Limit   Expr
	Targets []TargetColumn
	CTEs    []CTEDef
	SetOp   SetOpTree
}

// Table returns the table reference at the given index.
func (q *QueryNode) Table(i int) *TableRef {
	return q.Tables[i]
}

// OutputColumns returns the non-junk target list as column definitions,
// preserving names, types and order.
func (q *QueryNode) OutputColumns() []ColumnDef {
	var cols []ColumnDef
	for _, tc := range q.Targets {
		if tc.Junk {
			continue
		}
		cols = append(cols, ColumnDef{Name: tc.Name, Type: tc.Type})
	}
	return cols
}

// Tree is an arena of query scopes. The root scope is always slot 0.
type Tree struct {
	scopes  []*QueryNode
	stamped bool
}

// NewTree creates a tree with the given root scope.
func NewTree(root *QueryNode) *Tree {
	return &Tree{scopes: []*QueryNode{root}}
}

// Root returns the root scope's ID.
func (t *Tree) Root() ScopeID {
	return 0
}

// Scope returns the scope stored at the given ID.
func (t *Tree) Scope(id ScopeID) *QueryNode {
	return t.scopes[id]
}

// AddScope appends a new scope to the arena and returns its ID.
func (t *Tree) AddScope(q *QueryNode) ScopeID {
	t.scopes = append(t.scopes, q)
	return ScopeID(len(t.scopes) - 1)
}

// NumScopes returns the number of scopes in the arena, including scopes
// that decomposition has already replaced.
func (t *Tree) NumScopes() int {
	return len(t.scopes)
}

// Replace overwrites the scope slot in place. Existing holders of the
// ScopeID, and of the *QueryNode itself, observe the new contents.
func (t *Tree) Replace(id ScopeID, q *QueryNode) {
	*t.scopes[id] = *q
}

// Overwrite replaces this tree's entire contents with another tree's,
// preserving the *Tree pointer callers hold.
func (t *Tree) Overwrite(other *Tree) {
	t.scopes = other.scopes
	t.stamped = other.stamped
}

// Stamped reports whether AssignIdentities has run on this tree.
func (t *Tree) Stamped() bool {
	return t.stamped
}

// validScope guards arena access in the exported walkers.
func (t *Tree) validScope(id ScopeID) error {
	if id < 0 || int(id) >= len(t.scopes) {
		return sperrors.Errorf(codes.Internal, "scope %d out of range (%d scopes)", id, len(t.scopes))
	}
	return nil
}
