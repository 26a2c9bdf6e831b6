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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeJSONRoundTrip(t *testing.T) {
	tree := NewTree(&QueryNode{})
	cteScope := tree.AddScope(scanScope("cte_rel", "x"))
	branchA := tree.AddScope(scanScope("a", "x"))
	branchB := tree.AddScope(scanScope("b", "x"))

	union := &QueryNode{
		Command: Select,
		Tables: []*TableRef{
			{Kind: SubqueryRef, Alias: "l", Scope: branchA},
			{Kind: SubqueryRef, Alias: "r", Scope: branchB},
		},
		SetOp: &SetOpNode{
			Op:    Union,
			All:   true,
			Left:  &SetOpLeaf{Ref: 0},
			Right: &SetOpLeaf{Ref: 1},
		},
		Targets: []TargetColumn{{Name: "x", Type: "int", Expr: &ColumnRef{Table: 0, Name: "x"}}},
	}
	unionScope := tree.AddScope(union)

	root := &QueryNode{
		Command: Select,
		CTEs:    []CTEDef{{Name: "c", Scope: cteScope}},
		Tables: []*TableRef{
			{Kind: RelationRef, Relation: "events", NoExpand: true},
			{Kind: CTERef, Alias: "c1", CTEName: "c"},
			{Kind: SubqueryRef, Alias: "u", Scope: unionScope},
			{Kind: ResultRef, Alias: "ir", Result: &ResultScan{
				PlanID: 7, SubPlanID: 2, Path: "base/intermediate_results/x_7_2.data",
				Columns: []ColumnDef{{Name: "x", Type: "int"}},
			}},
		},
		From: []JoinTree{&JoinNode{
			Join:  LeftJoin,
			Left:  &TableNode{Ref: 0},
			Right: &TableNode{Ref: 1},
			On:    []Expr{&Call{Func: "=", Args: []Expr{&ColumnRef{Table: 0, Name: "x"}, &ColumnRef{Table: 1, Name: "x"}}}},
		}},
		Where:   []Expr{&Call{Func: ">", Args: []Expr{&ColumnRef{Table: 0, Name: "x"}, &Param{Ordinal: 1}}}},
		GroupBy: []Expr{&ColumnRef{Table: 0, Name: "x"}},
		Limit:   &Literal{Val: "10", Type: "int"},
		Targets: []TargetColumn{
			{Name: "x", Type: "int", Expr: &ColumnRef{Table: 0, Name: "x"}},
			{Name: "ord", Type: "int", Junk: true, Expr: &ColumnRef{Table: 0, Name: "x"}},
		},
	}
	tree.Replace(tree.Root(), root)
	require.NoError(t, AssignIdentities(tree))

	data, err := json.Marshal(tree)
	require.NoError(t, err)

	var decoded Tree
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Stamped())
	assert.Equal(t, tree.NumScopes(), decoded.NumScopes())

	again, err := json.Marshal(&decoded)
	require.NoError(t, err)

	var want, got any
	require.NoError(t, json.Unmarshal(data, &want))
	require.NoError(t, json.Unmarshal(again, &got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("re-encoded tree differs (-want +got):\n%s", diff)
	}
}

func TestTreeJSONRejectsUnknownKinds(t *testing.T) {
	var tree Tree
	err := json.Unmarshal([]byte(`{"scopes":[{"command":"select","tables":[{"kind":"bogus"}]}]}`), &tree)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table reference kind")

	err = json.Unmarshal([]byte(`{"scopes":[{"command":"merge"}]}`), &tree)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command type")
}

func TestTreeJSONRejectsEmpty(t *testing.T) {
	var tree Tree
	err := json.Unmarshal([]byte(`{"scopes":[]}`), &tree)
	require.Error(t, err)
}
