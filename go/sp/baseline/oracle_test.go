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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardplan.io/shardplan/go/sp/catalog"
	"shardplan.io/shardplan/go/sp/planner"
	"shardplan.io/shardplan/go/sp/querytree"
)

func testCatalog() *catalog.InMemory {
	cols := []querytree.ColumnDef{{Name: "key", Type: "int"}, {Name: "val", Type: "int"}}
	return catalog.NewInMemory(
		&catalog.Table{Name: "orders", Distributed: true, DistributionColumn: "key", ColocationGroup: 1, ShardCount: 4, Columns: cols},
		&catalog.Table{Name: "items", Distributed: true, DistributionColumn: "key", ColocationGroup: 1, ShardCount: 4, Columns: cols},
		&catalog.Table{Name: "users", Distributed: true, DistributionColumn: "key", ColocationGroup: 2, ShardCount: 8, Columns: cols},
	)
}

func record(rels map[int]string, cat catalog.Catalog) *planner.RestrictionContext {
	rc := &planner.RestrictionContext{}
	for id, rel := range rels {
		rc.RecordRelation(&querytree.TableRef{Kind: querytree.RelationRef, Relation: rel, Identity: id},
			catalog.IsDistributed(cat, rel), nil)
	}
	return rc
}

func keyJoin(left, right int) (*querytree.Call, []int, []int) {
	pred := &querytree.Call{Func: "=", Args: []querytree.Expr{
		&querytree.ColumnRef{Table: 0, Name: "key"},
		&querytree.ColumnRef{Table: 1, Name: "key"},
	}}
	return pred, []int{left}, []int{right}
}

func TestDistributionKeyJoin(t *testing.T) {
	cat := testCatalog()
	o := NewOracle(cat)

	rc := record(map[int]string{1: "orders", 2: "items", 3: "users"}, cat)
	pred, l, r := keyJoin(1, 2)
	rc.RecordJoin(querytree.InnerJoin, []querytree.Expr{pred}, l, r)
	assert.True(t, o.DistributionKeyJoin(rc, rc.Joins[0]))

	// Non-colocated relations never form a distribution-key join.
	pred, l, r = keyJoin(1, 3)
	rc.RecordJoin(querytree.InnerJoin, []querytree.Expr{pred}, l, r)
	assert.False(t, o.DistributionKeyJoin(rc, rc.Joins[1]))

	// Outer joins do not count even when colocated.
	pred, l, r = keyJoin(1, 2)
	rc.RecordJoin(querytree.LeftJoin, []querytree.Expr{pred}, l, r)
	assert.False(t, o.DistributionKeyJoin(rc, rc.Joins[2]))

	// An equality on a non-distribution column does not count.
	rc.RecordJoin(querytree.InnerJoin, []querytree.Expr{
		&querytree.Call{Func: "=", Args: []querytree.Expr{
			&querytree.ColumnRef{Table: 0, Name: "val"},
			&querytree.ColumnRef{Table: 1, Name: "val"},
		}},
	}, []int{1}, []int{2})
	assert.False(t, o.DistributionKeyJoin(rc, rc.Joins[3]))
}

func TestRestrictionEquivalence(t *testing.T) {
	cat := testCatalog()
	o := NewOracle(cat)

	// A single distributed relation is trivially shard-local.
	rc := record(map[int]string{1: "orders"}, cat)
	assert.True(t, o.RestrictionEquivalence(rc))

	// Colocated and joined on the distribution key.
	rc = record(map[int]string{1: "orders", 2: "items"}, cat)
	pred, l, r := keyJoin(1, 2)
	rc.RecordJoin(querytree.InnerJoin, []querytree.Expr{pred}, l, r)
	assert.True(t, o.RestrictionEquivalence(rc))

	// Colocated but not joined on the distribution key.
	rc = record(map[int]string{1: "orders", 2: "items"}, cat)
	assert.False(t, o.RestrictionEquivalence(rc))

	// Not colocated at all.
	rc = record(map[int]string{1: "orders", 2: "users"}, cat)
	pred, l, r = keyJoin(1, 2)
	rc.RecordJoin(querytree.InnerJoin, []querytree.Expr{pred}, l, r)
	assert.False(t, o.RestrictionEquivalence(rc))
}

func TestColocatedRestrictions(t *testing.T) {
	cat := testCatalog()
	o := NewOracle(cat)

	// Colocated relations pass without any joins, e.g. union branches.
	rc := record(map[int]string{1: "orders", 2: "items"}, cat)
	assert.True(t, o.ColocatedRestrictions(rc))

	rc = record(map[int]string{1: "orders", 2: "users"}, cat)
	assert.False(t, o.ColocatedRestrictions(rc))

	assert.True(t, o.ColocatedRestrictions(&planner.RestrictionContext{}))
}

func TestBaselinePlannerRecordsRestrictions(t *testing.T) {
	cat := testCatalog()
	p := NewPlanner(cat)

	root := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{
			{Kind: querytree.RelationRef, Relation: "orders"},
			{Kind: querytree.RelationRef, Relation: "items"},
		},
		From: []querytree.JoinTree{&querytree.TableNode{Ref: 0}, &querytree.TableNode{Ref: 1}},
		Where: []querytree.Expr{
			&querytree.Call{Func: "=", Args: []querytree.Expr{
				&querytree.ColumnRef{Table: 0, Name: "key"},
				&querytree.ColumnRef{Table: 1, Name: "key"},
			}},
			&querytree.Call{Func: ">", Args: []querytree.Expr{
				&querytree.ColumnRef{Table: 0, Name: "val"},
				&querytree.Literal{Val: "10", Type: "int"},
			}},
		},
		Targets: []querytree.TargetColumn{{Name: "val", Type: "int", Expr: &querytree.ColumnRef{Table: 0, Name: "val"}}},
	}
	tree := querytree.NewTree(root)
	require.NoError(t, querytree.AssignIdentities(tree))

	rc := &planner.RestrictionContext{}
	local, err := p.Plan(context.Background(), tree, nil, rc)
	require.NoError(t, err)

	assert.Equal(t, []string{"orders", "items"}, local.Relations)
	assert.Equal(t, []querytree.ColumnDef{{Name: "val", Type: "int"}}, local.Targets)
	assert.Greater(t, local.TotalCost, 0.0)

	require.Len(t, rc.Relations, 2)
	assert.True(t, rc.HasDistributedRelation)
	assert.False(t, rc.HasLocalRelation)
	// The single-table filter lands on orders only.
	require.NotNil(t, rc.Relation(1))
	assert.Len(t, rc.Relation(1).Predicates, 1)
	assert.Empty(t, rc.Relation(2).Predicates)
	// The implicit equality between the two tables is reported as a join.
	require.Len(t, rc.Joins, 1)
	assert.Equal(t, []int{1}, rc.Joins[0].LeftIdentities)
	assert.Equal(t, []int{2}, rc.Joins[0].RightIdentities)
}

func TestRouterRequiresPinnedDistributionKey(t *testing.T) {
	cat := testCatalog()
	r := NewRouter(cat)

	pinned := &querytree.TableRef{Kind: querytree.RelationRef, Relation: "orders", Identity: 1}
	tree := querytree.NewTree(&querytree.QueryNode{
		Command: querytree.Select,
		Tables:  []*querytree.TableRef{pinned},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}},
	})

	rc := &planner.RestrictionContext{}
	rc.RecordRelation(pinned, true, []querytree.Expr{
		&querytree.Call{Func: "=", Args: []querytree.Expr{
			&querytree.ColumnRef{Table: 0, Name: "key"},
			&querytree.Literal{Val: "5", Type: "int"},
		}},
	})
	plan := r.PlanRouter(context.Background(), tree, tree, rc)
	require.NotNil(t, plan)
	assert.Nil(t, plan.PlanningError)
	assert.True(t, plan.Router)
	assert.Equal(t, 1, plan.TaskCount)

	// Without the pin the router defers.
	rc = &planner.RestrictionContext{}
	rc.RecordRelation(pinned, true, nil)
	plan = r.PlanRouter(context.Background(), tree, tree, rc)
	require.NotNil(t, plan)
	require.NotNil(t, plan.PlanningError)

	// With no distributed relations the strategy is inapplicable.
	assert.Nil(t, r.PlanRouter(context.Background(), tree, tree, &planner.RestrictionContext{}))
}
