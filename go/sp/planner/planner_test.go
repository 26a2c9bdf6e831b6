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

package planner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"shardplan.io/shardplan/go/sp/baseline"
	"shardplan.io/shardplan/go/sp/catalog"
	"shardplan.io/shardplan/go/sp/planner"
	"shardplan.io/shardplan/go/sp/querytree"
	"shardplan.io/shardplan/go/sp/sperrors"
)

// testCatalog models three colocation groups, a partitioned table, and a
// reference table. Queries against "legacy" tables (absent here) count as
// local.
func testCatalog() *catalog.InMemory {
	cols := []querytree.ColumnDef{{Name: "key", Type: "int"}, {Name: "val", Type: "int"}}
	return catalog.NewInMemory(
		&catalog.Table{Name: "orders", Distributed: true, DistributionColumn: "key", ColocationGroup: 1, ShardCount: 4, Columns: cols},
		&catalog.Table{Name: "items", Distributed: true, DistributionColumn: "key", ColocationGroup: 1, ShardCount: 4, Columns: cols},
		&catalog.Table{Name: "users", Distributed: true, DistributionColumn: "key", ColocationGroup: 2, ShardCount: 8, Columns: cols},
		&catalog.Table{Name: "audits", Distributed: true, DistributionColumn: "key", ColocationGroup: 3, ShardCount: 2, Columns: cols},
		&catalog.Table{Name: "events", Distributed: true, Partitioned: true, DistributionColumn: "key", ColocationGroup: 1, ShardCount: 4, Columns: cols},
		&catalog.Table{Name: "countries", Distributed: false, Columns: cols},
	)
}

func newTestPlanner(cat catalog.Catalog, opts planner.Options) *planner.Planner {
	return planner.New(
		cat,
		baseline.NewPlanner(cat),
		baseline.NewOracle(cat),
		baseline.NewRouter(cat),
		baseline.NewDistributed(cat),
		baseline.NewModify(cat),
		opts,
	)
}

func scan(rel string, cols ...string) *querytree.QueryNode {
	q := &querytree.QueryNode{
		Command: querytree.Select,
		Tables:  []*querytree.TableRef{{Kind: querytree.RelationRef, Relation: rel}},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}},
	}
	for _, c := range cols {
		q.Targets = append(q.Targets, querytree.TargetColumn{
			Name: c, Type: "int", Expr: &querytree.ColumnRef{Table: 0, Name: c},
		})
	}
	return q
}

func col(table int, name string) *querytree.ColumnRef {
	return &querytree.ColumnRef{Table: table, Name: name}
}

func eq(l, r querytree.Expr) *querytree.Call {
	return &querytree.Call{Func: "=", Args: []querytree.Expr{l, r}}
}

func lit(v string) *querytree.Literal {
	return &querytree.Literal{Val: v, Type: "int"}
}

func TestRouterFastPath(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	root := scan("orders", "key", "val")
	root.Where = []querytree.Expr{eq(col(0, "key"), lit("5"))}
	tree := querytree.NewTree(root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	assert.True(t, plan.Router)
	assert.Equal(t, 1, plan.Distributed.TaskCount)
	assert.Empty(t, plan.Distributed.SubPlans)
	assert.False(t, plan.NeedsReplan())
	assert.Contains(t, plan.Relations, "orders")
}

func TestColocatedJoinNeedsNoDecomposition(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	root := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{
			{Kind: querytree.RelationRef, Relation: "orders"},
			{Kind: querytree.RelationRef, Relation: "items"},
		},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}, &querytree.TableNode{Ref: 1}},
		Where:   []querytree.Expr{eq(col(0, "key"), col(1, "key"))},
		Targets: []querytree.TargetColumn{{Name: "val", Type: "int", Expr: col(0, "val")}},
	}
	tree := querytree.NewTree(root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	assert.Empty(t, plan.Distributed.SubPlans)
	assert.False(t, plan.Router)
	assert.NotNil(t, plan.Merge)
	assert.Equal(t, 4, plan.Distributed.TaskCount)
}

func TestNonColocatedJoinDecomposed(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	root := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{
			{Kind: querytree.RelationRef, Relation: "orders"},
			{Kind: querytree.RelationRef, Relation: "users"},
		},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}, &querytree.TableNode{Ref: 1}},
		Where:   []querytree.Expr{eq(col(0, "key"), col(1, "key"))},
		Targets: []querytree.TargetColumn{{Name: "val", Type: "int", Expr: col(0, "val")}},
	}
	tree := querytree.NewTree(root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	require.Len(t, plan.Distributed.SubPlans, 1)

	sub := plan.Distributed.SubPlans[0]
	require.NotNil(t, sub.Plan)
	// The victim is the lowest identity: "orders", materialized with its
	// full column set.
	assert.Equal(t, []querytree.ColumnDef{{Name: "key", Type: "int"}, {Name: "val", Type: "int"}}, sub.Columns)

	// The working tree now reads orders from the intermediate result.
	rewritten := tree.Scope(tree.Root()).Table(0)
	assert.Equal(t, querytree.ResultRef, rewritten.Kind)
	require.NotNil(t, rewritten.Result)
	assert.Equal(t, sub.ResultPath, rewritten.Result.Path)

	// Relation bookkeeping still covers the replaced relation.
	assert.Contains(t, plan.Relations, "orders")
	assert.Contains(t, plan.Relations, "users")
}

func TestNonColocatedLoopTerminates(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	root := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{
			{Kind: querytree.RelationRef, Relation: "orders"},
			{Kind: querytree.RelationRef, Relation: "users"},
			{Kind: querytree.RelationRef, Relation: "audits"},
		},
		From: []querytree.JoinTree{
			&querytree.TableNode{Ref: 0}, &querytree.TableNode{Ref: 1}, &querytree.TableNode{Ref: 2},
		},
		Where: []querytree.Expr{
			eq(col(0, "key"), col(1, "key")),
			eq(col(1, "key"), col(2, "key")),
		},
		Targets: []querytree.TargetColumn{{Name: "val", Type: "int", Expr: col(0, "val")}},
	}
	tree := querytree.NewTree(root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	// Two of the three pairwise non-colocated relations get materialized;
	// the last one runs in place.
	assert.Len(t, plan.Distributed.SubPlans, 2)
}

func TestNonColocatedJoinInsideSubqueryDecomposed(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	tree := querytree.NewTree(&querytree.QueryNode{})
	subScope := tree.AddScope(scan("users", "key", "val"))
	root := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{
			{Kind: querytree.RelationRef, Relation: "orders"},
			{Kind: querytree.SubqueryRef, Alias: "s", Scope: subScope},
		},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}, &querytree.TableNode{Ref: 1}},
		Where:   []querytree.Expr{eq(col(0, "key"), col(1, "key"))},
		Targets: []querytree.TargetColumn{{Name: "val", Type: "int", Expr: col(0, "val")}},
	}
	tree.Replace(tree.Root(), root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	// "users" hides one subquery level down, but the join is still not
	// colocated and must not run in a single round.
	require.Len(t, plan.Distributed.SubPlans, 1)

	// The victim is the lowest identity: the bare "orders" reference,
	// wrapped and materialized in place. The subquery stays put.
	sub := plan.Distributed.SubPlans[0]
	require.NotNil(t, sub.Plan)
	assert.Contains(t, sub.Plan.Relations, "orders")
	assert.Equal(t, []querytree.ColumnDef{{Name: "key", Type: "int"}, {Name: "val", Type: "int"}}, sub.Columns)

	got := tree.Scope(tree.Root())
	assert.Equal(t, querytree.ResultRef, got.Table(0).Kind)
	assert.Equal(t, querytree.SubqueryRef, got.Table(1).Kind)

	assert.False(t, plan.Router)
	assert.Equal(t, 8, plan.Distributed.TaskCount)
}

func TestSharedCTEPlannedOnce(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	tree := querytree.NewTree(&querytree.QueryNode{})
	cteScope := tree.AddScope(scan("orders", "key", "val"))
	root := &querytree.QueryNode{
		Command: querytree.Select,
		CTEs:    []querytree.CTEDef{{Name: "recent", Scope: cteScope}},
		Tables: []*querytree.TableRef{
			{Kind: querytree.CTERef, Alias: "r1", CTEName: "recent"},
			{Kind: querytree.CTERef, Alias: "r2", CTEName: "recent"},
		},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}, &querytree.TableNode{Ref: 1}},
		Targets: []querytree.TargetColumn{{Name: "key", Type: "int", Expr: col(0, "key")}},
	}
	tree.Replace(tree.Root(), root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	// One sub-plan even though the CTE is referenced twice.
	require.Len(t, plan.Distributed.SubPlans, 1)
	sub := plan.Distributed.SubPlans[0]

	got := tree.Scope(tree.Root())
	assert.Empty(t, got.CTEs)
	for i := 0; i < 2; i++ {
		ref := got.Table(i)
		assert.Equal(t, querytree.ResultRef, ref.Kind)
		require.NotNil(t, ref.Result)
		assert.Equal(t, sub.ResultPath, ref.Result.Path)
	}
	// Aliases survive the rewrite.
	assert.Equal(t, "r1", got.Table(0).Alias)
	assert.Equal(t, "r2", got.Table(1).Alias)
}

func TestCTEPlaceholderSkipsJunkColumns(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	tree := querytree.NewTree(&querytree.QueryNode{})
	cte := scan("orders", "key")
	cte.Targets = append(cte.Targets, querytree.TargetColumn{
		Name: "sortkey", Type: "int", Junk: true, Expr: col(0, "val"),
	})
	cteScope := tree.AddScope(cte)
	root := &querytree.QueryNode{
		Command: querytree.Select,
		CTEs:    []querytree.CTEDef{{Name: "c", Scope: cteScope}},
		Tables:  []*querytree.TableRef{{Kind: querytree.CTERef, CTEName: "c"}},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}},
		Targets: []querytree.TargetColumn{{Name: "key", Type: "int", Expr: col(0, "key")}},
	}
	tree.Replace(tree.Root(), root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.Len(t, plan.Distributed.SubPlans, 1)
	assert.Equal(t, []querytree.ColumnDef{{Name: "key", Type: "int"}}, plan.Distributed.SubPlans[0].Columns)

	ref := tree.Scope(tree.Root()).Table(0)
	require.NotNil(t, ref.Result)
	assert.Equal(t, []querytree.ColumnDef{{Name: "key", Type: "int"}}, ref.Result.Columns)
}

func TestModifyingCTERejected(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	tree := querytree.NewTree(&querytree.QueryNode{})
	del := scan("orders", "key")
	del.Command = querytree.Delete
	cteScope := tree.AddScope(del)
	root := &querytree.QueryNode{
		Command: querytree.Select,
		CTEs:    []querytree.CTEDef{{Name: "purged", Scope: cteScope}},
		Tables:  []*querytree.TableRef{{Kind: querytree.CTERef, CTEName: "purged"}},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}},
		Targets: []querytree.TargetColumn{{Name: "key", Type: "int", Expr: col(0, "key")}},
	}
	tree.Replace(tree.Root(), root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.Error(t, err)
	assert.Nil(t, plan)
	assert.Equal(t, codes.Unimplemented, sperrors.Code(err))
	// The hard error fires before any sub-plan is created or any
	// reference rewritten.
	assert.Len(t, tree.Scope(tree.Root()).CTEs, 1)
	assert.Equal(t, querytree.CTERef, tree.Scope(tree.Root()).Table(0).Kind)
}

func TestRecursiveCTERejected(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	tree := querytree.NewTree(&querytree.QueryNode{})
	cteScope := tree.AddScope(scan("orders", "key"))
	root := &querytree.QueryNode{
		Command: querytree.Select,
		CTEs:    []querytree.CTEDef{{Name: "r", Scope: cteScope, Recursive: true}},
		Tables:  []*querytree.TableRef{{Kind: querytree.CTERef, CTEName: "r"}},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}},
		Targets: []querytree.TargetColumn{{Name: "key", Type: "int", Expr: col(0, "key")}},
	}
	tree.Replace(tree.Root(), root)

	_, err := p.PlanQuery(context.Background(), tree, nil)
	require.Error(t, err)
	assert.Equal(t, codes.Unimplemented, sperrors.Code(err))
}

func TestMixedLocalAndDistributedRejected(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	root := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{
			{Kind: querytree.RelationRef, Relation: "orders"},
			{Kind: querytree.RelationRef, Relation: "legacy_billing"},
		},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}, &querytree.TableNode{Ref: 1}},
		Targets: []querytree.TargetColumn{{Name: "key", Type: "int", Expr: col(0, "key")}},
	}
	tree := querytree.NewTree(root)

	_, err := p.PlanQuery(context.Background(), tree, nil)
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, sperrors.Code(err))
}

func TestLocalQueryBypassesDistributedPlanning(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	tree := querytree.NewTree(scan("legacy_billing", "key"))

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	assert.Nil(t, plan.Distributed)
	assert.False(t, plan.Router)
	assert.Equal(t, []string{"legacy_billing"}, plan.Relations)
}

func TestMultiShardModifyForcesReplanOnUnboundParams(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	root := scan("orders")
	root.Command = querytree.Update
	root.Where = []querytree.Expr{eq(col(0, "key"), &querytree.Param{Ordinal: 1})}
	tree := querytree.NewTree(root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	assert.True(t, plan.Distributed.IsMultiShardModify())
	assert.True(t, plan.NeedsReplan())
}

func TestPinnedModifyRoutesToOneShard(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	root := scan("orders")
	root.Command = querytree.Update
	root.Where = []querytree.Expr{eq(col(0, "key"), lit("5"))}
	tree := querytree.NewTree(root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	assert.Equal(t, querytree.Update, plan.Command)
	assert.Equal(t, 1, plan.Distributed.TaskCount)
	assert.False(t, plan.NeedsReplan())
}

func TestRecurringOuterJoinMaterializesDistributedSide(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	root := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{
			{Kind: querytree.RelationRef, Relation: "countries"},
			{Kind: querytree.RelationRef, Relation: "orders"},
		},
		From: []querytree.JoinTree{&querytree.JoinNode{
			Join:  querytree.LeftJoin,
			Left:  &querytree.TableNode{Ref: 0},
			Right: &querytree.TableNode{Ref: 1},
			On:    []querytree.Expr{eq(col(0, "key"), col(1, "key"))},
		}},
		Targets: []querytree.TargetColumn{{Name: "val", Type: "int", Expr: col(1, "val")}},
	}
	tree := querytree.NewTree(root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	require.Len(t, plan.Distributed.SubPlans, 1)

	// The reference table keeps its scan; the distributed inner side is
	// read back from the materialized result.
	got := tree.Scope(tree.Root())
	assert.Equal(t, querytree.RelationRef, got.Table(0).Kind)
	assert.Equal(t, querytree.ResultRef, got.Table(1).Kind)
	assert.Equal(t, []querytree.ColumnDef{{Name: "key", Type: "int"}, {Name: "val", Type: "int"}},
		plan.Distributed.SubPlans[0].Columns)
}

func TestTopLevelUnionBranchesDecomposed(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	tree := querytree.NewTree(&querytree.QueryNode{})
	left := tree.AddScope(scan("orders", "key"))
	right := tree.AddScope(scan("items", "key"))
	root := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{
			{Kind: querytree.SubqueryRef, Alias: "l", Scope: left},
			{Kind: querytree.SubqueryRef, Alias: "r", Scope: right},
		},
		SetOp: &querytree.SetOpNode{
			Op:   querytree.Union,
			All:  true,
			Left: &querytree.SetOpLeaf{Ref: 0}, Right: &querytree.SetOpLeaf{Ref: 1},
		},
		Targets: []querytree.TargetColumn{{Name: "key", Type: "int", Expr: col(0, "key")}},
	}
	tree.Replace(tree.Root(), root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	// A set operation at the top level is never pushed down whole; both
	// branches become sub-plans.
	require.Len(t, plan.Distributed.SubPlans, 2)
	assert.Equal(t, querytree.ResultRef, tree.Scope(left).Table(0).Kind)
	assert.Equal(t, querytree.ResultRef, tree.Scope(right).Table(0).Kind)
}

func TestNestedColocatedUnionPushedDown(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	tree := querytree.NewTree(&querytree.QueryNode{})
	left := tree.AddScope(scan("orders", "key"))
	right := tree.AddScope(scan("items", "key"))
	union := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{
			{Kind: querytree.SubqueryRef, Alias: "l", Scope: left},
			{Kind: querytree.SubqueryRef, Alias: "r", Scope: right},
		},
		SetOp: &querytree.SetOpNode{
			Op:   querytree.Union,
			Left: &querytree.SetOpLeaf{Ref: 0}, Right: &querytree.SetOpLeaf{Ref: 1},
		},
		Targets: []querytree.TargetColumn{{Name: "key", Type: "int", Expr: col(0, "key")}},
	}
	unionScope := tree.AddScope(union)
	root := &querytree.QueryNode{
		Command: querytree.Select,
		Tables:  []*querytree.TableRef{{Kind: querytree.SubqueryRef, Alias: "u", Scope: unionScope}},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}},
		Targets: []querytree.TargetColumn{{Name: "key", Type: "int", Expr: col(0, "key")}},
	}
	tree.Replace(tree.Root(), root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	// The union of colocated relations below the top level runs on the
	// shards untouched.
	assert.Empty(t, plan.Distributed.SubPlans)
}

func TestIntersectScopeBecomesLocalSubPlan(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	tree := querytree.NewTree(&querytree.QueryNode{})
	left := tree.AddScope(scan("orders", "key"))
	right := tree.AddScope(scan("items", "key"))
	intersect := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{
			{Kind: querytree.SubqueryRef, Alias: "l", Scope: left},
			{Kind: querytree.SubqueryRef, Alias: "r", Scope: right},
		},
		SetOp: &querytree.SetOpNode{
			Op:   querytree.Intersect,
			Left: &querytree.SetOpLeaf{Ref: 0}, Right: &querytree.SetOpLeaf{Ref: 1},
		},
		Targets: []querytree.TargetColumn{{Name: "key", Type: "int", Expr: col(0, "key")}},
	}
	intersectScope := tree.AddScope(intersect)
	root := &querytree.QueryNode{
		Command: querytree.Select,
		Tables:  []*querytree.TableRef{{Kind: querytree.SubqueryRef, Alias: "i", Scope: intersectScope}},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}},
		Targets: []querytree.TargetColumn{{Name: "key", Type: "int", Expr: col(0, "key")}},
	}
	tree.Replace(tree.Root(), root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	// Both branches are materialized, then the intersect itself (now a
	// purely local fragment) becomes a third sub-plan.
	assert.Len(t, plan.Distributed.SubPlans, 3)
}

func TestDecompositionNeedsRouterExecution(t *testing.T) {
	opts := planner.DefaultOptions()
	opts.EnableRouterExecution = false
	p := newTestPlanner(testCatalog(), opts)
	root := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{
			{Kind: querytree.RelationRef, Relation: "orders"},
			{Kind: querytree.RelationRef, Relation: "users"},
		},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}, &querytree.TableNode{Ref: 1}},
		Where:   []querytree.Expr{eq(col(0, "key"), col(1, "key"))},
		Targets: []querytree.TargetColumn{{Name: "val", Type: "int", Expr: col(0, "val")}},
	}
	tree := querytree.NewTree(root)

	_, err := p.PlanQuery(context.Background(), tree, nil)
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, sperrors.Code(err))
}

func TestSubqueryPushdownSkipsDecomposition(t *testing.T) {
	opts := planner.DefaultOptions()
	opts.SubqueryPushdown = true
	p := newTestPlanner(testCatalog(), opts)
	tree := querytree.NewTree(&querytree.QueryNode{})
	cteScope := tree.AddScope(scan("orders", "key"))
	root := &querytree.QueryNode{
		Command: querytree.Select,
		CTEs:    []querytree.CTEDef{{Name: "c", Scope: cteScope}},
		Tables:  []*querytree.TableRef{{Kind: querytree.CTERef, CTEName: "c"}},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}},
		Targets: []querytree.TargetColumn{{Name: "key", Type: "int", Expr: col(0, "key")}},
	}
	tree.Replace(tree.Root(), root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	require.NotNil(t, plan.Distributed)
	assert.Empty(t, plan.Distributed.SubPlans)
	// The CTE stays in place; the caller vouched for pushdown safety.
	assert.Len(t, tree.Scope(tree.Root()).CTEs, 1)
}

func TestSubPlanResultPathsAreSessionScoped(t *testing.T) {
	cat := testCatalog()
	build := func() *querytree.Tree {
		root := &querytree.QueryNode{
			Command: querytree.Select,
			Tables: []*querytree.TableRef{
				{Kind: querytree.RelationRef, Relation: "orders"},
				{Kind: querytree.RelationRef, Relation: "users"},
			},
			From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}, &querytree.TableNode{Ref: 1}},
			Where:   []querytree.Expr{eq(col(0, "key"), col(1, "key"))},
			Targets: []querytree.TargetColumn{{Name: "val", Type: "int", Expr: col(0, "val")}},
		}
		return querytree.NewTree(root)
	}

	p1 := newTestPlanner(cat, planner.DefaultOptions())
	p2 := newTestPlanner(cat, planner.DefaultOptions())
	plan1, err := p1.PlanQuery(context.Background(), build(), nil)
	require.NoError(t, err)
	plan2, err := p2.PlanQuery(context.Background(), build(), nil)
	require.NoError(t, err)

	require.Len(t, plan1.Distributed.SubPlans, 1)
	require.Len(t, plan2.Distributed.SubPlans, 1)
	assert.NotEqual(t, plan1.Distributed.SubPlans[0].ResultPath, plan2.Distributed.SubPlans[0].ResultPath)
}

func TestPartitionViewsRestoredAfterPlanning(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	root := scan("events", "key", "val")
	root.Where = []querytree.Expr{eq(col(0, "key"), lit("5"))}
	tree := querytree.NewTree(root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	assert.True(t, plan.Router)
	// The baseline pass plans partitioned tables unexpanded; the caller's
	// tree gets expansion back afterwards.
	assert.False(t, tree.Scope(tree.Root()).Table(0).NoExpand)
}

func TestPartitionViewsRestoredAfterDecomposition(t *testing.T) {
	p := newTestPlanner(testCatalog(), planner.DefaultOptions())
	root := &querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{
			{Kind: querytree.RelationRef, Relation: "users"},
			{Kind: querytree.RelationRef, Relation: "events"},
		},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}, &querytree.TableNode{Ref: 1}},
		Where:   []querytree.Expr{eq(col(0, "key"), col(1, "key"))},
		Targets: []querytree.TargetColumn{{Name: "val", Type: "int", Expr: col(1, "val")}},
	}
	tree := querytree.NewTree(root)

	plan, err := p.PlanQuery(context.Background(), tree, nil)
	require.NoError(t, err)
	// "users" (lowest identity) is materialized; the partitioned "events"
	// reference survives the rewrite with expansion restored.
	require.Len(t, plan.Distributed.SubPlans, 1)
	got := tree.Scope(tree.Root())
	assert.Equal(t, querytree.ResultRef, got.Table(0).Kind)
	require.Equal(t, querytree.RelationRef, got.Table(1).Kind)
	assert.False(t, got.Table(1).NoExpand)
}
