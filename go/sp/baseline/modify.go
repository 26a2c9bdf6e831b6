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

	"google.golang.org/grpc/codes"

	"shardplan.io/shardplan/go/sp/catalog"
	"shardplan.io/shardplan/go/sp/engine"
	"shardplan.io/shardplan/go/sp/planner"
	"shardplan.io/shardplan/go/sp/querytree"
	"shardplan.io/shardplan/go/sp/sperrors"
)

// Modify plans data modifications. A modification pinned to one
// distribution key value routes to a single shard; otherwise it fans out to
// every shard of the target relation.
type Modify struct {
	catalog catalog.Catalog
}

// NewModify creates a modify planner over the given catalog.
func NewModify(c catalog.Catalog) *Modify {
	return &Modify{catalog: c}
}

// PlanModify implements planner.ModifyPlanner.
func (m *Modify) PlanModify(ctx context.Context, original, working *querytree.Tree, rc *planner.RestrictionContext) (*engine.DistributedPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := working.Scope(working.Root())
	target := modifyTarget(root)
	if target == nil {
		return nil, sperrors.New(codes.Internal, "modification has no target relation")
	}
	tbl, ok := m.catalog.Table(target.Relation)
	if !ok || !tbl.Distributed {
		return nil, sperrors.Errorf(codes.FailedPrecondition,
			"cannot plan a distributed modification of local relation %s", target.Relation)
	}

	rel := rc.Relation(target.Identity)
	if rel != nil && distributionKeyValue(rel.Predicates, tbl.DistributionColumn) != nil {
		return &engine.DistributedPlan{
			Operation: root.Command,
			Router:    true,
			TaskCount: 1,
			Relations: relationNames(working),
		}, nil
	}

	taskCount := tbl.ShardCount
	if taskCount < 1 {
		taskCount = 1
	}
	return &engine.DistributedPlan{
		Operation: root.Command,
		TaskCount: taskCount,
		Relations: relationNames(working),
	}, nil
}

// PlanInsertSelect implements planner.ModifyPlanner. The SELECT is executed
// shard by shard against the target relation's shards.
func (m *Modify) PlanInsertSelect(ctx context.Context, original, working *querytree.Tree, rc *planner.RestrictionContext) (*engine.DistributedPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := working.Scope(working.Root())
	target := modifyTarget(root)
	if target == nil {
		return nil, sperrors.New(codes.Internal, "insert has no target relation")
	}
	tbl, ok := m.catalog.Table(target.Relation)
	if !ok || !tbl.Distributed {
		return nil, sperrors.Errorf(codes.FailedPrecondition,
			"cannot plan a distributed insert into local relation %s", target.Relation)
	}
	taskCount := tbl.ShardCount
	if taskCount < 1 {
		taskCount = 1
	}
	return &engine.DistributedPlan{
		Operation: querytree.Insert,
		TaskCount: taskCount,
		Relations: relationNames(working),
	}, nil
}

// modifyTarget returns the first relation reference of the scope, the
// conventional slot for a modification's target.
func modifyTarget(q *querytree.QueryNode) *querytree.TableRef {
	for _, ref := range q.Tables {
		if ref.Kind == querytree.RelationRef {
			return ref
		}
	}
	return nil
}
