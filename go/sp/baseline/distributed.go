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

// Distributed is the general multi-task strategy: run the query on every
// shard of the (colocated) distributed relations and merge the results on
// the coordinator. It runs after decomposition, so any join it sees is
// expected to be shard-local.
type Distributed struct {
	catalog catalog.Catalog
	oracle  *Oracle
}

// NewDistributed creates the general strategy over the given catalog.
func NewDistributed(c catalog.Catalog) *Distributed {
	return &Distributed{catalog: c, oracle: NewOracle(c)}
}

// PlanDistributed implements planner.DistributedPlanner.
func (d *Distributed) PlanDistributed(ctx context.Context, original, working *querytree.Tree, rc *planner.RestrictionContext, params planner.BoundParams) (*engine.DistributedPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The colocation check must see every relation under the root,
	// including those inside nested subqueries: a non-colocated relation
	// hidden in a subquery would otherwise slip into a single round.
	filtered := planner.FilterForScopeTree(rc, working, working.Root())
	if !d.oracle.ColocatedRestrictions(filtered) {
		return &engine.DistributedPlan{
			PlanningError: sperrors.Deferred(codes.FailedPrecondition,
				"cannot run this query in a single round",
				"the query joins distributed relations that are not colocated on their distribution keys",
				""),
		}, nil
	}

	taskCount := 1
	for _, rel := range rc.Relations {
		if !rel.Distributed {
			continue
		}
		if tbl, ok := d.catalog.Table(rel.Relation); ok && tbl.ShardCount > taskCount {
			taskCount = tbl.ShardCount
		}
	}
	return &engine.DistributedPlan{
		MergeScope: working.Copy(),
		TaskCount:  taskCount,
		Relations:  relationNames(working),
	}, nil
}
