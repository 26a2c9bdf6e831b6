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

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardplan.io/shardplan/go/sp/querytree"
)

func TestPayloadRoundTrip(t *testing.T) {
	merge := querytree.NewTree(&querytree.QueryNode{
		Command: querytree.Select,
		Tables: []*querytree.TableRef{{
			Kind:  querytree.ResultRef,
			Alias: "intermediate_result",
			Result: &querytree.ResultScan{
				PlanID: 3, SubPlanID: 0,
				Path:    "base/intermediate_results/s_3_0.data",
				Columns: []querytree.ColumnDef{{Name: "x", Type: "int"}},
			},
		}},
		From:    []querytree.JoinTree{&querytree.TableNode{Ref: 0}},
		Targets: []querytree.TargetColumn{{Name: "x", Type: "int", Expr: &querytree.ColumnRef{Table: 0, Name: "x"}}},
	})

	plan := &FinalPlan{
		Command: querytree.Select,
		Distributed: &DistributedPlan{
			Operation: querytree.Select,
			PlanID:    3,
			TaskCount: 4,
			SubPlans: []*SubPlan{{
				PlanID: 3, SubPlanID: 0,
				ResultPath: "base/intermediate_results/s_3_0.data",
				Columns:    []querytree.ColumnDef{{Name: "x", Type: "int"}},
			}},
			Relations: []string{"orders"},
		},
		Merge:     merge,
		Columns:   []querytree.ColumnDef{{Name: "x", Type: "int"}},
		Relations: []string{"orders"},
		TotalCost: 12,
	}

	data, err := plan.MarshalPayload()
	require.NoError(t, err)

	got, err := UnmarshalPayload(data)
	require.NoError(t, err)
	assert.Equal(t, plan.Command, got.Command)
	assert.Equal(t, plan.Relations, got.Relations)
	require.NotNil(t, got.Distributed)
	assert.Equal(t, uint64(3), got.Distributed.PlanID)
	require.Len(t, got.Distributed.SubPlans, 1)
	assert.Equal(t, plan.Distributed.SubPlans[0].ResultPath, got.Distributed.SubPlans[0].ResultPath)
	require.NotNil(t, got.Merge)
	assert.Equal(t, querytree.ResultRef, got.Merge.Scope(got.Merge.Root()).Table(0).Kind)
}

func TestUnmarshalPayloadRejectsGarbage(t *testing.T) {
	_, err := UnmarshalPayload([]byte("not json"))
	require.Error(t, err)
}

func TestNeedsReplan(t *testing.T) {
	plan := &FinalPlan{TotalCost: 100}
	assert.False(t, plan.NeedsReplan())
	plan.TotalCost = ForcedReplanCost
	assert.True(t, plan.NeedsReplan())
}

func TestMultiShardModify(t *testing.T) {
	dp := &DistributedPlan{Operation: querytree.Update, TaskCount: 4}
	assert.True(t, dp.MultiTask())
	assert.True(t, dp.IsMultiShardModify())

	dp.TaskCount = 1
	assert.False(t, dp.IsMultiShardModify())

	dp = &DistributedPlan{Operation: querytree.Select, TaskCount: 4}
	assert.False(t, dp.IsMultiShardModify())
}
