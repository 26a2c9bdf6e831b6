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

// Package intermediate names the materialized outputs of sub-plans.
// Storage and transfer of the results is handled elsewhere; the planner
// only needs a deterministic symbolic path both sides agree on.
package intermediate

import (
	"fmt"

	"github.com/google/uuid"
)

// resultPathFormat keys a result by session, plan and sub-plan, so paths
// never collide across sessions or across plans within a session.
const resultPathFormat = "base/intermediate_results/%s_%d_%d.data"

// ResultPath returns the symbolic path of a materialized sub-plan result.
func ResultPath(session uuid.UUID, planID uint64, subPlanID int) string {
	return fmt.Sprintf(resultPathFormat, session, planID, subPlanID)
}
