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

package planner

import (
	"shardplan.io/shardplan/go/sp/engine"
	"shardplan.io/shardplan/go/sp/log"
)

// finalizePlan turns a usable distributed plan into the executable shape.
// Router plans run entirely on workers; everything else keeps a
// coordinator-merge stage. Relation bookkeeping from the baseline pass is
// merged in so permission checks cover every relation of the original
// query, including ones decomposition rewrote away.
func (p *Planner) finalizePlan(local *engine.LocalPlan, dp *engine.DistributedPlan) *engine.FinalPlan {
	if dp.MultiTask() {
		multiTaskPlans.Inc()
		if lvl := p.opts.MultiTaskLogLevel; lvl > 0 && bool(log.V(lvl)) {
			log.Infof("multi-task query about to be executed: queries are split into multiple tasks when they have to run on several shards")
		}
	}

	dp.Relations = mergeRelations(dp.Relations, local.Relations)

	final := &engine.FinalPlan{
		Command:     dp.Operation,
		Distributed: dp,
		Columns:     local.Targets,
		Relations:   dp.Relations,
		TotalCost:   local.TotalCost,
	}
	if dp.MergeScope != nil {
		final.Merge = dp.MergeScope
	} else {
		final.Router = true
	}
	return final
}

// mergeRelations unions two relation lists, preserving the order of first
// appearance.
func mergeRelations(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, rel := range a {
		if !seen[rel] {
			seen[rel] = true
			out = append(out, rel)
		}
	}
	for _, rel := range b {
		if !seen[rel] {
			seen[rel] = true
			out = append(out, rel)
		}
	}
	return out
}
