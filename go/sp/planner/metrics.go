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

import "github.com/prometheus/client_golang/prometheus"

var (
	routerPlans = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shardplan_router_plans_total",
		Help: "Queries planned through the single-shard router fast path.",
	})
	decomposedSubPlans = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shardplan_decomposed_subplans_total",
		Help: "Sub-plans split out of queries during recursive decomposition.",
	})
	multiTaskPlans = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shardplan_multi_task_plans_total",
		Help: "Plans spanning more than one task.",
	})
	planningFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shardplan_planning_failures_total",
		Help: "Queries no planning strategy could handle.",
	})
)

func init() {
	prometheus.MustRegister(routerPlans, decomposedSubPlans, multiTaskPlans, planningFailures)
}
