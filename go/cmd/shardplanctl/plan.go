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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"

	"shardplan.io/shardplan/go/sp/baseline"
	"shardplan.io/shardplan/go/sp/catalog"
	"shardplan.io/shardplan/go/sp/engine"
	"shardplan.io/shardplan/go/sp/log"
	"shardplan.io/shardplan/go/sp/planner"
	"shardplan.io/shardplan/go/sp/querytree"
	"shardplan.io/shardplan/go/sp/sperrors"
)

var planFlags = struct {
	catalogFile       string
	queryFile         string
	params            []string
	out               string
	routerExecution   bool
	subqueryPushdown  bool
	maxDepth          int
	multiTaskLogLevel int
}{}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan one query tree and print the resulting plan",
	Long: `Plan reads a query tree (JSON) and a distribution catalog (JSON),
plans the query, and prints the plan shape and its sub-plans. Parameters
are bound positionally with --param; an unbound parameter leaves the plan
in forced-replan state.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planFlags.catalogFile, "catalog", "", "distribution catalog JSON file")
	planCmd.Flags().StringVar(&planFlags.queryFile, "query", "", "query tree JSON file")
	planCmd.Flags().StringArrayVar(&planFlags.params, "param", nil, "bound parameter value as type:value, in ordinal order")
	planCmd.Flags().StringVar(&planFlags.out, "out", "", "write the plan payload JSON to this file")
	planCmd.Flags().BoolVar(&planFlags.routerExecution, "router-execution", true, "enable the single-shard router fast path")
	planCmd.Flags().BoolVar(&planFlags.subqueryPushdown, "subquery-pushdown", false, "assert all subqueries are safe to push down")
	planCmd.Flags().IntVar(&planFlags.maxDepth, "max-depth", planner.DefaultMaxDepth, "maximum recursive planning depth")
	planCmd.Flags().IntVar(&planFlags.multiTaskLogLevel, "multi-task-log-level", 0, "verbosity at which multi-task plans are logged")
	cobra.CheckErr(planCmd.MarkFlagRequired("catalog"))
	cobra.CheckErr(planCmd.MarkFlagRequired("query"))
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cat, err := catalog.Load(planFlags.catalogFile)
	if err != nil {
		return err
	}
	tree, err := loadTree(planFlags.queryFile)
	if err != nil {
		return err
	}
	params, err := parseParams(planFlags.params)
	if err != nil {
		return err
	}

	p := planner.New(
		cat,
		baseline.NewPlanner(cat),
		baseline.NewOracle(cat),
		baseline.NewRouter(cat),
		baseline.NewDistributed(cat),
		baseline.NewModify(cat),
		planner.Options{
			EnableRouterExecution: planFlags.routerExecution,
			SubqueryPushdown:      planFlags.subqueryPushdown,
			MaxDepth:              planFlags.maxDepth,
			MultiTaskLogLevel:     log.Level(planFlags.multiTaskLogLevel),
		},
	)

	plan, err := p.PlanQuery(cmd.Context(), tree, params)
	if err != nil {
		return err
	}
	printPlan(cmd, plan)

	if planFlags.out != "" {
		payload, err := plan.MarshalPayload()
		if err != nil {
			return err
		}
		if err := os.WriteFile(planFlags.out, payload, 0o644); err != nil {
			return sperrors.Wrapf(err, "writing plan payload to %s", planFlags.out)
		}
	}
	return nil
}

func loadTree(path string) (*querytree.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sperrors.Wrapf(err, "reading query tree %s", path)
	}
	var tree querytree.Tree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, sperrors.Wrap(err, "parsing query tree")
	}
	return &tree, nil
}

// parseParams turns type:value strings into bound literals, in ordinal
// order. An empty string leaves that ordinal unbound.
func parseParams(raw []string) (planner.BoundParams, error) {
	params := make(planner.BoundParams, len(raw))
	for i, s := range raw {
		if s == "" {
			continue
		}
		typ, val, found := strings.Cut(s, ":")
		if !found {
			return nil, sperrors.Errorf(codes.InvalidArgument, "malformed parameter %q, want type:value", s)
		}
		params[i] = &querytree.Literal{Type: typ, Val: val}
	}
	return params, nil
}

func printPlan(cmd *cobra.Command, plan *engine.FinalPlan) {
	shape := "local"
	if plan.Distributed != nil {
		if plan.Router {
			shape = "router"
		} else {
			shape = "distributed with coordinator merge"
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "command: %s\nshape: %s\nrelations: %s\n",
		plan.Command, shape, strings.Join(plan.Relations, ", "))
	if plan.NeedsReplan() {
		fmt.Fprintln(cmd.OutOrStdout(), "forced replan: bind parameters and plan again before executing")
	}
	if plan.Distributed == nil || len(plan.Distributed.SubPlans) == 0 {
		return
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Sub-plan", "Result path", "Columns")
	for _, sub := range plan.Distributed.SubPlans {
		var cols []string
		for _, c := range sub.Columns {
			cols = append(cols, c.Name)
		}
		table.Append(
			strconv.FormatUint(sub.PlanID, 10)+"_"+strconv.Itoa(sub.SubPlanID),
			sub.ResultPath,
			strings.Join(cols, ", "),
		)
	}
	table.Render()
}
