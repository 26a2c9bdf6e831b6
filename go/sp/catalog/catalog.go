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

// Package catalog answers distribution metadata questions for the planner:
// which tables are distributed, how they are partitioned, and which tables
// are colocated.
package catalog

import (
	"encoding/json"
	"os"

	"google.golang.org/grpc/codes"

	"shardplan.io/shardplan/go/sp/querytree"
	"shardplan.io/shardplan/go/sp/sperrors"
)

// Table is the distribution metadata of one table.
type Table struct {
	Name string `json:"name"`
	// Distributed tables are horizontally partitioned across workers by
	// the distribution column.
	Distributed        bool   `json:"distributed"`
	Partitioned        bool   `json:"partitioned,omitempty"`
	DistributionColumn string `json:"distribution_column,omitempty"`
	// Tables in the same colocation group place matching distribution
	// key values on the same worker, enabling shard-local joins.
	ColocationGroup int                   `json:"colocation_group,omitempty"`
	ShardCount      int                   `json:"shard_count,omitempty"`
	Columns         []querytree.ColumnDef `json:"columns,omitempty"`
}

// Catalog looks up distribution metadata by table name.
type Catalog interface {
	// Table returns the metadata for the named table, or false when the
	// table is unknown to the catalog (a purely local table).
	Table(name string) (*Table, bool)
}

// IsDistributed reports whether the named table is distributed.
func IsDistributed(c Catalog, name string) bool {
	tbl, ok := c.Table(name)
	return ok && tbl.Distributed
}

// Colocated reports whether two tables are in the same colocation group.
func Colocated(c Catalog, a, b string) bool {
	ta, okA := c.Table(a)
	tb, okB := c.Table(b)
	if !okA || !okB || !ta.Distributed || !tb.Distributed {
		return false
	}
	return ta.ColocationGroup == tb.ColocationGroup
}

// InMemory is a map-backed Catalog.
type InMemory struct {
	tables map[string]*Table
}

// NewInMemory creates a catalog holding the given tables.
func NewInMemory(tables ...*Table) *InMemory {
	c := &InMemory{tables: make(map[string]*Table)}
	for _, tbl := range tables {
		c.tables[tbl.Name] = tbl
	}
	return c
}

// Add inserts or replaces a table's metadata.
func (c *InMemory) Add(tbl *Table) {
	c.tables[tbl.Name] = tbl
}

// Table implements Catalog.
func (c *InMemory) Table(name string) (*Table, bool) {
	tbl, ok := c.tables[name]
	return tbl, ok
}

// IsDistributedPartitioned implements querytree.PartitionMetadata.
func (c *InMemory) IsDistributedPartitioned(relation string) bool {
	tbl, ok := c.tables[relation]
	return ok && tbl.Distributed && tbl.Partitioned
}

// Load reads a catalog from a JSON file holding a list of tables.
func Load(path string) (*InMemory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sperrors.Wrapf(err, "reading catalog %s", path)
	}
	var tables []*Table
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, sperrors.Wrap(sperrors.New(codes.InvalidArgument, err.Error()), "parsing catalog")
	}
	return NewInMemory(tables...), nil
}
