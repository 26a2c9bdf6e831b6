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

package querytree

// PartitionMetadata is the subset of distribution metadata the
// partition-view adjuster needs.
type PartitionMetadata interface {
	// IsDistributedPartitioned reports whether the relation is both
	// distributed and partitioned.
	IsDistributedPartitioned(relation string) bool
}

// SetPartitionViews toggles partition expansion on every distributed,
// partitioned relation reference in the tree.
//
// Baseline planning must treat such tables as plain relations: expansion
// into physical partitions happens at shard level, not on the
// coordinator. The adjuster runs with expand=false before each baseline
// planning pass and expand=true afterwards to restore the tree.
func SetPartitionViews(t *Tree, meta PartitionMetadata, expand bool) {
	forEachTableRef(t, t.Root(), func(ref *TableRef) {
		if ref.Kind == RelationRef && meta.IsDistributedPartitioned(ref.Relation) {
			ref.NoExpand = !expand
		}
	})
}
