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

import (
	"google.golang.org/grpc/codes"

	"shardplan.io/shardplan/go/sp/sperrors"
)

// AssignIdentities stamps every relation reference in the tree with an
// increasing identity starting at 1, in traversal order.
//
// Baseline planning clones and transforms references, destroying
// structural equality; the identity is the only durable way to recognize
// the same logical reference afterwards. Identities are assigned exactly
// once per original tree: invoking this on an already stamped tree is a
// contract violation and returns a hard error. Copies made with Copy or
// ExtractScope keep their identities and never need re-stamping.
func AssignIdentities(t *Tree) error {
	if t.stamped {
		return sperrors.New(codes.Internal, "identities already assigned to query tree")
	}
	next := 1
	forEachTableRef(t, t.Root(), func(ref *TableRef) {
		if ref.Kind == RelationRef {
			ref.Identity = next
			next++
		}
	})
	t.stamped = true
	return nil
}
