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
	"shardplan.io/shardplan/go/sp/log"
	"shardplan.io/shardplan/go/sp/querytree"
)

// RelationRestriction is one fact recorded by the baseline planner about a
// relation reference: which relation it is, whether it is distributed, and
// the predicates restricting it.
type RelationRestriction struct {
	Identity    int
	Relation    string
	Distributed bool
	Predicates  []querytree.Expr
}

// JoinRestriction is one fact recorded by the baseline planner about a
// join: its type, its conditions, and the relation identities on each side.
type JoinRestriction struct {
	Join            querytree.JoinType
	Predicates      []querytree.Expr
	LeftIdentities  []int
	RightIdentities []int
}

// RestrictionContext collects the facts the baseline planner reports for
// one planning pass. The decomposer consults it through the distribution
// oracle to decide which scopes can be pushed down as-is.
type RestrictionContext struct {
	Relations []*RelationRestriction
	Joins     []*JoinRestriction

	HasDistributedRelation bool
	HasLocalRelation       bool
}

// RecordRelation implements RestrictionRecorder.
func (rc *RestrictionContext) RecordRelation(ref *querytree.TableRef, distributed bool, predicates []querytree.Expr) {
	rc.Relations = append(rc.Relations, &RelationRestriction{
		Identity:    ref.Identity,
		Relation:    ref.Relation,
		Distributed: distributed,
		Predicates:  predicates,
	})
	if distributed {
		rc.HasDistributedRelation = true
	} else {
		rc.HasLocalRelation = true
	}
}

// RecordJoin implements RestrictionRecorder.
func (rc *RestrictionContext) RecordJoin(join querytree.JoinType, predicates []querytree.Expr, leftIdentities, rightIdentities []int) {
	rc.Joins = append(rc.Joins, &JoinRestriction{
		Join:            join,
		Predicates:      predicates,
		LeftIdentities:  leftIdentities,
		RightIdentities: rightIdentities,
	})
}

// Relation returns the recorded restriction for the given identity, or nil.
func (rc *RestrictionContext) Relation(identity int) *RelationRestriction {
	for _, rel := range rc.Relations {
		if rel.Identity == identity {
			return rel
		}
	}
	return nil
}

// FilterForScope returns the view of the context relevant to one scope:
// relation facts whose identity appears in the scope's own table list, and
// join facts whose identities all do. Identities already replaced by a
// placeholder scan fall out of the view automatically, which is what makes
// re-checking a scope after a replacement meaningful.
func FilterForScope(rc *RestrictionContext, t *querytree.Tree, id querytree.ScopeID) *RestrictionContext {
	return filterByIdentities(rc, querytree.DirectIdentities(t, id))
}

// FilterForScopeTree is like FilterForScope but covers the scope and every
// scope nested beneath it. Set operation scopes hold their relations inside
// the branch subqueries, and the non-colocated join check has to see
// distributed relations hiding in nested subqueries, so those views span
// the whole subtree.
func FilterForScopeTree(rc *RestrictionContext, t *querytree.Tree, id querytree.ScopeID) *RestrictionContext {
	return filterByIdentities(rc, querytree.ScopeIdentities(t, id))
}

func filterByIdentities(rc *RestrictionContext, ids map[int]bool) *RestrictionContext {
	filtered := &RestrictionContext{}
	for _, rel := range rc.Relations {
		if !ids[rel.Identity] {
			continue
		}
		filtered.Relations = append(filtered.Relations, rel)
		if rel.Distributed {
			filtered.HasDistributedRelation = true
		} else {
			filtered.HasLocalRelation = true
		}
	}
	for _, join := range rc.Joins {
		if identitiesCovered(join.LeftIdentities, ids) && identitiesCovered(join.RightIdentities, ids) {
			filtered.Joins = append(filtered.Joins, join)
		}
	}
	return filtered
}

func identitiesCovered(identities []int, ids map[int]bool) bool {
	for _, id := range identities {
		if !ids[id] {
			return false
		}
	}
	return len(identities) > 0
}

// IdentityWithFewestColocatedJoins returns the distributed relation identity
// participating in the fewest distribution-key joins, as judged by keyJoin.
// Ties break to the lowest identity so repeated passes over the same scope
// pick the same victim. Returns 0 when the context has no distributed
// relations.
func (rc *RestrictionContext) IdentityWithFewestColocatedJoins(keyJoin func(*JoinRestriction) bool) int {
	counts := make(map[int]int)
	for _, rel := range rc.Relations {
		if rel.Distributed {
			counts[rel.Identity] = 0
		}
	}
	if len(counts) == 0 {
		return 0
	}
	for _, join := range rc.Joins {
		if !keyJoin(join) {
			continue
		}
		for _, id := range join.LeftIdentities {
			if _, ok := counts[id]; ok {
				counts[id]++
			}
		}
		for _, id := range join.RightIdentities {
			if _, ok := counts[id]; ok {
				counts[id]++
			}
		}
	}
	best, bestCount := 0, -1
	for id, count := range counts {
		if bestCount == -1 || count < bestCount || (count == bestCount && id < best) {
			best, bestCount = id, count
		}
	}
	return best
}

// restrictionStack is the per-planner stack of restriction contexts. Every
// baseline planning pass runs under its own frame; recursive compilation of
// a sub-plan pushes a fresh frame so the inner pass cannot pollute the
// outer one.
type restrictionStack struct {
	frames []*RestrictionContext
}

// Push opens a fresh frame and returns it.
func (s *restrictionStack) Push() *RestrictionContext {
	rc := &RestrictionContext{}
	s.frames = append(s.frames, rc)
	return rc
}

// Current returns the innermost frame, or nil when the stack is empty.
func (s *restrictionStack) Current() *RestrictionContext {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Pop closes the innermost frame. It must be called on every exit path of
// the pass that pushed it, including error paths.
func (s *restrictionStack) Pop() {
	if len(s.frames) == 0 {
		log.Errorf("restriction stack popped while empty")
		return
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// Depth returns the number of open frames.
func (s *restrictionStack) Depth() int {
	return len(s.frames)
}
