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

// Package plancache caches final plans by a fingerprint of the query tree
// and its bound parameters. Plans carrying the forced-replan marker are
// never cached: they exist only to signal that planning has to run again
// with bound values.
package plancache

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	gocache "github.com/patrickmn/go-cache"

	"shardplan.io/shardplan/go/sp/engine"
	"shardplan.io/shardplan/go/sp/planner"
	"shardplan.io/shardplan/go/sp/querytree"
	"shardplan.io/shardplan/go/sp/sperrors"
)

// DefaultTTL is how long cached plans stay valid by default.
const DefaultTTL = 5 * time.Minute

// Cache is a TTL-bound plan cache. It is safe for concurrent use.
type Cache struct {
	c *gocache.Cache
}

// New creates a cache whose entries expire after ttl. A non-positive ttl
// uses DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{c: gocache.New(ttl, ttl)}
}

// Fingerprint hashes a query tree and its bound parameters into a cache
// key. Trees that plan differently fingerprint differently because the
// encoding covers the full tree shape.
func Fingerprint(t *querytree.Tree, params planner.BoundParams) (uint64, error) {
	data, err := t.MarshalJSON()
	if err != nil {
		return 0, sperrors.Wrap(err, "fingerprinting query tree")
	}
	digest := xxhash.New()
	digest.Write(data)
	var buf [8]byte
	for i, p := range params {
		binary.LittleEndian.PutUint64(buf[:], uint64(i))
		digest.Write(buf[:])
		if p != nil {
			digest.Write([]byte(p.Type))
			digest.Write([]byte{0})
			digest.Write([]byte(p.Val))
		}
	}
	return digest.Sum64(), nil
}

// Get returns the cached plan for the key, if any.
func (c *Cache) Get(key uint64) (*engine.FinalPlan, bool) {
	v, ok := c.c.Get(formatKey(key))
	if !ok {
		return nil, false
	}
	return v.(*engine.FinalPlan), true
}

// Put caches the plan under the key. Plans demanding a re-plan are not
// stored.
func (c *Cache) Put(key uint64, plan *engine.FinalPlan) {
	if plan == nil || plan.NeedsReplan() {
		return
	}
	c.c.SetDefault(formatKey(key), plan)
}

// Invalidate drops the entry for the key.
func (c *Cache) Invalidate(key uint64) {
	c.c.Delete(formatKey(key))
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.c.ItemCount()
}

func formatKey(key uint64) string {
	return strconv.FormatUint(key, 16)
}
