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

package intermediate

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestResultPath(t *testing.T) {
	session := uuid.MustParse("b9cd84f8-1a2b-4c5d-9e6f-012345678901")
	got := ResultPath(session, 7, 2)
	assert.Equal(t, fmt.Sprintf("base/intermediate_results/%s_7_2.data", session), got)

	// Deterministic for the same inputs, distinct otherwise.
	assert.Equal(t, got, ResultPath(session, 7, 2))
	assert.NotEqual(t, got, ResultPath(session, 7, 3))
	assert.NotEqual(t, got, ResultPath(session, 8, 2))
	assert.NotEqual(t, got, ResultPath(uuid.New(), 7, 2))
}
