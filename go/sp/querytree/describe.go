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
	"fmt"
	"strings"
)

// DescribeScope returns a short human readable summary of a scope, used
// in debug logging.
func DescribeScope(t *Tree, id ScopeID) string {
	q := t.Scope(id)
	var refs []string
	for _, ref := range q.Tables {
		switch ref.Kind {
		case RelationRef:
			refs = append(refs, ref.Relation)
		case SubqueryRef:
			refs = append(refs, fmt.Sprintf("(scope %d)", ref.Scope))
		case CTERef:
			refs = append(refs, "cte:"+ref.CTEName)
		case ResultRef:
			refs = append(refs, "result:"+ref.Result.Path)
		}
	}
	if q.SetOp != nil {
		return fmt.Sprintf("%s set operation over [%s]", q.Command, strings.Join(refs, ", "))
	}
	return fmt.Sprintf("%s over [%s]", q.Command, strings.Join(refs, ", "))
}
