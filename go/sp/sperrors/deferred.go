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

package sperrors

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// PlanningError is an error that one planning strategy produced while
// another strategy might still succeed. It is carried as a value through
// return paths and only escalated to a hard error once no strategy remains.
type PlanningError struct {
	Code   codes.Code
	Msg    string
	Detail string
	Hint   string
}

// Deferred creates a PlanningError that can be escalated later.
func Deferred(code codes.Code, msg, detail, hint string) *PlanningError {
	return &PlanningError{Code: code, Msg: msg, Detail: detail, Hint: hint}
}

// Deferredf creates a PlanningError with a formatted message and no
// detail or hint.
func Deferredf(code codes.Code, format string, args ...any) *PlanningError {
	return &PlanningError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func (e *PlanningError) Error() string {
	msg := e.Msg
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

// ErrorCode returns the error code, making escalated planning errors
// observable through Code.
func (e *PlanningError) ErrorCode() codes.Code { return e.Code }
