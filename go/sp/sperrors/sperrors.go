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

// Package sperrors provides the error types used throughout the planner.
//
// Errors created here carry a gRPC error code so that callers can react to
// the class of failure without string matching, and so that errors keep
// their code when they cross a gRPC boundary. Use New or Errorf to create
// an error with a code, Wrap/Wrapf to add context to an existing error, and
// Code to retrieve the code of any error in a chain.
package sperrors

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fundamental is an error with a code and a message.
type fundamental struct {
	code codes.Code
	msg  string
}

func (f *fundamental) Error() string { return f.msg }

// ErrorCode returns the error code.
func (f *fundamental) ErrorCode() codes.Code { return f.code }

// wrapped adds a message in front of an underlying error, keeping the
// underlying error reachable through Unwrap.
type wrapped struct {
	err error
	msg string
}

func (w *wrapped) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }

// New returns an error with the supplied message and code.
func New(code codes.Code, msg string) error {
	return &fundamental{code: code, msg: msg}
}

// Errorf formats according to a format specifier and returns the string
// as a value that satisfies error, tagged with the given code.
func Errorf(code codes.Code, format string, args ...any) error {
	return &fundamental{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an error annotating err with the supplied message.
// If err is nil, Wrap returns nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: msg}
}

// Wrapf returns an error annotating err with the formatted message.
// If err is nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...any) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Code walks the error chain and returns the first error code found.
// A nil error maps to codes.OK, an uncoded error to codes.Unknown.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var coded interface{ ErrorCode() codes.Code }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return codes.Unknown
}

// ToGRPC converts an error into a gRPC status error carrying the same code.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}
	return status.Errorf(Code(err), "%v", err)
}

// FromGRPC converts a gRPC status error back into a coded error.
// io.EOF is passed through untouched because callers compare against it
// to detect finished streams.
func FromGRPC(err error) error {
	if err == nil {
		return nil
	}
	if err == io.EOF {
		return err
	}
	code := codes.Unknown
	if s, ok := status.FromError(err); ok {
		code = s.Code()
	}
	return New(code, err.Error())
}
