/*
 * Copyright 2019 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies an engine error.
type Kind string

// Error kinds reported by the engine.
const (
	KindBind                 Kind = "BIND_ERROR"
	KindParse                Kind = "PARSE_ERROR"
	KindAliasCollision       Kind = "ALIAS_COLLISION"
	KindBatchTypeMismatch    Kind = "BATCH_TYPE_MISMATCH"
	KindBatchMultiTable      Kind = "BATCH_MULTI_TABLE"
	KindNetworkMismatch      Kind = "NETWORK_MISMATCH"
	KindNoEvents             Kind = "NO_EVENTS"
	KindMaterialization      Kind = "MATERIALIZATION_ERROR"
	KindAborted              Kind = "ABORTED"
	KindAll                  Kind = "ALL_ERROR"
	KindFirst                Kind = "FIRST_ERROR"
	KindRun                  Kind = "RUN_ERROR"
	KindRaw                  Kind = "RAW_ERROR"
	KindExec                 Kind = "EXEC_ERROR"
	KindBatch                Kind = "BATCH_ERROR"
	KindUnsupportedStatement Kind = "UNSUPPORTED_STATEMENT"
)

var (
	// ErrNoTable indicates a statement which targets no table was given where one is required.
	ErrNoTable = errors.New("statement does not reference any table")
	// ErrUnknownChain indicates the chain id is not in the supported chain list.
	ErrUnknownChain = errors.New("unknown chain")
)

// Error is the typed error surfaced by every engine operation.
type Error struct {
	Kind    Kind
	Message string
	// Hint is the offending sql rendered with a caret marker, may be empty.
	Hint  string
	cause error
}

// NewError returns a new error of kind without cause.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError re-wraps err with kind, keeping err as the traceable cause and inheriting its hint.
func WrapError(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	e := &Error{
		Kind:    kind,
		Message: err.Error(),
		cause:   err,
	}
	if inner, ok := AsError(err); ok {
		e.Message = inner.Message
		e.Hint = inner.Hint
	}
	return e
}

// WithHint attaches a caret hint for position pos of sql.
func (e *Error) WithHint(sql string, pos int) *Error {
	e.Hint = CaretHint(sql, pos)
	return e
}

// WithCause sets the underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

func (e *Error) Error() string {
	if e.cause != nil && e.cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Cause implements the pkg/errors causer.
func (e *Error) Cause() error {
	return e.cause
}

// Unwrap implements the go1.13 wrapper interface.
func (e *Error) Unwrap() error {
	return e.cause
}

// AsError returns the outermost *Error in the cause chain of err.
func AsError(err error) (e *Error, ok bool) {
	for err != nil {
		if e, ok = err.(*Error); ok {
			return
		}
		switch c := err.(type) {
		case interface{ Cause() error }:
			err = c.Cause()
		case interface{ Unwrap() error }:
			err = c.Unwrap()
		default:
			return nil, false
		}
	}
	return nil, false
}

// KindOf returns the kind of the outermost typed error in err's chain, or "".
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// HasKind reports whether any error in the cause chain of err has kind.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		switch c := err.(type) {
		case interface{ Cause() error }:
			err = c.Cause()
		case interface{ Unwrap() error }:
			err = c.Unwrap()
		default:
			return false
		}
	}
	return false
}

// CaretHint renders sql with a caret under byte offset pos of the line containing it.
func CaretHint(sql string, pos int) string {
	if pos < 0 {
		return ""
	}
	if pos > len(sql) {
		pos = len(sql)
	}
	lineStart := strings.LastIndexByte(sql[:pos], '\n') + 1
	lineEnd := strings.IndexByte(sql[pos:], '\n')
	if lineEnd < 0 {
		lineEnd = len(sql)
	} else {
		lineEnd += pos
	}
	return sql[lineStart:lineEnd] + "\n" + strings.Repeat(" ", pos-lineStart) + "^"
}
