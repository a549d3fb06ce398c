// Copyright 2024 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package serrors provides errors with structured context. The context is a
// list of key value pairs that is rendered sorted by key, both in the error
// message and in the log representation. Errors created by this package work
// with errors.Is and errors.As: an error matches itself, its cause, and for
// Join the base error.
package serrors

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type field struct {
	key   string
	value any
}

// details is the part shared by all errors of this package. It contains a
// slice, so errors of this package are never compared with ==.
type details struct {
	fields []field
	cause  error
	stack  *stack
}

func newDetails(cause error, withStack bool, errCtx []any) details {
	fields := make([]field, 0, len(errCtx)/2)
	for i := 0; i+1 < len(errCtx); i += 2 {
		fields = append(fields, field{key: fmt.Sprint(errCtx[i]), value: errCtx[i+1]})
	}
	slices.SortStableFunc(fields, func(a, b field) int { return strings.Compare(a.key, b.key) })
	d := details{fields: fields, cause: cause}
	// Only the innermost error of this package carries a stack.
	var traced interface{ StackTrace() StackTrace }
	if withStack && (cause == nil || !errors.As(cause, &traced)) {
		d.stack = callers()
	}
	return d
}

func (d details) format(msg string) string {
	var b strings.Builder
	b.WriteString(msg)
	if len(d.fields) > 0 {
		b.WriteString(" {")
		for i, f := range d.fields {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s=%v", f.key, f.value)
		}
		b.WriteString("}")
	}
	if d.cause != nil {
		b.WriteString(": ")
		b.WriteString(d.cause.Error())
	}
	return b.String()
}

func (d details) marshal(msg string, enc zapcore.ObjectEncoder) error {
	enc.AddString("msg", msg)
	if d.cause != nil {
		if m, ok := d.cause.(zapcore.ObjectMarshaler); ok {
			if err := enc.AddObject("cause", m); err != nil {
				return err
			}
		} else {
			enc.AddString("cause", d.cause.Error())
		}
	}
	if d.stack != nil {
		if err := enc.AddArray("stacktrace", d.stack); err != nil {
			return err
		}
	}
	for _, f := range d.fields {
		zap.Any(f.key, f.value).AddTo(enc)
	}
	return nil
}

// StackTrace returns the attached stack trace if there is any.
func (d details) StackTrace() StackTrace {
	if d.stack == nil {
		return nil
	}
	return d.stack.StackTrace()
}

type msgError struct {
	details
	msg string
}

func (e *msgError) Error() string { return e.format(e.msg) }
func (e *msgError) Unwrap() error { return e.cause }

func (e *msgError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	return e.marshal(e.msg, enc)
}

// New creates an error with the given message and context, plus a stack
// trace. Sentinel errors that are only used as the base of Join should be
// created with errors.New instead.
func New(msg string, errCtx ...any) error {
	return &msgError{details: newDetails(nil, true, errCtx), msg: msg}
}

// Wrap returns an error with the given message and context that wraps cause.
// A stack trace is attached unless cause already carries one.
func Wrap(msg string, cause error, errCtx ...any) error {
	return &msgError{details: newDetails(cause, true, errCtx), msg: msg}
}

// WrapNoStack is like Wrap but never attaches a stack trace.
func WrapNoStack(msg string, cause error, errCtx ...any) error {
	return &msgError{details: newDetails(cause, false, errCtx), msg: msg}
}

type joinedError struct {
	details
	base error
}

func (e *joinedError) Error() string { return e.format(e.base.Error()) }

func (e *joinedError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.base}
	}
	return []error{e.base, e.cause}
}

func (e *joinedError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	return e.marshal(e.base.Error(), enc)
}

// Join returns an error that matches both err and cause, with the given
// context attached. The message is the one of err. A stack trace is attached
// unless cause already carries one. Join returns nil if both errors are nil.
func Join(err, cause error, errCtx ...any) error {
	if err == nil && cause == nil {
		return nil
	}
	if err == nil {
		err, cause = cause, nil
	}
	return &joinedError{details: newDetails(cause, true, errCtx), base: err}
}

// JoinNoStack is like Join but never attaches a stack trace.
func JoinNoStack(err, cause error, errCtx ...any) error {
	if err == nil && cause == nil {
		return nil
	}
	if err == nil {
		err, cause = cause, nil
	}
	return &joinedError{details: newDetails(cause, false, errCtx), base: err}
}

// List is a list of errors. It matches all contained errors.
type List []error

func (e List) Error() string {
	s := make([]string, 0, len(e))
	for _, err := range e {
		s = append(s, err.Error())
	}
	return "[ " + strings.Join(s, "; ") + " ]"
}

func (e List) Unwrap() []error {
	return e
}

// ToError returns nil for an empty list and the list otherwise.
func (e List) ToError() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e List) MarshalLogArray(ae zapcore.ArrayEncoder) error {
	for _, err := range e {
		if m, ok := err.(zapcore.ObjectMarshaler); ok {
			if err := ae.AppendObject(m); err != nil {
				return err
			}
			continue
		}
		ae.AppendString(err.Error())
	}
	return nil
}
