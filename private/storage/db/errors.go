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

package db

import (
	"errors"

	"github.com/netfab/switchd/pkg/private/serrors"
)

// Error classes of the database layer. Errors returned by this package and
// by the stores built on it match one of them with errors.Is.
var (
	// ErrInvalidInputData is returned for data that cannot be stored.
	ErrInvalidInputData = errors.New("db: input data invalid")
	// ErrDataInvalid is returned for stored data that cannot be decoded.
	ErrDataInvalid = errors.New("db: db data invalid")
	// ErrReadFailed is returned if a query failed.
	ErrReadFailed = errors.New("db: read failed")
	// ErrWriteFailed is returned if a statement failed.
	ErrWriteFailed = errors.New("db: write failed")
	// ErrSchemaMismatch is returned for a database written with a different
	// schema version.
	ErrSchemaMismatch = errors.New("db: schema version mismatch")
)

func classify(class error, msg string, cause error, errCtx []any) error {
	return serrors.JoinNoStack(class, cause, append([]any{"detailMsg", msg}, errCtx...)...)
}

func NewInputDataError(msg string, err error, errCtx ...any) error {
	return classify(ErrInvalidInputData, msg, err, errCtx)
}

func NewDataError(msg string, err error, errCtx ...any) error {
	return classify(ErrDataInvalid, msg, err, errCtx)
}

func NewReadError(msg string, err error, errCtx ...any) error {
	return classify(ErrReadFailed, msg, err, errCtx)
}

func NewWriteError(msg string, err error, errCtx ...any) error {
	return classify(ErrWriteFailed, msg, err, errCtx)
}
